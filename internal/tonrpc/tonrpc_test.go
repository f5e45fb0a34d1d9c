package tonrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonbridge/internal/types"
)

// fakeProxy decodes the forwarded types.ProxyRequest and replies with a
// caller-supplied envelope, mimicking the idempotent HTTP proxy without
// actually contacting a TON node.
func fakeProxy(t *testing.T, handler func(req types.ProxyRequest) types.ProxyEnvelope) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req types.ProxyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		env := handler(req)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(env))
	}))
}

func TestGetWalletInfoDecodesResult(t *testing.T) {
	t.Parallel()

	srv := fakeProxy(t, func(req types.ProxyRequest) types.ProxyEnvelope {
		assert.Contains(t, req.DestinationURL, "/getWalletInformation")
		assert.NotEmpty(t, req.IdempotencyKey)
		result, _ := json.Marshal(map[string]any{
			"balance": "1500000000",
			"wallet":  true,
			"seqno":   3,
		})
		return types.ProxyEnvelope{OK: true, Result: result}
	})
	defer srv.Close()

	c := New(srv.URL, "proxy-key", "https://toncenter.example", "ton-key")
	info, err := c.GetWalletInfo(context.Background(), "EQabc")
	require.NoError(t, err)
	assert.True(t, info.Wallet)
	assert.Equal(t, "1500000000", info.Balance)
	require.NotNil(t, info.Seqno)
	assert.EqualValues(t, 3, *info.Seqno)
}

func TestGetWalletInfoPropagatesEnvelopeError(t *testing.T) {
	t.Parallel()

	srv := fakeProxy(t, func(req types.ProxyRequest) types.ProxyEnvelope {
		return types.ProxyEnvelope{OK: false, Error: "upstream unavailable"}
	})
	defer srv.Close()

	c := New(srv.URL, "", "https://toncenter.example", "")
	_, err := c.GetWalletInfo(context.Background(), "EQabc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream unavailable")
}

func TestGetTransactionsDecodesList(t *testing.T) {
	t.Parallel()

	srv := fakeProxy(t, func(req types.ProxyRequest) types.ProxyEnvelope {
		result, _ := json.Marshal([]types.TonTransaction{
			{InMsg: types.Msg{Hash: "h1"}, OutMsgs: []types.Msg{{Destination: "EQdest"}}},
		})
		return types.ProxyEnvelope{OK: true, Result: result}
	})
	defer srv.Close()

	c := New(srv.URL, "", "https://toncenter.example", "")
	txs, err := c.GetTransactions(context.Background(), "EQsrc")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "h1", txs[0].InMsg.Hash)
	assert.Equal(t, "EQdest", txs[0].OutMsgs[0].Destination)
}

func TestSendBocReturnsHash(t *testing.T) {
	t.Parallel()

	srv := fakeProxy(t, func(req types.ProxyRequest) types.ProxyEnvelope {
		assert.Contains(t, req.DestinationURL, "/sendBocReturnHash")
		result, _ := json.Marshal(types.SendBocResult{Hash: "deadbeef"})
		return types.ProxyEnvelope{OK: true, Result: result}
	})
	defer srv.Close()

	c := New(srv.URL, "", "https://toncenter.example", "")
	res, err := c.SendBoc(context.Background(), "base64boc==")
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", res.Hash)
}

func TestHealthcheckReflectsUpstream(t *testing.T) {
	t.Parallel()

	ok := fakeProxy(t, func(req types.ProxyRequest) types.ProxyEnvelope {
		result, _ := json.Marshal(map[string]any{"wallet": true})
		return types.ProxyEnvelope{OK: true, Result: result}
	})
	defer ok.Close()
	assert.NoError(t, New(ok.URL, "", "https://toncenter.example", "").Healthcheck(context.Background(), "EQabc"))

	bad := fakeProxy(t, func(req types.ProxyRequest) types.ProxyEnvelope {
		return types.ProxyEnvelope{OK: false, Error: "boom"}
	})
	defer bad.Close()
	assert.Error(t, New(bad.URL, "", "https://toncenter.example", "").Healthcheck(context.Background(), "EQabc"))
}
