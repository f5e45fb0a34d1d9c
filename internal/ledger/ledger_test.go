package ledger

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

func stubLedger(t *testing.T, path string, resp any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, path, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestTransferReturnsBlockIndex(t *testing.T) {
	t.Parallel()
	amount := "42"
	srv := stubLedger(t, "/icrc1_transfer", map[string]any{"ok": true, "amount": amount})
	defer srv.Close()

	c := New(srv.URL)
	idx, err := c.Transfer(context.Background(), types.TransferArg{To: types.Account{Owner: "abc"}, Amount: 1000})
	require.NoError(t, err)
	assert.EqualValues(t, 42, idx)
}

func TestTransferSurfacesLedgerError(t *testing.T) {
	t.Parallel()
	srv := stubLedger(t, "/icrc1_transfer", map[string]any{
		"ok":  false,
		"err": map[string]string{"kind": "InsufficientFunds", "message": "balance too low"},
	})
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Transfer(context.Background(), types.TransferArg{To: types.Account{Owner: "abc"}, Amount: 1000})
	require.Error(t, err)
	var transferErr *types.TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, "InsufficientFunds", transferErr.Kind)
}

func TestBalanceOfParsesAmount(t *testing.T) {
	t.Parallel()
	balance := "9001"
	srv := stubLedger(t, "/icrc1_balance_of", map[string]any{"ok": true, "balance": balance})
	defer srv.Close()

	c := New(srv.URL)
	got, err := c.BalanceOf(context.Background(), types.Account{Owner: "abc"})
	require.NoError(t, err)
	assert.EqualValues(t, 9001, got)
}

func TestFeeParsesAmount(t *testing.T) {
	t.Parallel()
	fee := "1000"
	srv := stubLedger(t, "/icrc1_fee", map[string]any{"ok": true, "fee": fee})
	defer srv.Close()

	c := New(srv.URL)
	got, err := c.Fee(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1000, got)
}

func TestTransferHTTPErrorSurfaced(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Transfer(context.Background(), types.TransferArg{To: types.Account{Owner: "abc"}, Amount: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 500")
}
