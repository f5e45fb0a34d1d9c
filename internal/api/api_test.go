package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonbridge/internal/bridge"
	"tonbridge/internal/config"
	"tonbridge/internal/ledger"
	"tonbridge/internal/queue"
	"tonbridge/internal/tonrpc"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Static{
		Network:              config.NetworkLocal,
		Env:                  config.EnvDev,
		SignerURL:            "http://signer.invalid",
		ControllerPrincipals: []string{"controller-principal"},
	}
	state := config.NewState()
	log := logrus.New()
	log.SetOutput(io.Discard)

	rpc := tonrpc.New("http://proxy.invalid", "", "http://rpc.invalid", "")
	ledgerClient := ledger.New("http://ledger.invalid")
	q := queue.New()
	wallets := bridge.NewWalletRegistry()
	ctrl := bridge.New(cfg, state, log, rpc, ledgerClient, q, wallets)

	return NewRouter(ctrl, rpc, ctrl.MinterTonAddress, log)
}

func TestHealthzOKWhenNoMinterAddressYet(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestGetDepositAddressRejectsAnonymousCaller(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/get_deposit_address?owner=alice", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetDepositAddressReturnsAccount(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/get_deposit_address?owner=alice", nil)
	req.Header.Set(principalHeader, "alice")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"owner"`)
}

func TestWalletCountStartsAtZero(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/wallet_count", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":0}`, rec.Body.String())
}

func TestDeployTonWalletRejectsMalformedSubaccount(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	body := `{"subaccount":"zz"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/deploy_ton_wallet", strings.NewReader(body))
	req.Header.Set(principalHeader, "alice")
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseSubaccountHexRejectsBadLength(t *testing.T) {
	t.Parallel()
	_, err := parseSubaccountHex("abcd")
	assert.ErrorIs(t, err, errInvalidSubaccount)
}

func TestParseSubaccountHexAcceptsEmpty(t *testing.T) {
	t.Parallel()
	sub, err := parseSubaccountHex("")
	require.NoError(t, err)
	assert.Nil(t, sub)
}
