// Package api exposes the Bridge Controller's operations over HTTP using
// chi (a direct dependency of the pack's orbas1-Synnergy gateway stack),
// plus the ambient /healthz and /metrics endpoints every long-running
// daemon in the pack carries.
package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"tonbridge/internal/bridge"
	"tonbridge/internal/tonrpc"
	"tonbridge/internal/types"
	"tonbridge/internal/version"
)

// principalHeader stands in for the IC message envelope's caller principal,
// since this is a classic HTTP daemon rather than a canister (SPEC_FULL.md
// ambient stack).
const principalHeader = "X-Principal"

// NewRouter builds the full HTTP surface.
func NewRouter(ctrl *bridge.Controller, rpc *tonrpc.Client, minterAddr func() string, log *logrus.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", healthzHandler(rpc, minterAddr))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/generate_ton_address", generateTonAddressHandler(ctrl))
		r.Get("/get_ton_wallet_address", getTonWalletAddressHandler(ctrl))
		r.Get("/get_deposit_address", getDepositAddressHandler(ctrl))
		r.Post("/deploy_ton_wallet", deployTonWalletHandler(ctrl))
		r.Post("/destroy_ton_wallet", destroyTonWalletHandler(ctrl))
		r.Post("/mint", mintHandler(ctrl))
		r.Post("/withdraw_native", withdrawNativeHandler(ctrl))
		r.Get("/wallet_deployed", walletDeployedHandler(ctrl))
		r.Get("/wallet_count", walletCountHandler(ctrl))
		r.Get("/ledger_id", ledgerIDHandler(ctrl))
		r.Get("/minter_ton_address", minterTonAddressHandler(ctrl))
		r.Post("/admin_setup", adminSetupHandler(ctrl))
		r.Post("/manual_mint", manualMintHandler(ctrl))
	})

	return r
}

func healthzHandler(rpc *tonrpc.Client, minterAddr func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr := minterAddr()
		status := "ok"
		if addr != "" {
			if err := rpc.Healthcheck(r.Context(), addr); err != nil {
				status = "degraded"
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  status,
			"version": version.Version,
		})
	}
}

func principalFrom(r *http.Request) string {
	return r.Header.Get(principalHeader)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func subaccountFromQuery(r *http.Request) (*[32]byte, error) {
	return parseSubaccountHex(r.URL.Query().Get("subaccount"))
}

var errInvalidSubaccount = errors.New("api: subaccount must be 32 bytes hex-encoded")

func parseSubaccountHex(hexStr string) (*[32]byte, error) {
	if hexStr == "" {
		return nil, nil
	}
	decoded, err := hex.DecodeString(hexStr)
	if err != nil || len(decoded) != 32 {
		return nil, errInvalidSubaccount
	}
	var out [32]byte
	copy(out[:], decoded)
	return &out, nil
}

func accountFromJSON(a accountJSON) types.Account {
	return types.Account{Owner: a.Owner, Subaccount: a.subaccountBytes()}
}

type accountJSON struct {
	Owner      string `json:"owner"`
	Subaccount string `json:"subaccount,omitempty"`
}

func (a accountJSON) subaccountBytes() *[32]byte {
	sub, err := parseSubaccountHex(a.Subaccount)
	if err != nil {
		return nil
	}
	return sub
}
