package api

import (
	"net/http"

	"tonbridge/internal/bridge"
	"tonbridge/internal/types"
)

func generateTonAddressHandler(ctrl *bridge.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := subaccountFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		addr, err := ctrl.GenerateTonAddress(r.Context(), r.URL.Query().Get("owner"), sub)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"address": addr})
	}
}

func getTonWalletAddressHandler(ctrl *bridge.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := subaccountFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		addr, err := ctrl.GetTonWalletAddress(principalFrom(r), r.URL.Query().Get("owner"), sub)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"address": addr})
	}
}

func getDepositAddressHandler(ctrl *bridge.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := ctrl.GetDepositAddress(principalFrom(r), r.URL.Query().Get("owner"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

type deployTonWalletRequest struct {
	Subaccount string `json:"subaccount,omitempty"`
	ExpireAt   int64  `json:"expire_at,omitempty"`
}

func deployTonWalletHandler(ctrl *bridge.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deployTonWalletRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sub, err := parseSubaccountHex(req.Subaccount)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		hash, err := ctrl.DeployTonWallet(r.Context(), principalFrom(r), sub, req.ExpireAt)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"hash": hash})
	}
}

type destroyTonWalletRequest struct {
	ToAddr     string `json:"to_addr"`
	Subaccount string `json:"subaccount,omitempty"`
	ExpireAt   int64  `json:"expire_at,omitempty"`
}

func destroyTonWalletHandler(ctrl *bridge.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req destroyTonWalletRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sub, err := parseSubaccountHex(req.Subaccount)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		hash, err := ctrl.DestroyTonWallet(r.Context(), principalFrom(r), req.ToAddr, sub, req.ExpireAt)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"hash": hash})
	}
}

type mintRequest struct {
	ToAccount  accountJSON `json:"to_account"`
	Amount     uint64      `json:"amount"`
	Subaccount string      `json:"subaccount,omitempty"`
	ExpireAt   int64       `json:"expire_at,omitempty"`
}

func mintHandler(ctrl *bridge.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mintRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sub, err := parseSubaccountHex(req.Subaccount)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		hash, err := ctrl.Mint(r.Context(), principalFrom(r), accountFromJSON(req.ToAccount), req.Amount, sub, req.ExpireAt)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"hash": hash})
	}
}

type withdrawNativeRequest struct {
	ToAddr string `json:"to_addr"`
	Amount uint64 `json:"amount"`
}

func withdrawNativeHandler(ctrl *bridge.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req withdrawNativeRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		hash, err := ctrl.WithdrawNative(r.Context(), principalFrom(r), req.ToAddr, req.Amount)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"hash": hash})
	}
}

func walletDeployedHandler(ctrl *bridge.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := subaccountFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		account := types.Account{Owner: r.URL.Query().Get("owner"), Subaccount: sub}
		writeJSON(w, http.StatusOK, map[string]bool{"deployed": ctrl.WalletDeployed(account)})
	}
}

func walletCountHandler(ctrl *bridge.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"count": ctrl.WalletCount()})
	}
}

func ledgerIDHandler(ctrl *bridge.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"ledger_id": ctrl.LedgerID()})
	}
}

func minterTonAddressHandler(ctrl *bridge.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"minter_ton_address": ctrl.MinterTonAddress()})
	}
}

type adminSetupRequest struct {
	LedgerCanister  string `json:"ledger_canister"`
	IndexerCanister string `json:"indexer_canister"`
	CkTONFee        uint64 `json:"ckton_fee,omitempty"`
	TONFee          uint64 `json:"ton_fee,omitempty"`
}

func adminSetupHandler(ctrl *bridge.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req adminSetupRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		addr, err := ctrl.AdminSetup(r.Context(), principalFrom(r), req.LedgerCanister, req.IndexerCanister, req.CkTONFee, req.TONFee)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"app_ton_address": addr})
	}
}

type manualMintRequest struct {
	MessageHash      string      `json:"message_hash"`
	SourceTONAddress string      `json:"source_ton_address"`
	TargetAccount    accountJSON `json:"target_account"`
	Amount           uint64      `json:"amount"`
}

func manualMintHandler(ctrl *bridge.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req manualMintRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		err := ctrl.ManualMint(r.Context(), principalFrom(r), req.MessageHash, req.SourceTONAddress, accountFromJSON(req.TargetAccount), req.Amount)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// statusFor maps a controller error to an HTTP status, following spec.md
// §7's taxonomy: the controller's authentication sentinels map to 401 and
// its precondition sentinels to 400. Every other error maps to 500,
// including the fee-threshold and address-parse rejections, which carry no
// sentinel.
func statusFor(err error) int {
	switch err {
	case bridge.ErrAnonymous, bridge.ErrNotController:
		return http.StatusUnauthorized
	case bridge.ErrWalletNotDeployed, bridge.ErrInsufficientTON, bridge.ErrSeqnoTooLarge, bridge.ErrNotInitialized, bridge.ErrAccountNotDeployed, bridge.ErrAlreadyInitialized:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
