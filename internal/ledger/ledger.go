// Package ledger implements the Ledger Client: the bridge's outbound calls
// to the ICRC-1 ledger that holds ckTON (spec.md §4.4 mint/burn flows). The
// ledger is modeled as an ordinary JSON-over-HTTP collaborator, following
// the same request/response handling shape as the teacher's monitor client,
// since no IC-native canister-to-canister transport exists outside an IC
// replica.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tonbridge/internal/types"
)

const maxResponseBytes = 1 << 20

// Client talks to the ICRC-1 ledger canister's HTTP-facing endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a Client against baseURL, the ledger canister's HTTP
// gateway address.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
}

type transferEnvelope struct {
	OK     bool                  `json:"ok"`
	Amount *string               `json:"amount,omitempty"`
	Err    *types.TransferError  `json:"err,omitempty"`
}

// Transfer calls icrc1_transfer with arg and returns the resulting block
// index, or the ledger's structured TransferError (spec.md §4.4: a mint
// failure here is logged and dropped; a burn failure here re-enqueues).
func (c *Client) Transfer(ctx context.Context, arg types.TransferArg) (uint64, error) {
	reqBody, err := json.Marshal(arg)
	if err != nil {
		return 0, fmt.Errorf("ledger: encode transfer arg: %w", err)
	}

	var env transferEnvelope
	if err := c.post(ctx, "/icrc1_transfer", reqBody, &env); err != nil {
		return 0, err
	}
	if !env.OK {
		if env.Err != nil {
			return 0, env.Err
		}
		return 0, fmt.Errorf("ledger: transfer rejected with no error detail")
	}
	if env.Amount == nil {
		return 0, fmt.Errorf("ledger: transfer ok but no block index returned")
	}
	var blockIndex uint64
	if _, err := fmt.Sscan(*env.Amount, &blockIndex); err != nil {
		return 0, fmt.Errorf("ledger: decode block index %q: %w", *env.Amount, err)
	}
	return blockIndex, nil
}

type balanceEnvelope struct {
	OK      bool    `json:"ok"`
	Balance *string `json:"balance,omitempty"`
}

// BalanceOf calls icrc1_balance_of for account.
func (c *Client) BalanceOf(ctx context.Context, account types.Account) (uint64, error) {
	reqBody, err := json.Marshal(account)
	if err != nil {
		return 0, fmt.Errorf("ledger: encode balance request: %w", err)
	}

	var env balanceEnvelope
	if err := c.post(ctx, "/icrc1_balance_of", reqBody, &env); err != nil {
		return 0, err
	}
	if !env.OK || env.Balance == nil {
		return 0, fmt.Errorf("ledger: balance query failed")
	}
	var balance uint64
	if _, err := fmt.Sscan(*env.Balance, &balance); err != nil {
		return 0, fmt.Errorf("ledger: decode balance %q: %w", *env.Balance, err)
	}
	return balance, nil
}

type feeEnvelope struct {
	OK  bool    `json:"ok"`
	Fee *string `json:"fee,omitempty"`
}

// Fee calls icrc1_fee and returns the ledger's advertised transfer fee.
// Supplemental addition (SPEC_FULL.md). Neither the reconciler nor
// admin_setup calls it: mints and burns apply the admin-configured
// CkTONTransferFee without comparing it to this value.
func (c *Client) Fee(ctx context.Context) (uint64, error) {
	var env feeEnvelope
	if err := c.post(ctx, "/icrc1_fee", nil, &env); err != nil {
		return 0, err
	}
	if !env.OK || env.Fee == nil {
		return 0, fmt.Errorf("ledger: fee query failed")
	}
	var fee uint64
	if _, err := fmt.Sscan(*env.Fee, &fee); err != nil {
		return 0, fmt.Errorf("ledger: decode fee %q: %w", *env.Fee, err)
	}
	return fee, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("ledger: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ledger: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("ledger: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ledger: http %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("ledger: decode response: %w", err)
	}
	return nil
}
