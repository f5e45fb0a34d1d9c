// Package tonrpc implements the TON RPC Client (spec.md §4.2): read/send
// operations against the TON JSON-RPC, fronted by an idempotent HTTP proxy
// so that replicas observe byte-identical responses.
package tonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"tonbridge/internal/types"
)

// maxResponseBytes caps the proxy response size (spec.md §4.2, §5).
const maxResponseBytes = 1_000_000

// Client is the idempotent-proxy-fronted TON RPC client.
type Client struct {
	proxyURL    string
	proxyAPIKey string
	tonRPCURL   string
	tonAPIKey   string
	http        *http.Client
}

// New constructs a Client. proxyURL is the idempotent HTTP proxy endpoint;
// tonRPCURL is the upstream TON JSON-RPC base the proxy forwards to.
func New(proxyURL, proxyAPIKey, tonRPCURL, tonAPIKey string) *Client {
	return &Client{
		proxyURL:    proxyURL,
		proxyAPIKey: proxyAPIKey,
		tonRPCURL:   tonRPCURL,
		tonAPIKey:   tonAPIKey,
		http:        &http.Client{Timeout: 30 * time.Second},
	}
}

// do builds a ProxyRequest with a fresh idempotency key, POSTs it to the
// proxy (retrying the transport hop itself — not the underlying TON
// semantics — a bounded number of times, since the proxy's own guarantee is
// that retrying with the same key is safe), and decodes the generic
// envelope. Non-2xx HTTP responses surface as errors (spec.md §4.2 step 4).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*types.ProxyEnvelope, error) {
	destURL := c.tonRPCURL + path
	if len(query) > 0 {
		destURL += "?" + query.Encode()
	}

	headers := [][2]string{
		{"X-API-Key", c.tonAPIKey},
	}
	if body != nil {
		headers = append(headers, [2]string{"Content-Type", "application/json"})
	}

	preq := types.ProxyRequest{
		IdempotencyKey: uuid.NewString(),
		DestinationURL: destURL,
		Method:         method,
		Headers:        headers,
		Body:           body,
	}

	reqBytes, err := json.Marshal(preq)
	if err != nil {
		return nil, fmt.Errorf("tonrpc: encode proxy request: %w", err)
	}

	var respBody []byte
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.proxyURL, bytes.NewReader(reqBytes))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("tonrpc: build proxy request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")
			if c.proxyAPIKey != "" {
				req.Header.Set("X-Proxy-Api-Key", c.proxyAPIKey)
			}

			resp, err := c.http.Do(req)
			if err != nil {
				return fmt.Errorf("tonrpc: proxy request failed: %w", err)
			}
			defer resp.Body.Close()

			b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			if err != nil {
				return fmt.Errorf("tonrpc: read proxy response: %w", err)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return fmt.Errorf("tonrpc: proxy http %d: %s", resp.StatusCode, string(b))
			}
			respBody = b
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
	)
	if err != nil {
		return nil, err
	}

	var env types.ProxyEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("tonrpc: decode envelope: %w", err)
	}
	return &env, nil
}

// GetWalletInfo calls getWalletInformation for address.
func (c *Client) GetWalletInfo(ctx context.Context, address string) (*types.TonWalletInfo, error) {
	env, err := c.do(ctx, http.MethodGet, "/getWalletInformation", url.Values{"address": {address}}, nil)
	if err != nil {
		return nil, err
	}
	if !env.OK {
		return nil, fmt.Errorf("tonrpc: getWalletInformation: %s", envelopeError(env))
	}
	var info types.TonWalletInfo
	if err := json.Unmarshal(env.Result, &info); err != nil {
		return nil, fmt.Errorf("tonrpc: decode wallet info: %w", err)
	}
	return &info, nil
}

// GetTransactions calls getTransactions for address.
func (c *Client) GetTransactions(ctx context.Context, address string) ([]types.TonTransaction, error) {
	env, err := c.do(ctx, http.MethodGet, "/getTransactions", url.Values{"address": {address}}, nil)
	if err != nil {
		return nil, err
	}
	if !env.OK {
		return nil, fmt.Errorf("tonrpc: getTransactions: %s", envelopeError(env))
	}
	var txs []types.TonTransaction
	if err := json.Unmarshal(env.Result, &txs); err != nil {
		return nil, fmt.Errorf("tonrpc: decode transactions: %w", err)
	}
	return txs, nil
}

// SendBoc calls sendBocReturnHash with the given base64-encoded BoC.
func (c *Client) SendBoc(ctx context.Context, bocBase64 string) (*types.SendBocResult, error) {
	env, err := c.do(ctx, http.MethodPost, "/sendBocReturnHash", nil, map[string]string{"boc": bocBase64})
	if err != nil {
		return nil, err
	}
	if !env.OK {
		return nil, fmt.Errorf("tonrpc: sendBocReturnHash: %s", envelopeError(env))
	}
	var res types.SendBocResult
	if err := json.Unmarshal(env.Result, &res); err != nil {
		return nil, fmt.Errorf("tonrpc: decode send result: %w", err)
	}
	return &res, nil
}

// Healthcheck verifies the proxy/RPC path is reachable by checking the
// given address. Ambient addition (SPEC_FULL.md), not part of the spec's
// operation table.
func (c *Client) Healthcheck(ctx context.Context, address string) error {
	_, err := c.GetWalletInfo(ctx, address)
	return err
}

func envelopeError(env *types.ProxyEnvelope) string {
	if env.Error != "" {
		return env.Error
	}
	if env.Message != "" {
		return env.Message
	}
	return "unknown error"
}
