// Package signer implements the Signer Adapter (spec.md §4.1): it exposes a
// public key captured at construction time and an async Sign over a fixed
// derivation path, backed by a remote threshold-Ed25519 service.
package signer

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tonbridge/internal/config"
	"tonbridge/internal/types"
)

// KeyName selects the threshold key used for signing, matching the
// deployment environment (spec.md §4.1: "local test key, IC test key, or IC
// production key").
func KeyName(network config.Network, env config.Env) string {
	switch {
	case network == config.NetworkLocal:
		return "dfx_test_key"
	case env == config.EnvProd:
		return "key_1"
	default:
		return "test_key_1"
	}
}

// Adapter is the Signer Adapter interface the Wallet Builder depends on.
type Adapter interface {
	PublicKey() ed25519.PublicKey
	Path() types.DerivationPath
	Sign(ctx context.Context, msg []byte) ([]byte, error)
}

// thresholdAdapter calls out to a remote threshold-Ed25519 signing service
// over HTTP. No example in the retrieved pack implements a threshold
// signature client (it is an IC-specific primitive), so this transport is a
// minimal hand-rolled net/http + encoding/json client — see DESIGN.md.
type thresholdAdapter struct {
	pubKey  ed25519.PublicKey
	path    types.DerivationPath
	keyName string

	endpoint string
	http     *http.Client
}

var _ Adapter = (*thresholdAdapter)(nil)

// New constructs a Signer Adapter. pubKey must already have been fetched
// from the threshold service for path (spec.md §4.1: "the constructor
// captures a 32-byte Ed25519 public key ... previously fetched").
func New(endpoint string, pubKey ed25519.PublicKey, path types.DerivationPath, keyName string) (*thresholdAdapter, error) {
	if len(pubKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("signer: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pubKey))
	}
	return &thresholdAdapter{
		pubKey:   pubKey,
		path:     path,
		keyName:  keyName,
		endpoint: endpoint,
		http:     &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (a *thresholdAdapter) PublicKey() ed25519.PublicKey { return a.pubKey }
func (a *thresholdAdapter) Path() types.DerivationPath   { return a.path }

type signRequest struct {
	KeyName        string   `json:"key_name"`
	DerivationPath []string `json:"derivation_path"`
	MessageHex     string   `json:"message_hex"`
}

type signResponse struct {
	OK            bool   `json:"ok"`
	Error         string `json:"error,omitempty"`
	SignatureHex  string `json:"signature_hex"`
}

// Sign sends msg and the derivation path to the threshold service. Failure
// to obtain a signature surfaces as a plain textual error with no local
// recovery (spec.md §4.1); the Bridge Controller returns it to the requester.
func (a *thresholdAdapter) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	pathStrs := make([]string, len(a.path))
	for i, seg := range a.path {
		pathStrs[i] = hex.EncodeToString(seg)
	}

	reqBody, err := json.Marshal(signRequest{
		KeyName:        a.keyName,
		DerivationPath: pathStrs,
		MessageHex:     hex.EncodeToString(msg),
	})
	if err != nil {
		return nil, fmt.Errorf("signer: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/sign", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("signer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signer: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("signer: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("signer: http %d: %s", resp.StatusCode, string(body))
	}

	var out signResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("signer: decode response: %w", err)
	}
	if !out.OK {
		return nil, fmt.Errorf("signer: %s", out.Error)
	}

	sig, err := hex.DecodeString(out.SignatureHex)
	if err != nil {
		return nil, fmt.Errorf("signer: decode signature: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("signer: unexpected signature length %d", len(sig))
	}
	if !ed25519.Verify(a.pubKey, msg, sig) {
		return nil, fmt.Errorf("signer: returned signature failed local verification")
	}

	return sig, nil
}

// FetchPublicKey retrieves the public key for path from the threshold
// service under keyName. The Bridge Controller calls it on every
// generate_ton_address request, and the first time it builds a Signer
// Adapter for an Account (including the minter's own account in
// admin_setup); adapters are cached after that.
func FetchPublicKey(ctx context.Context, endpoint, keyName string, path types.DerivationPath) (ed25519.PublicKey, error) {
	pathStrs := make([]string, len(path))
	for i, seg := range path {
		pathStrs[i] = hex.EncodeToString(seg)
	}

	reqBody, err := json.Marshal(struct {
		KeyName        string   `json:"key_name"`
		DerivationPath []string `json:"derivation_path"`
	}{KeyName: keyName, DerivationPath: pathStrs})
	if err != nil {
		return nil, fmt.Errorf("signer: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/public_key", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("signer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := &http.Client{Timeout: 15 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signer: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("signer: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("signer: http %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		OK          bool   `json:"ok"`
		Error       string `json:"error,omitempty"`
		PublicKeyHex string `json:"public_key_hex"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("signer: decode response: %w", err)
	}
	if !out.OK {
		return nil, fmt.Errorf("signer: %s", out.Error)
	}

	pub, err := hex.DecodeString(out.PublicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("signer: decode public key: %w", err)
	}
	return ed25519.PublicKey(pub), nil
}
