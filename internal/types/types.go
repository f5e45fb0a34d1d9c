// Package types holds the data model shared across the bridge: accounts,
// derivation paths, deployed wallets, pending tasks, and the wire shapes
// exchanged with the TON proxy and the ICRC-1 ledger.
package types

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Account pairs an owner principal with an optional 32-byte subaccount tag,
// identical to the ledger's own account model.
type Account struct {
	Owner      string  `json:"owner"`
	Subaccount *[32]byte `json:"subaccount,omitempty"`
}

// Key returns a stable map/lookup key for an Account. The owner is
// length-prefixed so that no value of Owner/Subaccount can forge another
// Account's key by embedding the separator.
func (a Account) Key() string {
	if a.Subaccount == nil {
		return fmt.Sprintf("%d:%s", len(a.Owner), a.Owner)
	}
	return fmt.Sprintf("%d:%s:%x", len(a.Owner), a.Owner, a.Subaccount[:])
}

// PrincipalToSubaccount derives the deposit subaccount the ledger holds a
// principal's bridge balance under (spec.md §4.4 Burn protocol step 5:
// "blake-like(caller)"), shared between the Bridge Controller and the
// reconciler so both compute the identical subaccount for a given caller.
func PrincipalToSubaccount(principal string) *[32]byte {
	sum := blake2b.Sum256([]byte(principal))
	return &sum
}

// DerivationPath is the ordered list of byte-string segments used for both
// public-key derivation and signing. Per spec it is always a single segment:
// utf8(owner_text) || subaccount_bytes?
type DerivationPath [][]byte

// PathFor builds the DerivationPath for an Account.
func PathFor(a Account) DerivationPath {
	seg := []byte(a.Owner)
	if a.Subaccount != nil {
		seg = append(append([]byte{}, seg...), a.Subaccount[:]...)
	}
	return DerivationPath{seg}
}

// DeployedWallet records a TON wallet the reconciler has confirmed live
// on-chain for a given Account. SequenceNumber is the last-observed seqno;
// it is never authoritative for message construction.
type DeployedWallet struct {
	TONAddress     string `json:"ton_address"`
	SequenceNumber uint64 `json:"sequence_number"`
}

// AccountState models the per-account state machine from spec.md §4.5.
type AccountState int

const (
	StateNascent AccountState = iota
	StateDeployPending
	StateDeployed
)

func (s AccountState) String() string {
	switch s {
	case StateNascent:
		return "nascent"
	case StateDeployPending:
		return "deploy_pending"
	case StateDeployed:
		return "deployed"
	default:
		return "unknown"
	}
}

// TaskKind tags the PendingTask variant.
type TaskKind int

const (
	TaskDeployWallet TaskKind = iota
	TaskMint
	TaskBurn
)

func (k TaskKind) String() string {
	switch k {
	case TaskDeployWallet:
		return "deploy_wallet"
	case TaskMint:
		return "mint"
	case TaskBurn:
		return "burn"
	default:
		return "unknown"
	}
}

// MaxRetries is the retry ceiling shared by every task kind (spec.md §3).
const MaxRetries = 10

// PendingTask is the tagged variant the reconciler pattern-matches on. Only
// the fields relevant to Kind are populated; this mirrors a Rust-style sum
// type as closely as a single Go struct reasonably can (spec.md §9 prefers a
// sum type over a trait object — in Go that is a closed, kind-tagged struct
// rather than an interface with dynamic dispatch).
type PendingTask struct {
	ID    uint64   `json:"id"`
	Kind  TaskKind `json:"kind"`
	Retry int      `json:"retry"`

	// DeployWallet
	Account    Account `json:"account,omitempty"`
	TONAddress string  `json:"ton_address,omitempty"`

	// Mint
	TargetAccount     Account `json:"target_account,omitempty"`
	Amount            uint64  `json:"amount,omitempty"`
	MessageHash       string  `json:"message_hash,omitempty"`
	SourceTONAddress  string  `json:"source_ton_address,omitempty"`

	// Burn
	CallerPrincipal        string `json:"caller_principal,omitempty"`
	AppTONAddress          string `json:"app_ton_address,omitempty"`
	DestinationTONAddress  string `json:"destination_ton_address,omitempty"`

	EnqueuedAt    time.Time `json:"enqueued_at"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
}

// --- TON proxy wire format (spec.md §6) ---

// ProxyRequest is the envelope sent to the idempotent HTTP proxy.
type ProxyRequest struct {
	IdempotencyKey  string     `json:"idempotency_key"`
	DestinationURL  string     `json:"destination_url"`
	Method          string     `json:"method"`
	Headers         [][2]string `json:"headers"`
	Body            any        `json:"body,omitempty"`
}

// ProxyEnvelope is the generic response envelope the proxy returns.
type ProxyEnvelope struct {
	OK      bool            `json:"ok"`
	Code    *int            `json:"code,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Result  RawMessage      `json:"result,omitempty"`
}

// RawMessage defers JSON decoding of the result field, matching how
// different TON RPC methods return differently-shaped results.
type RawMessage = json.RawMessage

// TonWalletInfo is the result shape of getWalletInformation.
type TonWalletInfo struct {
	Balance      string `json:"balance"`
	Wallet       bool   `json:"wallet"`
	Seqno        *uint64 `json:"seqno,omitempty"`
	AccountState string `json:"account_state"`
}

// Msg is a single in/out message inside a TonTransaction.
type Msg struct {
	BodyHash    string `json:"body_hash"`
	Hash        string `json:"hash"`
	Value       string `json:"value"`
	Destination string `json:"destination"`
}

// TonTransaction is one entry of getTransactions.
type TonTransaction struct {
	InMsg   Msg   `json:"in_msg"`
	OutMsgs []Msg `json:"out_msgs"`
}

// SendBocResult is the result shape of sendBocReturnHash.
type SendBocResult struct {
	Hash string `json:"hash"`
}

// --- ICRC-1 ledger wire format (spec.md §6) ---

// TransferArg mirrors the ledger's icrc1_transfer argument, restricted to
// the fields this bridge ever sets: no fee override, no memo, no
// created_at_time.
type TransferArg struct {
	FromSubaccount *[32]byte `json:"from_subaccount,omitempty"`
	To             Account   `json:"to"`
	Amount         uint64    `json:"amount"`
}

// TransferError is the ledger's icrc1_transfer error variant, narrowed to
// the fields the bridge inspects.
type TransferError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *TransferError) Error() string {
	if e.Message != "" {
		return e.Kind + ": " + e.Message
	}
	return e.Kind
}
