package queue

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonbridge/internal/types"
)

func TestQueueFIFOOrder(t *testing.T) {
	t.Parallel()

	q := New()
	q.Push(types.PendingTask{Kind: types.TaskMint, MessageHash: "a"})
	q.Push(types.PendingTask{Kind: types.TaskMint, MessageHash: "b"})
	q.Push(types.PendingTask{Kind: types.TaskMint, MessageHash: "c"})

	batch := q.PopBatch(2)
	require.Len(t, batch, 2)
	assert.Equal(t, "a", batch[0].MessageHash)
	assert.Equal(t, "b", batch[1].MessageHash)
	assert.Equal(t, 1, q.Len())
}

func TestQueuePopBatchStableIDs(t *testing.T) {
	t.Parallel()

	q := New()
	q.Push(types.PendingTask{Kind: types.TaskDeployWallet})
	q.Push(types.PendingTask{Kind: types.TaskDeployWallet})

	batch := q.PopBatch(10)
	require.Len(t, batch, 2)
	assert.NotEqual(t, batch[0].ID, batch[1].ID)
	assert.NotZero(t, batch[0].ID)
}

type fakeRPC struct {
	mu      sync.Mutex
	info    map[string]*types.TonWalletInfo
	txs     map[string][]types.TonTransaction
	infoErr error
}

func (f *fakeRPC) GetWalletInfo(ctx context.Context, address string) (*types.TonWalletInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return f.info[address], nil
}

func (f *fakeRPC) GetTransactions(ctx context.Context, address string) ([]types.TonTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txs[address], nil
}

type fakeLedger struct {
	mu        sync.Mutex
	transfers []types.TransferArg
	err       error
}

func (f *fakeLedger) Transfer(ctx context.Context, arg types.TransferArg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.transfers = append(f.transfers, arg)
	return uint64(len(f.transfers)), nil
}

type fakeWallets struct {
	mu   sync.Mutex
	puts map[string]types.DeployedWallet
}

func (f *fakeWallets) Put(account types.Account, w types.DeployedWallet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.puts == nil {
		f.puts = map[string]types.DeployedWallet{}
	}
	f.puts[account.Key()] = w
}

func newTestReconciler(rpc TonRPC, ledger Ledger, wallets DeployedWallets) (*Queue, *Reconciler) {
	q := New()
	log := logrus.New()
	log.SetOutput(io.Discard)
	r := NewReconciler(q, rpc, ledger, wallets, nil, log, time.Millisecond, 8, func() uint64 { return 1000 })
	return q, r
}

func TestAdvanceDeployWalletRetriesUntilLive(t *testing.T) {
	t.Parallel()

	seqno := uint64(3)
	rpc := &fakeRPC{info: map[string]*types.TonWalletInfo{
		"addr1": {Wallet: false},
	}}
	wallets := &fakeWallets{}
	q, r := newTestReconciler(rpc, &fakeLedger{}, wallets)

	task := types.PendingTask{Kind: types.TaskDeployWallet, Account: types.Account{Owner: "user-1"}, TONAddress: "addr1"}
	r.advance(context.Background(), task)
	require.Equal(t, 1, q.Len(), "not-yet-deployed should re-enqueue")

	popped := q.PopBatch(1)[0]
	assert.Equal(t, 1, popped.Retry)

	rpc.info["addr1"] = &types.TonWalletInfo{Wallet: true, Seqno: &seqno}
	r.advance(context.Background(), popped)
	assert.Equal(t, 0, q.Len(), "deployed wallet should complete, not re-enqueue")
	assert.Equal(t, types.DeployedWallet{TONAddress: "addr1", SequenceNumber: 3}, wallets.puts[types.Account{Owner: "user-1"}.Key()])
}

func TestAdvanceMintDoesNotDoubleSpendSameHash(t *testing.T) {
	t.Parallel()

	rpc := &fakeRPC{txs: map[string][]types.TonTransaction{
		"src": {{InMsg: types.Msg{Hash: "h1"}}},
	}}
	ledger := &fakeLedger{}
	_, r := newTestReconciler(rpc, ledger, &fakeWallets{})

	task := types.PendingTask{
		Kind:             types.TaskMint,
		TargetAccount:    types.Account{Owner: "user-1"},
		Amount:           5000,
		MessageHash:      "h1",
		SourceTONAddress: "src",
	}

	r.advance(context.Background(), task)
	r.advance(context.Background(), task)

	assert.Len(t, ledger.transfers, 1, "the same message hash must never settle twice")
	assert.Equal(t, uint64(4000), ledger.transfers[0].Amount)
}

func TestAdvanceMintDoesNotReenqueueOnLedgerFailure(t *testing.T) {
	t.Parallel()

	rpc := &fakeRPC{txs: map[string][]types.TonTransaction{
		"src": {{InMsg: types.Msg{Hash: "h1"}}},
	}}
	ledger := &fakeLedger{err: errors.New("ledger rejected")}
	q, r := newTestReconciler(rpc, ledger, &fakeWallets{})

	task := types.PendingTask{
		Kind:             types.TaskMint,
		TargetAccount:    types.Account{Owner: "user-1"},
		Amount:           5000,
		MessageHash:      "h1",
		SourceTONAddress: "src",
	}
	r.advance(context.Background(), task)
	assert.Equal(t, 0, q.Len(), "mint must not re-enqueue on ledger failure")
}

func TestAdvanceMintReenqueuesWhenTxNotObserved(t *testing.T) {
	t.Parallel()

	rpc := &fakeRPC{txs: map[string][]types.TonTransaction{}}
	q, r := newTestReconciler(rpc, &fakeLedger{}, &fakeWallets{})

	task := types.PendingTask{Kind: types.TaskMint, MessageHash: "missing", SourceTONAddress: "src", Amount: 5000}
	r.advance(context.Background(), task)
	assert.Equal(t, 1, q.Len())
}

func TestAdvanceBurnReenqueuesOnLedgerFailure(t *testing.T) {
	t.Parallel()

	rpc := &fakeRPC{txs: map[string][]types.TonTransaction{
		"app-addr": {{InMsg: types.Msg{Hash: "h1"}, OutMsgs: []types.Msg{{Destination: "dest"}}}},
	}}
	ledger := &fakeLedger{err: errors.New("ledger down")}
	q, r := newTestReconciler(rpc, ledger, &fakeWallets{})

	task := types.PendingTask{
		Kind:                  types.TaskBurn,
		CallerPrincipal:       "user-1",
		AppTONAddress:         "app-addr",
		DestinationTONAddress: "dest",
		MessageHash:           "h1",
		Amount:                5000,
	}
	r.advance(context.Background(), task)
	require.Equal(t, 1, q.Len(), "burn must re-enqueue on ledger failure, unlike mint")
	assert.Equal(t, 1, q.PopBatch(1)[0].Retry)
}

func TestTaskDroppedAfterRetryExceeded(t *testing.T) {
	t.Parallel()

	q, r := newTestReconciler(&fakeRPC{}, &fakeLedger{}, &fakeWallets{})
	task := types.PendingTask{Kind: types.TaskMint, Retry: types.MaxRetries + 1}
	r.advance(context.Background(), task)
	assert.Equal(t, 0, q.Len())
}
