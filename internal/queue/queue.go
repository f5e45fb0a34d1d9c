// Package queue implements the Pending Task Queue and Reconciler (spec.md
// §4.4): a FIFO of PendingTask, drained in bounded batches by a periodic
// timer, each task advanced by its own goroutine so that slow outcalls for
// one task never delay the others — the same channel/goroutine shape the
// teacher uses for its own per-wallet TransactionQueue, generalized from a
// single sequential worker to a bounded-concurrency batch drain.
package queue

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tonbridge/internal/metrics"
	"tonbridge/internal/types"
)

// TickInterval and BatchSize are the reconciler's defaults (spec.md §4.4);
// callers normally override both from config.Static.
const (
	TickInterval = 5 * time.Second
	BatchSize    = 8
)

// Queue is a FIFO of PendingTask guarded by a mutex. Per spec.md §5, no
// borrow of the internal list ever spans a suspension point: Pop/Push take
// the lock, mutate, and release before any outcall.
type Queue struct {
	mu   sync.Mutex
	list *list.List

	nextID uint64
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{list: list.New()}
}

// Push appends t to the back of the queue, assigning it a stable ID on
// first insertion (ID is preserved across re-enqueues for retry).
func (q *Queue) Push(t types.PendingTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t.ID == 0 {
		q.nextID++
		t.ID = q.nextID
	}
	q.list.PushBack(t)
}

// PopBatch removes and returns up to n tasks from the front of the queue.
func (q *Queue) PopBatch(n int) []types.PendingTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]types.PendingTask, 0, n)
	for i := 0; i < n; i++ {
		front := q.list.Front()
		if front == nil {
			break
		}
		out = append(out, q.list.Remove(front).(types.PendingTask))
	}
	return out
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.list.Len()
}

// TonRPC is the subset of internal/tonrpc.Client the reconciler depends on.
type TonRPC interface {
	GetWalletInfo(ctx context.Context, address string) (*types.TonWalletInfo, error)
	GetTransactions(ctx context.Context, address string) ([]types.TonTransaction, error)
}

// Ledger is the subset of internal/ledger.Client the reconciler depends on.
type Ledger interface {
	Transfer(ctx context.Context, arg types.TransferArg) (uint64, error)
}

// DeployedWallets is the subset of the deployed-wallet registry the
// reconciler mutates on a confirmed deploy.
type DeployedWallets interface {
	Put(account types.Account, w types.DeployedWallet)
}

// Reconciler drains the queue on a periodic timer and advances each popped
// task's protocol (spec.md §4.4).
type Reconciler struct {
	queue    *Queue
	rpc      TonRPC
	ledger   Ledger
	wallets  DeployedWallets
	metrics  *metrics.Metrics
	log      *logrus.Logger

	interval  time.Duration
	batchSize int

	ckTONTransferFee func() uint64

	// onDeployed, if set, is notified after a DeployWallet task completes,
	// letting the Bridge Controller advance its own per-account state
	// machine (spec.md §4.5) without the reconciler importing that package.
	onDeployed func(types.Account)

	settledMu    sync.Mutex
	settled      map[string]*list.Element
	settledOrder *list.List
}

// maxSettledHashes bounds the settled-hash set so a long-running process
// doesn't grow it forever: the set only needs to cover hashes that could
// still be in flight as duplicate/concurrent Mint tasks, not the daemon's
// entire lifetime history.
const maxSettledHashes = 100_000

// NewReconciler constructs a Reconciler. ckTONTransferFee is read lazily so
// the reconciler always uses the current admin-configured fee (spec.md §3).
func NewReconciler(q *Queue, rpc TonRPC, ledger Ledger, wallets DeployedWallets, m *metrics.Metrics, log *logrus.Logger, interval time.Duration, batchSize int, ckTONTransferFee func() uint64) *Reconciler {
	if interval <= 0 {
		interval = TickInterval
	}
	if batchSize <= 0 {
		batchSize = BatchSize
	}
	return &Reconciler{
		queue:            q,
		rpc:              rpc,
		ledger:           ledger,
		wallets:          wallets,
		metrics:          m,
		log:              log,
		interval:         interval,
		batchSize:        batchSize,
		ckTONTransferFee: ckTONTransferFee,
		settled:          make(map[string]*list.Element),
		settledOrder:     list.New(),
	}
}

// OnDeployed registers a callback fired after a DeployWallet task
// successfully completes.
func (r *Reconciler) OnDeployed(fn func(types.Account)) {
	r.onDeployed = fn
}

// Run blocks, ticking every r.interval and draining up to r.batchSize tasks
// concurrently per tick, until ctx is canceled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.drainOnce(ctx)
		}
	}
}

func (r *Reconciler) drainOnce(ctx context.Context) {
	batch := r.queue.PopBatch(r.batchSize)
	if r.metrics != nil {
		r.metrics.QueueDepth.Set(float64(r.queue.Len()))
	}
	if len(batch) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, t := range batch {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.advance(ctx, t)
		}()
	}
	wg.Wait()
}

// advance runs one task's protocol once and either drops it, completes it,
// or re-enqueues it with retry+1.
func (r *Reconciler) advance(ctx context.Context, t types.PendingTask) {
	if t.Retry > types.MaxRetries {
		r.log.WithFields(logrus.Fields{"kind": t.Kind, "id": t.ID}).Warn("dropping task: retry cap exceeded")
		if r.metrics != nil {
			r.metrics.TasksFailed.WithLabelValues(t.Kind.String()).Inc()
		}
		return
	}
	t.LastAttemptAt = time.Now()

	var err error
	switch t.Kind {
	case types.TaskDeployWallet:
		err = r.advanceDeployWallet(ctx, t)
	case types.TaskMint:
		err = r.advanceMint(ctx, t)
	case types.TaskBurn:
		err = r.advanceBurn(ctx, t)
	}

	if err != nil {
		t.Retry++
		r.log.WithFields(logrus.Fields{"kind": t.Kind, "id": t.ID, "retry": t.Retry}).WithError(err).Debug("re-enqueuing task")
		if r.metrics != nil {
			r.metrics.TasksRetried.WithLabelValues(t.Kind.String()).Inc()
		}
		r.queue.Push(t)
	}
}

// advanceDeployWallet implements spec.md §4.4's DeployWallet protocol. A
// nil return means "complete, do not re-enqueue"; non-nil means "retry".
func (r *Reconciler) advanceDeployWallet(ctx context.Context, t types.PendingTask) error {
	info, err := r.rpc.GetWalletInfo(ctx, t.TONAddress)
	if err != nil {
		return err
	}
	if !info.Wallet {
		return errNotYetDeployed
	}

	var seqno uint64
	if info.Seqno != nil {
		seqno = *info.Seqno
	}
	r.wallets.Put(t.Account, types.DeployedWallet{TONAddress: t.TONAddress, SequenceNumber: seqno})
	if r.onDeployed != nil {
		r.onDeployed(t.Account)
	}
	if r.metrics != nil {
		r.metrics.TasksSucceeded.WithLabelValues(t.Kind.String()).Inc()
	}
	return nil
}

// advanceMint implements spec.md §4.4's Mint protocol, including the
// settled-hash check that resolves the double-mint open question (§9):
// the hash is checked and recorded atomically, with no suspension between
// the check and the insert, before any ledger call is made.
func (r *Reconciler) advanceMint(ctx context.Context, t types.PendingTask) error {
	if !r.markSettledIfNew(t.MessageHash) {
		// already settled by a prior (possibly concurrent) delivery of this
		// same task; treat as complete without a second ledger call.
		if r.metrics != nil {
			r.metrics.TasksSucceeded.WithLabelValues(t.Kind.String()).Inc()
		}
		return nil
	}

	txs, err := r.rpc.GetTransactions(ctx, t.SourceTONAddress)
	if err != nil {
		r.unmarkSettled(t.MessageHash)
		return err
	}
	if !containsHash(txs, t.MessageHash) {
		r.unmarkSettled(t.MessageHash)
		return errMessageNotObserved
	}

	fee := r.ckTONTransferFee()
	if t.Amount <= fee {
		r.log.WithFields(logrus.Fields{"id": t.ID}).Error("mint amount does not cover transfer fee, dropping")
		return nil
	}

	_, err = r.ledger.Transfer(ctx, types.TransferArg{
		To:     t.TargetAccount,
		Amount: t.Amount - fee,
	})
	if err != nil {
		// spec.md §4.4/§9: ledger failures in Mint are logged and the task
		// completes without re-enqueue; the ledger is treated as
		// authoritative and synchronous.
		r.log.WithFields(logrus.Fields{"id": t.ID}).WithError(err).Error("mint transfer rejected by ledger")
		if r.metrics != nil {
			r.metrics.TasksFailed.WithLabelValues(t.Kind.String()).Inc()
		}
		return nil
	}

	if r.metrics != nil {
		r.metrics.TasksSucceeded.WithLabelValues(t.Kind.String()).Inc()
		r.metrics.MintedAmount.Add(float64(t.Amount - fee))
	}
	return nil
}

// advanceBurn implements spec.md §4.4's Burn protocol: the minter's own
// external message (sent from app_ton_address) is looked up in the
// minter's own transaction list, and the matching out_msg must be
// addressed to the caller's requested destination.
func (r *Reconciler) advanceBurn(ctx context.Context, t types.PendingTask) error {
	txs, err := r.rpc.GetTransactions(ctx, t.AppTONAddress)
	if err != nil {
		return err
	}
	tx, ok := findByHash(txs, t.MessageHash)
	if !ok {
		return errMessageNotObserved
	}
	if !addressedTo(tx, t.DestinationTONAddress) {
		return errDestinationMismatch
	}

	burnFromSubaccount := types.PrincipalToSubaccount(t.CallerPrincipal)
	_, err = r.ledger.Transfer(ctx, types.TransferArg{
		FromSubaccount: burnFromSubaccount,
		To:             types.Account{Owner: t.AppTONAddress},
		Amount:         t.Amount,
	})
	if err != nil {
		// Burn, unlike Mint, re-enqueues on ledger failure (spec.md §4.4
		// step 5) since the native TON transfer has already happened and
		// the ledger-side debit must eventually catch up.
		return err
	}

	if r.metrics != nil {
		r.metrics.TasksSucceeded.WithLabelValues(t.Kind.String()).Inc()
		r.metrics.BurnedAmount.Add(float64(t.Amount))
	}
	return nil
}

func (r *Reconciler) markSettledIfNew(hash string) bool {
	r.settledMu.Lock()
	defer r.settledMu.Unlock()
	if _, ok := r.settled[hash]; ok {
		return false
	}
	r.settled[hash] = r.settledOrder.PushBack(hash)
	for len(r.settled) > maxSettledHashes {
		oldest := r.settledOrder.Front()
		if oldest == nil {
			break
		}
		r.settledOrder.Remove(oldest)
		delete(r.settled, oldest.Value.(string))
	}
	if r.metrics != nil {
		r.metrics.SettledHashes.Set(float64(len(r.settled)))
	}
	return true
}

func (r *Reconciler) unmarkSettled(hash string) {
	r.settledMu.Lock()
	defer r.settledMu.Unlock()
	if elem, ok := r.settled[hash]; ok {
		r.settledOrder.Remove(elem)
		delete(r.settled, hash)
	}
	if r.metrics != nil {
		r.metrics.SettledHashes.Set(float64(len(r.settled)))
	}
}

func containsHash(txs []types.TonTransaction, hash string) bool {
	_, ok := findByHash(txs, hash)
	return ok
}

func findByHash(txs []types.TonTransaction, hash string) (types.TonTransaction, bool) {
	for _, tx := range txs {
		if tx.InMsg.Hash == hash {
			return tx, true
		}
	}
	return types.TonTransaction{}, false
}

func addressedTo(tx types.TonTransaction, dest string) bool {
	for _, out := range tx.OutMsgs {
		if out.Destination == dest {
			return true
		}
	}
	return false
}
