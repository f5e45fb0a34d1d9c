package bridge

import (
	"sync"

	"tonbridge/internal/types"
)

// WalletRegistry is the process-wide DeployedWallet map (spec.md §3),
// guarded per spec.md §5: borrows never span a suspension point.
type WalletRegistry struct {
	mu    sync.RWMutex
	byKey map[string]types.DeployedWallet
}

// NewWalletRegistry returns an empty registry.
func NewWalletRegistry() *WalletRegistry {
	return &WalletRegistry{byKey: make(map[string]types.DeployedWallet)}
}

// Put records or overwrites the deployed wallet for account. Satisfies
// internal/queue.DeployedWallets.
func (w *WalletRegistry) Put(account types.Account, wallet types.DeployedWallet) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.byKey[account.Key()] = wallet
}

// Get looks up the deployed wallet for account, if any.
func (w *WalletRegistry) Get(account types.Account) (types.DeployedWallet, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	dw, ok := w.byKey[account.Key()]
	return dw, ok
}

// Count reports how many accounts have a confirmed deployed wallet.
func (w *WalletRegistry) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.byKey)
}
