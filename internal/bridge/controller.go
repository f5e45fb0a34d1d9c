// Package bridge implements the Bridge Controller (spec.md §4.4, §4.5):
// the request-facing surface that validates callers, issues TON messages
// through the Wallet Builder/Signer Adapter/TON RPC Client, enqueues
// reconciliation tasks, and answers the controller's read-only queries.
//
// Per-account signer construction mirrors the teacher's
// getWalletManager/getOrCreateQueue double-checked-lock cache: deriving a
// threshold public key is a network round trip, so once an account's
// Signer Adapter has been built it is kept for reuse.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"

	"tonbridge/internal/config"
	"tonbridge/internal/ledger"
	"tonbridge/internal/queue"
	"tonbridge/internal/signer"
	"tonbridge/internal/tonrpc"
	"tonbridge/internal/types"
	"tonbridge/internal/wallet"
)

var (
	ErrAnonymous        = fmt.Errorf("bridge: anonymous caller is not permitted")
	ErrNotController    = fmt.Errorf("bridge: caller is not a host-level controller")
	ErrWalletNotDeployed = fmt.Errorf("bridge: wallet is not deployed")
	ErrInsufficientTON  = fmt.Errorf("bridge: insufficient balance")
	ErrSeqnoTooLarge    = fmt.Errorf("bridge: sequence number too large")
	ErrNotInitialized   = fmt.Errorf("bridge: admin_setup has not run yet")
	ErrAlreadyInitialized = fmt.Errorf("bridge: admin_setup has already run")
	ErrAccountNotDeployed = fmt.Errorf("bridge: account must be Deployed to mint in production")
)

// Controller implements every operation in spec.md §4.4's controller table.
type Controller struct {
	cfg     *config.Static
	state   *config.State
	log     *logrus.Logger

	rpc    *tonrpc.Client
	ledger *ledger.Client
	queue  *queue.Queue
	wallets *WalletRegistry

	signerCacheMu sync.Mutex
	signerCache   map[string]signer.Adapter

	accountStateMu sync.Mutex
	accountState   map[string]types.AccountState
}

// New constructs a Controller.
func New(cfg *config.Static, state *config.State, log *logrus.Logger, rpc *tonrpc.Client, ledgerClient *ledger.Client, q *queue.Queue, wallets *WalletRegistry) *Controller {
	return &Controller{
		cfg:          cfg,
		state:        state,
		log:          log,
		rpc:          rpc,
		ledger:       ledgerClient,
		queue:        q,
		wallets:      wallets,
		signerCache:  make(map[string]signer.Adapter),
		accountState: make(map[string]types.AccountState),
	}
}

func (c *Controller) signerFor(ctx context.Context, account types.Account) (signer.Adapter, error) {
	key := account.Key()

	c.signerCacheMu.Lock()
	if adp, ok := c.signerCache[key]; ok {
		c.signerCacheMu.Unlock()
		return adp, nil
	}
	c.signerCacheMu.Unlock()

	path := types.PathFor(account)
	keyName := signer.KeyName(c.cfg.Network, c.cfg.Env)
	pub, err := signer.FetchPublicKey(ctx, c.cfg.SignerURL, keyName, path)
	if err != nil {
		return nil, fmt.Errorf("bridge: fetch public key: %w", err)
	}
	adp, err := signer.New(c.cfg.SignerURL, pub, path, keyName)
	if err != nil {
		return nil, fmt.Errorf("bridge: construct signer: %w", err)
	}

	c.signerCacheMu.Lock()
	defer c.signerCacheMu.Unlock()
	if existing, ok := c.signerCache[key]; ok {
		return existing, nil
	}
	c.signerCache[key] = adp
	return adp, nil
}

func requireCaller(caller string) error {
	if caller == "" {
		return ErrAnonymous
	}
	return nil
}

func (c *Controller) requireController(caller string) error {
	if caller == "" {
		return ErrAnonymous
	}
	if !c.cfg.IsController(caller) {
		return ErrNotController
	}
	return nil
}

// GenerateTonAddress is spec.md §4.4's generate_ton_address: public, no
// state change, pure derivation.
func (c *Controller) GenerateTonAddress(ctx context.Context, owner string, subaccount *[32]byte) (string, error) {
	account := types.Account{Owner: owner, Subaccount: subaccount}
	path := types.PathFor(account)
	pub, err := signer.FetchPublicKey(ctx, c.cfg.SignerURL, signer.KeyName(c.cfg.Network, c.cfg.Env), path)
	if err != nil {
		return "", fmt.Errorf("bridge: fetch public key: %w", err)
	}
	addr, err := wallet.DeriveAddress(pub, c.cfg.Network)
	if err != nil {
		return "", err
	}
	return wallet.FormatAddress(addr, c.cfg.Env), nil
}

// GetTonWalletAddress is get_ton_wallet_address: authenticated lookup in
// DeployedWallet.
func (c *Controller) GetTonWalletAddress(caller string, owner string, subaccount *[32]byte) (string, error) {
	if err := requireCaller(caller); err != nil {
		return "", err
	}
	dw, ok := c.wallets.Get(types.Account{Owner: owner, Subaccount: subaccount})
	if !ok {
		return "", ErrWalletNotDeployed
	}
	return dw.TONAddress, nil
}

// GetDepositAddress is get_deposit_address: a textual (self,
// subaccount=principal_to_subaccount(owner)) pair.
func (c *Controller) GetDepositAddress(caller, owner string) (types.Account, error) {
	if err := requireCaller(caller); err != nil {
		return types.Account{}, err
	}
	snap := c.state.Snapshot()
	return types.Account{Owner: snap.AppTONAddress, Subaccount: types.PrincipalToSubaccount(owner)}, nil
}

// DeployTonWallet is deploy_ton_wallet: builds and sends the deploy BoC,
// then enqueues a DeployWallet reconciliation task.
func (c *Controller) DeployTonWallet(ctx context.Context, caller string, subaccount *[32]byte, expireAt int64) (string, error) {
	if err := requireCaller(caller); err != nil {
		return "", err
	}
	account := types.Account{Owner: caller, Subaccount: subaccount}

	adp, err := c.signerFor(ctx, account)
	if err != nil {
		return "", err
	}
	addr, err := wallet.DeriveAddress(adp.PublicKey(), c.cfg.Network)
	if err != nil {
		return "", err
	}

	msg, err := wallet.BuildDeployMessage(ctx, adp, expireAt)
	if err != nil {
		return "", fmt.Errorf("bridge: build deploy message: %w", err)
	}
	boc, err := wallet.ExternalMessageToBOC(msg)
	if err != nil {
		return "", err
	}
	res, err := c.rpc.SendBoc(ctx, boc)
	if err != nil {
		return "", fmt.Errorf("bridge: send deploy boc: %w", err)
	}
	c.log.WithFields(logrus.Fields{"account": account.Key(), "hash": res.Hash}).Info("sent wallet deploy message")

	c.setAccountState(account, types.StateDeployPending)
	c.queue.Push(types.PendingTask{
		Kind:       types.TaskDeployWallet,
		Account:    account,
		TONAddress: wallet.FormatAddress(addr, c.cfg.Env),
		EnqueuedAt: time.Now(),
	})
	return res.Hash, nil
}

// DestroyTonWallet is destroy_ton_wallet: builds and sends a transfer with
// send-mode 160 (carry all balance and destroy) to sweep funds to to_addr.
func (c *Controller) DestroyTonWallet(ctx context.Context, caller, toAddr string, subaccount *[32]byte, expireAt int64) (string, error) {
	if err := requireCaller(caller); err != nil {
		return "", err
	}
	account := types.Account{Owner: caller, Subaccount: subaccount}

	dw, ok := c.wallets.Get(account)
	if !ok {
		return "", ErrWalletNotDeployed
	}
	adp, err := c.signerFor(ctx, account)
	if err != nil {
		return "", err
	}
	src, err := wallet.DeriveAddress(adp.PublicKey(), c.cfg.Network)
	if err != nil {
		return "", err
	}
	dst, err := address.ParseAddr(toAddr)
	if err != nil {
		return "", fmt.Errorf("bridge: parse destination: %w", err)
	}

	// Seqno is not authoritative at rest: re-read it fresh immediately
	// before building the transfer.
	info, err := c.rpc.GetWalletInfo(ctx, dw.TONAddress)
	if err != nil {
		return "", fmt.Errorf("bridge: check wallet: %w", err)
	}
	var seqno uint64
	if info.Seqno != nil {
		seqno = *info.Seqno
	}
	if seqno >= 1<<32 {
		return "", ErrSeqnoTooLarge
	}

	msg, err := wallet.BuildTransferMessage(ctx, adp, src, dst, tlb.FromNanoTONU(0), uint32(seqno), wallet.SendModeCarryAndDestroy, "", expireAt)
	if err != nil {
		return "", fmt.Errorf("bridge: build destroy message: %w", err)
	}
	boc, err := wallet.ExternalMessageToBOC(msg)
	if err != nil {
		return "", err
	}
	res, err := c.rpc.SendBoc(ctx, boc)
	if err != nil {
		return "", fmt.Errorf("bridge: send destroy boc: %w", err)
	}
	return res.Hash, nil
}

// Mint is spec.md §4.4's mint: checks the caller's wallet exists on-chain
// with sufficient balance, sends TON from the caller's wallet to the
// minter, and enqueues a Mint task.
func (c *Controller) Mint(ctx context.Context, caller string, toAccount types.Account, amount uint64, subaccount *[32]byte, expireAt int64) (string, error) {
	if err := requireCaller(caller); err != nil {
		return "", err
	}
	snap := c.state.Snapshot()
	if !snap.Initialized {
		return "", ErrNotInitialized
	}
	if amount <= snap.CkTONTransferFee {
		return "", fmt.Errorf("bridge: amount must exceed the ckTON transfer fee of %d", snap.CkTONTransferFee)
	}

	account := types.Account{Owner: caller, Subaccount: subaccount}
	if c.cfg.Env == config.EnvProd && c.accountStateFor(account) != types.StateDeployed {
		return "", ErrAccountNotDeployed
	}

	dw, ok := c.wallets.Get(account)
	if !ok {
		return "", ErrWalletNotDeployed
	}

	adp, err := c.signerFor(ctx, account)
	if err != nil {
		return "", err
	}
	src, err := wallet.DeriveAddress(adp.PublicKey(), c.cfg.Network)
	if err != nil {
		return "", err
	}

	info, err := c.rpc.GetWalletInfo(ctx, dw.TONAddress)
	if err != nil {
		return "", fmt.Errorf("bridge: check wallet balance: %w", err)
	}
	balance, err := parseNanoTON(info.Balance)
	if err != nil {
		return "", err
	}
	if balance < amount {
		return "", ErrInsufficientTON
	}

	appAddr, err := address.ParseAddr(snap.AppTONAddress)
	if err != nil {
		return "", fmt.Errorf("bridge: parse minter address: %w", err)
	}

	// Seqno is not authoritative at rest: re-read it fresh immediately
	// before building the transfer (spec.md §3).
	var seqno uint64
	if info.Seqno != nil {
		seqno = *info.Seqno
	}
	if seqno >= 1<<32 {
		return "", ErrSeqnoTooLarge
	}

	msg, err := wallet.BuildTransferMessage(ctx, adp, src, appAddr, tlb.FromNanoTONU(amount), uint32(seqno), wallet.SendModeDefault, "", expireAt)
	if err != nil {
		return "", fmt.Errorf("bridge: build mint transfer: %w", err)
	}
	boc, err := wallet.ExternalMessageToBOC(msg)
	if err != nil {
		return "", err
	}
	res, err := c.rpc.SendBoc(ctx, boc)
	if err != nil {
		return "", fmt.Errorf("bridge: send mint boc: %w", err)
	}

	c.queue.Push(types.PendingTask{
		Kind:             types.TaskMint,
		TargetAccount:    toAccount,
		Amount:           amount,
		MessageHash:      res.Hash,
		SourceTONAddress: dw.TONAddress,
		EnqueuedAt:       time.Now(),
	})
	return res.Hash, nil
}

// WithdrawNative is spec.md §4.4's withdraw_native: checks the caller's
// ledger balance, sends TON from the minter to to_addr, and enqueues a Burn
// task.
func (c *Controller) WithdrawNative(ctx context.Context, caller, toAddr string, amount uint64) (string, error) {
	if err := requireCaller(caller); err != nil {
		return "", err
	}
	snap := c.state.Snapshot()
	if !snap.Initialized {
		return "", ErrNotInitialized
	}
	if amount <= snap.CkTONTransferFee+snap.TONFee {
		return "", fmt.Errorf("bridge: amount must exceed the combined ckTON transfer fee and TON network fee of %d", snap.CkTONTransferFee+snap.TONFee)
	}

	depositAccount := types.Account{Owner: snap.AppTONAddress, Subaccount: types.PrincipalToSubaccount(caller)}
	balance, err := c.ledger.BalanceOf(ctx, depositAccount)
	if err != nil {
		return "", fmt.Errorf("bridge: check ledger balance: %w", err)
	}
	if balance < amount {
		return "", ErrInsufficientTON
	}

	minterAccount := types.Account{Owner: "__minter__"}
	adp, err := c.signerFor(ctx, minterAccount)
	if err != nil {
		return "", err
	}
	dw, ok := c.wallets.Get(minterAccount)
	if !ok {
		return "", ErrWalletNotDeployed
	}
	src, err := wallet.DeriveAddress(adp.PublicKey(), c.cfg.Network)
	if err != nil {
		return "", err
	}
	dst, err := address.ParseAddr(toAddr)
	if err != nil {
		return "", fmt.Errorf("bridge: parse destination: %w", err)
	}

	// Seqno is not authoritative at rest: re-read it fresh immediately
	// before building the transfer (spec.md §3).
	info, err := c.rpc.GetWalletInfo(ctx, dw.TONAddress)
	if err != nil {
		return "", fmt.Errorf("bridge: check minter wallet: %w", err)
	}
	var seqno uint64
	if info.Seqno != nil {
		seqno = *info.Seqno
	}
	if seqno >= 1<<32 {
		return "", ErrSeqnoTooLarge
	}

	amountToBurn := amount - snap.CkTONTransferFee
	sendAmount := amountToBurn - snap.TONFee
	msg, err := wallet.BuildTransferMessage(ctx, adp, src, dst, tlb.FromNanoTONU(sendAmount), uint32(seqno), wallet.SendModeDefault, "", 0)
	if err != nil {
		return "", fmt.Errorf("bridge: build withdraw transfer: %w", err)
	}
	boc, err := wallet.ExternalMessageToBOC(msg)
	if err != nil {
		return "", err
	}
	res, err := c.rpc.SendBoc(ctx, boc)
	if err != nil {
		return "", fmt.Errorf("bridge: send withdraw boc: %w", err)
	}

	c.queue.Push(types.PendingTask{
		Kind:                  types.TaskBurn,
		CallerPrincipal:       caller,
		Amount:                amountToBurn,
		MessageHash:           res.Hash,
		AppTONAddress:         snap.AppTONAddress,
		DestinationTONAddress: toAddr,
		EnqueuedAt:            time.Now(),
	})
	return res.Hash, nil
}

// WalletDeployed is wallet_deployed: public query.
func (c *Controller) WalletDeployed(account types.Account) bool {
	_, ok := c.wallets.Get(account)
	return ok
}

// WalletCount is wallet_count: public query.
func (c *Controller) WalletCount() int { return c.wallets.Count() }

// LedgerID is ledger_id: public query.
func (c *Controller) LedgerID() string { return c.state.Snapshot().LedgerCanister }

// MinterTonAddress is minter_ton_address: public query.
func (c *Controller) MinterTonAddress() string { return c.state.Snapshot().AppTONAddress }

// AdminSetup is admin_setup: controller-only, one-time configuration that
// derives the minter's own TON address and enqueues its own deploy task.
func (c *Controller) AdminSetup(ctx context.Context, caller, ledgerCanister, indexerCanister string, ckTONFee, tonFee uint64) (string, error) {
	if err := c.requireController(caller); err != nil {
		return "", err
	}
	if c.state.Snapshot().Initialized {
		return "", ErrAlreadyInitialized
	}

	minterAccount := types.Account{Owner: "__minter__"}
	adp, err := c.signerFor(ctx, minterAccount)
	if err != nil {
		return "", err
	}
	addr, err := wallet.DeriveAddress(adp.PublicKey(), c.cfg.Network)
	if err != nil {
		return "", err
	}
	appAddr := wallet.FormatAddress(addr, c.cfg.Env)

	c.state.ApplySetup(ledgerCanister, indexerCanister, ckTONFee, tonFee, appAddr)
	c.log.WithFields(logrus.Fields{"ledger": ledgerCanister, "app_ton_address": appAddr}).Info("admin_setup complete")

	c.queue.Push(types.PendingTask{
		Kind:       types.TaskDeployWallet,
		Account:    minterAccount,
		TONAddress: appAddr,
		EnqueuedAt: time.Now(),
	})
	return appAddr, nil
}

// ManualMint is manual_mint: authenticated, dev-only synchronous version of
// the Mint protocol, for integration testing without waiting on the
// reconciler's tick.
func (c *Controller) ManualMint(ctx context.Context, caller, messageHash, sourceTONAddress string, targetAccount types.Account, amount uint64) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if c.cfg.Env != config.EnvDev {
		return fmt.Errorf("bridge: manual_mint is only permitted in the dev environment")
	}

	txs, err := c.rpc.GetTransactions(ctx, sourceTONAddress)
	if err != nil {
		return err
	}
	found := false
	for _, tx := range txs {
		if tx.InMsg.Hash == messageHash {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("bridge: message hash %q not observed on chain", messageHash)
	}

	snap := c.state.Snapshot()
	if amount <= snap.CkTONTransferFee {
		return fmt.Errorf("bridge: amount must exceed the ckTON transfer fee")
	}
	_, err = c.ledger.Transfer(ctx, types.TransferArg{To: targetAccount, Amount: amount - snap.CkTONTransferFee})
	return err
}

func (c *Controller) setAccountState(account types.Account, s types.AccountState) {
	c.accountStateMu.Lock()
	defer c.accountStateMu.Unlock()
	c.accountState[account.Key()] = s
}

func (c *Controller) accountStateFor(account types.Account) types.AccountState {
	c.accountStateMu.Lock()
	defer c.accountStateMu.Unlock()
	return c.accountState[account.Key()]
}

// OnWalletDeployed transitions an account's state machine to Deployed
// (spec.md §4.5), called by the reconciler's wiring after a successful
// DeployWallet completion.
func (c *Controller) OnWalletDeployed(account types.Account) {
	c.setAccountState(account, types.StateDeployed)
}
