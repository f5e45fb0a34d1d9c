// Package config loads process configuration from the environment and
// holds the admin-writable configuration cells described in spec.md §3.
package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Network selects the deployment target, mirroring DFX_NETWORK.
type Network string

const (
	NetworkLocal Network = "local"
	NetworkIC    Network = "ic"
)

// Env selects dev/prod behavior, mirroring APP_ENV.
type Env string

const (
	EnvDev  Env = "dev"
	EnvProd Env = "prod"
)

// Static is the environment-sourced configuration, fixed for the process
// lifetime (unlike the admin-writable cells in State below).
type Static struct {
	Network Network
	Env     Env

	TONAPIKey     string
	TONRPCURL     string
	ProxyURL      string
	ProxyAPIKey   string
	SignerURL     string
	LedgerHTTPURL string

	ListenAddr         string
	LogLevel           string
	ReconcileInterval  int // seconds
	ReconcileBatchSize int

	ControllerPrincipals []string
}

// Load reads Static configuration from the environment (and an optional
// .env file), following the teacher's Load/Default split but sourced from
// viper instead of a JSON file, since this service is env-configured like
// the rest of the pack's daemons.
func Load() (*Static, error) {
	_ = godotenv.Load() // optional, ignored if absent

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("DFX_NETWORK", "local")
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("RECONCILE_INTERVAL", 5)
	v.SetDefault("RECONCILE_BATCH_SIZE", 8)

	cfg := &Static{
		Network:            Network(v.GetString("DFX_NETWORK")),
		Env:                Env(v.GetString("APP_ENV")),
		TONAPIKey:          v.GetString("TON_API_KEY"),
		TONRPCURL:          v.GetString("TON_RPC_URL"),
		ProxyURL:           v.GetString("PROXY_URL"),
		ProxyAPIKey:        v.GetString("PROXY_API_KEY"),
		SignerURL:          v.GetString("SIGNER_URL"),
		LedgerHTTPURL:      v.GetString("LEDGER_URL"),
		ListenAddr:         v.GetString("LISTEN_ADDR"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		ReconcileInterval:  v.GetInt("RECONCILE_INTERVAL"),
		ReconcileBatchSize: v.GetInt("RECONCILE_BATCH_SIZE"),
	}

	if p := v.GetString("CONTROLLER_PRINCIPALS"); p != "" {
		for _, s := range strings.Split(p, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				cfg.ControllerPrincipals = append(cfg.ControllerPrincipals, s)
			}
		}
	}

	if cfg.Network != NetworkLocal && cfg.Network != NetworkIC {
		return nil, fmt.Errorf("invalid DFX_NETWORK %q, want %q or %q", cfg.Network, NetworkLocal, NetworkIC)
	}
	if cfg.Env != EnvDev && cfg.Env != EnvProd {
		return nil, fmt.Errorf("invalid APP_ENV %q, want %q or %q", cfg.Env, EnvDev, EnvProd)
	}

	return cfg, nil
}

// IsController reports whether principal is listed as a host-level
// controller (spec.md §6 "controller guards allow only principals listed as
// host-level controllers").
func (s *Static) IsController(principal string) bool {
	for _, p := range s.ControllerPrincipals {
		if p == principal {
			return true
		}
	}
	return false
}

const (
	DefaultCkTONTransferFee = 1000
	DefaultTONFee           = 5500
)

// State is the process-wide admin-writable configuration cell (spec.md §3,
// §9 "global mutable configuration"). It has a single writer (admin_setup)
// and many readers, guarded by a single mutex since reads must never
// observe a torn write — but, per spec.md §5, this mutex must never be held
// across a suspension point.
type State struct {
	mu sync.RWMutex

	LedgerCanister   string
	IndexerCanister  string
	CkTONTransferFee uint64
	TONFee           uint64
	AppTONAddress    string
	initialized      bool
}

// NewState returns a State with the spec's documented defaults.
func NewState() *State {
	return &State{
		CkTONTransferFee: DefaultCkTONTransferFee,
		TONFee:           DefaultTONFee,
	}
}

// Snapshot is a point-in-time, race-free copy of State for use after the
// read lock is released and before any suspension point.
type Snapshot struct {
	LedgerCanister   string
	IndexerCanister  string
	CkTONTransferFee uint64
	TONFee           uint64
	AppTONAddress    string
	Initialized      bool
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		LedgerCanister:   s.LedgerCanister,
		IndexerCanister:  s.IndexerCanister,
		CkTONTransferFee: s.CkTONTransferFee,
		TONFee:           s.TONFee,
		AppTONAddress:    s.AppTONAddress,
		Initialized:      s.initialized,
	}
}

// ApplySetup performs the one-time admin_setup write (spec.md §4.4).
func (s *State) ApplySetup(ledgerCanister, indexerCanister string, ckTONFee, tonFee uint64, appTONAddress string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LedgerCanister = ledgerCanister
	s.IndexerCanister = indexerCanister
	if ckTONFee != 0 {
		s.CkTONTransferFee = ckTONFee
	}
	if tonFee != 0 {
		s.TONFee = tonFee
	}
	s.AppTONAddress = appTONAddress
	s.initialized = true
}
