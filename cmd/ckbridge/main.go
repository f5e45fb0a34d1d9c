// Command ckbridge runs the cross-chain custodial minter daemon: it serves
// the Bridge Controller's HTTP surface and drives the Pending Task Queue
// reconciler on a background timer, following the teacher's
// cobra+logrus+signal.Notify entrypoint shape.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tonbridge/internal/api"
	"tonbridge/internal/bridge"
	"tonbridge/internal/config"
	"tonbridge/internal/ledger"
	"tonbridge/internal/metrics"
	"tonbridge/internal/queue"
	"tonbridge/internal/tonrpc"
	"tonbridge/internal/version"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ckbridge",
		Short: "ckTON bridge daemon",
	}
	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the bridge daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logrus.New()
	lv, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		lv = logrus.InfoLevel
	}
	log.SetLevel(lv)
	log.WithFields(logrus.Fields{
		"network": cfg.Network,
		"env":     cfg.Env,
		"version": version.Version,
	}).Info("starting ckbridge")

	state := config.NewState()
	m := metrics.New(prometheus.DefaultRegisterer)

	rpc := tonrpc.New(cfg.ProxyURL, cfg.ProxyAPIKey, cfg.TONRPCURL, cfg.TONAPIKey)
	ledgerClient := ledger.New(cfg.LedgerHTTPURL)
	q := queue.New()
	wallets := bridge.NewWalletRegistry()

	ctrl := bridge.New(cfg, state, log, rpc, ledgerClient, q, wallets)

	reconciler := queue.NewReconciler(q, rpc, ledgerClient, wallets, m, log,
		time.Duration(cfg.ReconcileInterval)*time.Second, cfg.ReconcileBatchSize,
		func() uint64 { return state.Snapshot().CkTONTransferFee })
	reconciler.OnDeployed(ctrl.OnWalletDeployed)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go reconciler.Run(runCtx)

	router := api.NewRouter(ctrl, rpc, ctrl.MinterTonAddress, log)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sig:
		log.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
