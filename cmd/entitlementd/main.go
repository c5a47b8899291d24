package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/boostly/entitlementd/internal/api"
	"github.com/boostly/entitlementd/internal/config"
	"github.com/boostly/entitlementd/internal/entitlement"
	"github.com/boostly/entitlementd/internal/ledger"
	"github.com/boostly/entitlementd/internal/logging"
	"github.com/boostly/entitlementd/internal/metrics"
	"github.com/boostly/entitlementd/internal/mockgateway"
	"github.com/boostly/entitlementd/internal/websocket"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "entitlementd",
	Short:   "Boostly entitlement service",
	Long:    `entitlementd reconciles verified store transactions into the current subscription entitlement and streams it to clients`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("entitlementd %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	// Baseline logger for early startup logs
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "entitlementd",
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Re-initialize logging with configuration-driven settings
	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "entitlementd",
	})

	log.Info().Str("version", Version).Msg("Starting entitlement service")

	// Acknowledgment ledger: SQLite when a data dir is configured,
	// process-local otherwise.
	var ackLedger entitlement.AckLedger
	if cfg.DataDir != "" {
		store, err := ledger.Open(cfg.DataDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open acknowledgment ledger")
		}
		defer store.Close()
		ackLedger = store
	} else {
		log.Warn().Msg("No data dir configured, acknowledgments will not survive restart")
		ackLedger = ledger.NewMemory()
	}

	var gw entitlement.Gateway
	if cfg.MockGateway {
		log.Warn().Msg("Mock commerce gateway enabled, not for production use")
		gw = mockgateway.New()
	} else {
		// The platform commerce gateway is provided by the embedding app;
		// the standalone daemon only ships the mock for now.
		log.Fatal().Msg("No commerce gateway configured, set BOOSTLY_MOCK_GATEWAY=true for development")
	}

	manager := entitlement.NewManager(gw, ackLedger, entitlement.Options{
		SubscriberBuffer: cfg.SubscriberBuffer,
	})
	defer manager.Close()

	entitlement.SetMetricHooks(
		metrics.RecordReconcile,
		metrics.RecordPurchase,
		metrics.RecordStatusCommit,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := websocket.NewHub(manager)
	if cfg.AllowedOrigins != "" {
		hub.SetAllowedOrigins(strings.Split(cfg.AllowedOrigins, ","))
	}

	router := api.NewRouter(manager, hub, Version)

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           router.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout stays disabled so WebSocket streams are not cut off.
		IdleTimeout: 120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// Background reconciliation over the live transaction feed.
	group.Go(func() error {
		if err := manager.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr()).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// Seed the status from the gateway's current entitlement snapshot.
	if err := manager.Refresh(ctx); err != nil {
		log.Error().Err(err).Msg("Initial entitlement refresh failed, continuing with none")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("Shutting down server...")
	case <-groupCtx.Done():
		log.Error().Msg("Background task failed, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	cancel()
	if err := group.Wait(); err != nil {
		log.Error().Err(err).Msg("Background task error during shutdown")
	}

	log.Info().Msg("Server stopped")
}
