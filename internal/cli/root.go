package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/boardcheck/internal/control"
	"github.com/vietddude/boardcheck/internal/core/config"
)

var (
	cfgPath      string
	isDebug      bool
	initialSweep bool
)

var rootCmd = &cobra.Command{
	Use:   "boardcheck",
	Short: "Boardcheck verification service",
	Long:  `Boardcheck verifies wallet follower and token-holder requirements against board thresholds and matches users for mutual help.`,
	Run:   runEngine,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&initialSweep, "initial-sweep", false, "enqueue a full rescan of all tracked wallets at startup")
}

func runEngine(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	if initialSweep {
		cfg.Checker.InitialSweep = true
	}

	controlCfg := control.Config{
		Port:     cfg.Server.Port,
		Checker:  cfg.Checker,
		Provider: cfg.Provider,
		Notifier: cfg.Notifier,
		Redis:    cfg.Redis,
		Database: cfg.Database,
	}

	app, err := control.NewEngine(controlCfg)
	if err != nil {
		slog.Error("Failed to initialize engine", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// SIGHUP reloads the board catalog without a restart.
	hupChan := make(chan os.Signal, 1)
	signal.Notify(hupChan, syscall.SIGHUP)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start engine", "error", err)
		os.Exit(1)
	}

	slog.Info("Engine started", "config", cfgPath)

	for {
		select {
		case <-hupChan:
			if err := app.ReloadCatalog(ctx); err != nil {
				slog.Error("Catalog reload failed", "error", err)
			} else {
				slog.Info("Catalog reloaded")
			}
		case sig := <-sigChan:
			slog.Info("Received signal, shutting down...", "signal", sig)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer shutdownCancel()

			if err := app.Stop(shutdownCtx); err != nil {
				slog.Error("Error during shutdown", "error", err)
				os.Exit(1)
			}
			return
		}
	}
}
