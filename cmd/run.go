package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/matrixise/chain-reader/internal/api"
	"github.com/matrixise/chain-reader/internal/config"
	"github.com/matrixise/chain-reader/internal/health"
	"github.com/matrixise/chain-reader/internal/scheduler"
	"github.com/matrixise/chain-reader/internal/storage"
	"github.com/matrixise/chain-reader/internal/tracker"
)

var (
	interval string
	once     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Snapshot configured wallets into PostgreSQL",
	Long: `Read the state of every configured wallet and the metadata of every configured
token, and persist the results to PostgreSQL. With an interval the command runs as
a daemon and also serves the HTTP API and /health.`,
	RunE: runTracker,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&interval, "interval", "", "run interval - duration (5m, 1h) or cron (\"*/5 * * * *\") - empty for one-time run")
	runCmd.Flags().BoolVar(&once, "once", false, "run once and exit (default)")
}

func runTracker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.ValidateForTracking(); err != nil {
		slog.Error("Configuration error", "error", err)
		return err
	}

	databaseURL, err := config.DatabaseURL()
	if err != nil {
		slog.Error("Configuration error", "error", err)
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Use interval from flag if provided, otherwise from config
	runInterval := interval
	if runInterval == "" {
		runInterval = cfg.Interval
	}

	slog.Info("Configuration loaded",
		"config_path", cfgFile,
		"wallets", len(cfg.Wallets),
		"tokens", len(cfg.Tokens),
		"interval", runInterval,
	)

	if err := storage.RunMigrations(ctx, databaseURL); err != nil {
		slog.Error("Failed to apply migrations", "error", err)
		return err
	}

	store, err := storage.NewStore(ctx, databaseURL)
	if err != nil {
		slog.Error("Failed to connect to PostgreSQL", "error", err)
		return err
	}
	defer store.Close()
	slog.Info("PostgreSQL connection established")

	client, err := connect(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	reader, err := newReader(cfg, client)
	if err != nil {
		return err
	}

	tokens := make([]tracker.Token, 0, len(cfg.Tokens))
	for _, tok := range cfg.Tokens {
		tokens = append(tokens, tracker.Token{Label: tok.Label, Address: tok.Address})
	}

	tr := tracker.New(reader, store, tracker.Config{
		Wallets: cfg.Wallets,
		Tokens:  tokens,
		Retries: cfg.RPCRetries,
		Logger:  slog.Default(),
	})

	if runInterval == "" || once {
		return tr.Run(ctx)
	}

	slog.Info("Starting daemon mode with scheduler",
		"interval", runInterval,
		"timezone", cfg.GetTimezone().String(),
		"run_immediately", cfg.ShouldRunImmediately())

	var healthChecker *health.Checker
	jobFunc := func(jobCtx context.Context) error {
		err := tr.Run(jobCtx)
		if healthChecker != nil {
			healthChecker.UpdateLastRun(err == nil)
		}
		return err
	}

	sched, err := scheduler.NewScheduler(ctx, scheduler.Config{
		Interval:       runInterval,
		Timezone:       cfg.GetTimezone(),
		RunImmediately: cfg.ShouldRunImmediately(),
		Logger:         slog.Default(),
	}, jobFunc)
	if err != nil {
		slog.Error("Failed to create scheduler", "error", err)
		return fmt.Errorf("scheduler creation failed: %w", err)
	}
	defer sched.Stop()

	expectedInterval, err := sched.GetExpectedInterval()
	if err != nil {
		expectedInterval = 5 * time.Minute
		slog.Warn("Could not determine exact interval, using conservative estimate",
			"interval", expectedInterval)
	}

	healthChecker = health.NewChecker(health.Config{
		Store:    store,
		RPC:      client,
		Reader:   reader,
		Schedule: sched,
		Interval: expectedInterval,
	})

	httpServer := newHTTPServer(cfg, api.NewRouter(reader, api.Config{
		DefaultAssets:  cfg.TokenAddresses(),
		RequestTimeout: 2 * cfg.GetRPCTimeout(),
		Health:         healthChecker.Handler(),
		Logger:         slog.Default(),
	}))
	go serveHTTP(httpServer)
	defer shutdownHTTP(httpServer)

	if err := sched.Start(); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		return fmt.Errorf("scheduler start failed: %w", err)
	}

	slog.Info("Daemon mode started with clock-aligned scheduling")

	<-ctx.Done()
	slog.Info("Shutdown requested, stopping daemon")
	return nil
}

func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	httpPort := cfg.HTTPPort
	if httpPort == 0 {
		httpPort = 8080
	}
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func serveHTTP(server *http.Server) {
	slog.Info("HTTP server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server error", "error", err)
	}
}

func shutdownHTTP(server *http.Server) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
}
