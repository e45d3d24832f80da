package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/matrixise/chain-reader/internal/api"
	"github.com/matrixise/chain-reader/internal/health"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve account state and token metadata over HTTP",
	Long: `Start the HTTP API without a database:

  GET /v1/accounts/{address}?assets=0x...,ether
  GET /v1/tokens?assets=0x...
  GET /health`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	client, err := connect(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	reader, err := newReader(cfg, client)
	if err != nil {
		return err
	}

	checker := health.NewChecker(health.Config{RPC: client, Reader: reader})
	httpServer := newHTTPServer(cfg, api.NewRouter(reader, api.Config{
		DefaultAssets:  cfg.TokenAddresses(),
		RequestTimeout: 2 * cfg.GetRPCTimeout(),
		Health:         checker.Handler(),
		Logger:         slog.Default(),
	}))
	go serveHTTP(httpServer)
	defer shutdownHTTP(httpServer)

	<-ctx.Done()
	slog.Info("Shutdown requested, stopping server")
	return nil
}
