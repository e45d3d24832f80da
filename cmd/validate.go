package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/matrixise/chain-reader/internal/config"
	"github.com/matrixise/chain-reader/internal/scheduler"
)

var validateCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file syntax and values without running the application.`,
	RunE:  validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Wallets and tokens are only needed by the run command
	trackingErr := cfg.ValidateForTracking()
	_, dbErr := config.DatabaseURL()

	schedule := "one-shot"
	if cfg.Interval != "" {
		schedule = scheduler.DescribeSchedule(cfg.Interval, cfg.GetTimezone())
	}

	slog.Info("Configuration valid",
		"rpc_endpoints", len(cfg.RPCUrls),
		"rpc_timeout", cfg.GetRPCTimeout(),
		"multicall", cfg.Contracts.Multicall,
		"exchange_proxy", cfg.Contracts.ExchangeProxy,
		"ds_proxy_registry", cfg.Contracts.DSProxyRegistry,
		"wallets", len(cfg.Wallets),
		"tokens", len(cfg.Tokens),
		"schedule", schedule,
		"log_level", cfg.LogLevel,
		"database_url_set", dbErr == nil,
	)

	if trackingErr != nil {
		slog.Warn("Configuration not usable by run", "error", trackingErr)
	}
	return nil
}
