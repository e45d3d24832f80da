package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "chain-reader",
	Short: "Batched on-chain account and token reader",
	Long: `chain-reader reads ERC-20 balances, exchange allowances, the ether balance
and the DSProxy of an account, plus token metadata, each in a single Multicall
round-trip. It can print results, serve them over HTTP, or snapshot configured
wallets into PostgreSQL on a schedule.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
