package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/matrixise/chain-reader/internal/blockchain"
)

var accountAssets []string

var accountCmd = &cobra.Command{
	Use:   "account <address>",
	Short: "Print the state of an account",
	Long: `Read token balances, exchange proxy allowances, the ether balance and the
registered DSProxy of an account in one Multicall request and print them as JSON.
Without --assets the configured tokens and ether are read.`,
	Args: cobra.ExactArgs(1),
	RunE: runAccount,
}

func init() {
	rootCmd.AddCommand(accountCmd)

	accountCmd.Flags().StringSliceVar(&accountAssets, "assets", nil, "token addresses, \"ether\" for the native balance")
}

func runAccount(cmd *cobra.Command, args []string) error {
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

	assets := accountAssets
	if len(assets) == 0 {
		assets = append(cfg.TokenAddresses(), blockchain.EtherKey)
	}

	var state blockchain.AccountState
	err = blockchain.Retry(ctx, cfg.RPCRetries, func() error {
		var err error
		state, err = reader.FetchAccountState(ctx, args[0], assets)
		return err
	})
	if err != nil {
		slog.Error("Account query failed", "account", args[0], "error", err)
		return err
	}

	return printJSON(cmd.OutOrStdout(), state)
}
