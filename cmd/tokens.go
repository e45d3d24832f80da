package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/matrixise/chain-reader/internal/blockchain"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens [address...]",
	Short: "Print token metadata",
	Long: `Read name, symbol and decimals of tokens in one Multicall request and print
them as JSON with a logo link. Without arguments the configured tokens are read.`,
	RunE: runTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)
}

func runTokens(cmd *cobra.Command, args []string) error {
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

	assets := args
	if len(assets) == 0 {
		assets = cfg.TokenAddresses()
	}

	var metadata map[string]blockchain.TokenMetadata
	err = blockchain.Retry(ctx, cfg.RPCRetries, func() error {
		var err error
		metadata, err = reader.FetchTokenMetadata(ctx, assets)
		return err
	})
	if err != nil {
		slog.Error("Token metadata query failed", "tokens", len(assets), "error", err)
		return err
	}

	return printJSON(cmd.OutOrStdout(), metadata)
}
