package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/matrixise/chain-reader/internal/blockchain"
	"github.com/matrixise/chain-reader/internal/config"
	"github.com/matrixise/chain-reader/internal/logger"
)

// loadConfig sets up logging, loads the configuration and applies its log level
func loadConfig() (*config.Config, error) {
	logger.Setup(logLevel)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		slog.Error("Configuration error", "error", err)
		return nil, err
	}

	// --log-level wins over the config file
	if cfg.LogLevel != "" && !rootCmd.PersistentFlags().Changed("log-level") {
		logger.Setup(cfg.LogLevel)
	}
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// connect opens the failover RPC client
func connect(cfg *config.Config) (*blockchain.Client, error) {
	client, err := blockchain.NewClient(cfg.RPCUrls)
	if err != nil {
		slog.Error("Failed to connect to RPC", "error", err)
		return nil, err
	}

	if len(cfg.RPCUrls) == 1 {
		slog.Debug("RPC connection established", "endpoint", cfg.RPCUrls[0])
	} else {
		slog.Debug("RPC connection established with failover",
			"endpoints", len(cfg.RPCUrls),
			"primary", cfg.RPCUrls[0])
	}
	return client, nil
}

// newReader builds a reader from the configured contracts
func newReader(cfg *config.Config, caller blockchain.ContractCaller) (*blockchain.Reader, error) {
	abis, err := blockchain.ParseABIs()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABIs: %w", err)
	}

	multicall := common.HexToAddress(config.DefaultMulticall)
	if cfg.Contracts.Multicall != "" {
		multicall = common.HexToAddress(cfg.Contracts.Multicall)
	}

	return blockchain.NewReader(caller, blockchain.ReaderConfig{
		ABIs:          abis,
		Multicall:     multicall,
		ExchangeProxy: common.HexToAddress(cfg.Contracts.ExchangeProxy),
		ProxyRegistry: common.HexToAddress(cfg.Contracts.DSProxyRegistry),
		Timeout:       cfg.GetRPCTimeout(),
		LogoURL:       blockchain.LogoURLFunc(cfg.LogoURLTemplate),
		Logger:        slog.Default(),
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
