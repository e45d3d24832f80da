package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixise/chain-reader/internal/blockchain"
	"github.com/matrixise/chain-reader/internal/config"
)

func TestNewReader(t *testing.T) {
	cfg := &config.Config{
		RPCUrls:    []string{"https://rpc.example.com"},
		RPCTimeout: "3s",
		Contracts: config.ContractsConfig{
			ExchangeProxy:   config.DefaultExchangeProxy,
			DSProxyRegistry: config.DefaultDSProxyRegistry,
		},
	}

	// The reader only needs a caller, it does not dial
	reader, err := newReader(cfg, &blockchain.Client{})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(config.DefaultExchangeProxy), reader.ExchangeProxy())
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	state := blockchain.AccountState{
		Allowances:  map[string]map[string]string{},
		Balances:    map[string]string{blockchain.EtherKey: "1"},
		Proxy:       "0x0000000000000000000000000000000000000000",
		BlockNumber: 7,
	}
	require.NoError(t, printJSON(&buf, state))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.EqualValues(t, 7, decoded["blockNumber"])
	assert.Contains(t, buf.String(), "\n  \"balances\"")
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)

	assert.Contains(t, buf.String(), "chain-reader dev")
	assert.Contains(t, buf.String(), "Go: go")
}

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "serve", "account", "tokens", "migrate", "validate-config", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
