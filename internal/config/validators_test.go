package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		RPCUrls:    []string{"https://rpc.example.com"},
		RPCRetries: 3,
		Contracts: ContractsConfig{
			Multicall:       DefaultMulticall,
			ExchangeProxy:   DefaultExchangeProxy,
			DSProxyRegistry: DefaultDSProxyRegistry,
		},
		Wallets: []string{"0x1234567890123456789012345678901234567890"},
		Tokens: []TokenConfig{
			{Label: "DAI", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F"},
		},
	}
}

func TestEthAddressValidator(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name      string
		address   string
		wantError bool
	}{
		{name: "checksummed address", address: "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"},
		{name: "all lowercase", address: "0x742d35cc6634c0532925a3b844bc9e7595f0beb0"},
		{name: "zero address", address: "0x0000000000000000000000000000000000000000"},
		{name: "without 0x prefix", address: "742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"},
		{name: "too short", address: "0x742d35Cc", wantError: true},
		{name: "too long", address: "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb123", wantError: true},
		{name: "invalid hex character", address: "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEg0", wantError: true},
		{name: "empty string", address: "", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Wallets = []string{tt.address}

			err := v.Struct(cfg)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUniqueAddressesValidator(t *testing.T) {
	v := NewValidator()
	const dai = "0x6B175474E89094C44Da98b954EedeAC495271d0F"

	t.Run("same token twice", func(t *testing.T) {
		cfg := validConfig()
		cfg.Tokens = []TokenConfig{
			{Label: "DAI", Address: dai},
			{Label: "DAI again", Address: dai},
		}
		assert.Error(t, v.Struct(cfg))
	})

	t.Run("same token with different case", func(t *testing.T) {
		cfg := validConfig()
		cfg.Tokens = []TokenConfig{
			{Label: "DAI", Address: dai},
			{Label: "dai", Address: strings.ToLower(dai)},
		}
		assert.Error(t, v.Struct(cfg))
	})

	t.Run("distinct tokens", func(t *testing.T) {
		cfg := validConfig()
		cfg.Tokens = []TokenConfig{
			{Label: "DAI", Address: dai},
			{Label: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"},
		}
		assert.NoError(t, v.Struct(cfg))
	})

	t.Run("same wallet twice", func(t *testing.T) {
		cfg := validConfig()
		cfg.Wallets = []string{
			"0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
			"0x742d35cc6634c0532925a3b844bc9e7595f0beb0",
		}
		assert.Error(t, v.Struct(cfg))
	})
}

func TestContractsValidation(t *testing.T) {
	v := NewValidator()

	t.Run("exchange proxy is required", func(t *testing.T) {
		cfg := validConfig()
		cfg.Contracts.ExchangeProxy = ""
		assert.Error(t, v.Struct(cfg))
	})

	t.Run("proxy registry must be an address", func(t *testing.T) {
		cfg := validConfig()
		cfg.Contracts.DSProxyRegistry = "registry"
		assert.Error(t, v.Struct(cfg))
	})

	t.Run("multicall may be omitted", func(t *testing.T) {
		cfg := validConfig()
		cfg.Contracts.Multicall = ""
		assert.NoError(t, v.Struct(cfg))
	})
}

func TestScheduleValidator(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name      string
		interval  string
		wantError bool
	}{
		{name: "empty means one-shot", interval: ""},
		{name: "aligned duration", interval: "15m"},
		{name: "cron expression", interval: "0 9,17 * * 1-5"},
		{name: "unaligned duration", interval: "7m", wantError: true},
		{name: "garbage", interval: "often", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Interval = tt.interval

			err := v.Struct(cfg)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLogoTemplateValidator(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name      string
		template  string
		wantError bool
	}{
		{name: "unset", template: ""},
		{name: "trustwallet link", template: "https://raw.githubusercontent.com/trustwallet/assets/master/blockchains/ethereum/assets/%s/logo.png"},
		{name: "missing verb", template: "https://tokens.example.com/logo.png", wantError: true},
		{name: "two verbs", template: "https://tokens.example.com/%s/%s.png", wantError: true},
		{name: "not http", template: "ftp://tokens.example.com/%s.png", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.LogoURLTemplate = tt.template

			err := v.Struct(cfg)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMiscValidators(t *testing.T) {
	v := NewValidator()

	t.Run("invalid log level", func(t *testing.T) {
		cfg := validConfig()
		cfg.LogLevel = "verbose"
		assert.Error(t, v.Struct(cfg))
	})

	t.Run("privileged http port", func(t *testing.T) {
		cfg := validConfig()
		cfg.HTTPPort = 80
		assert.Error(t, v.Struct(cfg))
	})

	t.Run("unknown timezone", func(t *testing.T) {
		cfg := validConfig()
		cfg.Timezone = "Mars/Olympus"
		assert.Error(t, v.Struct(cfg))
	})

	t.Run("rpc timeout must be a duration", func(t *testing.T) {
		cfg := validConfig()
		cfg.RPCTimeout = "ten seconds"
		assert.Error(t, v.Struct(cfg))
	})

	t.Run("token without label", func(t *testing.T) {
		cfg := validConfig()
		cfg.Tokens = []TokenConfig{{Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F"}}
		assert.Error(t, v.Struct(cfg))
	})
}
