package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Mainnet defaults for the contracts the reader talks to
const (
	DefaultMulticall       = "0xcA11bde05977b3631167028862bE2a173976CA11"
	DefaultExchangeProxy   = "0x3E66B66Fd1d0b02fDa6C811Da9E0547970DB2f21"
	DefaultDSProxyRegistry = "0x4678f0a6958e4D2Bc4F1BAF7Bc52E8F3564f3fE4"
)

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()

	// 1. Set defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("interval", "") // Run once by default
	v.SetDefault("http_port", 8080)
	v.SetDefault("run_immediately", true)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("rpc_timeout", "10s")
	v.SetDefault("rpc_retries", 3)
	v.SetDefault("contracts.multicall", DefaultMulticall)
	v.SetDefault("contracts.exchange_proxy", DefaultExchangeProxy)
	v.SetDefault("contracts.ds_proxy_registry", DefaultDSProxyRegistry)

	// 2. Configure config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}

	// 3. Environment variables
	// CHAIN_READER_CONTRACTS_EXCHANGE_PROXY -> contracts.exchange_proxy
	v.SetEnvPrefix("CHAIN_READER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("rpc_url", "RPC_URL")
	v.BindEnv("rpc_urls", "RPC_URLS")
	v.BindEnv("rpc_timeout", "RPC_TIMEOUT")
	v.BindEnv("wallets", "WALLETS")
	v.BindEnv("log_level", "LOG_LEVEL")
	v.BindEnv("interval", "INTERVAL")
	v.BindEnv("http_port", "HTTP_PORT")
	v.BindEnv("run_immediately", "RUN_IMMEDIATELY")
	v.BindEnv("timezone", "TIMEZONE")
	v.BindEnv("logo_url_template", "LOGO_URL_TEMPLATE")
	v.BindEnv("contracts.multicall", "MULTICALL_ADDRESS")
	v.BindEnv("contracts.exchange_proxy", "EXCHANGE_PROXY_ADDRESS")
	v.BindEnv("contracts.ds_proxy_registry", "DS_PROXY_REGISTRY_ADDRESS")

	// 4. Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// 5. Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Comma-separated lists coming from env vars
	if wallets := splitList(v.GetString("wallets")); wallets != nil {
		cfg.Wallets = wallets
	}
	if urls := splitList(v.GetString("rpc_urls")); urls != nil {
		cfg.RPCUrls = urls
	}

	// 6. Normalize: convert single rpc_url to rpc_urls array
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("config normalization failed: %w", err)
	}

	// 7. Validate with validator
	validate := NewValidator()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// DatabaseURL returns DATABASE_URL, which is required by storage-backed commands
func DatabaseURL() (string, error) {
	if err := loadDotEnv(); err != nil {
		return "", err
	}

	v := viper.New()
	v.BindEnv("database_url", "DATABASE_URL")
	dsn := v.GetString("database_url")
	if dsn == "" {
		return "", fmt.Errorf("DATABASE_URL is required")
	}
	return dsn, nil
}

// LoadWithDefaults loads config with DATABASE_URL from environment
func LoadWithDefaults(configPath string) (*Config, string, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, "", err
	}

	databaseURL, err := DatabaseURL()
	if err != nil {
		return nil, "", err
	}

	return cfg, databaseURL, nil
}

// loadDotEnv reads an optional .env file; variables already set in the
// environment win
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// splitList splits a comma-separated value, nil when s is empty
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	items := strings.Split(s, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
