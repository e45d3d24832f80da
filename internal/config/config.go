package config

import (
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/matrixise/chain-reader/internal/scheduler"
)

const defaultRPCTimeout = 10 * time.Second

// Config represents the application configuration
type Config struct {
	RPCUrl          string          `mapstructure:"rpc_url" validate:"omitempty,url"`
	RPCUrls         []string        `mapstructure:"rpc_urls" validate:"required,min=1,dive,url"`
	RPCTimeout      string          `mapstructure:"rpc_timeout" validate:"omitempty,duration"`
	RPCRetries      int             `mapstructure:"rpc_retries" validate:"min=1,max=10"`
	Contracts       ContractsConfig `mapstructure:"contracts"`
	LogoURLTemplate string          `mapstructure:"logo_url_template" validate:"omitempty,logo_template"`
	Wallets         []string        `mapstructure:"wallets" validate:"omitempty,unique_addresses,dive,eth_addr"`
	Tokens          []TokenConfig   `mapstructure:"tokens" validate:"omitempty,unique_addresses,dive"`
	Interval        string          `mapstructure:"interval" validate:"omitempty,schedule"`
	LogLevel        string          `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	HTTPPort        int             `mapstructure:"http_port" validate:"omitempty,min=1024,max=65535"`
	Timezone        string          `mapstructure:"timezone" validate:"omitempty,timezone"`
	RunImmediately  *bool           `mapstructure:"run_immediately"`
}

// ContractsConfig holds the addresses of the contracts the reader talks to
type ContractsConfig struct {
	Multicall       string `mapstructure:"multicall" validate:"omitempty,eth_addr"`
	ExchangeProxy   string `mapstructure:"exchange_proxy" validate:"required,eth_addr"`
	DSProxyRegistry string `mapstructure:"ds_proxy_registry" validate:"required,eth_addr"`
}

// TokenConfig represents a single token configuration
type TokenConfig struct {
	Label   string `mapstructure:"label" validate:"required,min=1,max=100"`
	Address string `mapstructure:"address" validate:"required,eth_addr"`
}

// Normalize folds the legacy single rpc_url into rpc_urls
func (c *Config) Normalize() error {
	if len(c.RPCUrls) == 0 && c.RPCUrl != "" {
		c.RPCUrls = []string{c.RPCUrl}
	}
	c.RPCUrl = ""

	if len(c.RPCUrls) == 0 {
		return errors.New("either rpc_url or rpc_urls must be set")
	}
	return nil
}

// ValidateForTracking checks the settings only the snapshot daemon needs
func (c *Config) ValidateForTracking() error {
	if len(c.Wallets) == 0 {
		return errors.New("at least one wallet is required")
	}
	if len(c.Tokens) == 0 {
		return errors.New("at least one token is required")
	}
	return nil
}

// GetTimezone returns the configured location, UTC when unset or unknown
func (c *Config) GetTimezone() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ShouldRunImmediately defaults to true when run_immediately is not set
func (c *Config) ShouldRunImmediately() bool {
	if c.RunImmediately == nil {
		return true
	}
	return *c.RunImmediately
}

// IsCronExpression reports whether Interval is a cron expression rather than a duration
func (c *Config) IsCronExpression() bool {
	return scheduler.IsCronExpression(c.Interval)
}

// GetRPCTimeout returns the per-request timeout of the reader
func (c *Config) GetRPCTimeout() time.Duration {
	if c.RPCTimeout == "" {
		return defaultRPCTimeout
	}
	d, err := time.ParseDuration(c.RPCTimeout)
	if err != nil {
		return defaultRPCTimeout
	}
	return d
}

// TokenAddresses returns the configured token addresses in file order
func (c *Config) TokenAddresses() []string {
	addresses := make([]string, 0, len(c.Tokens))
	for _, tok := range c.Tokens {
		addresses = append(addresses, tok.Address)
	}
	return addresses
}

// ethAddressValidator validates Ethereum addresses
func ethAddressValidator(fl validator.FieldLevel) bool {
	return common.IsHexAddress(fl.Field().String())
}

// uniqueAddressesValidator rejects wallet or token lists naming the same
// address twice, whatever its case. Malformed entries are left to eth_addr.
func uniqueAddressesValidator(fl validator.FieldLevel) bool {
	field := fl.Field()
	seen := make(map[common.Address]bool, field.Len())

	for i := 0; i < field.Len(); i++ {
		var raw string
		switch item := field.Index(i).Interface().(type) {
		case string:
			raw = item
		case TokenConfig:
			raw = item.Address
		default:
			return false
		}

		if !common.IsHexAddress(raw) {
			continue
		}
		addr := common.HexToAddress(raw)
		if seen[addr] {
			return false
		}
		seen[addr] = true
	}
	return true
}

// durationValidator validates duration strings
func durationValidator(fl validator.FieldLevel) bool {
	if fl.Field().String() == "" {
		return true
	}
	_, err := time.ParseDuration(fl.Field().String())
	return err == nil
}

// scheduleValidator accepts clock-aligned durations and cron expressions
func scheduleValidator(fl validator.FieldLevel) bool {
	return scheduler.ValidateScheduleInterval(fl.Field().String()) == nil
}

func timezoneValidator(fl validator.FieldLevel) bool {
	_, err := time.LoadLocation(fl.Field().String())
	return err == nil
}

// logoTemplateValidator requires an http(s) link with exactly one %s verb
func logoTemplateValidator(fl validator.FieldLevel) bool {
	tmpl := fl.Field().String()
	if !strings.HasPrefix(tmpl, "https://") && !strings.HasPrefix(tmpl, "http://") {
		return false
	}
	return strings.Count(tmpl, "%s") == 1 && strings.Count(tmpl, "%") == 1
}

// NewValidator creates a validator with custom validation rules
func NewValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterValidation("eth_addr", ethAddressValidator)
	validate.RegisterValidation("unique_addresses", uniqueAddressesValidator)
	validate.RegisterValidation("duration", durationValidator)
	validate.RegisterValidation("schedule", scheduleValidator)
	validate.RegisterValidation("timezone", timezoneValidator)
	validate.RegisterValidation("logo_template", logoTemplateValidator)
	return validate
}
