package blockchain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultLogoURLTemplate points at the TrustWallet assets repository
const DefaultLogoURLTemplate = "https://raw.githubusercontent.com/trustwallet/assets/master/blockchains/ethereum/assets/%s/logo.png"

// TrustWalletLogoURL returns the TrustWallet logo link of token
func TrustWalletLogoURL(token common.Address) string {
	return fmt.Sprintf(DefaultLogoURLTemplate, token.Hex())
}

// LogoURLFunc builds a logo link function from a template with a single %s
// verb, filled with the checksummed token address
func LogoURLFunc(template string) func(common.Address) string {
	if template == "" {
		return TrustWalletLogoURL
	}
	return func(token common.Address) string {
		return fmt.Sprintf(template, token.Hex())
	}
}
