package blockchain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// HumanBalance converts raw balance to human-readable decimal string
func HumanBalance(rawBalance *big.Int, decimals uint8) string {
	return decimal.NewFromBigInt(rawBalance, -int32(decimals)).String()
}

// HumanAmount formats a decimal-string amount as returned by the Reader
func HumanAmount(amount string, decimals uint8) (string, error) {
	raw, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return "", fmt.Errorf("invalid amount %q", amount)
	}
	return HumanBalance(raw, decimals), nil
}
