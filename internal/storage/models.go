package storage

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// AccountSnapshot is the state of one account at one block
type AccountSnapshot struct {
	ID          int64
	QueriedAt   time.Time
	BlockNumber uint64
	Account     string
	Proxy       string
	Assets      []AssetBalance
}

// AssetBalance is one token (or ether) position inside a snapshot.
// Spender and Allowance are empty for ether.
type AssetBalance struct {
	Asset      string
	Symbol     string
	Decimals   uint8
	RawBalance *big.Int
	Balance    string
	Spender    string
	Allowance  *big.Int
}

// TokenMetadata is the descriptive record of a token
type TokenMetadata struct {
	Address   string
	Name      string
	Symbol    string
	Decimals  uint8
	LogoURL   string
	UpdatedAt time.Time
}

// numeric converts an on-chain amount to a NUMERIC parameter, NULL when nil
func numeric(v *big.Int) any {
	if v == nil {
		return nil
	}
	return decimal.NewFromBigInt(v, 0)
}

// nullableText maps an empty string to NULL
func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
