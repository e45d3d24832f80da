package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matrixise/chain-reader/internal/blockchain"
	"github.com/matrixise/chain-reader/internal/storage"
)

const (
	etherSymbol   = "ETH"
	etherDecimals = 18
)

// Reader is the subset of blockchain.Reader used by the tracker
type Reader interface {
	FetchAccountState(ctx context.Context, address string, assets []string) (blockchain.AccountState, error)
	FetchTokenMetadata(ctx context.Context, assets []string) (map[string]blockchain.TokenMetadata, error)
}

// Store persists snapshots and token metadata
type Store interface {
	InsertSnapshot(ctx context.Context, snap storage.AccountSnapshot) (int64, error)
	UpsertTokenMetadata(ctx context.Context, tokens []storage.TokenMetadata) error
}

// Token is a tracked token, Label is used when the contract has no symbol
type Token struct {
	Label   string
	Address string
}

// Config holds tracker configuration
type Config struct {
	Wallets []string
	Tokens  []Token
	Retries int
	Logger  *slog.Logger
}

// Tracker snapshots the state of every configured wallet
type Tracker struct {
	reader  Reader
	store   Store
	wallets []string
	tokens  []Token
	retries int
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a tracker
func New(reader Reader, store Store, cfg Config) *Tracker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	return &Tracker{
		reader:  reader,
		store:   store,
		wallets: cfg.Wallets,
		tokens:  cfg.Tokens,
		retries: cfg.Retries,
		logger:  cfg.Logger,
		now:     time.Now,
	}
}

// Run fetches token metadata once, then the state of every wallet in parallel,
// and persists the results. A failing wallet does not stop the others; Run
// fails only when every wallet failed.
func (t *Tracker) Run(ctx context.Context) error {
	assets := make([]string, 0, len(t.tokens))
	for _, tok := range t.tokens {
		assets = append(assets, tok.Address)
	}

	var metadata map[string]blockchain.TokenMetadata
	err := blockchain.Retry(ctx, t.retries, func() error {
		var err error
		metadata, err = t.reader.FetchTokenMetadata(ctx, assets)
		return err
	})
	if err != nil {
		return fmt.Errorf("fetching token metadata: %w", err)
	}

	queriedAt := t.now().UTC()
	if err := t.store.UpsertTokenMetadata(ctx, t.metadataRows(metadata, queriedAt)); err != nil {
		return fmt.Errorf("storing token metadata: %w", err)
	}

	var (
		wg     sync.WaitGroup
		failed atomic.Int32
	)
	for _, wallet := range t.wallets {
		wg.Add(1)
		go func(wallet string) {
			defer wg.Done()
			if err := t.processWallet(ctx, wallet, assets, metadata, queriedAt); err != nil {
				failed.Add(1)
				t.logger.Error("Wallet processing failed", "wallet", wallet, "error", err)
			}
		}(wallet)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	if n := int(failed.Load()); n > 0 && n == len(t.wallets) {
		return fmt.Errorf("all %d wallets failed", n)
	}

	t.logger.Info("Processing completed",
		"wallets", len(t.wallets),
		"failed", failed.Load(),
		"tokens", len(t.tokens),
	)
	return nil
}

func (t *Tracker) processWallet(ctx context.Context, wallet string, assets []string, metadata map[string]blockchain.TokenMetadata, queriedAt time.Time) error {
	var state blockchain.AccountState
	err := blockchain.Retry(ctx, t.retries, func() error {
		var err error
		state, err = t.reader.FetchAccountState(ctx, wallet, assets)
		return err
	})
	if err != nil {
		return err
	}

	snap, err := t.snapshot(wallet, state, metadata, queriedAt)
	if err != nil {
		return err
	}

	if _, err := t.store.InsertSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("storing snapshot: %w", err)
	}

	t.logger.Info("Snapshot stored",
		"wallet", wallet,
		"block", state.BlockNumber,
		"assets", len(snap.Assets),
		"proxy", state.HasProxy(),
	)
	return nil
}

// snapshot converts the reader output into storage rows, tokens first in
// configuration order, ether last
func (t *Tracker) snapshot(wallet string, state blockchain.AccountState, metadata map[string]blockchain.TokenMetadata, queriedAt time.Time) (storage.AccountSnapshot, error) {
	snap := storage.AccountSnapshot{
		QueriedAt:   queriedAt,
		BlockNumber: state.BlockNumber,
		Account:     wallet,
		Proxy:       state.Proxy,
		Assets:      make([]storage.AssetBalance, 0, len(t.tokens)+1),
	}

	for _, tok := range t.tokens {
		meta := metadata[tok.Address]
		symbol := meta.Symbol
		if symbol == "" {
			symbol = tok.Label
		}

		row, err := assetRow(tok.Address, symbol, meta.Decimals, state.Balances[tok.Address])
		if err != nil {
			return storage.AccountSnapshot{}, err
		}

		for spender, allowances := range state.Allowances {
			amount, ok := allowances[tok.Address]
			if !ok {
				continue
			}
			allowance, ok := new(big.Int).SetString(amount, 10)
			if !ok {
				return storage.AccountSnapshot{}, fmt.Errorf("invalid allowance %q for %s", amount, tok.Address)
			}
			row.Spender = spender
			row.Allowance = allowance
		}

		snap.Assets = append(snap.Assets, row)
	}

	row, err := assetRow(blockchain.EtherKey, etherSymbol, etherDecimals, state.Balances[blockchain.EtherKey])
	if err != nil {
		return storage.AccountSnapshot{}, err
	}
	snap.Assets = append(snap.Assets, row)

	return snap, nil
}

func assetRow(asset, symbol string, decimals uint8, amount string) (storage.AssetBalance, error) {
	if amount == "" {
		return storage.AssetBalance{}, errors.New("missing balance for " + asset)
	}
	raw, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return storage.AssetBalance{}, fmt.Errorf("invalid balance %q for %s", amount, asset)
	}
	return storage.AssetBalance{
		Asset:      asset,
		Symbol:     symbol,
		Decimals:   decimals,
		RawBalance: raw,
		Balance:    blockchain.HumanBalance(raw, decimals),
	}, nil
}

func (t *Tracker) metadataRows(metadata map[string]blockchain.TokenMetadata, updatedAt time.Time) []storage.TokenMetadata {
	rows := make([]storage.TokenMetadata, 0, len(metadata))
	for _, tok := range t.tokens {
		meta, ok := metadata[tok.Address]
		if !ok {
			continue
		}
		rows = append(rows, storage.TokenMetadata{
			Address:   meta.Address,
			Name:      meta.Name,
			Symbol:    meta.Symbol,
			Decimals:  meta.Decimals,
			LogoURL:   meta.LogoURL,
			UpdatedAt: updatedAt,
		})
	}
	return rows
}
