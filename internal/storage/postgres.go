package storage

import (
	"context"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertSnapshotSQL = `
	INSERT INTO account_snapshots (queried_at, block_number, account, proxy)
	VALUES ($1, $2, $3, $4)
	RETURNING id`

const insertAssetSQL = `
	INSERT INTO asset_balances
	(snapshot_id, asset, symbol, decimals, raw_balance, balance, spender, allowance)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const upsertTokenSQL = `
	INSERT INTO token_metadata (address, name, symbol, decimals, logo_url, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (address) DO UPDATE SET
		name = EXCLUDED.name,
		symbol = EXCLUDED.symbol,
		decimals = EXCLUDED.decimals,
		logo_url = EXCLUDED.logo_url,
		updated_at = EXCLUDED.updated_at`

// Store manages PostgreSQL operations
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new PostgreSQL store with connection pooling
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	// Amounts are uint256 and stored as NUMERIC(78, 0)
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertSnapshot stores a snapshot and its asset rows in one transaction
func (s *Store) InsertSnapshot(ctx context.Context, snap AccountSnapshot) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, insertSnapshotSQL,
		snap.QueriedAt,
		int64(snap.BlockNumber),
		snap.Account,
		snap.Proxy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	if len(snap.Assets) > 0 {
		batch := &pgx.Batch{}
		for _, asset := range snap.Assets {
			batch.Queue(insertAssetSQL,
				id,
				asset.Asset,
				asset.Symbol,
				int16(asset.Decimals),
				numeric(asset.RawBalance),
				asset.Balance,
				nullableText(asset.Spender),
				numeric(asset.Allowance),
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range snap.Assets {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return 0, fmt.Errorf("batch insert failed: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return 0, fmt.Errorf("batch insert failed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return id, nil
}

// UpsertTokenMetadata inserts or refreshes token metadata using pgx.Batch
func (s *Store) UpsertTokenMetadata(ctx context.Context, tokens []TokenMetadata) error {
	if len(tokens) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, tok := range tokens {
		batch.Queue(upsertTokenSQL,
			tok.Address,
			tok.Name,
			tok.Symbol,
			int16(tok.Decimals),
			tok.LogoURL,
			tok.UpdatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range tokens {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("token metadata upsert failed: %w", err)
		}
	}

	return nil
}
