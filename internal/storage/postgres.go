package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"rate-ledger/internal/config"
)

const (
	createRateCacheSQL = `CREATE TABLE IF NOT EXISTS rate_cache (
        pair        TEXT PRIMARY KEY,
        value       NUMERIC NOT NULL,
        observed_at TIMESTAMPTZ NOT NULL,
        updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	upsertRateSQL = `INSERT INTO rate_cache (
        pair,
        value,
        observed_at
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (pair) DO UPDATE
    SET
        value       = EXCLUDED.value,
        observed_at = EXCLUDED.observed_at,
        updated_at  = now();`

	loadRateSQL = `SELECT
        value::text,
        observed_at
    FROM rate_cache
    WHERE pair = $1;`
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return pool, nil
}

// PostgresCache stores the last sample as a single row keyed by pair.
type PostgresCache struct {
	pool *pgxpool.Pool
	pair string
}

// NewPostgresCache wires a pgx pool into a cache for the given pair.
func NewPostgresCache(pool *pgxpool.Pool, pair string) *PostgresCache {
	return &PostgresCache{pool: pool, pair: pair}
}

// Migrate creates the cache table when missing.
func (c *PostgresCache) Migrate(ctx context.Context) error {
	pool, err := c.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createRateCacheSQL); err != nil {
		return fmt.Errorf("create rate_cache: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (c *PostgresCache) Close() {
	if c == nil || c.pool == nil {
		return
	}
	c.pool.Close()
}

func (c *PostgresCache) getPool() (*pgxpool.Pool, error) {
	if c == nil || c.pool == nil {
		return nil, ErrNotConfigured
	}
	return c.pool, nil
}

// Load reads the cached sample for the configured pair.
func (c *PostgresCache) Load(ctx context.Context) (*Sample, error) {
	pool, err := c.getPool()
	if err != nil {
		return nil, err
	}

	var (
		valueStr   string
		observedAt time.Time
	)
	if err := pool.QueryRow(ctx, loadRateSQL, c.pair).Scan(&valueStr, &observedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load cached rate: %w", err)
	}

	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return nil, fmt.Errorf("parse cached rate: %w", err)
	}
	sample := NewSample(value, observedAt)
	return &sample, nil
}

// Save upserts the sample for the configured pair.
func (c *PostgresCache) Save(ctx context.Context, sample Sample) error {
	pool, err := c.getPool()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if _, err := pool.Exec(ctx, upsertRateSQL, c.pair, sample.Value.String(), sample.ObservedAt); err != nil {
		return fmt.Errorf("%w: upsert rate: %v", ErrPersistence, err)
	}
	return nil
}

var _ RateCache = (*PostgresCache)(nil)
