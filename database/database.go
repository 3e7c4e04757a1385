// Package database adapts a pgx connection pool to the read-only Store the engine queries.
package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const applicationName = "restaurant-analytics"

// PoolOptions sizes the connection pool.
type PoolOptions struct {
	MinConns    int32
	MaxConns    int32
	MaxConnIdle time.Duration
}

// Store runs analytics queries on a pgx pool whose sessions are read-only.
type Store struct {
	pool *pgxpool.Pool
}

// Connect sets up the connection pool and checks it with a ping.
func Connect(ctx context.Context, databaseURL string, opts PoolOptions) (*Store, error) {
	cfg, err := newPoolConfig(databaseURL, opts)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	log.Printf("✅ [DB] Connected (min=%d max=%d conns)", cfg.MinConns, cfg.MaxConns)
	return &Store{pool: pool}, nil
}

func newPoolConfig(databaseURL string, opts PoolOptions) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnIdle > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdle
	}
	rp := cfg.ConnConfig.RuntimeParams
	rp["application_name"] = applicationName
	rp["default_transaction_read_only"] = "on"
	return cfg, nil
}

// Fetch runs sql with args and returns every row keyed by column name.
func (s *Store) Fetch(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("collect rows: %w", err)
	}
	for _, row := range out {
		normalizeRow(row)
	}
	return out, nil
}

// normalizeRow turns NUMERIC values into float64 so results encode as plain JSON numbers.
func normalizeRow(row map[string]interface{}) {
	for k, v := range row {
		n, ok := v.(pgtype.Numeric)
		if !ok {
			continue
		}
		if !n.Valid {
			row[k] = nil
			continue
		}
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			row[k] = nil
			continue
		}
		row[k] = f.Float64
	}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
		log.Println("[DB] Connection pool closed")
	}
}
