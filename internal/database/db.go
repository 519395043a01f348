// Package database persists scraped records in PostgreSQL. All writes
// are merge-upserts keyed by the natural identity of each record, so
// re-scraping a target enriches rows instead of duplicating or
// truncating them.
package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/config"
)

// Querier is the subset of pgxpool.Pool the store uses. pgxmock
// implements it, so the query layer is testable without a server.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

type DB struct {
	pool   Querier
	logger *slog.Logger
}

// Connect opens a pool against the configured database and verifies it
// with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName, cfg.SSLMode)

	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewWithPool(pool), nil
}

// NewWithPool wraps an existing pool or mock.
func NewWithPool(pool Querier) *DB {
	return &DB{
		pool:   pool,
		logger: slog.Default().With("component", "database"),
	}
}

func (d *DB) Close() {
	d.pool.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}
