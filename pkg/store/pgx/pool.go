package pgx

import (
	"context"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// NewPool opens a pool whose connections know the pgvector types. Run
// Migrate first so the vector extension exists when connections register.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgxv5.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Open migrates the schema and returns a store that owns its pool.
func Open(ctx context.Context, databaseURL string, opts ...GraphDBStorageOption) (*GraphDBStorage, error) {
	if err := Migrate(databaseURL); err != nil {
		return nil, err
	}
	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	opts = append(opts, WithCloser(pool.Close))
	return NewGraphDBStorageWithConnection(pool, opts...), nil
}
