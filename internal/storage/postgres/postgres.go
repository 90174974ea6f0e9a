// Package postgres is the PostgreSQL storage backend. Contended counters
// (stock, coupon usage, order numbers, order status) are only ever changed
// with single conditional statements or inside a transaction.
package postgres

import (
	"context"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kitchen-orders/db"
	"github.com/xenking/kitchen-orders/internal/storage"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	return pool, nil
}

// RunMigrations applies the embedded schema.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Open connects, migrates and returns a Store over the pool.
func Open(ctx context.Context, databaseURL string) (*storage.Store, error) {
	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewStore(pool), nil
}

// NewStore wraps an existing pool. Closing the store closes the pool.
func NewStore(pool *pgxpool.Pool) *storage.Store {
	return &storage.Store{
		Products:  NewProductRepository(pool),
		Stock:     NewStockLedger(pool),
		Coupons:   NewCouponRepository(pool),
		Schedules: NewScheduleRepository(pool),
		Orders:    NewOrderRepository(pool),
		Numbers:   NewOrderNumbers(pool),
		Catalog:   NewCatalogWriter(pool),
		Ping:      pool.Ping,
		Close: func() error {
			pool.Close()
			return nil
		},
	}
}
