// Package postgres implements the order core's repositories on PostgreSQL.
//
// All transactional work runs at SERIALIZABLE isolation. Serialization
// failures and deadlocks surface as order.ErrConflict so the coordinator can
// replay the unit of work.
package postgres

import (
	"context"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-orders/db"
	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/coupon"
	"github.com/xenking/kart-orders/internal/domain/product"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}

	return pool, nil
}

// Migrate executes the embedded DDL schema against the pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store bundles the pool-backed repositories and the transactor.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps pool. The schema must already exist.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Products returns a product repository outside any transaction.
func (s *Store) Products() *ProductRepository {
	return &ProductRepository{q: s.pool}
}

// Coupons returns a coupon repository outside any transaction.
func (s *Store) Coupons() *CouponRepository {
	return &CouponRepository{q: s.pool}
}

// Reviews returns the review repository.
func (s *Store) Reviews() *ReviewRepository {
	return &ReviewRepository{q: s.pool}
}

// APIKeys returns the API key repository.
func (s *Store) APIKeys() *APIKeyRepository {
	return &APIKeyRepository{q: s.pool}
}

// UpsertProduct implements catalog.Sink.
func (s *Store) UpsertProduct(ctx context.Context, p product.Product) error {
	return s.Products().Upsert(ctx, p)
}

// UpsertCoupon implements catalog.Sink.
func (s *Store) UpsertCoupon(ctx context.Context, c coupon.Coupon) error {
	return s.Coupons().Upsert(ctx, c)
}

// UpsertAPIKey implements catalog.Sink.
func (s *Store) UpsertAPIKey(ctx context.Context, k auth.APIKeyInfo) error {
	return s.APIKeys().Upsert(ctx, k)
}

// Orders returns the read-side order repository.
func (s *Store) Orders() *OrderReader {
	return &OrderReader{q: s.pool}
}
