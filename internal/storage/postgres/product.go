package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/domain/review"
)

var (
	_ product.Repository   = (*ProductRepository)(nil)
	_ review.ProductFinder = (*ProductRepository)(nil)
)

const (
	getProductSQL = `SELECT id, seller_id, title, price, stock, deleted_at
		FROM products WHERE id = $1`

	applyStockDeltaSQL = `UPDATE products SET stock = stock + $2
		WHERE id = $1 AND stock >= $3`

	upsertProductSQL = `INSERT INTO products (id, seller_id, title, price, stock, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			seller_id = EXCLUDED.seller_id,
			title = EXCLUDED.title,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock,
			deleted_at = EXCLUDED.deleted_at`
)

// ProductRepository implements product.Repository.
type ProductRepository struct {
	q querier
}

// FindByID returns the product, including soft-deleted rows.
func (r *ProductRepository) FindByID(ctx context.Context, id string) (*product.Product, error) {
	var p product.Product
	err := r.q.QueryRow(ctx, getProductSQL, id).Scan(
		&p.ID, &p.SellerID, &p.Title, &p.Price, &p.Stock, &p.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return &p, nil
}

// ApplyStockDelta is a single conditional UPDATE so that concurrent
// reservations can never drive stock below zero.
func (r *ProductRepository) ApplyStockDelta(ctx context.Context, id string, delta, minStock int) (bool, error) {
	tag, err := r.q.Exec(ctx, applyStockDeltaSQL, id, delta, minStock)
	if err != nil {
		return false, errors.Wrapf(err, "apply stock delta %d to %q", delta, id)
	}
	return tag.RowsAffected() == 1, nil
}

// Upsert inserts or replaces a product row.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := r.q.Exec(ctx, upsertProductSQL, p.ID, p.SellerID, p.Title, p.Price, p.Stock, p.DeletedAt)
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}
