// Package inventory owns per-product stock counters. All mutations are
// single conditional updates evaluated inside the caller's transaction.
package inventory

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-orders/internal/domain/product"
)

// ProductUnavailableError indicates a product is missing or soft-deleted.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is unavailable", e.ProductID)
}

// InsufficientStockError indicates a reservation exceeds available stock.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Ledger reserves and releases stock through a transaction-scoped product
// repository.
type Ledger struct {
	products product.Repository
}

// New returns a Ledger bound to products. The repository must belong to the
// transaction the reservations are part of.
func New(products product.Repository) *Ledger {
	return &Ledger{products: products}
}

// Lookup returns the product with the given id, failing with
// ProductUnavailableError when it does not exist or was soft-deleted.
func (l *Ledger) Lookup(ctx context.Context, id string) (*product.Product, error) {
	p, err := l.products.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, &ProductUnavailableError{ProductID: id}
		}
		return nil, errors.Wrapf(err, "lookup product %s", id)
	}
	if p.Deleted() {
		return nil, &ProductUnavailableError{ProductID: id}
	}
	return p, nil
}

// Reserve decrements stock by qty iff stock >= qty.
func (l *Ledger) Reserve(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return errors.Errorf("reserve %s: non-positive quantity %d", id, qty)
	}
	ok, err := l.products.ApplyStockDelta(ctx, id, -qty, qty)
	if err != nil {
		return errors.Wrapf(err, "reserve stock for %s", id)
	}
	if ok {
		return nil
	}

	// The conditional update matched nothing: either the row vanished or
	// stock is short. Re-read only to build a precise error.
	p, err := l.products.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return &ProductUnavailableError{ProductID: id}
		}
		return errors.Wrapf(err, "reserve stock for %s", id)
	}
	return &InsufficientStockError{ProductID: id, Requested: qty, Available: p.Stock}
}

// Release increments stock by qty. Soft-deleted products still get their
// stock back; only a missing row fails.
func (l *Ledger) Release(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return errors.Errorf("release %s: non-positive quantity %d", id, qty)
	}
	ok, err := l.products.ApplyStockDelta(ctx, id, qty, 0)
	if err != nil {
		return errors.Wrapf(err, "release stock for %s", id)
	}
	if !ok {
		return &ProductUnavailableError{ProductID: id}
	}
	return nil
}
