package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID        string
	SellerID  string
	Title     string
	Price     decimal.Decimal
	Stock     int
	DeletedAt *time.Time
}

// Deleted reports whether the product was soft-deleted.
func (p *Product) Deleted() bool {
	return p.DeletedAt != nil
}

// Repository defines the product operations the order core needs. Every
// call runs inside the caller's transaction.
type Repository interface {
	// FindByID returns the product including soft-deleted rows, or
	// ErrNotFound when no row exists.
	FindByID(ctx context.Context, id string) (*Product, error)
	// ApplyStockDelta adds delta to the stock of id if and only if the
	// current stock is at least minStock. It reports whether a row was
	// updated.
	ApplyStockDelta(ctx context.Context, id string, delta, minStock int) (bool, error)
}
