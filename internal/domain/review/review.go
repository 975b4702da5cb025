// Package review handles product reviews written by customers.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// Rating bounds, inclusive.
const (
	MinRating = 1
	MaxRating = 5
)

var (
	ErrAlreadyReviewed = errors.New("product already reviewed by user")
	ErrNotPurchased    = errors.New("product not purchased by user")
)

// InvalidRatingError reports a rating outside [MinRating, MaxRating].
type InvalidRatingError struct {
	Rating int
}

func (e *InvalidRatingError) Error() string {
	return fmt.Sprintf("rating must be between %d and %d (got %d)", MinRating, MaxRating, e.Rating)
}

// Review is one user's rating of one product.
type Review struct {
	ID        string
	ProductID string
	UserID    string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// Repository stores reviews.
type Repository interface {
	// Create inserts r or returns ErrAlreadyReviewed when the user already
	// reviewed the product.
	Create(ctx context.Context, r *Review) error
}

// PurchaseVerifier answers whether a user bought a product in an order that
// was paid for.
type PurchaseVerifier interface {
	HasPurchased(ctx context.Context, userID, productID string) (bool, error)
}
