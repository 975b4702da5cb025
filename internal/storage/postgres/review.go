package postgres

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-orders/internal/domain/review"
)

var _ review.Repository = (*ReviewRepository)(nil)

const insertReviewSQL = `INSERT INTO reviews (id, product_id, user_id, rating, comment, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

// ReviewRepository implements review.Repository.
type ReviewRepository struct {
	q querier
}

func (r *ReviewRepository) Create(ctx context.Context, rv *review.Review) error {
	_, err := r.q.Exec(ctx, insertReviewSQL, rv.ID, rv.ProductID, rv.UserID, rv.Rating, rv.Comment, rv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return review.ErrAlreadyReviewed
		}
		return errors.Wrapf(err, "insert review for %q", rv.ProductID)
	}
	return nil
}
