package review

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/product"
)

// ProductFinder looks up catalog products outside any transaction.
type ProductFinder interface {
	FindByID(ctx context.Context, id string) (*product.Product, error)
}

// CreateRequest is the input of Service.Create.
type CreateRequest struct {
	ProductID string
	Rating    int
	Comment   string
}

// Service creates reviews.
type Service struct {
	reviews   Repository
	products  ProductFinder
	purchases PurchaseVerifier

	requirePurchase func() bool
	now             func() time.Time
	newID           func() string
}

// NewService creates a review Service gated by RequirePurchase.
func NewService(reviews Repository, products ProductFinder, purchases PurchaseVerifier) *Service {
	return &Service{
		reviews:         reviews,
		products:        products,
		purchases:       purchases,
		requirePurchase: RequirePurchase,
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

// Create stores a review by who for an existing, non-deleted product.
func (s *Service) Create(ctx context.Context, who auth.Requester, req CreateRequest) (*Review, error) {
	if who.UserID == "" {
		return nil, auth.ErrForbidden
	}
	if req.Rating < MinRating || req.Rating > MaxRating {
		return nil, &InvalidRatingError{Rating: req.Rating}
	}

	p, err := s.products.FindByID(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, errors.Wrapf(product.ErrNotFound, "product %s", req.ProductID)
		}
		return nil, errors.Wrap(err, "find product")
	}
	if p.Deleted() {
		return nil, errors.Wrapf(product.ErrNotFound, "product %s", req.ProductID)
	}

	if s.requirePurchase() {
		ok, err := s.purchases.HasPurchased(ctx, who.UserID, p.ID)
		if err != nil {
			return nil, errors.Wrap(err, "verify purchase")
		}
		if !ok {
			return nil, ErrNotPurchased
		}
	}

	r := &Review{
		ID:        s.newID(),
		ProductID: p.ID,
		UserID:    who.UserID,
		Rating:    req.Rating,
		Comment:   strings.TrimSpace(req.Comment),
		CreatedAt: s.now(),
	}
	if err := s.reviews.Create(ctx, r); err != nil {
		if errors.Is(err, ErrAlreadyReviewed) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create review")
	}

	zctx.From(ctx).Info("Review created",
		zap.String("review_id", r.ID),
		zap.String("product_id", r.ProductID),
		zap.Int("rating", r.Rating),
	)
	return r, nil
}
