package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the running subtotal, capped
	// at MaxDiscount when set.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount, capped at the running subtotal.
	DiscountFixed DiscountType = "fixed"
)

// Rejection reasons, checked in this order by Evaluator.Check.
var (
	ErrCouponInvalid       = errors.New("invalid coupon code")
	ErrCouponExpired       = errors.New("coupon expired")
	ErrCouponAlreadyUsed   = errors.New("coupon already used")
	ErrCouponLimitReached  = errors.New("coupon usage limit reached")
	ErrCouponMinimumNotMet = errors.New("order amount below coupon minimum")
)

// ErrNotFound is returned by repositories when no active coupon matches.
var ErrNotFound = errors.New("coupon not found")

// Error ties a rejection reason to the code that caused it.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("coupon %q: %s", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Coupon is a discount code definition.
type Coupon struct {
	ID          string
	Code        string
	Type        DiscountType
	Value       decimal.Decimal
	MinAmount   decimal.Decimal
	MaxDiscount decimal.NullDecimal
	UsageLimit  *int
	ExpiresAt   *time.Time
	IsActive    bool
}

// Applied records the discount one coupon contributed to an order.
type Applied struct {
	CouponID string
	Code     string
	Amount   decimal.Decimal
}

// NormalizeCode trims and upper-cases a code for lookup and storage.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides coupon lookups inside a transaction.
type Repository interface {
	// FindActiveByCode returns the active coupon with the given normalized
	// code, or ErrNotFound.
	FindActiveByCode(ctx context.Context, code string) (*Coupon, error)
	// CountUsages returns the number of usage rows recorded for couponID
	// across all users.
	CountUsages(ctx context.Context, couponID string) (int, error)
}

// UsageRepository tracks one redemption per (user, coupon).
type UsageRepository interface {
	Exists(ctx context.Context, userID, couponID string) (bool, error)
	Insert(ctx context.Context, userID, couponID string) error
	Delete(ctx context.Context, userID, couponID string) error
}
