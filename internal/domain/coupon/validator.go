package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// MaxCodesPerOrder bounds how many coupons a single order may stack.
const MaxCodesPerOrder = 10

// Source is the transaction-scoped view of coupons and their usage that
// the evaluator reads from.
type Source struct {
	Coupons Repository
	Usages  UsageRepository
}

// Evaluation is the result of folding a list of codes over a subtotal.
type Evaluation struct {
	Applied []Applied
	Total   decimal.Decimal
}

// Evaluator validates coupons against a running subtotal and a user's
// usage history. It holds no state besides its clock.
type Evaluator struct {
	now func() time.Time
}

// NewEvaluator creates an Evaluator using the wall clock.
func NewEvaluator() *Evaluator {
	return &Evaluator{now: time.Now}
}

// Check validates a single code for userID against running and returns the
// discount it would apply. Checks run in a fixed order and each failure
// reports a distinct reason wrapped in *Error.
func (e *Evaluator) Check(ctx context.Context, src Source, userID, code string, running decimal.Decimal) (Applied, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Applied{}, &Error{Code: code, Err: ErrCouponInvalid}
	}

	c, err := src.Coupons.FindActiveByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Applied{}, &Error{Code: code, Err: ErrCouponInvalid}
		}
		return Applied{}, errors.Wrapf(err, "lookup coupon %s", code)
	}
	if !c.IsActive {
		return Applied{}, &Error{Code: code, Err: ErrCouponInvalid}
	}

	if c.ExpiresAt != nil && !c.ExpiresAt.After(e.now()) {
		return Applied{}, &Error{Code: code, Err: ErrCouponExpired}
	}

	used, err := src.Usages.Exists(ctx, userID, c.ID)
	if err != nil {
		return Applied{}, errors.Wrapf(err, "check usage of coupon %s", code)
	}
	if used {
		return Applied{}, &Error{Code: code, Err: ErrCouponAlreadyUsed}
	}

	if c.UsageLimit != nil {
		n, err := src.Coupons.CountUsages(ctx, c.ID)
		if err != nil {
			return Applied{}, errors.Wrapf(err, "count usages of coupon %s", code)
		}
		if n >= *c.UsageLimit {
			return Applied{}, &Error{Code: code, Err: ErrCouponLimitReached}
		}
	}

	if running.LessThan(c.MinAmount) {
		return Applied{}, &Error{Code: code, Err: ErrCouponMinimumNotMet}
	}

	amount, err := Discount(c, running)
	if err != nil {
		return Applied{}, &Error{Code: code, Err: err}
	}

	return Applied{CouponID: c.ID, Code: c.Code, Amount: amount}, nil
}

// Evaluate applies codes in order against a base that shrinks by each
// coupon's discount. onApplied runs after every successful check, before the
// next code is evaluated, so a usage row recorded there is visible to later
// checks in the same request. The first failure aborts the fold.
func (e *Evaluator) Evaluate(
	ctx context.Context,
	src Source,
	userID string,
	codes []string,
	subtotal decimal.Decimal,
	onApplied func(context.Context, Applied) error,
) (*Evaluation, error) {
	res := &Evaluation{Total: decimal.Zero}
	running := subtotal

	for _, code := range codes {
		a, err := e.Check(ctx, src, userID, code, running)
		if err != nil {
			return nil, err
		}
		if onApplied != nil {
			if err := onApplied(ctx, a); err != nil {
				return nil, errors.Wrapf(err, "record coupon %s", a.Code)
			}
		}
		res.Applied = append(res.Applied, a)
		res.Total = res.Total.Add(a.Amount)
		running = running.Sub(a.Amount)
	}

	return res, nil
}
