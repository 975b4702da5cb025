package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount calculates what c takes off base. It never returns a negative
// amount or more than base, and performs no rounding: stacked coupons
// compound on exact values and rounding happens at presentation only.
func Discount(c *Coupon, base decimal.Decimal) (decimal.Decimal, error) {
	if !base.IsPositive() {
		return decimal.Zero, nil
	}

	var amount decimal.Decimal
	switch c.Type {
	case DiscountPercentage:
		amount = base.Mul(c.Value).Div(hundred)
		if c.MaxDiscount.Valid && amount.GreaterThan(c.MaxDiscount.Decimal) {
			amount = c.MaxDiscount.Decimal
		}
	case DiscountFixed:
		amount = decimal.Min(c.Value, base)
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", c.Type)
	}

	return clamp(amount, base), nil
}

// clamp bounds amount to [0, upper].
func clamp(amount, upper decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(upper) {
		return upper
	}
	return amount
}
