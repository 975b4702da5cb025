package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-orders/internal/domain/coupon"
)

var (
	_ coupon.Repository      = (*CouponRepository)(nil)
	_ coupon.UsageRepository = (*UsageRepository)(nil)
)

const (
	getActiveCouponSQL = `SELECT id, code, discount_type, value, min_amount, max_discount,
			usage_limit, expires_at, is_active
		FROM coupons WHERE code = UPPER($1) AND is_active`

	countCouponUsagesSQL = `SELECT count(*) FROM coupon_usages WHERE coupon_id = $1`

	upsertCouponSQL = `INSERT INTO coupons (id, code, discount_type, value, min_amount,
			max_discount, usage_limit, expires_at, is_active)
		VALUES ($1, UPPER($2), $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value,
			min_amount = EXCLUDED.min_amount,
			max_discount = EXCLUDED.max_discount,
			usage_limit = EXCLUDED.usage_limit,
			expires_at = EXCLUDED.expires_at,
			is_active = EXCLUDED.is_active`

	usageExistsSQL = `SELECT EXISTS (
		SELECT 1 FROM coupon_usages WHERE user_id = $1 AND coupon_id = $2)`

	insertUsageSQL = `INSERT INTO coupon_usages (user_id, coupon_id) VALUES ($1, $2)`

	deleteUsageSQL = `DELETE FROM coupon_usages WHERE user_id = $1 AND coupon_id = $2`
)

// CouponRepository implements coupon.Repository.
type CouponRepository struct {
	q querier
}

// FindActiveByCode looks up an active coupon. The SQL applies UPPER() on the
// parameter, so the code is passed as-is.
func (r *CouponRepository) FindActiveByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	var (
		c     coupon.Coupon
		typ   string
		limit *int32
	)
	err := r.q.QueryRow(ctx, getActiveCouponSQL, code).Scan(
		&c.ID, &c.Code, &typ, &c.Value, &c.MinAmount, &c.MaxDiscount,
		&limit, &c.ExpiresAt, &c.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get coupon %q", code)
	}
	c.Type = coupon.DiscountType(typ)
	if limit != nil {
		n := int(*limit)
		c.UsageLimit = &n
	}
	return &c, nil
}

// CountUsages counts usage rows across all users.
func (r *CouponRepository) CountUsages(ctx context.Context, couponID string) (int, error) {
	var n int64
	if err := r.q.QueryRow(ctx, countCouponUsagesSQL, couponID).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count usages of %q", couponID)
	}
	return int(n), nil
}

// Upsert inserts a coupon or replaces the definition stored under its code.
func (r *CouponRepository) Upsert(ctx context.Context, c coupon.Coupon) error {
	var limit *int32
	if c.UsageLimit != nil {
		n := int32(*c.UsageLimit)
		limit = &n
	}
	_, err := r.q.Exec(ctx, upsertCouponSQL,
		c.ID, c.Code, string(c.Type), c.Value, c.MinAmount,
		c.MaxDiscount, limit, c.ExpiresAt, c.IsActive,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert coupon %q", c.Code)
	}
	return nil
}

// UsageRepository implements coupon.UsageRepository.
type UsageRepository struct {
	q querier
}

func (r *UsageRepository) Exists(ctx context.Context, userID, couponID string) (bool, error) {
	var ok bool
	if err := r.q.QueryRow(ctx, usageExistsSQL, userID, couponID).Scan(&ok); err != nil {
		return false, errors.Wrapf(err, "check usage of %q", couponID)
	}
	return ok, nil
}

// Insert records a redemption. A unique violation means a concurrent
// transaction redeemed the same coupon for the same user; it is reported as
// a conflict so the retry observes the committed row.
func (r *UsageRepository) Insert(ctx context.Context, userID, couponID string) error {
	if _, err := r.q.Exec(ctx, insertUsageSQL, userID, couponID); err != nil {
		if isUniqueViolation(err) {
			return &conflictError{err: err}
		}
		return errors.Wrapf(err, "insert usage of %q", couponID)
	}
	return nil
}

func (r *UsageRepository) Delete(ctx context.Context, userID, couponID string) error {
	if _, err := r.q.Exec(ctx, deleteUsageSQL, userID, couponID); err != nil {
		return errors.Wrapf(err, "delete usage of %q", couponID)
	}
	return nil
}
