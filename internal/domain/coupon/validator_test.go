package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	byCode   map[string]*Coupon
	counts   map[string]int
	findErr  error
	countErr error
}

func (m *mockCouponRepo) FindActiveByCode(_ context.Context, code string) (*Coupon, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	c, ok := m.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *mockCouponRepo) CountUsages(_ context.Context, couponID string) (int, error) {
	return m.counts[couponID], m.countErr
}

type usageKey struct{ user, coupon string }

type mockUsageRepo struct {
	rows map[usageKey]bool
}

func newUsageRepo() *mockUsageRepo {
	return &mockUsageRepo{rows: make(map[usageKey]bool)}
}

func (m *mockUsageRepo) Exists(_ context.Context, userID, couponID string) (bool, error) {
	return m.rows[usageKey{userID, couponID}], nil
}

func (m *mockUsageRepo) Insert(_ context.Context, userID, couponID string) error {
	m.rows[usageKey{userID, couponID}] = true
	return nil
}

func (m *mockUsageRepo) Delete(_ context.Context, userID, couponID string) error {
	delete(m.rows, usageKey{userID, couponID})
	return nil
}

func newCouponRepo(coupons ...*Coupon) *mockCouponRepo {
	byCode := make(map[string]*Coupon, len(coupons))
	for _, c := range coupons {
		byCode[c.Code] = c
	}
	return &mockCouponRepo{byCode: byCode, counts: make(map[string]int)}
}

func intPtr(v int) *int { return &v }

func TestEvaluator_Check(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(time.Hour)

	tests := []struct {
		name       string
		coupon     *Coupon
		usedBy     string
		usages     int
		code       string
		running    decimal.Decimal
		wantAmount decimal.Decimal
		wantErr    error
	}{
		{
			name:       "valid percentage coupon",
			coupon:     &Coupon{ID: "c1", Code: "SAVE10", Type: DiscountPercentage, Value: d("10"), IsActive: true},
			code:       "SAVE10",
			running:    d("100"),
			wantAmount: d("10"),
		},
		{
			name:       "code is matched case-insensitively",
			coupon:     &Coupon{ID: "c1", Code: "SAVE10", Type: DiscountPercentage, Value: d("10"), IsActive: true},
			code:       "  save10 ",
			running:    d("100"),
			wantAmount: d("10"),
		},
		{
			name:    "unknown code",
			code:    "BOGUS",
			running: d("100"),
			wantErr: ErrCouponInvalid,
		},
		{
			name:    "blank code",
			code:    "   ",
			running: d("100"),
			wantErr: ErrCouponInvalid,
		},
		{
			name:    "inactive coupon",
			coupon:  &Coupon{ID: "c1", Code: "OFF", Type: DiscountFixed, Value: d("5"), IsActive: false},
			code:    "OFF",
			running: d("100"),
			wantErr: ErrCouponInvalid,
		},
		{
			name:    "expired coupon",
			coupon:  &Coupon{ID: "c1", Code: "OLD", Type: DiscountFixed, Value: d("5"), IsActive: true, ExpiresAt: &past},
			code:    "OLD",
			running: d("100"),
			wantErr: ErrCouponExpired,
		},
		{
			name:       "expiry in the future",
			coupon:     &Coupon{ID: "c1", Code: "SOON", Type: DiscountFixed, Value: d("5"), IsActive: true, ExpiresAt: &future},
			code:       "SOON",
			running:    d("100"),
			wantAmount: d("5"),
		},
		{
			name:    "expiry checked before usage",
			coupon:  &Coupon{ID: "c1", Code: "OLD", Type: DiscountFixed, Value: d("5"), IsActive: true, ExpiresAt: &past},
			usedBy:  "u1",
			code:    "OLD",
			running: d("100"),
			wantErr: ErrCouponExpired,
		},
		{
			name:    "already used by this user",
			coupon:  &Coupon{ID: "c1", Code: "ONCE", Type: DiscountFixed, Value: d("5"), IsActive: true},
			usedBy:  "u1",
			code:    "ONCE",
			running: d("100"),
			wantErr: ErrCouponAlreadyUsed,
		},
		{
			name:    "used by another user does not block",
			coupon:  &Coupon{ID: "c1", Code: "ONCE", Type: DiscountFixed, Value: d("5"), IsActive: true},
			usedBy:  "u2",
			code:    "ONCE",
			running: d("100"),
			// u2's row counts toward the limit only.
			wantAmount: d("5"),
		},
		{
			name:    "usage limit reached",
			coupon:  &Coupon{ID: "c1", Code: "LIMITED", Type: DiscountFixed, Value: d("5"), IsActive: true, UsageLimit: intPtr(3)},
			usages:  3,
			code:    "LIMITED",
			running: d("100"),
			wantErr: ErrCouponLimitReached,
		},
		{
			name:       "usage under limit",
			coupon:     &Coupon{ID: "c1", Code: "LIMITED", Type: DiscountFixed, Value: d("5"), IsActive: true, UsageLimit: intPtr(3)},
			usages:     2,
			code:       "LIMITED",
			running:    d("100"),
			wantAmount: d("5"),
		},
		{
			name:    "minimum not met at 49.99",
			coupon:  &Coupon{ID: "c1", Code: "MIN50", Type: DiscountFixed, Value: d("5"), IsActive: true, MinAmount: d("50")},
			code:    "MIN50",
			running: d("49.99"),
			wantErr: ErrCouponMinimumNotMet,
		},
		{
			name:       "minimum met at exactly 50.00",
			coupon:     &Coupon{ID: "c1", Code: "MIN50", Type: DiscountFixed, Value: d("5"), IsActive: true, MinAmount: d("50")},
			code:       "MIN50",
			running:    d("50.00"),
			wantAmount: d("5"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coupons := newCouponRepo()
			if tt.coupon != nil {
				coupons = newCouponRepo(tt.coupon)
				coupons.counts[tt.coupon.ID] = tt.usages
			}
			usages := newUsageRepo()
			if tt.usedBy != "" {
				usages.rows[usageKey{tt.usedBy, tt.coupon.ID}] = true
			}

			e := NewEvaluator()
			e.now = func() time.Time { return fixedNow }

			got, err := e.Check(context.Background(), Source{Coupons: coupons, Usages: usages}, "u1", tt.code, tt.running)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				var cerr *Error
				require.ErrorAs(t, err, &cerr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "c1", got.CouponID)
			assert.True(t, tt.wantAmount.Equal(got.Amount), "expected %s, got %s", tt.wantAmount, got.Amount)
		})
	}
}

func TestEvaluator_CheckReportsCode(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Check(context.Background(), Source{Coupons: newCouponRepo(), Usages: newUsageRepo()}, "u1", "nope", d("10"))

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "NOPE", cerr.Code)
	assert.Contains(t, err.Error(), `"NOPE"`)
}

func TestEvaluator_CheckRepositoryError(t *testing.T) {
	coupons := newCouponRepo()
	coupons.findErr = errors.New("db down")

	_, err := NewEvaluator().Check(context.Background(), Source{Coupons: coupons, Usages: newUsageRepo()}, "u1", "X", d("10"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCouponInvalid)
	assert.Contains(t, err.Error(), "lookup coupon X")
}

func TestEvaluator_EvaluateStacksOnShrinkingBase(t *testing.T) {
	pct := &Coupon{ID: "a", Code: "A", Type: DiscountPercentage, Value: d("10"), IsActive: true}
	fixed := &Coupon{ID: "b", Code: "B", Type: DiscountFixed, Value: d("5"), IsActive: true}

	tests := []struct {
		name      string
		codes     []string
		wantTotal decimal.Decimal
		wantParts []decimal.Decimal
	}{
		{name: "percentage then fixed", codes: []string{"A", "B"}, wantTotal: d("15"), wantParts: []decimal.Decimal{d("10"), d("5")}},
		{name: "fixed then percentage", codes: []string{"B", "A"}, wantTotal: d("14.5"), wantParts: []decimal.Decimal{d("5"), d("9.5")}},
		{name: "no codes", codes: nil, wantTotal: decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := Source{Coupons: newCouponRepo(pct, fixed), Usages: newUsageRepo()}

			res, err := NewEvaluator().Evaluate(context.Background(), src, "u1", tt.codes, d("100"), nil)
			require.NoError(t, err)
			assert.True(t, tt.wantTotal.Equal(res.Total), "expected %s, got %s", tt.wantTotal, res.Total)
			require.Len(t, res.Applied, len(tt.wantParts))
			for i, want := range tt.wantParts {
				assert.True(t, want.Equal(res.Applied[i].Amount), "coupon %d: expected %s, got %s", i, want, res.Applied[i].Amount)
			}
			assert.True(t, d("100").Sub(res.Total).GreaterThanOrEqual(decimal.Zero))
		})
	}
}

func TestEvaluator_EvaluateMinimumUsesRunningBase(t *testing.T) {
	big := &Coupon{ID: "a", Code: "BIG", Type: DiscountFixed, Value: d("20"), IsActive: true}
	minimum := &Coupon{ID: "b", Code: "MIN50", Type: DiscountFixed, Value: d("5"), IsActive: true, MinAmount: d("50")}
	src := Source{Coupons: newCouponRepo(big, minimum), Usages: newUsageRepo()}

	_, err := NewEvaluator().Evaluate(context.Background(), src, "u1", []string{"BIG", "MIN50"}, d("60"), nil)
	require.ErrorIs(t, err, ErrCouponMinimumNotMet)
}

func TestEvaluator_EvaluateDuplicateCodeSeesRecordedUsage(t *testing.T) {
	c := &Coupon{ID: "a", Code: "ONCE", Type: DiscountFixed, Value: d("5"), IsActive: true}
	usages := newUsageRepo()
	src := Source{Coupons: newCouponRepo(c), Usages: usages}

	record := func(ctx context.Context, a Applied) error {
		return usages.Insert(ctx, "u1", a.CouponID)
	}

	_, err := NewEvaluator().Evaluate(context.Background(), src, "u1", []string{"ONCE", "once"}, d("100"), record)
	require.ErrorIs(t, err, ErrCouponAlreadyUsed)
}

func TestEvaluator_EvaluateRecordError(t *testing.T) {
	c := &Coupon{ID: "a", Code: "X", Type: DiscountFixed, Value: d("5"), IsActive: true}
	src := Source{Coupons: newCouponRepo(c), Usages: newUsageRepo()}

	_, err := NewEvaluator().Evaluate(context.Background(), src, "u1", []string{"X"}, d("100"),
		func(context.Context, Applied) error { return errors.New("insert failed") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record coupon X")
}
