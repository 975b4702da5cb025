package order_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/coupon"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/storage/memory"
)

var (
	alice = auth.Requester{UserID: "alice", Role: auth.RoleCustomer}
	bob   = auth.Requester{UserID: "bob", Role: auth.RoleCustomer}
	admin = auth.Requester{UserID: "ops", Role: auth.RoleAdmin}

	shipping = order.ShippingInfo{
		FullName: "Alice Liddell",
		Address:  "1 Rabbit Hole",
		City:     "Oxford",
		Country:  "GB",
	}
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, d(want).Equal(got), "expected %s, got %s", want, got)
}

type recordingNotifier struct {
	mu      sync.Mutex
	created []order.CreatedEvent
	updated []order.UpdatedEvent
	err     error
}

func (n *recordingNotifier) OrderCreated(_ context.Context, e order.CreatedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, e)
	return n.err
}

func (n *recordingNotifier) OrderUpdated(_ context.Context, e order.UpdatedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updated = append(n.updated, e)
	return n.err
}

type recordingCache struct {
	mu          sync.Mutex
	entries     map[string]*order.ListResult
	versions    map[string]order.ListVersion
	invalidated []string
	hits        int
	writes      int
	readErr     error
}

func newRecordingCache() *recordingCache {
	return &recordingCache{
		entries:  make(map[string]*order.ListResult),
		versions: make(map[string]order.ListVersion),
	}
}

func (c *recordingCache) InvalidateUserOrders(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, userID)
	c.versions[userID]++
	for k := range c.entries {
		if strings.HasPrefix(k, userID+"|") {
			delete(c.entries, k)
		}
	}
	return nil
}

func (c *recordingCache) GetUserOrders(_ context.Context, userID, key string) (*order.ListResult, order.ListVersion, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, 0, false, c.readErr
	}
	res, ok := c.entries[userID+"|"+key]
	if ok {
		c.hits++
	}
	return res, c.versions[userID], ok, nil
}

func (c *recordingCache) SetUserOrders(_ context.Context, userID, key string, v order.ListVersion, res *order.ListResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	if v != c.versions[userID] {
		return nil
	}
	c.entries[userID+"|"+key] = res
	return nil
}

type stubAuthorizer struct {
	approve bool
	err     error
	calls   int
	voidErr error
	voided  []string
	// during runs inside Authorize, before the verdict.
	during func()
}

func (a *stubAuthorizer) Authorize(_ context.Context, req order.PaymentRequest) (*order.Authorization, error) {
	a.calls++
	if a.during != nil {
		a.during()
	}
	if a.err != nil {
		return nil, a.err
	}
	if !a.approve {
		return &order.Authorization{Reason: "insufficient funds"}, nil
	}
	return &order.Authorization{Approved: true, Reference: "ref-" + req.OrderID}, nil
}

func (a *stubAuthorizer) Void(_ context.Context, reference string) error {
	a.voided = append(a.voided, reference)
	return a.voidErr
}

type fixture struct {
	store    *memory.Store
	svc      *order.Service
	notifier *recordingNotifier
	cache    *recordingCache
	payments *stubAuthorizer
}

// newFixture builds a service over a memory store seeded with a small
// catalog:
//
//	p1 10.00 x10, p2 25.50 x3, p3 5.00 x2, gone 1.00 x5 (deleted)
//
// and coupons TEN (10%), FIVE (5 fixed), MIN50 (5 fixed, min 50),
// CAPPED (50% max 20), ONCE (limit 1), OLD (expired), OFF (inactive).
func newFixture(t *testing.T, opts ...func(*order.Options)) *fixture {
	t.Helper()

	store := memory.New()
	deleted := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, p := range []product.Product{
		{ID: "p1", SellerID: "s1", Title: "Waffle", Price: d("10.00"), Stock: 10},
		{ID: "p2", SellerID: "s1", Title: "Creme Brulee", Price: d("25.50"), Stock: 3},
		{ID: "p3", SellerID: "s2", Title: "Macaron", Price: d("5.00"), Stock: 2},
		{ID: "gone", SellerID: "s2", Title: "Old Cake", Price: d("1.00"), Stock: 5, DeletedAt: &deleted},
	} {
		store.PutProduct(p)
	}

	expired := time.Now().Add(-time.Hour)
	limit := 1
	for _, c := range []coupon.Coupon{
		{ID: "c-ten", Code: "TEN", Type: coupon.DiscountPercentage, Value: d("10"), IsActive: true},
		{ID: "c-five", Code: "FIVE", Type: coupon.DiscountFixed, Value: d("5"), IsActive: true},
		{ID: "c-min50", Code: "MIN50", Type: coupon.DiscountFixed, Value: d("5"), MinAmount: d("50"), IsActive: true},
		{ID: "c-capped", Code: "CAPPED", Type: coupon.DiscountPercentage, Value: d("50"), MaxDiscount: decimal.NewNullDecimal(d("20")), IsActive: true},
		{ID: "c-once", Code: "ONCE", Type: coupon.DiscountFixed, Value: d("1"), UsageLimit: &limit, IsActive: true},
		{ID: "c-old", Code: "OLD", Type: coupon.DiscountFixed, Value: d("1"), ExpiresAt: &expired, IsActive: true},
		{ID: "c-off", Code: "OFF", Type: coupon.DiscountFixed, Value: d("1")},
	} {
		store.PutCoupon(c)
	}

	f := &fixture{
		store:    store,
		notifier: &recordingNotifier{},
		cache:    newRecordingCache(),
		payments: &stubAuthorizer{approve: true},
	}

	o := order.Options{
		Payments:    f.payments,
		Notifier:    f.notifier,
		Cache:       f.cache,
		HookTimeout: time.Second,
	}
	for _, fn := range opts {
		fn(&o)
	}

	svc, err := order.NewService(store, store, coupon.NewEvaluator(), o)
	require.NoError(t, err)
	f.svc = svc

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, svc.Shutdown(ctx))
	})
	return f
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Shutdown(ctx))
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, ok := f.store.Product(id)
	require.True(t, ok, "product %s", id)
	return p.Stock
}

func (f *fixture) place(t *testing.T, who auth.Requester, codes []string, lines ...order.CartLine) *order.Order {
	t.Helper()
	res, err := f.svc.PlaceOrder(context.Background(), who, order.PlaceOrderRequest{
		Lines:       lines,
		CouponCodes: codes,
		Shipping:    shipping,
	})
	require.NoError(t, err)
	return res.Order
}

func line(id string, qty int) order.CartLine {
	return order.CartLine{ProductID: id, Quantity: qty}
}

var errBoom = errors.New("boom")
