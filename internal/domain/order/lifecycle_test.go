package order_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/order"
)

func TestService_CancelOrderRestoresState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := f.place(t, alice, []string{"TEN", "FIVE"}, line("p1", 3), line("p3", 2))
	require.Equal(t, 7, f.stock(t, "p1"))
	require.Zero(t, f.stock(t, "p3"))

	cancelled, err := f.svc.CancelOrder(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)

	assert.Equal(t, 10, f.stock(t, "p1"))
	assert.Equal(t, 2, f.stock(t, "p3"))
	assert.False(t, f.store.UsageExists("alice", "c-ten"))
	assert.False(t, f.store.UsageExists("alice", "c-five"))

	// The same coupons can be redeemed again.
	again := f.place(t, alice, []string{"TEN", "FIVE"}, line("p1", 3), line("p3", 2))
	assertDecimal(t, o.Total.String(), again.Total)
}

func TestService_CancelOrderTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t, alice, nil, line("p1", 4))

	_, err := f.svc.CancelOrder(ctx, alice, o.ID)
	require.NoError(t, err)

	_, err = f.svc.CancelOrder(ctx, alice, o.ID)
	require.ErrorIs(t, err, order.ErrNotCancellable)
	assert.Equal(t, 10, f.stock(t, "p1"))
}

func TestService_CancelOrderAccess(t *testing.T) {
	tests := []struct {
		name    string
		who     auth.Requester
		id      string
		wantErr error
	}{
		{name: "owner", who: alice},
		{name: "admin", who: admin},
		{name: "other customer", who: bob, wantErr: auth.ErrForbidden},
		{name: "missing order", who: alice, id: "missing", wantErr: order.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			o := f.place(t, alice, nil, line("p1", 1))
			id := o.ID
			if tt.id != "" {
				id = tt.id
			}

			_, err := f.svc.CancelOrder(context.Background(), tt.who, id)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 9, f.stock(t, "p1"))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 10, f.stock(t, "p1"))
		})
	}
}

func TestService_CancelOrderAfterPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t, alice, nil, line("p1", 1))

	_, err := f.svc.Checkout(ctx, alice, o.ID)
	require.NoError(t, err)

	_, err = f.svc.CancelOrder(ctx, alice, o.ID)
	require.ErrorIs(t, err, order.ErrNotCancellable)
	assert.Equal(t, 9, f.stock(t, "p1"))
}

func TestService_CancelOrderReleasesDeletedProduct(t *testing.T) {
	f := newFixture(t)
	o := f.place(t, alice, nil, line("p2", 2))

	p, _ := f.store.Product("p2")
	deleted := time.Now()
	p.DeletedAt = &deleted
	f.store.PutProduct(p)

	_, err := f.svc.CancelOrder(context.Background(), alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, f.stock(t, "p2"))
}

func TestService_CancelOrderPublishes(t *testing.T) {
	f := newFixture(t)
	o := f.place(t, alice, nil, line("p1", 1))

	_, err := f.svc.CancelOrder(context.Background(), alice, o.ID)
	require.NoError(t, err)
	f.drain(t)

	require.Len(t, f.notifier.updated, 1)
	e := f.notifier.updated[0]
	assert.Equal(t, order.EventCancelled, e.Kind)
	assert.Equal(t, order.StatusPending, e.From)
	assert.Equal(t, order.StatusCancelled, e.Status)
}

func TestService_UpdateOrderStatus(t *testing.T) {
	tests := []struct {
		name    string
		who     auth.Requester
		steps   []order.Status
		wantErr error
	}{
		{name: "full lifecycle", who: admin, steps: []order.Status{order.StatusPaid, order.StatusShipped, order.StatusDelivered}},
		{name: "skip to shipped", who: admin, steps: []order.Status{order.StatusShipped}},
		{name: "customer", who: alice, steps: []order.Status{order.StatusPaid}, wantErr: auth.ErrForbidden},
		{name: "backwards", who: admin, steps: []order.Status{order.StatusShipped, order.StatusPaid}, wantErr: order.ErrInvalidTransition},
		{name: "after delivery", who: admin, steps: []order.Status{order.StatusDelivered, order.StatusShipped}, wantErr: order.ErrInvalidTransition},
		{name: "cancel through update", who: admin, steps: []order.Status{order.StatusCancelled}, wantErr: order.ErrInvalidTransition},
		{name: "unknown status", who: admin, steps: []order.Status{"lost"}, wantErr: order.ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			o := f.place(t, alice, nil, line("p1", 1))

			var err error
			var got *order.Order
			for _, st := range tt.steps {
				if got, err = f.svc.UpdateOrderStatus(ctx, tt.who, o.ID, st); err != nil {
					break
				}
			}
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.steps[len(tt.steps)-1], got.Status)

			stored, err := f.svc.GetOrder(ctx, admin, o.ID)
			require.NoError(t, err)
			assert.Equal(t, got.Status, stored.Status)
			assert.Equal(t, 9, f.stock(t, "p1"))
		})
	}
}

func TestService_UpdateOrderStatusMissing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpdateOrderStatus(context.Background(), admin, "missing", order.StatusPaid)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestService_Checkout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t, alice, nil, line("p2", 1))

	res, err := f.svc.Checkout(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, res.Order.Status)
	assert.Equal(t, "ref-"+o.ID, res.PaymentReference)

	_, err = f.svc.Checkout(ctx, alice, o.ID)
	require.ErrorIs(t, err, order.ErrInvalidTransition)
	assert.Equal(t, 1, f.payments.calls)

	f.drain(t)
	require.Len(t, f.notifier.updated, 1)
	assert.Equal(t, order.EventPaid, f.notifier.updated[0].Kind)
}

func TestService_CheckoutDeclined(t *testing.T) {
	f := newFixture(t)
	f.payments.approve = false
	ctx := context.Background()
	o := f.place(t, alice, nil, line("p2", 1))

	_, err := f.svc.Checkout(ctx, alice, o.ID)
	require.ErrorIs(t, err, order.ErrPaymentDeclined)
	var derr *order.PaymentDeclinedError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "insufficient funds", derr.Reason)

	stored, err := f.svc.GetOrder(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, stored.Status)
}

func TestService_CheckoutAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t, alice, nil, line("p2", 1))

	_, err := f.svc.Checkout(ctx, bob, o.ID)
	require.ErrorIs(t, err, auth.ErrForbidden)
	assert.Zero(t, f.payments.calls)

	_, err = f.svc.Checkout(ctx, alice, "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestService_CheckoutAuthorizerError(t *testing.T) {
	f := newFixture(t)
	f.payments.err = errBoom
	o := f.place(t, alice, nil, line("p2", 1))

	_, err := f.svc.Checkout(context.Background(), alice, o.ID)
	require.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, order.ErrPaymentDeclined)
}

func TestService_CheckoutVoidsWhenOrderChanged(t *testing.T) {
	for _, tt := range []struct {
		name    string
		voidErr error
	}{
		{name: "voided"},
		{name: "void fails", voidErr: errBoom},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			o := f.place(t, alice, nil, line("p2", 1))
			f.payments.voidErr = tt.voidErr

			// The customer cancels while the charge is being authorized.
			f.payments.during = func() {
				_, err := f.svc.CancelOrder(context.Background(), alice, o.ID)
				require.NoError(t, err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			_, err := f.svc.Checkout(ctx, alice, o.ID)
			require.ErrorIs(t, err, order.ErrInvalidTransition)
			assert.Equal(t, []string{"ref-" + o.ID}, f.payments.voided)

			stored, err := f.svc.GetOrder(context.Background(), alice, o.ID)
			require.NoError(t, err)
			assert.Equal(t, order.StatusCancelled, stored.Status)
		})
	}
}

func TestService_CheckoutDeclinedIsNotVoided(t *testing.T) {
	f := newFixture(t)
	f.payments.approve = false
	o := f.place(t, alice, nil, line("p2", 1))

	_, err := f.svc.Checkout(context.Background(), alice, o.ID)
	require.ErrorIs(t, err, order.ErrPaymentDeclined)
	assert.Empty(t, f.payments.voided)
}

func TestService_GetOrderAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.place(t, alice, nil, line("p1", 1))

	_, err := f.svc.GetOrder(ctx, bob, o.ID)
	require.ErrorIs(t, err, auth.ErrForbidden)

	got, err := f.svc.GetOrder(ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
}

func TestService_ListOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.place(t, alice, nil, line("p1", 1))
	f.place(t, alice, nil, line("p1", 1))
	bobs := f.place(t, bob, nil, line("p1", 1))
	_, err := f.svc.UpdateOrderStatus(ctx, admin, bobs.ID, order.StatusPaid)
	require.NoError(t, err)
	f.drain(t)

	tests := []struct {
		name      string
		who       auth.Requester
		filter    order.ListFilter
		wantTotal int
		wantUser  string
	}{
		{name: "customer sees own", who: alice, wantTotal: 2, wantUser: "alice"},
		{name: "customer cannot widen filter", who: alice, filter: order.ListFilter{UserID: "bob"}, wantTotal: 2, wantUser: "alice"},
		{name: "admin sees all", who: admin, wantTotal: 3},
		{name: "admin filters by user", who: admin, filter: order.ListFilter{UserID: "bob"}, wantTotal: 1, wantUser: "bob"},
		{name: "admin filters by status", who: admin, filter: order.ListFilter{Status: order.StatusPaid}, wantTotal: 1, wantUser: "bob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.ListOrders(ctx, tt.who, tt.filter, order.Page{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, res.Page.TotalItems)
			assert.Equal(t, order.DefaultPageSize, res.Page.Size)
			assert.Equal(t, 1, res.Page.TotalPages)
			require.Len(t, res.Orders, tt.wantTotal)
			if tt.wantUser != "" {
				for _, o := range res.Orders {
					assert.Equal(t, tt.wantUser, o.UserID)
				}
			}
		})
	}
}

func TestService_ListOrdersCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.place(t, alice, nil, line("p1", 1))
	f.drain(t)

	first, err := f.svc.ListOrders(ctx, alice, order.ListFilter{}, order.Page{Number: 1, Size: 10})
	require.NoError(t, err)
	require.Equal(t, 1, first.Page.TotalItems)

	_, err = f.svc.ListOrders(ctx, alice, order.ListFilter{}, order.Page{Number: 1, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.hits)

	f.place(t, alice, nil, line("p1", 1))
	f.drain(t)

	after, err := f.svc.ListOrders(ctx, alice, order.ListFilter{}, order.Page{Number: 1, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, after.Page.TotalItems)
	assert.Equal(t, 1, f.cache.hits)

	_, err = f.svc.ListOrders(ctx, admin, order.ListFilter{}, order.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.hits)
}

func TestService_ListOrdersCacheReadError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.place(t, alice, nil, line("p1", 1))
	f.drain(t)
	f.cache.readErr = errBoom

	res, err := f.svc.ListOrders(ctx, alice, order.ListFilter{}, order.Page{Number: 1, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Page.TotalItems)
	assert.Zero(t, f.cache.writes, "no write without a version from a successful read")
}

func TestService_ListOrdersPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for range 5 {
		f.place(t, alice, nil, line("p1", 1))
	}

	res, err := f.svc.ListOrders(ctx, alice, order.ListFilter{}, order.Page{Number: 3, Size: 2})
	require.NoError(t, err)
	assert.Len(t, res.Orders, 1)
	assert.Equal(t, 5, res.Page.TotalItems)
	assert.Equal(t, 3, res.Page.TotalPages)

	res, err = f.svc.ListOrders(ctx, admin, order.ListFilter{}, order.Page{Size: 1000})
	require.NoError(t, err)
	assert.Equal(t, order.MaxPageSize, res.Page.Size)

	_, err = f.svc.ListOrders(ctx, alice, order.ListFilter{Status: "lost"}, order.Page{})
	require.ErrorIs(t, err, order.ErrInvalidStatus)
}
