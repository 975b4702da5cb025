package order

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/coupon"
	"github.com/xenking/kart-orders/internal/domain/inventory"
)

const (
	DefaultHookConcurrency = 8
	DefaultHookBacklog     = 1024
	DefaultHookTimeout     = 5 * time.Second
)

// Options configures a Service. Zero values pick defaults.
type Options struct {
	MaxTxAttempts   int
	HookConcurrency int
	// HookBacklog bounds hooks waiting for a free slot. Hooks beyond it are
	// dropped.
	HookBacklog int
	HookTimeout time.Duration

	Payments PaymentAuthorizer
	Notifier Notifier
	Cache    ListCache

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider

	// Now and NewID are overridden in tests.
	Now   func() time.Time
	NewID func() string
}

func (o *Options) setDefaults() {
	if o.MaxTxAttempts <= 0 {
		o.MaxTxAttempts = DefaultMaxTxAttempts
	}
	if o.HookConcurrency <= 0 {
		o.HookConcurrency = DefaultHookConcurrency
	}
	if o.HookBacklog <= 0 {
		o.HookBacklog = DefaultHookBacklog
	}
	if o.HookTimeout <= 0 {
		o.HookTimeout = DefaultHookTimeout
	}
	if o.Payments == nil {
		o.Payments = NewRandomAuthorizer(0.5, uint64(time.Now().UnixNano()))
	}
	if o.Notifier == nil {
		o.Notifier = nopNotifier{}
	}
	if o.Cache == nil {
		o.Cache = nopCache{}
	}
	if o.MeterProvider == nil {
		o.MeterProvider = metricnoop.NewMeterProvider()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = tracenoop.NewTracerProvider()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
}

type metrics struct {
	placed       metric.Int64Counter
	cancelled    metric.Int64Counter
	declined     metric.Int64Counter
	voided       metric.Int64Counter
	voidFailures metric.Int64Counter
	conflicts    metric.Int64Counter
	hookFailures metric.Int64Counter
	hooksDropped metric.Int64Counter
}

func newMetrics(m metric.Meter) (metrics, error) {
	var (
		out metrics
		err error
	)
	for _, c := range []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&out.placed, "orders.placed", "Orders committed"},
		{&out.cancelled, "orders.cancelled", "Orders cancelled"},
		{&out.declined, "orders.payment_declined", "Checkouts declined by the payment authorizer"},
		{&out.voided, "orders.payment_voided", "Authorizations voided because the order changed"},
		{&out.voidFailures, "orders.payment_void_failures", "Authorizations that could not be voided"},
		{&out.conflicts, "orders.tx_conflicts", "Transaction attempts aborted by a conflict"},
		{&out.hookFailures, "orders.hook_failures", "Post-commit hooks that returned an error"},
		{&out.hooksDropped, "orders.hooks_dropped", "Post-commit hooks dropped because the backlog was full"},
	} {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return metrics{}, errors.Wrapf(err, "counter %s", c.name)
		}
	}
	return out, nil
}

// Service coordinates order placement and the order lifecycle.
type Service struct {
	tx      Transactor
	reader  Reader
	coupons *coupon.Evaluator

	payments PaymentAuthorizer
	notifier Notifier
	cache    ListCache

	maxAttempts int
	hookTimeout time.Duration
	hooks       errgroup.Group
	backlog     chan struct{}
	queued      sync.WaitGroup

	now   func() time.Time
	newID func() string

	tracer  trace.Tracer
	metrics metrics
}

// NewService creates an order Service.
func NewService(tx Transactor, reader Reader, coupons *coupon.Evaluator, opts Options) (*Service, error) {
	opts.setDefaults()

	m, err := newMetrics(opts.MeterProvider.Meter("kart-orders/order"))
	if err != nil {
		return nil, errors.Wrap(err, "metrics")
	}

	s := &Service{
		tx:          tx,
		reader:      reader,
		coupons:     coupons,
		payments:    opts.Payments,
		notifier:    opts.Notifier,
		cache:       opts.Cache,
		maxAttempts: opts.MaxTxAttempts,
		hookTimeout: opts.HookTimeout,
		backlog:     make(chan struct{}, opts.HookBacklog),
		now:         opts.Now,
		newID:       opts.NewID,
		tracer:      opts.TracerProvider.Tracer("kart-orders/order"),
		metrics:     m,
	}
	s.hooks.SetLimit(opts.HookConcurrency)
	return s, nil
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Lines       []CartLine
	CouponCodes []string
	Shipping    ShippingInfo
}

// PlaceOrderResult holds the committed order.
type PlaceOrderResult struct {
	Order *Order
}

// normalizeLines validates quantities and merges lines for the same product,
// keeping the position of the first occurrence.
func normalizeLines(lines []CartLine) ([]CartLine, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	out := make([]CartLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, l := range lines {
		l.ProductID = strings.TrimSpace(l.ProductID)
		if l.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: l.ProductID, Quantity: l.Quantity}
		}
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// PlaceOrder validates the cart, applies coupons and reserves stock in a
// single transaction. Either the order, its items, its coupon usages and all
// stock decrements are committed together or nothing is.
func (s *Service) PlaceOrder(ctx context.Context, who auth.Requester, req PlaceOrderRequest) (_ *PlaceOrderResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer func() { endSpan(span, rerr) }()

	if who.UserID == "" {
		return nil, auth.ErrForbidden
	}
	lines, err := normalizeLines(req.Lines)
	if err != nil {
		return nil, err
	}
	if len(req.CouponCodes) > coupon.MaxCodesPerOrder {
		return nil, errors.Wrapf(ErrTooManyCoupons, "got %d, max %d", len(req.CouponCodes), coupon.MaxCodesPerOrder)
	}
	if err := req.Shipping.Validate(); err != nil {
		return nil, err
	}

	var placed *Order
	err = s.inTx(ctx, "place order", func(ctx context.Context, r Repositories) error {
		o, err := s.placeInTx(ctx, r, who.UserID, lines, req.CouponCodes, req.Shipping)
		if err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.placed.Add(ctx, 1)
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", placed.ID),
		zap.String("user_id", placed.UserID),
		zap.Int("items", len(placed.Items)),
		zap.Int("coupons", len(placed.Coupons)),
		zap.Stringer("total", placed.Total),
	)
	s.publishCreated(ctx, placed)

	return &PlaceOrderResult{Order: placed}, nil
}

func (s *Service) placeInTx(
	ctx context.Context,
	r Repositories,
	userID string,
	lines []CartLine,
	codes []string,
	shipping ShippingInfo,
) (*Order, error) {
	ledger := inventory.New(r.Products)
	now := s.now()
	orderID := s.newID()

	items := make([]Item, 0, len(lines))
	subtotal := decimal.Zero
	for _, l := range lines {
		p, err := ledger.Lookup(ctx, l.ProductID)
		if err != nil {
			return nil, err
		}
		if p.Stock < l.Quantity {
			return nil, &inventory.InsufficientStockError{
				ProductID: p.ID,
				Requested: l.Quantity,
				Available: p.Stock,
			}
		}
		item := Item{
			OrderID:      orderID,
			ProductID:    p.ID,
			SellerID:     p.SellerID,
			ProductTitle: p.Title,
			Quantity:     l.Quantity,
			PriceAtOrder: p.Price,
		}
		items = append(items, item)
		subtotal = subtotal.Add(item.LineTotal())
	}

	src := coupon.Source{Coupons: r.Coupons, Usages: r.Usages}
	eval, err := s.coupons.Evaluate(ctx, src, userID, codes, subtotal, func(ctx context.Context, a coupon.Applied) error {
		return r.Usages.Insert(ctx, userID, a.CouponID)
	})
	if err != nil {
		return nil, err
	}

	applied := make([]AppliedCoupon, 0, len(eval.Applied))
	for _, a := range eval.Applied {
		applied = append(applied, AppliedCoupon{
			OrderID:        orderID,
			CouponID:       a.CouponID,
			Code:           a.Code,
			DiscountAmount: a.Amount,
		})
	}

	o := &Order{
		ID:        orderID,
		UserID:    userID,
		Subtotal:  subtotal,
		Discount:  eval.Total,
		Total:     subtotal.Sub(eval.Total),
		Shipping:  shipping,
		Status:    StatusPending,
		Items:     items,
		Coupons:   applied,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.Orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	for _, it := range items {
		if err := ledger.Reserve(ctx, it.ProductID, it.Quantity); err != nil {
			return nil, err
		}
	}

	return o, nil
}
