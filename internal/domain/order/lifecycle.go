package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/inventory"
)

// loadForUpdate fetches an order inside a transaction and checks that the
// requester may act on it.
func loadForUpdate(ctx context.Context, r Repositories, who auth.Requester, id string) (*Order, error) {
	o, err := r.Orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "order %s", id)
		}
		return nil, errors.Wrap(err, "load order")
	}
	if !who.CanAccess(o.UserID) {
		return nil, auth.ErrForbidden
	}
	return o, nil
}

// CancelOrder cancels a pending order, returning its stock to inventory and
// deleting its coupon usage rows so the user may redeem them again.
func (s *Service) CancelOrder(ctx context.Context, who auth.Requester, id string) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.CancelOrder")
	defer func() { endSpan(span, rerr) }()

	var cancelled *Order
	err := s.inTx(ctx, "cancel order", func(ctx context.Context, r Repositories) error {
		o, err := loadForUpdate(ctx, r, who, id)
		if err != nil {
			return err
		}
		if err := o.Cancel(s.now()); err != nil {
			return err
		}

		ledger := inventory.New(r.Products)
		for _, it := range o.Items {
			if err := ledger.Release(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		for _, c := range o.Coupons {
			if err := r.Usages.Delete(ctx, o.UserID, c.CouponID); err != nil {
				return errors.Wrapf(err, "delete usage of coupon %s", c.Code)
			}
		}
		if err := r.Orders.UpdateStatus(ctx, o.ID, o.Status, o.UpdatedAt); err != nil {
			return errors.Wrap(err, "update status")
		}
		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.cancelled.Add(ctx, 1)
	zctx.From(ctx).Info("Order cancelled",
		zap.String("order_id", cancelled.ID),
		zap.String("user_id", cancelled.UserID),
	)
	s.publishUpdated(ctx, EventCancelled, StatusPending, cancelled)

	return cancelled, nil
}

// UpdateOrderStatus moves an order forward in its lifecycle. Only admins may
// call it; cancellation goes through CancelOrder.
func (s *Service) UpdateOrderStatus(ctx context.Context, who auth.Requester, id string, to Status) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateOrderStatus")
	defer func() { endSpan(span, rerr) }()

	if !who.IsAdmin() {
		return nil, auth.ErrForbidden
	}
	if _, err := ParseStatus(string(to)); err != nil {
		return nil, err
	}

	var (
		updated *Order
		from    Status
	)
	err := s.inTx(ctx, "update order status", func(ctx context.Context, r Repositories) error {
		o, err := loadForUpdate(ctx, r, who, id)
		if err != nil {
			return err
		}
		prev := o.Status
		if err := o.Advance(to, s.now()); err != nil {
			return err
		}
		if err := r.Orders.UpdateStatus(ctx, o.ID, o.Status, o.UpdatedAt); err != nil {
			return errors.Wrap(err, "update status")
		}
		updated, from = o, prev
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order status updated",
		zap.String("order_id", updated.ID),
		zap.String("from", string(from)),
		zap.String("to", string(updated.Status)),
	)
	s.publishUpdated(ctx, EventStatusChanged, from, updated)

	return updated, nil
}

// CheckoutResult pairs the paid order with the authorization reference.
type CheckoutResult struct {
	Order            *Order
	PaymentReference string
}

// Checkout authorizes payment for a pending order and marks it paid. The
// authorizer is called outside any transaction; the status change is then
// committed only if the order is still pending. Otherwise the authorization
// is voided.
func (s *Service) Checkout(ctx context.Context, who auth.Requester, id string) (_ *CheckoutResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Checkout")
	defer func() { endSpan(span, rerr) }()

	o, err := s.getVisible(ctx, who, id)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPending {
		return nil, &TransitionError{From: o.Status, To: StatusPaid, Err: ErrInvalidTransition}
	}

	authz, err := s.payments.Authorize(ctx, PaymentRequest{OrderID: o.ID, UserID: o.UserID, Amount: o.Total})
	if err != nil {
		return nil, errors.Wrap(err, "authorize payment")
	}
	if !authz.Approved {
		s.metrics.declined.Add(ctx, 1)
		zctx.From(ctx).Info("Payment declined",
			zap.String("order_id", o.ID),
			zap.String("reason", authz.Reason),
		)
		return nil, &PaymentDeclinedError{OrderID: o.ID, Reason: authz.Reason}
	}

	var paid *Order
	err = s.inTx(ctx, "mark order paid", func(ctx context.Context, r Repositories) error {
		o, err := loadForUpdate(ctx, r, who, id)
		if err != nil {
			return err
		}
		if err := o.MarkPaid(s.now()); err != nil {
			return err
		}
		if err := r.Orders.UpdateStatus(ctx, o.ID, o.Status, o.UpdatedAt); err != nil {
			return errors.Wrap(err, "update status")
		}
		paid = o
		return nil
	})
	if err != nil {
		// The order changed while the charge was being authorized.
		zctx.From(ctx).Warn("Authorized payment not applied",
			zap.String("order_id", id),
			zap.String("payment_reference", authz.Reference),
			zap.Error(err),
		)
		s.voidPayment(ctx, id, authz.Reference)
		return nil, err
	}

	zctx.From(ctx).Info("Order paid",
		zap.String("order_id", paid.ID),
		zap.String("payment_reference", authz.Reference),
	)
	s.publishUpdated(ctx, EventPaid, StatusPending, paid)

	return &CheckoutResult{Order: paid, PaymentReference: authz.Reference}, nil
}

// voidPayment releases an authorization. It runs even if the request was
// cancelled, bounded by the hook timeout.
func (s *Service) voidPayment(ctx context.Context, orderID, reference string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.hookTimeout)
	defer cancel()

	if err := s.payments.Void(ctx, reference); err != nil {
		s.metrics.voidFailures.Add(ctx, 1)
		zctx.From(ctx).Error("Void payment failed",
			zap.String("order_id", orderID),
			zap.String("payment_reference", reference),
			zap.Error(err),
		)
		return
	}
	s.metrics.voided.Add(ctx, 1)
}
