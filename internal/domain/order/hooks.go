package order

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Event kinds published after a commit.
const (
	EventCreated       = "order.created"
	EventPaid          = "order.paid"
	EventStatusChanged = "order.status_changed"
	EventCancelled     = "order.cancelled"
)

// CreatedEvent is published once an order has been committed.
type CreatedEvent struct {
	OrderID string
	UserID  string
	Total   decimal.Decimal
}

// UpdatedEvent is published after a committed status change.
type UpdatedEvent struct {
	Kind    string
	OrderID string
	UserID  string
	From    Status
	Status  Status
}

// Notifier publishes order events. Delivery is best effort.
type Notifier interface {
	OrderCreated(ctx context.Context, e CreatedEvent) error
	OrderUpdated(ctx context.Context, e UpdatedEvent) error
}

// CacheInvalidator drops cached listings for a user.
type CacheInvalidator interface {
	InvalidateUserOrders(ctx context.Context, userID string) error
}

// ListVersion is the generation of a user's cached listings observed by a
// lookup. Invalidation moves a user to a new generation.
type ListVersion int64

// ListCache is a cache-aside store for a user's order listings.
//
// SetUserOrders stores under the version returned by the lookup that missed,
// so a page read before an invalidation is never served after it.
type ListCache interface {
	CacheInvalidator
	GetUserOrders(ctx context.Context, userID, key string) (*ListResult, ListVersion, bool, error)
	SetUserOrders(ctx context.Context, userID, key string, v ListVersion, res *ListResult) error
}

type nopNotifier struct{}

func (nopNotifier) OrderCreated(context.Context, CreatedEvent) error { return nil }
func (nopNotifier) OrderUpdated(context.Context, UpdatedEvent) error { return nil }

type nopCache struct{}

func (nopCache) InvalidateUserOrders(context.Context, string) error { return nil }
func (nopCache) GetUserOrders(context.Context, string, string) (*ListResult, ListVersion, bool, error) {
	return nil, 0, false, nil
}
func (nopCache) SetUserOrders(context.Context, string, string, ListVersion, *ListResult) error {
	return nil
}

// afterCommit schedules fn on the hook pool without blocking the caller.
// When every slot is busy fn waits in the backlog; when the backlog is full
// fn is dropped. fn gets a context detached from the request that keeps its
// values and carries the hook timeout. Failures are logged and counted,
// never returned.
func (s *Service) afterCommit(ctx context.Context, hook, orderID string, fn func(ctx context.Context) error) {
	base := context.WithoutCancel(ctx)
	run := func() error {
		ctx, cancel := context.WithTimeout(base, s.hookTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			s.metrics.hookFailures.Add(ctx, 1)
			zctx.From(ctx).Warn("Post-commit hook failed",
				zap.String("hook", hook),
				zap.String("order_id", orderID),
				zap.Error(err),
			)
		}
		return nil
	}
	if s.hooks.TryGo(run) {
		return
	}

	select {
	case s.backlog <- struct{}{}:
	default:
		s.metrics.hooksDropped.Add(ctx, 1)
		zctx.From(ctx).Warn("Post-commit hook dropped",
			zap.String("hook", hook),
			zap.String("order_id", orderID),
		)
		return
	}
	s.queued.Add(1)
	go func() {
		defer s.queued.Done()
		s.hooks.Go(run)
		<-s.backlog
	}()
}

func (s *Service) publishCreated(ctx context.Context, o *Order) {
	e := CreatedEvent{OrderID: o.ID, UserID: o.UserID, Total: o.Total}
	s.afterCommit(ctx, "notify", o.ID, func(ctx context.Context) error {
		return s.notifier.OrderCreated(ctx, e)
	})
	s.invalidate(ctx, o)
}

func (s *Service) publishUpdated(ctx context.Context, kind string, from Status, o *Order) {
	e := UpdatedEvent{Kind: kind, OrderID: o.ID, UserID: o.UserID, From: from, Status: o.Status}
	s.afterCommit(ctx, "notify", o.ID, func(ctx context.Context) error {
		return s.notifier.OrderUpdated(ctx, e)
	})
	s.invalidate(ctx, o)
}

func (s *Service) invalidate(ctx context.Context, o *Order) {
	userID := o.UserID
	s.afterCommit(ctx, "invalidate_cache", o.ID, func(ctx context.Context) error {
		return s.cache.InvalidateUserOrders(ctx, userID)
	})
}

// Shutdown waits for running and backlogged post-commit hooks or until ctx
// is done.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.queued.Wait()
		_ = s.hooks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
