package notify

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/order"
)

var _ order.Notifier = Log{}

// Log writes order events to the request logger. It is used when no broker
// is configured.
type Log struct{}

func (Log) OrderCreated(ctx context.Context, e order.CreatedEvent) error {
	zctx.From(ctx).Info("Order event",
		zap.String("type", order.EventCreated),
		zap.String("order_id", e.OrderID),
		zap.String("user_id", e.UserID),
		zap.String("total", e.Total.StringFixed(2)),
	)
	return nil
}

func (Log) OrderUpdated(ctx context.Context, e order.UpdatedEvent) error {
	zctx.From(ctx).Info("Order event",
		zap.String("type", e.Kind),
		zap.String("order_id", e.OrderID),
		zap.String("user_id", e.UserID),
		zap.String("from", string(e.From)),
		zap.String("status", string(e.Status)),
	)
	return nil
}
