package notify

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-orders/internal/domain/order"
)

func encodeCreated(e order.CreatedEvent, at time.Time) []byte {
	var w jx.Encoder
	w.Obj(func(w *jx.Encoder) {
		w.Field("type", func(w *jx.Encoder) { w.Str(order.EventCreated) })
		w.Field("orderId", func(w *jx.Encoder) { w.Str(e.OrderID) })
		w.Field("userId", func(w *jx.Encoder) { w.Str(e.UserID) })
		w.Field("total", func(w *jx.Encoder) { w.Str(e.Total.StringFixed(2)) })
		w.Field("occurredAt", func(w *jx.Encoder) { w.Str(at.UTC().Format(time.RFC3339Nano)) })
	})
	return w.Bytes()
}

func encodeUpdated(e order.UpdatedEvent, at time.Time) []byte {
	var w jx.Encoder
	w.Obj(func(w *jx.Encoder) {
		w.Field("type", func(w *jx.Encoder) { w.Str(e.Kind) })
		w.Field("orderId", func(w *jx.Encoder) { w.Str(e.OrderID) })
		w.Field("userId", func(w *jx.Encoder) { w.Str(e.UserID) })
		w.Field("from", func(w *jx.Encoder) { w.Str(string(e.From)) })
		w.Field("status", func(w *jx.Encoder) { w.Str(string(e.Status)) })
		w.Field("occurredAt", func(w *jx.Encoder) { w.Str(at.UTC().Format(time.RFC3339Nano)) })
	})
	return w.Bytes()
}
