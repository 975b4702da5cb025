// Package notify publishes order events.
package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"

	"github.com/xenking/kart-orders/internal/domain/order"
)

// EventTypeHeader carries the event kind on every message.
const EventTypeHeader = "event-type"

var _ order.Notifier = (*Kafka)(nil)

// MessageWriter is implemented by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewWriter returns a writer that hashes message keys to partitions, so
// all events of one order land on the same partition in commit order.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// Kafka publishes JSON events keyed by order ID with W3C trace context in
// the message headers.
type Kafka struct {
	w          MessageWriter
	propagator propagation.TextMapPropagator
	now        func() time.Time
}

func NewKafka(w MessageWriter) *Kafka {
	return &Kafka{
		w:          w,
		propagator: propagation.TraceContext{},
		now:        time.Now,
	}
}

func (k *Kafka) OrderCreated(ctx context.Context, e order.CreatedEvent) error {
	return k.publish(ctx, order.EventCreated, e.OrderID, encodeCreated(e, k.now()))
}

func (k *Kafka) OrderUpdated(ctx context.Context, e order.UpdatedEvent) error {
	return k.publish(ctx, e.Kind, e.OrderID, encodeUpdated(e, k.now()))
}

func (k *Kafka) publish(ctx context.Context, kind, orderID string, value []byte) error {
	msg := kafka.Message{
		Key:   []byte(orderID),
		Value: value,
		Headers: []kafka.Header{
			{Key: EventTypeHeader, Value: []byte(kind)},
		},
	}
	carrier := headerCarrier(msg.Headers)
	k.propagator.Inject(ctx, &carrier)
	msg.Headers = carrier

	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish %s for order %s", kind, orderID)
	}
	return nil
}

// headerCarrier adapts kafka headers to propagation.TextMapCarrier.
type headerCarrier []kafka.Header

func (c *headerCarrier) Get(key string) string {
	for _, h := range *c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, len(*c))
	for i, h := range *c {
		keys[i] = h.Key
	}
	return keys
}
