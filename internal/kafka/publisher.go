package kafka

import (
	"context"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ordersys/go-order-fulfillment/internal/orders"
)

// OrderPublisher wraps a Producer with the order_created envelope format.
type OrderPublisher struct {
	Producer *Producer
	Service  string
}

func (p *OrderPublisher) PublishOrderCreated(ctx context.Context, o orders.Order) error {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      p.Service,
		CorrelationID: o.ID,
		Payload:       MustMarshal(orders.OrderCreatedPayload{Order: o}),
	}
	p.Producer.Publish(orders.PartitionKey(o.ID), MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	return nil
}
