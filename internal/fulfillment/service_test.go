package fulfillment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	kafkax "github.com/ordersys/go-order-fulfillment/internal/kafka"
	"github.com/ordersys/go-order-fulfillment/internal/orders"
)

type fakeStore struct {
	mu       sync.Mutex
	statuses map[string]orders.Status
	writes   []orders.Status
	failOn   orders.Status
}

func newFakeStore() *fakeStore {
	return &fakeStore{statuses: map[string]orders.Status{}}
}

func (s *fakeStore) UpdateStatus(ctx context.Context, orderID string, st orders.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == st {
		return errors.New("storage down")
	}
	s.statuses[orderID] = st
	s.writes = append(s.writes, st)
	return nil
}

func newTestService(t *testing.T, store *fakeStore) *Service {
	t.Helper()
	return &Service{
		Store:           store,
		Logger:          zaptest.NewLogger(t),
		ProcessingDelay: time.Millisecond,
	}
}

func orderCreatedMessage(o orders.Order) kafkago.Message {
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      "order-api",
		CorrelationID: o.ID,
		Payload:       kafkax.MustMarshal(orders.OrderCreatedPayload{Order: o}),
	}
	return kafkago.Message{Key: orders.PartitionKey(o.ID), Value: kafkax.MustMarshal(env)}
}

func TestHandleOrderCreated(t *testing.T) {
	ctx := context.Background()
	order := orders.Order{ID: "o1", Status: orders.StatusPending}

	t.Run("drives the order to shipped", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(t, store)

		err := svc.HandleOrderCreated(ctx, orderCreatedMessage(order))
		require.NoError(t, err)

		assert.Equal(t, orders.StatusShipped, store.statuses["o1"])
		assert.Equal(t, []orders.Status{orders.StatusProcessing, orders.StatusShipped}, store.writes)
	})

	t.Run("replay converges on shipped with no extra effects", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(t, store)
		msg := orderCreatedMessage(order)

		require.NoError(t, svc.HandleOrderCreated(ctx, msg))
		require.NoError(t, svc.HandleOrderCreated(ctx, msg))

		assert.Equal(t, orders.StatusShipped, store.statuses["o1"])
		assert.Equal(t, []orders.Status{
			orders.StatusProcessing, orders.StatusShipped,
			orders.StatusProcessing, orders.StatusShipped,
		}, store.writes)
	})

	t.Run("ignores foreign event types", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(t, store)

		env := orders.Envelope{
			EventID:   uuid.NewString(),
			EventType: "SomethingElse",
			Payload:   kafkax.MustMarshal(struct{}{}),
		}
		err := svc.HandleOrderCreated(ctx, kafkago.Message{Value: kafkax.MustMarshal(env)})
		require.NoError(t, err)
		assert.Empty(t, store.writes)
	})

	t.Run("malformed message is an error for redelivery", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(t, store)

		err := svc.HandleOrderCreated(ctx, kafkago.Message{Value: []byte("not json")})
		require.Error(t, err)
		assert.Empty(t, store.writes)
	})

	t.Run("store failure surfaces so the message gets redelivered", func(t *testing.T) {
		store := newFakeStore()
		store.failOn = orders.StatusShipped
		svc := newTestService(t, store)

		err := svc.HandleOrderCreated(ctx, orderCreatedMessage(order))
		require.Error(t, err)
		// The first transition stays; redelivery re-applies both.
		assert.Equal(t, []orders.Status{orders.StatusProcessing}, store.writes)
	})
}

func TestProcess_CancelledContext(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	svc.ProcessingDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Process(ctx, orders.Order{ID: "o1"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []orders.Status{orders.StatusProcessing}, store.writes)
}
