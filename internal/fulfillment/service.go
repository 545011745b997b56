// Package fulfillment advances created orders through their shipping
// states. It runs as a separate worker fed by the order_created topic.
package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ordersys/go-order-fulfillment/internal/kafka"
	"github.com/ordersys/go-order-fulfillment/internal/orders"
	"github.com/ordersys/go-order-fulfillment/internal/redisx"
)

type Store interface {
	UpdateStatus(ctx context.Context, orderID string, status orders.Status) error
}

type Service struct {
	Store  Store
	Redis  *redis.Client // optional status cache
	Logger *zap.Logger

	// ProcessingDelay simulates the fulfillment work between the
	// PROCESSING and SHIPPED writes.
	ProcessingDelay time.Duration
}

// HandleOrderCreated is the consumer handler. Returning an error leaves the
// offset uncommitted and the delivery is retried; replays are safe because
// both status writes are unconditional.
func (s *Service) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventType != orders.EventOrderCreated {
		return nil // not ours
	}

	p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
	if err != nil {
		return err
	}
	return s.Process(ctx, p.Order)
}

// Process drives one order PENDING -> PROCESSING -> SHIPPED. Each write is
// an independent transaction: a crash in between leaves the first
// transition in place and redelivery re-applies both.
func (s *Service) Process(ctx context.Context, o orders.Order) error {
	s.Logger.Info("processing order", zap.String("order_id", o.ID))

	if err := s.setStatus(ctx, o.ID, orders.StatusProcessing); err != nil {
		return err
	}

	if err := s.wait(ctx, s.ProcessingDelay); err != nil {
		return err
	}

	if err := s.setStatus(ctx, o.ID, orders.StatusShipped); err != nil {
		return err
	}

	s.Logger.Info("order shipped", zap.String("order_id", o.ID))
	return nil
}

func (s *Service) setStatus(ctx context.Context, orderID string, st orders.Status) error {
	if err := s.Store.UpdateStatus(ctx, orderID, st); err != nil {
		return fmt.Errorf("set status %s: %w", st, err)
	}
	s.Logger.Info("order status updated",
		zap.String("order_id", orderID), zap.String("status", string(st)))

	if s.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		body, _ := json.Marshal(map[string]any{"status": st})
		if err := s.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err(); err != nil {
			s.Logger.Warn("status cache refresh failed",
				zap.String("order_id", orderID), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
