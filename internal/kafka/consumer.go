package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handler must return nil only when the message is fully processed and its
// offset may be committed. An error keeps the offset uncommitted and the
// consumer retries the message (at-least-once).
type Handler func(ctx context.Context, m kafka.Message) error

// reader is the slice of kafka.Reader the consumer drives.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	defaultBackoffMin = 250 * time.Millisecond
	defaultBackoffMax = 10 * time.Second
)

type Consumer struct {
	r       reader
	workers int
	logger  *zap.Logger

	backoffMin time.Duration
	backoffMax time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int, logger *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  group,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		r:          r,
		workers:    workers,
		logger:     logger,
		backoffMin: defaultBackoffMin,
		backoffMax: defaultBackoffMax,
	}
}

// Start fetches messages and fans them out to workers sharded by partition,
// so a partition's offsets are processed and committed in order. Committing
// offset N only after every lower offset of that partition succeeded is what
// keeps a failed message redeliverable across restarts; skipping it and
// committing a later offset would drop it for good.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	shards := make([]chan kafka.Message, c.workers)
	g := new(errgroup.Group)
	for i := range shards {
		ch := make(chan kafka.Message, 64)
		shards[i] = ch
		g.Go(func() error {
			for m := range ch {
				c.process(ctx, h, m)
			}
			return nil
		})
	}
	drain := func() {
		for _, ch := range shards {
			close(ch)
		}
		_ = g.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			drain()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		shard := shards[m.Partition%len(shards)]
		select {
		case shard <- m:
		case <-ctx.Done():
			drain()
			return nil
		}
	}
}

// process retries the handler with backoff until it succeeds or the context
// ends, and commits only on success. On shutdown mid-retry the offset stays
// uncommitted, so the group redelivers the message on the next session.
func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) {
	backoff := c.backoffMin
	for {
		if ctx.Err() != nil {
			return
		}
		err := h(ctx, m)
		if err == nil {
			if err := c.r.CommitMessages(ctx, m); err != nil {
				c.logger.Warn("offset commit failed", zap.Error(err))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("handler failed, will retry",
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		t := time.NewTimer(backoff)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
		if backoff *= 2; backoff > c.backoffMax {
			backoff = c.backoffMax
		}
	}
}
