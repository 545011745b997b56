package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ordersys/go-order-fulfillment/internal/config"
	"github.com/ordersys/go-order-fulfillment/internal/fulfillment"
	kafkax "github.com/ordersys/go-order-fulfillment/internal/kafka"
	"github.com/ordersys/go-order-fulfillment/internal/logging"
	"github.com/ordersys/go-order-fulfillment/internal/orders"
	"github.com/ordersys/go-order-fulfillment/internal/postgres"
	"github.com/ordersys/go-order-fulfillment/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger, err := logging.New(cfg.ServiceName + "-fulfillment")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &fulfillment.Service{
		Store:           &orders.Repo{DB: db},
		Redis:           rdb,
		Logger:          logger,
		ProcessingDelay: cfg.ProcessingDelay,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, orders.TopicOrderCreated, cfg.ConsumerWorkers, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("fulfillment consumer started",
			zap.String("group", cfg.ConsumerGroup),
			zap.String("topic", orders.TopicOrderCreated),
			zap.Int("workers", cfg.ConsumerWorkers))
		if err := cons.Start(ctx, svc.HandleOrderCreated); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		logger.Info("shutting down consumer...")
		cancel()
		<-done
	case <-done:
	}
}
