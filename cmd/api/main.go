package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ordersys/go-order-fulfillment/internal/accounts"
	"github.com/ordersys/go-order-fulfillment/internal/catalog"
	"github.com/ordersys/go-order-fulfillment/internal/config"
	"github.com/ordersys/go-order-fulfillment/internal/httpx"
	kafkax "github.com/ordersys/go-order-fulfillment/internal/kafka"
	"github.com/ordersys/go-order-fulfillment/internal/logging"
	"github.com/ordersys/go-order-fulfillment/internal/orders"
	"github.com/ordersys/go-order-fulfillment/internal/postgres"
	"github.com/ordersys/go-order-fulfillment/internal/redisx"
	"github.com/ordersys/go-order-fulfillment/migrations"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger, err := logging.New(cfg.ServiceName)
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

	if err := migrations.Apply(ctx, db); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, logger)
	prod.Start(ctx)

	// Service & handler
	svc := orders.NewService(
		&orders.Repo{DB: db},
		&accounts.Gateway{DB: db},
		&catalog.Gateway{DB: db},
		&kafkax.OrderPublisher{Producer: prod, Service: cfg.ServiceName},
		logger,
	)

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Service: svc,
		Catalog: &catalog.Gateway{DB: db},
		Redis:   rdb,
		Logger:  logger,
	}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // close inbox -> flush & close writer
	cancel()
	prod.WaitClosed() // drain
}
