package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/biolink/config"
	"github.com/oksasatya/biolink/internal/application"
	"github.com/oksasatya/biolink/internal/infrastructure/events"
	pginfra "github.com/oksasatya/biolink/internal/infrastructure/postgres"
	"github.com/oksasatya/biolink/internal/infrastructure/search"
	"github.com/oksasatya/biolink/pkg/helpers"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-event-worker", cfg.Env, cfg.LogLevel)
	if !cfg.SearchEnabled {
		logger.Info("SEARCH_ENABLED=false; event worker disabled")
		return
	}
	if cfg.RabbitMQURL == "" || cfg.RabbitMQEventsQueue == "" {
		log.Fatal("RabbitMQ not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pginfra.NewPool(ctx, pginfra.PoolConfig{
		DSN:         cfg.PostgresDSN(),
		MaxConns:    cfg.DBMaxConns,
		MinConns:    1,
		MaxConnLife: cfg.DBMaxConnLife,
	})
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	// The worker only reads, so it never publishes events of its own.
	client := pginfra.NewClient(pool, pginfra.WithLogger(logger), pginfra.WithOmit("User", "password"))

	es, err := helpers.NewESClient(cfg.ESAddrs(), cfg.ElasticsearchUser, cfg.ElasticsearchPass)
	if err != nil {
		log.Fatalf("elasticsearch client: %v", err)
	}
	profiles := search.NewProfiles(es, cfg.ESProfilesIndex, logger)
	if err := profiles.EnsureIndex(ctx); err != nil {
		log.Fatalf("ensure index: %v", err)
	}
	indexer := application.NewProfileIndexer(client.User(), profiles, logger)

	consumer, err := helpers.NewRabbitConsumer(cfg.RabbitMQURL, cfg.RabbitMQEventsQueue, 16)
	if err != nil {
		log.Fatalf("amqp consumer: %v", err)
	}
	defer consumer.Close()
	msgs, err := consumer.Deliveries(cfg.AppName + "-indexer")
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	done := make(chan struct{})
	go func() {
		events.Consume(ctx, msgs, indexer.HandleEvent, logger)
		close(done)
	}()

	helpers.LogInfo(logger, "event worker listening", logrus.Fields{"queue": cfg.RabbitMQEventsQueue, "index": cfg.ESProfilesIndex})
	select {
	case <-ctx.Done():
	case <-done:
		logger.Warn("delivery channel closed")
		os.Exit(1)
	}
	logger.Info("shutting down...")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}
