package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/sareehub-backend/internal/analytics"
	"github.com/angelmondragon/sareehub-backend/internal/consumers"
	"github.com/angelmondragon/sareehub-backend/pkg/bigquery"
	"github.com/angelmondragon/sareehub-backend/pkg/config"
	"github.com/angelmondragon/sareehub-backend/pkg/logger"
	"github.com/angelmondragon/sareehub-backend/pkg/metrics"
	"github.com/angelmondragon/sareehub-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/sareehub-backend/pkg/outbox/registry"
	"github.com/angelmondragon/sareehub-backend/pkg/pubsub"
	"github.com/angelmondragon/sareehub-backend/pkg/redis"
)

const consumerName = "analytics"

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "analytics-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "analytics-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	needs := pubsub.PerTopic(cfg.PubSub.AnalyticsSubscription, 0, cfg.PubSub.OrdersTopic, cfg.PubSub.InventoryTopic)
	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, logg, needs...)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	writerCfg := analytics.WriterConfig{
		MovementsTable:  cfg.BigQuery.MovementsTable,
		OrderFactsTable: cfg.BigQuery.OrderFactsTable,
	}
	tables, err := analytics.TableSpecs(writerCfg)
	requireResource(ctx, logg, "analytics table schemas", err)

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, tables, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	requireResource(ctx, logg, "event registry", err)

	ledger, err := idempotency.NewLedger(redisClient, cfg.Eventing.ConsumerIdempotencyTTL)
	requireResource(ctx, logg, "idempotency ledger", err)

	writer, err := analytics.NewWriter(bqClient, writerCfg)
	requireResource(ctx, logg, "analytics bigquery writer", err)

	subscriber, err := consumers.NewSubscriber(consumers.SubscriberParams{
		Name:          consumerName,
		Subscriptions: consumers.Receivers(pubsubClient.Subscribers()),
		Registry:      eventRegistry,
		Handler:       analytics.NewHandler(writer),
		Idempotency:   ledger,
		Logger:        logg,
	})
	requireResource(ctx, logg, "analytics subscriber", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":      cfg.App.Env,
		"consumer": consumerName,
		"dataset":  cfg.BigQuery.Dataset,
	})
	metrics.ServeWorker(runCtx, cfg.App.MetricsPort, logg)
	logg.Info(runCtx, "analytics worker ready")

	if err := subscriber.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "analytics worker failed", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
