package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/sareehub-backend/api/routes"
	"github.com/angelmondragon/sareehub-backend/internal/audit"
	"github.com/angelmondragon/sareehub-backend/internal/consumers"
	"github.com/angelmondragon/sareehub-backend/internal/inventory"
	"github.com/angelmondragon/sareehub-backend/internal/orders"
	"github.com/angelmondragon/sareehub-backend/internal/realtime"
	paymentwebhook "github.com/angelmondragon/sareehub-backend/internal/webhooks/payment"
	"github.com/angelmondragon/sareehub-backend/pkg/config"
	"github.com/angelmondragon/sareehub-backend/pkg/db"
	"github.com/angelmondragon/sareehub-backend/pkg/logger"
	"github.com/angelmondragon/sareehub-backend/pkg/metrics"
	"github.com/angelmondragon/sareehub-backend/pkg/migrate"
	"github.com/angelmondragon/sareehub-backend/pkg/outbox"
	"github.com/angelmondragon/sareehub-backend/pkg/outbox/registry"
	"github.com/angelmondragon/sareehub-backend/pkg/pubsub"
	"github.com/angelmondragon/sareehub-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	inventoryMetrics := metrics.NewInventoryMetrics(prometheus.DefaultRegisterer)
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	recorder := audit.NewRecorder()

	inventoryService, err := inventory.NewService(inventory.ServiceParams{
		Repo:              inventory.NewRepository(dbClient.DB()),
		DB:                dbClient,
		Outbox:            emitter,
		Audit:             recorder,
		Metrics:           inventoryMetrics,
		Logger:            logg,
		ReservationTTL:    cfg.Inventory.ReservationTTL,
		LowStockThreshold: cfg.Inventory.LowStockThreshold,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:           orders.NewRepository(dbClient.DB()),
		DB:             dbClient,
		Inventory:      inventoryService,
		Outbox:         emitter,
		Audit:          recorder,
		Metrics:        inventoryMetrics,
		Logger:         logg,
		ReservationTTL: cfg.Inventory.ReservationTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	guard, err := paymentwebhook.NewGuard(redisClient, cfg.Webhooks.DedupTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})

	var hub *realtime.Hub
	if cfg.FeatureFlags.Realtime {
		hub, err = startRealtime(ctx, cfg, logg)
		if err != nil {
			logg.Error(ctx, "failed to start realtime feed", err)
			os.Exit(1)
		}
		defer hub.Close()
	}

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:           cfg,
			Logger:           logg,
			DB:               dbClient,
			Redis:            redisClient,
			IdempotencyStore: redisClient,
			RateLimiter:      redisClient,
			Inventory:        inventoryService,
			Orders:           orderService,
			PaymentGuard:     guard,
			Hub:              hub,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	logg.Info(ctx, "api server shutting down")
	// Open SSE streams only end once the hub closes them.
	if hub != nil {
		hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "api server shutdown failed", err)
	}
}

// startRealtime subscribes this instance to the realtime subscription and feeds the SSE hub.
func startRealtime(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*realtime.Hub, error) {
	// each instance owns short-lived subscriptions so every replica sees every event
	needs := pubsub.PerTopic(cfg.PubSub.RealtimeSubscription, cfg.PubSub.RealtimeIdleExpiry, cfg.PubSub.OrdersTopic, cfg.PubSub.InventoryTopic)
	if len(needs) == 0 {
		return nil, errors.New("realtime subscription not configured")
	}
	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, logg, needs...)
	if err != nil {
		return nil, fmt.Errorf("bootstrap pubsub: %w", err)
	}

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		_ = pubsubClient.Close()
		return nil, fmt.Errorf("build event registry: %w", err)
	}

	hub := realtime.NewHub(0, metrics.NewRealtimeMetrics(prometheus.DefaultRegisterer))
	subscriber, err := consumers.NewSubscriber(consumers.SubscriberParams{
		Name:          "realtime",
		Subscriptions: consumers.Receivers(pubsubClient.Subscribers()),
		Registry:      eventRegistry,
		Handler:       realtime.NewBroadcaster(hub),
		Logger:        logg,
	})
	if err != nil {
		_ = pubsubClient.Close()
		return nil, fmt.Errorf("build realtime subscriber: %w", err)
	}

	go func() {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(ctx, "error closing pubsub", err)
			}
		}()
		if err := subscriber.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "realtime subscriber stopped", err)
		}
	}()
	return hub, nil
}
