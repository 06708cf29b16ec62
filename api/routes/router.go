package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/sareehub-backend/api/controllers"
	eventcontrollers "github.com/angelmondragon/sareehub-backend/api/controllers/events"
	inventorycontrollers "github.com/angelmondragon/sareehub-backend/api/controllers/inventory"
	ordercontrollers "github.com/angelmondragon/sareehub-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/sareehub-backend/api/controllers/webhooks"
	"github.com/angelmondragon/sareehub-backend/api/middleware"
	"github.com/angelmondragon/sareehub-backend/internal/inventory"
	"github.com/angelmondragon/sareehub-backend/internal/orders"
	"github.com/angelmondragon/sareehub-backend/internal/realtime"
	paymentwebhook "github.com/angelmondragon/sareehub-backend/internal/webhooks/payment"
	"github.com/angelmondragon/sareehub-backend/pkg/config"
	"github.com/angelmondragon/sareehub-backend/pkg/enums"
	"github.com/angelmondragon/sareehub-backend/pkg/logger"
	"github.com/angelmondragon/sareehub-backend/pkg/redis"
)

// Dependencies are the services and stores the HTTP surface is built from.
type Dependencies struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               controllers.Pinger
	Redis            controllers.Pinger
	IdempotencyStore redis.IdempotencyStore
	RateLimiter      redis.RateLimiter
	Inventory        inventory.Service
	Orders           orders.Service
	PaymentGuard     *paymentwebhook.Guard
	// Hub is nil when realtime is disabled; the events stream then answers 503.
	Hub     *realtime.Hub
	Metrics http.Handler
	// SSEHeartbeat overrides the keep-alive comment interval.
	SSEHeartbeat time.Duration
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	webhookPolicy := middleware.RateLimitPolicy{
		Name:   "payment_webhook",
		Limit:  cfg.Webhooks.PaymentRateLimit,
		Window: cfg.Webhooks.PaymentRateWindow,
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/inventory/available/{variantId}", inventorycontrollers.Available(deps.Inventory, logg))
		r.With(middleware.RateLimit(webhookPolicy, deps.RateLimiter, logg)).
			Post("/orders/webhook/payment", paymentWebhookHandler(deps.Orders, deps.PaymentGuard, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.Get("/orders", ordercontrollers.List(deps.Orders, logg))
			r.Get("/orders/{id}", ordercontrollers.Detail(deps.Orders, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.Idempotency(deps.IdempotencyStore, cfg.Eventing.RequestIdempotencyTTL, logg))
				r.Post("/inventory/reserve", inventorycontrollers.Reserve(deps.Inventory, deps.Orders, logg))
				r.Post("/inventory/commit", inventorycontrollers.Commit(deps.Inventory, deps.Orders, logg))
				r.Post("/inventory/release", inventorycontrollers.Release(deps.Inventory, deps.Orders, logg))
				r.Post("/orders", ordercontrollers.Create(deps.Orders, logg))
				r.Post("/orders/{id}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.MemberRoleAdmin))
				r.Get("/inventory/history/{variantId}", inventorycontrollers.History(deps.Inventory, logg))
				r.Get("/admin/events", eventcontrollers.Stream(deps.Hub, deps.SSEHeartbeat, logg))

				r.Group(func(r chi.Router) {
					r.Use(middleware.Idempotency(deps.IdempotencyStore, cfg.Eventing.RequestIdempotencyTTL, logg))
					r.Post("/inventory/adjust", inventorycontrollers.Adjust(deps.Inventory, logg))
					r.Post("/orders/{id}/ship", ordercontrollers.Ship(deps.Orders, logg))
					r.Post("/orders/{id}/deliver", ordercontrollers.Deliver(deps.Orders, logg))
				})
			})
		})
	})

	return r
}

// paymentWebhookHandler avoids handing a typed nil guard to the controller.
func paymentWebhookHandler(svc orders.Service, guard *paymentwebhook.Guard, logg *logger.Logger) http.HandlerFunc {
	if guard == nil {
		return webhookcontrollers.PaymentWebhook(svc, nil, logg)
	}
	return webhookcontrollers.PaymentWebhook(svc, guard, logg)
}
