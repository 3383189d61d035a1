package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/expiry"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// RedisDependency is the subset of the Redis client the HTTP layer uses.
type RedisDependency interface {
	middleware.ResponseStore
	Ping(ctx context.Context) error
}

type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (expiry.Summary, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient RedisDependency,
	gatherer prometheus.Gatherer,
	checkoutService checkoutsvc.Service,
	ordersSvc orders.Service,
	sweeper Sweeper,
	paymentWebhookService webhookcontrollers.PaymentWebhookService,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.CORS(cfg.CORS),
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	readiness := map[string]controllers.Pinger{}
	if dbP != nil {
		readiness["database"] = dbP
	}
	var responseStore middleware.ResponseStore
	if redisClient != nil {
		readiness["redis"] = redisClient
		responseStore = redisClient
	}
	idempotent := middleware.Idempotency(responseStore, logg)

	mountOps(r, cfg, logg, gatherer, readiness)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.PaymentWebhook(paymentWebhookService, logg))
	})

	r.Route("/api/cron", func(r chi.Router) {
		r.Use(middleware.CronAuth(cfg.Cron.Secret, logg))
		r.Post("/expire-orders", controllers.CronExpireOrders(sweeper, nil, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.With(idempotent).Post("/checkout", controllers.Checkout(checkoutService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Get("/", ordercontrollers.List(ordersSvc, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersSvc, logg))
			r.With(idempotent).Post("/{orderId}/cancel", ordercontrollers.Cancel(ordersSvc, logg))
			r.With(idempotent).Post("/{orderId}/returns", ordercontrollers.RequestReturn(ordersSvc, logg))
		})
	})

	r.Route("/api/admin/v1/orders", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
		r.Get("/{orderId}", ordercontrollers.Detail(ordersSvc, logg))
		r.With(idempotent).Post("/{orderId}/cancel", ordercontrollers.Cancel(ordersSvc, logg))
		r.With(idempotent).Post("/{orderId}/mark-paid", ordercontrollers.AdminMarkPaid(ordersSvc, logg))
		r.With(idempotent).Post("/{orderId}/returns/resolve", ordercontrollers.AdminResolveReturn(ordersSvc, logg))
		r.With(idempotent).Post("/{orderId}/fulfillment", ordercontrollers.AdminAdvanceFulfillment(ordersSvc, logg))
	})

	return r
}
