package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/expiry"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	paymentwebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/payments"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/idempotency"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
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

	logg = logger.ForApp("api", cfg.App)

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
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

	registry := routes.NewMetricsRegistry()
	orderMetrics := metrics.NewOrderMetrics(registry)

	retryPolicy := db.RetryPolicyFromConfig(cfg.DB)
	catalog := inventory.NewCatalog(dbClient.DB())
	ledger, err := inventory.NewLedger(catalog)
	requireResource(logg, "stock ledger", err)

	ordersRepo := orders.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	ordersService, err := orders.NewService(ordersRepo, dbClient, ledger, outboxService,
		orders.WithRetryPolicy(retryPolicy),
		orders.WithPaymentTimeout(cfg.Orders.PaymentTimeout),
		orders.WithMetrics(orderMetrics),
		orders.WithLogger(logg),
	)
	requireResource(logg, "orders service", err)

	checkoutService, err := checkout.NewService(dbClient, catalog, ledger, ordersRepo, outboxService, cfg.Checkout,
		checkout.WithRetryPolicy(retryPolicy),
		checkout.WithMetrics(orderMetrics),
		checkout.WithLogger(logg),
	)
	requireResource(logg, "checkout service", err)

	sweeper, err := expiry.NewSweeper(expiry.SweeperParams{
		Logger:      logg,
		Orders:      ordersRepo,
		Expirer:     ordersService,
		Metrics:     orderMetrics,
		Timeout:     cfg.Orders.PaymentTimeout,
		BatchSize:   cfg.Orders.SweepBatchSize,
		Concurrency: cfg.Orders.SweepConcurrency,
	})
	requireResource(logg, "expiry sweeper", err)

	webhookGuard, err := idempotency.NewProcessed(redisClient, paymentwebhook.ConsumerName, cfg.Payments.IdempotencyTTL)
	requireResource(logg, "webhook idempotency guard", err)

	paymentService, err := paymentwebhook.NewService(paymentwebhook.ServiceParams{
		Orders:  ordersService,
		Guard:   webhookGuard,
		Config:  cfg.Payments,
		Logger:  logg,
		Metrics: orderMetrics,
	})
	requireResource(logg, "payment webhook service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			checkoutService,
			ordersService,
			sweeper,
			paymentService,
		),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}

func requireResource(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	ctx := logg.WithField(context.Background(), "resource", name)
	logg.Error(ctx, "failed to initialize "+name, err)
	os.Exit(1)
}
