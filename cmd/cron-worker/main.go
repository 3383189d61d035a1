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
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/internal/expiry"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const (
	serviceName     = "cron-worker"
	shutdownTimeout = 10 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(logg, "config", err)
	cfg.Service.Kind = serviceName
	logg = logger.ForApp(serviceName, cfg.App)

	bootCtx := context.Background()
	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	requireResource(logg, "database", err)
	defer closeQuietly(logg, "database", dbClient.Close)
	requireResource(logg, "dev migrations", migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient))

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	requireResource(logg, "redis", err)
	defer closeQuietly(logg, "redis", redisClient.Close)

	promRegistry := routes.NewMetricsRegistry()
	jobs, err := registerJobs(cfg, logg, dbClient, promRegistry)
	requireResource(logg, "cron jobs", err)

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg, redisClient), cfg.Cron.LockTTL)
	requireResource(logg, "cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:       logg,
		Registry:     jobs,
		Lock:         lock,
		Metrics:      metrics.NewCronJobMetrics(promRegistry),
		Interval:     cfg.Cron.Interval,
		CycleTimeout: lock.TTL(),
	})
	requireResource(logg, "cron service", err)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx := logg.WithFields(sigCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
		"jobs":        jobs.Names(),
	})

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		ReadHeaderTimeout: 5 * time.Second,
		Handler: routes.NewOpsRouter(cfg, logg, promRegistry, map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		}),
	}

	logg.Info(ctx, "starting cron worker")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return service.Run(gctx) })
	g.Go(func() error {
		go func() {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

// registerJobs builds the order expiry sweep and outbox retention jobs.
func registerJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, reg prometheus.Registerer) (*cron.Registry, error) {
	orderMetrics := metrics.NewOrderMetrics(reg)

	catalog := inventory.NewCatalog(dbClient.DB())
	ledger, err := inventory.NewLedger(catalog)
	if err != nil {
		return nil, err
	}
	ordersRepo := orders.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())

	ordersService, err := orders.NewService(ordersRepo, dbClient, ledger, outbox.NewService(outboxRepo, logg),
		orders.WithRetryPolicy(db.RetryPolicyFromConfig(cfg.DB)),
		orders.WithPaymentTimeout(cfg.Orders.PaymentTimeout),
		orders.WithMetrics(orderMetrics),
		orders.WithLogger(logg),
	)
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	sweeper, err := expiry.NewSweeper(expiry.SweeperParams{
		Logger:      logg,
		Orders:      ordersRepo,
		Expirer:     ordersService,
		Metrics:     orderMetrics,
		Timeout:     cfg.Orders.PaymentTimeout,
		BatchSize:   cfg.Orders.SweepBatchSize,
		Concurrency: cfg.Orders.SweepConcurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("expiry sweeper: %w", err)
	}

	expiryJob, err := cron.NewOrderExpiryJob(cron.OrderExpiryJobParams{Logger: logg, Sweeper: sweeper})
	if err != nil {
		return nil, err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return nil, err
	}

	jobs := cron.NewRegistry()
	for _, job := range []cron.Job{expiryJob, retentionJob} {
		if err := jobs.Register(job); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

// lockKey scopes the cron lease per environment.
func lockKey(cfg *config.Config, client *redis.Client) string {
	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	return client.LockKey(cfg.Cron.LockKey, env)
}

func closeQuietly(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(context.Background(), "resource", name), "close failed", err)
	}
}

func requireResource(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(logg.WithField(context.Background(), "resource", name), "failed to initialize "+name, err)
	os.Exit(1)
}
