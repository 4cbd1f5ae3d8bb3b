package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sportedge/sportedge-backend/internal/analytics/router"
	"github.com/sportedge/sportedge-backend/internal/analytics/types"
	"github.com/sportedge/sportedge-backend/internal/analytics/worker"
	"github.com/sportedge/sportedge-backend/internal/analytics/writer"
	"github.com/sportedge/sportedge-backend/pkg/bigquery"
	"github.com/sportedge/sportedge-backend/pkg/config"
	"github.com/sportedge/sportedge-backend/pkg/env"
	"github.com/sportedge/sportedge-backend/pkg/logger"
	"github.com/sportedge/sportedge-backend/pkg/metrics"
	"github.com/sportedge/sportedge-backend/pkg/outbox/idempotency"
	"github.com/sportedge/sportedge-backend/pkg/pubsub"
	"github.com/sportedge/sportedge-backend/pkg/redis"
)

const serviceKind = "analytics-worker"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(context.Background(), "load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"service":  serviceKind,
		"instance": env.InstanceID("local"),
	})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "analytics worker exited", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("connect pubsub: %w", err)
	}
	defer closeQuietly(ctx, logg, "pubsub", pubsubClient.Close)

	if err := pubsubClient.EnsureSubscription(ctx, cfg.PubSub.AnalyticsSubscription); err != nil {
		return err
	}
	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		return errors.New("analytics subscription is not configured")
	}

	bq, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return fmt.Errorf("connect bigquery: %w", err)
	}
	defer closeQuietly(ctx, logg, "bigquery", bq.Close)
	if cfg.BigQuery.CreateTables {
		created, err := bq.EnsureTable(ctx, cfg.BigQuery.OrderSalesTable, types.OrderSalesSchema(), "placed_at")
		if err != nil {
			return err
		}
		if created {
			logg.Info(logg.WithField(ctx, "table", cfg.BigQuery.OrderSalesTable), "bigquery.table_created")
		}
	}
	if err := bq.Ping(ctx); err != nil {
		return fmt.Errorf("bigquery: %w", err)
	}

	sales, err := writer.New(bq, writer.Config{OrderSalesTable: cfg.BigQuery.OrderSalesTable})
	if err != nil {
		return fmt.Errorf("order sales writer: %w", err)
	}
	handler, err := router.New(sales, nil, logg)
	if err != nil {
		return fmt.Errorf("analytics router: %w", err)
	}
	claims, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency manager: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	consumer, err := worker.NewService(subscription, handler, claims, metrics.NewWorkerMetrics(reg), logg)
	if err != nil {
		return fmt.Errorf("analytics worker: %w", err)
	}

	if cfg.Service.MetricsPort != "" {
		go func() {
			if err := metrics.Serve(ctx, ":"+cfg.Service.MetricsPort, reg); err != nil {
				logg.Error(ctx, "metrics server stopped", err)
			}
		}()
	}

	logg.Info(ctx, "analytics worker started")
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "analytics worker stopped")
	return nil
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}
