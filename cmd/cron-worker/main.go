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

	"github.com/sportedge/sportedge-backend/internal/cron"
	"github.com/sportedge/sportedge-backend/internal/users"
	"github.com/sportedge/sportedge-backend/pkg/config"
	"github.com/sportedge/sportedge-backend/pkg/db"
	"github.com/sportedge/sportedge-backend/pkg/env"
	"github.com/sportedge/sportedge-backend/pkg/logger"
	"github.com/sportedge/sportedge-backend/pkg/metrics"
	"github.com/sportedge/sportedge-backend/pkg/migrate"
	"github.com/sportedge/sportedge-backend/pkg/outbox"
	"github.com/sportedge/sportedge-backend/pkg/redis"
)

const serviceKind = "cron-worker"

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
		logg.Error(ctx, "cron worker exited", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	lease, err := cron.NewLease(redisClient, redisClient.LockKey(serviceKind), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lease: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Lock:     lease,
		Metrics:  metrics.NewJobMetrics(reg),
		Interval: cfg.Cron.Interval,
		Jobs: []cron.Job{
			&cron.OutboxRetention{
				DB:        dbClient,
				Outbox:    outbox.NewRepository(dbClient.DB()),
				Retention: cfg.Cron.OutboxRetention,
				Logger:    logg,
			},
			&cron.ExpiredResetTokens{
				Users:  users.NewRepository(dbClient.DB()),
				Logger: logg,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	if cfg.Service.MetricsPort != "" {
		go func() {
			if err := metrics.Serve(ctx, ":"+cfg.Service.MetricsPort, reg); err != nil {
				logg.Error(ctx, "metrics server stopped", err)
			}
		}()
	}

	logg.Info(logg.WithField(ctx, "interval", cfg.Cron.Interval.String()), "cron worker started")
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker stopped")
	return nil
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}
