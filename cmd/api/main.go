package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sportedge/sportedge-backend/api/routes"
	"github.com/sportedge/sportedge-backend/internal/analytics/query"
	"github.com/sportedge/sportedge-backend/internal/auth"
	"github.com/sportedge/sportedge-backend/internal/cart"
	"github.com/sportedge/sportedge-backend/internal/catalog"
	"github.com/sportedge/sportedge-backend/internal/orders"
	"github.com/sportedge/sportedge-backend/internal/products"
	"github.com/sportedge/sportedge-backend/internal/users"
	"github.com/sportedge/sportedge-backend/pkg/auth/session"
	"github.com/sportedge/sportedge-backend/pkg/bigquery"
	"github.com/sportedge/sportedge-backend/pkg/config"
	"github.com/sportedge/sportedge-backend/pkg/db"
	"github.com/sportedge/sportedge-backend/pkg/env"
	"github.com/sportedge/sportedge-backend/pkg/logger"
	"github.com/sportedge/sportedge-backend/pkg/metrics"
	"github.com/sportedge/sportedge-backend/pkg/migrate"
	"github.com/sportedge/sportedge-backend/pkg/outbox"
	"github.com/sportedge/sportedge-backend/pkg/redis"
)

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

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	conn := dbClient.DB()
	userRepo := users.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	productRepo := products.NewRepository(conn)

	usersService, err := users.NewService(userRepo, cfg.Password, logg)
	mustBuild(logg, "users service", err)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		ResetTokenTTL:  cfg.PasswordReset.TokenTTL,
		Logger:         logg,
	})
	mustBuild(logg, "auth service", err)

	catalogService, err := catalog.NewService(catalog.NewRepository(conn), logg)
	mustBuild(logg, "catalog service", err)

	productsService, err := products.NewService(productRepo, dbClient, logg)
	mustBuild(logg, "products service", err)

	cartService, err := cart.NewService(cartRepo, productRepo, dbClient, cfg.Cart.MaxLineQuantity, logg)
	mustBuild(logg, "cart service", err)

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repository: orders.NewRepository(conn),
		Tx:         dbClient,
		Carts:      cartRepo,
		Inventory:  productRepo,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), logg),
		Metrics:    metrics.NewOrderMetrics(registry),
		Logger:     logg,
	})
	mustBuild(logg, "orders service", err)

	var salesReports query.SalesService
	if strings.TrimSpace(cfg.GCP.ProjectID) != "" {
		bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			// reports answer DEPENDENCY_ERROR until the warehouse is reachable
			logg.Warn(context.Background(), "bigquery unavailable, sales reports disabled")
		} else {
			defer func() {
				if err := bqClient.Close(); err != nil {
					logg.Error(context.Background(), "error closing bigquery", err)
				}
			}()
			salesReports, err = query.NewSalesService(bqClient)
			mustBuild(logg, "sales report service", err)
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": env.InstanceID("local"),
	})

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:       cfg,
			Logger:       logg,
			DB:           dbClient,
			Redis:        redisClient,
			Sessions:     sessionManager,
			Gatherer:     registry,
			HTTP:         metrics.NewHTTPMetrics(registry),
			Auth:         authService,
			Users:        usersService,
			Catalog:      catalogService,
			Products:     productsService,
			Cart:         cartService,
			Orders:       ordersService,
			SalesReports: salesReports,
		}),
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server stopped")
	}
}

func mustBuild(logg *logger.Logger, component string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+component, err)
	os.Exit(1)
}
