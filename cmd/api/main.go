package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/torquehub/torquehub-backend/api/routes"
	"github.com/torquehub/torquehub-backend/internal/actors"
	"github.com/torquehub/torquehub-backend/internal/dispatch"
	"github.com/torquehub/torquehub-backend/internal/jobs"
	"github.com/torquehub/torquehub-backend/internal/ledger"
	"github.com/torquehub/torquehub-backend/internal/notifications"
	"github.com/torquehub/torquehub-backend/internal/orders"
	"github.com/torquehub/torquehub-backend/internal/payments"
	"github.com/torquehub/torquehub-backend/internal/products"
	"github.com/torquehub/torquehub-backend/pkg/config"
	"github.com/torquehub/torquehub-backend/pkg/db"
	"github.com/torquehub/torquehub-backend/pkg/gateway"
	"github.com/torquehub/torquehub-backend/pkg/logger"
	"github.com/torquehub/torquehub-backend/pkg/metrics"
	"github.com/torquehub/torquehub-backend/pkg/migrate"
	"github.com/torquehub/torquehub-backend/pkg/outbox"
	"github.com/torquehub/torquehub-backend/pkg/redis"
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

	gatewayClient, err := gateway.NewClient(context.Background(), cfg.Gateway, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create gateway client", err)
		os.Exit(1)
	}

	metricsReg := prometheus.NewRegistry()
	marketplaceMetrics := metrics.NewMarketplaceMetrics(metricsReg)

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), marketplaceMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	jobsSvc, err := jobs.NewService(jobs.NewRepository(dbClient.DB()), dbClient, outboxSvc, ledgerSvc, cfg.Marketplace, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create jobs service", err)
		os.Exit(1)
	}

	productRepo := products.NewRepository(dbClient.DB())

	ordersSvc, err := orders.NewService(orders.NewRepository(dbClient.DB()), productRepo, dbClient, outboxSvc, ledgerSvc, cfg.Marketplace, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	productsSvc, err := products.NewService(productRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create products service", err)
		os.Exit(1)
	}

	paymentsSvc, err := payments.NewService(gatewayClient, ledgerSvc, jobsSvc, ordersSvc, dbClient, outboxSvc, redisClient, payments.NewRepository(dbClient.DB()), cfg.Marketplace, marketplaceMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	dispatchSvc, err := dispatch.NewService(dispatch.NewRepository(dbClient.DB()), cfg.Marketplace, marketplaceMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch service", err)
		os.Exit(1)
	}

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	actorsSvc, err := actors.NewService(actors.NewRepository(dbClient.DB()), cfg.JWT, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create actors service", err)
		os.Exit(1)
	}

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
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			MetricsReg:    metricsReg,
			Actors:        actorsSvc,
			Jobs:          jobsSvc,
			Orders:        ordersSvc,
			Wallet:        ledgerSvc,
			Payments:      paymentsSvc,
			Products:      productsSvc,
			Dispatch:      dispatchSvc,
			Notifications: notificationsSvc,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
