package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/safetrade/safetrade-backend/internal/partners"
	"github.com/safetrade/safetrade-backend/internal/webhooks"
	"github.com/safetrade/safetrade-backend/pkg/config"
	"github.com/safetrade/safetrade-backend/pkg/db"
	"github.com/safetrade/safetrade-backend/pkg/logger"
	"github.com/safetrade/safetrade-backend/pkg/metrics"
	"github.com/safetrade/safetrade-backend/pkg/migrate"
	"github.com/safetrade/safetrade-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "webhook-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "webhook-worker"

	logg = logger.New(logger.Options{
		ServiceName: "webhook-worker",
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

	registry := prometheus.NewRegistry()
	webhookMetrics := metrics.NewWebhookMetrics(registry)

	repo := webhooks.NewRepository(dbClient.DB())
	partnersRepo := partners.NewRepository(dbClient.DB())
	service, err := webhooks.NewService(
		cfg.Webhook,
		repo,
		partnersRepo,
		webhooks.NewHTTPDispatcher(nil),
		logg,
		webhookMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhooks service", err)
		os.Exit(1)
	}

	lock, err := webhooks.NewRedisRunLock(redisClient, "webhook-worker", 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create run lock", err)
		os.Exit(1)
	}

	worker, err := webhooks.NewWorker(webhooks.WorkerParams{
		Config:  cfg.Worker,
		Logger:  logg,
		Service: service,
		Due:     repo,
		Lock:    lock,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook worker", err)
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:    ":" + cfg.Worker.MetricsPort,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(context.Background(), "metrics server stopped unexpectedly", err)
		}
	}()
	defer metricsServer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "webhook-worker",
	})
	logg.Info(ctx, "starting webhook worker")

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "webhook worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "webhook worker shutting down gracefully")
}
