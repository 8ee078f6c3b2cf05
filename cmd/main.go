/**
 * @description
 * Entry point for the marketplace-service. Wires the repository, services,
 * outbox dispatcher, cron scheduler and HTTP server, then runs until a
 * shutdown signal arrives.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/workhive/marketplace-service/internal/api"
	"github.com/workhive/marketplace-service/internal/app"
	"github.com/workhive/marketplace-service/internal/config"
	"github.com/workhive/marketplace-service/internal/store"
	"github.com/workhive/marketplace-service/pkg/paygateclient"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	pgConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	pgConfig.MaxConns = 100
	pgConfig.MinConns = 20
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute
	pgConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	repository := store.NewPostgresRepository(dbpool)

	var limiter app.RateLimiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("invalid REDIS_URL, rate limiting disabled", "error", err)
		} else {
			redisClient := redis.NewClient(opts)
			defer redisClient.Close()
			limiter = app.NewRedisRateLimiter(redisClient, "workhive:rate_limit")
		}
	}

	gateway := paygateclient.NewClient(cfg.PaygateBaseURL, cfg.PaygateAPIKey, cfg.PaygateTerminalID, cfg.PaygateCashierID)

	jobService := app.NewJobService(repository)
	applicationService := app.NewApplicationService(
		repository,
		limiter,
		cfg.ApplyRateLimit,
		time.Duration(cfg.ApplyRateWindowSeconds)*time.Second,
	)
	settlementService := app.NewSettlementService(repository)
	collector := app.NewFeeCollector(repository, gateway, app.FeeCollectorConfig{
		VATCoefficient:        cfg.VATCoefficient,
		CommissionCoefficient: cfg.CommissionCoefficient,
		Currency:              cfg.PaygateCurrency,
		GatewayTimeout:        time.Duration(cfg.GatewayTimeoutSeconds) * time.Second,
		ProgressRetryAfter:    time.Duration(cfg.ProgressRetryAfterHours) * time.Hour,
	})

	dispatcher := app.NewOutboxDispatcher(repository, cfg.RabbitMQURL)
	go dispatcher.Run(ctx)

	scheduler := app.NewScheduler(collector, logger, cfg.FeeCollectionSchedule)
	scheduler.Start()

	handler := api.NewHandler(jobService, applicationService, settlementService, collector, repository, cfg.PaygateWebhookSecret)
	router := api.NewRouter(handler, cfg.JWKSURL, cfg.InternalAPIKey)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	<-scheduler.Stop().Done()
	cancel()

	logger.Info("server stopped")
}
