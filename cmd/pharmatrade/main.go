package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/pharmatrade/pharmatrade/internal/app"
	"github.com/pharmatrade/pharmatrade/internal/inventory"
	"github.com/pharmatrade/pharmatrade/internal/medicines"
	"github.com/pharmatrade/pharmatrade/internal/notification"
	"github.com/pharmatrade/pharmatrade/internal/observability"
	"github.com/pharmatrade/pharmatrade/internal/pharmacies"
	"github.com/pharmatrade/pharmatrade/internal/platform/cache"
	"github.com/pharmatrade/pharmatrade/internal/sweep"
	"github.com/pharmatrade/pharmatrade/internal/trading"
	"github.com/pharmatrade/pharmatrade/internal/users"
	"github.com/pharmatrade/pharmatrade/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	statsCache := cache.New(redisClient, cfg.CacheTTL)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService)

	pharmaciesRepo := pharmacies.NewRepository(dbpool)
	pharmaciesService := pharmacies.NewService(pharmaciesRepo)
	pharmaciesHandler := pharmacies.NewHandler(logger, pharmaciesService)

	medicinesRepo := medicines.NewRepository(dbpool)
	medicinesService := medicines.NewService(medicinesRepo)
	medicinesHandler := medicines.NewHandler(logger, medicinesService)

	notificationRepo := notification.NewRepository(dbpool)
	notificationService := notification.NewService(notificationRepo)
	notificationHandler := notification.NewHandler(logger, notificationService)

	inventoryRepo := inventory.NewRepository(dbpool)
	inventoryService := inventory.NewService(inventoryRepo, notificationService, logger)
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	tradingRepo := trading.NewRepository(dbpool)
	tradingService := trading.NewService(tradingRepo, inventoryRepo, notificationService, usersService, statsCache, logger)
	tradingHandler := trading.NewHandler(logger, tradingService)

	sweepRepo := sweep.NewRepository(dbpool)
	sweepService := sweep.NewService(sweepRepo, notificationService, logger, cfg.ExpiryWindow())

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, sweepService, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		Identity:            usersService,
		UsersHandler:        usersHandler,
		PharmaciesHandler:   pharmaciesHandler,
		MedicinesHandler:    medicinesHandler,
		InventoryHandler:    inventoryHandler,
		TradingHandler:      tradingHandler,
		NotificationHandler: notificationHandler,
		JobHandler:          jobHandler,
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
