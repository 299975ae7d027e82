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

	"github.com/fogon-pos/fogon/internal/app"
	"github.com/fogon-pos/fogon/internal/cashsession"
	"github.com/fogon-pos/fogon/internal/catalog"
	"github.com/fogon-pos/fogon/internal/checkout"
	"github.com/fogon-pos/fogon/internal/inventory"
	"github.com/fogon-pos/fogon/internal/observability"
	"github.com/fogon-pos/fogon/internal/platform/cache"
	"github.com/fogon-pos/fogon/internal/platform/db"
	"github.com/fogon-pos/fogon/internal/production"
	"github.com/fogon-pos/fogon/internal/shared"
	"github.com/fogon-pos/fogon/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, redisClient, cfg.CatalogCacheTTL, logger)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, logger)
	inventoryService.OnStockChange(catalogService)
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	productionRepo := production.NewRepository(pool)
	productionService := production.NewService(productionRepo, auditLogger, logger)
	productionHandler := production.NewHandler(logger, productionService)

	sessionRepo := cashsession.NewRepository(pool)
	sessionService := cashsession.NewService(sessionRepo, catalogService, auditLogger, logger)
	sessionHandler := cashsession.NewHandler(logger, sessionService)

	checkoutRepo := checkout.NewRepository(pool)
	checkoutService := checkout.NewService(checkoutRepo, catalogService, sessionService, idempotencyStore, auditLogger, cfg.TaxRate, logger)
	checkoutHandler := checkout.NewHandler(logger, checkoutService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		InventoryHandler:   inventoryHandler,
		CatalogHandler:     catalogHandler,
		ProductionHandler:  productionHandler,
		CheckoutHandler:    checkoutHandler,
		CashSessionHandler: sessionHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
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
