package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/aiorreal/quota-service/config"
	"github.com/aiorreal/quota-service/internal/api"
	"github.com/aiorreal/quota-service/internal/auth"
	"github.com/aiorreal/quota-service/internal/billing"
	"github.com/aiorreal/quota-service/internal/database"
	"github.com/aiorreal/quota-service/internal/logger"
	"github.com/aiorreal/quota-service/internal/metrics"
	middlewares "github.com/aiorreal/quota-service/internal/middleware"
	"github.com/aiorreal/quota-service/internal/plan"
	"github.com/aiorreal/quota-service/internal/quota"
	"github.com/aiorreal/quota-service/internal/ratelimit"
	"github.com/aiorreal/quota-service/internal/store"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting quota service",
		"version", Version,
		"build_time", BuildTime,
		"git_commit", GitCommit,
	)

	// Initialize metrics
	if cfg.Metrics.Enabled {
		metrics.Init()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database", "error", err)
	}
	defer db.Close(ctx)

	// Initialize document store; falls back to memory without a database
	docStore := store.New(db)
	if pg, ok := docStore.(*store.PostgresStore); ok {
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to ensure schema", "error", err)
		}
	} else {
		logger.Warn("No database configured; using in-memory store")
	}

	// Plan catalog, optionally overridden from configuration
	catalog := plan.Load(cfg.Plans.CatalogJSON)

	// Quota engine
	engine := quota.New(docStore, catalog)

	// Service key auth
	authRepo := auth.NewRepository(docStore)

	// Per-user rate limiting: Redis when configured, in-process otherwise
	var limiter ratelimit.Limiter
	if cfg.Redis.URL != "" {
		manager, err := ratelimit.NewManager(cfg.Redis.URL, cfg.Limits.RequestsPerMinute)
		if err != nil {
			logger.Fatal("Failed to connect to redis", "error", err)
		}
		defer manager.Close()
		limiter = manager
	} else {
		logger.Warn("No redis configured; using in-process rate limiting")
		limiter = ratelimit.NewLocal(cfg.Limits.RequestsPerMinute)
	}

	// Billing providers
	rc := billing.NewRevenueCat(cfg.Webhook.RevenueCatToken)
	stripeProvider := billing.NewStripe(cfg.Webhook.StripeWebhookSecret)

	// Setup HTTP server
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewares.Logging)
	r.Use(middlewares.Metrics)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.ReadTimeout))
	r.Use(middlewares.Security)

	// Initialize API handlers
	apiHandler := api.NewHandler(engine, db, authRepo, limiter, rc, stripeProvider, cfg.Admin.AdminSecret, Version, BuildTime, GitCommit)
	apiHandler.RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", "address", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			mux := http.NewServeMux()
			mux.Handle(cfg.Metrics.Path, metrics.Handler())
			metricsAddr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("Starting metrics server", "address", metricsAddr, "path", cfg.Metrics.Path)
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case <-gctx.Done():
			return gctx.Err()
		}

		logger.Info("Shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("Server exited with error", "error", err)
	}
	logger.Info("Server exited")
}
