// Package main is the entry point for the LinkDigest API server.
//
// It loads configuration, connects the Postgres pool, wires the submission
// and digest handlers into the core chassis, starts the daily schedule, and
// serves HTTP until a shutdown signal arrives.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"linkdigest/internal/api/handlers"
	"linkdigest/internal/config"
	"linkdigest/internal/core"
	"linkdigest/internal/db"
	"linkdigest/internal/digest"
	"linkdigest/internal/external"
	"linkdigest/internal/metrics"
	"linkdigest/internal/notifications/email"
	"linkdigest/internal/preview"
	"linkdigest/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("linkdigest API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database pool.
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:               cfg.Database.URL.Unmask(),
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		AcquireTimeout:    cfg.Database.AcquireTimeout,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
	})
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}

	service, err := buildCycleService(ctx, cfg, pool, logger)
	if err != nil {
		pool.Close()
		return err
	}

	// HTTP chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.RegisterCloser(pool.Close)

	entryHandler := handlers.NewEntryHandler(db.NewEntryRepository(pool), srv.Validator, logger)
	digestHandler := handlers.NewDigestHandler(service, logger)

	srv.RouteRegistrars = append(srv.RouteRegistrars,
		entryHandler.RegisterRoutes,
		digestHandler.RegisterRoutes,
	)
	srv.AdminRouteRegistrars = append(srv.AdminRouteRegistrars,
		entryHandler.RegisterAdminRoutes,
	)
	srv.MountRoutes()

	// Daily schedule.
	sched, err := scheduler.New(scheduler.Config{
		DeliveryTime: cfg.Digest.DeliveryTime,
		Timezone:     cfg.Digest.Timezone,
		CycleTimeout: cfg.Digest.CycleTimeout,
	}, service, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("building scheduler: %w", err)
	}
	sched.Start()
	srv.RegisterCloser(sched.Stop)

	return runHTTPServer(ctx, srv, cfg, logger)
}

// buildCycleService wires the storage, enrichment, rendering, dispatch, and
// metrics dependencies into the evaluate-and-send cycle service.
func buildCycleService(
	ctx context.Context,
	cfg *config.Config,
	pool *pgxpool.Pool,
	logger *slog.Logger,
) (*digest.Service, error) {
	renderer, err := email.NewRenderer(email.RendererConfig{
		FormURL: cfg.Server.PublicFormURL,
	})
	if err != nil {
		return nil, fmt.Errorf("building renderer: %w", err)
	}

	fetcher := preview.NewFetcher(
		&http.Client{Timeout: 15 * time.Second},
		logger,
	)
	enricher := preview.NewEnricher(fetcher, logger)

	provider := external.NewSendGridClient(
		&http.Client{Timeout: 10 * time.Second},
		external.SendGridClientConfig{
			APIKey:  cfg.Email.SendGridAPIKey,
			BaseURL: cfg.Email.BaseURL,
			Logger:  logger,
		},
	)

	var cycleMetrics digest.Metrics
	if cfg.Observability.EnableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, fmt.Errorf("loading AWS configuration: %w", err)
		}
		cycleMetrics = metrics.NewCloudWatchMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			logger,
		)
	}

	return digest.NewService(
		db.NewEntryRepository(pool),
		db.NewLedgerRepository(pool),
		db.NewDispatchRecorder(pool),
		enricher,
		renderer,
		provider,
		cycleMetrics,
		digest.ServiceConfig{
			From: external.SenderIdentity{
				Address: cfg.Email.FromAddress,
				Name:    cfg.Email.FromName,
			},
			Recipients: cfg.Email.Recipients,
		},
		logger,
	), nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
