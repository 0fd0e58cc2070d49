// Package main is a one-shot digest runner. It loads configuration, runs a
// single evaluate-and-send cycle, and exits. Intended for external schedulers
// (systemd timers, Kubernetes CronJobs) as an alternative to the in-process
// schedule carried by the API server.
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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"linkdigest/internal/config"
	"linkdigest/internal/db"
	"linkdigest/internal/digest"
	"linkdigest/internal/external"
	"linkdigest/internal/metrics"
	"linkdigest/internal/notifications/email"
	"linkdigest/internal/preview"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("digest worker starting", "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Digest.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Digest.CycleTimeout)
		defer cancel()
	}

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
	defer pool.Close()

	renderer, err := email.NewRenderer(email.RendererConfig{
		FormURL: cfg.Server.PublicFormURL,
	})
	if err != nil {
		return fmt.Errorf("building renderer: %w", err)
	}

	fetcher := preview.NewFetcher(&http.Client{Timeout: 15 * time.Second}, logger)
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
			return fmt.Errorf("loading AWS configuration: %w", err)
		}
		cycleMetrics = metrics.NewCloudWatchMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			logger,
		)
	}

	service := digest.NewService(
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
	)

	result, err := service.Run(ctx)
	if err != nil {
		return fmt.Errorf("digest cycle: %w", err)
	}

	logger.Info("digest cycle finished",
		"sent", result.Sent,
		"entry_count", result.EntryCount,
	)
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
