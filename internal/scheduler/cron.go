// Package scheduler drives the daily evaluate-and-send cycle. It wraps
// robfig/cron with a single fixed entry derived from the configured delivery
// time and timezone.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"linkdigest/internal/digest"
)

// CycleRunner runs one evaluate-and-send cycle. Implemented by
// digest.Service.
type CycleRunner interface {
	Run(ctx context.Context) (digest.Result, error)
}

// Scheduler fires the daily cycle at the configured wall-clock time.
type Scheduler struct {
	runner       CycleRunner
	logger       *slog.Logger
	cycleTimeout time.Duration

	cron *cron.Cron
}

// Config holds the schedule parameters.
type Config struct {
	// DeliveryTime is the daily trigger time, "HH:MM".
	DeliveryTime string
	// Timezone is the IANA zone the trigger time is evaluated in.
	Timezone string
	// CycleTimeout bounds one cycle run. Zero means no timeout.
	CycleTimeout time.Duration
}

// New builds a Scheduler with one daily entry. It validates the delivery
// time and timezone up front so misconfiguration fails at startup, not at
// trigger time.
func New(cfg Config, runner CycleRunner, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	hour, minute, err := parseTimeOfDay(cfg.DeliveryTime)
	if err != nil {
		return nil, fmt.Errorf("invalid delivery time %q: %w", cfg.DeliveryTime, err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	s := &Scheduler{
		runner:       runner,
		logger:       logger,
		cycleTimeout: cfg.CycleTimeout,
	}

	// Standard 5-field cron: minute hour day month weekday.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	)

	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	if _, err := c.AddFunc(spec, s.fire); err != nil {
		return nil, fmt.Errorf("failed to register daily entry: %w", err)
	}

	s.cron = c
	return s, nil
}

// Start begins firing scheduled cycles. It returns immediately; the cron
// runner owns its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	entries := s.cron.Entries()
	if len(entries) > 0 {
		s.logger.Info("daily digest schedule started",
			"next_run", entries[0].Next.Format(time.RFC3339),
		)
	}
}

// Stop halts the schedule and waits for a running trigger to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("daily digest schedule stopped")
}

// fire runs one cycle under the configured timeout. Errors are logged, not
// propagated; the next day's trigger retries the same backlog.
func (s *Scheduler) fire() {
	ctx := context.Background()
	if s.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cycleTimeout)
		defer cancel()
	}

	s.logger.Info("scheduled digest cycle triggered")

	result, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled digest cycle failed", "error", err)
		return
	}

	s.logger.Info("scheduled digest cycle finished",
		"sent", result.Sent,
		"skipped", result.Skipped,
		"entry_count", result.EntryCount,
	)
}

// parseTimeOfDay parses a "HH:MM" string into hour and minute components.
// The input must be exactly in HH:MM format (5 characters). Trailing content
// is rejected to prevent ambiguity.
func parseTimeOfDay(s string) (int, int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, fmt.Errorf("expected format HH:MM, got %q", s)
	}
	var hour, minute int
	n, err := fmt.Sscanf(s, "%d:%d", &hour, &minute)
	if err != nil || n != 2 {
		return 0, 0, fmt.Errorf("expected format HH:MM, got %q", s)
	}
	if hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("hour %d out of range [0,23]", hour)
	}
	if minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("minute %d out of range [0,59]", minute)
	}
	return hour, minute, nil
}
