package digest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"linkdigest/internal/external"
	"linkdigest/internal/notifications/email"
	"linkdigest/internal/types"
)

// EntryStore is the backlog read contract the cycle depends on.
type EntryStore interface {
	ListPending(ctx context.Context) ([]types.Entry, error)
}

// Ledger reads the last-dispatch timestamp. Nil means no digest was ever sent.
type Ledger interface {
	LastSentAt(ctx context.Context) (*time.Time, error)
}

// DispatchRecorder applies the post-dispatch state mutations (mark entries
// sent + advance the ledger) atomically.
type DispatchRecorder interface {
	MarkDispatched(ctx context.Context, entryIDs []string, sentAt time.Time) error
}

// Enricher attaches previews to the backlog. It never fails; individual
// fetch failures degrade to fallback records.
type Enricher interface {
	EnrichAll(ctx context.Context, entries []types.Entry) []types.EnrichedEntry
}

// Renderer turns the enriched, ordered backlog into a transmissible email.
type Renderer interface {
	RenderDigest(entries []types.EnrichedEntry, generatedAt time.Time) (*email.RenderedEmail, error)
}

// Metrics records cycle telemetry. Implementations must be non-blocking on
// failure; metric emission never affects the cycle outcome.
type Metrics interface {
	RecordDispatch(ctx context.Context, result string)
	RecordCycleLatency(ctx context.Context, d time.Duration)
	RecordPreviewFallbacks(ctx context.Context, count int)
}

// Dispatch metric result dimension values.
const (
	DispatchResultSuccess = "success"
	DispatchResultFailure = "failure"
)

// Result summarizes one evaluate-and-send cycle.
type Result struct {
	// Skipped is true when another cycle was already running and this
	// trigger was dropped rather than queued.
	Skipped bool
	// Sent is true when a digest was dispatched and recorded.
	Sent bool
	// EntryCount is the number of entries covered by the dispatched digest.
	EntryCount int
	// Reasons lists the decision conditions that fired.
	Reasons []Reason
	// MessageID is the provider message ID of the dispatched email.
	MessageID string
}

// ServiceConfig holds the dispatch identity for the cycle service.
type ServiceConfig struct {
	From       external.SenderIdentity
	Recipients []string
}

// Service runs the evaluate-and-send cycle: load the backlog and ledger,
// evaluate eligibility, enrich, render, dispatch, and -- only after the
// provider confirms the send -- mark entries sent and advance the ledger.
//
// Cycles are serialized: a trigger that arrives while a cycle is running is
// skipped. Both the daily schedule and the on-demand endpoint go through Run.
type Service struct {
	store    EntryStore
	ledger   Ledger
	recorder DispatchRecorder
	enricher Enricher
	renderer Renderer
	provider external.EmailProvider
	metrics  Metrics
	cfg      ServiceConfig
	logger   *slog.Logger

	mu    sync.Mutex
	nowFn func() time.Time
}

// NewService creates a cycle Service. metrics may be nil, in which case
// telemetry is dropped.
func NewService(
	store EntryStore,
	ledger Ledger,
	recorder DispatchRecorder,
	enricher Enricher,
	renderer Renderer,
	provider external.EmailProvider,
	metrics Metrics,
	cfg ServiceConfig,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{
		store:    store,
		ledger:   ledger,
		recorder: recorder,
		enricher: enricher,
		renderer: renderer,
		provider: provider,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// WithNowFunc overrides the clock used for evaluation. For tests.
func (s *Service) WithNowFunc(fn func() time.Time) *Service {
	s.nowFn = fn
	return s
}

// Run executes one evaluate-and-send cycle.
//
// A failure anywhere before MarkDispatched leaves all state unchanged, so the
// next scheduled run retries the same backlog. MarkDispatched runs only after
// the provider has confirmed the send.
func (s *Service) Run(ctx context.Context) (Result, error) {
	if !s.mu.TryLock() {
		s.logger.WarnContext(ctx, "digest cycle already running, skipping trigger")
		return Result{Skipped: true}, nil
	}
	defer s.mu.Unlock()

	start := time.Now()
	defer func() {
		s.metrics.RecordCycleLatency(ctx, time.Since(start))
	}()

	now := s.nowFn().UTC()

	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return Result{}, err
	}

	lastSentAt, err := s.ledger.LastSentAt(ctx)
	if err != nil {
		return Result{}, err
	}

	verdict := Evaluate(pending, lastSentAt, now)
	if !verdict.ShouldSend {
		s.logger.InfoContext(ctx, "digest not due",
			"pending", len(pending),
			"last_sent_at", formatLastSent(lastSentAt),
		)
		return Result{}, nil
	}

	s.logger.InfoContext(ctx, "digest due",
		"pending", len(verdict.Entries),
		"reasons", reasonStrings(verdict.Reasons),
	)

	enriched := s.enricher.EnrichAll(ctx, verdict.Entries)

	fallbacks := 0
	for _, e := range enriched {
		if e.Fallback {
			fallbacks++
		}
	}
	if fallbacks > 0 {
		s.metrics.RecordPreviewFallbacks(ctx, fallbacks)
	}

	rendered, err := s.renderer.RenderDigest(enriched, now)
	if err != nil {
		return Result{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to render digest",
			err,
		)
	}

	referenceID := uuid.NewString()
	msgID, err := s.provider.Send(ctx, external.SendInput{
		To:          s.cfg.Recipients,
		From:        s.cfg.From,
		Subject:     rendered.Subject,
		BodyHTML:    rendered.BodyHTML,
		BodyText:    rendered.BodyText,
		ReferenceID: referenceID,
	})
	if err != nil {
		s.metrics.RecordDispatch(ctx, DispatchResultFailure)
		s.logger.ErrorContext(ctx, "digest dispatch failed, state unchanged",
			"reference_id", referenceID,
			"error", err,
		)
		return Result{}, err
	}

	ids := make([]string, 0, len(verdict.Entries))
	for _, e := range verdict.Entries {
		ids = append(ids, e.ID)
	}

	if err := s.recorder.MarkDispatched(ctx, ids, now); err != nil {
		// The email went out but the state update failed: the next cycle will
		// re-send the same backlog. Loud log so operators can reconcile.
		s.logger.ErrorContext(ctx, "dispatch succeeded but recording failed; backlog will be re-sent",
			"reference_id", referenceID,
			"message_id", msgID,
			"entry_count", len(ids),
			"error", err,
		)
		return Result{}, err
	}

	s.metrics.RecordDispatch(ctx, DispatchResultSuccess)
	s.logger.InfoContext(ctx, "digest dispatched",
		"reference_id", referenceID,
		"message_id", msgID,
		"entry_count", len(ids),
		"preview_fallbacks", fallbacks,
	)

	return Result{
		Sent:       true,
		EntryCount: len(ids),
		Reasons:    verdict.Reasons,
		MessageID:  msgID,
	}, nil
}

// formatLastSent renders the ledger value for logging.
func formatLastSent(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}

// reasonStrings converts reasons for structured logging.
func reasonStrings(reasons []Reason) []string {
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, string(r))
	}
	return out
}

// nopMetrics drops all telemetry. Used when metrics are disabled.
type nopMetrics struct{}

func (nopMetrics) RecordDispatch(context.Context, string)            {}
func (nopMetrics) RecordCycleLatency(context.Context, time.Duration) {}
func (nopMetrics) RecordPreviewFallbacks(context.Context, int)       {}
