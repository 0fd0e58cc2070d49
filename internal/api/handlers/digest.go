package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"linkdigest/internal/core"
	"linkdigest/internal/digest"
)

// CycleRunner runs one evaluate-and-send cycle. Implemented by
// digest.Service.
type CycleRunner interface {
	Run(ctx context.Context) (digest.Result, error)
}

// TestSendResponse is the body for GET /test-send.
type TestSendResponse struct {
	Sent       bool     `json:"sent"`
	Skipped    bool     `json:"skipped,omitempty"`
	EntryCount int      `json:"entry_count,omitempty"`
	Reasons    []string `json:"reasons,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// DigestHandler exposes the on-demand cycle trigger.
type DigestHandler struct {
	runner CycleRunner
	logger *slog.Logger
}

// NewDigestHandler creates a new DigestHandler.
func NewDigestHandler(runner CycleRunner, l *slog.Logger) *DigestHandler {
	if l == nil {
		l = slog.Default()
	}
	return &DigestHandler{runner: runner, logger: l}
}

// RegisterRoutes mounts the on-demand trigger route.
func (h *DigestHandler) RegisterRoutes(r chi.Router) {
	r.Get("/test-send", h.HandleTestSend)
}

// HandleTestSend runs one evaluate-and-send cycle synchronously and reports
// the outcome. The response is 200 regardless of whether a digest went out
// or the cycle failed; this endpoint exists to exercise the pipeline, and
// failure detail belongs in the body, not the status.
//
// GET /test-send
func (h *DigestHandler) HandleTestSend(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.Run(r.Context())

	resp := TestSendResponse{
		Sent:       result.Sent,
		Skipped:    result.Skipped,
		EntryCount: result.EntryCount,
	}
	for _, reason := range result.Reasons {
		resp.Reasons = append(resp.Reasons, string(reason))
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "on-demand cycle failed", "error", err)
		resp.Error = err.Error()
	}

	core.JSON(w, r, http.StatusOK, resp)
}
