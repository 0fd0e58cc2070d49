// Package handlers contains the HTTP handler implementations for the
// LinkDigest API: link submission, the admin entry listing, and the
// on-demand digest trigger.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"linkdigest/internal/core"
	"linkdigest/internal/types"
)

// EntryRepo defines the data access contract for link submissions.
// Mirrors the concrete db.EntryRepository methods used by this handler.
type EntryRepo interface {
	Insert(ctx context.Context, entry types.Entry) error
	URLExists(ctx context.Context, rawURL string) (bool, error)
	ListAll(ctx context.Context) ([]types.Entry, error)
}

// SubmitRequest is the request body for POST /submit.
type SubmitRequest struct {
	URL  string `json:"url" validate:"required,url"`
	Date string `json:"date" validate:"required"`
}

// SubmitResponse is the success body for POST /submit.
type SubmitResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// EntryHandler manages link submission and the admin entry listing.
type EntryHandler struct {
	repo      EntryRepo
	validator *core.Validator
	logger    *slog.Logger

	// nowFn supplies the clock for past-date validation. Defaults to time.Now.
	nowFn func() time.Time
}

// NewEntryHandler creates a new EntryHandler with the provided dependencies.
func NewEntryHandler(repo EntryRepo, v *core.Validator, l *slog.Logger) *EntryHandler {
	if l == nil {
		l = slog.Default()
	}
	return &EntryHandler{
		repo:      repo,
		validator: v,
		logger:    l,
		nowFn:     time.Now,
	}
}

// WithNowFunc overrides the clock used for date validation. For tests.
func (h *EntryHandler) WithNowFunc(fn func() time.Time) *EntryHandler {
	h.nowFn = fn
	return h
}

// RegisterRoutes mounts the public submission route.
func (h *EntryHandler) RegisterRoutes(r chi.Router) {
	r.Post("/submit", h.HandleSubmit)
}

// RegisterAdminRoutes mounts the admin entry listing. The caller is expected
// to place these behind the admin-key middleware.
func (h *EntryHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/entries", h.HandleListEntries)
}

// HandleSubmit accepts a link submission: a URL plus the date of the event it
// refers to. Duplicate URLs are rejected, as are event dates before today.
//
// POST /submit
func (h *EntryHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if _, err := url.ParseRequestURI(req.URL); err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidURL,
			"Invalid URL",
			err,
		))
		return
	}

	eventDate, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidDate,
			"Date must be in YYYY-MM-DD format",
			err,
		))
		return
	}
	eventDate = types.DateOnly(eventDate)

	// Today's submissions are accepted; only strictly earlier dates are
	// rejected.
	today := types.DateOnly(h.nowFn().UTC())
	if eventDate.Before(today) {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationDateInPast,
			"Date cannot be in the past",
			nil,
		))
		return
	}

	exists, err := h.repo.URLExists(r.Context(), req.URL)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if exists {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeConflictURLExists,
			"URL already submitted",
			nil,
		))
		return
	}

	entry := types.Entry{
		ID:        uuid.NewString(),
		URL:       req.URL,
		EventDate: eventDate,
		CreatedAt: h.nowFn().UTC(),
	}

	// Insert surfaces conflict_url_exists on the unique index, so a
	// concurrent duplicate between the check and the insert still maps
	// to a 409.
	if err := h.repo.Insert(r.Context(), entry); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "entry submitted",
		"entry_id", entry.ID,
		"event_date", entry.EventDate.Format("2006-01-02"),
	)

	core.JSON(w, r, http.StatusOK, SubmitResponse{
		Success: true,
		ID:      entry.ID,
	})
}

// HandleListEntries dumps all stored entries, sent and pending. Mounted under
// /admin behind the admin-key middleware.
//
// GET /admin/entries
func (h *EntryHandler) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.ListAll(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	// An empty table serializes as [] rather than null.
	if entries == nil {
		entries = []types.Entry{}
	}

	core.JSON(w, r, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
