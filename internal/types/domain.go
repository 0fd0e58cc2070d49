// Package types defines the domain model and shared primitives for the
// LinkDigest platform: submitted entries, page previews, error codes, and
// context helpers. It has no dependencies on other internal packages so every
// layer can import it freely.
package types

import (
	"time"
)

// Entry is a single submitted item: a URL plus the calendar date of the event
// it refers to. Entries accumulate in the backlog until a digest that includes
// them is successfully dispatched, at which point Sent flips to true exactly
// once and never reverts.
type Entry struct {
	ID        string     `json:"id"`
	URL       string     `json:"url"`
	EventDate time.Time  `json:"event_date"` // calendar date; normalized to midnight UTC
	CreatedAt time.Time  `json:"created_at"`
	Sent      bool       `json:"sent"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

// Preview holds the best-effort page metadata fetched for an entry's URL.
// All fields may be empty except Title, which falls back to the raw URL.
type Preview struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

// FallbackPreview returns the deterministic preview substituted when fetching
// fails for an entry: the raw URL as title, empty description and image.
func FallbackPreview(url string) Preview {
	return Preview{Title: url}
}

// EnrichedEntry pairs an entry with its fetched (or fallback) preview for
// rendering. Fallback records whether preview fetching failed for this entry.
type EnrichedEntry struct {
	Entry    Entry
	Preview  Preview
	Fallback bool
}

// DateOnly truncates t to its calendar date in UTC. Event dates and
// submission-date comparisons operate on calendar days, not instants.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
