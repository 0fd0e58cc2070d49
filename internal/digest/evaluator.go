// Package digest implements the digest decision and dispatch cycle for the
// LinkDigest platform.
//
// The package has two halves: Evaluate, the pure eligibility function that
// decides whether the pending backlog warrants a digest right now, and
// Service, the orchestration around it (load backlog, enrich previews,
// render, dispatch, record). Evaluate performs no I/O and reads no ambient
// clock; the caller injects "now" so verdicts are reproducible.
package digest

import (
	"sort"
	"time"

	"linkdigest/internal/types"
)

// Fixed decision thresholds. These are deliberate policy constants, not
// per-call configuration.
const (
	// UrgencyWindow is how far ahead an entry's event date may lie and still
	// count as urgent. Entries with past event dates are always urgent.
	UrgencyWindow = 7 * 24 * time.Hour

	// VolumeThreshold is the backlog size at which a digest is sent
	// regardless of event dates.
	VolumeThreshold = 7

	// StalenessWindow is the maximum time since the last dispatch before a
	// non-empty backlog is flushed regardless of urgency or volume. Combined
	// with a non-empty backlog this guarantees no submission waits forever.
	StalenessWindow = 21 * 24 * time.Hour
)

// Reason identifies which decision condition fired.
type Reason string

const (
	ReasonUrgency   Reason = "urgency"   // an event is happening within UrgencyWindow
	ReasonVolume    Reason = "volume"    // backlog size reached VolumeThreshold
	ReasonStaleness Reason = "staleness" // never sent, or last send older than StalenessWindow
)

// Verdict is the outcome of an eligibility evaluation. When ShouldSend is
// true, Entries holds the full pending backlog ordered by ascending event
// date with ties broken by ascending ID, so rendering is deterministic.
type Verdict struct {
	ShouldSend bool
	Entries    []types.Entry
	Reasons    []Reason
}

// Evaluate decides whether a digest should be produced right now.
//
// The verdict is shouldSend = urgency OR volume OR staleness, evaluated only
// when the backlog is non-empty:
//
//	urgency:   at least one entry has EventDate <= now + UrgencyWindow
//	           (the comparison is <=, so overdue entries always qualify)
//	volume:    len(pending) >= VolumeThreshold
//	staleness: lastSentAt is nil, or now - lastSentAt > StalenessWindow
//
// An empty backlog always yields ShouldSend=false. Evaluate is total over its
// input domain and never fails; identical inputs always produce identical
// verdicts. The input slice is not mutated.
func Evaluate(pending []types.Entry, lastSentAt *time.Time, now time.Time) Verdict {
	if len(pending) == 0 {
		return Verdict{}
	}

	var reasons []Reason

	urgencyCutoff := now.Add(UrgencyWindow)
	for _, e := range pending {
		if !e.EventDate.After(urgencyCutoff) {
			reasons = append(reasons, ReasonUrgency)
			break
		}
	}

	if len(pending) >= VolumeThreshold {
		reasons = append(reasons, ReasonVolume)
	}

	if lastSentAt == nil || now.Sub(*lastSentAt) > StalenessWindow {
		reasons = append(reasons, ReasonStaleness)
	}

	if len(reasons) == 0 {
		return Verdict{}
	}

	ordered := make([]types.Entry, len(pending))
	copy(ordered, pending)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].EventDate.Equal(ordered[j].EventDate) {
			return ordered[i].EventDate.Before(ordered[j].EventDate)
		}
		return ordered[i].ID < ordered[j].ID
	})

	return Verdict{
		ShouldSend: true,
		Entries:    ordered,
		Reasons:    reasons,
	}
}
