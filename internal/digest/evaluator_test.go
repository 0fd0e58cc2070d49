package digest

import (
	"reflect"
	"testing"
	"time"

	"linkdigest/internal/types"
)

// fixedNow is the reference clock for all evaluator tests.
var fixedNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func entryAt(id string, eventDate time.Time) types.Entry {
	return types.Entry{
		ID:        id,
		URL:       "https://example.com/" + id,
		EventDate: eventDate,
		CreatedAt: fixedNow.Add(-48 * time.Hour),
	}
}

func daysFromNow(d int) time.Time {
	return types.DateOnly(fixedNow.AddDate(0, 0, d))
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

// --- Condition tests ---

func TestEvaluate_EmptyBacklogNeverSends(t *testing.T) {
	// Even when staleness would fire, an empty backlog yields no digest.
	cases := []struct {
		name       string
		lastSentAt *time.Time
	}{
		{"never sent", nil},
		{"recently sent", ptrTime(fixedNow.Add(-24 * time.Hour))},
		{"stale", ptrTime(fixedNow.Add(-30 * 24 * time.Hour))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Evaluate(nil, tc.lastSentAt, fixedNow)
			if v.ShouldSend {
				t.Error("empty backlog must never send")
			}
			if len(v.Entries) != 0 || len(v.Reasons) != 0 {
				t.Errorf("empty backlog verdict carries entries/reasons: %+v", v)
			}
		})
	}
}

func TestEvaluate_NoConditionFires(t *testing.T) {
	// Scenario: one entry 10 days out, sent yesterday. Urgency, volume, and
	// staleness are all false.
	pending := []types.Entry{entryAt("a", daysFromNow(10))}
	lastSent := fixedNow.Add(-24 * time.Hour)

	v := Evaluate(pending, &lastSent, fixedNow)
	if v.ShouldSend {
		t.Errorf("shouldSend = true, want false; reasons %v", v.Reasons)
	}
}

func TestEvaluate_UrgencyWithinWindow(t *testing.T) {
	// Scenario: one entry 3 days out fires the urgency condition even though
	// a digest went out yesterday.
	pending := []types.Entry{entryAt("a", daysFromNow(3))}
	lastSent := fixedNow.Add(-24 * time.Hour)

	v := Evaluate(pending, &lastSent, fixedNow)
	if !v.ShouldSend {
		t.Fatal("shouldSend = false, want true")
	}
	if !hasReason(v.Reasons, ReasonUrgency) {
		t.Errorf("reasons = %v, want urgency", v.Reasons)
	}
}

func TestEvaluate_UrgencyBoundary(t *testing.T) {
	// An event exactly 7 days out is inside the window; 8 days is outside.
	lastSent := fixedNow.Add(-24 * time.Hour)

	atBoundary := Evaluate([]types.Entry{entryAt("a", daysFromNow(7))}, &lastSent, fixedNow)
	if !atBoundary.ShouldSend {
		t.Error("event at exactly 7 days must fire urgency")
	}

	past := Evaluate([]types.Entry{entryAt("a", daysFromNow(8))}, &lastSent, fixedNow)
	if past.ShouldSend {
		t.Error("event at 8 days must not fire urgency")
	}
}

func TestEvaluate_PastEventStillUrgent(t *testing.T) {
	// An event date already behind now still satisfies eventDate <= now+7d.
	pending := []types.Entry{entryAt("a", daysFromNow(-2))}
	lastSent := fixedNow.Add(-24 * time.Hour)

	v := Evaluate(pending, &lastSent, fixedNow)
	if !v.ShouldSend {
		t.Error("past event must fire urgency")
	}
}

func TestEvaluate_VolumeThreshold(t *testing.T) {
	// Scenario: 8 entries all 60 days out, sent today. Volume alone fires.
	var pending []types.Entry
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		pending = append(pending, entryAt(id, daysFromNow(60)))
	}
	lastSent := fixedNow

	v := Evaluate(pending, &lastSent, fixedNow)
	if !v.ShouldSend {
		t.Fatal("shouldSend = false, want true")
	}
	if !hasReason(v.Reasons, ReasonVolume) {
		t.Errorf("reasons = %v, want volume", v.Reasons)
	}
	if hasReason(v.Reasons, ReasonUrgency) || hasReason(v.Reasons, ReasonStaleness) {
		t.Errorf("reasons = %v, want volume only", v.Reasons)
	}
}

func TestEvaluate_VolumeBoundary(t *testing.T) {
	lastSent := fixedNow

	makeBacklog := func(n int) []types.Entry {
		var pending []types.Entry
		for i := 0; i < n; i++ {
			pending = append(pending, entryAt(string(rune('a'+i)), daysFromNow(60)))
		}
		return pending
	}

	if v := Evaluate(makeBacklog(VolumeThreshold), &lastSent, fixedNow); !v.ShouldSend {
		t.Errorf("%d entries must fire volume", VolumeThreshold)
	}
	if v := Evaluate(makeBacklog(VolumeThreshold-1), &lastSent, fixedNow); v.ShouldSend {
		t.Errorf("%d entries must not fire volume", VolumeThreshold-1)
	}
}

func TestEvaluate_Staleness(t *testing.T) {
	// Scenario: one entry 60 days out, last sent 25 days ago. Staleness fires.
	pending := []types.Entry{entryAt("a", daysFromNow(60))}
	lastSent := fixedNow.Add(-25 * 24 * time.Hour)

	v := Evaluate(pending, &lastSent, fixedNow)
	if !v.ShouldSend {
		t.Fatal("shouldSend = false, want true")
	}
	if !hasReason(v.Reasons, ReasonStaleness) {
		t.Errorf("reasons = %v, want staleness", v.Reasons)
	}
}

func TestEvaluate_StalenessBoundary(t *testing.T) {
	pending := []types.Entry{entryAt("a", daysFromNow(60))}

	// Exactly 21 days is not stale; strictly more is.
	exactly := fixedNow.Add(-StalenessWindow)
	if v := Evaluate(pending, &exactly, fixedNow); v.ShouldSend {
		t.Error("exactly 21 days since last send must not fire staleness")
	}

	over := fixedNow.Add(-StalenessWindow - time.Second)
	if v := Evaluate(pending, &over, fixedNow); !v.ShouldSend {
		t.Error("over 21 days since last send must fire staleness")
	}
}

func TestEvaluate_NeverSentTreatedAsStale(t *testing.T) {
	pending := []types.Entry{entryAt("a", daysFromNow(60))}

	v := Evaluate(pending, nil, fixedNow)
	if !v.ShouldSend {
		t.Fatal("nil lastSentAt with non-empty backlog must send")
	}
	if !hasReason(v.Reasons, ReasonStaleness) {
		t.Errorf("reasons = %v, want staleness", v.Reasons)
	}
}

func TestEvaluate_MultipleReasons(t *testing.T) {
	// Urgent entry, big backlog, never sent: all three conditions fire.
	var pending []types.Entry
	pending = append(pending, entryAt("urgent", daysFromNow(2)))
	for _, id := range []string{"b", "c", "d", "e", "f", "g"} {
		pending = append(pending, entryAt(id, daysFromNow(60)))
	}

	v := Evaluate(pending, nil, fixedNow)
	if !v.ShouldSend {
		t.Fatal("shouldSend = false, want true")
	}
	for _, want := range []Reason{ReasonUrgency, ReasonVolume, ReasonStaleness} {
		if !hasReason(v.Reasons, want) {
			t.Errorf("reasons = %v, missing %s", v.Reasons, want)
		}
	}
}

// --- Output shape tests ---

func TestEvaluate_OrderingByEventDateThenID(t *testing.T) {
	pending := []types.Entry{
		entryAt("z", daysFromNow(5)),
		entryAt("a", daysFromNow(5)),
		entryAt("m", daysFromNow(1)),
		entryAt("b", daysFromNow(9)),
	}

	v := Evaluate(pending, nil, fixedNow)
	if !v.ShouldSend {
		t.Fatal("shouldSend = false, want true")
	}

	var got []string
	for _, e := range v.Entries {
		got = append(got, e.ID)
	}
	want := []string{"m", "a", "z", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestEvaluate_DoesNotMutateInput(t *testing.T) {
	pending := []types.Entry{
		entryAt("z", daysFromNow(5)),
		entryAt("a", daysFromNow(1)),
	}
	original := make([]types.Entry, len(pending))
	copy(original, pending)

	Evaluate(pending, nil, fixedNow)

	if !reflect.DeepEqual(pending, original) {
		t.Errorf("input slice mutated: %v, want %v", pending, original)
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	pending := []types.Entry{
		entryAt("z", daysFromNow(5)),
		entryAt("a", daysFromNow(1)),
	}
	lastSent := fixedNow.Add(-48 * time.Hour)

	first := Evaluate(pending, &lastSent, fixedNow)
	second := Evaluate(pending, &lastSent, fixedNow)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("evaluator not idempotent: %+v vs %+v", first, second)
	}
}

func hasReason(reasons []Reason, want Reason) bool {
	for _, r := range reasons {
		if r == want {
			return true
		}
	}
	return false
}
