package email

import (
	"strings"
	"testing"
	"time"

	"linkdigest/internal/types"
)

var renderNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(RendererConfig{FormURL: "https://linkdigest.io/submit"})
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r
}

func enriched(id, url, title string, eventDate time.Time) types.EnrichedEntry {
	return types.EnrichedEntry{
		Entry: types.Entry{
			ID:        id,
			URL:       url,
			EventDate: eventDate,
		},
		Preview: types.Preview{
			Title:       title,
			Description: "A description of " + title,
		},
	}
}

func TestRenderDigest_SubjectCountsEntries(t *testing.T) {
	r := newTestRenderer(t)

	entries := []types.EnrichedEntry{
		enriched("a", "https://example.com/a", "First", renderNow.AddDate(0, 0, 2)),
		enriched("b", "https://example.com/b", "Second", renderNow.AddDate(0, 0, 5)),
		enriched("c", "https://example.com/c", "Third", renderNow.AddDate(0, 0, 9)),
	}

	out, err := r.RenderDigest(entries, renderNow)
	if err != nil {
		t.Fatalf("RenderDigest: %v", err)
	}

	if out.Subject != "Your digest: 3 links worth a look" {
		t.Errorf("Subject = %q", out.Subject)
	}
}

func TestRenderDigest_SingularSubject(t *testing.T) {
	r := newTestRenderer(t)

	entries := []types.EnrichedEntry{
		enriched("a", "https://example.com/a", "Only One", renderNow.AddDate(0, 0, 3)),
	}

	out, err := r.RenderDigest(entries, renderNow)
	if err != nil {
		t.Fatalf("RenderDigest: %v", err)
	}

	if out.Subject != "Your digest: 1 link worth a look" {
		t.Errorf("Subject = %q", out.Subject)
	}
}

func TestRenderDigest_EmptyBacklogIsError(t *testing.T) {
	r := newTestRenderer(t)

	if _, err := r.RenderDigest(nil, renderNow); err == nil {
		t.Fatal("expected error for empty entries")
	}
}

func TestRenderDigest_BodiesContainEntries(t *testing.T) {
	r := newTestRenderer(t)

	entries := []types.EnrichedEntry{
		enriched("a", "https://example.com/conference", "Go Conference", renderNow.AddDate(0, 0, 4)),
		enriched("b", "https://example.com/meetup", "Local Meetup", renderNow.AddDate(0, 0, 12)),
	}

	out, err := r.RenderDigest(entries, renderNow)
	if err != nil {
		t.Fatalf("RenderDigest: %v", err)
	}

	for _, want := range []string{
		"Go Conference",
		"https://example.com/conference",
		"Local Meetup",
		"A description of Go Conference",
	} {
		if !strings.Contains(out.BodyHTML, want) {
			t.Errorf("HTML body missing %q", want)
		}
		if !strings.Contains(out.BodyText, want) {
			t.Errorf("text body missing %q", want)
		}
	}
}

func TestRenderDigest_FooterLinksSubmissionForm(t *testing.T) {
	r := newTestRenderer(t)

	entries := []types.EnrichedEntry{
		enriched("a", "https://example.com/a", "First", renderNow.AddDate(0, 0, 2)),
	}

	out, err := r.RenderDigest(entries, renderNow)
	if err != nil {
		t.Fatalf("RenderDigest: %v", err)
	}

	if !strings.Contains(out.BodyHTML, "https://linkdigest.io/submit") {
		t.Error("HTML body missing form URL")
	}
	if !strings.Contains(out.BodyText, "https://linkdigest.io/submit") {
		t.Error("text body missing form URL")
	}
}

func TestRenderDigest_DaysUntilPhrasing(t *testing.T) {
	r := newTestRenderer(t)

	cases := []struct {
		name      string
		eventDate time.Time
		wantText  string
	}{
		{"today", types.DateOnly(renderNow), "Happening today"},
		{"tomorrow", types.DateOnly(renderNow).AddDate(0, 0, 1), "Tomorrow"},
		{"future", types.DateOnly(renderNow).AddDate(0, 0, 5), "In 5 days"},
		{"past", types.DateOnly(renderNow).AddDate(0, 0, -2), "Happened"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entries := []types.EnrichedEntry{
				enriched("a", "https://example.com/a", "Event", tc.eventDate),
			}

			out, err := r.RenderDigest(entries, renderNow)
			if err != nil {
				t.Fatalf("RenderDigest: %v", err)
			}

			if !strings.Contains(out.BodyText, tc.wantText) {
				t.Errorf("text body missing %q:\n%s", tc.wantText, out.BodyText)
			}
			if !strings.Contains(out.BodyHTML, tc.wantText) {
				t.Errorf("HTML body missing %q", tc.wantText)
			}
		})
	}
}

func TestRenderDigest_ImageOnlyWhenPresent(t *testing.T) {
	r := newTestRenderer(t)

	withImage := enriched("a", "https://example.com/a", "With Image", renderNow.AddDate(0, 0, 2))
	withImage.Preview.ImageURL = "https://example.com/og.png"
	without := enriched("b", "https://example.com/b", "No Image", renderNow.AddDate(0, 0, 3))

	out, err := r.RenderDigest([]types.EnrichedEntry{withImage, without}, renderNow)
	if err != nil {
		t.Fatalf("RenderDigest: %v", err)
	}

	if !strings.Contains(out.BodyHTML, "https://example.com/og.png") {
		t.Error("HTML body missing preview image")
	}
	if strings.Count(out.BodyHTML, "<img") != 1 {
		t.Errorf("expected exactly one img tag, got %d", strings.Count(out.BodyHTML, "<img"))
	}
}

func TestRenderDigest_FallbackEntryRendersRawURL(t *testing.T) {
	r := newTestRenderer(t)

	entry := types.EnrichedEntry{
		Entry: types.Entry{
			ID:        "a",
			URL:       "https://example.com/unreachable",
			EventDate: renderNow.AddDate(0, 0, 3),
		},
		Preview:  types.FallbackPreview("https://example.com/unreachable"),
		Fallback: true,
	}

	out, err := r.RenderDigest([]types.EnrichedEntry{entry}, renderNow)
	if err != nil {
		t.Fatalf("RenderDigest: %v", err)
	}

	// The raw URL serves as both title and link target.
	if strings.Count(out.BodyText, "https://example.com/unreachable") < 2 {
		t.Error("fallback entry should show its URL as the title")
	}
}

func TestRenderDigest_EscapesHTMLInTitles(t *testing.T) {
	r := newTestRenderer(t)

	entries := []types.EnrichedEntry{
		enriched("a", "https://example.com/a", `<script>alert("x")</script>`, renderNow.AddDate(0, 0, 2)),
	}

	out, err := r.RenderDigest(entries, renderNow)
	if err != nil {
		t.Fatalf("RenderDigest: %v", err)
	}

	if strings.Contains(out.BodyHTML, "<script>") {
		t.Error("HTML body must escape markup in titles")
	}
}
