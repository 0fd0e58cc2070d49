// Package preview fetches best-effort page metadata (title, description,
// image) for submitted URLs. Fetching is strictly best-effort: any failure --
// network error, non-2xx status, unparseable HTML -- degrades to a
// deterministic fallback record and never blocks a digest.
package preview

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"linkdigest/internal/external"
	"linkdigest/internal/types"
)

// maxPreviewBodyBytes caps how much of a page is read when extracting
// metadata. OpenGraph tags live in <head>, so 1 MB is generous.
const maxPreviewBodyBytes = 1 << 20

// Fetcher retrieves a page and extracts preview metadata from its markup.
// Requests go through the shared BaseClient so arbitrary submitted hosts
// inherit the same resilience posture as provider calls.
type Fetcher struct {
	base   *external.BaseClient
	logger *slog.Logger
}

// NewFetcher creates a Fetcher. The httpClient timeout bounds how long a
// single page fetch may hang; a timed-out fetch is just another fallback.
func NewFetcher(httpClient *http.Client, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		base: external.NewBaseClient(
			httpClient,
			"preview",
			external.DefaultRetryPolicy(),
			"LinkDigest/1.0",
		),
		logger: logger,
	}
}

// Fetch retrieves the page at url and extracts its preview. OpenGraph tags
// take precedence; <title> and meta description are the fallbacks. A page
// with no discoverable title yields the raw URL as title.
func (f *Fetcher) Fetch(ctx context.Context, url string) (types.Preview, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.Preview{}, fmt.Errorf("preview: creating request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := f.base.Do(req)
	if err != nil {
		return types.Preview{}, fmt.Errorf("preview: fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.Preview{}, fmt.Errorf("preview: %s returned status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPreviewBodyBytes))
	if err != nil {
		return types.Preview{}, fmt.Errorf("preview: parsing %s: %w", url, err)
	}

	p := extractPreview(doc)
	if p.Title == "" {
		p.Title = url
	}
	return p, nil
}

// extractPreview pulls title, description, and image from the parsed page.
func extractPreview(doc *goquery.Document) types.Preview {
	var p types.Preview

	p.Title = metaContent(doc, `meta[property="og:title"]`)
	if p.Title == "" {
		p.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	p.Description = metaContent(doc, `meta[property="og:description"]`)
	if p.Description == "" {
		p.Description = metaContent(doc, `meta[name="description"]`)
	}

	p.ImageURL = metaContent(doc, `meta[property="og:image"]`)

	return p
}

// metaContent returns the trimmed content attribute of the first element
// matching the selector, or "" if absent.
func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}
