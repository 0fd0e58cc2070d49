package preview

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"linkdigest/internal/types"
)

// EnrichConcurrencyLimit is the maximum number of in-flight preview fetches
// during batch enrichment.
const EnrichConcurrencyLimit = 5

// PreviewFetcher is the single-URL fetch contract the Enricher depends on.
// Satisfied by *Fetcher.
type PreviewFetcher interface {
	Fetch(ctx context.Context, url string) (types.Preview, error)
}

// Enricher fans preview fetches out across the backlog. Each entry's fetch is
// independent; a failure substitutes the fallback preview for that entry only
// and never aborts the batch.
type Enricher struct {
	fetcher PreviewFetcher
	limit   int
	logger  *slog.Logger
}

// NewEnricher creates an Enricher with the default concurrency limit.
func NewEnricher(fetcher PreviewFetcher, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		fetcher: fetcher,
		limit:   EnrichConcurrencyLimit,
		logger:  logger,
	}
}

// EnrichAll fetches previews for all entries in parallel and returns one
// EnrichedEntry per input entry, in input order. EnrichAll never fails: it
// waits for every fetch (or fallback) to complete and degrades per entry.
func (e *Enricher) EnrichAll(ctx context.Context, entries []types.Entry) []types.EnrichedEntry {
	results := make([]types.EnrichedEntry, len(entries))

	g := new(errgroup.Group)
	g.SetLimit(e.limit)

	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			p, err := e.fetcher.Fetch(ctx, entry.URL)
			if err != nil {
				e.logger.WarnContext(ctx, "preview fetch failed, using fallback",
					"entry_id", entry.ID,
					"url", entry.URL,
					"error", err,
				)
				results[i] = types.EnrichedEntry{
					Entry:    entry,
					Preview:  types.FallbackPreview(entry.URL),
					Fallback: true,
				}
				return nil
			}
			results[i] = types.EnrichedEntry{Entry: entry, Preview: p}
			return nil
		})
	}

	// Goroutines never return errors; Wait is only a completion barrier.
	_ = g.Wait()

	return results
}
