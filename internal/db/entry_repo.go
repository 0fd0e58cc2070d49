package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"linkdigest/internal/types"
)

// EntryRepository provides data access for the entries table.
//
// URL uniqueness is enforced by a UNIQUE index on entries.url; URLExists is
// an indexed lookup, never a scan, and Insert maps the constraint violation
// to a conflict error so the check-then-insert race is closed at the store.
type EntryRepository struct {
	db DBTX
}

// NewEntryRepository creates a new EntryRepository backed by the given
// database connection (pool or transaction).
func NewEntryRepository(db DBTX) *EntryRepository {
	return &EntryRepository{db: db}
}

// entryColumns is the standard column set for entry queries.
const entryColumns = `id, url, event_date, created_at, sent, sent_at`

// scanEntry scans a single entry row. The columns must match entryColumns.
func scanEntry(row pgx.Row) (types.Entry, error) {
	var e types.Entry
	var sentAt *time.Time
	if err := row.Scan(&e.ID, &e.URL, &e.EventDate, &e.CreatedAt, &e.Sent, &sentAt); err != nil {
		return types.Entry{}, err
	}
	e.SentAt = sentAt
	e.EventDate = types.DateOnly(e.EventDate)
	return e, nil
}

// Insert persists a new entry. The entry's ID, URL, EventDate, and CreatedAt
// must be populated by the caller; Sent is always stored false.
//
// Returns ErrCodeConflictURLExists if the URL is already present (in any sent
// state), or ErrCodeInternalDB for other failures.
func (r *EntryRepository) Insert(ctx context.Context, e types.Entry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO entries (id, url, event_date, created_at, sent)
		VALUES ($1, $2, $3, $4, FALSE)`,
		e.ID, e.URL, e.EventDate, e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(
				types.ErrCodeConflictURLExists,
				"URL already submitted",
				err,
			)
		}
		return types.NewAppError(
			types.ErrCodeInternalDB,
			"failed to insert entry",
			err,
		)
	}
	return nil
}

// URLExists reports whether any entry with the given URL exists, regardless
// of sent state. Backed by the unique index on url.
func (r *EntryRepository) URLExists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM entries WHERE url = $1)`,
		url,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(
			types.ErrCodeInternalDB,
			"failed to check URL existence",
			err,
		)
	}
	return exists, nil
}

// ListPending returns all entries not yet covered by a dispatched digest.
// Ordering is left to the evaluator; the query returns insertion order.
func (r *EntryRepository) ListPending(ctx context.Context) ([]types.Entry, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM entries
		WHERE sent = FALSE
		ORDER BY created_at`, entryColumns),
	)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalDB,
			"failed to list pending entries",
			err,
		)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ListAll returns every stored entry, newest first. Serves the admin
// inspection endpoint.
func (r *EntryRepository) ListAll(ctx context.Context) ([]types.Entry, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM entries
		ORDER BY created_at DESC`, entryColumns),
	)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalDB,
			"failed to list entries",
			err,
		)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// MarkSent flips sent=TRUE for the given entry IDs. Marking an already-sent
// entry again is a no-op at the record level, so replays are idempotent.
func (r *EntryRepository) MarkSent(ctx context.Context, ids []string, sentAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		UPDATE entries
		SET sent = TRUE, sent_at = $1
		WHERE id = ANY($2) AND sent = FALSE`,
		sentAt, ids,
	)
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalDB,
			"failed to mark entries sent",
			err,
		)
	}
	return nil
}

// collectEntries drains rows into a slice of entries.
func collectEntries(rows pgx.Rows) ([]types.Entry, error) {
	var entries []types.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, types.NewAppError(
				types.ErrCodeInternalDB,
				"failed to scan entry row",
				err,
			)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(
			types.ErrCodeInternalDB,
			"failed to iterate entry rows",
			err,
		)
	}
	return entries, nil
}
