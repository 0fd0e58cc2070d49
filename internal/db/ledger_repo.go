package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"linkdigest/internal/types"
)

// ledgerKey is the primary key of the single send_ledger row. The ledger is
// a singleton record; the fixed key makes the upsert unambiguous.
const ledgerKey = "digest"

// LedgerRepository persists the timestamp of the last successful digest
// dispatch. The ledger starts absent (no digest ever sent) and is only ever
// moved forward.
type LedgerRepository struct {
	db DBTX
}

// NewLedgerRepository creates a new LedgerRepository backed by the given
// database connection (pool or transaction).
func NewLedgerRepository(db DBTX) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// LastSentAt returns the timestamp of the last successful dispatch, or nil if
// no digest has ever been sent.
func (r *LedgerRepository) LastSentAt(ctx context.Context) (*time.Time, error) {
	var sentAt time.Time
	err := r.db.QueryRow(ctx,
		`SELECT last_sent_at FROM send_ledger WHERE key = $1`,
		ledgerKey,
	).Scan(&sentAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(
			types.ErrCodeInternalDB,
			"failed to read send ledger",
			err,
		)
	}
	return &sentAt, nil
}

// RecordSent sets the ledger to sentAt, creating the row on first dispatch.
func (r *LedgerRepository) RecordSent(ctx context.Context, sentAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO send_ledger (key, last_sent_at)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET last_sent_at = EXCLUDED.last_sent_at`,
		ledgerKey, sentAt,
	)
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalDB,
			"failed to record send ledger",
			err,
		)
	}
	return nil
}

// DispatchRecorder runs the post-dispatch state mutations -- mark entries
// sent and advance the ledger -- in a single transaction, so a crash between
// the two cannot leave the ledger ahead of the backlog.
type DispatchRecorder struct {
	pool *pgxpool.Pool
}

// NewDispatchRecorder creates a DispatchRecorder on the given pool.
func NewDispatchRecorder(pool *pgxpool.Pool) *DispatchRecorder {
	return &DispatchRecorder{pool: pool}
}

// MarkDispatched marks the given entries sent and records the ledger
// timestamp atomically. It must only be called after the provider has
// confirmed the dispatch.
func (d *DispatchRecorder) MarkDispatched(ctx context.Context, entryIDs []string, sentAt time.Time) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalDB,
			"failed to begin dispatch transaction",
			err,
		)
	}
	defer tx.Rollback(ctx)

	if err := NewEntryRepository(tx).MarkSent(ctx, entryIDs, sentAt); err != nil {
		return err
	}
	if err := NewLedgerRepository(tx).RecordSent(ctx, sentAt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(
			types.ErrCodeInternalDB,
			"failed to commit dispatch transaction",
			err,
		)
	}
	return nil
}
