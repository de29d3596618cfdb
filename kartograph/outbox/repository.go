package outbox

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Querier is the subset of database/sql execution shared by *sql.DB and
// *sql.Tx. Repository methods take it explicitly so appends can join the
// caller's transaction and fetch cycles can hold their row locks on one tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is the transactional handle the worker drives a cycle on: a Querier
// that can commit or roll back. *sql.Tx satisfies it.
type Tx interface {
	Querier
	Commit() error
	Rollback() error
}

// Repository defines persistence operations for outbox entries.
//
// FetchUnprocessed must be called on an open transaction: the returned rows
// are locked FOR UPDATE SKIP LOCKED and stay claimed until the transaction
// ends. MarkProcessed and RecordFailure for those rows belong on the same
// transaction so the claim and its bookkeeping commit atomically.
type Repository interface {
	// Append serializes the event and inserts a pending entry on the
	// caller's Querier. Run it on the transaction that persists the state
	// change the event describes; it never commits on its own.
	Append(ctx context.Context, q Querier, event Event, aggregateType, aggregateID string) (*Entry, error)

	// FetchUnprocessed returns pending entries oldest-first, locking each
	// returned row against concurrent workers.
	FetchUnprocessed(ctx context.Context, q Querier, limit int) ([]*Entry, error)

	// MarkProcessed stamps processed_at. Calling it again for the same
	// entry affects no rows and returns no error.
	MarkProcessed(ctx context.Context, q Querier, id uuid.UUID) error

	// RecordFailure increments the retry count and stores the sanitized
	// cause. When the new count reaches maxRetries the entry is
	// dead-lettered in the same statement; dlq reports that transition.
	RecordFailure(ctx context.Context, q Querier, id uuid.UUID, cause error, maxRetries int) (dlq bool, err error)

	// ReplayFailed clears the dead-letter state so the entry becomes
	// pending again. Operator action after fixing the downstream fault.
	ReplayFailed(ctx context.Context, q Querier, id uuid.UUID) error

	// CountPending and CountDeadLettered feed the depth monitor.
	CountPending(ctx context.Context, q Querier) (int64, error)
	CountDeadLettered(ctx context.Context, q Querier) (int64, error)

	// PurgeProcessedBefore deletes processed entries older than cutoff and
	// reports how many rows were removed.
	PurgeProcessedBefore(ctx context.Context, q Querier, cutoff time.Time) (int64, error)
}
