package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditLog persists refresh log records. Each record moves from Running to
// Completed or Failed exactly once.
type AuditLog interface {
	// StartRefresh creates a Running record and returns it with its id.
	StartRefresh(ctx context.Context, sourceSystem string, startedAt time.Time) (RefreshLogRecord, error)

	// FinishRefresh closes a Running record. Closing a record that is not
	// Running is an error.
	FinishRefresh(ctx context.Context, rec RefreshLogRecord) error

	// RecentRefreshes returns up to limit records, newest first.
	RecentRefreshes(ctx context.Context, limit int) ([]RefreshLogRecord, error)
}

// CanonicalStore opens merge transactions against canonical tables.
type CanonicalStore interface {
	BeginMerge(ctx context.Context, def TableDefinition) (MergeTx, error)
}

// MergeTx is one stage-then-apply upsert. Nothing is visible to other
// readers until Commit. Rollback after Commit is a no-op.
type MergeTx interface {
	// Stage copies the batch into a transient area private to this transaction.
	Stage(ctx context.Context, batch *Batch) error

	// Apply updates canonical rows matching a staged natural key and inserts
	// the rest, stamping now into the bookkeeping columns.
	Apply(ctx context.Context, now time.Time) (MergeCounts, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// MergeCounts are the exact row counts of one Apply.
type MergeCounts struct {
	Inserted int64
	Updated  int64
}

// RuleEngine evaluates the rule catalog in one atomic invocation. A nil
// result with a nil error means the engine produced no run.
type RuleEngine interface {
	Execute(ctx context.Context, runType RunType) (*RunResult, error)
}

// ValidationSession is a single held store connection used by a Validator.
// It is not safe for concurrent use.
type ValidationSession interface {
	// Begin opens the transaction a validation run executes in.
	Begin(ctx context.Context) (RunTx, error)

	Summarize(ctx context.Context, q SummaryQuery) ([]SummaryRow, error)
	FailureDetails(ctx context.Context, q FailureQuery) ([]ValidationResultRecord, error)

	// Close releases the connection.
	Close() error
}

// RunTx is the transaction enclosing a validation run.
type RunTx interface {
	// SaveRun records the run. Saving a run the engine already recorded
	// overwrites it with the same values.
	SaveRun(ctx context.Context, run RunResult) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// NewRefreshID returns a fresh refresh identifier.
func NewRefreshID() uuid.UUID {
	return uuid.New()
}
