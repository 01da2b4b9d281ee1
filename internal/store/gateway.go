package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound marks a load for an entity that does not exist. The job
// handler treats it as a logged no-op, never as a job failure.
var ErrNotFound = errors.New("store: not found")

// Gateway is the persistence contract consumed by the evaluation job
// handler. Using an interface allows the handler to be tested against an
// in-memory fake.
type Gateway interface {
	// LoadSessionWithRuleSet loads a session together with its rule set and
	// ordered tag definitions. Returns ErrNotFound when the session or its
	// rule set is absent.
	LoadSessionWithRuleSet(ctx context.Context, sessionID int64) (*SessionDetail, error)

	// LoadSnapshot loads one snapshot by id. Returns ErrNotFound when absent.
	LoadSnapshot(ctx context.Context, id int64) (*Snapshot, error)

	// LoadLatestSnapshot loads the most recently captured snapshot for a
	// session. Returns ErrNotFound when the session has none.
	LoadLatestSnapshot(ctx context.Context, sessionID int64) (*Snapshot, error)

	// InTransaction runs fn against a transaction-bound writer. All writes
	// inside fn commit together or roll back together; a non-nil error from
	// fn rolls back and is returned as-is.
	InTransaction(ctx context.Context, fn func(tx TxGateway) error) error
}

// TxGateway is the write surface available inside InTransaction.
type TxGateway interface {
	// CreateEvaluation inserts one evaluation row, populating CreatedAt.
	CreateEvaluation(ctx context.Context, e *Evaluation) error

	// CreateAdvice inserts the advice row for one evaluation.
	CreateAdvice(ctx context.Context, a *Advice) error

	// UpdateSessionState overwrites the session's derived state and stamps
	// lastEvaluatedAt.
	UpdateSessionState(ctx context.Context, sessionID int64, state SessionState, evaluatedAt time.Time) error
}
