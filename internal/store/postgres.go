package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/skuld/internal/validation"
)

// Compile-time checks that the postgres implementations satisfy the gateway
// contracts. If the interfaces change and these don't, the build fails here.
var (
	_ Gateway   = (*PostgresStore)(nil)
	_ TxGateway = (*postgresTx)(nil)
)

// PostgresStore implements Gateway backed by PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new gateway instance with the given pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	validation.AssertNotNil(db, "database pool")
	return &PostgresStore{db: db}
}

// LoadSessionWithRuleSet joins the session with its rule set and loads the
// rule set's tag definitions in authoring order.
func (s *PostgresStore) LoadSessionWithRuleSet(ctx context.Context, sessionID int64) (*SessionDetail, error) {
	query := `
		SELECT s.id, s.rule_set_id, s.symbol, s.timeframe, s.state, s.last_evaluated_at, s.created_at,
		       r.id, r.owner, r.name, r.version, r.defaults
		FROM sessions s
		JOIN rule_sets r ON r.id = s.rule_set_id
		WHERE s.id = $1
	`

	var (
		detail      SessionDetail
		defaultsRaw []byte
	)
	err := s.db.QueryRow(ctx, query, sessionID).Scan(
		&detail.Session.ID,
		&detail.Session.RuleSetID,
		&detail.Session.Symbol,
		&detail.Session.Timeframe,
		&detail.Session.State,
		&detail.Session.LastEvaluatedAt,
		&detail.Session.CreatedAt,
		&detail.RuleSet.ID,
		&detail.RuleSet.Owner,
		&detail.RuleSet.Name,
		&detail.RuleSet.Version,
		&defaultsRaw,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session %d: %w", sessionID, err)
	}

	if len(defaultsRaw) > 0 {
		if err := json.Unmarshal(defaultsRaw, &detail.RuleSet.Defaults); err != nil {
			return nil, fmt.Errorf("failed to decode rule set %d defaults: %w", detail.RuleSet.ID, err)
		}
	}

	tags, err := s.loadTags(ctx, detail.RuleSet.ID)
	if err != nil {
		return nil, err
	}
	detail.RuleSet.Tags = tags

	return &detail, nil
}

func (s *PostgresStore) loadTags(ctx context.Context, ruleSetID int64) ([]TagDefinition, error) {
	query := `
		SELECT id, rule_set_id, tag_key, name, severity, rule, position
		FROM tag_definitions
		WHERE rule_set_id = $1
		ORDER BY position ASC, id ASC
	`

	rows, err := s.db.Query(ctx, query, ruleSetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tags for rule set %d: %w", ruleSetID, err)
	}
	defer rows.Close()

	var tags []TagDefinition
	for rows.Next() {
		var tag TagDefinition
		if err := rows.Scan(
			&tag.ID,
			&tag.RuleSetID,
			&tag.TagKey,
			&tag.Name,
			&tag.Severity,
			&tag.Rule,
			&tag.Position,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tag row: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tag rows iteration error: %w", err)
	}

	return tags, nil
}

// LoadSnapshot loads one snapshot by id.
func (s *PostgresStore) LoadSnapshot(ctx context.Context, id int64) (*Snapshot, error) {
	query := `
		SELECT id, session_id, captured_at, features, payload
		FROM snapshots
		WHERE id = $1
	`
	return scanSnapshot(s.db.QueryRow(ctx, query, id))
}

// LoadLatestSnapshot loads the most recently captured snapshot for a session.
// Ties on captured_at break on the higher id so re-captures win.
func (s *PostgresStore) LoadLatestSnapshot(ctx context.Context, sessionID int64) (*Snapshot, error) {
	query := `
		SELECT id, session_id, captured_at, features, payload
		FROM snapshots
		WHERE session_id = $1
		ORDER BY captured_at DESC, id DESC
		LIMIT 1
	`
	return scanSnapshot(s.db.QueryRow(ctx, query, sessionID))
}

func scanSnapshot(row pgx.Row) (*Snapshot, error) {
	var (
		snap        Snapshot
		featuresRaw []byte
		payloadRaw  []byte
	)
	err := row.Scan(&snap.ID, &snap.SessionID, &snap.CapturedAt, &featuresRaw, &payloadRaw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	if len(featuresRaw) > 0 {
		if err := json.Unmarshal(featuresRaw, &snap.Features); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot %d features: %w", snap.ID, err)
		}
	}
	if len(payloadRaw) > 0 {
		if err := json.Unmarshal(payloadRaw, &snap.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot %d payload: %w", snap.ID, err)
		}
	}

	return &snap, nil
}

// InTransaction opens one transaction, hands the bound writer to fn and
// commits only when fn returns nil. Any error rolls the whole batch back.
func (s *PostgresStore) InTransaction(ctx context.Context, fn func(tx TxGateway) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback after a successful commit is a harmless no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// postgresTx is the transaction-bound write surface.
type postgresTx struct {
	tx pgx.Tx
}

// CreateEvaluation inserts one evaluation row.
func (t *postgresTx) CreateEvaluation(ctx context.Context, e *Evaluation) error {
	contextRaw, err := json.Marshal(e.Context)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation context: %w", err)
	}

	query := `
		INSERT INTO evaluations (id, session_id, snapshot_id, tag_id, status, score, context)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err = t.tx.QueryRow(ctx, query,
		e.ID,
		e.SessionID,
		e.SnapshotID,
		e.TagID,
		e.Status,
		e.Score,
		contextRaw,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert evaluation for tag %d: %w", e.TagID, err)
	}
	return nil
}

// CreateAdvice inserts the advice row for one evaluation.
func (t *postgresTx) CreateAdvice(ctx context.Context, a *Advice) error {
	query := `
		INSERT INTO advice (id, evaluation_id, session_state, headline, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := t.tx.QueryRow(ctx, query,
		a.ID,
		a.EvaluationID,
		a.SessionState,
		a.Headline,
		a.Body,
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert advice for evaluation %s: %w", a.EvaluationID, err)
	}
	return nil
}

// UpdateSessionState overwrites the derived state and evaluation timestamp.
func (t *postgresTx) UpdateSessionState(ctx context.Context, sessionID int64, state SessionState, evaluatedAt time.Time) error {
	query := `
		UPDATE sessions
		SET state = $2, last_evaluated_at = $3
		WHERE id = $1
	`
	cmd, err := t.tx.Exec(ctx, query, sessionID, state, evaluatedAt)
	if err != nil {
		return fmt.Errorf("failed to update session %d: %w", sessionID, err)
	}
	if cmd.RowsAffected() == 0 {
		// The session vanished between load and commit; failing the
		// transaction keeps evaluations from pointing at a dead session.
		return fmt.Errorf("session %d disappeared during evaluation: %w", sessionID, ErrNotFound)
	}
	return nil
}
