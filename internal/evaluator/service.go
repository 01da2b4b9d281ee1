package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rafaeljc/skuld/internal/cache"
	"github.com/rafaeljc/skuld/internal/observability"
	"github.com/rafaeljc/skuld/internal/queue"
	"github.com/rafaeljc/skuld/internal/ruleengine"
	"github.com/rafaeljc/skuld/internal/store"
)

// Outcome classifies how a job run ended. Every outcome is a job success
// from the queue's perspective; only returned errors trigger a retry.
type Outcome string

const (
	// OutcomeEvaluated means results were computed and committed.
	OutcomeEvaluated Outcome = "evaluated"

	// OutcomeSessionNotFound means the session (or its rule set) is gone.
	// The worker uses this to cancel the session's heartbeat chain.
	OutcomeSessionNotFound Outcome = "session_not_found"

	// OutcomeSnapshotNotFound means no snapshot could be resolved.
	OutcomeSnapshotNotFound Outcome = "snapshot_not_found"

	// OutcomeNoUsableTags means every tag's rule failed to compile, or the
	// rule set has no tags. Nothing was written.
	OutcomeNoUsableTags Outcome = "no_usable_tags"

	// OutcomeDuplicate means another delivery of the same job already
	// committed this batch; this run wrote nothing.
	OutcomeDuplicate Outcome = "duplicate"
)

// Deduper reserves a dedupe key so only one delivery of a job writes, and
// releases it again when that write fails. Implemented by cache.RedisDeduper.
type Deduper interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Service is the evaluation job handler.
type Service struct {
	logger *slog.Logger
	store  store.Gateway

	// rules caches compiled ASTs; nil disables caching.
	rules *cache.RuleCache

	// dedupe suppresses duplicate deliveries; nil disables deduplication.
	dedupe    Deduper
	dedupeTTL time.Duration
}

// New creates the job handler. The rule cache and deduper are optional.
func New(logger *slog.Logger, gateway store.Gateway, rules *cache.RuleCache, dedupe Deduper, dedupeTTL time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if gateway == nil {
		panic("evaluator: store gateway cannot be nil")
	}

	return &Service{
		logger:    logger,
		store:     gateway,
		rules:     rules,
		dedupe:    dedupe,
		dedupeTTL: dedupeTTL,
	}
}

// HandleJob runs one evaluation job to completion.
//
// Missing session, missing snapshot and zero usable tags are logged
// successes, not errors: there is no synchronous caller to report to, and
// retrying cannot make a deleted session reappear. Only persistence and
// infrastructure failures return an error, which the queue retries with
// backoff.
func (s *Service) HandleJob(ctx context.Context, job queue.Job) (Outcome, error) {
	log := s.logger.With(
		slog.Int64("session_id", job.SessionID),
		slog.String("trigger", string(job.Trigger)),
	)

	detail, err := s.store.LoadSessionWithRuleSet(ctx, job.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("session not found, skipping job")
			return OutcomeSessionNotFound, nil
		}
		return "", fmt.Errorf("failed to load session %d: %w", job.SessionID, err)
	}

	snapshot, err := s.resolveSnapshot(ctx, job)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("no snapshot available, skipping job")
			return OutcomeSnapshotNotFound, nil
		}
		return "", err
	}

	input := ruleengine.EvaluationInput{
		Features: snapshot.Features,
		Payload:  snapshot.Payload,
	}
	baseThresholds := detail.RuleSet.Defaults.Thresholds()

	results := make([]TagResult, 0, len(detail.RuleSet.Tags))
	for _, tag := range detail.RuleSet.Tags {
		rule, err := s.compiledRule(tag, detail.RuleSet.Version)
		if err != nil {
			// One malformed tag must not sink the batch.
			observability.RuleCompileErrors.Inc()
			log.Warn("skipping tag with malformed rule",
				slog.String("tag_key", tag.TagKey),
				slog.String("error", err.Error()),
			)
			continue
		}

		satisfied := ruleengine.EvaluateGroup(rule.When, input)
		score := ruleengine.ComputeScore(rule.Score, satisfied, input)
		status := ruleengine.Classify(score, satisfied, ruleengine.MergeThresholds(baseThresholds, rule.Traffic))

		observability.TagEvaluations.WithLabelValues(string(status)).Inc()
		results = append(results, TagResult{
			Tag:       tag,
			Satisfied: satisfied,
			Score:     score,
			Status:    status,
		})
	}

	if len(results) == 0 {
		log.Warn("no usable tags produced a result, skipping job")
		return OutcomeNoUsableTags, nil
	}

	ok, reservedKey, outcome := s.reserveDedupe(ctx, log, job, detail, snapshot)
	if !ok {
		return outcome, nil
	}

	state := DeriveSessionState(results)
	evaluatedAt := time.Now().UTC()

	err = s.store.InTransaction(ctx, func(tx store.TxGateway) error {
		for _, r := range results {
			eval := &store.Evaluation{
				ID:         uuid.New(),
				SessionID:  detail.Session.ID,
				SnapshotID: snapshot.ID,
				TagID:      r.Tag.ID,
				Status:     r.Status,
				Score:      r.Score,
				Context: map[string]any{
					"satisfied": r.Satisfied,
					"score":     r.Score,
				},
			}
			if err := tx.CreateEvaluation(ctx, eval); err != nil {
				return err
			}

			headline, body := BuildAdviceText(r)
			advice := &store.Advice{
				ID:           uuid.New(),
				EvaluationID: eval.ID,
				SessionState: AdviceState(r),
				Headline:     headline,
				Body:         body,
			}
			if err := tx.CreateAdvice(ctx, advice); err != nil {
				return err
			}
		}
		return tx.UpdateSessionState(ctx, detail.Session.ID, state, evaluatedAt)
	})
	if err != nil {
		// Give the reservation back before failing the job: holding it would
		// make the queue's redelivery exit as a duplicate and the evaluation
		// would be lost for the whole dedupe TTL.
		if reservedKey != "" {
			if relErr := s.dedupe.Release(ctx, reservedKey); relErr != nil {
				log.Warn("failed to release dedupe reservation after commit failure",
					slog.String("error", relErr.Error()),
				)
			}
		}
		return "", fmt.Errorf("failed to commit evaluation batch for session %d: %w", detail.Session.ID, err)
	}

	log.Info("evaluation committed",
		slog.Int("tags", len(results)),
		slog.Int64("snapshot_id", snapshot.ID),
		slog.String("session_state", string(state)),
	)
	return OutcomeEvaluated, nil
}

// resolveSnapshot loads the explicitly requested snapshot, or the latest one
// captured for the session.
func (s *Service) resolveSnapshot(ctx context.Context, job queue.Job) (*store.Snapshot, error) {
	if job.SnapshotID != nil {
		snap, err := s.store.LoadSnapshot(ctx, *job.SnapshotID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to load snapshot %d: %w", *job.SnapshotID, err)
		}
		return snap, err
	}

	snap, err := s.store.LoadLatestSnapshot(ctx, job.SessionID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to load latest snapshot for session %d: %w", job.SessionID, err)
	}
	return snap, err
}

// compiledRule compiles a tag's rule JSON, going through the shared cache
// when available. Cache keys carry the rule-set version, so a version bump
// naturally invalidates stale entries.
func (s *Service) compiledRule(tag store.TagDefinition, ruleSetVersion int) (*ruleengine.Rule, error) {
	if s.rules == nil {
		return ruleengine.Compile(tag.Rule)
	}

	key := s.rules.Key(tag.ID, ruleSetVersion)
	if rule, ok := s.rules.Get(key); ok {
		return rule, nil
	}

	rule, err := ruleengine.Compile(tag.Rule)
	if err != nil {
		return nil, err
	}
	s.rules.Set(key, rule)
	return rule, nil
}

// reserveDedupe claims the write slot for alert/snapshot jobs. Heartbeat
// jobs are exempt: they intentionally re-evaluate the same snapshot so that
// decay can move the session state over time. A deduper failure fails open;
// a duplicate row is the cheaper mistake than a dropped evaluation.
//
// The returned key is non-empty only when a reservation was actually taken;
// the caller must release it if the reserved write does not commit.
func (s *Service) reserveDedupe(ctx context.Context, log *slog.Logger, job queue.Job, detail *store.SessionDetail, snapshot *store.Snapshot) (proceed bool, reservedKey string, outcome Outcome) {
	if s.dedupe == nil || s.dedupeTTL <= 0 || job.Trigger == queue.TriggerHeartbeat {
		return true, "", ""
	}

	key := fmt.Sprintf("%d:%d:%d", detail.Session.ID, snapshot.ID, detail.RuleSet.Version)
	won, err := s.dedupe.Reserve(ctx, key, s.dedupeTTL)
	if err != nil {
		log.Warn("dedupe reservation failed, proceeding without it", slog.String("error", err.Error()))
		return true, "", ""
	}
	if !won {
		log.Info("duplicate delivery detected, skipping writes", slog.Int64("snapshot_id", snapshot.ID))
		return false, "", OutcomeDuplicate
	}
	return true, key, ""
}
