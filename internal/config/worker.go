package config

import (
	"fmt"
	"time"
)

// WorkerConfig contains configuration for the evaluation worker pool and
// the queue's retry policy.
type WorkerConfig struct {
	// Concurrency is the number of jobs processed in parallel. Jobs for the
	// same session are not serialized; see the evaluator docs.
	Concurrency int `envconfig:"CONCURRENCY" default:"4" validate:"min=1"`

	// PopTimeout bounds each blocking dequeue so workers notice shutdown.
	PopTimeout time.Duration `envconfig:"POP_TIMEOUT" default:"5s" validate:"gt=0"`

	// MaxAttempts is the total delivery attempts before a job is moved to
	// the dead-letter list for manual inspection.
	MaxAttempts int `envconfig:"MAX_ATTEMPTS" default:"5" validate:"min=1"`

	// BaseRetryDelay seeds the exponential backoff between attempts.
	BaseRetryDelay time.Duration `envconfig:"BASE_RETRY_DELAY" default:"2s" validate:"gt=0"`

	// MaxRetryDelay caps the exponential backoff.
	MaxRetryDelay time.Duration `envconfig:"MAX_RETRY_DELAY" default:"5m" validate:"gt=0"`

	// PromoteInterval is how often delayed (retrying) jobs are checked for
	// promotion back onto the ready queue.
	PromoteInterval time.Duration `envconfig:"PROMOTE_INTERVAL" default:"1s" validate:"gt=0"`

	// DedupeTTL is how long a (session, snapshot, rule-set version) dedupe
	// reservation suppresses redeliveries. Zero disables deduplication.
	DedupeTTL time.Duration `envconfig:"DEDUPE_TTL" default:"10m" validate:"min=0"`
}

// Validate checks cross-field constraints the struct tags cannot express.
func (c *WorkerConfig) Validate() error {
	if c.BaseRetryDelay > c.MaxRetryDelay {
		return fmt.Errorf("worker base_retry_delay (%s) cannot exceed max_retry_delay (%s)",
			c.BaseRetryDelay, c.MaxRetryDelay)
	}
	return nil
}
