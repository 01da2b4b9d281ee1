// Package store provides the Data Access Layer for skuld. It implements the
// persistence gateway consumed by the evaluation job handler on top of
// PostgreSQL using the pgx driver.
package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rafaeljc/skuld/internal/ruleengine"
)

// Severity categorizes a tag and drives session-state derivation.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeveritySetup Severity = "SETUP"
	SeverityEntry Severity = "ENTRY"
	SeverityExit  Severity = "EXIT"
)

// SessionState is the derived overall phase of a watch session.
type SessionState string

const (
	StateScanning     SessionState = "SCANNING"
	StateSetupForming SessionState = "SETUP_FORMING"
	StateReady        SessionState = "READY"
	StateManage       SessionState = "MANAGE"
)

// RuleSet is a named, versioned collection of tag definitions with default
// classification thresholds. It is authored elsewhere and read-only here.
type RuleSet struct {
	ID       int64
	Owner    string
	Name     string
	Version  int
	Defaults ThresholdDefaults
	Tags     []TagDefinition
}

// ThresholdDefaults mirrors the rule-set's jsonb defaults column.
type ThresholdDefaults struct {
	GreenGte    *float64    `json:"greenGte"`
	YellowRange *[2]float64 `json:"yellowRange"`
}

// Thresholds layers the rule-set defaults over the global fallbacks.
// Per-tag traffic overrides are merged on top by the evaluator.
func (d ThresholdDefaults) Thresholds() ruleengine.Thresholds {
	t := ruleengine.DefaultThresholds
	if d.GreenGte != nil {
		t.GreenGte = *d.GreenGte
	}
	if d.YellowRange != nil {
		t.YellowLo = d.YellowRange[0]
		t.YellowHi = d.YellowRange[1]
	}
	return t
}

// TagDefinition is one named signal within a rule set. Rule holds the raw
// condition/score/traffic JSON; it is compiled per job by the evaluator so a
// malformed tag can be skipped individually.
type TagDefinition struct {
	ID        int64
	RuleSetID int64
	TagKey    string
	Name      string
	Severity  Severity
	Rule      json.RawMessage
	Position  int
}

// Session is a watch over one symbol/timeframe against one rule set. State
// is mutated only by the job handler, always overwritten with the freshly
// derived value.
type Session struct {
	ID              int64
	RuleSetID       int64
	Symbol          string
	Timeframe       string
	State           SessionState
	LastEvaluatedAt *time.Time
	CreatedAt       time.Time
}

// SessionDetail is a session loaded together with its rule set and tags.
type SessionDetail struct {
	Session Session
	RuleSet RuleSet
}

// Snapshot is an immutable capture of market feature data for a session.
type Snapshot struct {
	ID         int64
	SessionID  int64
	CapturedAt time.Time
	Features   map[string]any
	Payload    map[string]any
}

// Evaluation is the computed outcome of one tag against one snapshot.
// Rows are created by the job handler and never mutated.
type Evaluation struct {
	ID         uuid.UUID
	SessionID  int64
	SnapshotID int64
	TagID      int64
	Status     ruleengine.Status
	Score      float64
	Context    map[string]any
	CreatedAt  time.Time
}

// Advice is the human-readable explanation attached to one evaluation,
// including the per-tag session state at creation time.
type Advice struct {
	ID           uuid.UUID
	EvaluationID uuid.UUID
	SessionState SessionState
	Headline     string
	Body         string
	CreatedAt    time.Time
}
