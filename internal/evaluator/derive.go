// Package evaluator orchestrates one evaluation job: it loads the session,
// rule set and snapshot, runs every tag's compiled rule through the rule
// engine, derives the session state and commits the whole batch atomically.
package evaluator

import (
	"fmt"

	"github.com/rafaeljc/skuld/internal/ruleengine"
	"github.com/rafaeljc/skuld/internal/store"
)

// TagResult is the computed outcome of one tag against the snapshot.
type TagResult struct {
	Tag       store.TagDefinition
	Satisfied bool
	Score     float64
	Status    ruleengine.Status
}

// actionable reports whether a GREEN result on this tag's severity signals a
// tradeable setup rather than informational context.
func actionable(severity store.Severity) bool {
	return severity == store.SeverityEntry || severity == store.SeveritySetup
}

// DeriveSessionState rolls the batch of tag results up into one session
// state: READY iff any evaluation is GREEN on an ENTRY or SETUP tag, else
// SETUP_FORMING iff any evaluation is YELLOW, else SCANNING.
func DeriveSessionState(results []TagResult) store.SessionState {
	sawYellow := false
	for _, r := range results {
		switch r.Status {
		case ruleengine.StatusGreen:
			if actionable(r.Tag.Severity) {
				return store.StateReady
			}
		case ruleengine.StatusYellow:
			sawYellow = true
		}
	}
	if sawYellow {
		return store.StateSetupForming
	}
	return store.StateScanning
}

// AdviceState mirrors the rollup for a single tag, independent of the
// session-wide result: a GREEN on a non-actionable severity reads as MANAGE
// rather than READY.
func AdviceState(r TagResult) store.SessionState {
	switch r.Status {
	case ruleengine.StatusGreen:
		if actionable(r.Tag.Severity) {
			return store.StateReady
		}
		return store.StateManage
	case ruleengine.StatusYellow:
		return store.StateSetupForming
	default:
		return store.StateScanning
	}
}

// BuildAdviceText renders the headline and body for one tag result.
func BuildAdviceText(r TagResult) (headline, body string) {
	headline = fmt.Sprintf("%s → %s", r.Tag.Name, r.Status)
	if r.Satisfied {
		body = fmt.Sprintf("Signal conditions met with score %.2f.", r.Score)
	} else {
		body = "Signal conditions not met yet."
	}
	return headline, body
}
