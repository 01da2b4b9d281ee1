package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rafaeljc/skuld/internal/ruleengine"
	"github.com/rafaeljc/skuld/internal/store"
)

func result(severity store.Severity, status ruleengine.Status) TagResult {
	return TagResult{
		Tag:    store.TagDefinition{Name: "Test Tag", Severity: severity},
		Status: status,
	}
}

func TestDeriveSessionState(t *testing.T) {
	tests := []struct {
		name     string
		results  []TagResult
		expected store.SessionState
	}{
		{
			name:     "Should be READY when an ENTRY tag is GREEN",
			results:  []TagResult{result(store.SeverityEntry, ruleengine.StatusGreen)},
			expected: store.StateReady,
		},
		{
			name:     "Should be READY when a SETUP tag is GREEN",
			results:  []TagResult{result(store.SeveritySetup, ruleengine.StatusGreen)},
			expected: store.StateReady,
		},
		{
			name: "Should not be READY when only non-actionable tags are GREEN",
			results: []TagResult{
				result(store.SeverityInfo, ruleengine.StatusGreen),
				result(store.SeverityExit, ruleengine.StatusGreen),
			},
			expected: store.StateScanning,
		},
		{
			name: "Should be SETUP_FORMING when any tag is YELLOW and none actionable is GREEN",
			results: []TagResult{
				result(store.SeverityEntry, ruleengine.StatusRed),
				result(store.SeverityInfo, ruleengine.StatusYellow),
			},
			expected: store.StateSetupForming,
		},
		{
			name: "Should prefer READY over SETUP_FORMING",
			results: []TagResult{
				result(store.SeverityInfo, ruleengine.StatusYellow),
				result(store.SeverityEntry, ruleengine.StatusGreen),
			},
			expected: store.StateReady,
		},
		{
			name:     "Should be SCANNING when every tag is RED",
			results:  []TagResult{result(store.SeverityEntry, ruleengine.StatusRed)},
			expected: store.StateScanning,
		},
		{
			name:     "Should be SCANNING for an empty batch",
			results:  nil,
			expected: store.StateScanning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveSessionState(tt.results))
		})
	}
}

func TestAdviceState(t *testing.T) {
	tests := []struct {
		name     string
		result   TagResult
		expected store.SessionState
	}{
		{
			name:     "Should be READY for a GREEN ENTRY tag",
			result:   result(store.SeverityEntry, ruleengine.StatusGreen),
			expected: store.StateReady,
		},
		{
			name:     "Should be MANAGE for a GREEN EXIT tag",
			result:   result(store.SeverityExit, ruleengine.StatusGreen),
			expected: store.StateManage,
		},
		{
			name:     "Should be MANAGE for a GREEN INFO tag",
			result:   result(store.SeverityInfo, ruleengine.StatusGreen),
			expected: store.StateManage,
		},
		{
			name:     "Should be SETUP_FORMING for a YELLOW tag",
			result:   result(store.SeverityEntry, ruleengine.StatusYellow),
			expected: store.StateSetupForming,
		},
		{
			name:     "Should be SCANNING for a RED tag",
			result:   result(store.SeverityEntry, ruleengine.StatusRed),
			expected: store.StateScanning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AdviceState(tt.result))
		})
	}
}

func TestBuildAdviceText(t *testing.T) {
	t.Run("Should describe a satisfied result with its score", func(t *testing.T) {
		r := TagResult{
			Tag:       store.TagDefinition{Name: "EMA Crossover"},
			Satisfied: true,
			Score:     0.85,
			Status:    ruleengine.StatusGreen,
		}

		headline, body := BuildAdviceText(r)

		assert.Equal(t, "EMA Crossover → GREEN", headline)
		assert.Equal(t, "Signal conditions met with score 0.85.", body)
	})

	t.Run("Should describe an unsatisfied result without a score", func(t *testing.T) {
		r := TagResult{
			Tag:    store.TagDefinition{Name: "EMA Crossover"},
			Status: ruleengine.StatusRed,
		}

		headline, body := BuildAdviceText(r)

		assert.Equal(t, "EMA Crossover → RED", headline)
		assert.Equal(t, "Signal conditions not met yet.", body)
	})
}
