package ruleengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }

func TestComputeScore(t *testing.T) {
	withCandles := func(n float64) EvaluationInput {
		return EvaluationInput{Features: map[string]any{
			"meta": map[string]any{"candlesSinceCross": n},
		}}
	}

	tests := []struct {
		name      string
		spec      ScoreSpec
		satisfied bool
		in        EvaluationInput
		want      float64
	}{
		{
			name:      "Should score zero when unsatisfied",
			spec:      ScoreSpec{Base: floatPtr(0.9)},
			satisfied: false,
			want:      0,
		},
		{
			name:      "Should default the base to one",
			spec:      ScoreSpec{},
			satisfied: true,
			want:      1,
		},
		{
			name:      "Should start from an explicit base",
			spec:      ScoreSpec{Base: floatPtr(0.7)},
			satisfied: true,
			want:      0.7,
		},
		{
			name:      "Should decay linearly per candle since cross",
			spec:      ScoreSpec{Base: floatPtr(1), DecayPerCandleSinceCross: floatPtr(0.1)},
			satisfied: true,
			in:        withCandles(3),
			want:      0.7,
		},
		{
			name:      "Should clamp a fully decayed score at zero",
			spec:      ScoreSpec{DecayPerCandleSinceCross: floatPtr(0.2)},
			satisfied: true,
			in:        withCandles(50),
			want:      0,
		},
		{
			name:      "Should clamp an oversized base at one",
			spec:      ScoreSpec{Base: floatPtr(1.4)},
			satisfied: true,
			want:      1,
		},
		{
			name:      "Should clamp a negative decay pushing the score above one",
			spec:      ScoreSpec{Base: floatPtr(0.9), DecayPerCandleSinceCross: floatPtr(-0.5)},
			satisfied: true,
			in:        withCandles(4),
			want:      1,
		},
		{
			name:      "Should skip decay when the candle counter is unresolved",
			spec:      ScoreSpec{Base: floatPtr(0.8), DecayPerCandleSinceCross: floatPtr(0.1)},
			satisfied: true,
			in:        EvaluationInput{Features: map[string]any{}},
			want:      0.8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeScore(tt.spec, tt.satisfied, tt.in)

			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}
