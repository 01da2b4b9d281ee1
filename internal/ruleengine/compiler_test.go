package ruleengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	t.Run("Should compile the full wire format", func(t *testing.T) {
		raw := []byte(`{
			"when": {"any_of": [
				{"cross": {"a": "EMA(9)", "b": "EMA(20)", "direction": "up", "lookback_candles": 3}},
				{"compare": {"left": "price", "op": ">", "right": {"value": 100}}}
			]},
			"score": {"base": 0.9, "decay_per_candle_since_cross": 0.05},
			"traffic": {"green_if_score_gte": 0.8, "yellow_if_score_between": [0.5, 0.8]}
		}`)

		rule, err := Compile(raw)
		require.NoError(t, err)

		require.Len(t, rule.When.AnyOf, 2)
		cross := rule.When.AnyOf[0].Cross
		require.NotNil(t, cross)
		assert.Equal(t, "EMA(9)", cross.A)
		assert.Equal(t, DirectionUp, cross.Direction)
		assert.Equal(t, 3, cross.LookbackCandles)

		cmp := rule.When.AnyOf[1].Compare
		require.NotNil(t, cmp)
		assert.Equal(t, PathRef("price"), cmp.Left)
		assert.Equal(t, LiteralRef(100), cmp.Right)

		require.NotNil(t, rule.Score.Base)
		assert.Equal(t, 0.9, *rule.Score.Base)
		require.NotNil(t, rule.Traffic.YellowBetween)
		assert.Equal(t, [2]float64{0.5, 0.8}, *rule.Traffic.YellowBetween)
	})

	t.Run("Should compile an unconditioned rule to a vacuous group", func(t *testing.T) {
		rule, err := Compile([]byte(`{"score": {"base": 1}}`))
		require.NoError(t, err)

		assert.Empty(t, rule.When.AllOf)
		assert.Empty(t, rule.When.AnyOf)
		assert.True(t, EvaluateGroup(rule.When, EvaluationInput{}))
	})

	t.Run("Should compile nested higher timeframe confirmations", func(t *testing.T) {
		raw := []byte(`{
			"when": {"all_of": [
				{"higher_tf_confirms": {"timeframe": "1h", "condition":
					{"compare": {"left": "meta.trendSlope", "op": ">", "right": 0}}
				}}
			]}
		}`)

		rule, err := Compile(raw)
		require.NoError(t, err)

		htf := rule.When.AllOf[0].HigherTFConfirms
		require.NotNil(t, htf)
		assert.Equal(t, "1h", htf.Timeframe)
		require.NotNil(t, htf.Condition)
		assert.NotNil(t, htf.Condition.Compare)
	})

	t.Run("Should keep an explicit zero touch tolerance distinct from absent", func(t *testing.T) {
		rule, err := Compile([]byte(`{"when": {"all_of": [
			{"touch": {"series": "price.close", "band": "levels.vwap", "tolerance_pct": 0}},
			{"touch": {"series": "price.close", "band": "levels.vwap"}}
		]}}`))
		require.NoError(t, err)

		exact := rule.When.AllOf[0].Touch
		require.NotNil(t, exact.TolerancePct)
		assert.Zero(t, *exact.TolerancePct)

		defaulted := rule.When.AllOf[1].Touch
		assert.Nil(t, defaulted.TolerancePct)
	})

	t.Run("Should default a missing cross direction to any", func(t *testing.T) {
		rule, err := Compile([]byte(`{"when": {"all_of": [{"cross": {"a": "x", "b": "y"}}]}}`))
		require.NoError(t, err)

		assert.Equal(t, DirectionAny, rule.When.AllOf[0].Cross.Direction)
	})

	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "Should reject invalid JSON",
			raw:  `{"when": `,
		},
		{
			name: "Should reject an empty rule document",
			raw:  `   `,
		},
		{
			name: "Should reject a condition with no kind",
			raw:  `{"when": {"all_of": [{}]}}`,
		},
		{
			name: "Should reject a condition with two kinds",
			raw: `{"when": {"all_of": [{
				"compare": {"left": 1, "op": ">", "right": 0},
				"touch": {"series": 1, "band": 1}
			}]}}`,
		},
		{
			name: "Should reject a group with both combinators",
			raw: `{"when": {
				"all_of": [{"market_open_within_min": {"minutes": 5}}],
				"any_of": [{"market_open_within_min": {"minutes": 5}}]
			}}`,
		},
		{
			name: "Should reject a cross without both series",
			raw:  `{"when": {"all_of": [{"cross": {"a": "EMA(9)"}}]}}`,
		},
		{
			name: "Should reject an unknown cross direction",
			raw:  `{"when": {"all_of": [{"cross": {"a": "x", "b": "y", "direction": "sideways"}}]}}`,
		},
		{
			name: "Should reject a compare without operands",
			raw:  `{"when": {"all_of": [{"compare": {"op": ">"}}]}}`,
		},
		{
			name: "Should reject an operand with both value and path",
			raw:  `{"when": {"all_of": [{"compare": {"left": {"value": 1, "path": "x"}, "op": ">", "right": 0}}]}}`,
		},
		{
			name: "Should reject a malformed yellow band",
			raw:  `{"traffic": {"yellow_if_score_between": [0.5]}}`,
		},
		{
			name: "Should reject an inverted yellow band",
			raw:  `{"traffic": {"yellow_if_score_between": [0.8, 0.5]}}`,
		},
		{
			name: "Should reject a negative touch tolerance",
			raw:  `{"when": {"all_of": [{"touch": {"series": 1, "band": 1, "tolerance_pct": -1}}]}}`,
		},
		{
			name: "Should reject a higher timeframe confirm without a condition",
			raw:  `{"when": {"all_of": [{"higher_tf_confirms": {"timeframe": "1h"}}]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestCompileValueRefForms(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ValueRef
	}{
		{
			name: "Should accept a bare number",
			raw:  `42.5`,
			want: LiteralRef(42.5),
		},
		{
			name: "Should accept a dotted path string",
			raw:  `"meta.candlesSinceCross"`,
			want: PathRef("meta.candlesSinceCross"),
		},
		{
			name: "Should accept a value object",
			raw:  `{"value": -3}`,
			want: LiteralRef(-3),
		},
		{
			name: "Should accept a path object",
			raw:  `{"path": "alert.trigger_price"}`,
			want: PathRef("alert.trigger_price"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := compileValueRef([]byte(tt.raw))

			require.NoError(t, err)
			if tt.want.Literal != nil {
				require.NotNil(t, got.Literal)
				assert.Equal(t, *tt.want.Literal, *got.Literal)
			} else {
				assert.Equal(t, tt.want.Path, got.Path)
			}
		})
	}
}
