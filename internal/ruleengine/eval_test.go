package ruleengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateGroup_Combinators(t *testing.T) {
	in := testInput()
	alwaysTrue := Condition{Compare: &CompareCondition{Left: LiteralRef(1), Op: ">", Right: LiteralRef(0)}}
	alwaysFalse := Condition{Compare: &CompareCondition{Left: LiteralRef(0), Op: ">", Right: LiteralRef(1)}}

	tests := []struct {
		name  string
		group ConditionGroup
		want  bool
	}{
		{
			name:  "Should be vacuously true with no combinator",
			group: ConditionGroup{},
			want:  true,
		},
		{
			name:  "Should AND all_of children",
			group: ConditionGroup{AllOf: []Condition{alwaysTrue, alwaysFalse}},
			want:  false,
		},
		{
			name:  "Should pass all_of when every child holds",
			group: ConditionGroup{AllOf: []Condition{alwaysTrue, alwaysTrue}},
			want:  true,
		},
		{
			name:  "Should OR any_of children",
			group: ConditionGroup{AnyOf: []Condition{alwaysFalse, alwaysTrue}},
			want:  true,
		},
		{
			name:  "Should fail any_of when no child holds",
			group: ConditionGroup{AnyOf: []Condition{alwaysFalse, alwaysFalse}},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateGroup(tt.group, in))
		})
	}
}

func TestEvalCompare(t *testing.T) {
	tests := []struct {
		name string
		cond CompareCondition
		want bool
	}{
		{
			name: "Should compare path against literal",
			cond: CompareCondition{Left: PathRef("price"), Op: ">", Right: LiteralRef(100)},
			want: true,
		},
		{
			name: "Should support all remaining operators",
			cond: CompareCondition{Left: LiteralRef(5), Op: "<=", Right: LiteralRef(5)},
			want: true,
		},
		{
			name: "Should be false when the left operand is unresolved",
			cond: CompareCondition{Left: PathRef("missing.key"), Op: ">", Right: LiteralRef(0)},
			want: false,
		},
		{
			name: "Should be false when the right operand is unresolved",
			cond: CompareCondition{Left: LiteralRef(1), Op: ">", Right: PathRef("missing.key")},
			want: false,
		},
		{
			name: "Should be false for an unknown operator",
			cond: CompareCondition{Left: LiteralRef(2), Op: "~=", Right: LiteralRef(2)},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateCondition(Condition{Compare: &tt.cond}, testInput())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalTouch(t *testing.T) {
	tests := []struct {
		name string
		cond TouchCondition
		want bool
	}{
		{
			name: "Should be true inside the default one percent tolerance",
			cond: TouchCondition{Series: LiteralRef(100.5), Band: LiteralRef(100)},
			want: true,
		},
		{
			name: "Should be false outside the default tolerance",
			cond: TouchCondition{Series: LiteralRef(102), Band: LiteralRef(100)},
			want: false,
		},
		{
			name: "Should honor a custom tolerance",
			cond: TouchCondition{Series: LiteralRef(104), Band: LiteralRef(100), TolerancePct: floatPtr(5)},
			want: true,
		},
		{
			name: "Should demand an exact touch with an explicit zero tolerance",
			cond: TouchCondition{Series: LiteralRef(100.5), Band: LiteralRef(100), TolerancePct: floatPtr(0)},
			want: false,
		},
		{
			name: "Should match an exact touch with an explicit zero tolerance",
			cond: TouchCondition{Series: LiteralRef(100), Band: LiteralRef(100), TolerancePct: floatPtr(0)},
			want: true,
		},
		{
			name: "Should survive a zero band without dividing by zero",
			cond: TouchCondition{Series: LiteralRef(0.5), Band: LiteralRef(0)},
			want: false,
		},
		{
			name: "Should touch a zero band exactly",
			cond: TouchCondition{Series: LiteralRef(0), Band: LiteralRef(0)},
			want: true,
		},
		{
			name: "Should be false when the series value is unresolved",
			cond: TouchCondition{Series: PathRef("missing"), Band: LiteralRef(100)},
			want: false,
		},
		{
			name: "Should be false when the band value is unresolved",
			cond: TouchCondition{Series: LiteralRef(100), Band: PathRef("missing")},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateCondition(Condition{Touch: &tt.cond}, testInput())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalCross(t *testing.T) {
	tests := []struct {
		name string
		cond CrossCondition
		want bool
	}{
		{
			// The EMA(9)/EMA(20) fixture crosses up one step back.
			name: "Should detect a recent upward crossing within the lookback",
			cond: CrossCondition{A: "EMA(9)", B: "EMA(20)", Direction: DirectionUp, LookbackCandles: 3},
			want: true,
		},
		{
			name: "Should not report the mirror direction",
			cond: CrossCondition{A: "EMA(9)", B: "EMA(20)", Direction: DirectionDown, LookbackCandles: 3},
			want: false,
		},
		{
			name: "Should see the same crossing as a downward cross of the swapped pair",
			cond: CrossCondition{A: "EMA(20)", B: "EMA(9)", Direction: DirectionDown, LookbackCandles: 3},
			want: true,
		},
		{
			name: "Should accept either direction for any",
			cond: CrossCondition{A: "EMA(9)", B: "EMA(20)", Direction: DirectionAny, LookbackCandles: 3},
			want: true,
		},
		{
			name: "Should miss a crossing outside the lookback window",
			cond: CrossCondition{A: "EMA(9)", B: "EMA(20)", Direction: DirectionUp, LookbackCandles: 1},
			want: false,
		},
		{
			name: "Should scan the whole overlap when lookback is unset",
			cond: CrossCondition{A: "EMA(9)", B: "EMA(20)", Direction: DirectionUp},
			want: true,
		},
		{
			name: "Should be false for a missing series",
			cond: CrossCondition{A: "EMA(9)", B: "VWAP", Direction: DirectionUp, LookbackCandles: 3},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateCondition(Condition{Cross: &tt.cond}, testInput())
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("Should require at least two points per series", func(t *testing.T) {
		in := EvaluationInput{Features: map[string]any{
			"series": map[string]any{
				"a": []any{1.0},
				"b": []any{2.0, 1.0},
			},
		}}
		cond := Condition{Cross: &CrossCondition{A: "a", B: "b", Direction: DirectionAny}}
		assert.False(t, EvaluateCondition(cond, in))
	})
}

func TestEvalMarketOpen(t *testing.T) {
	t.Run("Should be true within the window", func(t *testing.T) {
		cond := Condition{MarketOpenWithinMin: &MarketOpenCondition{Minutes: 15}}
		assert.True(t, EvaluateCondition(cond, testInput()))
	})

	t.Run("Should be false past the window", func(t *testing.T) {
		cond := Condition{MarketOpenWithinMin: &MarketOpenCondition{Minutes: 5}}
		assert.False(t, EvaluateCondition(cond, testInput()))
	})

	t.Run("Should be false when the meta counter is absent", func(t *testing.T) {
		cond := Condition{MarketOpenWithinMin: &MarketOpenCondition{Minutes: 15}}
		assert.False(t, EvaluateCondition(cond, EvaluationInput{Features: map[string]any{}}))
	})
}

func TestEvalHigherTF(t *testing.T) {
	in := EvaluationInput{
		Features: map[string]any{
			"price": 10.0,
			"higherTimeframes": map[string]any{
				"1h": map[string]any{
					"price": 20.0,
				},
			},
		},
	}
	priceAbove15 := Condition{Compare: &CompareCondition{
		Left: PathRef("price"), Op: ">", Right: LiteralRef(15),
	}}

	t.Run("Should evaluate the nested condition against the subtree", func(t *testing.T) {
		cond := Condition{HigherTFConfirms: &HigherTFCondition{Timeframe: "1h", Condition: &priceAbove15}}
		// 10 fails on the base timeframe but the 1h subtree holds 20.
		assert.False(t, EvaluateCondition(priceAbove15, in))
		assert.True(t, EvaluateCondition(cond, in))
	})

	t.Run("Should be false when the subtree is absent", func(t *testing.T) {
		cond := Condition{HigherTFConfirms: &HigherTFCondition{Timeframe: "4h", Condition: &priceAbove15}}
		assert.False(t, EvaluateCondition(cond, in))
	})

	t.Run("Should recurse into doubly nested confirmations", func(t *testing.T) {
		deep := EvaluationInput{Features: map[string]any{
			"higherTimeframes": map[string]any{
				"1h": map[string]any{
					"higherTimeframes": map[string]any{
						"4h": map[string]any{"price": 30.0},
					},
				},
			},
		}}
		inner := Condition{HigherTFConfirms: &HigherTFCondition{Timeframe: "4h", Condition: &priceAbove15}}
		outer := Condition{HigherTFConfirms: &HigherTFCondition{Timeframe: "1h", Condition: &inner}}
		assert.True(t, EvaluateCondition(outer, deep))
	})
}
