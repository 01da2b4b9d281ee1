// Package ruleengine implements the core rule interpreter: it compiles
// externally-authored rule JSON into a typed condition tree and evaluates it
// against a market feature snapshot, producing a satisfaction verdict, a
// bounded score and a three-way traffic status.
package ruleengine

// Status is the three-way classification of a single tag evaluation.
type Status string

const (
	StatusRed    Status = "RED"
	StatusYellow Status = "YELLOW"
	StatusGreen  Status = "GREEN"
)

// Direction filters which crossings satisfy a cross condition.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionAny  Direction = "any"
)

// Rule is the compiled, validated form of a tag's rule JSON.
// It is produced by Compile and is safe for concurrent evaluation.
type Rule struct {
	// When is the condition tree. A zero-value group is vacuously true,
	// so an unconditioned tag auto-satisfies.
	When ConditionGroup

	// Score configures how a satisfied verdict maps to a [0,1] score.
	Score ScoreSpec

	// Traffic holds the tag's optional per-tag threshold overrides.
	Traffic TrafficSpec
}

// ConditionGroup is a boolean combinator over child conditions.
// At most one of AllOf/AnyOf is populated after compilation.
type ConditionGroup struct {
	// AllOf is a logical AND; vacuously true when empty.
	AllOf []Condition

	// AnyOf is a logical OR; false when its list is empty.
	AnyOf []Condition
}

// Condition is a tagged union over the five supported condition kinds.
// Exactly one variant field is non-nil after compilation; the evaluator
// dispatches on which one is set. Adding a kind means adding a variant
// here, a branch in the compiler, and a branch in the evaluator.
type Condition struct {
	Compare             *CompareCondition
	Touch               *TouchCondition
	Cross               *CrossCondition
	MarketOpenWithinMin *MarketOpenCondition
	HigherTFConfirms    *HigherTFCondition
}

// CompareCondition applies a numeric comparison to two resolved operands.
// An unresolved operand or an unknown operator makes the condition false.
type CompareCondition struct {
	Left  ValueRef
	Op    string
	Right ValueRef
}

// TouchCondition is true when the resolved series value sits within a
// relative tolerance of the resolved band value.
type TouchCondition struct {
	Series ValueRef
	Band   ValueRef

	// TolerancePct is the allowed relative distance in percent (1 == 1%).
	// Nil means the default tolerance; an explicit 0 demands an exact touch.
	TolerancePct *float64
}

// CrossCondition detects a crossing between two named series within a
// lookback window of adjacent candle pairs, scanned most recent first.
type CrossCondition struct {
	A         string
	B         string
	Direction Direction

	// LookbackCandles bounds how many adjacent index pairs are scanned.
	// Zero or negative means the whole overlap of both series.
	LookbackCandles int
}

// MarketOpenCondition is true when the snapshot was captured within
// Minutes of the market open.
type MarketOpenCondition struct {
	Minutes float64
}

// HigherTFCondition re-evaluates a nested condition against a higher
// timeframe subtree of the features root.
type HigherTFCondition struct {
	Timeframe string
	Condition *Condition
}

// ScoreSpec configures the decaying score function for a satisfied rule.
type ScoreSpec struct {
	// Base is the starting score for a satisfied rule. Nil means 1.
	Base *float64

	// DecayPerCandleSinceCross, when set, reduces the score linearly by
	// features.meta.candlesSinceCross candles.
	DecayPerCandleSinceCross *float64
}

// TrafficSpec holds a tag's optional overrides for the status thresholds.
// Nil fields fall through to the rule-set defaults.
type TrafficSpec struct {
	GreenGte      *float64
	YellowBetween *[2]float64
}

// ValueRef is a compiled operand reference: either a numeric literal or a
// dotted path resolved against the snapshot at evaluation time.
// Exactly one of the two forms is populated.
type ValueRef struct {
	Literal *float64
	Path    string
}

// LiteralRef builds a literal-valued reference. Used by tests and by the
// compiler for the numeric and {value} wire forms.
func LiteralRef(v float64) ValueRef {
	return ValueRef{Literal: &v}
}

// PathRef builds a path-valued reference.
func PathRef(path string) ValueRef {
	return ValueRef{Path: path}
}
