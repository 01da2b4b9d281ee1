package ruleengine

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Wire shapes for the externally-authored rule JSON. They are decoded
// leniently and validated into the typed AST by the compile functions, so a
// single malformed tag is reported individually instead of aborting a batch.
type ruleDoc struct {
	When    *groupDoc   `json:"when"`
	Score   *scoreDoc   `json:"score"`
	Traffic *trafficDoc `json:"traffic"`
}

type groupDoc struct {
	AllOf []conditionDoc `json:"all_of"`
	AnyOf []conditionDoc `json:"any_of"`
}

type conditionDoc struct {
	Compare             *compareDoc    `json:"compare"`
	Touch               *touchDoc      `json:"touch"`
	Cross               *crossDoc      `json:"cross"`
	MarketOpenWithinMin *marketOpenDoc `json:"market_open_within_min"`
	HigherTFConfirms    *higherTFDoc   `json:"higher_tf_confirms"`
}

type compareDoc struct {
	Left  json.RawMessage `json:"left"`
	Op    string          `json:"op"`
	Right json.RawMessage `json:"right"`
}

type touchDoc struct {
	Series       json.RawMessage `json:"series"`
	Band         json.RawMessage `json:"band"`
	TolerancePct *float64        `json:"tolerance_pct"`
}

type crossDoc struct {
	A               string `json:"a"`
	B               string `json:"b"`
	Direction       string `json:"direction"`
	LookbackCandles int    `json:"lookback_candles"`
}

type marketOpenDoc struct {
	Minutes float64 `json:"minutes"`
}

type higherTFDoc struct {
	Timeframe string        `json:"timeframe"`
	Condition *conditionDoc `json:"condition"`
}

type scoreDoc struct {
	Base                     *float64 `json:"base"`
	DecayPerCandleSinceCross *float64 `json:"decay_per_candle_since_cross"`
}

type trafficDoc struct {
	GreenGte      *float64  `json:"green_if_score_gte"`
	YellowBetween []float64 `json:"yellow_if_score_between"`
}

// Compile parses and validates one tag's rule JSON into its evaluable AST.
// A nil error guarantees the returned rule dispatches cleanly: every
// condition carries exactly one variant and every operand reference has a
// recognized shape.
func Compile(raw []byte) (*Rule, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("rule is empty")
	}

	var doc ruleDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid rule JSON: %w", err)
	}

	rule := &Rule{}

	if doc.When != nil {
		group, err := compileGroup(doc.When)
		if err != nil {
			return nil, err
		}
		rule.When = group
	}

	if doc.Score != nil {
		rule.Score = ScoreSpec{
			Base:                     doc.Score.Base,
			DecayPerCandleSinceCross: doc.Score.DecayPerCandleSinceCross,
		}
	}

	if doc.Traffic != nil {
		traffic, err := compileTraffic(doc.Traffic)
		if err != nil {
			return nil, err
		}
		rule.Traffic = traffic
	}

	return rule, nil
}

func compileGroup(doc *groupDoc) (ConditionGroup, error) {
	if len(doc.AllOf) > 0 && len(doc.AnyOf) > 0 {
		return ConditionGroup{}, fmt.Errorf("condition group sets both all_of and any_of")
	}

	group := ConditionGroup{}
	for i, cd := range doc.AllOf {
		c, err := compileCondition(cd)
		if err != nil {
			return ConditionGroup{}, fmt.Errorf("all_of[%d]: %w", i, err)
		}
		group.AllOf = append(group.AllOf, c)
	}
	for i, cd := range doc.AnyOf {
		c, err := compileCondition(cd)
		if err != nil {
			return ConditionGroup{}, fmt.Errorf("any_of[%d]: %w", i, err)
		}
		group.AnyOf = append(group.AnyOf, c)
	}
	return group, nil
}

func compileCondition(doc conditionDoc) (Condition, error) {
	variants := 0
	for _, set := range []bool{
		doc.Compare != nil,
		doc.Touch != nil,
		doc.Cross != nil,
		doc.MarketOpenWithinMin != nil,
		doc.HigherTFConfirms != nil,
	} {
		if set {
			variants++
		}
	}
	if variants != 1 {
		return Condition{}, fmt.Errorf("condition must set exactly one kind, got %d", variants)
	}

	switch {
	case doc.Compare != nil:
		left, err := compileValueRef(doc.Compare.Left)
		if err != nil {
			return Condition{}, fmt.Errorf("compare.left: %w", err)
		}
		right, err := compileValueRef(doc.Compare.Right)
		if err != nil {
			return Condition{}, fmt.Errorf("compare.right: %w", err)
		}
		return Condition{Compare: &CompareCondition{
			Left:  left,
			Op:    doc.Compare.Op,
			Right: right,
		}}, nil

	case doc.Touch != nil:
		series, err := compileValueRef(doc.Touch.Series)
		if err != nil {
			return Condition{}, fmt.Errorf("touch.series: %w", err)
		}
		band, err := compileValueRef(doc.Touch.Band)
		if err != nil {
			return Condition{}, fmt.Errorf("touch.band: %w", err)
		}
		if doc.Touch.TolerancePct != nil && *doc.Touch.TolerancePct < 0 {
			return Condition{}, fmt.Errorf("touch.tolerance_pct cannot be negative, got %v", *doc.Touch.TolerancePct)
		}
		return Condition{Touch: &TouchCondition{
			Series:       series,
			Band:         band,
			TolerancePct: doc.Touch.TolerancePct,
		}}, nil

	case doc.Cross != nil:
		if doc.Cross.A == "" || doc.Cross.B == "" {
			return Condition{}, fmt.Errorf("cross requires both series names a and b")
		}
		direction, err := compileDirection(doc.Cross.Direction)
		if err != nil {
			return Condition{}, err
		}
		return Condition{Cross: &CrossCondition{
			A:               doc.Cross.A,
			B:               doc.Cross.B,
			Direction:       direction,
			LookbackCandles: doc.Cross.LookbackCandles,
		}}, nil

	case doc.MarketOpenWithinMin != nil:
		if doc.MarketOpenWithinMin.Minutes < 0 {
			return Condition{}, fmt.Errorf("market_open_within_min.minutes cannot be negative")
		}
		return Condition{MarketOpenWithinMin: &MarketOpenCondition{
			Minutes: doc.MarketOpenWithinMin.Minutes,
		}}, nil

	default:
		if doc.HigherTFConfirms.Timeframe == "" {
			return Condition{}, fmt.Errorf("higher_tf_confirms requires a timeframe")
		}
		if doc.HigherTFConfirms.Condition == nil {
			return Condition{}, fmt.Errorf("higher_tf_confirms requires a nested condition")
		}
		nested, err := compileCondition(*doc.HigherTFConfirms.Condition)
		if err != nil {
			return Condition{}, fmt.Errorf("higher_tf_confirms.condition: %w", err)
		}
		return Condition{HigherTFConfirms: &HigherTFCondition{
			Timeframe: doc.HigherTFConfirms.Timeframe,
			Condition: &nested,
		}}, nil
	}
}

func compileDirection(raw string) (Direction, error) {
	switch Direction(raw) {
	case DirectionUp, DirectionDown, DirectionAny:
		return Direction(raw), nil
	case "":
		return DirectionAny, nil
	default:
		return "", fmt.Errorf("unknown cross direction %q", raw)
	}
}

func compileTraffic(doc *trafficDoc) (TrafficSpec, error) {
	traffic := TrafficSpec{GreenGte: doc.GreenGte}

	if doc.YellowBetween != nil {
		if len(doc.YellowBetween) != 2 {
			return TrafficSpec{}, fmt.Errorf("yellow_if_score_between must hold exactly [lo, hi], got %d values", len(doc.YellowBetween))
		}
		if doc.YellowBetween[0] > doc.YellowBetween[1] {
			return TrafficSpec{}, fmt.Errorf("yellow_if_score_between lo %v exceeds hi %v", doc.YellowBetween[0], doc.YellowBetween[1])
		}
		band := [2]float64{doc.YellowBetween[0], doc.YellowBetween[1]}
		traffic.YellowBetween = &band
	}
	return traffic, nil
}

// compileValueRef accepts the three operand wire forms: a bare number, a
// dotted path string, or an object carrying {"value": n} or {"path": "..."}.
func compileValueRef(raw json.RawMessage) (ValueRef, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ValueRef{}, fmt.Errorf("operand is missing")
	}

	var literal float64
	if err := json.Unmarshal(trimmed, &literal); err == nil {
		return LiteralRef(literal), nil
	}

	var path string
	if err := json.Unmarshal(trimmed, &path); err == nil {
		if path == "" {
			return ValueRef{}, fmt.Errorf("operand path is empty")
		}
		return PathRef(path), nil
	}

	var obj struct {
		Value *float64 `json:"value"`
		Path  *string  `json:"path"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return ValueRef{}, fmt.Errorf("unrecognized operand shape: %w", err)
	}
	switch {
	case obj.Value != nil && obj.Path != nil:
		return ValueRef{}, fmt.Errorf("operand sets both value and path")
	case obj.Value != nil:
		return LiteralRef(*obj.Value), nil
	case obj.Path != nil && *obj.Path != "":
		return PathRef(*obj.Path), nil
	default:
		return ValueRef{}, fmt.Errorf("operand object needs value or path")
	}
}
