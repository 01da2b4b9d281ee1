package ruleengine

import "math"

// touchEpsilon guards the relative-distance division when the band value
// resolves to zero.
const touchEpsilon = 1e-9

// defaultTolerancePct is the touch tolerance when the rule omits it (1%).
const defaultTolerancePct = 1.0

// EvaluateGroup interprets a condition group against the input.
// An AllOf group is a logical AND and is vacuously true when empty; an AnyOf
// group is a logical OR. A group with neither combinator is true, so an
// unconditioned tag auto-satisfies.
func EvaluateGroup(group ConditionGroup, in EvaluationInput) bool {
	switch {
	case len(group.AllOf) > 0:
		for _, c := range group.AllOf {
			if !EvaluateCondition(c, in) {
				return false
			}
		}
		return true
	case len(group.AnyOf) > 0:
		for _, c := range group.AnyOf {
			if EvaluateCondition(c, in) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// EvaluateCondition dispatches on the populated variant of the tagged union.
// Every failure mode inside a condition (unresolved operand, short series,
// unknown operator, missing subtree) evaluates to false rather than erroring.
func EvaluateCondition(c Condition, in EvaluationInput) bool {
	switch {
	case c.Compare != nil:
		return evalCompare(c.Compare, in)
	case c.Touch != nil:
		return evalTouch(c.Touch, in)
	case c.Cross != nil:
		return evalCross(c.Cross, in)
	case c.MarketOpenWithinMin != nil:
		return evalMarketOpen(c.MarketOpenWithinMin, in)
	case c.HigherTFConfirms != nil:
		return evalHigherTF(c.HigherTFConfirms, in)
	default:
		// Compile guarantees one variant; an empty condition matches nothing.
		return false
	}
}

func evalCompare(c *CompareCondition, in EvaluationInput) bool {
	left, ok := in.ResolveScalar(c.Left)
	if !ok {
		return false
	}
	right, ok := in.ResolveScalar(c.Right)
	if !ok {
		return false
	}

	switch c.Op {
	case ">":
		return left > right
	case ">=":
		return left >= right
	case "<":
		return left < right
	case "<=":
		return left <= right
	case "==":
		return left == right
	case "!=":
		return left != right
	default:
		return false
	}
}

func evalTouch(c *TouchCondition, in EvaluationInput) bool {
	series, ok := in.ResolveScalar(c.Series)
	if !ok {
		return false
	}
	band, ok := in.ResolveScalar(c.Band)
	if !ok {
		return false
	}

	tolerancePct := defaultTolerancePct
	if c.TolerancePct != nil {
		tolerancePct = *c.TolerancePct
	}

	distance := math.Abs(series-band) / math.Max(math.Abs(band), touchEpsilon)
	return distance <= tolerancePct/100
}

func evalCross(c *CrossCondition, in EvaluationInput) bool {
	a := in.ResolveSeries(c.A)
	b := in.ResolveSeries(c.B)
	if len(a) < 2 || len(b) < 2 {
		return false
	}

	// Scan adjacent index pairs most recent first, aligned on the shared
	// tail of both series.
	steps := min(len(a), len(b)) - 1
	if c.LookbackCandles > 0 && c.LookbackCandles < steps {
		steps = c.LookbackCandles
	}

	lastA, lastB := len(a)-1, len(b)-1
	for i := 0; i < steps; i++ {
		currA, prevA := a[lastA-i], a[lastA-i-1]
		currB, prevB := b[lastB-i], b[lastB-i-1]

		crossedUp := prevA < prevB && currA >= currB
		crossedDown := prevA > prevB && currA <= currB

		switch c.Direction {
		case DirectionUp:
			if crossedUp {
				return true
			}
		case DirectionDown:
			if crossedDown {
				return true
			}
		default: // DirectionAny and unset
			if crossedUp || crossedDown {
				return true
			}
		}
	}
	return false
}

func evalMarketOpen(c *MarketOpenCondition, in EvaluationInput) bool {
	minutes, ok := in.resolveFeaturePath("meta.minutesSinceMarketOpen")
	if !ok {
		return false
	}
	return minutes <= c.Minutes
}

func evalHigherTF(c *HigherTFCondition, in EvaluationInput) bool {
	if c.Condition == nil {
		return false
	}
	subtree, ok := in.HigherTimeframe(c.Timeframe)
	if !ok {
		return false
	}
	// The nested condition sees the higher-timeframe tree as its features
	// root; the payload root is unchanged.
	return EvaluateCondition(*c.Condition, EvaluationInput{
		Features: subtree,
		Payload:  in.Payload,
	})
}
