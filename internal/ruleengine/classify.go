package ruleengine

// Thresholds are the fully-merged classification boundaries for one tag.
type Thresholds struct {
	// GreenGte is the minimum satisfied score classified GREEN.
	GreenGte float64

	// YellowLo and YellowHi bound the half-open YELLOW band [lo, hi).
	YellowLo float64
	YellowHi float64
}

// DefaultThresholds are the global fallbacks applied when neither the
// rule-set nor the tag overrides a boundary.
var DefaultThresholds = Thresholds{
	GreenGte: 0.85,
	YellowLo: 0.60,
	YellowHi: 0.85,
}

// MergeThresholds layers a tag's traffic overrides over base thresholds
// (typically the rule-set defaults merged over DefaultThresholds).
func MergeThresholds(base Thresholds, traffic TrafficSpec) Thresholds {
	merged := base
	if traffic.GreenGte != nil {
		merged.GreenGte = *traffic.GreenGte
	}
	if traffic.YellowBetween != nil {
		merged.YellowLo = traffic.YellowBetween[0]
		merged.YellowHi = traffic.YellowBetween[1]
	}
	return merged
}

// Classify maps (score, satisfied, thresholds) to a status. Status is a pure
// function of these inputs and is never stored independently of them.
// Unsatisfied evaluations and any satisfied score below the yellow band are
// RED.
func Classify(score float64, satisfied bool, t Thresholds) Status {
	if satisfied && score >= t.GreenGte {
		return StatusGreen
	}
	if satisfied && score >= t.YellowLo && score < t.YellowHi {
		return StatusYellow
	}
	return StatusRed
}
