package ruleengine

// candlesSinceCrossPath is the decay input pinned to the features namespace.
const candlesSinceCrossPath = "meta.candlesSinceCross"

// ComputeScore maps a satisfaction verdict to a score in [0,1].
// Unsatisfied rules score 0. Satisfied rules start at the configured base
// (default 1) and, when decay is configured and the candle counter resolves,
// lose decay*candles linearly. The result is always clamped to [0,1].
func ComputeScore(spec ScoreSpec, satisfied bool, in EvaluationInput) float64 {
	if !satisfied {
		return 0
	}

	score := 1.0
	if spec.Base != nil {
		score = *spec.Base
	}

	if spec.DecayPerCandleSinceCross != nil {
		if candles, ok := in.resolveFeaturePath(candlesSinceCrossPath); ok {
			score -= *spec.DecayPerCandleSinceCross * candles
		}
	}

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
