package classify

import "math"

// FindOptimalThreshold enumerates every unique score in predictions and
// returns the one maximizing query.Objective (spec §4.I). FixedRecall
// and FixedPrecision maximize the complementary metric subject to the
// named floor on query.Target; MinCost minimizes query.FPCost*FP +
// query.FNCost*FN.
func FindOptimalThreshold(predictions []Prediction, query ThresholdQuery) ThresholdResult {
	if len(predictions) == 0 {
		return ThresholdResult{}
	}

	thresholds := uniqueThresholds(predictions)

	var best ThresholdResult
	bestScore := math.Inf(-1)
	found := false

	for _, th := range thresholds {
		cm := ConfusionMatrixAt(predictions, th, true)
		m := MetricsFromCM(cm)

		var score float64
		ok := true

		switch query.Objective {
		case MaxF1:
			score = m.F1
		case MaxYouden:
			score = m.Recall - (1 - m.Specificity)
		case MaxMCC:
			score = m.MCC
		case MaxBalancedAccuracy:
			score = m.BalancedAccuracy
		case FixedRecall:
			if m.Recall < query.Target {
				ok = false
			}
			score = m.Precision
		case FixedPrecision:
			if m.Precision < query.Target {
				ok = false
			}
			score = m.Recall
		case MinCost:
			cost := query.FPCost*float64(cm.FP) + query.FNCost*float64(cm.FN)
			score = -cost
		}

		if !ok {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = ThresholdResult{Threshold: th, Metrics: m, Score: score}
			found = true
		}
	}

	if !found {
		return ThresholdResult{}
	}
	if query.Objective == MinCost {
		best.Score = -best.Score
	}
	return best
}
