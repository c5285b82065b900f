package classify

import "sort"

// uniqueThresholds returns predictions' distinct scores descending,
// augmented with a max+eps and min-eps sentinel so the curve's first
// point is (0,0) and its last is (1,1) (spec §4.I).
func uniqueThresholds(predictions []Prediction) []float64 {
	seen := make(map[float64]struct{}, len(predictions))
	scores := make([]float64, 0, len(predictions))
	for _, p := range predictions {
		if _, ok := seen[p.Score]; ok {
			continue
		}
		seen[p.Score] = struct{}{}
		scores = append(scores, p.Score)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))

	const eps = 1e-9
	max, min := scores[0], scores[len(scores)-1]
	out := make([]float64, 0, len(scores)+2)
	out = append(out, max+eps)
	out = append(out, scores...)
	out = append(out, min-eps)
	return out
}

// ROCCurve computes the ROC curve, AUC (trapezoid rule), and the
// Youden's-J and max-F1 optimal thresholds (spec §4.I). If either class
// is absent, it returns AUC = 0.5 with an empty curve.
func ROCCurve(predictions []Prediction) ROCResult {
	positives, negatives := countClasses(predictions)
	if positives == 0 || negatives == 0 {
		return ROCResult{AUC: 0.5}
	}

	thresholds := uniqueThresholds(predictions)
	curve := make([]CurvePoint, 0, len(thresholds))

	var best ROCResult
	bestJ := -1.0
	bestF1 := -1.0

	for _, th := range thresholds {
		cm := ConfusionMatrixAt(predictions, th, true)
		m := MetricsFromCM(cm)
		fpr := 1 - m.Specificity
		tpr := m.Recall
		curve = append(curve, CurvePoint{Threshold: th, FPR: fpr, TPR: tpr})

		j := tpr - fpr
		if j > bestJ {
			bestJ = j
			best.YoudenThreshold = th
			best.YoudenJ = j
		}
		if m.F1 > bestF1 {
			bestF1 = m.F1
			best.MaxF1Threshold = th
			best.MaxF1 = m.F1
		}
	}

	sort.SliceStable(curve, func(i, j int) bool { return curve[i].FPR < curve[j].FPR })

	var auc float64
	for i := 1; i < len(curve); i++ {
		dx := curve[i].FPR - curve[i-1].FPR
		avgY := (curve[i].TPR + curve[i-1].TPR) / 2
		auc += dx * avgY
	}

	best.Curve = curve
	best.AUC = auc
	return best
}

func countClasses(predictions []Prediction) (positives, negatives int) {
	for _, p := range predictions {
		if p.Label {
			positives++
		} else {
			negatives++
		}
	}
	return
}
