package classify

import "sort"

// PRCurve computes the precision-recall curve, AUPRC (trapezoid rule
// over recall), and Average Precision (the step-weighted sum used by
// most ranking libraries), analogous to ROCCurve (spec §4.I). If either
// class is absent, it returns an empty result.
func PRCurve(predictions []Prediction) PRResult {
	positives, negatives := countClasses(predictions)
	if positives == 0 || negatives == 0 {
		return PRResult{}
	}

	sorted := make([]Prediction, len(predictions))
	copy(sorted, predictions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	curve := make([]CurvePoint, 0, len(sorted))
	var tp, fp int
	var averagePrecision float64
	prevRecall := 0.0

	for _, p := range sorted {
		if p.Label {
			tp++
		} else {
			fp++
		}
		precision := float64(tp) / float64(tp+fp)
		recall := float64(tp) / float64(positives)
		curve = append(curve, CurvePoint{
			Threshold: p.Score,
			Precision: precision,
			Recall:    recall,
		})
		if p.Label {
			averagePrecision += precision * (recall - prevRecall)
		}
		prevRecall = recall
	}

	// The trapezoid starts at (recall 0, precision 1).
	var auprc float64
	prevR, prevP := 0.0, 1.0
	for _, pt := range curve {
		auprc += (pt.Recall - prevR) * (pt.Precision + prevP) / 2
		prevR, prevP = pt.Recall, pt.Precision
	}

	return PRResult{Curve: curve, AUPRC: auprc, AveragePrecision: averagePrecision}
}
