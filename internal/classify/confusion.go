package classify

import "math"

// ConfusionMatrixAt classifies every prediction against threshold: a
// score on the positive side of threshold counts as a predicted
// positive when higherIsPositive, a predicted negative otherwise
// (spec §4.I).
func ConfusionMatrixAt(predictions []Prediction, threshold float64, higherIsPositive bool) ConfusionMatrix {
	var cm ConfusionMatrix
	for _, p := range predictions {
		predictedPositive := p.Score >= threshold
		if !higherIsPositive {
			predictedPositive = p.Score < threshold
		}
		switch {
		case predictedPositive && p.Label:
			cm.TP++
		case !predictedPositive && !p.Label:
			cm.TN++
		case predictedPositive && !p.Label:
			cm.FP++
		default:
			cm.FN++
		}
	}
	cm.Total = cm.TP + cm.TN + cm.FP + cm.FN
	return cm
}

// MetricsFromCM derives every statistic in spec §4.I from cm. Divisions
// by zero yield 0, except LRPlus which yields +Inf when FPR is 0 (and a
// positive numerator), matching the spec's stated convention.
func MetricsFromCM(cm ConfusionMatrix) Metrics {
	ratio := func(num, den float64) float64 {
		if den == 0 {
			return 0
		}
		return num / den
	}

	tp, tn, fp, fn := float64(cm.TP), float64(cm.TN), float64(cm.FP), float64(cm.FN)

	precision := ratio(tp, tp+fp)
	recall := ratio(tp, tp+fn)
	specificity := ratio(tn, tn+fp)
	fpr := ratio(fp, fp+tn)

	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	mccDenom := math.Sqrt((tp + fp) * (tp + fn) * (tn + fp) * (tn + fn))
	mcc := 0.0
	if mccDenom > 0 {
		mcc = (tp*tn - fp*fn) / mccDenom
	}

	lrPlus := math.Inf(1)
	if fpr > 0 {
		lrPlus = ratio(recall, fpr)
	} else if recall == 0 {
		lrPlus = 0
	}

	return Metrics{
		Accuracy:         ratio(tp+tn, float64(cm.Total)),
		Precision:        precision,
		Recall:           recall,
		Specificity:      specificity,
		F1:               f1,
		MCC:              mcc,
		BalancedAccuracy: (recall + specificity) / 2,
		PPV:              precision,
		NPV:              ratio(tn, tn+fn),
		LRPlus:           lrPlus,
		LRMinus:          ratio(1-recall, specificity),
	}
}
