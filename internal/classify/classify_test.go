package classify

import "testing"

func approxEqual(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func TestConfusionMatrixAtCounts(t *testing.T) {
	predictions := []Prediction{
		{Score: 0.9, Label: true},
		{Score: 0.8, Label: true},
		{Score: 0.4, Label: false},
		{Score: 0.3, Label: false},
	}
	cm := ConfusionMatrixAt(predictions, 0.5, true)
	if cm.TP != 2 || cm.TN != 2 || cm.FP != 0 || cm.FN != 0 {
		t.Fatalf("cm = %+v, want TP=2 TN=2 FP=0 FN=0", cm)
	}
	if cm.Total != 4 {
		t.Fatalf("Total = %d, want 4", cm.Total)
	}
}

func TestMetricsFromCMZeroDivisionsYieldZero(t *testing.T) {
	cm := ConfusionMatrix{TP: 0, TN: 0, FP: 0, FN: 0, Total: 0}
	m := MetricsFromCM(cm)
	if m.Precision != 0 || m.Recall != 0 || m.F1 != 0 || m.MCC != 0 || m.Accuracy != 0 {
		t.Fatalf("all-zero confusion matrix should yield all-zero metrics, got %+v", m)
	}
}

func TestMetricsFromCMLRPlusInfinityWhenFPRZero(t *testing.T) {
	cm := ConfusionMatrix{TP: 5, TN: 5, FP: 0, FN: 1, Total: 11}
	m := MetricsFromCM(cm)
	if !isInf(m.LRPlus) {
		t.Fatalf("LRPlus = %v, want +Inf when FPR is 0", m.LRPlus)
	}
}

func isInf(f float64) bool {
	return f > 1e300
}

func TestMetricsFromCMRangeBounds(t *testing.T) {
	cm := ConfusionMatrix{TP: 7, TN: 3, FP: 2, FN: 4, Total: 16}
	m := MetricsFromCM(cm)
	if m.MCC < -1 || m.MCC > 1 {
		t.Fatalf("MCC = %v, out of [-1,1]", m.MCC)
	}
	for name, v := range map[string]float64{"f1": m.F1, "precision": m.Precision, "recall": m.Recall} {
		if v < 0 || v > 1 {
			t.Fatalf("%s = %v, out of [0,1]", name, v)
		}
	}
}

func TestROCCurvePerfectSeparationHasAUC1(t *testing.T) {
	predictions := []Prediction{
		{Score: 0.9, Label: true},
		{Score: 0.8, Label: true},
		{Score: 0.4, Label: false},
		{Score: 0.3, Label: false},
	}
	result := ROCCurve(predictions)
	if !approxEqual(result.AUC, 1.0, 1e-9) {
		t.Fatalf("AUC = %v, want 1.0", result.AUC)
	}
	if result.YoudenJ < 0.999 {
		t.Fatalf("YoudenJ = %v, want ~1.0 (tpr=1, fpr=0 achievable)", result.YoudenJ)
	}
}

func TestROCCurveEmptyClassYieldsHalfAUC(t *testing.T) {
	predictions := []Prediction{
		{Score: 0.9, Label: true},
		{Score: 0.8, Label: true},
	}
	result := ROCCurve(predictions)
	if result.AUC != 0.5 {
		t.Fatalf("AUC = %v, want 0.5 when one class is empty", result.AUC)
	}
	if len(result.Curve) != 0 {
		t.Fatalf("Curve = %v, want empty", result.Curve)
	}
}

func TestROCCurveCoinFlipNearHalfAUC(t *testing.T) {
	predictions := []Prediction{
		{Score: 0.9, Label: true},
		{Score: 0.7, Label: false},
		{Score: 0.6, Label: true},
		{Score: 0.5, Label: false},
		{Score: 0.4, Label: true},
		{Score: 0.3, Label: false},
	}
	result := ROCCurve(predictions)
	if result.AUC <= 0 || result.AUC >= 1 {
		t.Fatalf("AUC = %v, want strictly between 0 and 1 for mixed ordering", result.AUC)
	}
}

func TestPRCurveAUPRCAndAveragePrecisionBounded(t *testing.T) {
	predictions := []Prediction{
		{Score: 0.9, Label: true},
		{Score: 0.8, Label: true},
		{Score: 0.4, Label: false},
		{Score: 0.3, Label: false},
	}
	result := PRCurve(predictions)
	if !approxEqual(result.AUPRC, 1.0, 1e-9) {
		t.Fatalf("AUPRC = %v, want 1.0 for perfect separation", result.AUPRC)
	}
	if result.AveragePrecision < 0.999 {
		t.Fatalf("AveragePrecision = %v, want ~1.0", result.AveragePrecision)
	}
}

func TestFindOptimalThresholdMaxF1MatchesROC(t *testing.T) {
	predictions := []Prediction{
		{Score: 0.9, Label: true},
		{Score: 0.8, Label: true},
		{Score: 0.6, Label: false},
		{Score: 0.4, Label: false},
		{Score: 0.3, Label: true},
	}
	roc := ROCCurve(predictions)
	opt := FindOptimalThreshold(predictions, ThresholdQuery{Objective: MaxF1})
	if !approxEqual(opt.Score, roc.MaxF1, 1e-9) {
		t.Fatalf("FindOptimalThreshold MaxF1 = %v, ROCCurve MaxF1 = %v, want equal", opt.Score, roc.MaxF1)
	}
}

func TestFindOptimalThresholdFixedRecallRespectsFloor(t *testing.T) {
	predictions := []Prediction{
		{Score: 0.95, Label: true},
		{Score: 0.9, Label: true},
		{Score: 0.8, Label: true},
		{Score: 0.7, Label: false},
		{Score: 0.6, Label: false},
	}
	result := FindOptimalThreshold(predictions, ThresholdQuery{Objective: FixedRecall, Target: 1.0})
	if result.Metrics.Recall < 1.0 {
		t.Fatalf("Recall = %v, want >= 1.0 to satisfy the fixed-recall floor", result.Metrics.Recall)
	}
}

func TestFindOptimalThresholdMinCostPrefersCheaperErrors(t *testing.T) {
	predictions := []Prediction{
		{Score: 0.9, Label: true},
		{Score: 0.6, Label: false},
		{Score: 0.4, Label: true},
		{Score: 0.2, Label: false},
	}
	result := FindOptimalThreshold(predictions, ThresholdQuery{Objective: MinCost, FPCost: 10, FNCost: 1})
	cm := ConfusionMatrixAt(predictions, result.Threshold, true)
	cost := 10*float64(cm.FP) + 1*float64(cm.FN)
	if !approxEqual(result.Score, -cost, 1e-9) && !approxEqual(result.Score, cost, 1e-9) {
		t.Fatalf("MinCost result.Score = %v, recomputed cost = %v, want matching magnitude", result.Score, cost)
	}
}
