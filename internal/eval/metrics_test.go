package eval

import (
	"math"
	"testing"
)

func TestEvaluatePerfectClassifier(t *testing.T) {
	t.Parallel()

	yTrue := []float64{0, 0, 1, 1}
	yProb := []float64{0.1, 0.2, 0.8, 0.9}

	r, err := Evaluate(yTrue, yProb)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if r.Accuracy != 1 || r.Precision != 1 || r.Recall != 1 || r.F1 != 1 {
		t.Errorf("perfect separation metrics = %+v, want all 1", r)
	}
	if r.ROCAUC != 1 {
		t.Errorf("ROCAUC = %v, want 1", r.ROCAUC)
	}
	if r.Samples != 4 {
		t.Errorf("Samples = %d, want 4", r.Samples)
	}
}

func TestEvaluateConfusion(t *testing.T) {
	t.Parallel()

	// One TP, one FP, one TN, one FN at the 0.5 threshold.
	yTrue := []float64{1, 0, 0, 1}
	yProb := []float64{0.9, 0.8, 0.2, 0.1}

	r, err := Evaluate(yTrue, yProb)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if r.Accuracy != 0.5 {
		t.Errorf("Accuracy = %v, want 0.5", r.Accuracy)
	}
	if r.Precision != 0.5 {
		t.Errorf("Precision = %v, want 0.5", r.Precision)
	}
	if r.Recall != 0.5 {
		t.Errorf("Recall = %v, want 0.5", r.Recall)
	}
	if r.F1 != 0.5 {
		t.Errorf("F1 = %v, want 0.5", r.F1)
	}
}

func TestROCAUCTies(t *testing.T) {
	t.Parallel()

	// All scores identical: AUC must be exactly 0.5 via average ranks.
	yTrue := []float64{0, 1, 0, 1}
	yProb := []float64{0.5, 0.5, 0.5, 0.5}
	if got := rocAUC(yTrue, yProb); got != 0.5 {
		t.Errorf("tied-score AUC = %v, want 0.5", got)
	}
}

func TestROCAUCSingleClass(t *testing.T) {
	t.Parallel()

	if got := rocAUC([]float64{1, 1}, []float64{0.2, 0.8}); got != 0.5 {
		t.Errorf("single-class AUC = %v, want 0.5", got)
	}
}

func TestLogLossClipping(t *testing.T) {
	t.Parallel()

	// A hard-wrong probability of exactly 0 must not produce Inf.
	loss := logLoss([]float64{1}, []float64{0})
	if math.IsInf(loss, 0) || math.IsNaN(loss) {
		t.Errorf("logLoss = %v, want finite", loss)
	}
}

func TestEvaluateBadShape(t *testing.T) {
	t.Parallel()

	if _, err := Evaluate(nil, nil); err == nil {
		t.Error("expected error for empty inputs")
	}
	if _, err := Evaluate([]float64{1}, []float64{0.5, 0.5}); err == nil {
		t.Error("expected error for mismatched lengths")
	}
}

func TestGateCheck(t *testing.T) {
	t.Parallel()

	g := Gate{MinPrecision: 0.8, MaxECE: 0.1}

	pass := g.Check(Report{Precision: 0.9, ECE: 0.05})
	if !pass.Passed || len(pass.Failures) != 0 {
		t.Errorf("expected pass, got %+v", pass)
	}

	fail := g.Check(Report{Precision: 0.7, ECE: 0.2})
	if fail.Passed {
		t.Error("expected failure")
	}
	if len(fail.Failures) != 2 {
		t.Errorf("failures = %v, want both checks reported", fail.Failures)
	}
}

func TestGateZeroMaxECEDisablesCheck(t *testing.T) {
	t.Parallel()

	g := Gate{MinPrecision: 0.5}
	res := g.Check(Report{Precision: 0.9, ECE: 0.9})
	if !res.Passed {
		t.Errorf("unset MaxECE should not gate, got %+v", res)
	}
}
