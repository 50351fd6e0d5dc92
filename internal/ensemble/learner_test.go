package ensemble

import (
	"math"
	"testing"
)

func TestBaseScore(t *testing.T) {
	t.Parallel()

	// A balanced label set starts boosting from a zero margin.
	if got := baseScore([]float64{0, 1, 0, 1}); math.Abs(got) > 1e-12 {
		t.Errorf("baseScore(balanced) = %v, want 0", got)
	}
	// All-positive labels clip instead of producing +Inf.
	if got := baseScore([]float64{1, 1, 1}); math.IsInf(got, 0) {
		t.Errorf("baseScore(all positive) = %v, want finite", got)
	}
}

func TestEarlyStopper(t *testing.T) {
	t.Parallel()

	s := newEarlyStopper(2)
	if s.observe(0, 0.7) {
		t.Error("stopped on first improving round")
	}
	if s.observe(1, 0.6) {
		t.Error("stopped while loss improving")
	}
	if s.observe(2, 0.65) {
		t.Error("stopped before patience exhausted")
	}
	if !s.observe(3, 0.66) {
		t.Error("did not stop after patience rounds without improvement")
	}
	if s.bestRound != 1 {
		t.Errorf("bestRound = %d, want 1", s.bestRound)
	}
}

func TestCandidateThresholdsConstantFeature(t *testing.T) {
	t.Parallel()

	X := [][]float64{{1, 5}, {1, 7}, {1, 9}}
	cand := candidateThresholds(X, 8)
	if cand[0] != nil {
		t.Errorf("constant feature candidates = %v, want none", cand[0])
	}
	if len(cand[1]) != 2 {
		t.Errorf("feature 1 candidates = %v, want midpoints 6 and 8", cand[1])
	}
}

func TestCandidateThresholdsCapped(t *testing.T) {
	t.Parallel()

	X := make([][]float64, 100)
	for i := range X {
		X[i] = []float64{float64(i)}
	}
	cand := candidateThresholds(X, 8)
	if len(cand[0]) > 8 {
		t.Errorf("got %d candidates, want at most 8", len(cand[0]))
	}
}

func TestLearnersSeparateSimpleData(t *testing.T) {
	t.Parallel()

	// Labels follow a single threshold on feature 0.
	var X [][]float64
	var y []float64
	for i := 0; i < 100; i++ {
		v := float64(i)
		X = append(X, []float64{v, 0})
		if v >= 50 {
			y = append(y, 1)
		} else {
			y = append(y, 0)
		}
	}

	params := DefaultParams()
	params.Rounds = 20
	params.EarlyStopping = 5

	for _, l := range []Learner{NewGBDT(params), NewOblivious(params)} {
		if err := l.Fit(X, y, X, y); err != nil {
			t.Fatalf("%s fit failed: %v", l.Family(), err)
		}
		probs := l.PredictProba(X)
		if probs[0] >= 0.5 || probs[10] >= 0.5 {
			t.Errorf("%s low-side prob = %v, want < 0.5", l.Family(), probs[0])
		}
		if probs[99] < 0.5 || probs[60] < 0.5 {
			t.Errorf("%s high-side prob = %v, want >= 0.5", l.Family(), probs[99])
		}
	}
}

func TestLearnerMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	X := [][]float64{{0}, {1}, {2}, {3}, {4}, {5}, {6}, {7}, {8}, {9}}
	y := []float64{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}

	params := DefaultParams()
	params.Rounds = 10
	params.MinLeaf = 1

	for _, fresh := range []func() Learner{
		func() Learner { return NewGBDT(params) },
		func() Learner { return NewOblivious(params) },
	} {
		l := fresh()
		if err := l.Fit(X, y, X, y); err != nil {
			t.Fatalf("%s fit failed: %v", l.Family(), err)
		}
		before := l.PredictProba(X)

		data, err := l.Marshal()
		if err != nil {
			t.Fatalf("%s marshal failed: %v", l.Family(), err)
		}
		restored := factories[l.Family()]()
		if err := restored.Unmarshal(data); err != nil {
			t.Fatalf("%s unmarshal failed: %v", l.Family(), err)
		}
		after := restored.PredictProba(X)
		for i := range before {
			if math.Abs(before[i]-after[i]) > 1e-12 {
				t.Fatalf("%s prediction drift after round trip", l.Family())
			}
		}
	}
}
