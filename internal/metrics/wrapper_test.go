package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"riskgate/internal/policy"
)

func TestWrapperNilSafe(t *testing.T) {
	t.Parallel()

	var w *Wrapper
	w.ObservePrediction(0.5, 0.001)
	w.PredictionError()
	w.ObserveDecision(policy.Accept, 0.2)
	w.SetEngineReady(true)
	w.SetModelAge(10)
	w.ReloadSucceeded()
	w.ReloadFailed()

	w = NewWrapper(nil)
	w.ObservePrediction(0.5, 0.001)
	w.ObserveDecision(policy.Reject, 0.2)
}

func TestWrapperCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)
	w := NewWrapper(m)

	w.ObservePrediction(0.7, 0.002)
	w.ObservePrediction(0.3, 0.001)
	w.PredictionError()
	w.ObserveDecision(policy.Accept, 0.1)
	w.ObserveDecision(policy.Abstain, 0.9)
	w.ObserveDecision(policy.Abstain, 0.8)

	if got := testutil.ToFloat64(m.Predictions); got != 2 {
		t.Errorf("predictions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PredictionErrors); got != 1 {
		t.Errorf("prediction errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DecisionsAccept); got != 1 {
		t.Errorf("accept count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DecisionsAbstain); got != 2 {
		t.Errorf("abstain count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.DecisionsReject); got != 0 {
		t.Errorf("reject count = %v, want 0", got)
	}
}

func TestEngineReadyGauge(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)
	w := NewWrapper(m)

	w.SetEngineReady(true)
	if got := testutil.ToFloat64(m.EngineReady); got != 1 {
		t.Errorf("ready gauge = %v, want 1", got)
	}
	w.SetEngineReady(false)
	if got := testutil.ToFloat64(m.EngineReady); got != 0 {
		t.Errorf("ready gauge = %v, want 0", got)
	}
}
