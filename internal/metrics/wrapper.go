package metrics

import "riskgate/internal/policy"

// Wrapper provides a nil-safe recording surface so serving code never has
// to branch on whether metrics are enabled.
type Wrapper struct {
	m *Metrics
}

// NewWrapper wraps a metrics set. A nil metrics set yields a wrapper whose
// methods are all no-ops.
func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

// ObservePrediction records one served scoring request.
func (w *Wrapper) ObservePrediction(score, latencySeconds float64) {
	if w == nil || w.m == nil {
		return
	}
	w.m.Predictions.Inc()
	w.m.PredictionScores.Observe(score)
	w.m.ScoringLatency.Observe(latencySeconds)
}

// PredictionError records a failed scoring request.
func (w *Wrapper) PredictionError() {
	if w == nil || w.m == nil {
		return
	}
	w.m.PredictionErrors.Inc()
	w.m.ErrorsTotal.Inc()
}

// ObserveDecision records one policy decision and its uncertainty.
func (w *Wrapper) ObserveDecision(d policy.Decision, uncertainty float64) {
	if w == nil || w.m == nil {
		return
	}
	switch d {
	case policy.Accept:
		w.m.DecisionsAccept.Inc()
	case policy.Reject:
		w.m.DecisionsReject.Inc()
	case policy.Abstain:
		w.m.DecisionsAbstain.Inc()
	}
	w.m.Uncertainty.Observe(uncertainty)
}

// SetEngineReady flips the readiness gauge.
func (w *Wrapper) SetEngineReady(ready bool) {
	if w == nil || w.m == nil {
		return
	}
	if ready {
		w.m.EngineReady.Set(1)
	} else {
		w.m.EngineReady.Set(0)
	}
}

// SetModelAge records the age of the loaded artifact in seconds.
func (w *Wrapper) SetModelAge(seconds float64) {
	if w == nil || w.m == nil {
		return
	}
	w.m.ModelAge.Set(seconds)
}

// ReloadSucceeded records a successful engine reload.
func (w *Wrapper) ReloadSucceeded() {
	if w == nil || w.m == nil {
		return
	}
	w.m.Reloads.Inc()
}

// ReloadFailed records a failed engine reload.
func (w *Wrapper) ReloadFailed() {
	if w == nil || w.m == nil {
		return
	}
	w.m.ReloadErrors.Inc()
	w.m.ErrorsTotal.Inc()
}
