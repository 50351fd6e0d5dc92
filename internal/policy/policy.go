// Package policy converts a calibrated probability into one of three
// risk-gated decisions under two thresholds, and prices a batch of
// decisions against ground truth with a configurable cost model. A policy
// is pure and stateless beyond its thresholds; many instances may run
// concurrently over the same engine.
package policy

import (
	"fmt"
	"math"
)

// Decision is a terminal decision for one scored request.
type Decision string

const (
	Reject  Decision = "REJECT"
	Abstain Decision = "ABSTAIN"
	Accept  Decision = "ACCEPT"
)

// Policy holds the two decision thresholds, tauLow <= tauHigh.
type Policy struct {
	TauLow  float64
	TauHigh float64
}

// New validates the thresholds and returns a policy.
func New(tauLow, tauHigh float64) (*Policy, error) {
	if math.IsNaN(tauLow) || math.IsNaN(tauHigh) {
		return nil, fmt.Errorf("policy: thresholds must be finite")
	}
	if tauLow > tauHigh {
		return nil, fmt.Errorf("policy: tauLow %.4f exceeds tauHigh %.4f", tauLow, tauHigh)
	}
	return &Policy{TauLow: tauLow, TauHigh: tauHigh}, nil
}

// Decide maps a probability to a decision. The boundary values belong to
// REJECT and ACCEPT, never ABSTAIN. A non-finite probability is treated as
// 0.5 before deciding.
func (p *Policy) Decide(prob float64) Decision {
	prob = Sanitize(prob)
	switch {
	case prob <= p.TauLow:
		return Reject
	case prob >= p.TauHigh:
		return Accept
	default:
		return Abstain
	}
}

// PredictWithPolicy is the elementwise form of Decide, order-preserving.
func (p *Policy) PredictWithPolicy(probs []float64) []Decision {
	out := make([]Decision, len(probs))
	for i, prob := range probs {
		out[i] = p.Decide(prob)
	}
	return out
}

// Sanitize substitutes 0.5 for non-finite probabilities so garbage input
// downstream of the ensemble or calibrator never propagates as NaN or Inf.
func Sanitize(prob float64) float64 {
	if math.IsNaN(prob) || math.IsInf(prob, 0) {
		return 0.5
	}
	return prob
}

// Uncertainty scores how far a probability is from a confident call:
// 0 at p in {0, 1}, 1 at p = 0.5. Non-finite input is maximal uncertainty.
func Uncertainty(prob float64) float64 {
	prob = Sanitize(prob)
	return 1 - 2*math.Abs(prob-0.5)
}

// CostRisk is the display scalar derived from uncertainty.
func CostRisk(prob float64) float64 {
	return Uncertainty(prob) * 100
}

// Costs are the per-outcome penalties of the cost model. Correct ACCEPT
// and REJECT decisions cost zero.
type Costs struct {
	FalsePositive float64 `yaml:"falsePositive"`
	FalseNegative float64 `yaml:"falseNegative"`
	Abstain       float64 `yaml:"abstain"`
}

// DefaultCosts returns the standard penalty schedule.
func DefaultCosts() Costs {
	return Costs{FalsePositive: 10, FalseNegative: 5, Abstain: 2}
}

// ComputeCost sums the penalties of a decision batch against ground truth
// and returns both the total and the mean cost per decision.
func ComputeCost(yTrue []int, decisions []Decision, costs Costs) (total, mean float64, err error) {
	if len(yTrue) == 0 || len(yTrue) != len(decisions) {
		return 0, 0, fmt.Errorf("policy: bad cost shape: %d labels, %d decisions", len(yTrue), len(decisions))
	}
	for i, d := range decisions {
		switch {
		case d == Abstain:
			total += costs.Abstain
		case yTrue[i] == 0 && d == Accept:
			total += costs.FalsePositive
		case yTrue[i] == 1 && d == Reject:
			total += costs.FalseNegative
		}
	}
	return total, total / float64(len(yTrue)), nil
}
