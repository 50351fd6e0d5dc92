// Package ensemble trains and combines the boosted-tree learner families
// that back the applicant scorer. Two structurally different families, a
// level-wise tree booster and an oblivious-tree booster, are trained per
// cross-validation fold and their probability outputs averaged with equal
// weight.
package ensemble

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Learner is one trainable probabilistic classifier family. Implementations
// are opaque to the ensemble beyond this capability set.
type Learner interface {
	Family() string
	Fit(X [][]float64, y []float64, valX [][]float64, valY []float64) error
	PredictProba(X [][]float64) []float64
	Marshal() ([]byte, error)
	Unmarshal(data []byte) error
}

// Params are the shared boosting hyperparameters of both families.
type Params struct {
	Rounds        int     `yaml:"rounds" json:"rounds"`
	LearningRate  float64 `yaml:"learningRate" json:"learning_rate"`
	MaxDepth      int     `yaml:"maxDepth" json:"max_depth"`
	MinLeaf       int     `yaml:"minLeaf" json:"min_leaf"`
	Lambda        float64 `yaml:"lambda" json:"lambda"`
	MaxBins       int     `yaml:"maxBins" json:"max_bins"`
	EarlyStopping int     `yaml:"earlyStopping" json:"early_stopping"`
	ColSample     float64 `yaml:"colSample" json:"col_sample"`
	Seed          int64   `yaml:"seed" json:"seed"`
}

// DefaultParams returns the baseline hyperparameters used when the
// configuration leaves a family unspecified.
func DefaultParams() Params {
	return Params{
		Rounds:        200,
		LearningRate:  0.1,
		MaxDepth:      4,
		MinLeaf:       5,
		Lambda:        1.0,
		MaxBins:       32,
		EarlyStopping: 20,
		ColSample:     1.0,
		Seed:          42,
	}
}

func (p *Params) setDefaults() {
	d := DefaultParams()
	if p.Rounds <= 0 {
		p.Rounds = d.Rounds
	}
	if p.LearningRate <= 0 {
		p.LearningRate = d.LearningRate
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = d.MaxDepth
	}
	if p.MinLeaf <= 0 {
		p.MinLeaf = d.MinLeaf
	}
	if p.Lambda <= 0 {
		p.Lambda = d.Lambda
	}
	if p.MaxBins <= 1 {
		p.MaxBins = d.MaxBins
	}
	if p.EarlyStopping <= 0 {
		p.EarlyStopping = d.EarlyStopping
	}
	if p.ColSample <= 0 || p.ColSample > 1 {
		p.ColSample = d.ColSample
	}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// baseScore returns the initial logit margin from the positive-class rate,
// clipped away from 0 and 1 so the log stays finite.
func baseScore(y []float64) float64 {
	var sum float64
	for _, v := range y {
		sum += v
	}
	p := sum / float64(len(y))
	p = math.Min(math.Max(p, 1e-6), 1-1e-6)
	return math.Log(p / (1 - p))
}

// gradHess fills the logistic-loss gradient and hessian for the current
// margins.
func gradHess(y, margins, g, h []float64) {
	for i := range y {
		p := sigmoid(margins[i])
		g[i] = p - y[i]
		h[i] = p * (1 - p)
	}
}

func logLossMargins(y, margins []float64) float64 {
	var loss float64
	for i := range y {
		p := sigmoid(margins[i])
		p = math.Min(math.Max(p, 1e-15), 1-1e-15)
		loss -= y[i]*math.Log(p) + (1-y[i])*math.Log(1-p)
	}
	return loss / float64(len(y))
}

// candidateThresholds picks up to maxBins split candidates per feature from
// quantiles of the distinct training values. Deterministic for a given
// training matrix.
func candidateThresholds(X [][]float64, maxBins int) [][]float64 {
	if len(X) == 0 {
		return nil
	}
	nFeat := len(X[0])
	out := make([][]float64, nFeat)
	vals := make([]float64, len(X))
	for f := 0; f < nFeat; f++ {
		for i, row := range X {
			vals[i] = row[f]
		}
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)

		distinct := sorted[:0]
		for i, v := range sorted {
			if i == 0 || v != distinct[len(distinct)-1] {
				distinct = append(distinct, v)
			}
		}
		if len(distinct) < 2 {
			out[f] = nil
			continue
		}

		var cand []float64
		if len(distinct)-1 <= maxBins {
			for i := 0; i < len(distinct)-1; i++ {
				cand = append(cand, (distinct[i]+distinct[i+1])/2)
			}
		} else {
			for b := 1; b <= maxBins; b++ {
				i := b * (len(distinct) - 1) / (maxBins + 1)
				cand = append(cand, (distinct[i]+distinct[i+1])/2)
			}
		}
		out[f] = cand
	}
	return out
}

// sampleFeatures returns the feature subset considered for one tree. With
// colSample of 1 every feature participates.
func sampleFeatures(nFeat int, colSample float64, rng *rand.Rand) []int {
	feats := make([]int, nFeat)
	for i := range feats {
		feats[i] = i
	}
	if colSample >= 1 {
		return feats
	}
	keep := int(math.Ceil(colSample * float64(nFeat)))
	if keep < 1 {
		keep = 1
	}
	rng.Shuffle(nFeat, func(i, j int) { feats[i], feats[j] = feats[j], feats[i] })
	feats = feats[:keep]
	sort.Ints(feats)
	return feats
}

// earlyStopper tracks the best validation loss and the round it occurred.
type earlyStopper struct {
	patience  int
	bestLoss  float64
	bestRound int
	since     int
}

func newEarlyStopper(patience int) *earlyStopper {
	return &earlyStopper{patience: patience, bestLoss: math.Inf(1), bestRound: -1}
}

// observe records the validation loss for a round and reports whether
// training should stop.
func (s *earlyStopper) observe(round int, loss float64) bool {
	if loss < s.bestLoss {
		s.bestLoss = loss
		s.bestRound = round
		s.since = 0
		return false
	}
	s.since++
	return s.since >= s.patience
}

func checkTrainingInputs(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("ensemble: bad training shape: %d rows, %d labels", len(X), len(y))
	}
	return nil
}
