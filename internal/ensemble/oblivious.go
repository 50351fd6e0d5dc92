package ensemble

import (
	"encoding/json"
	"math/rand"
)

// FamilyOblivious tags the oblivious (symmetric) tree family. Every level
// of an oblivious tree tests the same feature and threshold across the
// whole tree, which regularizes differently from level-wise growth and
// diversifies the ensemble.
const FamilyOblivious = "obli"

// obliTree is a symmetric tree of depth len(Features): leaf index bits are
// the per-level comparison outcomes.
type obliTree struct {
	Features   []int     `json:"features"`
	Thresholds []float64 `json:"thresholds"`
	Leaves     []float64 `json:"leaves"`
}

func (t *obliTree) predict(row []float64) float64 {
	idx := 0
	for lvl, f := range t.Features {
		idx <<= 1
		if row[f] > t.Thresholds[lvl] {
			idx |= 1
		}
	}
	return t.Leaves[idx]
}

// Oblivious is a gradient-boosted ensemble of symmetric trees with a
// logistic objective.
type Oblivious struct {
	Params    Params     `json:"params"`
	BaseScore float64    `json:"base_score"`
	Trees     []obliTree `json:"trees"`
}

// NewOblivious creates an untrained learner with the given hyperparameters.
func NewOblivious(p Params) *Oblivious {
	p.setDefaults()
	return &Oblivious{Params: p}
}

func (m *Oblivious) Family() string { return FamilyOblivious }

// Fit trains with early stopping evaluated on the held-out partition.
func (m *Oblivious) Fit(X [][]float64, y []float64, valX [][]float64, valY []float64) error {
	if err := checkTrainingInputs(X, y); err != nil {
		return err
	}
	m.Params.setDefaults()
	m.BaseScore = baseScore(y)
	m.Trees = nil

	n := len(X)
	margins := make([]float64, n)
	for i := range margins {
		margins[i] = m.BaseScore
	}
	valMargins := make([]float64, len(valX))
	for i := range valMargins {
		valMargins[i] = m.BaseScore
	}

	g := make([]float64, n)
	h := make([]float64, n)
	cand := candidateThresholds(X, m.Params.MaxBins)
	stopper := newEarlyStopper(m.Params.EarlyStopping)
	rng := rand.New(rand.NewSource(m.Params.Seed))

	for round := 0; round < m.Params.Rounds; round++ {
		gradHess(y, margins, g, h)
		feats := sampleFeatures(len(X[0]), m.Params.ColSample, rng)

		t := buildObliviousTree(X, g, h, cand, feats, m.Params)
		m.Trees = append(m.Trees, t)

		for i, row := range X {
			margins[i] += m.Params.LearningRate * t.predict(row)
		}
		for i, row := range valX {
			valMargins[i] += m.Params.LearningRate * t.predict(row)
		}

		if len(valY) > 0 && stopper.observe(round, logLossMargins(valY, valMargins)) {
			break
		}
	}

	if stopper.bestRound >= 0 && stopper.bestRound+1 < len(m.Trees) {
		m.Trees = m.Trees[:stopper.bestRound+1]
	}
	return nil
}

// PredictProba returns the positive-class probability for each row.
func (m *Oblivious) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		margin := m.BaseScore
		for j := range m.Trees {
			margin += m.Params.LearningRate * m.Trees[j].predict(row)
		}
		out[i] = sigmoid(margin)
	}
	return out
}

func (m *Oblivious) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func (m *Oblivious) Unmarshal(data []byte) error {
	return json.Unmarshal(data, m)
}

// buildObliviousTree grows one symmetric tree: at each level the single
// (feature, threshold) pair maximizing the summed structure gain across
// all current leaves is applied to every leaf at once.
func buildObliviousTree(X [][]float64, g, h []float64, cand [][]float64, feats []int, p Params) obliTree {
	t := obliTree{}
	leafOf := make([]int, len(X))

	for lvl := 0; lvl < p.MaxDepth; lvl++ {
		nLeaves := 1 << lvl
		gSum := make([]float64, nLeaves)
		hSum := make([]float64, nLeaves)
		for i := range X {
			gSum[leafOf[i]] += g[i]
			hSum[leafOf[i]] += h[i]
		}

		bestGain := 0.0
		bestFeat, bestThr := -1, 0.0
		gl := make([]float64, nLeaves)
		hl := make([]float64, nLeaves)

		for _, f := range feats {
			for _, thr := range cand[f] {
				for l := 0; l < nLeaves; l++ {
					gl[l], hl[l] = 0, 0
				}
				for i, row := range X {
					if row[f] <= thr {
						gl[leafOf[i]] += g[i]
						hl[leafOf[i]] += h[i]
					}
				}
				gain := 0.0
				for l := 0; l < nLeaves; l++ {
					gr, hr := gSum[l]-gl[l], hSum[l]-hl[l]
					gain += gl[l]*gl[l]/(hl[l]+p.Lambda) + gr*gr/(hr+p.Lambda)
					gain -= gSum[l] * gSum[l] / (hSum[l] + p.Lambda)
				}
				if gain > bestGain {
					bestGain, bestFeat, bestThr = gain, f, thr
				}
			}
		}

		if bestFeat < 0 {
			break
		}

		t.Features = append(t.Features, bestFeat)
		t.Thresholds = append(t.Thresholds, bestThr)
		for i, row := range X {
			leafOf[i] <<= 1
			if row[bestFeat] > bestThr {
				leafOf[i] |= 1
			}
		}
	}

	nLeaves := 1 << len(t.Features)
	gSum := make([]float64, nLeaves)
	hSum := make([]float64, nLeaves)
	for i := range X {
		gSum[leafOf[i]] += g[i]
		hSum[leafOf[i]] += h[i]
	}
	t.Leaves = make([]float64, nLeaves)
	for l := 0; l < nLeaves; l++ {
		t.Leaves[l] = -gSum[l] / (hSum[l] + p.Lambda)
	}
	return t
}
