package ensemble

import (
	"encoding/json"
	"math/rand"
)

// FamilyGBDT tags the level-wise gradient-boosted tree family.
const FamilyGBDT = "gbdt"

// treeNode is one node of a level-wise regression tree. Leaf nodes carry a
// value; interior nodes route on feature <= threshold.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
	Leaf      bool    `json:"leaf"`
}

type tree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t *tree) predict(row []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// GBDT is a gradient-boosted ensemble of level-wise binary trees with a
// logistic objective and Newton leaf values.
type GBDT struct {
	Params    Params  `json:"params"`
	BaseScore float64 `json:"base_score"`
	Trees     []tree  `json:"trees"`
}

// NewGBDT creates an untrained learner with the given hyperparameters.
func NewGBDT(p Params) *GBDT {
	p.setDefaults()
	return &GBDT{Params: p}
}

func (m *GBDT) Family() string { return FamilyGBDT }

// Fit trains with early stopping evaluated on the held-out partition: the
// model kept is the one at the best validation round.
func (m *GBDT) Fit(X [][]float64, y []float64, valX [][]float64, valY []float64) error {
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

		t := buildTree(X, g, h, cand, feats, m.Params)
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
func (m *GBDT) PredictProba(X [][]float64) []float64 {
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

func (m *GBDT) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func (m *GBDT) Unmarshal(data []byte) error {
	return json.Unmarshal(data, m)
}

// buildTree grows one regression tree breadth-first up to MaxDepth,
// splitting on the candidate threshold with the highest structure gain.
func buildTree(X [][]float64, g, h []float64, cand [][]float64, feats []int, p Params) tree {
	t := tree{}

	type workItem struct {
		node    int
		samples []int
		depth   int
	}

	all := make([]int, len(X))
	for i := range all {
		all[i] = i
	}
	t.Nodes = append(t.Nodes, treeNode{})
	queue := []workItem{{node: 0, samples: all, depth: 0}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		gSum, hSum := 0.0, 0.0
		for _, i := range item.samples {
			gSum += g[i]
			hSum += h[i]
		}

		makeLeaf := func() {
			t.Nodes[item.node] = treeNode{Leaf: true, Value: -gSum / (hSum + p.Lambda)}
		}

		if item.depth >= p.MaxDepth || len(item.samples) < 2*p.MinLeaf {
			makeLeaf()
			continue
		}

		bestGain := 0.0
		bestFeat, bestThr := -1, 0.0
		parentScore := gSum * gSum / (hSum + p.Lambda)

		for _, f := range feats {
			for _, thr := range cand[f] {
				gl, hl := 0.0, 0.0
				nl := 0
				for _, i := range item.samples {
					if X[i][f] <= thr {
						gl += g[i]
						hl += h[i]
						nl++
					}
				}
				nr := len(item.samples) - nl
				if nl < p.MinLeaf || nr < p.MinLeaf {
					continue
				}
				gr, hr := gSum-gl, hSum-hl
				gain := gl*gl/(hl+p.Lambda) + gr*gr/(hr+p.Lambda) - parentScore
				if gain > bestGain {
					bestGain, bestFeat, bestThr = gain, f, thr
				}
			}
		}

		if bestFeat < 0 {
			makeLeaf()
			continue
		}

		var left, right []int
		for _, i := range item.samples {
			if X[i][bestFeat] <= bestThr {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}

		l := len(t.Nodes)
		t.Nodes = append(t.Nodes, treeNode{}, treeNode{})
		t.Nodes[item.node] = treeNode{Feature: bestFeat, Threshold: bestThr, Left: l, Right: l + 1}
		queue = append(queue,
			workItem{node: l, samples: left, depth: item.depth + 1},
			workItem{node: l + 1, samples: right, depth: item.depth + 1},
		)
	}

	return t
}
