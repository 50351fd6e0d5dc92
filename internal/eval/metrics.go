// Package eval computes the offline evaluation metrics emitted by the
// training job and enforces the acceptance gate before an artifact is
// promoted.
package eval

import (
	"fmt"
	"math"
	"sort"
)

// Report collects the evaluation metrics of one trained artifact.
type Report struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	ROCAUC    float64 `json:"roc_auc"`
	LogLoss   float64 `json:"log_loss"`
	ECE       float64 `json:"ece"`
	Samples   int     `json:"samples"`
}

// Evaluate computes classification metrics from probabilities and binary
// labels, thresholding at 0.5 for the hard-decision metrics.
func Evaluate(yTrue []float64, yProb []float64) (Report, error) {
	if len(yTrue) == 0 || len(yTrue) != len(yProb) {
		return Report{}, fmt.Errorf("eval: bad shape: %d labels, %d probs", len(yTrue), len(yProb))
	}

	var tp, fp, tn, fn float64
	for i, p := range yProb {
		pred := p >= 0.5
		pos := yTrue[i] >= 0.5
		switch {
		case pred && pos:
			tp++
		case pred && !pos:
			fp++
		case !pred && !pos:
			tn++
		default:
			fn++
		}
	}

	r := Report{Samples: len(yTrue)}
	n := float64(len(yTrue))
	r.Accuracy = (tp + tn) / n
	if tp+fp > 0 {
		r.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		r.Recall = tp / (tp + fn)
	}
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}
	r.ROCAUC = rocAUC(yTrue, yProb)
	r.LogLoss = logLoss(yTrue, yProb)
	return r, nil
}

// rocAUC computes the area under the ROC curve via the rank statistic,
// with average ranks for tied scores.
func rocAUC(yTrue, yProb []float64) float64 {
	n := len(yProb)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return yProb[order[a]] < yProb[order[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && yProb[order[j]] == yProb[order[i]] {
			j++
		}
		avg := float64(i+j+1) / 2 // 1-based average rank of the tie group
		for k := i; k < j; k++ {
			ranks[order[k]] = avg
		}
		i = j
	}

	var nPos, nNeg, rankSum float64
	for i, y := range yTrue {
		if y >= 0.5 {
			nPos++
			rankSum += ranks[i]
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0.5
	}
	return (rankSum - nPos*(nPos+1)/2) / (nPos * nNeg)
}

func logLoss(yTrue, yProb []float64) float64 {
	var loss float64
	for i, p := range yProb {
		p = math.Min(math.Max(p, 1e-15), 1-1e-15)
		loss -= yTrue[i]*math.Log(p) + (1-yTrue[i])*math.Log(1-p)
	}
	return loss / float64(len(yTrue))
}

// Gate holds the acceptance thresholds a candidate artifact must clear.
type Gate struct {
	MinPrecision float64 `yaml:"minPrecision"`
	MaxECE       float64 `yaml:"maxECE"`
}

// GateResult reports which checks failed. A failed gate is a normal
// outcome, reported distinctly from a hard computation error.
type GateResult struct {
	Passed   bool     `json:"passed"`
	Failures []string `json:"failures,omitempty"`
}

// Check compares a report against the gate thresholds.
func (g Gate) Check(r Report) GateResult {
	var failures []string
	if r.Precision < g.MinPrecision {
		failures = append(failures,
			fmt.Sprintf("precision %.4f below minimum %.4f", r.Precision, g.MinPrecision))
	}
	if g.MaxECE > 0 && r.ECE > g.MaxECE {
		failures = append(failures,
			fmt.Sprintf("ece %.4f above maximum %.4f", r.ECE, g.MaxECE))
	}
	return GateResult{Passed: len(failures) == 0, Failures: failures}
}
