// Package calib corrects raw ensemble probabilities against held-out
// ground truth. The calibrator is an isotonic regression fitted post-hoc:
// a monotone step-linear mapping from raw probability to empirical outcome
// frequency, with out-of-range inputs clipped to the fitted boundary.
package calib

import (
	"fmt"
	"math"
	"sort"
)

// Isotonic is a fitted monotone mapping from raw to calibrated probability.
type Isotonic struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// Fit runs pool-adjacent-violators over the (probability, label) pairs and
// keeps the resulting breakpoints.
func (c *Isotonic) Fit(probs, labels []float64) error {
	if len(probs) == 0 || len(probs) != len(labels) {
		return fmt.Errorf("calib: bad fit shape: %d probs, %d labels", len(probs), len(labels))
	}

	type pair struct{ x, y float64 }
	pairs := make([]pair, len(probs))
	for i := range probs {
		pairs[i] = pair{probs[i], labels[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].x < pairs[j].x })

	// Pool adjacent violators: merge blocks until fitted values are
	// non-decreasing in x.
	type block struct {
		sum    float64
		weight float64
		xLast  float64
	}
	var blocks []block
	for _, p := range pairs {
		blocks = append(blocks, block{sum: p.y, weight: 1, xLast: p.x})
		for len(blocks) > 1 {
			a, b := blocks[len(blocks)-2], blocks[len(blocks)-1]
			if a.sum/a.weight <= b.sum/b.weight {
				break
			}
			blocks = blocks[:len(blocks)-1]
			blocks[len(blocks)-1] = block{
				sum:    a.sum + b.sum,
				weight: a.weight + b.weight,
				xLast:  b.xLast,
			}
		}
	}

	c.X = c.X[:0]
	c.Y = c.Y[:0]
	for _, b := range blocks {
		c.X = append(c.X, b.xLast)
		c.Y = append(c.Y, b.sum/b.weight)
	}
	return nil
}

// Predict maps raw probabilities through the fitted function. Output is
// shape-preserving and always within [0, 1]; inputs outside the fitted
// range clip to the nearest boundary value rather than extrapolating.
func (c *Isotonic) Predict(probs []float64) []float64 {
	out := make([]float64, len(probs))
	for i, p := range probs {
		out[i] = c.predictOne(p)
	}
	return out
}

func (c *Isotonic) predictOne(p float64) float64 {
	if len(c.X) == 0 {
		return clamp01(p)
	}
	if math.IsNaN(p) || p <= c.X[0] {
		return clamp01(c.Y[0])
	}
	last := len(c.X) - 1
	if p >= c.X[last] {
		return clamp01(c.Y[last])
	}
	// Linear interpolation between neighboring breakpoints.
	hi := sort.SearchFloat64s(c.X, p)
	lo := hi - 1
	span := c.X[hi] - c.X[lo]
	if span == 0 {
		return clamp01(c.Y[hi])
	}
	frac := (p - c.X[lo]) / span
	return clamp01(c.Y[lo] + frac*(c.Y[hi]-c.Y[lo]))
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

// ComputeECE reports the Expected Calibration Error: probabilities are
// binned into nBins equal-width buckets and the weighted mean absolute gap
// between bucket-mean predicted probability and bucket-mean outcome rate is
// returned. Empty buckets are excluded from the weighted sum.
func ComputeECE(yTrue, yProb []float64, nBins int) (float64, error) {
	if len(yTrue) == 0 || len(yTrue) != len(yProb) {
		return 0, fmt.Errorf("calib: bad ece shape: %d labels, %d probs", len(yTrue), len(yProb))
	}
	if nBins <= 0 {
		return 0, fmt.Errorf("calib: nBins must be positive, got %d", nBins)
	}

	sumProb := make([]float64, nBins)
	sumTrue := make([]float64, nBins)
	count := make([]float64, nBins)
	for i, p := range yProb {
		b := int(p * float64(nBins))
		if b < 0 {
			b = 0
		}
		if b >= nBins {
			b = nBins - 1
		}
		sumProb[b] += p
		sumTrue[b] += yTrue[i]
		count[b]++
	}

	total := float64(len(yProb))
	var ece float64
	for b := 0; b < nBins; b++ {
		if count[b] == 0 {
			continue
		}
		gap := math.Abs(sumTrue[b]/count[b] - sumProb[b]/count[b])
		ece += gap * count[b] / total
	}
	return ece, nil
}
