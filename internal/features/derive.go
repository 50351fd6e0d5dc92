// Package features derives the engineered applicant features used by the
// scoring ensemble. The deriver is pure: it holds no fitted state and the
// set of output columns is identical regardless of which optional input
// columns were present, so training and inference always see the same schema.
package features

import (
	"math"

	"riskgate/internal/frame"
)

// ageBinEdges define the fixed age buckets. Ages outside the range clip to
// the nearest edge; a missing age lands in bucket 0.
var ageBinEdges = []float64{0, 20, 30, 40, 50, 60, 70, 80, 100}

// EngineeredColumns lists every derived numeric column in output order.
var EngineeredColumns = []string{
	"capital_net",
	"age_bin",
	"hours_per_edu",
	"hrs_edu",
	"age_edu",
	"cap_gain_tax",
}

// CategoricalColumns lists the declared categorical applicant fields.
var CategoricalColumns = []string{
	"workclass",
	"marital_status",
	"occupation",
	"relationship",
	"race",
	"sex",
	"native_country",
}

// Deriver computes engineered features from raw applicant records.
type Deriver struct{}

// NewDeriver creates a feature deriver.
func NewDeriver() *Deriver { return &Deriver{} }

// Transform returns a copy of the batch extended with the engineered
// columns. The input frame is never mutated.
func (d *Deriver) Transform(in *frame.Frame) *frame.Frame {
	out := in.Clone()
	n := out.Rows()

	// Initialize engineered columns so the schema stays stable even when
	// the inputs needed to compute them are absent.
	for _, name := range EngineeredColumns {
		if !out.Has(name) {
			out.AddNumeric(name, make([]float64, n))
		}
	}

	gain := out.Numeric("capital_gain")
	loss := out.Numeric("capital_loss")
	age := out.Numeric("age")
	hours := out.Numeric("hours_per_week")
	edu := out.Numeric("education_num")

	if out.Has("capital_gain") && out.Has("capital_loss") {
		net := make([]float64, n)
		for i := range net {
			net[i] = gain[i] - loss[i]
		}
		out.AddNumeric("capital_net", net)
	}

	if out.Has("age") {
		bins := make([]float64, n)
		for i := range bins {
			bins[i] = float64(ageBucket(age[i]))
		}
		out.AddNumeric("age_bin", bins)
	}

	if out.Has("hours_per_week") && out.Has("education_num") {
		perEdu := make([]float64, n)
		hrsEdu := make([]float64, n)
		for i := range perEdu {
			// Plus-one denominator guards against division by zero.
			perEdu[i] = hours[i] / (edu[i] + 1)
			hrsEdu[i] = hours[i] * edu[i]
		}
		out.AddNumeric("hours_per_edu", perEdu)
		out.AddNumeric("hrs_edu", hrsEdu)
	}

	if out.Has("age") && out.Has("education_num") {
		ageEdu := make([]float64, n)
		for i := range ageEdu {
			ageEdu[i] = age[i] * edu[i]
		}
		out.AddNumeric("age_edu", ageEdu)

		if out.Has("capital_gain") {
			tax := make([]float64, n)
			for i := range tax {
				tax[i] = gain[i] * (age[i] / 100.0)
			}
			out.AddNumeric("cap_gain_tax", tax)
		}
	}

	sanitize(out)
	return out
}

// Fit is a no-op; the deriver has no learned state.
func (d *Deriver) Fit(_ *frame.Frame) *Deriver { return d }

// ageBucket maps an age to its bin index. Values below the first edge or
// above the last clip to the nearest bucket; NaN maps to bucket 0.
func ageBucket(age float64) int {
	if math.IsNaN(age) {
		return 0
	}
	if age <= ageBinEdges[0] {
		return 0
	}
	last := len(ageBinEdges) - 2
	for b := 0; b <= last; b++ {
		if age <= ageBinEdges[b+1] {
			return b
		}
	}
	return last
}

// sanitize replaces non-finite and missing numerics with 0 and missing
// categorical values with the "Unknown" placeholder.
func sanitize(f *frame.Frame) {
	for _, name := range f.Names() {
		c := f.Column(name)
		switch c.Kind {
		case frame.Numeric:
			for i, v := range c.Nums {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					c.Nums[i] = 0
				}
			}
		case frame.Categorical:
			for i, v := range c.Cats {
				if v == "" {
					c.Cats[i] = "Unknown"
				}
			}
		}
	}
}
