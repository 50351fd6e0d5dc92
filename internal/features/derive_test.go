package features

import (
	"math"
	"testing"

	"riskgate/internal/frame"
)

func fullInput() *frame.Frame {
	f := frame.New(2)
	f.AddNumeric("age", []float64{35, 62})
	f.AddNumeric("education_num", []float64{13, 9})
	f.AddNumeric("hours_per_week", []float64{40, 20})
	f.AddNumeric("capital_gain", []float64{5000, 0})
	f.AddNumeric("capital_loss", []float64{200, 100})
	f.AddCategorical("workclass", []string{"Private", ""})
	return f
}

func TestDeriveEngineeredValues(t *testing.T) {
	t.Parallel()

	out := NewDeriver().Transform(fullInput())

	if got := out.Numeric("capital_net")[0]; got != 4800 {
		t.Errorf("capital_net = %v, want 4800", got)
	}
	if got := out.Numeric("age_bin")[0]; got != 2 {
		t.Errorf("age_bin(35) = %v, want 2", got)
	}
	if got := out.Numeric("age_bin")[1]; got != 5 {
		t.Errorf("age_bin(62) = %v, want 5", got)
	}
	if got := out.Numeric("hours_per_edu")[0]; math.Abs(got-40.0/14.0) > 1e-12 {
		t.Errorf("hours_per_edu = %v, want %v", got, 40.0/14.0)
	}
	if got := out.Numeric("hrs_edu")[0]; got != 520 {
		t.Errorf("hrs_edu = %v, want 520", got)
	}
	if got := out.Numeric("age_edu")[0]; got != 455 {
		t.Errorf("age_edu = %v, want 455", got)
	}
	if got := out.Numeric("cap_gain_tax")[0]; math.Abs(got-5000*0.35) > 1e-9 {
		t.Errorf("cap_gain_tax = %v, want 1750", got)
	}
}

func TestDeriveSchemaStableWithMissingInputs(t *testing.T) {
	t.Parallel()

	// Only age present: every engineered column must still exist with
	// zeros where inputs were unavailable.
	f := frame.New(1)
	f.AddNumeric("age", []float64{45})

	out := NewDeriver().Transform(f)
	for _, name := range EngineeredColumns {
		if !out.Has(name) {
			t.Errorf("engineered column %s missing from output", name)
		}
	}
	if got := out.Numeric("age_bin")[0]; got != 3 {
		t.Errorf("age_bin(45) = %v, want 3", got)
	}
	if got := out.Numeric("hrs_edu")[0]; got != 0 {
		t.Errorf("hrs_edu without inputs = %v, want 0", got)
	}
}

func TestDeriveDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := fullInput()
	NewDeriver().Transform(in)

	if in.Has("capital_net") {
		t.Error("input frame gained engineered column")
	}
	if got := in.Categorical("workclass")[1]; got != "" {
		t.Errorf("input categorical mutated to %q", got)
	}
}

func TestDeriveSanitizes(t *testing.T) {
	t.Parallel()

	f := frame.New(2)
	f.AddNumeric("age", []float64{math.NaN(), 30})
	f.AddNumeric("education_num", []float64{math.Inf(1), 10})
	f.AddCategorical("occupation", []string{"", "Sales"})

	out := NewDeriver().Transform(f)

	if got := out.Numeric("age")[0]; got != 0 {
		t.Errorf("NaN age = %v, want 0", got)
	}
	if got := out.Numeric("education_num")[0]; got != 0 {
		t.Errorf("Inf education_num = %v, want 0", got)
	}
	if got := out.Categorical("occupation")[0]; got != "Unknown" {
		t.Errorf("empty occupation = %q, want Unknown", got)
	}
}

func TestAgeBucketEdges(t *testing.T) {
	t.Parallel()

	cases := []struct {
		age  float64
		want int
	}{
		{math.NaN(), 0},
		{-5, 0},
		{0, 0},
		{20, 0},
		{21, 1},
		{30, 1},
		{50, 3},
		{79, 6},
		{80, 6},
		{99, 7},
		{150, 7},
	}
	for _, tc := range cases {
		if got := ageBucket(tc.age); got != tc.want {
			t.Errorf("ageBucket(%v) = %d, want %d", tc.age, got, tc.want)
		}
	}
}
