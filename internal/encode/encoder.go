// Package encode fits per-column imputation and scaling statistics on
// training data and applies them deterministically at inference time.
// Unseen categorical levels map to a reserved sentinel code and missing
// values are imputed, so transforming never fails on schema drift.
package encode

import (
	"fmt"
	"math"
	"sort"

	"riskgate/internal/frame"
)

// UnknownCode is the sentinel ordinal code for categorical values never
// seen at fit time.
const UnknownCode = -1

// missingFill is the imputation constant for missing categorical values.
const missingFill = "Missing"

// Matrix is the dense numeric output of a fitted encoder. Column order and
// count are fixed at fit time and independent of the transformed batch.
type Matrix struct {
	Names []string
	Rows  [][]float64
}

// numericStats holds the fitted statistics of one numeric column.
type numericStats struct {
	Median float64 `json:"median"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
}

// Encoder applies median imputation plus standard scaling to declared
// numeric columns and constant imputation plus ordinal coding to declared
// categorical columns.
type Encoder struct {
	NumericCols     []string                  `json:"numeric_cols"`
	CategoricalCols []string                  `json:"categorical_cols"`
	Numeric         map[string]numericStats   `json:"numeric"`
	Codes           map[string]map[string]int `json:"codes"`
	Fitted          bool                      `json:"fitted"`
}

// New creates an encoder over the declared column sets. Declared columns
// absent from the fit batch are dropped from the fitted schema.
func New(numeric, categorical []string) *Encoder {
	return &Encoder{
		NumericCols:     append([]string(nil), numeric...),
		CategoricalCols: append([]string(nil), categorical...),
	}
}

// Fit computes imputation, scaling and ordinal-code statistics from the
// training batch.
func (e *Encoder) Fit(f *frame.Frame) error {
	if f.Rows() == 0 {
		return fmt.Errorf("encode: cannot fit on empty batch")
	}

	e.Numeric = make(map[string]numericStats)
	e.Codes = make(map[string]map[string]int)

	var numeric []string
	for _, name := range e.NumericCols {
		c := f.Column(name)
		if c == nil || c.Kind != frame.Numeric {
			continue
		}
		numeric = append(numeric, name)
		e.Numeric[name] = fitNumeric(c.Nums)
	}
	e.NumericCols = numeric

	var categorical []string
	for _, name := range e.CategoricalCols {
		c := f.Column(name)
		if c == nil || c.Kind != frame.Categorical {
			continue
		}
		categorical = append(categorical, name)
		e.Codes[name] = fitCodes(c.Cats)
	}
	e.CategoricalCols = categorical

	e.Fitted = true
	return nil
}

// Transform encodes a batch with the fitted statistics. It never fails on
// unseen categorical levels or missing values; a fitted column absent from
// the batch is treated as fully missing and imputed.
func (e *Encoder) Transform(f *frame.Frame) (*Matrix, error) {
	if !e.Fitted {
		return nil, fmt.Errorf("encode: transform before fit")
	}

	names := e.OutputColumns()
	rows := make([][]float64, f.Rows())
	for i := range rows {
		rows[i] = make([]float64, len(names))
	}

	col := 0
	for _, name := range e.NumericCols {
		st := e.Numeric[name]
		vals := f.Numeric(name)
		for i := range rows {
			v := vals[i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = st.Median
			}
			rows[i][col] = (v - st.Mean) / st.Std
		}
		col++
	}
	for _, name := range e.CategoricalCols {
		codes := e.Codes[name]
		vals := f.Categorical(name)
		for i := range rows {
			v := vals[i]
			if v == "" {
				v = missingFill
			}
			code, ok := codes[v]
			if !ok {
				code = UnknownCode
			}
			rows[i][col] = float64(code)
		}
		col++
	}

	return &Matrix{Names: names, Rows: rows}, nil
}

// OutputColumns returns the fitted output column order: numerics first,
// then categoricals, each in declared order.
func (e *Encoder) OutputColumns() []string {
	names := make([]string, 0, len(e.NumericCols)+len(e.CategoricalCols))
	names = append(names, e.NumericCols...)
	names = append(names, e.CategoricalCols...)
	return names
}

func fitNumeric(vals []float64) numericStats {
	finite := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return numericStats{Std: 1}
	}

	sorted := append([]float64(nil), finite...)
	sort.Float64s(sorted)
	median := sorted[len(sorted)/2]
	if len(sorted)%2 == 0 {
		median = (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2
	}

	var sum float64
	for _, v := range finite {
		sum += v
	}
	mean := sum / float64(len(finite))

	var ss float64
	for _, v := range finite {
		d := v - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(finite)))
	if std == 0 {
		std = 1
	}

	return numericStats{Median: median, Mean: mean, Std: std}
}

// fitCodes assigns ordinal codes in lexicographic category order so the
// mapping is deterministic across fits of the same data.
func fitCodes(vals []string) map[string]int {
	seen := make(map[string]struct{})
	for _, v := range vals {
		if v == "" {
			v = missingFill
		}
		seen[v] = struct{}{}
	}
	cats := make([]string, 0, len(seen))
	for v := range seen {
		cats = append(cats, v)
	}
	sort.Strings(cats)

	codes := make(map[string]int, len(cats))
	for i, v := range cats {
		codes[v] = i
	}
	return codes
}
