// Package dataset loads the applicant training data: CSV parsing into the
// tabular frame, label binarization and seeded splitting, plus a fetcher
// that downloads the source file when the local copy is absent.
package dataset

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"riskgate/internal/frame"
)

// Columns of the applicant dataset in file order.
var (
	// NumericColumns are the raw numeric fields of the dataset.
	NumericColumns = []string{
		"age", "fnlwgt", "education_num",
		"capital_gain", "capital_loss", "hours_per_week",
	}

	numericColumns = map[string]bool{
		"age":            true,
		"fnlwgt":         true,
		"education_num":  true,
		"capital_gain":   true,
		"capital_loss":   true,
		"hours_per_week": true,
	}

	header = []string{
		"age", "workclass", "fnlwgt", "education", "education_num",
		"marital_status", "occupation", "relationship", "race", "sex",
		"capital_gain", "capital_loss", "hours_per_week", "native_country",
		"income",
	}
)

const (
	labelColumn   = "income"
	positiveLabel = ">50K"
	missingToken  = "?"
)

// Load parses the CSV at path into a frame of feature columns plus a
// binary label vector. "?" fields become missing values. The label column
// is binarized on the ">50K" outcome.
func Load(path string) (*frame.Frame, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse dataset: %w", err)
	}
	if len(rows) > 0 && rows[0][0] == header[0] {
		rows = rows[1:] // skip header line
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("dataset %s is empty", path)
	}

	cols := make(map[string][]string, len(header))
	labels := make([]float64, 0, len(rows))
	for lineNo, row := range rows {
		if len(row) != len(header) {
			return nil, nil, fmt.Errorf("dataset line %d: expected %d fields, got %d", lineNo+1, len(header), len(row))
		}
		for i, name := range header {
			v := strings.TrimSpace(row[i])
			if name == labelColumn {
				if strings.HasPrefix(v, positiveLabel) {
					labels = append(labels, 1)
				} else {
					labels = append(labels, 0)
				}
				continue
			}
			cols[name] = append(cols[name], v)
		}
	}

	out := frame.New(len(rows))
	for _, name := range header {
		if name == labelColumn {
			continue
		}
		vals := cols[name]
		if numericColumns[name] {
			nums := make([]float64, len(vals))
			for i, v := range vals {
				if v == "" || v == missingToken {
					nums[i] = math.NaN()
					continue
				}
				n, err := strconv.ParseFloat(v, 64)
				if err != nil {
					nums[i] = math.NaN()
					continue
				}
				nums[i] = n
			}
			out.AddNumeric(name, nums)
		} else {
			cats := make([]string, len(vals))
			for i, v := range vals {
				if v == missingToken {
					v = ""
				}
				cats[i] = v
			}
			out.AddCategorical(name, cats)
		}
	}

	return out, labels, nil
}

// Split partitions rows into train, validation and test sets with a
// seeded shuffle, so splits are reproducible for a given seed.
type Split struct {
	Train, Val, Test   *frame.Frame
	TrainY, ValY, TestY []float64
}

// MakeSplit shuffles the row order with the seed and carves off the
// validation and test fractions from the tail.
func MakeSplit(f *frame.Frame, y []float64, valFrac, testFrac float64, seed int64) (*Split, error) {
	n := f.Rows()
	if n != len(y) {
		return nil, fmt.Errorf("dataset: %d rows but %d labels", n, len(y))
	}
	nVal := int(float64(n) * valFrac)
	nTest := int(float64(n) * testFrac)
	if nVal == 0 || nTest == 0 || nVal+nTest >= n {
		return nil, fmt.Errorf("dataset: %d rows too few for fractions %.2f/%.2f", n, valFrac, testFrac)
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	trainIdx := idx[:n-nVal-nTest]
	valIdx := idx[n-nVal-nTest : n-nTest]
	testIdx := idx[n-nTest:]

	gatherY := func(rows []int) []float64 {
		out := make([]float64, len(rows))
		for i, r := range rows {
			out[i] = y[r]
		}
		return out
	}

	return &Split{
		Train:  f.Select(trainIdx),
		Val:    f.Select(valIdx),
		Test:   f.Select(testIdx),
		TrainY: gatherY(trainIdx),
		ValY:   gatherY(valIdx),
		TestY:  gatherY(testIdx),
	}, nil
}
