// Package frame provides the tabular data representation shared by the
// feature, encoding and training layers. A Frame is an ordered collection
// of named columns over row-aligned values; numeric columns use NaN to mark
// missing entries, categorical columns use the empty string.
package frame

import (
	"fmt"
	"math"
)

// Kind identifies the value type of a column.
type Kind int

const (
	Numeric Kind = iota
	Categorical
)

// Column holds the values of one named field across all rows.
// Exactly one of Nums or Cats is populated, depending on Kind.
type Column struct {
	Name string
	Kind Kind
	Nums []float64
	Cats []string
}

// Frame is an ordered set of columns with a fixed row count.
type Frame struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New creates an empty frame with the given row count.
func New(rows int) *Frame {
	return &Frame{
		index: make(map[string]int),
		rows:  rows,
	}
}

// Rows returns the number of rows in the frame.
func (f *Frame) Rows() int { return f.rows }

// Names returns the column names in insertion order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Has reports whether a column with the given name exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns the named column, or nil if absent.
func (f *Frame) Column(name string) *Column {
	i, ok := f.index[name]
	if !ok {
		return nil
	}
	return f.cols[i]
}

// AddNumeric appends a numeric column. Replaces an existing column of the
// same name in place, preserving column order.
func (f *Frame) AddNumeric(name string, vals []float64) error {
	if len(vals) != f.rows {
		return fmt.Errorf("column %s: expected %d rows, got %d", name, f.rows, len(vals))
	}
	f.put(&Column{Name: name, Kind: Numeric, Nums: vals})
	return nil
}

// AddCategorical appends a categorical column. Replaces an existing column
// of the same name in place, preserving column order.
func (f *Frame) AddCategorical(name string, vals []string) error {
	if len(vals) != f.rows {
		return fmt.Errorf("column %s: expected %d rows, got %d", name, f.rows, len(vals))
	}
	f.put(&Column{Name: name, Kind: Categorical, Cats: vals})
	return nil
}

func (f *Frame) put(c *Column) {
	if i, ok := f.index[c.Name]; ok {
		f.cols[i] = c
		return
	}
	f.index[c.Name] = len(f.cols)
	f.cols = append(f.cols, c)
}

// Numeric returns the values of a numeric column. A missing or
// non-numeric column yields a slice of NaN so callers can treat absent
// optional inputs as fully missing.
func (f *Frame) Numeric(name string) []float64 {
	c := f.Column(name)
	if c == nil || c.Kind != Numeric {
		vals := make([]float64, f.rows)
		for i := range vals {
			vals[i] = math.NaN()
		}
		return vals
	}
	return c.Nums
}

// Categorical returns the values of a categorical column, or a slice of
// empty strings if the column is absent.
func (f *Frame) Categorical(name string) []string {
	c := f.Column(name)
	if c == nil || c.Kind != Categorical {
		return make([]string, f.rows)
	}
	return c.Cats
}

// Clone returns a deep copy of the frame. Transformations operate on the
// copy so callers never observe their input mutated.
func (f *Frame) Clone() *Frame {
	out := New(f.rows)
	for _, c := range f.cols {
		cp := &Column{Name: c.Name, Kind: c.Kind}
		if c.Kind == Numeric {
			cp.Nums = append([]float64(nil), c.Nums...)
		} else {
			cp.Cats = append([]string(nil), c.Cats...)
		}
		out.put(cp)
	}
	return out
}

// Select returns a new frame containing the given rows, in the given order.
func (f *Frame) Select(rows []int) *Frame {
	out := New(len(rows))
	for _, c := range f.cols {
		cp := &Column{Name: c.Name, Kind: c.Kind}
		if c.Kind == Numeric {
			cp.Nums = make([]float64, len(rows))
			for i, r := range rows {
				cp.Nums[i] = c.Nums[r]
			}
		} else {
			cp.Cats = make([]string, len(rows))
			for i, r := range rows {
				cp.Cats[i] = c.Cats[r]
			}
		}
		out.put(cp)
	}
	return out
}
