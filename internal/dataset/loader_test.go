package dataset

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleRows = `39, State-gov, 77516, Bachelors, 13, Never-married, Adm-clerical, Not-in-family, White, Male, 2174, 0, 40, United-States, <=50K
50, Self-emp-not-inc, 83311, Bachelors, 13, Married-civ-spouse, Exec-managerial, Husband, White, Male, 0, 0, 13, United-States, <=50K
38, ?, 215646, HS-grad, 9, Divorced, Handlers-cleaners, Not-in-family, White, Male, 0, 0, ?, United-States, >50K
`

func writeSample(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "adult.data")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return path
}

func TestLoadParsesRows(t *testing.T) {
	t.Parallel()

	f, y, err := Load(writeSample(t, sampleRows))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if f.Rows() != 3 {
		t.Fatalf("Rows = %d, want 3", f.Rows())
	}
	if len(y) != 3 {
		t.Fatalf("labels = %d, want 3", len(y))
	}

	if got := f.Numeric("age"); got[0] != 39 || got[1] != 50 {
		t.Errorf("age = %v, want [39 50 38]", got)
	}
	if got := f.Categorical("workclass"); got[0] != "State-gov" {
		t.Errorf("workclass[0] = %q, want State-gov", got[0])
	}
	if y[0] != 0 || y[1] != 0 || y[2] != 1 {
		t.Errorf("labels = %v, want [0 0 1]", y)
	}
}

func TestLoadMissingTokens(t *testing.T) {
	t.Parallel()

	f, _, err := Load(writeSample(t, sampleRows))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	// "?" workclass becomes an empty categorical, "?" hours a NaN.
	if got := f.Categorical("workclass")[2]; got != "" {
		t.Errorf("missing workclass = %q, want empty", got)
	}
	if got := f.Numeric("hours_per_week")[2]; !math.IsNaN(got) {
		t.Errorf("missing hours = %v, want NaN", got)
	}
}

func TestLoadSkipsHeader(t *testing.T) {
	t.Parallel()

	withHeader := "age, workclass, fnlwgt, education, education_num, marital_status, occupation, relationship, race, sex, capital_gain, capital_loss, hours_per_week, native_country, income\n" + sampleRows
	f, _, err := Load(writeSample(t, withHeader))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if f.Rows() != 3 {
		t.Errorf("Rows = %d, want 3", f.Rows())
	}
}

func TestLoadRejectsBadWidth(t *testing.T) {
	t.Parallel()

	if _, _, err := Load(writeSample(t, "39, State-gov, 77516\n")); err == nil {
		t.Error("expected error for short row")
	}
}

func TestLoadRejectsEmpty(t *testing.T) {
	t.Parallel()

	if _, _, err := Load(writeSample(t, "")); err == nil {
		t.Error("expected error for empty dataset")
	}
}

func TestMakeSplitFractions(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString(sampleRows)
	}
	f, y, err := Load(writeSample(t, b.String()))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	s, err := MakeSplit(f, y, 0.15, 0.15, 42)
	if err != nil {
		t.Fatalf("MakeSplit failed: %v", err)
	}
	if s.Val.Rows() != 45 || s.Test.Rows() != 45 {
		t.Errorf("val/test rows = %d/%d, want 45/45", s.Val.Rows(), s.Test.Rows())
	}
	if s.Train.Rows() != 210 {
		t.Errorf("train rows = %d, want 210", s.Train.Rows())
	}
	if len(s.TrainY) != s.Train.Rows() || len(s.ValY) != s.Val.Rows() || len(s.TestY) != s.Test.Rows() {
		t.Error("label slices not aligned with frames")
	}
}

func TestMakeSplitDeterministic(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString(sampleRows)
	}
	f, y, _ := Load(writeSample(t, b.String()))

	s1, err := MakeSplit(f, y, 0.2, 0.2, 7)
	if err != nil {
		t.Fatalf("MakeSplit failed: %v", err)
	}
	s2, _ := MakeSplit(f, y, 0.2, 0.2, 7)

	a1 := s1.Test.Numeric("fnlwgt")
	a2 := s2.Test.Numeric("fnlwgt")
	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatal("same seed produced different splits")
		}
	}
}

func TestMakeSplitTooFewRows(t *testing.T) {
	t.Parallel()

	f, y, _ := Load(writeSample(t, sampleRows))
	if _, err := MakeSplit(f, y, 0.15, 0.15, 42); err == nil {
		t.Error("expected error for too few rows")
	}
}
