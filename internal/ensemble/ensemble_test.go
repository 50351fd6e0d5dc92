package ensemble

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// syntheticData builds a separable binary problem: the label follows the
// sign of a noisy linear score over two informative features.
func syntheticData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a := rng.NormFloat64()
		b := rng.NormFloat64()
		noise := rng.NormFloat64() * 0.3
		X[i] = []float64{a, b, rng.Float64()}
		if 1.5*a-b+noise > 0 {
			y[i] = 1
		}
	}
	return X, y
}

func smallConfig() Config {
	p := DefaultParams()
	p.Rounds = 30
	p.MaxDepth = 3
	return Config{NFolds: 3, Seed: 42, GBDT: p, Oblivious: p}
}

func TestEnsembleFitPredict(t *testing.T) {
	t.Parallel()

	X, y := syntheticData(400, 1)
	e := New(smallConfig())
	if err := e.Fit(X, y, []string{"a", "b", "noise"}); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if e.NumModels() != 6 {
		t.Fatalf("NumModels = %d, want 6 (3 folds x 2 families)", e.NumModels())
	}

	probs, err := e.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba failed: %v", err)
	}
	correct := 0
	for i, p := range probs {
		if p < 0 || p > 1 {
			t.Fatalf("probability %v out of range", p)
		}
		if (p >= 0.5) == (y[i] >= 0.5) {
			correct++
		}
	}
	acc := float64(correct) / float64(len(y))
	if acc < 0.85 {
		t.Errorf("training accuracy = %.3f, want >= 0.85", acc)
	}
}

func TestEnsembleDeterministic(t *testing.T) {
	t.Parallel()

	X, y := syntheticData(300, 2)
	names := []string{"a", "b", "noise"}

	e1 := New(smallConfig())
	if err := e1.Fit(X, y, names); err != nil {
		t.Fatalf("first fit failed: %v", err)
	}
	e2 := New(smallConfig())
	if err := e2.Fit(X, y, names); err != nil {
		t.Fatalf("second fit failed: %v", err)
	}

	p1, _ := e1.PredictProba(X)
	p2, _ := e2.PredictProba(X)
	for i := range p1 {
		if p1[i] != p2[i] {
			t.Fatalf("predictions diverge at row %d: %v vs %v", i, p1[i], p2[i])
		}
	}
}

func TestEnsembleSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	X, y := syntheticData(300, 3)
	e := New(smallConfig())
	if err := e.Fit(X, y, []string{"a", "b", "noise"}); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	before, _ := e.PredictProba(X)

	dir := filepath.Join(t.TempDir(), "ensemble")
	if err := e.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.NumModels() != e.NumModels() {
		t.Fatalf("loaded %d models, want %d", loaded.NumModels(), e.NumModels())
	}
	if len(loaded.FeatureNames) != 3 || loaded.FeatureNames[0] != "a" {
		t.Errorf("feature names not restored: %v", loaded.FeatureNames)
	}

	after, err := loaded.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba after load failed: %v", err)
	}
	for i := range before {
		if math.Abs(before[i]-after[i]) > 1e-7 {
			t.Fatalf("prediction drift at row %d: %v vs %v", i, before[i], after[i])
		}
	}
}

func TestEnsembleLegacyTagRemap(t *testing.T) {
	t.Parallel()

	X, y := syntheticData(200, 4)
	e := New(Config{NFolds: 2, Seed: 42, GBDT: smallConfig().GBDT, Oblivious: smallConfig().Oblivious})
	if err := e.Fit(X, y, []string{"a", "b", "noise"}); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "ensemble")
	if err := e.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Rewrite metadata tags to an older package namespace.
	metaPath := filepath.Join(dir, "metadata.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	tags := meta["model_types"].([]any)
	legacy := []string{}
	for _, tag := range tags {
		family := tag.(string)[len(TagPrefix):]
		legacy = append(legacy, "riskgate/internal/models."+family)
	}
	meta["model_types"] = legacy
	data, _ = json.Marshal(meta)
	if err := os.WriteFile(metaPath, data, 0o600); err != nil {
		t.Fatalf("write metadata: %v", err)
	}

	// Strict load must fail with the sentinel error type.
	if _, err := Load(dir); err == nil {
		t.Fatal("strict load of legacy tags succeeded, want error")
	} else {
		var unknown *UnknownFamilyError
		if !errors.As(err, &unknown) {
			t.Fatalf("strict load error = %v, want UnknownFamilyError", err)
		}
	}

	loaded, err := LoadWithRemap(dir, map[string]string{"riskgate/internal/models.": TagPrefix})
	if err != nil {
		t.Fatalf("remapped load failed: %v", err)
	}

	before, _ := e.PredictProba(X)
	after, _ := loaded.PredictProba(X)
	for i := range before {
		if math.Abs(before[i]-after[i]) > 1e-7 {
			t.Fatalf("remapped prediction drift at row %d", i)
		}
	}
}

func TestEnsemblePredictBeforeFit(t *testing.T) {
	t.Parallel()

	e := New(Config{})
	if _, err := e.PredictProba([][]float64{{1, 2}}); err == nil {
		t.Error("expected error predicting before fit")
	}
}

func TestEnsembleBadInputs(t *testing.T) {
	t.Parallel()

	e := New(Config{})
	if err := e.Fit(nil, nil, nil); err == nil {
		t.Error("expected error for empty training data")
	}
	if err := e.Fit([][]float64{{1}}, []float64{1, 0}, []string{"a"}); err == nil {
		t.Error("expected error for mismatched labels")
	}
}

func TestStratifiedFoldsBalance(t *testing.T) {
	t.Parallel()

	// 90 negatives, 30 positives over 3 folds: each fold should carry
	// exactly 10 positives and 30 negatives.
	y := make([]float64, 120)
	for i := 0; i < 30; i++ {
		y[i] = 1
	}
	folds := stratifiedFolds(y, 3, 7)

	posPerFold := make(map[int]int)
	negPerFold := make(map[int]int)
	for i, f := range folds {
		if y[i] >= 0.5 {
			posPerFold[f]++
		} else {
			negPerFold[f]++
		}
	}
	for f := 0; f < 3; f++ {
		if posPerFold[f] != 10 {
			t.Errorf("fold %d positives = %d, want 10", f, posPerFold[f])
		}
		if negPerFold[f] != 30 {
			t.Errorf("fold %d negatives = %d, want 30", f, negPerFold[f])
		}
	}
}
