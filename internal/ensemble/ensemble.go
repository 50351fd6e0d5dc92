package ensemble

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Version is the semantic version written into ensemble metadata.
const Version = "1.0.0"

// TagPrefix qualifies family tags in persisted metadata with the package
// namespace, so artifacts record where their loader lives.
const TagPrefix = "riskgate/internal/ensemble."

const metadataFile = "metadata.json"

// factories maps family names to constructors for loading.
var factories = map[string]func() Learner{
	FamilyGBDT:      func() Learner { return &GBDT{} },
	FamilyOblivious: func() Learner { return &Oblivious{} },
}

// UnknownFamilyError reports a persisted family tag with no registered
// loader. The engine's compatibility loader keys off this error to retry
// with a namespace remap.
type UnknownFamilyError struct {
	Tag string
}

func (e *UnknownFamilyError) Error() string {
	return fmt.Sprintf("ensemble: unknown model family tag %q", e.Tag)
}

// resolveFamily strips the current namespace prefix from a qualified tag.
func resolveFamily(tag string) (string, error) {
	family := strings.TrimPrefix(tag, TagPrefix)
	if _, ok := factories[family]; !ok {
		return "", &UnknownFamilyError{Tag: tag}
	}
	return family, nil
}

// Config controls cross-validation and per-family hyperparameters.
type Config struct {
	NFolds    int    `yaml:"nFolds"`
	Seed      int64  `yaml:"seed"`
	GBDT      Params `yaml:"gbdt"`
	Oblivious Params `yaml:"oblivious"`
}

type taggedModel struct {
	tag   string
	model Learner
}

// Ensemble owns the ordered fold-model collection plus the feature schema
// and class labels fixed at fit time. It is created empty, populated once
// by Fit or Load, and immutable afterward.
type Ensemble struct {
	cfg          Config
	models       []taggedModel
	FeatureNames []string
	Classes      []int
	fitted       bool
}

// New creates an empty ensemble with the given configuration.
func New(cfg Config) *Ensemble {
	if cfg.NFolds <= 1 {
		cfg.NFolds = 5
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	return &Ensemble{cfg: cfg, Classes: []int{0, 1}}
}

// Fit performs stratified k-fold training: each fold trains one learner of
// each family on the fold's training partition, with early stopping on the
// fold's held-out partition. Folds are independent and train concurrently.
// The fold seed is offset by the fold index so folds decorrelate while the
// whole fit stays reproducible.
func (e *Ensemble) Fit(X [][]float64, y []float64, featureNames []string) error {
	if err := checkTrainingInputs(X, y); err != nil {
		return err
	}
	if e.fitted {
		return fmt.Errorf("ensemble: already fitted")
	}

	e.FeatureNames = append([]string(nil), featureNames...)
	folds := stratifiedFolds(y, e.cfg.NFolds, e.cfg.Seed)

	log.Info().
		Int("folds", e.cfg.NFolds).
		Int("rows", len(X)).
		Int("features", len(featureNames)).
		Msg("training hybrid ensemble")

	e.models = make([]taggedModel, 2*e.cfg.NFolds)
	errs := make([]error, e.cfg.NFolds)
	var wg sync.WaitGroup

	for fold := 0; fold < e.cfg.NFolds; fold++ {
		wg.Add(1)
		go func(fold int) {
			defer wg.Done()

			trainIdx, valIdx := splitFold(folds, fold)
			trX, trY := gather(X, y, trainIdx)
			vaX, vaY := gather(X, y, valIdx)

			gbdtParams := e.cfg.GBDT
			gbdtParams.Seed = e.cfg.Seed + int64(fold)
			gbdt := NewGBDT(gbdtParams)
			if err := gbdt.Fit(trX, trY, vaX, vaY); err != nil {
				errs[fold] = fmt.Errorf("fold %d %s: %w", fold, FamilyGBDT, err)
				return
			}

			obliParams := e.cfg.Oblivious
			obliParams.Seed = e.cfg.Seed + int64(fold)
			obli := NewOblivious(obliParams)
			if err := obli.Fit(trX, trY, vaX, vaY); err != nil {
				errs[fold] = fmt.Errorf("fold %d %s: %w", fold, FamilyOblivious, err)
				return
			}

			e.models[2*fold] = taggedModel{tag: TagPrefix + FamilyGBDT, model: gbdt}
			e.models[2*fold+1] = taggedModel{tag: TagPrefix + FamilyOblivious, model: obli}

			log.Debug().
				Int("fold", fold).
				Int("train_rows", len(trX)).
				Int("val_rows", len(vaX)).
				Msg("fold trained")
		}(fold)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	e.fitted = true
	return nil
}

// PredictProba averages the positive-class probability across all fold
// models of both families with equal weight.
func (e *Ensemble) PredictProba(X [][]float64) ([]float64, error) {
	if !e.fitted {
		return nil, fmt.Errorf("ensemble: predict before fit")
	}
	out := make([]float64, len(X))
	for _, tm := range e.models {
		probs := tm.model.PredictProba(X)
		for i, p := range probs {
			out[i] += p
		}
	}
	for i := range out {
		out[i] /= float64(len(e.models))
	}
	return out, nil
}

// NumModels returns the number of trained fold models.
func (e *Ensemble) NumModels() int { return len(e.models) }

type metadata struct {
	FeatureNames []string `json:"feature_names"`
	Classes      []int    `json:"classes"`
	ModelTypes   []string `json:"model_types"`
	Version      string   `json:"version"`
}

// Save writes each fold model in its native JSON form plus a metadata
// record keyed by fold index and family.
func (e *Ensemble) Save(dir string) error {
	if !e.fitted {
		return fmt.Errorf("ensemble: save before fit")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create ensemble dir: %w", err)
	}

	meta := metadata{
		FeatureNames: e.FeatureNames,
		Classes:      e.Classes,
		Version:      Version,
	}
	for i, tm := range e.models {
		meta.ModelTypes = append(meta.ModelTypes, tm.tag)

		data, err := tm.model.Marshal()
		if err != nil {
			return fmt.Errorf("marshal model %d: %w", i, err)
		}
		path := filepath.Join(dir, modelFileName(i, tm.model.Family()))
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("write model %d: %w", i, err)
		}
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, metadataFile), data, 0o600)
}

// Load reconstructs an ensemble from a saved directory without needing the
// original training data. Family tags must resolve in the current
// namespace; use LoadWithRemap for artifacts written under an older layout.
func Load(dir string) (*Ensemble, error) {
	return LoadWithRemap(dir, nil)
}

// LoadWithRemap loads an ensemble, rewriting family-tag prefixes through
// the given translation table before resolution. A nil table is a strict
// load.
func LoadWithRemap(dir string, remap map[string]string) (*Ensemble, error) {
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("read ensemble metadata: %w", err)
	}
	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse ensemble metadata: %w", err)
	}

	e := New(Config{})
	e.FeatureNames = meta.FeatureNames
	if len(meta.Classes) > 0 {
		e.Classes = meta.Classes
	}

	for i, tag := range meta.ModelTypes {
		family, err := resolveFamily(applyRemap(tag, remap))
		if err != nil {
			return nil, err
		}
		model := factories[family]()

		raw, err := os.ReadFile(filepath.Join(dir, modelFileName(i, family)))
		if err != nil {
			return nil, fmt.Errorf("read model %d: %w", i, err)
		}
		if err := model.Unmarshal(raw); err != nil {
			return nil, fmt.Errorf("parse model %d (%s): %w", i, family, err)
		}
		e.models = append(e.models, taggedModel{tag: TagPrefix + family, model: model})
	}

	e.fitted = true
	log.Info().
		Str("version", meta.Version).
		Int("models", len(e.models)).
		Msg("hybrid ensemble loaded")
	return e, nil
}

func applyRemap(tag string, remap map[string]string) string {
	for old, cur := range remap {
		if strings.HasPrefix(tag, old) {
			return cur + strings.TrimPrefix(tag, old)
		}
	}
	return tag
}

func modelFileName(i int, family string) string {
	return fmt.Sprintf("model_%d_%s.json", i, family)
}

// stratifiedFolds assigns every row to a fold, preserving the class balance
// per fold. Assignment is a seeded shuffle within each class followed by
// round-robin placement, so identical data and seed give identical folds.
func stratifiedFolds(y []float64, k int, seed int64) []int {
	rng := rand.New(rand.NewSource(seed))
	folds := make([]int, len(y))

	var pos, neg []int
	for i, v := range y {
		if v >= 0.5 {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}
	for _, class := range [][]int{neg, pos} {
		rng.Shuffle(len(class), func(i, j int) { class[i], class[j] = class[j], class[i] })
		for n, idx := range class {
			folds[idx] = n % k
		}
	}
	return folds
}

func splitFold(folds []int, fold int) (train, val []int) {
	for i, f := range folds {
		if f == fold {
			val = append(val, i)
		} else {
			train = append(train, i)
		}
	}
	return train, val
}

func gather(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	gx := make([][]float64, len(idx))
	gy := make([]float64, len(idx))
	for i, r := range idx {
		gx[i] = X[r]
		gy[i] = y[r]
	}
	return gx, gy
}
