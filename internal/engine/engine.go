// Package engine composes the feature deriver, column encoder, hybrid
// ensemble and optional calibrator into one inference pipeline, and owns
// save/load of the whole composite artifact. An engine is immutable after
// construction and safe for unlimited concurrent inference calls; reloads
// build a new engine off-path and swap a reference.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"riskgate/internal/calib"
	"riskgate/internal/encode"
	"riskgate/internal/ensemble"
	"riskgate/internal/features"
	"riskgate/internal/frame"
)

// ErrNotReady signals that no loadable artifact exists at the requested
// path. Callers surface it as a distinct "not ready" state rather than a
// partially initialized engine.
var ErrNotReady = errors.New("engine: artifact not ready")

const (
	preprocessorFile = "preprocessor.json"
	calibratorFile   = "calibrator.json"
	ensembleDir      = "ensemble"
)

// legacyTagRemap translates family-tag prefixes written by the previous
// package layout. Applied only after a strict load fails on tag
// resolution; it is not a general-purpose loader.
var legacyTagRemap = map[string]string{
	"riskgate/internal/models.": ensemble.TagPrefix,
}

// Engine is the assembled inference pipeline.
type Engine struct {
	deriver    *features.Deriver
	encoder    *encode.Encoder
	ensemble   *ensemble.Ensemble
	calibrator *calib.Isotonic
}

// New assembles an engine from already-fitted components. The calibrator
// may be nil, in which case raw ensemble probabilities are returned.
func New(deriver *features.Deriver, encoder *encode.Encoder, ens *ensemble.Ensemble, cal *calib.Isotonic) *Engine {
	return &Engine{deriver: deriver, encoder: encoder, ensemble: ens, calibrator: cal}
}

// HasCalibrator reports whether a fitted calibrator is attached.
func (e *Engine) HasCalibrator() bool { return e.calibrator != nil }

// PredictRaw runs the pipeline up to the ensemble and returns one raw
// probability per input row, order-preserving.
func (e *Engine) PredictRaw(batch *frame.Frame) ([]float64, error) {
	derived := e.deriver.Transform(batch)
	m, err := e.encoder.Transform(derived)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	probs, err := e.ensemble.PredictProba(m.Rows)
	if err != nil {
		return nil, fmt.Errorf("ensemble predict: %w", err)
	}
	return probs, nil
}

// PredictCalibrated returns one calibrated probability per input row. With
// no calibrator attached the raw probability is returned instead.
func (e *Engine) PredictCalibrated(batch *frame.Frame) ([]float64, error) {
	probs, err := e.PredictRaw(batch)
	if err != nil {
		return nil, err
	}
	if e.calibrator != nil {
		probs = e.calibrator.Predict(probs)
	}
	return probs, nil
}

// preprocessorBundle is the persisted deriver + encoder state. The schema
// tag records the namespace of the deriver implementation so legacy
// layouts can be detected and remapped on load.
type preprocessorBundle struct {
	Schema  string          `json:"schema"`
	Encoder *encode.Encoder `json:"encoder"`
}

const deriverSchemaTag = "riskgate/internal/features.Deriver"

// Save decomposes the engine into independently loadable sub-artifacts:
// the preprocessor bundle, the ensemble directory in its native format,
// and the optional calibrator file.
func (e *Engine) Save(path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	bundle := preprocessorBundle{Schema: deriverSchemaTag, Encoder: e.encoder}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal preprocessor: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, preprocessorFile), data, 0o600); err != nil {
		return fmt.Errorf("write preprocessor: %w", err)
	}

	if err := e.ensemble.Save(filepath.Join(path, ensembleDir)); err != nil {
		return fmt.Errorf("save ensemble: %w", err)
	}

	if e.calibrator != nil {
		data, err := json.MarshalIndent(e.calibrator, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal calibrator: %w", err)
		}
		if err := os.WriteFile(filepath.Join(path, calibratorFile), data, 0o600); err != nil {
			return fmt.Errorf("write calibrator: %w", err)
		}
	}

	log.Info().Str("path", path).Msg("inference engine saved")
	return nil
}

// Load reconstructs an engine from a persisted artifact. A missing
// artifact yields ErrNotReady. Artifacts written under the previous
// package layout are recovered through a one-time namespace remap; any
// other failure propagates unchanged.
func Load(path string) (*Engine, error) {
	bundle, err := loadPreprocessor(path)
	if err != nil {
		return nil, err
	}

	ens, err := ensemble.Load(filepath.Join(path, ensembleDir))
	if err != nil {
		var unknown *ensemble.UnknownFamilyError
		if errors.As(err, &unknown) {
			log.Info().Str("tag", unknown.Tag).Msg("legacy artifact namespace detected, remapping")
			ens, err = ensemble.LoadWithRemap(filepath.Join(path, ensembleDir), legacyTagRemap)
		}
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrNotReady, path)
			}
			return nil, fmt.Errorf("load ensemble: %w", err)
		}
	}

	var cal *calib.Isotonic
	calData, err := os.ReadFile(filepath.Join(path, calibratorFile))
	switch {
	case err == nil:
		cal = &calib.Isotonic{}
		if err := json.Unmarshal(calData, cal); err != nil {
			return nil, fmt.Errorf("parse calibrator: %w", err)
		}
	case os.IsNotExist(err):
		// Valid state: inference falls back to raw probabilities.
		cal = nil
	default:
		return nil, fmt.Errorf("read calibrator: %w", err)
	}

	log.Info().
		Str("path", path).
		Bool("calibrated", cal != nil).
		Msg("inference engine loaded")
	return New(features.NewDeriver(), bundle.Encoder, ens, cal), nil
}

func loadPreprocessor(path string) (*preprocessorBundle, error) {
	data, err := os.ReadFile(filepath.Join(path, preprocessorFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotReady, path)
		}
		return nil, fmt.Errorf("read preprocessor: %w", err)
	}

	var bundle preprocessorBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("parse preprocessor: %w", err)
	}
	if bundle.Encoder == nil || !bundle.Encoder.Fitted {
		return nil, fmt.Errorf("%w: preprocessor bundle is not fitted", ErrNotReady)
	}
	if bundle.Schema != deriverSchemaTag && !legacySchema(bundle.Schema) {
		return nil, fmt.Errorf("preprocessor schema %q is not loadable", bundle.Schema)
	}
	return &bundle, nil
}

// legacySchema reports whether the tag belongs to the previous package
// layout, whose bundles are otherwise structurally identical.
func legacySchema(tag string) bool {
	for old := range legacyTagRemap {
		if strings.HasPrefix(tag, old) {
			return true
		}
	}
	return false
}
