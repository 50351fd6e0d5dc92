package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"riskgate/internal/calib"
	"riskgate/internal/cfg"
	"riskgate/internal/dataset"
	"riskgate/internal/encode"
	"riskgate/internal/engine"
	"riskgate/internal/ensemble"
	"riskgate/internal/eval"
	"riskgate/internal/features"
	"riskgate/internal/frame"
	"riskgate/internal/registry"
)

func main() {
	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	split, err := prepareData(ctx, c)
	if err != nil {
		log.Fatal().Err(err).Msg("data preparation failed")
	}
	log.Info().
		Int("train", split.Train.Rows()).
		Int("val", split.Val.Rows()).
		Int("test", split.Test.Rows()).
		Msg("dataset split")

	deriver := features.NewDeriver()
	numeric := append(append([]string{}, dataset.NumericColumns...), features.EngineeredColumns...)
	encoder := encode.New(numeric, features.CategoricalColumns)

	trainDerived := deriver.Transform(split.Train)
	if err := encoder.Fit(trainDerived); err != nil {
		log.Fatal().Err(err).Msg("encoder fit failed")
	}

	trainX, err := encodeFrame(encoder, trainDerived)
	if err != nil {
		log.Fatal().Err(err).Msg("encode train set failed")
	}

	ens := ensemble.New(ensemble.Config{
		NFolds:    c.Folds,
		Seed:      c.Seed,
		GBDT:      c.GBDT,
		Oblivious: c.Oblivious,
	})
	start := time.Now()
	if err := ens.Fit(trainX, split.TrainY, encoder.OutputColumns()); err != nil {
		log.Fatal().Err(err).Msg("ensemble fit failed")
	}
	log.Info().
		Int("models", ens.NumModels()).
		Dur("elapsed", time.Since(start)).
		Msg("ensemble trained")

	var cal *calib.Isotonic
	if c.Calibrate {
		valX, err := encodeFrame(encoder, deriver.Transform(split.Val))
		if err != nil {
			log.Fatal().Err(err).Msg("encode validation set failed")
		}
		valProbs, err := ens.PredictProba(valX)
		if err != nil {
			log.Fatal().Err(err).Msg("validation scoring failed")
		}
		cal = &calib.Isotonic{}
		if err := cal.Fit(valProbs, split.ValY); err != nil {
			log.Fatal().Err(err).Msg("calibrator fit failed")
		}
		log.Info().Msg("isotonic calibrator fitted")
	}

	eng := engine.New(deriver, encoder, ens, cal)

	report, err := evaluate(eng, split.Test, split.TestY, c.CalibBins)
	if err != nil {
		log.Fatal().Err(err).Msg("evaluation failed")
	}
	log.Info().
		Float64("accuracy", report.Accuracy).
		Float64("precision", report.Precision).
		Float64("recall", report.Recall).
		Float64("f1", report.F1).
		Float64("roc_auc", report.ROCAUC).
		Float64("log_loss", report.LogLoss).
		Float64("ece", report.ECE).
		Msg("held-out evaluation")

	gate := c.Gate.Check(report)
	if !gate.Passed {
		for _, f := range gate.Failures {
			log.Error().Str("check", f).Msg("quality gate failure")
		}
		log.Fatal().Msg("quality gate failed, artifact not published")
	}

	if err := eng.Save(c.ArtifactPath); err != nil {
		log.Fatal().Err(err).Msg("artifact save failed")
	}

	reg, err := registry.New(c.RegistryDir)
	if err != nil {
		log.Fatal().Err(err).Msg("registry open failed")
	}
	version, err := reg.Add(c.ArtifactPath, report)
	if err != nil {
		log.Fatal().Err(err).Msg("registry update failed")
	}
	if err := reg.Activate(version); err != nil {
		log.Fatal().Err(err).Msg("version activation failed")
	}

	log.Info().
		Str("version", version).
		Str("path", c.ArtifactPath).
		Msg("training complete")
}

func prepareData(ctx context.Context, c cfg.Settings) (*dataset.Split, error) {
	fetcher := dataset.NewFetcher(c.DatasetURL, c.FetchTimeout)
	if err := fetcher.Ensure(ctx, c.DatasetPath); err != nil {
		return nil, err
	}
	f, y, err := dataset.Load(c.DatasetPath)
	if err != nil {
		return nil, err
	}
	return dataset.MakeSplit(f, y, c.ValFraction, c.TestFraction, c.Seed)
}

func encodeFrame(encoder *encode.Encoder, f *frame.Frame) ([][]float64, error) {
	m, err := encoder.Transform(f)
	if err != nil {
		return nil, err
	}
	return m.Rows, nil
}

func evaluate(eng *engine.Engine, test *frame.Frame, testY []float64, bins int) (eval.Report, error) {
	probs, err := eng.PredictCalibrated(test)
	if err != nil {
		return eval.Report{}, err
	}
	report, err := eval.Evaluate(testY, probs)
	if err != nil {
		return eval.Report{}, err
	}
	ece, err := calib.ComputeECE(testY, probs, bins)
	if err != nil {
		return eval.Report{}, err
	}
	report.ECE = ece
	return report, nil
}
