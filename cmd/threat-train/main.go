package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"threat-detector/internal/detector"
	"threat-detector/internal/scoring"
	"threat-detector/internal/utils"

	"github.com/prometheus/common/version"
	"github.com/sirupsen/logrus"
)

const program = "threat-train"

func main() {
	var (
		input       = flag.String("input", "", "JSON-lines training events (required)")
		evalFile    = flag.String("eval", "", "Labelled JSON-lines events for evaluation")
		output      = flag.String("output", "models/threat_model.json", "Artifact output path")
		numTrees    = flag.Int("trees", 100, "Number of isolation trees")
		sampleSize  = flag.Int("sample-size", 256, "Subsample size per tree")
		seed        = flag.Uint64("seed", scoring.DefaultBaselineSeed, "Random seed")
		scale       = flag.Bool("scale", true, "Fit a standard scaler before the forest")
		logLevel    = flag.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Print(program))
		return
	}

	logger := utils.NewLogger(*logLevel, "text")
	if *input == "" {
		logger.Error("-input is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := scoring.TrainOptions{NumTrees: *numTrees, SampleSize: *sampleSize, Seed: *seed, Scale: *scale}
	if err := run(ctx, *input, *evalFile, *output, opts, logger); err != nil {
		logger.Errorf("Training failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, input, evalFile, output string, opts scoring.TrainOptions, logger *logrus.Logger) error {
	now := time.Now()

	train, err := readDatasetFile(ctx, input, now)
	if err != nil {
		return err
	}
	benign := train.benign()
	logger.WithFields(logrus.Fields{
		"events":    len(train.samples),
		"benign":    len(benign),
		"unlabeled": train.unlabeled,
		"malformed": train.malformed,
	}).Info("Loaded training events")

	art, err := scoring.Train(benign, opts)
	if err != nil {
		return fmt.Errorf("failed to fit model: %w", err)
	}

	if evalFile != "" {
		eval, err := readDatasetFile(ctx, evalFile, now)
		if err != nil {
			return err
		}
		if eval.unlabeled > 0 {
			logger.Warnf("%d evaluation events carry no label and count as benign", eval.unlabeled)
		}

		scorer := scoring.NewScorer(art, scoring.DefaultConfig(), logger)
		metrics := scoring.Evaluate(scorer, eval.labelled(), detector.AnomalyThreshold)
		art.Metrics = &metrics

		logger.WithFields(logrus.Fields{
			"accuracy":  fmt.Sprintf("%.4f", metrics.Accuracy),
			"precision": fmt.Sprintf("%.4f", metrics.Precision),
			"recall":    fmt.Sprintf("%.4f", metrics.Recall),
			"f1":        fmt.Sprintf("%.4f", metrics.F1),
			"samples":   metrics.Samples,
		}).Info("Evaluation complete")
	}

	if err := art.Save(output); err != nil {
		return err
	}
	logger.Infof("Model saved to %s", output)
	return nil
}
