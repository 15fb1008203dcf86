// Package detector fuses the anomaly scorer and the rule engine into a
// per-event verdict.
package detector

import (
	"context"
	"fmt"
	"time"

	"threat-detector/internal/features"
	"threat-detector/internal/metrics"
	"threat-detector/internal/model"
	"threat-detector/internal/rules"
	"threat-detector/internal/scoring"

	"github.com/sirupsen/logrus"
)

// Scorer is the anomaly scoring dependency. *scoring.Scorer satisfies it.
type Scorer interface {
	Score(v features.Vector) float64
	ModelInfo() scoring.ModelInfo
}

// RuleEvaluator is the rule dependency. *rules.Engine satisfies it.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, ev *model.Event) model.RuleMatch
}

type Detector struct {
	scorer  Scorer
	rules   RuleEvaluator
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

func New(scorer Scorer, evaluator RuleEvaluator, m *metrics.Metrics, logger *logrus.Logger) *Detector {
	m.SetModelTrained(scorer.ModelInfo().Trained)
	return &Detector{
		scorer:  scorer,
		rules:   evaluator,
		metrics: m,
		logger:  logger,
	}
}

// NewFromConfig wires a scorer and the default rule engine.
func NewFromConfig(scorer *scoring.Scorer, engine *rules.Engine, m *metrics.Metrics, logger *logrus.Logger) *Detector {
	scorer.SetFailureHook(func(error) { m.ScoringFailed() })
	return New(scorer, engine, m, logger)
}

// Detect classifies one event. It always returns a result: a panic anywhere
// below yields an unmatched verdict carrying whatever score was computed,
// or zero if scoring itself panicked.
func (d *Detector) Detect(ctx context.Context, ev *model.Event) (result model.DetectionResult) {
	start := time.Now()
	if ev == nil {
		ev = &model.Event{}
	}

	var score float64
	defer func() {
		if r := recover(); r != nil {
			d.metrics.DetectionPanicked()
			d.logger.Errorf("Detection panicked for event from %s: %v", ev.SourceAddr, r)
			result = Classify(score, model.RuleMatch{})
		}
		d.metrics.ObserveDetection(ev.EventType, result.AnomalyScore, result.ThreatType, result.RuleName, time.Since(start))
	}()

	score = d.scorer.Score(features.Extract(ev))
	match := d.rules.Evaluate(ctx, ev)
	result = Classify(score, match)

	if result.IsThreat {
		d.logger.WithFields(logrus.Fields{
			"source_addr":   ev.SourceAddr,
			"threat_type":   result.ThreatType,
			"anomaly_score": fmt.Sprintf("%.3f", result.AnomalyScore),
			"confidence":    result.Confidence,
		}).Info("Threat detected")
	}
	return result
}

func (d *Detector) ModelInfo() scoring.ModelInfo {
	return d.scorer.ModelInfo()
}
