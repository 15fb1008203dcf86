// Package scoring wraps a pre-trained isolation forest and maps its raw
// outlier score onto a bounded anomaly score. It degrades to a deterministic
// baseline model when no trained artifact is available.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"threat-detector/internal/features"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultScore is substituted whenever scoring fails.
	DefaultScore = 0.5

	DefaultTrainedOffset  = -0.05
	DefaultBaselineOffset = -0.15
	DefaultBaselineSeed   = 42

	JitterAmplitude = 0.05

	ModeTrained  = "trained"
	ModeBaseline = "baseline"
)

var ErrNonFiniteScore = errors.New("model returned a non-finite score")

type Config struct {
	TrainedOffset  float64
	BaselineOffset float64
	// DemoMode adds bounded random jitter to baseline scores. Off by default
	// so scoring stays deterministic.
	DemoMode     bool
	BaselineSeed uint64
}

func DefaultConfig() Config {
	return Config{
		TrainedOffset:  DefaultTrainedOffset,
		BaselineOffset: DefaultBaselineOffset,
		BaselineSeed:   DefaultBaselineSeed,
	}
}

// ModelInfo describes the active model for status endpoints.
type ModelInfo struct {
	Mode        string          `json:"mode"`
	Trained     bool            `json:"trained"`
	NumFeatures int             `json:"num_features"`
	Source      string          `json:"source,omitempty"`
	TrainedAt   *time.Time      `json:"trained_at,omitempty"`
	Metrics     *QualityMetrics `json:"metrics,omitempty"`
	DemoMode    bool            `json:"demo_mode"`
	Note        string          `json:"note,omitempty"`
}

// Scorer is safe for concurrent use; the model is never mutated after
// construction.
type Scorer struct {
	model     Model
	scaler    Transformer
	trained   bool
	offset    float64
	jitter    bool
	info      ModelInfo
	logger    *logrus.Logger
	onFailure func(error)
}

// NewScorer wraps art. A nil artifact selects the baseline model.
func NewScorer(art *Artifact, cfg Config, logger *logrus.Logger) *Scorer {
	if art == nil {
		art = NewBaselineArtifact(cfg.BaselineSeed)
	}
	s := newScorer(art, art.Transformer(), !art.Baseline, cfg, logger)
	s.info.Metrics = art.Metrics
	if !art.TrainedAt.IsZero() {
		trainedAt := art.TrainedAt
		s.info.TrainedAt = &trainedAt
	}
	return s
}

// LoadScorer loads the artifact at path. A missing or invalid artifact is
// not fatal: the scorer falls back to the baseline model and reports it via
// ModelInfo.
func LoadScorer(path string, cfg Config, logger *logrus.Logger) *Scorer {
	if path == "" {
		logger.Warn("No model artifact configured, running with untrained baseline model")
		return NewScorer(nil, cfg, logger)
	}

	art, err := LoadArtifact(path)
	if err != nil {
		logger.Warnf("Model artifact unavailable (%v), running with untrained baseline model", err)
		return NewScorer(nil, cfg, logger)
	}

	s := NewScorer(art, cfg, logger)
	s.info.Source = path
	logger.Infof("Loaded %s model from %s (%d features)", s.info.Mode, path, s.info.NumFeatures)
	return s
}

func newScorer(model Model, scaler Transformer, trained bool, cfg Config, logger *logrus.Logger) *Scorer {
	s := &Scorer{
		model:   model,
		scaler:  scaler,
		trained: trained,
		logger:  logger,
	}

	s.info = ModelInfo{
		Trained:     trained,
		NumFeatures: model.NumFeatures(),
		DemoMode:    cfg.DemoMode && !trained,
	}
	if trained {
		s.offset = cfg.TrainedOffset
		s.info.Mode = ModeTrained
	} else {
		s.offset = cfg.BaselineOffset
		s.jitter = cfg.DemoMode
		s.info.Mode = ModeBaseline
		s.info.Note = "untrained baseline model: scores are uncalibrated and low-confidence"
	}
	return s
}

// SetFailureHook registers a callback for scoring failures. It must be set
// before the scorer is shared between goroutines.
func (s *Scorer) SetFailureHook(hook func(error)) {
	s.onFailure = hook
}

func (s *Scorer) ModelInfo() ModelInfo {
	return s.info
}

func (s *Scorer) Trained() bool {
	return s.trained
}

// Score returns an anomaly score in [0,1]; higher is more unusual. It never
// fails: any internal error yields DefaultScore.
func (s *Scorer) Score(v features.Vector) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			score = s.fail(fmt.Errorf("scoring panic: %v", r))
		}
	}()

	raw, err := s.raw(v)
	if err != nil {
		return s.fail(err)
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return s.fail(ErrNonFiniteScore)
	}

	score = -raw + s.offset
	if s.jitter {
		score += (rand.Float64()*2 - 1) * JitterAmplitude
	}
	return clamp01(score)
}

func (s *Scorer) raw(v features.Vector) (float64, error) {
	x := []float64(v)
	if s.trained {
		x = reconcile(x, s.model.NumFeatures())
		if s.scaler != nil {
			scaled, err := s.scaler.Transform(x)
			if err != nil {
				return 0, fmt.Errorf("failed to scale features: %w", err)
			}
			x = scaled
		}
	}
	return s.model.ScoreSamples(x)
}

func (s *Scorer) fail(err error) float64 {
	s.logger.Warnf("[Scorer] Scoring failed, using default score %.2f: %v", DefaultScore, err)
	if s.onFailure != nil {
		s.onFailure(err)
	}
	return DefaultScore
}

// reconcile zero-pads or truncates x to n features.
func reconcile(x []float64, n int) []float64 {
	if len(x) == n {
		return x
	}
	out := make([]float64, n)
	copy(out, x)
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
