package scoring

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"threat-detector/internal/features"

	"github.com/goccy/go-json"
)

const ArtifactVersion = 1

var (
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
	ErrNotFitted         = errors.New("model not fitted")
	ErrEmptyTrainingSet  = errors.New("empty training set")
)

// Model is the scoring function a trained artifact exposes.
type Model interface {
	NumFeatures() int
	ScoreSamples(x []float64) (float64, error)
}

// Transformer is the optional input scaling applied before scoring.
type Transformer interface {
	Transform(x []float64) ([]float64, error)
}

// QualityMetrics are offline evaluation figures carried for observability.
type QualityMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Samples   int     `json:"samples"`
}

// Artifact is the serialized output of offline training: a fitted isolation
// forest, an optional scaler, the declared feature schema and metrics.
// It is read-only once loaded.
type Artifact struct {
	Version      int              `json:"version"`
	Baseline     bool             `json:"baseline"`
	FeatureNames []string         `json:"feature_names"`
	Forest       *IsolationForest `json:"forest"`
	Scaler       *StandardScaler  `json:"scaler,omitempty"`
	Metrics      *QualityMetrics  `json:"metrics,omitempty"`
	TrainedAt    time.Time        `json:"trained_at"`
}

func (a *Artifact) NumFeatures() int {
	return a.Forest.NumFeatures
}

func (a *Artifact) ScoreSamples(x []float64) (float64, error) {
	return a.Forest.ScoreSamples(x)
}

// Transformer returns the artifact scaler, or nil when none was fitted.
func (a *Artifact) Transformer() Transformer {
	if a.Scaler == nil {
		return nil
	}
	return a.Scaler
}

func (a *Artifact) Validate() error {
	if a.Forest == nil {
		return fmt.Errorf("artifact has no forest: %w", ErrNotFitted)
	}
	if err := a.Forest.validate(); err != nil {
		return err
	}
	if a.Scaler != nil && len(a.Scaler.Mean) != a.Forest.NumFeatures {
		return fmt.Errorf("%w: scaler has %d features, forest %d", ErrDimensionMismatch, len(a.Scaler.Mean), a.Forest.NumFeatures)
	}
	return nil
}

// LoadArtifact reads and validates a JSON artifact written by Save.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact %s: %w", path, err)
	}

	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact %s: %w", path, err)
	}
	if art.Version != ArtifactVersion {
		return nil, fmt.Errorf("unsupported model artifact version %d", art.Version)
	}
	if err := art.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model artifact %s: %w", path, err)
	}
	return &art, nil
}

func (a *Artifact) Save(path string) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid artifact: %w", err)
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal model artifact: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create artifact directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model artifact %s: %w", path, err)
	}
	return nil
}

const (
	baselineSamples    = 1000
	baselineTrees      = 100
	baselineSampleSize = 256
)

// NewBaselineArtifact builds the untrained fallback model: a forest fitted on
// standard-normal samples drawn from seed. The same seed always yields the
// same forest.
func NewBaselineArtifact(seed uint64) *Artifact {
	rng := newRand(seed)

	data := make([][]float64, baselineSamples)
	for i := range data {
		row := make([]float64, features.Size)
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		data[i] = row
	}

	forest := NewIsolationForest(baselineTrees, baselineSampleSize)
	// Fit only fails on empty or ragged input.
	_ = forest.Fit(data, rng)

	return &Artifact{
		Version:      ArtifactVersion,
		Baseline:     true,
		FeatureNames: features.Names,
		Forest:       forest,
	}
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
