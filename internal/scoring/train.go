package scoring

import (
	"time"

	"threat-detector/internal/features"
)

// TrainOptions control offline fitting. Zero values select the defaults used
// by the baseline model.
type TrainOptions struct {
	NumTrees   int
	SampleSize int
	Seed       uint64
	// Scale fits a StandardScaler and trains the forest on scaled input.
	Scale bool
}

// Train fits a new artifact on vectors, which are expected to be mostly
// benign traffic.
func Train(vectors []features.Vector, opts TrainOptions) (*Artifact, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyTrainingSet
	}

	data := make([][]float64, len(vectors))
	for i, v := range vectors {
		data[i] = []float64(v)
	}

	art := &Artifact{
		Version:      ArtifactVersion,
		FeatureNames: features.Names,
		TrainedAt:    time.Now().UTC(),
	}

	if opts.Scale {
		scaler := &StandardScaler{}
		if err := scaler.Fit(data); err != nil {
			return nil, err
		}
		scaled := make([][]float64, len(data))
		for i, row := range data {
			out, err := scaler.Transform(row)
			if err != nil {
				return nil, err
			}
			scaled[i] = out
		}
		data = scaled
		art.Scaler = scaler
	}

	forest := NewIsolationForest(opts.NumTrees, opts.SampleSize)
	if err := forest.Fit(data, newRand(opts.Seed)); err != nil {
		return nil, err
	}
	art.Forest = forest
	return art, nil
}

// LabelledVector is a feature vector with its ground truth.
type LabelledVector struct {
	Vector features.Vector
	Attack bool
}

// Evaluate scores samples with s and compares "score > threshold" against
// the labels. Attack is the positive class.
func Evaluate(s *Scorer, samples []LabelledVector, threshold float64) QualityMetrics {
	var tp, fp, tn, fn int
	for _, sample := range samples {
		predicted := s.Score(sample.Vector) > threshold
		switch {
		case predicted && sample.Attack:
			tp++
		case predicted && !sample.Attack:
			fp++
		case !predicted && sample.Attack:
			fn++
		default:
			tn++
		}
	}

	m := QualityMetrics{Samples: len(samples)}
	if m.Samples > 0 {
		m.Accuracy = float64(tp+tn) / float64(m.Samples)
	}
	m.Precision = ratio(tp, tp+fp)
	m.Recall = ratio(tp, tp+fn)
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
