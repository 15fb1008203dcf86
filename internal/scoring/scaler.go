package scoring

import (
	"fmt"
	"math"
)

// StandardScaler centers each feature on the training mean and divides by
// the training standard deviation.
type StandardScaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

func (s *StandardScaler) Fit(data [][]float64) error {
	if len(data) == 0 {
		return ErrEmptyTrainingSet
	}

	n := len(data[0])
	s.Mean = make([]float64, n)
	s.Std = make([]float64, n)

	for _, row := range data {
		if len(row) != n {
			return fmt.Errorf("%w: row has %d features, want %d", ErrDimensionMismatch, len(row), n)
		}
		for i, v := range row {
			s.Mean[i] += v
		}
	}
	for i := range s.Mean {
		s.Mean[i] /= float64(len(data))
	}

	for _, row := range data {
		for i, v := range row {
			d := v - s.Mean[i]
			s.Std[i] += d * d
		}
	}
	for i := range s.Std {
		s.Std[i] = math.Sqrt(s.Std[i] / float64(len(data)))
		if s.Std[i] == 0 {
			s.Std[i] = 1.0
		}
	}
	return nil
}

func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if len(s.Mean) == 0 {
		return nil, ErrNotFitted
	}
	if len(x) != len(s.Mean) || len(s.Std) != len(s.Mean) {
		return nil, fmt.Errorf("%w: got %d features, scaler fitted on %d", ErrDimensionMismatch, len(x), len(s.Mean))
	}

	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.Mean[i]) / s.Std[i]
	}
	return out, nil
}
