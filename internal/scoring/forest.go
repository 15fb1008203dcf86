package scoring

import (
	"fmt"
	"math"
	"math/rand/v2"
)

const eulerGamma = 0.5772156649

// Node is one split (or leaf) of an isolation tree. Leaves have no children
// and carry the number of training samples that reached them.
type Node struct {
	Feature int     `json:"f"`
	Split   float64 `json:"s"`
	Size    int     `json:"n"`
	Left    *Node   `json:"l,omitempty"`
	Right   *Node   `json:"r,omitempty"`
}

func (n *Node) isLeaf() bool {
	return n.Left == nil && n.Right == nil
}

// IsolationForest is an ensemble of random isolation trees. Anomalous points
// are isolated in fewer splits, so their average path length is short.
type IsolationForest struct {
	NumTrees    int     `json:"num_trees"`
	SampleSize  int     `json:"sample_size"`
	NumFeatures int     `json:"num_features"`
	Trees       []*Node `json:"trees"`
}

func NewIsolationForest(numTrees, sampleSize int) *IsolationForest {
	if numTrees <= 0 {
		numTrees = 100
	}
	if sampleSize <= 0 {
		sampleSize = 256
	}
	return &IsolationForest{
		NumTrees:   numTrees,
		SampleSize: sampleSize,
	}
}

// Fit grows NumTrees trees, each on a subsample drawn without replacement.
// SampleSize is lowered to len(data) when the data set is smaller.
func (f *IsolationForest) Fit(data [][]float64, rng *rand.Rand) error {
	if len(data) == 0 {
		return ErrEmptyTrainingSet
	}
	numFeatures := len(data[0])
	if numFeatures == 0 {
		return fmt.Errorf("%w: zero-length samples", ErrDimensionMismatch)
	}
	for i, row := range data {
		if len(row) != numFeatures {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrDimensionMismatch, i, len(row), numFeatures)
		}
	}

	if f.SampleSize > len(data) {
		f.SampleSize = len(data)
	}
	f.NumFeatures = numFeatures
	maxDepth := int(math.Ceil(math.Log2(float64(max(f.SampleSize, 2)))))

	f.Trees = make([]*Node, f.NumTrees)
	for i := range f.Trees {
		f.Trees[i] = buildTree(subsample(data, f.SampleSize, rng), 0, maxDepth, rng)
	}
	return nil
}

// ScoreSamples returns the raw outlier score of x using the "higher is more
// normal" convention: -2^(-E[h(x)]/c(n)). Values lie in [-1, 0).
func (f *IsolationForest) ScoreSamples(x []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, ErrNotFitted
	}
	if len(x) < f.NumFeatures {
		return 0, fmt.Errorf("%w: got %d features, want %d", ErrDimensionMismatch, len(x), f.NumFeatures)
	}

	total := 0.0
	for _, tree := range f.Trees {
		h, err := pathLength(tree, x)
		if err != nil {
			return 0, err
		}
		total += h
	}
	avg := total / float64(len(f.Trees))

	c := averagePathLength(f.SampleSize)
	if c == 0 {
		return -0.5, nil
	}
	return -math.Pow(2, -avg/c), nil
}

func (f *IsolationForest) validate() error {
	if len(f.Trees) == 0 {
		return ErrNotFitted
	}
	if f.NumFeatures <= 0 {
		return fmt.Errorf("%w: forest declares %d features", ErrDimensionMismatch, f.NumFeatures)
	}
	return nil
}

func buildTree(data [][]float64, depth, maxDepth int, rng *rand.Rand) *Node {
	if len(data) <= 1 || depth >= maxDepth {
		return &Node{Size: len(data)}
	}

	feature, lo, hi, ok := pickSplitFeature(data, rng)
	if !ok {
		return &Node{Size: len(data)}
	}
	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, row := range data {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &Node{
		Feature: feature,
		Split:   split,
		Size:    len(data),
		Left:    buildTree(left, depth+1, maxDepth, rng),
		Right:   buildTree(right, depth+1, maxDepth, rng),
	}
}

// pickSplitFeature tries features in random order and returns the first one
// that is not constant over data.
func pickSplitFeature(data [][]float64, rng *rand.Rand) (int, float64, float64, bool) {
	for _, feature := range rng.Perm(len(data[0])) {
		lo, hi := data[0][feature], data[0][feature]
		for _, row := range data[1:] {
			lo = math.Min(lo, row[feature])
			hi = math.Max(hi, row[feature])
		}
		if lo < hi {
			return feature, lo, hi, true
		}
	}
	return 0, 0, 0, false
}

func pathLength(node *Node, x []float64) (float64, error) {
	depth := 0.0
	for !node.isLeaf() {
		if node.Feature < 0 || node.Feature >= len(x) {
			return 0, fmt.Errorf("%w: split on feature %d", ErrDimensionMismatch, node.Feature)
		}
		if node.Left == nil || node.Right == nil {
			return 0, fmt.Errorf("corrupt isolation tree at depth %.0f", depth)
		}
		if x[node.Feature] < node.Split {
			node = node.Left
		} else {
			node = node.Right
		}
		depth++
	}
	return depth + averagePathLength(node.Size), nil
}

// averagePathLength is c(n), the mean path length of an unsuccessful search
// in a binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	return 2.0*(math.Log(float64(n-1))+eulerGamma) - 2.0*float64(n-1)/float64(n)
}

func subsample(data [][]float64, n int, rng *rand.Rand) [][]float64 {
	if n >= len(data) {
		return data
	}
	sample := make([][]float64, n)
	for i, idx := range rng.Perm(len(data))[:n] {
		sample[i] = data[idx]
	}
	return sample
}
