package anomaly

import (
	"math"
	"math/rand"
)

// isolationForest is a tree-ensemble isolation model. Points that isolate in
// few random splits get short average path lengths and therefore high anomaly
// scores. Scores follow the canonical normalization s = 2^(-E[h]/c(psi)),
// which is already "higher = more anomalous" — no inversion needed.
type isolationForest struct {
	trees      []*isolationNode
	sampleSize int
}

type isolationNode struct {
	left, right *isolationNode
	splitFeat   int
	splitValue  float64
	size        int // external node only
}

const (
	defaultTrees     = 100
	defaultSubsample = 256
)

// fitForest builds nTrees isolation trees over subsamples of the matrix.
// All randomness comes from rng, so a fixed seed gives a fixed forest.
func fitForest(matrix [][]float64, nTrees int, rng *rand.Rand) *isolationForest {
	psi := len(matrix)
	if psi > defaultSubsample {
		psi = defaultSubsample
	}
	maxDepth := int(math.Ceil(math.Log2(float64(psi) + 1)))

	f := &isolationForest{sampleSize: psi}
	for t := 0; t < nTrees; t++ {
		sample := make([][]float64, psi)
		for i := range sample {
			sample[i] = matrix[rng.Intn(len(matrix))]
		}
		f.trees = append(f.trees, buildTree(sample, 0, maxDepth, rng))
	}
	return f
}

func buildTree(data [][]float64, depth, maxDepth int, rng *rand.Rand) *isolationNode {
	if len(data) <= 1 || depth >= maxDepth {
		return &isolationNode{size: len(data)}
	}

	// Only features with spread can split; constant data is external.
	nFeat := len(data[0])
	splittable := make([]int, 0, nFeat)
	for j := 0; j < nFeat; j++ {
		lo, hi := featureRange(data, j)
		if hi > lo {
			splittable = append(splittable, j)
		}
	}
	if len(splittable) == 0 {
		return &isolationNode{size: len(data)}
	}

	feat := splittable[rng.Intn(len(splittable))]
	lo, hi := featureRange(data, feat)
	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, row := range data {
		if row[feat] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isolationNode{size: len(data)}
	}

	return &isolationNode{
		splitFeat:  feat,
		splitValue: split,
		left:       buildTree(left, depth+1, maxDepth, rng),
		right:      buildTree(right, depth+1, maxDepth, rng),
	}
}

func featureRange(data [][]float64, feat int) (lo, hi float64) {
	lo, hi = data[0][feat], data[0][feat]
	for _, row := range data[1:] {
		if row[feat] < lo {
			lo = row[feat]
		}
		if row[feat] > hi {
			hi = row[feat]
		}
	}
	return lo, hi
}

// score returns the anomaly score of one point in (0, 1).
func (f *isolationForest) score(row []float64) float64 {
	// c(1) is zero; a one-point forest carries no isolation signal, so
	// every point gets the neutral midpoint instead of 2^(-0/0).
	if f.sampleSize <= 1 {
		return 0.5
	}
	var total float64
	for _, tree := range f.trees {
		total += pathLength(tree, row, 0)
	}
	avg := total / float64(len(f.trees))
	return math.Pow(2, -avg/avgPathLength(f.sampleSize))
}

func pathLength(n *isolationNode, row []float64, depth float64) float64 {
	if n.left == nil {
		return depth + avgPathLength(n.size)
	}
	if row[n.splitFeat] < n.splitValue {
		return pathLength(n.left, row, depth+1)
	}
	return pathLength(n.right, row, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search over n points; it normalizes tree depths across sample sizes.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	const eulerMascheroni = 0.5772156649
	h := math.Log(float64(n-1)) + eulerMascheroni
	return 2*h - 2*float64(n-1)/float64(n)
}
