// Package tensorops implements the dense float forward/backward math the
// GNN substrate is built on: projection, attention, aggregation, and
// activations, plus their gradients. Every operation is pure and
// allocation-explicit (callers own accumulators) and no operation
// panics on empty input; it returns a zero tensor of the expected shape
// instead.
//
// Matrices are row-major [O x I] float64 slices-of-slices, matching the
// shape gonum.org/v1/gonum/mat.Dense exposes via RawRowView, which this
// package uses for the actual projection.
package tensorops

import (
	"math"

	"github.com/cogpy/causalreason/core/contracts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const epsilon = 1e-8

// Project computes y_i = sum_j W_ij * x_j. W is row-major [O x I]: O rows
// of length len(x). Returns contracts.KindDimension if shapes disagree.
func Project(x []float64, w [][]float64) ([]float64, error) {
	if len(w) == 0 {
		return []float64{}, nil
	}
	i := len(w[0])
	if len(x) != i {
		return nil, contracts.NewError(contracts.KindDimension, "tensorops.Project", contracts.ErrBadLen(len(x), i))
	}
	o := len(w)
	dense := mat.NewDense(o, i, flatten(w))
	xv := mat.NewVecDense(i, x)
	var yv mat.VecDense
	yv.MulVec(dense, xv)
	return yv.RawVector().Data, nil
}

// flatten row-major [O x I] into a single slice gonum's Dense accepts.
func flatten(w [][]float64) []float64 {
	if len(w) == 0 {
		return nil
	}
	cols := len(w[0])
	out := make([]float64, 0, len(w)*cols)
	for _, row := range w {
		out = append(out, row...)
	}
	return out
}

// Softmax applies the max-shifted softmax for numerical stability. The
// result sums to 1.0 within 1e-6.
func Softmax(z []float64) []float64 {
	if len(z) == 0 {
		return []float64{}
	}
	maxv := floats.Max(z)
	out := make([]float64, len(z))
	var sum float64
	for i, v := range z {
		e := math.Exp(v - maxv)
		out[i] = e
		sum += e
	}
	if sum == 0 {
		sum = epsilon
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// AttentionScale is the default 1/sqrt(d) scale factor for dot-product
// attention.
func AttentionScale(d int) float64 {
	if d <= 0 {
		return 1
	}
	return 1 / math.Sqrt(float64(d))
}

// Attention computes softmax(Q.K^T * scale) . V for a single query Q
// against neighbor keys/values K, V (one row per neighbor). When K has a
// single row this is the "single-score" case; with multiple rows the
// backward pass (AttentionBackward) returns a separate dK and dV row for
// each neighbor.
func Attention(q []float64, k, v [][]float64, scale float64) ([]float64, []float64, error) {
	if len(k) != len(v) {
		return nil, nil, contracts.NewError(contracts.KindDimension, "tensorops.Attention", contracts.ErrBadLen(len(v), len(k)))
	}
	if len(k) == 0 {
		return make([]float64, len(q)), []float64{}, nil
	}
	scores := make([]float64, len(k))
	for i, ki := range k {
		if len(ki) != len(q) {
			return nil, nil, contracts.NewError(contracts.KindDimension, "tensorops.Attention", contracts.ErrBadLen(len(ki), len(q)))
		}
		scores[i] = floats.Dot(q, ki) * scale
	}
	weights := Softmax(scores)
	dim := len(v[0])
	out := make([]float64, dim)
	for i, wi := range weights {
		for j := 0; j < dim && j < len(v[i]); j++ {
			out[j] += wi * v[i][j]
		}
	}
	return out, weights, nil
}

// AggregateMean averages neighbor feature vectors along the feature axis.
// AggregateWeighted does the same with per-neighbor weights. Both return
// an empty slice when neighbors is empty.
func AggregateMean(neighbors [][]float64) []float64 {
	return AggregateWeighted(neighbors, nil)
}

func AggregateWeighted(neighbors [][]float64, weights []float64) []float64 {
	if len(neighbors) == 0 {
		return []float64{}
	}
	dim := len(neighbors[0])
	out := make([]float64, dim)
	totalWeight := 0.0
	for i, n := range neighbors {
		w := 1.0
		if weights != nil && i < len(weights) {
			w = weights[i]
		}
		for j := 0; j < dim && j < len(n); j++ {
			out[j] += w * n[j]
		}
		totalWeight += w
	}
	if weights == nil {
		totalWeight = float64(len(neighbors))
	}
	if totalWeight == 0 {
		return out
	}
	for j := range out {
		out[j] /= totalWeight
	}
	return out
}

// Activation kinds and their forward functions.
type Activation int

const (
	ReLU Activation = iota
	LeakyReLU
	Tanh
	Sigmoid
)

const leakyAlpha = 0.01

// Apply runs the forward activation elementwise.
func (a Activation) Apply(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = a.applyOne(v)
	}
	return out
}

func (a Activation) applyOne(v float64) float64 {
	switch a {
	case ReLU:
		if v > 0 {
			return v
		}
		return 0
	case LeakyReLU:
		if v > 0 {
			return v
		}
		return leakyAlpha * v
	case Tanh:
		return math.Tanh(v)
	case Sigmoid:
		return 1 / (1 + math.Exp(-v))
	default:
		return v
	}
}

// Normalize L2-normalizes a vector, leaving a zero vector unchanged.
func Normalize(x []float64) []float64 {
	n := floats.Norm(x, 2)
	if n < epsilon {
		return append([]float64(nil), x...)
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v / n
	}
	return out
}

// Add returns a+b elementwise; shorter operand is treated as zero-padded.
func Add(a, b []float64) []float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var av, bv float64
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		out[i] = av + bv
	}
	return out
}
