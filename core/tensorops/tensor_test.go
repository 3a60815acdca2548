package tensorops

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityMatrix(n int) [][]float64 {
	w := make([][]float64, n)
	for i := range w {
		w[i] = make([]float64, n)
		w[i][i] = 1
	}
	return w
}

func TestProject(t *testing.T) {
	t.Run("identity", func(t *testing.T) {
		x := []float64{1, 2, 3}
		y, err := Project(x, identityMatrix(3))
		require.NoError(t, err)
		assert.InDeltaSlice(t, x, y, 1e-9)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := Project([]float64{1, 2}, identityMatrix(3))
		require.Error(t, err)
	})

	t.Run("empty weight returns empty", func(t *testing.T) {
		y, err := Project([]float64{1}, nil)
		require.NoError(t, err)
		assert.Empty(t, y)
	})
}

func TestProjectBackward(t *testing.T) {
	// property 1: project_backward(ones, W, x).dx == W^T . ones elementwise
	w := [][]float64{{1, 2, 3}, {4, 5, 6}}
	x := []float64{1, 1, 1}
	ones := []float64{1, 1}
	grad := ProjectBackward(ones, w, x)

	want := make([]float64, 3)
	for c := 0; c < 3; c++ {
		for r := 0; r < 2; r++ {
			want[c] += w[r][c] * ones[r]
		}
	}
	assert.InDeltaSlice(t, want, grad.DX, 1e-5)
}

func TestSoftmax(t *testing.T) {
	t.Run("sums to one", func(t *testing.T) {
		z := []float64{1, 2, 3, 4}
		s := Softmax(z)
		sum := 0.0
		for _, v := range s {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	})

	t.Run("shift invariant", func(t *testing.T) {
		z := []float64{1, 2, 3}
		shifted := make([]float64, len(z))
		for i, v := range z {
			shifted[i] = v + 100
		}
		s1 := Softmax(z)
		s2 := Softmax(shifted)
		assert.InDeltaSlice(t, s1, s2, 1e-5)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, Softmax(nil))
	})
}

func TestSoftmaxBackward(t *testing.T) {
	sigma := Softmax([]float64{0.5, 1.5, -0.3, 2.1})
	g := []float64{0.3, -0.1, 0.7, 0.2}
	d := SoftmaxBackward(g, sigma)
	sum := 0.0
	for _, v := range d {
		sum += v
	}
	assert.InDelta(t, 0.0, sum, 1e-5)
}

func TestAttention(t *testing.T) {
	q := []float64{1, 0}
	k := [][]float64{{1, 0}, {0, 1}}
	v := [][]float64{{1, 1}, {2, 2}}
	out, weights, err := Attention(q, k, v, AttentionScale(2))
	require.NoError(t, err)
	require.Len(t, weights, 2)
	// the first key matches q, so it should dominate the weighting.
	assert.Greater(t, weights[0], weights[1])
	assert.Len(t, out, 2)
}

func TestAggregate(t *testing.T) {
	neighbors := [][]float64{{1, 1}, {3, 3}}
	mean := AggregateMean(neighbors)
	assert.InDeltaSlice(t, []float64{2, 2}, mean, 1e-9)

	weighted := AggregateWeighted(neighbors, []float64{1, 3})
	assert.InDeltaSlice(t, []float64{2.5, 2.5}, weighted, 1e-9)

	assert.Empty(t, AggregateMean(nil))
}

func TestActivations(t *testing.T) {
	assert.InDeltaSlice(t, []float64{0, 2}, ReLU.Apply([]float64{-1, 2}), 1e-9)
	assert.InDeltaSlice(t, []float64{-0.01, 2}, LeakyReLU.Apply([]float64{-1, 2}), 1e-9)
	assert.InDelta(t, math.Tanh(0.5), Tanh.Apply([]float64{0.5})[0], 1e-9)
	assert.InDelta(t, 1/(1+math.Exp(-0.5)), Sigmoid.Apply([]float64{0.5})[0], 1e-9)
}

func TestClipByNorm(t *testing.T) {
	g := []float64{3, 4} // norm 5
	clipped := ClipByNorm(g, 1.0)
	n := math.Hypot(clipped[0], clipped[1])
	assert.InDelta(t, 1.0, n, 1e-9)

	unclipped := ClipByNorm(g, 10.0)
	assert.InDeltaSlice(t, g, unclipped, 1e-9)
}

func TestIsFiniteAndSanitize(t *testing.T) {
	assert.True(t, IsFinite([]float64{1, 2, 3}))
	assert.False(t, IsFinite([]float64{1, math.NaN()}))
	assert.False(t, IsFinite([]float64{math.Inf(1)}))

	out, finite := SanitizeGradient([]float64{1, math.NaN()})
	assert.False(t, finite)
	assert.Equal(t, []float64{0, 0}, out)
}

func TestLayerBackwardResidual(t *testing.T) {
	w := identityMatrix(2)
	x := []float64{1, 2}
	post := ReLU.Apply(x)
	dOut := []float64{1, 1}

	grad := LayerBackward(dOut, ReLU, post, w, x, true)
	// residual adds dOut back into dx on top of the projection gradient.
	assert.InDeltaSlice(t, []float64{2, 2}, grad.DX, 1e-9)
}
