package tensorops

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// ProjectGrad is the gradient pair returned by ProjectBackward.
type ProjectGrad struct {
	DW [][]float64 // same shape as the forward W: [O x I]
	DX []float64   // length I
}

// ProjectBackward computes dW_ij = dY_i * x_j and dx = W^T . dY, the
// standard linear-layer backward.
func ProjectBackward(dy []float64, w [][]float64, x []float64) ProjectGrad {
	if len(w) == 0 {
		return ProjectGrad{DW: nil, DX: make([]float64, len(x))}
	}
	o := len(w)
	i := len(w[0])
	dw := make([][]float64, o)
	dx := make([]float64, i)
	for r := 0; r < o; r++ {
		dw[r] = make([]float64, i)
		var dyr float64
		if r < len(dy) {
			dyr = dy[r]
		}
		for c := 0; c < i; c++ {
			var xc float64
			if c < len(x) {
				xc = x[c]
			}
			dw[r][c] = dyr * xc
			dx[c] += w[r][c] * dyr
		}
	}
	return ProjectGrad{DW: dw, DX: dx}
}

// SoftmaxBackward computes dz_i = sigma_i * (dsigma_i - sum_j sigma_j dsigma_j),
// the softmax Jacobian-vector product. Its output sums to ~0 because the
// Jacobian is rank-deficient.
func SoftmaxBackward(dsigma, sigma []float64) []float64 {
	n := len(sigma)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	var dot float64
	for i := 0; i < n && i < len(dsigma); i++ {
		dot += sigma[i] * dsigma[i]
	}
	for i := range out {
		var d float64
		if i < len(dsigma) {
			d = dsigma[i]
		}
		out[i] = sigma[i] * (d - dot)
	}
	return out
}

// AttentionGrad is the gradient set returned by AttentionBackward: DQ for
// the single query, and one DK row and one DV row per neighbor.
type AttentionGrad struct {
	DQ []float64
	DK [][]float64
	DV [][]float64
}

// AttentionBackward differentiates Attention's output w.r.t. its inputs,
// given the upstream gradient on the attention output, the softmax
// weights it produced, and the original Q/K/V.
func AttentionBackward(dOut []float64, weights []float64, q []float64, k, v [][]float64, scale float64) AttentionGrad {
	n := len(k)
	grad := AttentionGrad{
		DQ: make([]float64, len(q)),
		DK: make([][]float64, n),
		DV: make([][]float64, n),
	}
	if n == 0 {
		return grad
	}
	dim := len(v[0])

	// dV_i = weights_i * dOut (broadcast across the output dimension).
	dWeights := make([]float64, n)
	for i := range grad.DV {
		grad.DV[i] = make([]float64, dim)
		for j := 0; j < dim && j < len(dOut); j++ {
			grad.DV[i][j] = weights[i] * dOut[j]
		}
		// dWeights_i = dOut . V_i
		var s float64
		for j := 0; j < dim && j < len(v[i]) && j < len(dOut); j++ {
			s += dOut[j] * v[i][j]
		}
		dWeights[i] = s
	}

	// Backprop through softmax to get dScores, then through the dot
	// product: each neighbor's dK row is its own dScore times q, and dQ
	// sums every neighbor's dScore times its key, since all scores share
	// the one query.
	dScores := SoftmaxBackward(dWeights, weights)
	for i := range grad.DK {
		grad.DK[i] = make([]float64, len(q))
		ds := dScores[i] * scale
		for j := range grad.DK[i] {
			var qj float64
			if j < len(q) {
				qj = q[j]
			}
			grad.DK[i][j] = ds * qj
			if j < len(k[i]) {
				grad.DQ[j] += ds * k[i][j]
			}
		}
	}
	return grad
}

// AggregateBackward distributes an upstream gradient on the aggregate
// output back to each neighbor, either uniformly (mean) or by the
// forward weights (weighted sum).
func AggregateBackward(dOut []float64, numNeighbors int, weights []float64) [][]float64 {
	if numNeighbors == 0 {
		return nil
	}
	out := make([][]float64, numNeighbors)
	total := float64(numNeighbors)
	if weights != nil {
		total = floats.Sum(weights)
		if total == 0 {
			total = epsilon
		}
	}
	for i := 0; i < numNeighbors; i++ {
		w := 1.0
		if weights != nil && i < len(weights) {
			w = weights[i]
		}
		row := make([]float64, len(dOut))
		for j, d := range dOut {
			row[j] = d * w / total
		}
		out[i] = row
	}
	return out
}

// ActivationBackward differentiates Activation.Apply. ReLU/LeakyReLU
// consume the pre-activation input (the sign is what matters); Tanh and
// Sigmoid consume their own post-activation output, the standard
// formulation that avoids recomputing the forward pass.
func (a Activation) Backward(dOut []float64, preOrPost []float64) []float64 {
	out := make([]float64, len(dOut))
	for i, d := range dOut {
		var x float64
		if i < len(preOrPost) {
			x = preOrPost[i]
		}
		out[i] = d * a.localGrad(x)
	}
	return out
}

func (a Activation) localGrad(x float64) float64 {
	switch a {
	case ReLU:
		if x > 0 {
			return 1
		}
		return 0
	case LeakyReLU:
		if x > 0 {
			return 1
		}
		return leakyAlpha
	case Tanh: // x is post-activation tanh(z)
		return 1 - x*x
	case Sigmoid: // x is post-activation sigmoid(z)
		return x * (1 - x)
	default:
		return 1
	}
}

// LayerGrad is what LayerBackward returns: the gradient w.r.t. the
// layer's input x and its weight matrix W.
type LayerGrad struct {
	DX []float64
	DW [][]float64
}

// LayerBackward composes activation backward, projection backward, and,
// when the forward pass used a residual connection, adds the residual
// gradient back into dx.
func LayerBackward(dOut []float64, act Activation, postAct []float64, w [][]float64, x []float64, residual bool) LayerGrad {
	dAct := act.Backward(dOut, postAct)
	pg := ProjectBackward(dAct, w, x)
	dx := pg.DX
	if residual {
		dx = Add(dx, dOut)
	}
	return LayerGrad{DX: dx, DW: pg.DW}
}

// ClipByNorm scales g in place (on the returned copy) if its L2 norm
// exceeds maxNorm.
func ClipByNorm(g []float64, maxNorm float64) []float64 {
	n := floats.Norm(g, 2)
	if n <= maxNorm || n == 0 {
		return append([]float64(nil), g...)
	}
	scale := maxNorm / n
	out := make([]float64, len(g))
	for i, v := range g {
		out[i] = v * scale
	}
	return out
}

// ClipByNormMatrix applies ClipByNorm to a [O x I] gradient matrix,
// treating the whole matrix as one flat vector: a per-tensor
// gradient-norm clip over its Frobenius norm.
func ClipByNormMatrix(g [][]float64, maxNorm float64) [][]float64 {
	var flat []float64
	for _, row := range g {
		flat = append(flat, row...)
	}
	clipped := ClipByNorm(flat, maxNorm)
	out := make([][]float64, len(g))
	for i, row := range g {
		out[i], clipped = clipped[:len(row):len(row)], clipped[len(row):]
	}
	return out
}

// IsFinite reports whether every element of g is finite.
func IsFinite(g []float64) bool {
	for _, v := range g {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	return true
}

// SanitizeGradient replaces g with a zero vector of the same length if it
// contains any non-finite value, recovering locally by substituting zeros
// rather than propagating NaN/Inf through the rest of a batch.
func SanitizeGradient(g []float64) (out []float64, wasFinite bool) {
	if IsFinite(g) {
		return g, true
	}
	return make([]float64, len(g)), false
}
