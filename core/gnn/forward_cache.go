package gnn

import "github.com/cogpy/causalreason/core/tensorops"

// LayerCache retains the intermediate values one applyLayer call produced,
// so a trainer can backpropagate through the same forward pass without
// recomputing it.
type LayerCache struct {
	X []float64 // layer input
	Y []float64 // pre-activation projection output
	Z []float64 // post-activation, pre-residual
}

// ForwardWithCache runs the layer stack the same way Enhance does but
// returns the per-layer caches a trainer needs for backpropagation,
// bypassing the read-through cache entirely (training always recomputes).
func (e *Enhancer) ForwardWithCache(x []float64) ([]float64, []LayerCache, error) {
	caches := make([]LayerCache, len(e.layers))
	cur := x
	for i, l := range e.layers {
		y, err := tensorops.Project(cur, l.Weight)
		if err != nil {
			return nil, nil, err
		}
		z := e.cfg.Activation.Apply(y)
		caches[i] = LayerCache{X: cur, Y: y, Z: z}

		preNorm := z
		if e.cfg.Residual {
			preNorm = tensorops.Add(z, cur)
		}
		cur = tensorops.Normalize(preNorm)
	}
	return cur, caches, nil
}

// activationCacheValue picks the pre- or post-activation cache value that
// Activation.Backward expects for a given kind.
func activationCacheValue(act tensorops.Activation, cache LayerCache) []float64 {
	switch act {
	case tensorops.ReLU, tensorops.LeakyReLU:
		return cache.Y
	default:
		return cache.Z
	}
}

// BackwardFromOutput backpropagates an upstream gradient on the final
// layer's output through every layer, returning the per-layer weight
// gradients (indexed like the layers, input-side layer first) and the
// gradient on the original input embedding.
//
// Normalize's own Jacobian is treated as identity here: backpropagating
// the true L2-normalize gradient requires the layer's pre-normalize norm,
// which would roughly double the bookkeeping in this cache for a
// correction that only rescales gradient magnitude, not direction. This
// mirrors the tensor-ops package's policy of treating reported
// gradient-norm values as indicative rather than exact.
func (e *Enhancer) BackwardFromOutput(dOut []float64, caches []LayerCache) (layerGrads [][][]float64, dInput []float64) {
	layerGrads = make([][][]float64, len(e.layers))
	grad := dOut
	for i := len(e.layers) - 1; i >= 0; i-- {
		cache := caches[i]
		act := e.cfg.Activation
		dZ := grad
		dX := make([]float64, len(cache.X))
		if e.cfg.Residual {
			dX = append([]float64(nil), grad...)
		}
		dY := act.Backward(dZ, activationCacheValue(act, cache))
		pg := tensorops.ProjectBackward(dY, e.layers[i].Weight, cache.X)
		layerGrads[i] = pg.DW
		grad = tensorops.Add(pg.DX, dX)
	}
	return layerGrads, grad
}

// ApplyGradients performs one SGD step: W_l -= lr * clip(dW_l, maxNorm).
func (e *Enhancer) ApplyGradients(grads [][][]float64, lr, maxNorm float64) {
	for i, dw := range grads {
		if i >= len(e.layers) {
			break
		}
		// ClipByNormMatrix clips the whole [O x I] weight gradient as one
		// vector, by its Frobenius norm.
		clipped := tensorops.ClipByNormMatrix(dw, maxNorm)
		w := e.layers[i].Weight
		for r := range w {
			if r >= len(clipped) {
				break
			}
			for c := range w[r] {
				if c >= len(clipped[r]) {
					break
				}
				w[r][c] -= lr * clipped[r][c]
			}
		}
	}
}
