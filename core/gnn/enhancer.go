// Package gnn stacks tensorops layers into the contextual embedding
// enhancer: project -> activation -> residual+normalize, repeated for a
// configured number of layers, with a read-through cache in front and a
// fail-soft path that returns the input embedding unchanged rather than
// propagating a dimension or numerical-stability error to the caller.
package gnn

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/cogpy/causalreason/core/contracts"
	"github.com/cogpy/causalreason/core/embedcache"
	"github.com/cogpy/causalreason/core/tensorops"
)

// Layer is one stack layer's learned projection weight, [dim x dim].
type Layer struct {
	Weight [][]float64
}

// Config controls layer count, activation, and residual wiring.
type Config struct {
	NumLayers  int
	Activation tensorops.Activation
	Residual   bool
	Dim        int
}

// DefaultConfig matches the documented defaults: relu activation, residual
// connections on.
func DefaultConfig(dim int) Config {
	return Config{NumLayers: 2, Activation: tensorops.ReLU, Residual: true, Dim: dim}
}

// Enhancer applies a stack of GNN layers to an embedding, consulting a
// cache keyed by the embedding plus its neighborhood context before doing
// any math.
type Enhancer struct {
	cfg    Config
	layers []Layer
	cache  *embedcache.Cache
	log    *zap.Logger
}

// New builds an Enhancer with identity-initialized layers (a safe
// starting point before any weights have been trained or loaded).
func New(cfg Config, cache *embedcache.Cache, log *zap.Logger) *Enhancer {
	if log == nil {
		log = zap.NewNop()
	}
	layers := make([]Layer, cfg.NumLayers)
	for i := range layers {
		layers[i] = Layer{Weight: identity(cfg.Dim)}
	}
	return &Enhancer{cfg: cfg, layers: layers, cache: cache, log: log}
}

func identity(dim int) [][]float64 {
	w := make([][]float64, dim)
	for i := range w {
		w[i] = make([]float64, dim)
		w[i][i] = 1
	}
	return w
}

// Result is what Enhance returns.
type Result struct {
	Enhanced  contracts.Embedding
	FromCache bool
}

// Enhance runs the layer stack against embedding, using neighborIDs (the
// sorted set of neighborhood node/hyperedge ids the embedding is being
// enhanced against) to scope the cache key. On any dimension mismatch or
// non-finite output it logs a warning and returns the original embedding
// unchanged, since enhancement is never mandatory for a reasoning
// request to proceed.
func (e *Enhancer) Enhance(ctx context.Context, embedding contracts.Embedding, neighborIDs []string) Result {
	key := embedcache.Fingerprint(embedding, neighborContextKey(neighborIDs))
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			return Result{Enhanced: cached, FromCache: true}
		}
	}

	out, err := e.applyLayers(embedding)
	if err != nil {
		e.log.Warn("gnn enhancement failed, returning input unchanged", zap.Error(err))
		return Result{Enhanced: embedding, FromCache: false}
	}
	if !tensorops.IsFinite(out) {
		e.log.Warn("gnn enhancement produced non-finite output, returning input unchanged")
		return Result{Enhanced: embedding, FromCache: false}
	}

	if e.cache != nil {
		e.cache.Put(key, out, neighborIDs)
	}
	return Result{Enhanced: out, FromCache: false}
}

// neighborContextKey renders a sorted node-id set into the stable string
// Fingerprint hashes into the cache key.
func neighborContextKey(neighborIDs []string) string {
	if len(neighborIDs) == 0 {
		return ""
	}
	sorted := append([]string(nil), neighborIDs...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// applyLayers runs every configured layer in sequence.
func (e *Enhancer) applyLayers(x []float64) ([]float64, error) {
	cur := x
	for _, l := range e.layers {
		next, err := e.applyLayer(cur, l)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// applyLayer computes y = project(x, W); z = activation(y);
// x' = normalize(z + x) if residual else normalize(z).
func (e *Enhancer) applyLayer(x []float64, l Layer) ([]float64, error) {
	y, err := tensorops.Project(x, l.Weight)
	if err != nil {
		return nil, err
	}
	z := e.cfg.Activation.Apply(y)
	if e.cfg.Residual {
		z = tensorops.Add(z, x)
	}
	return tensorops.Normalize(z), nil
}
