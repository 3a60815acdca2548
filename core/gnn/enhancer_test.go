package gnn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogpy/causalreason/core/contracts"
	"github.com/cogpy/causalreason/core/embedcache"
	"github.com/cogpy/causalreason/core/tensorops"
)

func TestEnhanceIdentityPreservesDirection(t *testing.T) {
	cache, err := embedcache.New()
	require.NoError(t, err)

	e := New(DefaultConfig(4), cache, nil)
	emb := contracts.Embedding{1, 0, 0, 0}
	result := e.Enhance(context.Background(), emb, []string{"ctx"})
	require.False(t, result.FromCache)
	assert.True(t, tensorops.IsFinite(result.Enhanced))
	assert.Len(t, result.Enhanced, 4)
}

func TestEnhanceCacheHit(t *testing.T) {
	cache, err := embedcache.New()
	require.NoError(t, err)

	e := New(DefaultConfig(4), cache, nil)
	emb := contracts.Embedding{0.5, 0.1, -0.2, 0.3}

	first := e.Enhance(context.Background(), emb, []string{"same-ctx"})
	assert.False(t, first.FromCache)

	second := e.Enhance(context.Background(), emb, []string{"same-ctx"})
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Enhanced, second.Enhanced)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
}

func TestEnhanceFailsSoftOnDimensionMismatch(t *testing.T) {
	cache, err := embedcache.New()
	require.NoError(t, err)

	e := New(DefaultConfig(4), cache, nil)
	// This embedding has the wrong length for the 4x4 identity layers.
	bad := contracts.Embedding{1, 2, 3}
	result := e.Enhance(context.Background(), bad, []string{"ctx"})
	assert.Equal(t, bad, result.Enhanced)
	assert.False(t, result.FromCache)
}

func TestPersistAndLoadWeights(t *testing.T) {
	cache, err := embedcache.New()
	require.NoError(t, err)

	e := New(DefaultConfig(3), cache, nil)
	snap := e.PersistWeights()
	require.Len(t, snap.LayerWeights, 2)

	snap.LayerWeights[0][0][0] = 42
	require.NoError(t, e.LoadWeights(snap))
	assert.Equal(t, 42.0, e.Layers()[0].Weight[0][0])
}

func TestLoadWeightsRejectsLayerCountMismatch(t *testing.T) {
	cache, err := embedcache.New()
	require.NoError(t, err)

	e := New(DefaultConfig(3), cache, nil)
	err = e.LoadWeights(Snapshot{LayerWeights: [][][]float64{{{1}}}})
	assert.Error(t, err)
}
