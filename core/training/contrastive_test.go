package training

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogpy/causalreason/core/contracts"
	"github.com/cogpy/causalreason/core/gnn"
	"github.com/cogpy/causalreason/core/tensorops"
)

func newTestEnhancer(dim int) *gnn.Enhancer {
	return gnn.New(gnn.Config{NumLayers: 1, Activation: tensorops.ReLU, Residual: true, Dim: dim}, nil, nil)
}

func TestRunBatchFormsTripletsAndUpdatesWeights(t *testing.T) {
	enh := newTestEnhancer(2)
	ct := NewContrastiveTrainer(enh, DefaultContrastiveConfig(), nil)

	samples := []contracts.TrainingSample{
		{TrajectoryID: "t1", Embedding: contracts.Embedding{1, 0}, Quality: 0.9},
		{TrajectoryID: "t2", Embedding: contracts.Embedding{0.9, 0.1}, Quality: 0.8},
		{TrajectoryID: "t3", Embedding: contracts.Embedding{-1, 0}, Quality: 0.2},
	}

	result := ct.RunBatch(0, 0, samples)
	assert.Equal(t, 2, result.TotalTriplets)
	assert.GreaterOrEqual(t, result.ActiveTriplets, 0)
	assert.LessOrEqual(t, result.ActiveTriplets, result.TotalTriplets)
	assert.True(t, result.Loss >= 0)
	assert.True(t, result.GradientNorm >= 0)
	assert.True(t, result.TrainingTimeMs >= 0)
}

func TestRunBatchEmptyReturnsZeroResult(t *testing.T) {
	enh := newTestEnhancer(2)
	ct := NewContrastiveTrainer(enh, DefaultContrastiveConfig(), nil)

	result := ct.RunBatch(0, 0, nil)
	assert.Equal(t, BatchResult{Epoch: 0, BatchIndex: 0}, result)
}

func TestRunBatchDropsInvalidSamples(t *testing.T) {
	enh := newTestEnhancer(2)
	ct := NewContrastiveTrainer(enh, DefaultContrastiveConfig(), nil)

	samples := []contracts.TrainingSample{
		{TrajectoryID: "bad", Embedding: nil, Quality: 0.9},
		{TrajectoryID: "bad2", Quality: math.NaN()},
	}
	result := ct.RunBatch(0, 0, samples)
	assert.Equal(t, 0, result.TotalTriplets)
}

func TestSummarizeEpochFlagsImprovement(t *testing.T) {
	enh := newTestEnhancer(2)
	ct := NewContrastiveTrainer(enh, DefaultContrastiveConfig(), nil)

	first := ct.SummarizeEpoch(0, []BatchResult{{Loss: 1.0}, {Loss: 0.6}})
	require.True(t, first.Improved)
	assert.InDelta(t, 0.8, first.AverageLoss, 1e-9)

	second := ct.SummarizeEpoch(1, []BatchResult{{Loss: 0.9}, {Loss: 0.95}})
	assert.False(t, second.Improved)
	assert.Equal(t, 0.8, ct.BestLoss())
}

func TestSummarizeEpochEmptyIsZeroValue(t *testing.T) {
	enh := newTestEnhancer(2)
	ct := NewContrastiveTrainer(enh, DefaultContrastiveConfig(), nil)
	assert.Equal(t, EpochResult{Epoch: 3}, ct.SummarizeEpoch(3, nil))
}
