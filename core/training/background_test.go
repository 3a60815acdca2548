package training

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogpy/causalreason/core/contracts"
)

type recordingSink struct {
	progress []Progress
	batches  []BatchResult
	epochs   []EpochResult
	final    *RunResult
	err      error
}

func (r *recordingSink) Progress(p Progress)        { r.progress = append(r.progress, p) }
func (r *recordingSink) BatchComplete(b BatchResult) { r.batches = append(r.batches, b) }
func (r *recordingSink) EpochComplete(e EpochResult) { r.epochs = append(r.epochs, e) }
func (r *recordingSink) Complete(res RunResult)      { r.final = &res }
func (r *recordingSink) Error(err error)             { r.err = err }

func sampleSet(n int) []contracts.TrainingSample {
	out := make([]contracts.TrainingSample, n)
	for i := range out {
		q := 0.9
		if i%2 == 0 {
			q = 0.2
		}
		out[i] = contracts.TrainingSample{TrajectoryID: "t", Embedding: contracts.Embedding{float64(i%3) - 1, 0.1}, Quality: q}
	}
	return out
}

func TestRunCooperativeBelowWorkerThreshold(t *testing.T) {
	enh := newTestEnhancer(2)
	ct := NewContrastiveTrainer(enh, DefaultContrastiveConfig(), nil)
	cfg := RunConfig{BatchSize: 4, MaxEpochs: 2, YieldInterval: 1, WorkerThreshold: 100}
	bt := NewBackgroundTrainer(ct, cfg, nil)

	sink := &recordingSink{}
	result := bt.Run(context.Background(), sampleSet(10), sink)

	assert.False(t, result.Cancelled)
	assert.False(t, result.UsedWorker)
	assert.Len(t, result.EpochResults, 2)
	require.NotNil(t, sink.final)
	assert.Equal(t, result, *sink.final)
	assert.NotEmpty(t, sink.progress)
}

func TestRunCooperativeHonorsCancel(t *testing.T) {
	enh := newTestEnhancer(2)
	ct := NewContrastiveTrainer(enh, DefaultContrastiveConfig(), nil)
	cfg := RunConfig{BatchSize: 1, MaxEpochs: 5, YieldInterval: 1, WorkerThreshold: 100}
	bt := NewBackgroundTrainer(ct, cfg, nil)
	bt.Cancel()

	result := bt.Run(context.Background(), sampleSet(4), &recordingSink{})
	assert.True(t, result.Cancelled)
}

func TestRunEmptyBatchesCompletesImmediately(t *testing.T) {
	enh := newTestEnhancer(2)
	ct := NewContrastiveTrainer(enh, DefaultContrastiveConfig(), nil)
	bt := NewBackgroundTrainer(ct, DefaultRunConfig(), nil)

	result := bt.Run(context.Background(), nil, &recordingSink{})
	assert.Empty(t, result.BatchResults)
}
