package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogpy/causalreason/core/contracts"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "training.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func rec(id string, epoch, batch int, loss float64) contracts.TrainingRecord {
	return contracts.TrainingRecord{ID: id, Epoch: epoch, BatchIndex: batch, Loss: loss, LearningRate: 0.01, SamplesCount: 16}
}

func TestRecordBatchAndGetHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordBatch(ctx, rec("b1", 0, 0, 1.0)))
	require.NoError(t, s.RecordBatch(ctx, rec("b2", 0, 1, 0.8)))

	history, err := s.GetHistory(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	exists, err := s.Exists(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRecordBatchBulkAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rs := []contracts.TrainingRecord{rec("c1", 1, 0, 0.5), rec("c2", 1, 1, 0.4), rec("c3", 1, 2, 0.3)}
	require.NoError(t, s.RecordBatchBulk(ctx, rs))

	epochHist, err := s.GetEpochHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, epochHist, 3)
	assert.Equal(t, 0.5, epochHist[0].Loss)
}

func TestRecordBatchBulkAggregatesEveryRowError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordBatch(ctx, rec("dup1", 1, 0, 0.5)))
	require.NoError(t, s.RecordBatch(ctx, rec("dup2", 1, 1, 0.5)))

	// Both dup1 and dup2 collide with existing rows; a good row sits
	// between them so a first-error-wins implementation would never even
	// reach the second collision.
	rs := []contracts.TrainingRecord{rec("dup1", 1, 2, 0.1), rec("c-ok", 1, 3, 0.2), rec("dup2", 1, 4, 0.3)}
	err := s.RecordBatchBulk(ctx, rs)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "dup1")
	assert.Contains(t, msg, "dup2")

	// Nothing from the failed batch was committed, including the row
	// that would have succeeded on its own.
	exists, err := s.Exists(ctx, "c-ok")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGetLatestAndBestLoss(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, _, err := s.GetLatestLoss(ctx)
	require.NoError(t, err)

	require.NoError(t, s.RecordBatch(ctx, rec("d1", 0, 0, 0.9)))
	require.NoError(t, s.RecordBatch(ctx, rec("d2", 0, 1, 0.4)))
	require.NoError(t, s.RecordBatch(ctx, rec("d3", 0, 2, 0.6)))

	latest, ok, err := s.GetLatestLoss(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.6, latest)

	best, ok, err := s.GetBestLoss(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.4, best)
}

func TestGetEpochAverageLoss(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordBatchBulk(ctx, []contracts.TrainingRecord{rec("e1", 2, 0, 1.0), rec("e2", 2, 1, 2.0)}))

	avg, ok, err := s.GetEpochAverageLoss(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 1.5, avg, 1e-9)

	_, ok, err = s.GetEpochAverageLoss(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsLossImproving(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, loss := range []float64{1.0, 0.9, 0.5, 0.4} {
		require.NoError(t, s.RecordBatch(ctx, rec("f"+string(rune('0'+i)), 0, i, loss)))
	}

	improving, err := s.IsLossImproving(ctx, 4)
	require.NoError(t, err)
	assert.True(t, improving)
}

func TestCleanupRemovesOldRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordBatch(ctx, rec("g1", 0, 0, 0.5)))

	n, err := s.Cleanup(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestGetStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordBatch(ctx, rec("h1", 0, 0, 0.7)))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
	assert.True(t, stats.HasBest)
	assert.Equal(t, 0.7, stats.BestLoss)
}
