package learner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogpy/causalreason/core/contracts"
)

type fakeLearner struct{ weight float64 }

func (f *fakeLearner) CreateTrajectoryWithID(ctx context.Context, id, route string, patternIDs, contextIDs []string) error {
	return nil
}
func (f *fakeLearner) ProvideFeedback(ctx context.Context, trajectoryID string, feedback contracts.Feedback) (contracts.OnlineLearnerUpdate, error) {
	return contracts.OnlineLearnerUpdate{Applied: true}, nil
}
func (f *fakeLearner) GetWeight(ctx context.Context, patternID, route string) (float64, error) {
	return f.weight, nil
}
func (f *fakeLearner) GetTrajectory(ctx context.Context, id string) (*contracts.Trajectory, bool, error) {
	return nil, false, nil
}
func (f *fakeLearner) HasTrajectoryInStorage(ctx context.Context, id string) (bool, error) {
	return false, nil
}
func (f *fakeLearner) GetTrajectoryInStorage(ctx context.Context, id string) (*contracts.Trajectory, bool, error) {
	return nil, false, nil
}

func TestProxyUnboundDefaults(t *testing.T) {
	p := NewProxy()
	assert.False(t, p.Bound())

	w, err := p.GetWeight(context.Background(), "p1", "route")
	require.NoError(t, err)
	assert.Equal(t, 0.0, w)

	update, err := p.ProvideFeedback(context.Background(), "t1", contracts.Feedback{Quality: 0.9})
	require.NoError(t, err)
	assert.False(t, update.Applied)

	require.NoError(t, p.CreateTrajectoryWithID(context.Background(), "t1", "route", nil, nil))

	has, err := p.HasTrajectoryInStorage(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestProxyBoundDelegates(t *testing.T) {
	p := NewProxy()
	p.Bind(&fakeLearner{weight: 0.75})
	assert.True(t, p.Bound())

	w, err := p.GetWeight(context.Background(), "p1", "route")
	require.NoError(t, err)
	assert.Equal(t, 0.75, w)

	update, err := p.ProvideFeedback(context.Background(), "t1", contracts.Feedback{Quality: 0.9})
	require.NoError(t, err)
	assert.True(t, update.Applied)
}
