package training

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogpy/causalreason/core/contracts"
)

func TestTriggerFiresAtThreshold(t *testing.T) {
	var fired [][]contracts.TrainingSample
	tr := NewTrigger(TriggerConfig{Threshold: 3, TimerInterval: time.Hour}, func(batch []contracts.TrainingSample) {
		fired = append(fired, batch)
	}, nil)

	tr.Append(contracts.TrainingSample{TrajectoryID: "a"})
	assert.False(t, tr.ShouldTrigger())
	assert.Equal(t, 1, tr.BufferSize())

	tr.Append(contracts.TrainingSample{TrajectoryID: "b"})
	tr.Append(contracts.TrainingSample{TrajectoryID: "c"})

	require.Len(t, fired, 1)
	assert.Len(t, fired[0], 3)
	assert.Equal(t, 0, tr.BufferSize())
}

func TestTriggerBufferResetsAfterFire(t *testing.T) {
	count := 0
	tr := NewTrigger(TriggerConfig{Threshold: 2, TimerInterval: time.Hour}, func([]contracts.TrainingSample) {
		count++
	}, nil)
	for i := 0; i < 6; i++ {
		tr.Append(contracts.TrainingSample{TrajectoryID: "x"})
	}
	assert.Equal(t, 3, count)
}
