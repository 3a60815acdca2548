package reasoning

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogpy/causalreason/core/contracts"
)

func makeEmbedding(v float64) contracts.Embedding {
	e := make(contracts.Embedding, contracts.EmbeddingDim)
	for i := range e {
		e[i] = v
	}
	return e
}

type fakePatternStore struct {
	hits []contracts.PatternHit
	err  error
}

func (f *fakePatternStore) FindPatterns(ctx context.Context, q contracts.PatternQuery) ([]contracts.PatternHit, error) {
	return f.hits, f.err
}
func (f *fakePatternStore) CreatePattern(ctx context.Context, p contracts.PatternMatch) error { return nil }

func TestReasonPatternMode(t *testing.T) {
	store := &fakePatternStore{hits: []contracts.PatternHit{
		{Pattern: contracts.PatternMatch{PatternID: "P1", Confidence: 0.99, LScore: 0.5}, Confidence: 0.99},
	}}
	orch := New(&PatternEngine{Store: store}, nil, nil, nil, nil, nil)

	resp, err := orch.Reason(context.Background(), contracts.ReasoningRequest{
		QueryEmbedding:      makeEmbedding(0.1),
		Mode:                contracts.ModePattern,
		MaxResults:          5,
		ConfidenceThreshold: 0.5,
		MinLScore:           0,
	})
	require.NoError(t, err)
	require.Len(t, resp.Patterns, 1)
	assert.GreaterOrEqual(t, resp.Patterns[0].Confidence, 0.99)
	assert.Empty(t, resp.CausalInferences)
	assert.InDelta(t, 0.5, resp.Provenance.CombinedLScore, 1e-9)
}

func TestReasonHybridEmptyReturnsZeroConfidence(t *testing.T) {
	orch := New(&PatternEngine{}, &CausalEngine{}, &ContextualEngine{}, nil, nil, nil)

	resp, err := orch.Reason(context.Background(), contracts.ReasoningRequest{
		QueryEmbedding:      makeEmbedding(0.1),
		Mode:                contracts.ModeHybrid,
		MaxResults:          5,
		ConfidenceThreshold: 0.5,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Patterns)
	assert.Empty(t, resp.CausalInferences)
	assert.Equal(t, 0.0, resp.Confidence)
	assert.Equal(t, 0.0, resp.Provenance.CombinedLScore)
}

func TestReasonRejectsBadDimension(t *testing.T) {
	orch := New(nil, nil, nil, nil, nil, nil)
	_, err := orch.Reason(context.Background(), contracts.ReasoningRequest{
		QueryEmbedding:      contracts.Embedding{1, 2},
		Mode:                contracts.ModePattern,
		MaxResults:          5,
		ConfidenceThreshold: 0.5,
	})
	assert.Error(t, err)
}

func TestReasonRejectsInvalidMaxResults(t *testing.T) {
	orch := New(nil, nil, nil, nil, nil, nil)
	_, err := orch.Reason(context.Background(), contracts.ReasoningRequest{
		QueryEmbedding: makeEmbedding(0.1),
		Mode:           contracts.ModePattern,
		MaxResults:     0,
	})
	assert.Error(t, err)
}

type failingEngine struct{ err error }

func (f *failingEngine) Run(ctx context.Context, req contracts.ReasoningRequest, embedding contracts.Embedding) (ModeOutput, error) {
	return ModeOutput{}, f.err
}

func TestReasonHybridAllSubModesFailedReturnsAggregatedError(t *testing.T) {
	boom := errors.New("boom")
	orch := New(&failingEngine{err: boom}, &failingEngine{err: boom}, &failingEngine{err: boom}, nil, nil, nil)

	_, err := orch.Reason(context.Background(), contracts.ReasoningRequest{
		QueryEmbedding:      makeEmbedding(0.1),
		Mode:                contracts.ModeHybrid,
		MaxResults:          5,
		ConfidenceThreshold: 0.5,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestReasonAdvancedModeUnwiredReturnsInvalidArgument(t *testing.T) {
	orch := New(nil, nil, nil, nil, nil, nil)
	_, err := orch.Reason(context.Background(), contracts.ReasoningRequest{
		QueryEmbedding:      makeEmbedding(0.1),
		Mode:                contracts.ModeAbductive,
		MaxResults:          5,
		ConfidenceThreshold: 0.5,
	})
	require.Error(t, err)
	assert.True(t, contracts.Is(err, contracts.KindInvalidArgument))
}

func TestReasonAdvancedModeDispatchesToWiredEngine(t *testing.T) {
	orch := New(nil, nil, nil, nil, nil, nil)
	orch.Constraint = &ConstraintEngine{}

	resp, err := orch.Reason(context.Background(), contracts.ReasoningRequest{
		QueryEmbedding:      makeEmbedding(0.1),
		Mode:                contracts.ModeConstraint,
		MaxResults:          5,
		ConfidenceThreshold: 0.5,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Patterns)
}
