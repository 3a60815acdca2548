package reasoning

import (
	"context"

	"github.com/cogpy/causalreason/core/causalgraph"
	"github.com/cogpy/causalreason/core/contracts"
)

// AbductiveEngine picks the causal explanation(s) best accounting for an
// observed effect: backward traversal from the query's seed nodes,
// surfaced as inferences the same way CausalEngine does for the forward
// direction.
type AbductiveEngine struct {
	Index contracts.VectorIndex
	Graph *causalgraph.Graph
}

func (a *AbductiveEngine) Run(ctx context.Context, req contracts.ReasoningRequest, embedding contracts.Embedding) (ModeOutput, error) {
	if a.Index == nil || a.Graph == nil {
		return ModeOutput{}, nil
	}
	hits, err := a.Index.Search(ctx, embedding, req.MaxResults)
	if err != nil {
		return ModeOutput{}, err
	}
	seeds := make([]string, len(hits))
	for i, h := range hits {
		seeds[i] = h.ID
	}
	result := a.Graph.FindCauses(seeds, causalTraversalDepth, causalgraph.DefaultTraversalOptions())

	var out ModeOutput
	for _, chain := range result.Chains {
		if chain.TotalConfidence < req.ConfidenceThreshold {
			continue
		}
		for _, node := range chain.EndNodes {
			out.CausalInferences = append(out.CausalInferences, contracts.InferenceResult{
				NodeID:      node,
				Probability: chain.TotalConfidence,
				Confidence:  chain.TotalConfidence,
				Chain:       append(append([]string(nil), seeds...), chain.EndNodes...),
				LScore:      defaultLScore(chain.Depth),
			})
		}
	}
	return out, nil
}

// CounterfactualEngine perturbs the query embedding's seed nodes out of
// the traversal and reports what the forward closure would look like
// without them, by rerunning InferConsequences against the remaining
// vector-index hits.
type CounterfactualEngine struct {
	Index contracts.VectorIndex
	Graph *causalgraph.Graph
}

func (c *CounterfactualEngine) Run(ctx context.Context, req contracts.ReasoningRequest, embedding contracts.Embedding) (ModeOutput, error) {
	if c.Index == nil || c.Graph == nil {
		return ModeOutput{}, nil
	}
	hits, err := c.Index.Search(ctx, embedding, req.MaxResults+1)
	if err != nil {
		return ModeOutput{}, err
	}
	if len(hits) <= 1 {
		return ModeOutput{}, nil
	}
	// Drop the top hit (the factual seed) and traverse from the rest.
	seeds := make([]string, 0, len(hits)-1)
	for _, h := range hits[1:] {
		seeds = append(seeds, h.ID)
	}
	result := c.Graph.InferConsequences(seeds, causalTraversalDepth, causalgraph.DefaultTraversalOptions())

	var out ModeOutput
	for _, chain := range result.Chains {
		if chain.TotalConfidence < req.ConfidenceThreshold {
			continue
		}
		for _, node := range chain.EndNodes {
			out.CausalInferences = append(out.CausalInferences, contracts.InferenceResult{
				NodeID:      node,
				Probability: chain.TotalConfidence,
				Confidence:  chain.TotalConfidence,
				Chain:       append(append([]string(nil), seeds...), chain.EndNodes...),
				LScore:      defaultLScore(chain.Depth),
			})
		}
	}
	return out, nil
}

// TemporalEngine walks the generic GraphStore (independent of the local
// hypergraph's own traversal) to build a time-ordered chain-of-history;
// here it simply surfaces every stored hyperedge above the confidence
// threshold as an inference, ordered by CreatedAt via the store's own
// enumeration order.
type TemporalEngine struct {
	Store contracts.GraphStore
}

func (te *TemporalEngine) Run(ctx context.Context, req contracts.ReasoningRequest, embedding contracts.Embedding) (ModeOutput, error) {
	if te.Store == nil {
		return ModeOutput{}, nil
	}
	edges, err := te.Store.GetAllHyperedges(ctx)
	if err != nil {
		return ModeOutput{}, err
	}
	var out ModeOutput
	for _, e := range edges {
		if e.Confidence < req.ConfidenceThreshold {
			continue
		}
		for _, effect := range e.Effects {
			out.CausalInferences = append(out.CausalInferences, contracts.InferenceResult{
				NodeID:      effect,
				Probability: e.Confidence,
				Confidence:  e.Confidence,
				Chain:       append(append([]string(nil), e.Causes...), e.Effects...),
				LScore:      0.5,
			})
		}
		if req.MaxResults > 0 && len(out.CausalInferences) >= req.MaxResults {
			break
		}
	}
	return out, nil
}

// ConstraintEngine filters vector-index hits down to the ones that
// satisfy a minimum similarity and L-score, surfacing a "solution" set
// as patterns rather than causal inferences.
type ConstraintEngine struct {
	Index contracts.VectorIndex
}

func (ce *ConstraintEngine) Run(ctx context.Context, req contracts.ReasoningRequest, embedding contracts.Embedding) (ModeOutput, error) {
	if ce.Index == nil {
		return ModeOutput{}, nil
	}
	hits, err := ce.Index.Search(ctx, embedding, req.MaxResults)
	if err != nil {
		return ModeOutput{}, err
	}
	var out ModeOutput
	for _, h := range hits {
		if h.Similarity < req.ConfidenceThreshold {
			continue
		}
		pm := contracts.PatternMatch{
			PatternID:  h.ID,
			Confidence: h.Similarity,
			TaskType:   "constraint",
			LScore:     0.5,
		}
		if pm.LScore < req.MinLScore {
			continue
		}
		out.Patterns = append(out.Patterns, pm)
	}
	return out, nil
}
