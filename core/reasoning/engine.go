package reasoning

import (
	"context"

	"github.com/cogpy/causalreason/core/causalgraph"
	"github.com/cogpy/causalreason/core/contracts"
)

// ModeOutput is the shape every mode engine returns; the orchestrator
// merges these uniformly regardless of which mode produced them.
type ModeOutput struct {
	Patterns         []contracts.PatternMatch
	CausalInferences []contracts.InferenceResult
}

// ModeEngine is the shared contract every reasoning mode implements,
// including the advanced modes (abductive, counterfactual, temporal,
// constraint) which plug in without widening the orchestrator.
type ModeEngine interface {
	Run(ctx context.Context, req contracts.ReasoningRequest, embedding contracts.Embedding) (ModeOutput, error)
}

// PatternEngine implements Mode=pattern: top-k pattern-store recall,
// filtered by confidence and L-score thresholds.
type PatternEngine struct {
	Store contracts.PatternStore
}

func (p *PatternEngine) Run(ctx context.Context, req contracts.ReasoningRequest, embedding contracts.Embedding) (ModeOutput, error) {
	if p.Store == nil {
		return ModeOutput{}, nil
	}
	hits, err := p.Store.FindPatterns(ctx, contracts.PatternQuery{
		Embedding:     embedding,
		TopK:          req.MaxResults,
		MinConfidence: req.ConfidenceThreshold,
	})
	if err != nil {
		return ModeOutput{}, err
	}
	var out ModeOutput
	for _, h := range hits {
		if h.Pattern.Confidence < req.ConfidenceThreshold || h.Pattern.LScore < req.MinLScore {
			continue
		}
		out.Patterns = append(out.Patterns, h.Pattern)
	}
	return out, nil
}

// CausalEngine implements Mode=causal: seed nodes from the vector index,
// then forward traversal at a fixed depth of 3.
type CausalEngine struct {
	Index contracts.VectorIndex
	Graph *causalgraph.Graph
}

const causalTraversalDepth = 3

func (c *CausalEngine) Run(ctx context.Context, req contracts.ReasoningRequest, embedding contracts.Embedding) (ModeOutput, error) {
	if c.Index == nil || c.Graph == nil {
		return ModeOutput{}, nil
	}
	hits, err := c.Index.Search(ctx, embedding, req.MaxResults)
	if err != nil {
		return ModeOutput{}, err
	}
	if len(hits) == 0 {
		return ModeOutput{}, nil
	}
	seeds := make([]string, len(hits))
	for i, h := range hits {
		seeds[i] = h.ID
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

// ContextualEngine implements Mode=contextual: vector search on the
// (possibly GNN-enhanced) embedding, top-k above the similarity
// threshold, surfaced as patterns so the response shape stays uniform.
type ContextualEngine struct {
	Index contracts.VectorIndex
}

func (ce *ContextualEngine) Run(ctx context.Context, req contracts.ReasoningRequest, embedding contracts.Embedding) (ModeOutput, error) {
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
		out.Patterns = append(out.Patterns, contracts.PatternMatch{
			PatternID:  h.ID,
			Confidence: h.Similarity,
			TaskType:   "contextual",
			LScore:     0.5,
		})
	}
	return out, nil
}

// defaultLScore lowers trust as derivation depth grows, per the
// documented "l_score ... lower as derivation depth grows" rule.
func defaultLScore(depth int) float64 {
	l := 0.5 - 0.05*float64(depth)
	if l < 0.1 {
		l = 0.1
	}
	return l
}
