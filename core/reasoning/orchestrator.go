package reasoning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cogpy/causalreason/core/contracts"
	"github.com/cogpy/causalreason/core/gnn"
)

// TrajectoryEmitter is the narrow slice of the trajectory tracker the
// orchestrator depends on, kept as an interface so reasoning never
// imports the tracker's storage concerns directly.
type TrajectoryEmitter interface {
	Create(ctx context.Context, req contracts.ReasoningRequest, resp contracts.ReasoningResponse, base, enhanced contracts.Embedding, lScore float64) (string, error)
}

// ModeWeights are the per-mode confidence weights hybrid mode uses when
// averaging across sub-modes that did not fail; a sub-mode that succeeds
// with no results still counts, with confidence 0.
type ModeWeights struct {
	Pattern    float64
	Causal     float64
	Contextual float64
}

// DefaultModeWeights matches the documented defaults.
func DefaultModeWeights() ModeWeights {
	return ModeWeights{Pattern: 0.3, Causal: 0.3, Contextual: 0.4}
}

// Orchestrator is the single entry point: Reason validates a request,
// optionally enhances the query embedding, dispatches to one or more mode
// engines, computes provenance, and emits a trajectory.
type Orchestrator struct {
	Pattern    ModeEngine
	Causal     ModeEngine
	Contextual ModeEngine

	// Advanced mode engines. Unlike Pattern/Causal/Contextual these are
	// optional: a nil value means the corresponding Mode is unsupported
	// and dispatch returns a KindInvalidArgument error rather than panicking.
	Abductive     ModeEngine
	Counterfactual ModeEngine
	Temporal      ModeEngine
	Constraint    ModeEngine

	Enhancer   *gnn.Enhancer
	Tracker    TrajectoryEmitter
	Weights    ModeWeights
	Log        *zap.Logger
}

// New builds an Orchestrator with default mode weights; fields may be
// overridden before first use since this is a dependency bag, not a
// functional-options constructor (every field can also be nil for a
// partially wired instance used in tests).
func New(pattern, causal, contextual ModeEngine, enhancer *gnn.Enhancer, tracker TrajectoryEmitter, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		Pattern: pattern, Causal: causal, Contextual: contextual,
		Enhancer: enhancer, Tracker: tracker, Weights: DefaultModeWeights(), Log: log,
	}
}

// Reason is the orchestrator's single entry point.
func (o *Orchestrator) Reason(ctx context.Context, req contracts.ReasoningRequest) (contracts.ReasoningResponse, error) {
	start := time.Now()

	if err := o.validate(req); err != nil {
		return contracts.ReasoningResponse{}, err
	}

	base := req.QueryEmbedding
	queryEmbedding := base
	var enhanced contracts.Embedding
	if req.EnhanceWithGNN && o.Enhancer != nil {
		result := o.Enhancer.Enhance(ctx, base, nil)
		enhanced = result.Enhanced
		queryEmbedding = enhanced
	}

	output, confidence, err := o.dispatch(ctx, req, queryEmbedding)
	if err != nil {
		return contracts.ReasoningResponse{}, err
	}

	provenance := buildProvenance(output)

	resp := contracts.ReasoningResponse{
		QueryEmbedding:    base,
		Mode:              req.Mode,
		Patterns:          output.Patterns,
		CausalInferences:  output.CausalInferences,
		Confidence:        confidence,
		ProcessingTimeMs:  float64(time.Since(start).Microseconds()) / 1000.0,
		Provenance:        provenance,
		EnhancedEmbedding: enhanced,
	}

	if o.Tracker != nil {
		id, err := o.Tracker.Create(ctx, req, resp, base, enhanced, provenance.CombinedLScore)
		if err != nil {
			o.Log.Warn("trajectory emission failed", zap.Error(err))
		} else {
			resp.TrajectoryID = id
		}
	}

	return resp, nil
}

func (o *Orchestrator) validate(req contracts.ReasoningRequest) error {
	const op = "reasoning.Reason"
	if err := req.QueryEmbedding.CheckDim(op); err != nil {
		return err
	}
	if req.MaxResults <= 0 {
		return contracts.NewError(contracts.KindInvalidArgument, op, errMaxResults)
	}
	if req.ConfidenceThreshold < 0 || req.ConfidenceThreshold > 1 {
		return contracts.NewError(contracts.KindInvalidArgument, op, errThreshold)
	}
	if req.MinLScore < 0 || req.MinLScore > 1 {
		return contracts.NewError(contracts.KindInvalidArgument, op, errThreshold)
	}
	return nil
}

func (o *Orchestrator) dispatch(ctx context.Context, req contracts.ReasoningRequest, embedding contracts.Embedding) (ModeOutput, float64, error) {
	switch req.Mode {
	case contracts.ModePattern:
		out, err := runEngine(ctx, o.Pattern, req, embedding)
		return out, confidenceOf(out), err
	case contracts.ModeCausal:
		out, err := runEngine(ctx, o.Causal, req, embedding)
		return out, confidenceOf(out), err
	case contracts.ModeContextual:
		out, err := runEngine(ctx, o.Contextual, req, embedding)
		return out, confidenceOf(out), err
	case contracts.ModeHybrid:
		return o.dispatchHybrid(ctx, req, embedding)
	case contracts.ModeAbductive:
		return o.dispatchAdvanced(ctx, o.Abductive, req, embedding)
	case contracts.ModeCounterfactual:
		return o.dispatchAdvanced(ctx, o.Counterfactual, req, embedding)
	case contracts.ModeTemporal:
		return o.dispatchAdvanced(ctx, o.Temporal, req, embedding)
	case contracts.ModeConstraint:
		return o.dispatchAdvanced(ctx, o.Constraint, req, embedding)
	default:
		return ModeOutput{}, 0, contracts.NewError(contracts.KindInvalidArgument, "reasoning.Reason", errUnknownMode)
	}
}

// dispatchAdvanced runs one of the advanced mode engines, reporting
// KindInvalidArgument rather than a silent empty result when the engine
// was never wired (a nil engine means the composition root chose not to
// support that mode, not that the request is malformed).
func (o *Orchestrator) dispatchAdvanced(ctx context.Context, engine ModeEngine, req contracts.ReasoningRequest, embedding contracts.Embedding) (ModeOutput, float64, error) {
	if engine == nil {
		return ModeOutput{}, 0, contracts.NewError(contracts.KindInvalidArgument, "reasoning.Reason", errUnknownMode)
	}
	out, err := runEngine(ctx, engine, req, embedding)
	return out, confidenceOf(out), err
}

func runEngine(ctx context.Context, engine ModeEngine, req contracts.ReasoningRequest, embedding contracts.Embedding) (ModeOutput, error) {
	if engine == nil {
		return ModeOutput{}, nil
	}
	return engine.Run(ctx, req, embedding)
}

// dispatchHybrid runs all three modes in parallel and merges results. A
// sub-mode that errors contributes no results and its weight drops out of
// the average, rather than failing the whole request, unless every
// sub-mode failed, in which case the aggregated errors are returned.
func (o *Orchestrator) dispatchHybrid(ctx context.Context, req contracts.ReasoningRequest, embedding contracts.Embedding) (ModeOutput, float64, error) {
	var pattern, causal, contextual ModeOutput
	var patternOK, causalOK, contextualOK bool

	var mu sync.Mutex
	var subErrs *multierror.Error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := runEngine(gctx, o.Pattern, req, embedding)
		if err != nil {
			o.Log.Warn("hybrid pattern sub-mode failed", zap.Error(err))
			mu.Lock()
			subErrs = multierror.Append(subErrs, fmt.Errorf("pattern: %w", err))
			mu.Unlock()
			return nil
		}
		pattern, patternOK = out, true
		return nil
	})
	g.Go(func() error {
		out, err := runEngine(gctx, o.Causal, req, embedding)
		if err != nil {
			o.Log.Warn("hybrid causal sub-mode failed", zap.Error(err))
			mu.Lock()
			subErrs = multierror.Append(subErrs, fmt.Errorf("causal: %w", err))
			mu.Unlock()
			return nil
		}
		causal, causalOK = out, true
		return nil
	})
	g.Go(func() error {
		out, err := runEngine(gctx, o.Contextual, req, embedding)
		if err != nil {
			o.Log.Warn("hybrid contextual sub-mode failed", zap.Error(err))
			mu.Lock()
			subErrs = multierror.Append(subErrs, fmt.Errorf("contextual: %w", err))
			mu.Unlock()
			return nil
		}
		contextual, contextualOK = out, true
		return nil
	})
	_ = g.Wait() // sub-mode errors are aggregated above, not propagated individually

	if !patternOK && !causalOK && !contextualOK && subErrs != nil {
		return ModeOutput{}, 0, contracts.NewError(contracts.KindUnknown, "reasoning.Reason", subErrs)
	}

	merged := ModeOutput{
		Patterns:         append(append([]contracts.PatternMatch(nil), pattern.Patterns...), contextual.Patterns...),
		CausalInferences: causal.CausalInferences,
	}

	var weightedSum, weightTotal float64
	if patternOK {
		weightedSum += o.Weights.Pattern * confidenceOf(pattern)
		weightTotal += o.Weights.Pattern
	}
	if causalOK {
		weightedSum += o.Weights.Causal * confidenceOf(causal)
		weightTotal += o.Weights.Causal
	}
	if contextualOK {
		weightedSum += o.Weights.Contextual * confidenceOf(contextual)
		weightTotal += o.Weights.Contextual
	}
	confidence := 0.0
	if weightTotal > 0 {
		confidence = weightedSum / weightTotal
	}
	return merged, confidence, nil
}

// confidenceOf is the mean confidence across an output's patterns and
// causal inferences, or 0 if it produced nothing.
func confidenceOf(out ModeOutput) float64 {
	var sum float64
	var n int
	for _, p := range out.Patterns {
		sum += p.Confidence
		n++
	}
	for _, c := range out.CausalInferences {
		sum += c.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func buildProvenance(out ModeOutput) contracts.Provenance {
	var scores []float64
	for _, p := range out.Patterns {
		scores = append(scores, p.LScore)
	}
	for _, c := range out.CausalInferences {
		scores = append(scores, c.LScore)
	}
	return contracts.Provenance{
		PerResultLScores: scores,
		TotalSources:     len(scores),
		CombinedLScore:   geomean(scores),
	}
}
