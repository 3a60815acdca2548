package trajectory

import (
	"fmt"

	"github.com/cogpy/causalreason/core/causalgraph"
	"github.com/cogpy/causalreason/core/contracts"
)

// distill promotes a high-quality trajectory into a new causal hyperedge:
// one "query" cause node, up to 3 "pattern" cause nodes drawn from the
// response's patterns, up to 3 "effect" nodes drawn from its causal
// inferences, and one "outcome" effect node labeled with the feedback
// quality. It is a no-op if no graph is wired.
func (t *Tracker) distill(traj *contracts.Trajectory, feedback contracts.Feedback) error {
	if t.Graph == nil {
		return nil
	}

	queryNodeID := "query-" + traj.ID
	if err := t.Graph.AddNode(&causalgraph.Node{ID: queryNodeID, Label: "query", Kind: causalgraph.KindConcept}); err != nil {
		return err
	}
	causes := []string{queryNodeID}

	for i, p := range traj.Response.Patterns {
		if i >= 3 {
			break
		}
		nodeID := "pattern-" + p.PatternID
		if err := t.Graph.AddNode(&causalgraph.Node{ID: nodeID, Label: p.PatternID, Kind: causalgraph.KindConcept}); err != nil {
			return err
		}
		causes = append(causes, nodeID)
	}

	var effects []string
	for i, c := range traj.Response.CausalInferences {
		if i >= 3 {
			break
		}
		nodeID := "effect-" + c.NodeID
		if err := t.Graph.AddNode(&causalgraph.Node{ID: nodeID, Label: c.NodeID, Kind: causalgraph.KindState}); err != nil {
			return err
		}
		effects = append(effects, nodeID)
	}

	outcomeID := "outcome-" + traj.ID
	if err := t.Graph.AddNode(&causalgraph.Node{
		ID:    outcomeID,
		Label: fmt.Sprintf("outcome(quality=%.2f)", feedback.Quality),
		Kind:  causalgraph.KindState,
	}); err != nil {
		return err
	}
	effects = append(effects, outcomeID)

	_, err := t.Graph.AddCausalLink(causalgraph.LinkInput{
		Causes:     causes,
		Effects:    effects,
		Confidence: feedback.Quality,
		Strength:   feedback.Quality,
		Metadata:   map[string]any{"source": "high-quality-feedback"},
	})
	return err
}
