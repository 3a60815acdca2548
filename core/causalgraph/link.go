package causalgraph

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cogpy/causalreason/core/contracts"
)

var (
	errEmptyID  = errors.New("id must not be empty")
	errBadRange = errors.New("value must be in [0,1]")
)

func errNodeNotFound(id string) error {
	return fmt.Errorf("node %q not found", id)
}

// LinkInput is the validated input to AddCausalLink.
type LinkInput struct {
	Causes     []string
	Effects    []string
	Confidence float64
	Strength   float64
	Metadata   map[string]any
}

// AddCausalLink inserts a new hyperedge after validating its endpoints,
// confidence/strength range, cause/effect disjointness, and that it would
// not introduce a directed cycle over the transitive cause-to-effect
// relation. Rejects an endpoint set that duplicates an existing edge's
// causes and effects exactly.
func (g *Graph) AddCausalLink(in LinkInput) (*Hyperedge, error) {
	const op = "causalgraph.AddCausalLink"

	if len(in.Causes) == 0 || len(in.Effects) == 0 {
		return nil, contracts.NewError(contracts.KindInvalidArgument, op, errors.New("causes and effects must both be non-empty"))
	}
	if in.Confidence < 0 || in.Confidence > 1 || in.Strength < 0 || in.Strength > 1 {
		return nil, contracts.NewError(contracts.KindInvalidArgument, op, errBadRange)
	}

	causes := toSet(in.Causes)
	effects := toSet(in.Effects)
	for id := range causes {
		if _, in := effects[id]; in {
			return nil, contracts.NewError(contracts.KindIntegrityViolation, op, fmt.Errorf("node %q is both a cause and an effect", id))
		}
	}

	g.mu.Lock()

	for id := range causes {
		if _, ok := g.nodes[id]; !ok {
			g.mu.Unlock()
			return nil, contracts.NewError(contracts.KindIntegrityViolation, op, errNodeNotFound(id))
		}
	}
	for id := range effects {
		if _, ok := g.nodes[id]; !ok {
			g.mu.Unlock()
			return nil, contracts.NewError(contracts.KindIntegrityViolation, op, errNodeNotFound(id))
		}
	}

	for _, e := range g.edges {
		if sameSet(e.Causes, causes) && sameSet(e.Effects, effects) {
			g.mu.Unlock()
			return nil, contracts.NewError(contracts.KindIntegrityViolation, op, errors.New("duplicate causes/effects endpoint set"))
		}
	}

	if g.wouldCreateCycleLocked(causes, effects) {
		g.mu.Unlock()
		return nil, contracts.NewError(contracts.KindIntegrityViolation, op, errors.New("insertion would create a directed cycle"))
	}

	edge := &Hyperedge{
		ID:         uuid.NewString(),
		Causes:     causes,
		Effects:    effects,
		Confidence: in.Confidence,
		Strength:   in.Strength,
		Metadata:   in.Metadata,
		CreatedAt:  time.Now(),
	}
	g.edges[edge.ID] = edge
	g.mu.Unlock()

	g.notify(append(append([]string(nil), edge.CauseIDs()...), edge.EffectIDs()...))
	return edge, nil
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// wouldCreateCycleLocked reports whether adding an edge causes->effects
// would create a directed cycle, by checking whether any effect node can
// already transitively reach any cause node through existing edges. Must
// be called with g.mu held.
func (g *Graph) wouldCreateCycleLocked(causes, effects map[string]struct{}) bool {
	visited := make(map[string]bool)
	var stack []string
	for id := range effects {
		stack = append(stack, id)
	}
	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		if _, hit := causes[cur]; hit {
			return true
		}
		for _, e := range g.edges {
			if _, isCause := e.Causes[cur]; !isCause {
				continue
			}
			for eff := range e.Effects {
				if !visited[eff] {
					stack = append(stack, eff)
				}
			}
		}
	}
	return false
}
