package causalgraph

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/cogpy/causalreason/core/contracts"
)

// ValidateIntegrity checks that every hyperedge endpoint resolves to a
// stored node and that every confidence/strength field is in [0,1]. It
// does not re-check for cycles, since AddCausalLink never lets one in.
// Every violation found is collected rather than returned on the first
// one, so a caller fixing up a corrupt graph sees the whole list at
// once instead of re-running this once per bug.
func (g *Graph) ValidateIntegrity() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var result *multierror.Error
	for _, e := range g.edges {
		if e.Confidence < 0 || e.Confidence > 1 {
			result = multierror.Append(result, fmt.Errorf("hyperedge %q confidence %v out of [0,1]", e.ID, e.Confidence))
		}
		if e.Strength < 0 || e.Strength > 1 {
			result = multierror.Append(result, fmt.Errorf("hyperedge %q strength %v out of [0,1]", e.ID, e.Strength))
		}
		for id := range e.Causes {
			if _, ok := g.nodes[id]; !ok {
				result = multierror.Append(result, fmt.Errorf("hyperedge %q references dangling cause %q", e.ID, id))
			}
		}
		for id := range e.Effects {
			if _, ok := g.nodes[id]; !ok {
				result = multierror.Append(result, fmt.Errorf("hyperedge %q references dangling effect %q", e.ID, id))
			}
		}
	}
	if result == nil {
		return nil
	}
	return contracts.NewError(contracts.KindIntegrityViolation, "causalgraph.ValidateIntegrity", result)
}
