package causalgraph

import (
	"sort"
	"time"
)

// Chain is a derived (never stored) path of hyperedges explored during a
// traversal.
type Chain struct {
	Path            []string // hyperedge ids, in traversal order
	StartNodes      []string
	EndNodes        []string
	TotalConfidence float64
	Depth           int
}

// TraversalResult is what InferConsequences and FindCauses return.
type TraversalResult struct {
	Nodes           []string // reached node ids, excluding the seeds
	Chains          []Chain
	NodesExplored   int
	TraversalTimeMs float64
}

// TraversalOptions tunes decay, pruning, and AND- vs any-cause triggering.
type TraversalOptions struct {
	Decay        float64 // per-hop multiplier, default 0.9
	Epsilon      float64 // prune chains below this confidence, default 1e-4
	AnyCause     bool    // relaxed triggering: any matched endpoint fires the edge, instead of requiring all
}

// DefaultTraversalOptions matches the documented defaults.
func DefaultTraversalOptions() TraversalOptions {
	return TraversalOptions{Decay: 0.9, Epsilon: 1e-4, AnyCause: false}
}

type searchState struct {
	edgeIDs    []string
	reached    map[string]struct{}
	confidence float64
	depth      int
}

// InferConsequences performs forward traversal from seeds through
// cause-to-effect hyperedges: AND-semantics requires every one of an
// edge's causes to already be reached; the relaxed any-cause mode fires
// an edge as soon as one cause is reached. Each hop multiplies the running
// chain confidence by edge.Confidence * opts.Decay; chains whose
// confidence drops below opts.Epsilon, or whose depth would exceed
// maxDepth, are pruned rather than explored further.
func (g *Graph) InferConsequences(seeds []string, maxDepth int, opts TraversalOptions) *TraversalResult {
	return g.traverse(seeds, maxDepth, opts, func(e *Hyperedge) map[string]struct{} { return e.Causes },
		func(e *Hyperedge) map[string]struct{} { return e.Effects })
}

// FindCauses performs the symmetric backward traversal: from a set of
// effect nodes, walks edges backward to their causes.
func (g *Graph) FindCauses(effects []string, maxDepth int, opts TraversalOptions) *TraversalResult {
	return g.traverse(effects, maxDepth, opts, func(e *Hyperedge) map[string]struct{} { return e.Effects },
		func(e *Hyperedge) map[string]struct{} { return e.Causes })
}

// traverse is shared by InferConsequences and FindCauses; trigger picks
// the endpoint set that must be (fully or partially) reached for an edge
// to fire, extend picks the endpoint set the frontier grows into.
func (g *Graph) traverse(seeds []string, maxDepth int, opts TraversalOptions, trigger, extend func(*Hyperedge) map[string]struct{}) *TraversalResult {
	start := time.Now()
	if opts.Decay == 0 {
		opts.Decay = 0.9
	}
	if opts.Epsilon == 0 {
		opts.Epsilon = 1e-4
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	seedSet := toSet(seeds)
	explored := make(map[string]struct{}, len(seeds))
	for s := range seedSet {
		explored[s] = struct{}{}
	}

	var chains []Chain
	var walk func(st searchState)
	walk = func(st searchState) {
		if st.depth >= maxDepth {
			return
		}
		for _, e := range g.edges {
			if containsID(st.edgeIDs, e.ID) {
				continue
			}
			trig := trigger(e)
			if !edgeFires(trig, st.reached, opts.AnyCause) {
				continue
			}
			newConf := st.confidence * e.Confidence * opts.Decay
			if newConf < opts.Epsilon {
				continue
			}
			newReached := cloneSet(st.reached)
			ext := extend(e)
			for id := range ext {
				newReached[id] = struct{}{}
				explored[id] = struct{}{}
			}
			newPath := append(append([]string(nil), st.edgeIDs...), e.ID)
			chains = append(chains, Chain{
				Path:            newPath,
				StartNodes:      seeds,
				EndNodes:        sortedKeys(ext),
				TotalConfidence: newConf,
				Depth:           st.depth + 1,
			})
			walk(searchState{edgeIDs: newPath, reached: newReached, confidence: newConf, depth: st.depth + 1})
		}
	}
	walk(searchState{reached: cloneSet(seedSet), confidence: 1.0, depth: 0})

	sort.Slice(chains, func(i, j int) bool {
		if chains[i].TotalConfidence != chains[j].TotalConfidence {
			return chains[i].TotalConfidence > chains[j].TotalConfidence
		}
		if chains[i].Depth != chains[j].Depth {
			return chains[i].Depth < chains[j].Depth
		}
		return lastEdgeID(chains[i]) < lastEdgeID(chains[j])
	})

	nodes := make(map[string]struct{})
	for _, c := range chains {
		for _, n := range c.EndNodes {
			if _, isSeed := seedSet[n]; isSeed {
				continue
			}
			nodes[n] = struct{}{}
		}
	}

	return &TraversalResult{
		Nodes:           sortedKeys(nodes),
		Chains:          chains,
		NodesExplored:   len(explored),
		TraversalTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
}

func lastEdgeID(c Chain) string {
	if len(c.Path) == 0 {
		return ""
	}
	return c.Path[len(c.Path)-1]
}

func edgeFires(trigger, reached map[string]struct{}, anyCause bool) bool {
	if len(trigger) == 0 {
		return false
	}
	hit := 0
	for id := range trigger {
		if _, ok := reached[id]; ok {
			hit++
			if anyCause {
				return true
			}
		}
	}
	return hit == len(trigger)
}

func containsID(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func cloneSet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
