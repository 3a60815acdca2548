// Package causalgraph is the causal hypergraph store: nodes connected by
// hyperedges whose causes and effects are sets rather than single
// endpoints, with cycle-safe insertion and confidence-decaying forward and
// backward traversal.
package causalgraph

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cogpy/causalreason/core/contracts"
)

// NodeKind classifies a causal node.
type NodeKind string

const (
	KindConcept NodeKind = "concept"
	KindAction  NodeKind = "action"
	KindState   NodeKind = "state"
)

// Node is a single vertex in the hypergraph.
type Node struct {
	ID        string
	Label     string
	Kind      NodeKind
	Metadata  map[string]any
	CreatedAt time.Time
}

// Hyperedge is a causal link from a set of cause nodes to a set of effect
// nodes. Causes and effects are disjoint and both non-empty.
type Hyperedge struct {
	ID         string
	Causes     map[string]struct{}
	Effects    map[string]struct{}
	Confidence float64
	Strength   float64
	Metadata   map[string]any
	CreatedAt  time.Time
	ExpiresAt  *time.Time
}

// CauseIDs returns the cause node ids in sorted order.
func (h *Hyperedge) CauseIDs() []string { return sortedKeys(h.Causes) }

// EffectIDs returns the effect node ids in sorted order.
func (h *Hyperedge) EffectIDs() []string { return sortedKeys(h.Effects) }

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func toSet(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

// Graph is the hypergraph store. All mutations are serialized by mu; reads
// may run concurrently with each other but not with a mutation.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	edges map[string]*Hyperedge

	// OnMutate, if set, is called after any operation that adds, updates,
	// or removes a node or hyperedge, with every node id the mutation
	// touched. The embedding cache's node-scoped invalidation is wired
	// through this rather than the graph importing the cache directly.
	OnMutate func(nodeIDs []string)
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[string]*Hyperedge),
	}
}

func (g *Graph) notify(nodeIDs []string) {
	if g.OnMutate != nil && len(nodeIDs) > 0 {
		g.OnMutate(nodeIDs)
	}
}

// AddNode inserts or replaces a node by id.
func (g *Graph) AddNode(n *Node) error {
	if n.ID == "" {
		return contracts.NewError(contracts.KindInvalidArgument, "causalgraph.AddNode", errEmptyID)
	}
	g.mu.Lock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	g.nodes[n.ID] = n
	g.mu.Unlock()
	g.notify([]string{n.ID})
	return nil
}

// UpdateNode replaces the stored node for id, erroring with NotFound if it
// does not exist.
func (g *Graph) UpdateNode(id string, mutate func(*Node)) error {
	g.mu.Lock()
	n, ok := g.nodes[id]
	if !ok {
		g.mu.Unlock()
		return contracts.NewError(contracts.KindNotFound, "causalgraph.UpdateNode", errNodeNotFound(id))
	}
	mutate(n)
	g.mu.Unlock()
	g.notify([]string{id})
	return nil
}

// RemoveNode deletes a node and cascade-deletes every hyperedge that
// references it as a cause or effect, atomically under the graph lock.
func (g *Graph) RemoveNode(id string) error {
	g.mu.Lock()
	if _, ok := g.nodes[id]; !ok {
		g.mu.Unlock()
		return contracts.NewError(contracts.KindNotFound, "causalgraph.RemoveNode", errNodeNotFound(id))
	}
	touched := map[string]struct{}{id: {}}
	delete(g.nodes, id)
	for eid, e := range g.edges {
		_, isCause := e.Causes[id]
		_, isEffect := e.Effects[id]
		if !isCause && !isEffect {
			continue
		}
		for n := range e.Causes {
			touched[n] = struct{}{}
		}
		for n := range e.Effects {
			touched[n] = struct{}{}
		}
		delete(g.edges, eid)
	}
	g.mu.Unlock()
	g.notify(sortedKeys(touched))
	return nil
}

// GetNode returns a copy of the node's pointer (callers must not mutate
// Metadata concurrently with other readers).
func (g *Graph) GetNode(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// GetHyperedge returns the edge by id.
func (g *Graph) GetHyperedge(id string) (*Hyperedge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[id]
	return e, ok
}

// AllHyperedges returns every stored edge, in no particular order.
func (g *Graph) AllHyperedges() []*Hyperedge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Hyperedge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	return out
}

// GetAllHyperedges implements contracts.GraphStore so the temporal
// advanced mode can enumerate this graph's edges without causalgraph
// depending on the reasoning package.
func (g *Graph) GetAllHyperedges(ctx context.Context) ([]contracts.StoredHyperedge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]contracts.StoredHyperedge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, contracts.StoredHyperedge{
			ID: e.ID, Causes: e.CauseIDs(), Effects: e.EffectIDs(),
			Confidence: e.Confidence, Strength: e.Strength,
			CreatedAt: e.CreatedAt.Unix(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

// NodeCount and EdgeCount report current sizes.
func (g *Graph) NodeCount() int { g.mu.RLock(); defer g.mu.RUnlock(); return len(g.nodes) }
func (g *Graph) EdgeCount() int { g.mu.RLock(); defer g.mu.RUnlock(); return len(g.edges) }
