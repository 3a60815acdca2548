package causalgraph

import (
	"encoding/json"
	"time"

	"github.com/cogpy/causalreason/core/contracts"
)

// wireNode and wireEdge are the stable, persistence-facing shapes: sets
// become sorted string slices so the JSON document is deterministic byte
// for byte across runs given the same graph content.
type wireNode struct {
	ID        string         `json:"id"`
	Label     string         `json:"label"`
	Kind      string         `json:"kind"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type wireEdge struct {
	ID         string         `json:"id"`
	Causes     []string       `json:"causes"`
	Effects    []string       `json:"effects"`
	Confidence float64        `json:"confidence"`
	Strength   float64        `json:"strength"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
}

type wireDoc struct {
	Nodes []wireNode `json:"nodes"`
	Links []wireEdge `json:"links"`
}

// ToJSON serializes the graph to the persisted document shape
// {nodes:[...], links:[...]}.
func (g *Graph) ToJSON() ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc := wireDoc{}
	for _, n := range g.nodes {
		doc.Nodes = append(doc.Nodes, wireNode{
			ID: n.ID, Label: n.Label, Kind: string(n.Kind),
			Metadata: n.Metadata, CreatedAt: n.CreatedAt,
		})
	}
	for _, e := range g.edges {
		doc.Links = append(doc.Links, wireEdge{
			ID: e.ID, Causes: e.CauseIDs(), Effects: e.EffectIDs(),
			Confidence: e.Confidence, Strength: e.Strength,
			Metadata: e.Metadata, CreatedAt: e.CreatedAt, ExpiresAt: e.ExpiresAt,
		})
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, contracts.NewError(contracts.KindPersistence, "causalgraph.ToJSON", err)
	}
	return data, nil
}

// FromJSON replaces the graph's contents with the document encoded in
// data. Nodes are loaded before links so link endpoint validation against
// the freshly loaded node set succeeds.
func FromJSON(data []byte) (*Graph, error) {
	var doc wireDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, contracts.NewError(contracts.KindPersistence, "causalgraph.FromJSON", err)
	}

	g := New()
	for _, n := range doc.Nodes {
		g.nodes[n.ID] = &Node{
			ID: n.ID, Label: n.Label, Kind: NodeKind(n.Kind),
			Metadata: n.Metadata, CreatedAt: n.CreatedAt,
		}
	}
	for _, e := range doc.Links {
		g.edges[e.ID] = &Hyperedge{
			ID: e.ID, Causes: toSet(e.Causes), Effects: toSet(e.Effects),
			Confidence: e.Confidence, Strength: e.Strength,
			Metadata: e.Metadata, CreatedAt: e.CreatedAt, ExpiresAt: e.ExpiresAt,
		}
	}
	return g, nil
}
