package contracts

import "context"

// The interfaces in this file are consumed, never implemented, by the
// core reasoning/training packages: they describe external systems this
// module talks to but does not own. core/persistence provides one
// concrete PersistentKV adapter (Dgraph-backed); core/memstore provides
// in-memory stand-ins for Embedder, VectorIndex, PatternStore and
// ActivityStream; causalgraph.Graph implements GraphStore.

// Embedder turns text into a unit-normalized Embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) (Embedding, error)
}

// VectorSearchHit is one VectorIndex.Search result.
type VectorSearchHit struct {
	ID         string
	Similarity float64 // in [-1, 1]
	Metadata   map[string]any
}

// VectorIndex is the approximate nearest-neighbor index the core only
// consumes through this interface.
type VectorIndex interface {
	Search(ctx context.Context, q Embedding, k int) ([]VectorSearchHit, error)
	Add(ctx context.Context, id string, embedding Embedding, metadata map[string]any) error
}

// GraphStore is the generic graph store used by the temporal advanced
// mode to enumerate hyperedges independent of the causal hypergraph's
// own traversal API.
type GraphStore interface {
	GetAllHyperedges(ctx context.Context) ([]StoredHyperedge, error)
}

// StoredHyperedge is the shape GraphStore returns; it mirrors the public
// fields of causalgraph.Hyperedge without importing that package (it
// would create an import cycle, since causalgraph imports contracts).
type StoredHyperedge struct {
	ID         string
	Causes     []string
	Effects    []string
	Confidence float64
	Strength   float64
	CreatedAt  int64
}

// PatternQuery is the input to PatternStore.FindPatterns.
type PatternQuery struct {
	Embedding    Embedding
	TaskType     string
	TopK         int
	MinConfidence float64
}

// PatternHit is one PatternStore.FindPatterns result.
type PatternHit struct {
	Pattern    PatternMatch
	Confidence float64
}

// PatternStore is the external pattern-recall backend.
type PatternStore interface {
	FindPatterns(ctx context.Context, q PatternQuery) ([]PatternHit, error)
	CreatePattern(ctx context.Context, p PatternMatch) error
}

// PersistentKV is the generic namespaced key/value store the hypergraph
// uses to persist its JSON snapshot, under namespace "research" and key
// "causal-graph".
type PersistentKV interface {
	Store(ctx context.Context, namespace, key string, value []byte) error
	Retrieve(ctx context.Context, namespace, key string) ([]byte, bool, error)
}

// OnlineLearnerUpdate is the result of OnlineLearner.ProvideFeedback.
type OnlineLearnerUpdate struct {
	PatternID string
	Route     string
	NewWeight float64
	Applied   bool
}

// OnlineLearner is the weight-update collaborator the trajectory tracker
// forwards trajectories and feedback to via the late-bound proxy in
// core/learner.
type OnlineLearner interface {
	CreateTrajectoryWithID(ctx context.Context, id string, route string, patternIDs, contextIDs []string) error
	ProvideFeedback(ctx context.Context, trajectoryID string, feedback Feedback) (OnlineLearnerUpdate, error)
	GetWeight(ctx context.Context, patternID, route string) (float64, error)
	GetTrajectory(ctx context.Context, id string) (*Trajectory, bool, error)
	HasTrajectoryInStorage(ctx context.Context, id string) (bool, error)
	GetTrajectoryInStorage(ctx context.Context, id string) (*Trajectory, bool, error)
}

// ActivityStream is an optional, best-effort telemetry sink. Errors here
// must never affect reasoning.
type ActivityStream interface {
	Emit(ctx context.Context, event string, fields map[string]any)
}
