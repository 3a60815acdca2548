// Package memstore provides in-memory stand-ins for the external
// collaborators core/contracts only declares interfaces for: an
// embedder, a vector index, a pattern store, and an activity stream.
// They exist so the composition root has something runnable to wire
// against without a real embedding service, vector database, or
// telemetry sink; production deployments swap these for real adapters
// without touching core/reasoning or core/trajectory.
package memstore

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/cogpy/causalreason/core/contracts"
)

// HashEmbedder turns text into a deterministic unit-normalized embedding
// by hashing it into EmbeddingDim buckets. It produces no semantic
// similarity whatsoever; it exists to exercise the Embedder contract end
// to end, not to reason well.
type HashEmbedder struct{}

func (HashEmbedder) Embed(_ context.Context, text string) (contracts.Embedding, error) {
	out := make(contracts.Embedding, contracts.EmbeddingDim)
	seed := sha256.Sum256([]byte(text))
	for i := range out {
		shifted := sha256.Sum256(append(seed[:], byte(i), byte(i>>8)))
		bits := binary.BigEndian.Uint64(shifted[:8])
		out[i] = (float64(bits%2000) - 1000) / 1000
	}
	return normalize(out), nil
}

func normalize(e contracts.Embedding) contracts.Embedding {
	var sum float64
	for _, v := range e {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm < 1e-12 {
		return e
	}
	out := make(contracts.Embedding, len(e))
	for i, v := range e {
		out[i] = v / norm
	}
	return out
}

type vectorEntry struct {
	id        string
	embedding contracts.Embedding
	metadata  map[string]any
}

// VectorIndex is a brute-force cosine-similarity index: fine for a demo
// corpus, but every Search scores every stored entry and sorts them all,
// which is why contracts.VectorIndex stays an interface rather than this
// concrete type.
type VectorIndex struct {
	mu      sync.RWMutex
	entries []vectorEntry
}

func NewVectorIndex() *VectorIndex { return &VectorIndex{} }

func (v *VectorIndex) Add(_ context.Context, id string, embedding contracts.Embedding, metadata map[string]any) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = append(v.entries, vectorEntry{id: id, embedding: embedding, metadata: metadata})
	return nil
}

func (v *VectorIndex) Search(_ context.Context, q contracts.Embedding, k int) ([]contracts.VectorSearchHit, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	hits := make([]contracts.VectorSearchHit, 0, len(v.entries))
	for _, e := range v.entries {
		hits = append(hits, contracts.VectorSearchHit{ID: e.id, Similarity: cosine(q, e.embedding), Metadata: e.metadata})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func cosine(a, b contracts.Embedding) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na < 1e-12 || nb < 1e-12 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// PatternStore is an in-memory keyword-free pattern recall backend: it
// scores stored patterns by cosine similarity between the query and
// vectors[PatternID], returning contracts.PatternMatch instead of raw
// hits. CreatePattern stores no embedding and nothing else fills vectors,
// so every pattern scores 0: with MinConfidence above 0 FindPatterns
// returns nothing, otherwise it returns every matching-task pattern with
// confidence 0.
type PatternStore struct {
	mu       sync.RWMutex
	patterns []contracts.PatternMatch
	vectors  map[string]contracts.Embedding
}

func NewPatternStore() *PatternStore {
	return &PatternStore{vectors: make(map[string]contracts.Embedding)}
}

func (p *PatternStore) CreatePattern(_ context.Context, pat contracts.PatternMatch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.patterns = append(p.patterns, pat)
	return nil
}

func (p *PatternStore) FindPatterns(_ context.Context, q contracts.PatternQuery) ([]contracts.PatternHit, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	hits := make([]contracts.PatternHit, 0, len(p.patterns))
	for _, pat := range p.patterns {
		if q.TaskType != "" && pat.TaskType != q.TaskType {
			continue
		}
		sim := cosine(q.Embedding, p.vectors[pat.PatternID])
		if sim < q.MinConfidence {
			continue
		}
		hits = append(hits, contracts.PatternHit{Pattern: pat, Confidence: sim})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Confidence > hits[j].Confidence })
	if q.TopK > 0 && len(hits) > q.TopK {
		hits = hits[:q.TopK]
	}
	return hits, nil
}

// LogActivityStream emits every event as a structured log line. Errors
// from the underlying logger are impossible by construction (zap never
// returns one from Info), matching the contract's "must never affect
// reasoning" requirement trivially rather than by swallowing errors.
type LogActivityStream struct {
	Log *zap.Logger
}

func (s LogActivityStream) Emit(_ context.Context, event string, fields map[string]any) {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	log.Info(event, zapFields...)
}
