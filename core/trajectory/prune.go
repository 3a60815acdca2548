package trajectory

import (
	"context"
	"math"
	"time"
)

// FindSimilar runs cosine similarity over in-memory trajectories, using
// the enhanced embedding when present, against the query embedding. It
// returns up to k hits with similarity >= minSim, ordered best-first.
func (t *Tracker) FindSimilar(embedding []float64, k int, minSim float64) []Hit {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var hits []Hit
	for id, traj := range t.trajectories {
		candidate := traj.BaseEmbedding
		if len(traj.EnhancedEmbedding) > 0 {
			candidate = traj.EnhancedEmbedding
		}
		sim := cosineSimilarity(embedding, candidate)
		if sim >= minSim {
			hits = append(hits, Hit{TrajectoryID: id, Similarity: sim})
		}
	}
	sortHitsDesc(hits)
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Hit is one FindSimilar result.
type Hit struct {
	TrajectoryID string
	Similarity   float64
}

func sortHitsDesc(hits []Hit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Similarity > hits[j-1].Similarity; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	for _, v := range a {
		na += v * v
	}
	for _, v := range b {
		nb += v * v
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// PruneExpired drops trajectories older than the configured retention and
// returns how many were removed.
func (t *Tracker) PruneExpired() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-t.cfg.Retention)
	removed := 0
	for id, traj := range t.trajectories {
		if traj.Timestamp.Before(cutoff) {
			delete(t.trajectories, id)
			removed++
		}
	}
	return removed
}

// EvictLowestPriority drops the trajectory with the lowest
// quality/(age_days+1) score, used when the store exceeds its capacity.
// It is a no-op if the store is empty.
func (t *Tracker) EvictLowestPriority() {
	t.mu.Lock()
	defer t.mu.Unlock()

	var worstID string
	worstScore := math.Inf(1)
	now := time.Now()
	for id, traj := range t.trajectories {
		ageDays := now.Sub(traj.Timestamp).Hours() / 24
		quality := 0.0
		if traj.Feedback != nil {
			quality = traj.Feedback.Quality
		}
		score := quality / (ageDays + 1)
		if score < worstScore {
			worstScore = score
			worstID = id
		}
	}
	if worstID != "" {
		delete(t.trajectories, worstID)
	}
}

// Count returns the number of in-memory trajectories.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.trajectories)
}

// StartAutoPrune launches a background pruning loop on the configured
// interval; it stops when ctx is cancelled.
func (t *Tracker) StartAutoPrune(ctx context.Context) {
	interval := t.cfg.PruneInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.PruneExpired()
			}
		}
	}()
}
