// Package trajectory owns the trajectory lifecycle: creation on every
// reasoning request, feedback ingestion, lazy rehydration from persistent
// storage, LRU-with-quality-preference eviction, retention-based pruning,
// and distillation of high-quality trajectories into new causal
// hyperedges.
package trajectory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cogpy/causalreason/core/causalgraph"
	"github.com/cogpy/causalreason/core/contracts"
)

// TrainingSink is the narrow interface the tracker uses to forward
// feedback-annotated trajectories toward batched GNN training, kept
// separate from contracts.OnlineLearner since the two collaborators are
// unrelated apart from both being fed by feedback.
type TrainingSink interface {
	Append(sample contracts.TrainingSample)
}

// Config controls capacity, retention, and the distillation threshold.
type Config struct {
	MaxTrajectories        int
	Retention              time.Duration
	PruneInterval          time.Duration
	DistillationMinQuality float64
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxTrajectories:        10_000,
		Retention:              7 * 24 * time.Hour,
		PruneInterval:          time.Hour,
		DistillationMinQuality: 0.8,
	}
}

// Tracker is the trajectory store. Learner is late-bound (see
// core/learner) so the tracker can be constructed before the learner
// exists; it is never nil once wired, since core/learner's default proxy
// implements contracts.OnlineLearner with safe no-op defaults.
type Tracker struct {
	mu           sync.RWMutex
	trajectories map[string]*contracts.Trajectory

	Learner      contracts.OnlineLearner
	Graph        *causalgraph.Graph
	TrainingSink TrainingSink
	Log          *zap.Logger

	cfg Config
}

// New builds a Tracker. learner, graph, and sink may be nil; a nil
// learner degrades Create/UpdateFeedback's learner forwarding to a no-op.
func New(cfg Config, learner contracts.OnlineLearner, graph *causalgraph.Graph, sink TrainingSink, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		trajectories: make(map[string]*contracts.Trajectory),
		Learner:      learner,
		Graph:        graph,
		TrainingSink: sink,
		Log:          log,
		cfg:          cfg,
	}
}

func newTrajectoryID() string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("traj_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(buf[:]))
}

// Create stores a new trajectory and forwards it to the online learner
// proxy. Learner forwarding failures are logged, never returned: trajectory
// creation must never fail because of a downstream collaborator.
func (t *Tracker) Create(ctx context.Context, req contracts.ReasoningRequest, resp contracts.ReasoningResponse, base, enhanced contracts.Embedding, lScore float64) (string, error) {
	id := newTrajectoryID()
	traj := &contracts.Trajectory{
		ID:                id,
		Timestamp:         time.Now(),
		Request:           req,
		Response:          resp,
		BaseEmbedding:     base,
		EnhancedEmbedding: enhanced,
		LScore:            lScore,
	}

	t.mu.Lock()
	t.trajectories[id] = traj
	overCap := len(t.trajectories) > t.cfg.MaxTrajectories
	t.mu.Unlock()

	if t.Learner != nil {
		route := string(req.Mode)
		var patternIDs, contextIDs []string
		for _, p := range resp.Patterns {
			patternIDs = append(patternIDs, p.PatternID)
		}
		for _, c := range resp.CausalInferences {
			contextIDs = append(contextIDs, c.NodeID)
		}
		if err := t.Learner.CreateTrajectoryWithID(ctx, id, route, patternIDs, contextIDs); err != nil {
			t.Log.Warn("online learner trajectory forwarding failed", zap.String("trajectory_id", id), zap.Error(err))
		}
	}

	if overCap {
		t.EvictLowestPriority()
	}
	return id, nil
}

// UpdateFeedback merges feedback onto a trajectory (last write wins for
// repeated calls), lazily rehydrating it from the online learner's
// persistent storage if it is not held in memory. It forwards feedback to
// the learner, appends a training sample, and distills a hyperedge when
// quality crosses the documented threshold. All downstream failures are
// logged and never propagated: feedback ingestion always succeeds once the
// trajectory itself is found.
func (t *Tracker) UpdateFeedback(ctx context.Context, id string, feedback contracts.Feedback) error {
	const op = "trajectory.UpdateFeedback"

	traj, ok := t.Get(id)
	if !ok {
		rehydrated, found, err := t.rehydrate(ctx, id)
		if err != nil || !found {
			return contracts.NewError(contracts.KindNotFound, op, errTrajectoryNotFound(id))
		}
		traj = rehydrated
	}

	t.mu.Lock()
	traj.Feedback = &feedback
	t.trajectories[id] = traj
	t.mu.Unlock()

	if t.Learner != nil {
		if _, err := t.Learner.ProvideFeedback(ctx, id, feedback); err != nil {
			t.Log.Warn("online learner feedback forwarding failed", zap.String("trajectory_id", id), zap.Error(err))
		}
	}

	if t.TrainingSink != nil {
		t.TrainingSink.Append(contracts.TrainingSample{
			TrajectoryID:      id,
			Embedding:         traj.BaseEmbedding,
			EnhancedEmbedding: traj.EnhancedEmbedding,
			Quality:           feedback.Quality,
		})
	}

	if feedback.Quality >= t.cfg.DistillationMinQuality {
		if err := t.distill(traj, feedback); err != nil {
			t.Log.Warn("hyperedge distillation failed", zap.String("trajectory_id", id), zap.Error(err))
		}
	}
	return nil
}

func (t *Tracker) rehydrate(ctx context.Context, id string) (*contracts.Trajectory, bool, error) {
	if t.Learner == nil {
		return nil, false, nil
	}
	has, err := t.Learner.HasTrajectoryInStorage(ctx, id)
	if err != nil || !has {
		return nil, false, err
	}
	traj, found, err := t.Learner.GetTrajectoryInStorage(ctx, id)
	if err != nil || !found {
		return nil, false, err
	}
	t.mu.Lock()
	t.trajectories[id] = traj
	t.mu.Unlock()
	return traj, true, nil
}

// Get reads memory then falls back to persistent storage via the learner.
func (t *Tracker) Get(id string) (*contracts.Trajectory, bool) {
	t.mu.RLock()
	traj, ok := t.trajectories[id]
	t.mu.RUnlock()
	if ok {
		return traj, true
	}
	rehydrated, found, err := t.rehydrate(context.Background(), id)
	if err != nil || !found {
		return nil, false
	}
	return rehydrated, true
}

// HighQuality returns trajectories with feedback.quality >= min, sorted by
// quality descending, capped at limit (0 means unbounded).
func (t *Tracker) HighQuality(min float64, limit int) []*contracts.Trajectory {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*contracts.Trajectory
	for _, traj := range t.trajectories {
		if traj.Feedback != nil && traj.Feedback.Quality >= min {
			out = append(out, traj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Feedback.Quality > out[j].Feedback.Quality })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func errTrajectoryNotFound(id string) error {
	return fmt.Errorf("trajectory %q not found", id)
}
