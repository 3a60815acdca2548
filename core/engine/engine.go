// Package engine is the composition root: it wires the causal hypergraph,
// the embedding cache, the GNN enhancer, the reasoning orchestrator, the
// trajectory tracker, and the training pipeline into one runnable unit,
// bundled behind Start/Close/Health rather than exposing every
// collaborator separately.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cogpy/causalreason/core/causalgraph"
	"github.com/cogpy/causalreason/core/contracts"
	"github.com/cogpy/causalreason/core/embedcache"
	"github.com/cogpy/causalreason/core/gnn"
	"github.com/cogpy/causalreason/core/history"
	"github.com/cogpy/causalreason/core/learner"
	"github.com/cogpy/causalreason/core/memstore"
	"github.com/cogpy/causalreason/core/persistence"
	"github.com/cogpy/causalreason/core/reasoning"
	"github.com/cogpy/causalreason/core/trajectory"
	"github.com/cogpy/causalreason/core/training"
)

const (
	graphKVNamespace = "research"
	graphKVKey       = "causal-graph"
)

// Config controls every tunable the composition root exposes.
// DefaultConfig fills every field with its documented default; New does
// not default zero fields, so a zero-valued Config is used as given.
type Config struct {
	CheckpointPath string
	HistoryPath    string
	DgraphEndpoint string // empty disables Dgraph-backed graph persistence

	GNN        gnn.Config
	Cache      embedcache.Config
	Tracker    trajectory.Config
	Trigger    training.TriggerConfig
	Contrastive training.ContrastiveConfig
	Run        training.RunConfig
}

// DefaultConfig wires every sub-config's documented defaults.
func DefaultConfig() Config {
	return Config{
		CheckpointPath: "data/checkpoint.json",
		HistoryPath:    "data/training.db",
		GNN:            gnn.DefaultConfig(contracts.EmbeddingDim),
		Cache:          embedcache.DefaultConfig(),
		Tracker:        trajectory.DefaultConfig(),
		Trigger:        training.DefaultTriggerConfig(),
		Contrastive:    training.DefaultContrastiveConfig(),
		Run:            training.DefaultRunConfig(),
	}
}

// Engine bundles every collaborator the orchestrator and the training
// pipeline need, plus the lifecycle methods a long-running process wraps
// around them.
type Engine struct {
	cfg Config
	log *zap.Logger

	Graph       *causalgraph.Graph
	Cache       *embedcache.Cache
	Enhancer    *gnn.Enhancer
	Tracker     *trajectory.Tracker
	Orchestrator *reasoning.Orchestrator
	LearnerProxy *learner.Proxy

	Trigger    *training.Trigger
	Trainer    *training.ContrastiveTrainer
	Background *training.BackgroundTrainer
	History    *history.Store

	checkpointStore *persistence.CheckpointStore
	dgraphClient    *persistence.DgraphClient
	graphKV         *persistence.DgraphKV

	mu        sync.Mutex
	startedAt time.Time
	closed    bool
}

// New builds every collaborator and loads whatever persisted state
// exists (GNN weight checkpoint, causal graph snapshot), but does not
// start any background goroutine; call Start for that.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}

	cache, err := embedcache.New(
		embedcache.WithMaxEntries(cfg.Cache.MaxEntries),
		embedcache.WithMaxBytes(cfg.Cache.MaxBytes),
		embedcache.WithTTL(cfg.Cache.TTL),
	)
	if err != nil {
		return nil, fmt.Errorf("build embedding cache: %w", err)
	}

	enhancer := gnn.New(cfg.GNN, cache, log.Named("gnn"))

	checkpointStore := persistence.NewCheckpointStore(cfg.CheckpointPath)
	if cp, ok, err := checkpointStore.Load(); err != nil {
		log.Warn("checkpoint load failed, starting from identity weights", zap.Error(err))
	} else if ok {
		if err := enhancer.LoadWeights(gnn.Snapshot{LayerWeights: cp.LayerWeights}); err != nil {
			log.Warn("checkpoint layer count mismatch, starting from identity weights", zap.Error(err))
		} else {
			log.Info("loaded GNN checkpoint", zap.Int("epoch", cp.Epoch), zap.Float64("loss", cp.Loss))
		}
	}

	graph := causalgraph.New()
	graph.OnMutate = func(ids []string) { cache.InvalidateByNode(ids...) }
	var dgraphClient *persistence.DgraphClient
	var graphKV *persistence.DgraphKV
	if cfg.DgraphEndpoint != "" {
		dgraphClient, err = persistence.NewDgraphClient(&persistence.DgraphConfig{
			Endpoint: cfg.DgraphEndpoint, RetryCount: 3, RetryDelay: 2 * time.Second,
		})
		if err != nil {
			log.Warn("dgraph connection failed, causal graph will not persist across restarts", zap.Error(err))
		} else {
			graphKV = persistence.NewDgraphKV(dgraphClient)
			if err := graphKV.EnsureSchema(); err != nil {
				log.Warn("dgraph schema install failed", zap.Error(err))
			}
			if data, ok, err := graphKV.Retrieve(ctx, graphKVNamespace, graphKVKey); err != nil {
				log.Warn("causal graph load failed, starting empty", zap.Error(err))
			} else if ok {
				if loaded, err := causalgraph.FromJSON(data); err != nil {
					log.Warn("causal graph snapshot was corrupt, starting empty", zap.Error(err))
				} else {
					graph = loaded
					graph.OnMutate = func(ids []string) { cache.InvalidateByNode(ids...) }
					log.Info("loaded causal graph", zap.Int("nodes", graph.NodeCount()), zap.Int("edges", graph.EdgeCount()))
				}
			}
		}
	}

	historyStore, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("open training history: %w", err)
	}

	learnerProxy := learner.NewProxy()

	trainer := training.NewContrastiveTrainer(enhancer, cfg.Contrastive, log.Named("trainer"))
	background := training.NewBackgroundTrainer(trainer, cfg.Run, log.Named("trainer"))

	e := &Engine{cfg: cfg, log: log, Graph: graph, Cache: cache, Enhancer: enhancer,
		LearnerProxy: learnerProxy, Trainer: trainer, Background: background, History: historyStore,
		checkpointStore: checkpointStore, dgraphClient: dgraphClient, graphKV: graphKV}

	trigger := training.NewTrigger(cfg.Trigger, e.onTrainingFire, log.Named("trigger"))
	e.Trigger = trigger

	tracker := trajectory.New(cfg.Tracker, learnerProxy, graph, trigger, log.Named("trajectory"))
	e.Tracker = tracker

	patternStore := memstore.NewPatternStore()
	vectorIndex := memstore.NewVectorIndex()
	orchestrator := reasoning.New(
		&reasoning.PatternEngine{Store: patternStore},
		&reasoning.CausalEngine{Index: vectorIndex, Graph: graph},
		&reasoning.ContextualEngine{Index: vectorIndex},
		enhancer, tracker, log.Named("reasoning"),
	)
	orchestrator.Abductive = &reasoning.AbductiveEngine{Index: vectorIndex, Graph: graph}
	orchestrator.Counterfactual = &reasoning.CounterfactualEngine{Index: vectorIndex, Graph: graph}
	orchestrator.Temporal = &reasoning.TemporalEngine{Store: graph}
	orchestrator.Constraint = &reasoning.ConstraintEngine{Index: vectorIndex}
	e.Orchestrator = orchestrator

	return e, nil
}

// onTrainingFire runs a background training batch over a trigger-flushed
// buffer and persists both the training record and, if the epoch
// improved, a fresh GNN weight checkpoint. It runs synchronously on the
// trigger's caller goroutine; callers that need this off the hot
// reasoning path should make Trigger.Append's caller a dedicated
// goroutine, which core/trajectory already does not assume either way.
func (e *Engine) onTrainingFire(batch []contracts.TrainingSample) {
	ctx := context.Background()
	result := e.Background.Run(ctx, batch, training.NopEventSink{})

	records := make([]contracts.TrainingRecord, 0, len(result.BatchResults))
	for _, b := range result.BatchResults {
		records = append(records, contracts.TrainingRecord{
			ID: newRecordID(), Epoch: b.Epoch, BatchIndex: b.BatchIndex, Loss: b.Loss,
			LearningRate: e.cfg.Contrastive.LearningRate, SamplesCount: len(batch),
		})
	}
	if len(records) > 0 {
		if err := e.History.RecordBatchBulk(ctx, records); err != nil {
			e.log.Warn("failed to persist training history", zap.Error(err))
		}
	}

	for _, er := range result.EpochResults {
		if !er.Improved {
			continue
		}
		snap := e.Enhancer.PersistWeights()
		cp := &persistence.Checkpoint{Epoch: er.Epoch, Loss: er.AverageLoss, LayerWeights: snap.LayerWeights}
		if err := e.checkpointStore.Save(cp); err != nil {
			e.log.Warn("failed to persist GNN checkpoint", zap.Error(err))
		} else {
			e.log.Info("saved GNN checkpoint", zap.Int("epoch", er.Epoch), zap.Float64("loss", er.AverageLoss))
		}
	}
}

var recordIDCounter int64
var recordIDMu sync.Mutex

// newRecordID returns a process-unique training record id from a counter
// that starts again at 1 in every process. History queries order rows by
// created_at, not by this id.
func newRecordID() string {
	recordIDMu.Lock()
	defer recordIDMu.Unlock()
	recordIDCounter++
	return fmt.Sprintf("rec-%d", recordIDCounter)
}

// Reason is a thin passthrough to the orchestrator, kept on Engine so
// callers only need one handle to the whole system.
func (e *Engine) Reason(ctx context.Context, req contracts.ReasoningRequest) (contracts.ReasoningResponse, error) {
	return e.Orchestrator.Reason(ctx, req)
}

// Feedback attaches feedback to a trajectory; the tracker, whose training
// sink is the trigger, buffers the resulting training sample.
func (e *Engine) Feedback(ctx context.Context, trajectoryID string, feedback contracts.Feedback) error {
	return e.Tracker.UpdateFeedback(ctx, trajectoryID, feedback)
}

// PersistGraph serializes the causal graph and writes it to Dgraph. It
// is a no-op when no Dgraph endpoint was configured.
func (e *Engine) PersistGraph(ctx context.Context) error {
	if e.graphKV == nil {
		return nil
	}
	data, err := e.Graph.ToJSON()
	if err != nil {
		return fmt.Errorf("serialize causal graph: %w", err)
	}
	return e.graphKV.Store(ctx, graphKVNamespace, graphKVKey, data)
}

// HealthStatus is a point-in-time snapshot of which components are
// live, not a deep liveness probe of any of them.
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	Uptime     time.Duration `json:"uptime"`
	Components map[string]bool `json:"components"`
	GraphNodes int           `json:"graph_nodes"`
	GraphEdges int           `json:"graph_edges"`
	CacheStats embedcache.Stats `json:"cache_stats"`
}

// Health reports the engine's current component wiring.
func (e *Engine) Health() HealthStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := HealthStatus{
		Uptime: time.Since(e.startedAt),
		Components: map[string]bool{
			"graph":        e.Graph != nil,
			"enhancer":     e.Enhancer != nil,
			"orchestrator": e.Orchestrator != nil,
			"tracker":      e.Tracker != nil,
			"trainer":      e.Trainer != nil,
			"history":      e.History != nil,
			"dgraph":       e.dgraphClient != nil,
		},
		GraphNodes: e.Graph.NodeCount(),
		GraphEdges: e.Graph.EdgeCount(),
		CacheStats: e.Cache.Stats(),
	}
	status.Healthy = !e.closed
	return status
}

// Start marks the engine as running and records the uptime baseline.
// There is no separate background-goroutine startup: the trigger fires
// training synchronously from whatever goroutine calls Feedback, and the
// background trainer is invoked per fire rather than run continuously.
func (e *Engine) Start(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startedAt = time.Now()
	return nil
}

// Close releases the history store and Dgraph connection, tolerating a
// nil Dgraph client (when no endpoint was configured).
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var err error
	if cerr := e.History.Close(); cerr != nil {
		err = cerr
	}
	if e.dgraphClient != nil {
		if cerr := e.dgraphClient.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
