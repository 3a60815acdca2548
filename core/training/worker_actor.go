package training

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tochemey/goakt/v2/actors"
	"github.com/tochemey/goakt/v2/goakt"
	"go.uber.org/zap"

	"github.com/cogpy/causalreason/core/contracts"
)

// startTrainingMsg kicks off a training run on the worker actor. samples
// is a plain slice of already-decoded training data, not a reference into
// the live trajectory store: the actor owns its own copy for the
// lifetime of the run.
type startTrainingMsg struct {
	samples []contracts.TrainingSample
	cfg     RunConfig
	sink    EventSink
	done    chan RunResult
}

type cancelTrainingMsg struct{}

type continueBatchMsg struct{}

// workerActor drives one background training run inside a goakt actor,
// yielding back to its own mailbox between batches so a cancelTrainingMsg
// can be observed at a batch boundary instead of only after the whole run
// completes.
type workerActor struct {
	trainer *ContrastiveTrainer
	log     *zap.Logger

	batches      [][]contracts.TrainingSample
	cfg          RunConfig
	sink         EventSink
	done         chan RunResult
	epoch, batch int
	epochBatches []BatchResult
	allBatches   []BatchResult
	epochResults []EpochResult
	processed    int
	startMs      float64
	cancelled    atomic.Bool
}

func newWorkerActor(trainer *ContrastiveTrainer, log *zap.Logger) *workerActor {
	return &workerActor{trainer: trainer, log: log}
}

func (w *workerActor) PreStart(context.Context) error { return nil }
func (w *workerActor) PostStop(context.Context) error { return nil }

func (w *workerActor) Receive(ctx actors.ReceiveContext) {
	switch msg := ctx.Message().(type) {
	case *startTrainingMsg:
		w.start(ctx, msg)
	case *cancelTrainingMsg:
		w.cancelled.Store(true)
	case *continueBatchMsg:
		w.step(ctx)
	default:
		ctx.Unhandled()
	}
}

func (w *workerActor) start(ctx actors.ReceiveContext, msg *startTrainingMsg) {
	w.batches = chunkSamples(msg.samples, msg.cfg.BatchSize)
	w.cfg = msg.cfg
	w.sink = msg.sink
	w.done = msg.done
	w.startMs = nowMs()
	if len(w.batches) == 0 {
		w.finish(ctx, RunResult{UsedWorker: true})
		return
	}
	ctx.Tell(ctx.Self(), &continueBatchMsg{})
}

func (w *workerActor) step(ctx actors.ReceiveContext) {
	if w.cancelled.Load() {
		w.finish(ctx, RunResult{BatchResults: w.allBatches, EpochResults: w.epochResults, Cancelled: true, UsedWorker: true})
		return
	}
	if w.epoch >= w.cfg.MaxEpochs {
		w.finish(ctx, RunResult{BatchResults: w.allBatches, EpochResults: w.epochResults, UsedWorker: true})
		return
	}

	res := w.trainer.RunBatch(w.epoch, w.batch, w.batches[w.batch])
	w.allBatches = append(w.allBatches, res)
	w.epochBatches = append(w.epochBatches, res)
	w.processed += len(w.batches[w.batch])
	if w.sink != nil {
		w.sink.BatchComplete(res)

		totalUnits := w.cfg.MaxEpochs * len(w.batches)
		done := w.epoch*len(w.batches) + w.batch + 1
		elapsed := nowMs() - w.startMs
		var remaining float64
		if done > 0 {
			remaining = elapsed / float64(done) * float64(totalUnits-done)
		}
		w.sink.Progress(Progress{
			Phase: "batch", CurrentEpoch: w.epoch, CurrentBatch: w.batch,
			Percent: float64(done) / float64(totalUnits) * 100,
			ElapsedMs: elapsed, EstimatedRemainingMs: remaining,
			Loss: res.Loss, BestLoss: w.trainer.BestLoss(), SamplesProcessed: w.processed,
			UsingWorker: true,
		})
	}

	w.batch++
	if w.batch >= len(w.batches) {
		er := w.trainer.SummarizeEpoch(w.epoch, w.epochBatches)
		w.epochResults = append(w.epochResults, er)
		if w.sink != nil {
			w.sink.EpochComplete(er)
		}
		w.epochBatches = nil
		w.batch = 0
		w.epoch++
	}

	ctx.Tell(ctx.Self(), &continueBatchMsg{})
}

func (w *workerActor) finish(ctx actors.ReceiveContext, result RunResult) {
	if w.sink != nil {
		w.sink.Complete(result)
	}
	if w.done != nil {
		w.done <- result
	}
}

// runOffloaded spawns a short-lived actor system, hands it the batch, and
// blocks on the actor's completion channel. Any setup failure returns a
// non-nil error so the caller falls back to the cooperative path.
func (bt *BackgroundTrainer) runOffloaded(ctx context.Context, samples []contracts.TrainingSample, sink EventSink) (RunResult, error) {
	system, err := goakt.NewActorSystem("causal-reasoning-training")
	if err != nil {
		return RunResult{}, fmt.Errorf("create actor system: %w", err)
	}
	if err := system.Start(ctx); err != nil {
		return RunResult{}, fmt.Errorf("start actor system: %w", err)
	}
	defer system.Stop(context.Background())

	actor := newWorkerActor(bt.Trainer, bt.Log)
	pid, err := system.Spawn(ctx, "contrastive-trainer-worker", actor)
	if err != nil {
		return RunResult{}, fmt.Errorf("spawn worker actor: %w", err)
	}

	owned := make([]contracts.TrainingSample, len(samples))
	for i, s := range samples {
		s.Embedding = append(contracts.Embedding(nil), s.Embedding...)
		s.EnhancedEmbedding = append(contracts.Embedding(nil), s.EnhancedEmbedding...)
		owned[i] = s
	}

	done := make(chan RunResult, 1)
	if err := system.Tell(ctx, pid, &startTrainingMsg{samples: owned, cfg: bt.Cfg, sink: sink, done: done}); err != nil {
		return RunResult{}, fmt.Errorf("start training message: %w", err)
	}

	select {
	case result := <-done:
		return result, nil
	case <-ctx.Done():
		_ = system.Tell(context.Background(), pid, &cancelTrainingMsg{})
		return RunResult{Cancelled: true, UsedWorker: true}, nil
	}
}
