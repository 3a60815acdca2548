package training

import (
	"context"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cogpy/causalreason/core/contracts"
)

// BackgroundTrainer runs a batch of samples to completion, choosing
// between the cooperative in-process path and an offloaded worker actor
// depending on how many samples were handed to it.
type BackgroundTrainer struct {
	Trainer *ContrastiveTrainer
	Cfg     RunConfig
	Log     *zap.Logger

	cancelled atomic.Bool
}

// NewBackgroundTrainer builds a runner against a live trainer.
func NewBackgroundTrainer(trainer *ContrastiveTrainer, cfg RunConfig, log *zap.Logger) *BackgroundTrainer {
	if log == nil {
		log = zap.NewNop()
	}
	return &BackgroundTrainer{Trainer: trainer, Cfg: cfg, Log: log}
}

// Cancel sets a flag that the cooperative path observes at the next batch
// boundary; that run then transitions to cancelled without emitting
// further progress. A run offloaded to the worker actor does not read
// this flag and stops early only when its ctx is cancelled.
func (bt *BackgroundTrainer) Cancel() { bt.cancelled.Store(true) }

// Run executes the configured number of epochs over samples, dispatching
// events to sink. M >= WorkerThreshold offloads to a worker actor; on
// unrecoverable worker setup failure it falls back to the cooperative
// path rather than failing the run.
func (bt *BackgroundTrainer) Run(ctx context.Context, samples []contracts.TrainingSample, sink EventSink) RunResult {
	if sink == nil {
		sink = NopEventSink{}
	}
	if len(samples) >= bt.Cfg.WorkerThreshold {
		result, err := bt.runOffloaded(ctx, samples, sink)
		if err == nil {
			return result
		}
		bt.Log.Warn("worker offload unavailable, falling back to the cooperative path", zap.Error(err))
	}
	return bt.runCooperative(ctx, samples, sink, false)
}

func (bt *BackgroundTrainer) runCooperative(ctx context.Context, samples []contracts.TrainingSample, sink EventSink, usingWorker bool) RunResult {
	start := nowMs()
	batches := chunkSamples(samples, bt.Cfg.BatchSize)
	if len(batches) == 0 {
		result := RunResult{UsedWorker: usingWorker}
		sink.Complete(result)
		return result
	}

	var allBatches []BatchResult
	var epochResults []EpochResult
	totalUnits := bt.Cfg.MaxEpochs * len(batches)
	processed := 0

	chunkSize := bt.Cfg.YieldInterval
	if chunkSize <= 0 {
		chunkSize = 1
	}

epochLoop:
	for epoch := 0; epoch < bt.Cfg.MaxEpochs; epoch++ {
		var epochBatches []BatchResult

		for chunkStart := 0; chunkStart < len(batches); chunkStart += chunkSize {
			if bt.cancelled.Load() || ctx.Err() != nil {
				result := RunResult{BatchResults: allBatches, EpochResults: epochResults, Cancelled: true, UsedWorker: usingWorker}
				sink.Complete(result)
				return result
			}

			chunkEnd := chunkStart + chunkSize
			if chunkEnd > len(batches) {
				chunkEnd = len(batches)
			}
			chunk := batches[chunkStart:chunkEnd]
			results := make([]BatchResult, len(chunk))

			// Batches within a yield chunk run concurrently (each still
			// serialized through ContrastiveTrainer.weightMu for its
			// actual gradient step) so the scheduler gets a natural
			// opportunity to run other goroutines (e.g. a concurrent
			// reasoning request) between chunks, not just after every
			// single batch.
			var g errgroup.Group
			for i, batch := range chunk {
				i, batch, bi := i, batch, chunkStart+i
				g.Go(func() error {
					results[i] = bt.Trainer.RunBatch(epoch, bi, batch)
					return nil
				})
			}
			_ = g.Wait()

			for i, res := range results {
				bi := chunkStart + i
				allBatches = append(allBatches, res)
				epochBatches = append(epochBatches, res)
				processed += len(chunk[i])
				sink.BatchComplete(res)

				elapsed := nowMs() - start
				done := epoch*len(batches) + bi + 1
				percent := float64(done) / float64(totalUnits) * 100
				var remaining float64
				if done > 0 {
					remaining = elapsed / float64(done) * float64(totalUnits-done)
				}
				sink.Progress(Progress{
					Phase: "batch", CurrentEpoch: epoch, CurrentBatch: bi, Percent: percent,
					ElapsedMs: elapsed, EstimatedRemainingMs: remaining,
					Loss: res.Loss, BestLoss: bt.Trainer.BestLoss(), SamplesProcessed: processed,
					UsingWorker: usingWorker,
				})

				if bt.Cfg.MaxTrainingTime > 0 && elapsed > bt.Cfg.MaxTrainingTime {
					break epochLoop
				}
			}

			runtime.Gosched()
		}

		er := bt.Trainer.SummarizeEpoch(epoch, epochBatches)
		epochResults = append(epochResults, er)
		sink.EpochComplete(er)
	}

	result := RunResult{BatchResults: allBatches, EpochResults: epochResults, UsedWorker: usingWorker}
	sink.Complete(result)
	return result
}

func chunkSamples(samples []contracts.TrainingSample, size int) [][]contracts.TrainingSample {
	if size <= 0 {
		size = len(samples)
	}
	if size == 0 {
		return nil
	}
	var out [][]contracts.TrainingSample
	for i := 0; i < len(samples); i += size {
		end := i + size
		if end > len(samples) {
			end = len(samples)
		}
		out = append(out, samples[i:end])
	}
	return out
}
