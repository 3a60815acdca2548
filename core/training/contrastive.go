// Package training turns feedback-annotated trajectories into GNN weight
// updates: a buffering trigger, a contrastive triplet trainer, and a
// background runner that chooses between a cooperative in-process path and
// an offloaded worker depending on batch size.
package training

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/cogpy/causalreason/core/contracts"
	"github.com/cogpy/causalreason/core/gnn"
	"github.com/cogpy/causalreason/core/tensorops"
)

// ContrastiveConfig controls triplet formation and the optimizer step.
type ContrastiveConfig struct {
	Margin           float64
	PositiveQuality  float64
	NegativeQuality  float64
	GradientClipNorm float64
	LearningRate     float64
}

// DefaultContrastiveConfig matches the documented defaults.
func DefaultContrastiveConfig() ContrastiveConfig {
	return ContrastiveConfig{
		Margin:           0.5,
		PositiveQuality:  0.7,
		NegativeQuality:  0.5,
		GradientClipNorm: 1.0,
		LearningRate:     0.01,
	}
}

// BatchResult is what one contrastive batch reports.
type BatchResult struct {
	Epoch          int
	BatchIndex     int
	Loss           float64
	GradientNorm   float64
	ActiveTriplets int
	TotalTriplets  int
	TrainingTimeMs float64
}

// ContrastiveTrainer forms triplets from quality-labelled samples and
// backpropagates their hinge loss through the enhancer's layer stack.
type ContrastiveTrainer struct {
	Enhancer *gnn.Enhancer
	Cfg      ContrastiveConfig
	Log      *zap.Logger

	// weightMu serializes the forward/backward/apply-step section of
	// RunBatch. The background trainer's cooperative path fans batches
	// within a yield chunk out concurrently via errgroup for scheduling
	// fairness, but two batches mutating the same layer weight matrices
	// unsynchronized is a data race, not just a staleness tradeoff,
	// since Go slice writes aren't atomic. This keeps the fan-out safe
	// at the cost of serializing the actual gradient step.
	weightMu sync.Mutex

	bestLoss float64
	hasBest  bool
}

// NewContrastiveTrainer builds a trainer against a live enhancer, whose
// weights it mutates in place on every RunBatch call.
func NewContrastiveTrainer(enhancer *gnn.Enhancer, cfg ContrastiveConfig, log *zap.Logger) *ContrastiveTrainer {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContrastiveTrainer{Enhancer: enhancer, Cfg: cfg, Log: log}
}

type sample struct {
	idx      int
	enhanced []float64
	cache    []gnn.LayerCache
	quality  float64
}

// RunBatch forms triplets from samples, backpropagates the contrastive
// hinge loss through the enhancer, and applies one clipped SGD step. An
// empty or all-invalid batch returns a zero-valued BatchResult rather than
// an error, per the package's failure policy: training never blocks
// reasoning on a malformed batch.
func (ct *ContrastiveTrainer) RunBatch(epoch, batchIndex int, samples []contracts.TrainingSample) BatchResult {
	ct.weightMu.Lock()
	defer ct.weightMu.Unlock()

	start := nowMs()

	valid := ct.forwardValid(samples)
	if len(valid) == 0 {
		return BatchResult{Epoch: epoch, BatchIndex: batchIndex}
	}

	query := meanVector(valid)

	var positives, negatives []sample
	for _, s := range valid {
		switch {
		case s.quality >= ct.Cfg.PositiveQuality:
			positives = append(positives, s)
		case s.quality < ct.Cfg.NegativeQuality:
			negatives = append(negatives, s)
		}
	}

	totalTriplets := len(positives) * len(negatives)
	if totalTriplets == 0 {
		return BatchResult{Epoch: epoch, BatchIndex: batchIndex, TrainingTimeMs: nowMs() - start}
	}

	dOut := make(map[int][]float64, len(valid))
	accumulate := func(idx int, g []float64) {
		if cur, ok := dOut[idx]; ok {
			dOut[idx] = tensorops.Add(cur, g)
		} else {
			dOut[idx] = g
		}
	}

	var lossSum float64
	var active int
	invTotal := 1.0 / float64(totalTriplets)
	invValid := 1.0 / float64(len(valid))

	for _, p := range positives {
		for _, n := range negatives {
			dp := l2Distance(query, p.enhanced)
			dn := l2Distance(query, n.enhanced)
			loss := dp - dn + ct.Cfg.Margin
			if loss <= 0 {
				continue
			}
			active++
			lossSum += loss

			dpGrad := unitDirection(p.enhanced, query, dp)
			dnGrad := unitDirection(query, n.enhanced, dn)
			dqLocal := tensorops.Add(unitDirection(query, p.enhanced, dp), unitDirection(n.enhanced, query, dn))

			scale := func(v []float64, s float64) []float64 {
				out := make([]float64, len(v))
				for i, x := range v {
					out[i] = x * s
				}
				return out
			}
			accumulate(p.idx, scale(dpGrad, invTotal))
			accumulate(n.idx, scale(dnGrad, invTotal))
			dqScaled := scale(dqLocal, invTotal*invValid)
			for _, s := range valid {
				accumulate(s.idx, dqScaled)
			}
		}
	}

	batchLoss := 0.0
	if totalTriplets > 0 {
		batchLoss = lossSum / float64(totalTriplets)
	}

	layerGrads := ct.accumulateLayerGrads(valid, dOut)
	gradNorm := ct.applyStep(layerGrads)

	return BatchResult{
		Epoch:          epoch,
		BatchIndex:     batchIndex,
		Loss:           batchLoss,
		GradientNorm:   gradNorm,
		ActiveTriplets: active,
		TotalTriplets:  totalTriplets,
		TrainingTimeMs: nowMs() - start,
	}
}

func (ct *ContrastiveTrainer) forwardValid(samples []contracts.TrainingSample) []sample {
	var valid []sample
	for i, s := range samples {
		if math.IsNaN(s.Quality) || math.IsInf(s.Quality, 0) {
			continue
		}
		base := s.Embedding
		if len(base) == 0 {
			continue
		}
		enhanced, cache, err := ct.Enhancer.ForwardWithCache(base)
		if err != nil {
			ct.Log.Warn("contrastive batch dropped a sample: enhancer forward failed", zap.Int("index", i), zap.Error(err))
			continue
		}
		if !tensorops.IsFinite(enhanced) {
			ct.Log.Warn("contrastive batch dropped a sample: non-finite enhanced embedding", zap.Int("index", i))
			continue
		}
		valid = append(valid, sample{idx: len(valid), enhanced: enhanced, cache: cache, quality: s.Quality})
	}
	return valid
}

func (ct *ContrastiveTrainer) accumulateLayerGrads(valid []sample, dOut map[int][]float64) [][][]float64 {
	numLayers := len(ct.Enhancer.Layers())
	total := make([][][]float64, numLayers)

	for _, s := range valid {
		grad, ok := dOut[s.idx]
		if !ok {
			continue
		}
		grads, _ := ct.Enhancer.BackwardFromOutput(grad, s.cache)
		for l, dw := range grads {
			if total[l] == nil {
				total[l] = zeroMatrix(dw)
			}
			addMatrixInPlace(total[l], dw)
		}
	}
	return total
}

func (ct *ContrastiveTrainer) applyStep(layerGrads [][][]float64) float64 {
	var norm float64
	for _, dw := range layerGrads {
		if dw == nil {
			continue
		}
		if !matrixFinite(dw) {
			ct.Log.Warn("contrastive gradient was non-finite, replaced with zero")
			zeroInPlace(dw)
			continue
		}
		norm += matrixFrobeniusNormSquared(dw)
	}
	ct.Enhancer.ApplyGradients(layerGrads, ct.Cfg.LearningRate, ct.Cfg.GradientClipNorm)
	return math.Sqrt(norm)
}

// BestLoss returns the lowest average epoch loss observed so far, or 0 if
// no epoch has completed yet.
func (ct *ContrastiveTrainer) BestLoss() float64 { return ct.bestLoss }

// EpochResult summarizes one epoch's batches.
type EpochResult struct {
	Epoch       int
	AverageLoss float64
	Improved    bool
}

// SummarizeEpoch averages a set of batch losses and flags improvement
// against the best loss seen across every prior call.
func (ct *ContrastiveTrainer) SummarizeEpoch(epoch int, batches []BatchResult) EpochResult {
	if len(batches) == 0 {
		return EpochResult{Epoch: epoch}
	}
	var sum float64
	for _, b := range batches {
		sum += b.Loss
	}
	avg := sum / float64(len(batches))

	improved := !ct.hasBest || avg < ct.bestLoss
	if improved {
		ct.bestLoss = avg
		ct.hasBest = true
	}
	return EpochResult{Epoch: epoch, AverageLoss: avg, Improved: improved}
}

func meanVector(valid []sample) []float64 {
	if len(valid) == 0 {
		return nil
	}
	dim := len(valid[0].enhanced)
	out := make([]float64, dim)
	for _, s := range valid {
		for i := 0; i < dim && i < len(s.enhanced); i++ {
			out[i] += s.enhanced[i]
		}
	}
	for i := range out {
		out[i] /= float64(len(valid))
	}
	return out
}

func l2Distance(a, b []float64) float64 {
	var sum float64
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var av, bv float64
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		d := av - bv
		sum += d * d
	}
	return math.Sqrt(sum)
}

// unitDirection returns (a-b)/||a-b|| elementwise, or a zero vector when
// the distance is degenerate.
func unitDirection(a, b []float64, dist float64) []float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]float64, n)
	if dist < 1e-9 {
		return out
	}
	for i := 0; i < n; i++ {
		var av, bv float64
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		out[i] = (av - bv) / dist
	}
	return out
}

func zeroMatrix(like [][]float64) [][]float64 {
	out := make([][]float64, len(like))
	for i, row := range like {
		out[i] = make([]float64, len(row))
	}
	return out
}

func addMatrixInPlace(dst, src [][]float64) {
	for i := range dst {
		if i >= len(src) {
			break
		}
		for j := range dst[i] {
			if j >= len(src[i]) {
				break
			}
			dst[i][j] += src[i][j]
		}
	}
}

func zeroInPlace(m [][]float64) {
	for i := range m {
		for j := range m[i] {
			m[i][j] = 0
		}
	}
}

func matrixFinite(m [][]float64) bool {
	for _, row := range m {
		if !tensorops.IsFinite(row) {
			return false
		}
	}
	return true
}

func matrixFrobeniusNormSquared(m [][]float64) float64 {
	var sum float64
	for _, row := range m {
		for _, v := range row {
			sum += v * v
		}
	}
	return sum
}
