package training

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cogpy/causalreason/core/contracts"
)

// TriggerConfig controls the buffer threshold and the timer fallback.
type TriggerConfig struct {
	Threshold     int
	TimerInterval time.Duration
}

// DefaultTriggerConfig matches the documented default threshold of 50.
func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{Threshold: 50, TimerInterval: 5 * time.Minute}
}

// Trigger buffers feedback-annotated samples and fires onFire with the
// buffer's contents once it reaches the configured threshold, or when the
// periodic timer elapses with a non-empty buffer, whichever comes first.
type Trigger struct {
	mu     sync.Mutex
	buffer []contracts.TrainingSample
	cfg    TriggerConfig
	onFire func([]contracts.TrainingSample)
	log    *zap.Logger
}

// NewTrigger builds a Trigger. onFire is invoked synchronously from
// whichever goroutine causes the fire (Append or the timer tick); callers
// needing async dispatch should make onFire non-blocking themselves.
func NewTrigger(cfg TriggerConfig, onFire func([]contracts.TrainingSample), log *zap.Logger) *Trigger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Trigger{cfg: cfg, onFire: onFire, log: log}
}

// Append adds a sample to the buffer, firing and clearing it if the
// threshold is reached.
func (t *Trigger) Append(sample contracts.TrainingSample) {
	t.mu.Lock()
	t.buffer = append(t.buffer, sample)
	shouldFire := len(t.buffer) >= t.cfg.Threshold
	var batch []contracts.TrainingSample
	if shouldFire {
		batch = t.buffer
		t.buffer = nil
	}
	t.mu.Unlock()

	if shouldFire {
		t.fire(batch)
	}
}

func (t *Trigger) fire(batch []contracts.TrainingSample) {
	if len(batch) == 0 || t.onFire == nil {
		return
	}
	t.log.Info("training trigger fired", zap.Int("samples", len(batch)))
	t.onFire(batch)
}

// ShouldTrigger reports whether the buffer has reached the threshold. In
// normal operation Append fires before this would ever observe true; it
// exists for observability and tests.
func (t *Trigger) ShouldTrigger() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffer) >= t.cfg.Threshold
}

// BufferSize reports the current buffer occupancy.
func (t *Trigger) BufferSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffer)
}

// StartTimer runs the periodic fallback fire until ctx is cancelled. Safe
// to call at most once per Trigger.
func (t *Trigger) StartTimer(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.TimerInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.mu.Lock()
				batch := t.buffer
				t.buffer = nil
				t.mu.Unlock()
				t.fire(batch)
			}
		}
	}()
}
