// Package learner provides the late-bound online-learner proxy: the
// trajectory tracker, the orchestrator, and the concrete online learner
// have mutual references, so the tracker is built against this proxy
// first and the real implementation is bound in afterward, once it
// exists.
package learner

import (
	"context"
	"sync"

	"github.com/cogpy/causalreason/core/contracts"
)

// Proxy implements contracts.OnlineLearner. Every method checks whether a
// concrete implementation has been bound yet and falls back to a safe
// zero-valued default if not, so callers constructed before the real
// learner exists never have to nil-check.
type Proxy struct {
	mu   sync.RWMutex
	impl contracts.OnlineLearner
}

var _ contracts.OnlineLearner = (*Proxy)(nil)

// NewProxy returns an unbound proxy.
func NewProxy() *Proxy { return &Proxy{} }

// Bind attaches the concrete learner. Safe to call once the real
// implementation becomes available, even while other goroutines are
// already calling through the proxy.
func (p *Proxy) Bind(impl contracts.OnlineLearner) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.impl = impl
}

// Bound reports whether a concrete implementation is attached.
func (p *Proxy) Bound() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.impl != nil
}

func (p *Proxy) current() contracts.OnlineLearner {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.impl
}

func (p *Proxy) CreateTrajectoryWithID(ctx context.Context, id, route string, patternIDs, contextIDs []string) error {
	if impl := p.current(); impl != nil {
		return impl.CreateTrajectoryWithID(ctx, id, route, patternIDs, contextIDs)
	}
	return nil
}

func (p *Proxy) ProvideFeedback(ctx context.Context, trajectoryID string, feedback contracts.Feedback) (contracts.OnlineLearnerUpdate, error) {
	if impl := p.current(); impl != nil {
		return impl.ProvideFeedback(ctx, trajectoryID, feedback)
	}
	return contracts.OnlineLearnerUpdate{}, nil
}

func (p *Proxy) GetWeight(ctx context.Context, patternID, route string) (float64, error) {
	if impl := p.current(); impl != nil {
		return impl.GetWeight(ctx, patternID, route)
	}
	return 0, nil
}

func (p *Proxy) GetTrajectory(ctx context.Context, id string) (*contracts.Trajectory, bool, error) {
	if impl := p.current(); impl != nil {
		return impl.GetTrajectory(ctx, id)
	}
	return nil, false, nil
}

func (p *Proxy) HasTrajectoryInStorage(ctx context.Context, id string) (bool, error) {
	if impl := p.current(); impl != nil {
		return impl.HasTrajectoryInStorage(ctx, id)
	}
	return false, nil
}

func (p *Proxy) GetTrajectoryInStorage(ctx context.Context, id string) (*contracts.Trajectory, bool, error) {
	if impl := p.current(); impl != nil {
		return impl.GetTrajectoryInStorage(ctx, id)
	}
	return nil, false, nil
}
