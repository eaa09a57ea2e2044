package lifecycle

import (
	"context"
	"time"

	"github.com/louisbranch/ephemera.space/internal/services/epoch/domain"
)

// runPhaseTimer counts down to the epoch's next phase boundary. While time
// remains it publishes ticks, sleeping coarsely far from the boundary and
// finely inside the last minute to land close to the exact transition. At
// the boundary it hands off to the phase-transition handler and exits; the
// handler starts a fresh timer when the new phase still needs one.
//
// Closed epochs have no local boundary left - finalization is driven
// remotely - so the timer degrades to a slow poll that re-runs the
// transition handler until a terminal state arrives.
func (m *Manager) runPhaseTimer(ctx context.Context, id int64, st *monitorState) {
	for {
		if ctx.Err() != nil {
			return
		}

		m.mu.Lock()
		if m.monitors[id] != st {
			m.mu.Unlock()
			return
		}
		epoch := st.epoch
		m.mu.Unlock()

		now := m.clock()
		remaining, ok := epoch.TimeToNextPhase(now)
		if !ok {
			if epoch.StateAt(now) != domain.StateClosed {
				return
			}
			if !sleepCtx(ctx, m.closedPoll) {
				return
			}
			m.handlePhaseBoundary(ctx, id, st)
			return
		}
		if remaining <= 0 {
			m.handlePhaseBoundary(ctx, id, st)
			return
		}

		m.mu.Lock()
		if m.monitors[id] == st {
			st.timeRemaining = remaining
		}
		m.mu.Unlock()
		m.notifyTick(ctx, id, remaining)

		sleep := m.coarseTick
		if remaining <= m.fineWindow {
			sleep = m.fineTick
		}
		if sleep > remaining {
			sleep = remaining
		}
		if !sleepCtx(ctx, sleep) {
			return
		}
	}
}

// sleepCtx sleeps for d and reports whether the context survived the wait.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
