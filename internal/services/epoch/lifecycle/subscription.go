package lifecycle

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/louisbranch/ephemera.space/internal/platform/errors"
	"github.com/louisbranch/ephemera.space/internal/services/epoch/domain"
	"github.com/louisbranch/ephemera.space/internal/services/epoch/source"
)

const subscribeInitialBackoff = time.Second

// runEventSubscription consumes the source's event stream for id until the
// task is cancelled. One backoff spans failed subscribes and exhausted
// streams alike and resets only when an event arrives, so a source handing
// out dead streams cannot spin the task hot. A terminal subscribe error
// ends the task; the phase timer keeps the monitor alive.
func (m *Manager) runEventSubscription(ctx context.Context, id int64, st *monitorState) {
	policy := backoff.WithContext(newSubscribeBackOff(), ctx)
	for {
		if ctx.Err() != nil {
			return
		}

		events, err := m.source.SubscribeEpochEvents(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.recordError(id, st, err)
			if !apperrors.IsRecoverable(err) {
				log.Printf("epoch %d event subscription failed terminally: %v", id, err)
				return
			}
			if !waitBackOff(ctx, policy) {
				return
			}
			continue
		}

		if !m.consumeEvents(ctx, id, st, events, policy) {
			return
		}
		// Stream exhausted; back off before asking for a new one.
		if !waitBackOff(ctx, policy) {
			return
		}
	}
}

// consumeEvents drains one stream. It reports whether the stream was
// exhausted and a resubscribe should follow; false means the task is done.
func (m *Manager) consumeEvents(ctx context.Context, id int64, st *monitorState, events <-chan source.Event, policy backoff.BackOff) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return true
			}
			policy.Reset()
			m.applyEvent(ctx, id, st, ev)
		}
	}
}

// applyEvent folds one inbound event into the monitor entry. Phase-bearing
// events route through the same close/finalize handlers the timer uses, so
// both paths purge before notifying and stay idempotent.
func (m *Manager) applyEvent(ctx context.Context, id int64, st *monitorState, ev source.Event) {
	switch ev.Kind {
	case source.EventPhaseChanged:
		switch ev.Phase {
		case domain.StateActive:
			m.markActive(ctx, id, st)
		case domain.StateClosed:
			m.closeEpoch(ctx, id, st)
		case domain.StateFinalized:
			m.finalizeEpoch(ctx, id, st)
		}
	case source.EventParticipantCountChanged:
		m.mu.Lock()
		if m.monitors[id] == st {
			st.participantCount = ev.ParticipantCount
			st.epoch.Meta.ParticipantCount = ev.ParticipantCount
		}
		m.mu.Unlock()
	case source.EventTimerTick:
		m.mu.Lock()
		if m.monitors[id] == st {
			st.timeRemaining = ev.Remaining
		}
		m.mu.Unlock()
		m.notifyTick(ctx, id, ev.Remaining)
	case source.EventClosed:
		m.closeEpoch(ctx, id, st)
	case source.EventFinalized:
		m.finalizeEpoch(ctx, id, st)
	case source.EventError:
		m.mu.Lock()
		if m.monitors[id] == st {
			st.lastError = ev.Message
		}
		m.mu.Unlock()
	}
}

// waitBackOff sleeps for the policy's next delay and reports whether the
// task should keep going.
func waitBackOff(ctx context.Context, policy backoff.BackOff) bool {
	d := policy.NextBackOff()
	if d == backoff.Stop {
		return false
	}
	return sleepCtx(ctx, d)
}

func newSubscribeBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = subscribeInitialBackoff
	b.MaxElapsedTime = 0 // retry until the task is cancelled
	return b
}
