// Package lifecycle drives monitored epochs through their phases: it owns
// one phase timer and one event subscription per epoch, notifies observers
// of transitions, and enforces that ephemeral data never survives an epoch
// leaving its active phase.
package lifecycle

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/louisbranch/ephemera.space/internal/services/epoch/domain"
	"github.com/louisbranch/ephemera.space/internal/services/epoch/source"
	"github.com/louisbranch/ephemera.space/internal/services/epoch/storage"
)

// Timer cadence. The fine interval lands transitions close to the exact
// boundary; the closed poll re-checks closed epochs whose finalization is
// driven remotely.
const (
	defaultCoarseTick = time.Second
	defaultFineTick   = 100 * time.Millisecond
	defaultFineWindow = time.Minute
	defaultClosedPoll = 30 * time.Second
)

// Manager orchestrates epoch monitoring. All registry state is guarded by
// a single mutex; per-epoch tasks communicate back only through manager
// methods that re-check the registry, never by sharing state directly.
type Manager struct {
	source source.EpochSource
	store  storage.EphemeralStore
	sink   Sink
	clock  func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	coarseTick time.Duration
	fineTick   time.Duration
	fineWindow time.Duration
	closedPoll time.Duration

	mu        sync.Mutex
	monitors  map[int64]*monitorState
	focused   int64 // 0 when no epoch is focused
	observers []*observerEntry
	done      bool
}

// NewManager creates a lifecycle manager. The sink may be nil when no
// broadcast listener exists; the clock may be nil to use time.Now.
func NewManager(src source.EpochSource, store storage.EphemeralStore, sink Sink, clock func() time.Time) *Manager {
	if sink == nil {
		sink = nopSink{}
	}
	if clock == nil {
		clock = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		source:     src,
		store:      store,
		sink:       sink,
		clock:      clock,
		ctx:        ctx,
		cancel:     cancel,
		coarseTick: defaultCoarseTick,
		fineTick:   defaultFineTick,
		fineWindow: defaultFineWindow,
		closedPoll: defaultClosedPoll,
		monitors:   make(map[int64]*monitorState),
	}
}

// ActivateEpoch starts (or restarts) monitoring for the epoch and focuses
// it. Any prior timer and subscription for the same id are cancelled first,
// so at most one of each exists per id. When the epoch is already active
// the activation notification fires immediately, but re-activating an id
// whose prior entry was already active does not fire it again.
func (m *Manager) ActivateEpoch(epoch domain.Epoch) {
	if err := domain.ValidateID(epoch.ID); err != nil {
		log.Printf("activate epoch: %v", err)
		return
	}

	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return
	}
	wasActive := false
	if prev, ok := m.monitors[epoch.ID]; ok {
		cancelTasks(prev)
		wasActive = prev.active
	}

	now := m.clock()
	st := &monitorState{
		epoch:            epoch,
		participantCount: epoch.Meta.ParticipantCount,
		active:           epoch.StateAt(now) == domain.StateActive,
	}
	if remaining, ok := epoch.TimeToNextPhase(now); ok {
		st.timeRemaining = remaining
	}
	m.monitors[epoch.ID] = st
	m.focused = epoch.ID
	m.startTasks(epoch.ID, st)
	active := st.active && !wasActive
	m.mu.Unlock()

	if active {
		m.notifyObservers(func(o Observer) {
			if o.EpochDidActivate != nil {
				o.EpochDidActivate(epoch.ID)
			}
		})
		m.sink.EpochActivated(epoch.ID)
	}
}

// DeactivateEpoch stops monitoring id: cancels its timer and subscription,
// removes the entry, clears focus if it pointed at id, and releases the
// remote subscription. No-op when id is not monitored.
func (m *Manager) DeactivateEpoch(id int64) {
	m.mu.Lock()
	st, ok := m.monitors[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	cancelTasks(st)
	delete(m.monitors, id)
	if m.focused == id {
		m.focused = 0
	}
	m.mu.Unlock()

	// Best effort; the source must not fail the caller here.
	m.source.UnsubscribeEpochEvents(id)
}

// UpdatePresence stores the latest presence for a monitored epoch and fans
// it out to observers. It has no other effect; unmonitored ids are ignored.
func (m *Manager) UpdatePresence(presence source.Presence, id int64) {
	m.mu.Lock()
	st, ok := m.monitors[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	st.presence = presence
	st.hasPresence = true
	m.mu.Unlock()

	m.notifyObservers(func(o Observer) {
		if o.PresenceDidUpdate != nil {
			o.PresenceDidUpdate(presence, id)
		}
	})
}

// Close stops every monitoring task and waits for them to exit. The manager
// must not be used afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return
	}
	m.done = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

// startTasks launches the phase timer and event subscription for st.
// Caller must hold the manager lock.
func (m *Manager) startTasks(id int64, st *monitorState) {
	timerCtx, timerCancel := context.WithCancel(m.ctx)
	subCtx, subCancel := context.WithCancel(m.ctx)
	st.timerCancel = timerCancel
	st.subCancel = subCancel

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.runPhaseTimer(timerCtx, id, st)
	}()
	go func() {
		defer m.wg.Done()
		m.runEventSubscription(subCtx, id, st)
	}()
}

// restartTimer replaces the phase timer for st, preserving the one-timer
// invariant. The subscription keeps running.
func (m *Manager) restartTimer(id int64, st *monitorState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.monitors[id] != st || m.done {
		return
	}
	if st.timerCancel != nil {
		st.timerCancel()
	}
	timerCtx, timerCancel := context.WithCancel(m.ctx)
	st.timerCancel = timerCancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runPhaseTimer(timerCtx, id, st)
	}()
}

func cancelTasks(st *monitorState) {
	if st.timerCancel != nil {
		st.timerCancel()
	}
	if st.subCancel != nil {
		st.subCancel()
	}
}

// handlePhaseBoundary re-fetches the epoch once the timer reaches a phase
// boundary (or the closed poll elapses) and dispatches on the new state.
// A failed refresh deactivates the monitor: monitoring stops rather than
// acting on stale data.
func (m *Manager) handlePhaseBoundary(ctx context.Context, id int64, st *monitorState) {
	epoch, err := m.source.FetchEpoch(ctx, id)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		m.recordError(id, st, err)
		log.Printf("epoch %d refresh failed, deactivating: %v", id, err)
		m.DeactivateEpoch(id)
		return
	}

	m.mu.Lock()
	if m.monitors[id] != st {
		m.mu.Unlock()
		return
	}
	// Replace the snapshot; last-known presence is kept as-is.
	st.epoch = epoch
	st.participantCount = epoch.Meta.ParticipantCount
	state := epoch.StateAt(m.clock())
	m.mu.Unlock()

	switch state {
	case domain.StateActive:
		m.markActive(ctx, id, st)
	case domain.StateClosed:
		m.closeEpoch(ctx, id, st)
	case domain.StateFinalized:
		m.finalizeEpoch(ctx, id, st)
		return
	case domain.StateUnknown:
		// The epoch vanished from the registry. Its data has no scope left.
		if err := m.store.PurgeEpoch(ctx, id); err != nil {
			log.Printf("purge vanished epoch %d: %v", id, err)
		}
		m.DeactivateEpoch(id)
		return
	}
	m.restartTimer(id, st)
}

// markActive transitions the entry to active and fires the activation
// notifications. No-op when the entry is already active or removed.
func (m *Manager) markActive(ctx context.Context, id int64, st *monitorState) {
	m.mu.Lock()
	if m.monitors[id] != st || st.active {
		m.mu.Unlock()
		return
	}
	st.active = true
	m.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	m.notifyObservers(func(o Observer) {
		if o.EpochDidActivate != nil {
			o.EpochDidActivate(id)
		}
	})
	m.sink.EpochActivated(id)
}

// closeEpoch handles the transition out of Active into Closed. The
// ephemeral cache is purged strictly before observers hear about the
// close, so no observer can see a closed epoch with retrievable data.
// Idempotent: the timer boundary and a pushed close event converge here.
func (m *Manager) closeEpoch(ctx context.Context, id int64, st *monitorState) {
	m.mu.Lock()
	if m.monitors[id] != st || st.closed {
		m.mu.Unlock()
		return
	}
	st.closed = true
	st.active = false
	st.timeRemaining = 0
	m.mu.Unlock()

	if err := m.store.PurgeEpoch(ctx, id); err != nil {
		m.recordError(id, st, err)
		log.Printf("purge closed epoch %d: %v", id, err)
	}
	if ctx.Err() != nil {
		return
	}
	m.notifyObservers(func(o Observer) {
		if o.EpochDidClose != nil {
			o.EpochDidClose(id)
		}
	})
	m.sink.EpochClosed(id)
}

// finalizeEpoch handles the terminal transition: purge, notify, then stop
// monitoring entirely. Idempotent against repeated finalize signals.
func (m *Manager) finalizeEpoch(ctx context.Context, id int64, st *monitorState) {
	m.mu.Lock()
	if m.monitors[id] != st || st.finalized {
		m.mu.Unlock()
		return
	}
	st.finalized = true
	st.active = false
	st.timeRemaining = 0
	m.mu.Unlock()

	if err := m.store.PurgeEpoch(ctx, id); err != nil {
		m.recordError(id, st, err)
		log.Printf("purge finalized epoch %d: %v", id, err)
	}
	if ctx.Err() != nil {
		return
	}
	m.notifyObservers(func(o Observer) {
		if o.EpochDidFinalize != nil {
			o.EpochDidFinalize(id)
		}
	})
	m.sink.EpochFinalized(id)

	m.DeactivateEpoch(id)
}

// recordError stores the last error string for the entry, if still present.
func (m *Manager) recordError(id int64, st *monitorState, err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	if m.monitors[id] == st {
		st.lastError = err.Error()
	}
	m.mu.Unlock()
}

// notifyTick publishes a countdown tick for id.
func (m *Manager) notifyTick(ctx context.Context, id int64, remaining time.Duration) {
	if ctx.Err() != nil {
		return
	}
	m.notifyObservers(func(o Observer) {
		if o.EpochTimerDidTick != nil {
			o.EpochTimerDidTick(id, remaining)
		}
	})
}
