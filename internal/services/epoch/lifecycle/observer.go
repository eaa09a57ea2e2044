package lifecycle

import (
	"time"

	"github.com/louisbranch/ephemera.space/internal/services/epoch/source"
)

// Observer receives lifecycle notifications for monitored epochs. Every
// callback is optional; nil callbacks are skipped. Callbacks run on the
// manager's delivery path and must not block.
type Observer struct {
	EpochDidActivate  func(id int64)
	EpochDidClose     func(id int64)
	EpochDidFinalize  func(id int64)
	EpochTimerDidTick func(id int64, remaining time.Duration)
	PresenceDidUpdate func(presence source.Presence, id int64)

	// Alive reports whether the observer still wants notifications. When it
	// returns false the entry is pruned before the next fan-out, exactly as
	// if Remove had been called. A nil Alive means always alive. Alive is
	// invoked with the manager lock held and must not call back into the
	// manager.
	Alive func() bool
}

// observerEntry pairs a registered observer with its removal flag.
// Guarded by the manager's mutex.
type observerEntry struct {
	observer Observer
	removed  bool
}

// Registration is the token returned by AddObserver. Removing it stops
// further deliveries; registration never extends an observer's lifetime.
type Registration struct {
	manager *Manager
	entry   *observerEntry
}

// Remove deregisters the observer. Safe to call more than once.
func (r *Registration) Remove() {
	if r == nil || r.manager == nil || r.entry == nil {
		return
	}
	r.manager.mu.Lock()
	r.entry.removed = true
	r.manager.mu.Unlock()
}

// AddObserver registers an observer and returns its removal token.
func (m *Manager) AddObserver(o Observer) *Registration {
	entry := &observerEntry{observer: o}
	m.mu.Lock()
	m.observers = append(m.observers, entry)
	m.mu.Unlock()
	return &Registration{manager: m, entry: entry}
}

// pruneAndSnapshotObservers drops dead entries and returns copies of the
// live observers. Caller must not hold the manager lock.
func (m *Manager) pruneAndSnapshotObservers() []Observer {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.observers[:0]
	var snapshot []Observer
	for _, entry := range m.observers {
		if entry.removed {
			continue
		}
		if entry.observer.Alive != nil && !entry.observer.Alive() {
			continue
		}
		live = append(live, entry)
		snapshot = append(snapshot, entry.observer)
	}
	// Release dropped tail entries.
	for i := len(live); i < len(m.observers); i++ {
		m.observers[i] = nil
	}
	m.observers = live
	return snapshot
}

// notifyObservers prunes dead entries and delivers one notification to
// every remaining observer. Delivery happens outside the manager lock so
// observers may call back into the manager.
func (m *Manager) notifyObservers(deliver func(Observer)) {
	for _, o := range m.pruneAndSnapshotObservers() {
		deliver(o)
	}
}
