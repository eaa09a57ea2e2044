package lifecycle

import (
	"context"
	"time"

	"github.com/louisbranch/ephemera.space/internal/services/epoch/domain"
	"github.com/louisbranch/ephemera.space/internal/services/epoch/source"
)

// monitorState is the mutable runtime record for one monitored epoch. It is
// owned exclusively by the manager: every field is guarded by the manager's
// mutex, and tasks reach it only through manager methods that verify the
// entry is still registered.
type monitorState struct {
	epoch            domain.Epoch
	presence         source.Presence
	hasPresence      bool
	timeRemaining    time.Duration
	participantCount int
	active           bool
	closed           bool
	finalized        bool
	lastError        string

	timerCancel context.CancelFunc
	subCancel   context.CancelFunc
}

// MonitorSnapshot is a read-only copy of a monitor entry, safe to hand out.
type MonitorSnapshot struct {
	Epoch            domain.Epoch
	Presence         source.Presence
	HasPresence      bool
	TimeRemaining    time.Duration
	ParticipantCount int
	Active           bool
	LastError        string
}

// Snapshot returns a read-only copy of the monitor entry for id.
func (m *Manager) Snapshot(id int64) (MonitorSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.monitors[id]
	if !ok {
		return MonitorSnapshot{}, false
	}
	return MonitorSnapshot{
		Epoch:            st.epoch,
		Presence:         st.presence,
		HasPresence:      st.hasPresence,
		TimeRemaining:    st.timeRemaining,
		ParticipantCount: st.participantCount,
		Active:           st.active,
		LastError:        st.lastError,
	}, true
}

// Monitored reports whether id currently has a monitor entry.
func (m *Manager) Monitored(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.monitors[id]
	return ok
}

// FocusedEpoch returns the focused epoch id, if any.
func (m *Manager) FocusedEpoch() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.focused == 0 {
		return 0, false
	}
	return m.focused, true
}
