package domain

import "time"

// State describes the lifecycle phase of an epoch.
type State int

const (
	// StateUnknown indicates the epoch is not registered on-chain.
	StateUnknown State = iota
	// StateScheduled indicates the epoch exists but has not started yet.
	StateScheduled
	// StateActive indicates the epoch is currently running.
	StateActive
	// StateClosed indicates the epoch ended but awaits finalization.
	StateClosed
	// StateFinalized indicates the epoch is sealed. The phase is terminal.
	StateFinalized
)

// String returns the lowercase phase name.
func (s State) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further phase can follow s.
func (s State) Terminal() bool {
	return s == StateFinalized
}

// Joinable reports whether participants may join an epoch in phase s.
func (s State) Joinable() bool {
	return s == StateScheduled || s == StateActive
}

// ComputeState derives the epoch phase from remote flags and timestamps.
//
// The finalized flag is sticky: a finalized epoch reports StateFinalized
// regardless of how its timestamps compare to now. The start boundary is
// inclusive and the end boundary exclusive, so an epoch is Active on the
// exact start instant and Closed on the exact end instant.
func ComputeState(exists, finalized bool, start, end, now time.Time) State {
	if !exists {
		return StateUnknown
	}
	if finalized {
		return StateFinalized
	}
	if now.Before(start) {
		return StateScheduled
	}
	if now.Before(end) {
		return StateActive
	}
	return StateClosed
}
