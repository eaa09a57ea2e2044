// Package source defines the collaborator contracts the epoch lifecycle
// core consumes: the remote epoch registry and the presence feed. Transport
// and wire formats live behind these interfaces.
package source

import (
	"context"
	"time"

	"github.com/louisbranch/ephemera.space/internal/services/epoch/domain"
)

// EventKind discriminates pushed epoch events.
type EventKind int

const (
	// EventUnspecified represents an invalid event value.
	EventUnspecified EventKind = iota
	// EventPhaseChanged reports a remotely observed phase transition.
	EventPhaseChanged
	// EventParticipantCountChanged reports a new participant count.
	EventParticipantCountChanged
	// EventTimerTick reports the source's own countdown measurement.
	EventTimerTick
	// EventClosed reports the epoch passed its end boundary.
	EventClosed
	// EventFinalized reports the epoch was sealed on-chain.
	EventFinalized
	// EventError reports a source-side failure for the subscription.
	EventError
)

// String returns the lowercase event kind name.
func (k EventKind) String() string {
	switch k {
	case EventPhaseChanged:
		return "phase-changed"
	case EventParticipantCountChanged:
		return "participant-count-changed"
	case EventTimerTick:
		return "timer-tick"
	case EventClosed:
		return "closed"
	case EventFinalized:
		return "finalized"
	case EventError:
		return "error"
	default:
		return "unspecified"
	}
}

// Event is one inbound epoch event. Only the fields matching Kind are set.
type Event struct {
	Kind             EventKind
	Phase            domain.State  // EventPhaseChanged
	ParticipantCount int           // EventParticipantCountChanged
	Remaining        time.Duration // EventTimerTick
	Message          string        // EventError
}

// Presence is a participant's presence inside one epoch. The lifecycle core
// stores the latest value per monitored epoch and passes it through to
// observers untouched.
type Presence struct {
	EpochID   int64
	Joined    bool
	Visible   bool
	UpdatedAt time.Time
}

// EpochSource fetches epoch snapshots and streams epoch events.
//
// SubscribeEpochEvents returns a channel that stays open until the context
// is cancelled or the source exhausts the stream; callers own resubscribe
// policy. UnsubscribeEpochEvents is best effort and must not fail the
// caller, so it reports nothing.
type EpochSource interface {
	FetchEpoch(ctx context.Context, id int64) (domain.Epoch, error)
	FetchEpochState(ctx context.Context, id int64) (domain.State, error)
	SubscribeEpochEvents(ctx context.Context, id int64) (<-chan Event, error)
	UnsubscribeEpochEvents(id int64)
}
