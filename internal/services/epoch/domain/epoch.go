package domain

import (
	"strings"
	"time"
)

// Epoch is an immutable snapshot of one epoch's remote state plus the
// display metadata attached to it. Metadata never affects phase computation.
type Epoch struct {
	ID             int64
	RegistryAddr   string
	ChainID        int64
	StartsAt       time.Time
	EndsAt         time.Time
	Finalized      bool
	Exists         bool
	Capability     Capability
	DataPolicyHash string // empty when the epoch carries no data policy
	Meta           Metadata
}

// Metadata holds display-only epoch attributes.
type Metadata struct {
	Title            string
	Description      string
	ParticipantCount int
	ValidatedCount   int
	Tags             []string
	Location         string
}

// ValidateID reports whether id is a usable epoch identifier.
// Registry epoch ids are strictly positive.
func ValidateID(id int64) error {
	if id <= 0 {
		return ErrInvalidEpochID
	}
	return nil
}

// NormalizeMetadata trims free-text metadata fields and drops empty tags.
func NormalizeMetadata(meta Metadata) Metadata {
	meta.Title = strings.TrimSpace(meta.Title)
	meta.Description = strings.TrimSpace(meta.Description)
	meta.Location = strings.TrimSpace(meta.Location)
	tags := meta.Tags[:0:0]
	for _, tag := range meta.Tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	meta.Tags = tags
	return meta
}

// StateAt computes the epoch's phase at the given instant.
func (e Epoch) StateAt(now time.Time) State {
	return ComputeState(e.Exists, e.Finalized, e.StartsAt, e.EndsAt, now)
}

// TimeToNextPhase returns the duration until the epoch's next local phase
// boundary at the given instant. It returns zero and false when no local
// boundary remains (unknown, closed, or finalized epochs).
func (e Epoch) TimeToNextPhase(now time.Time) (time.Duration, bool) {
	switch e.StateAt(now) {
	case StateScheduled:
		return e.StartsAt.Sub(now), true
	case StateActive:
		return e.EndsAt.Sub(now), true
	default:
		return 0, false
	}
}
