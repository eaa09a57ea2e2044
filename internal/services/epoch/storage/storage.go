// Package storage defines the ephemeral cache contract for the epoch
// service. Cached entries are scoped to an epoch and must not survive the
// epoch leaving its active phase.
package storage

import (
	"context"
	"time"
)

// Entry is one cached piece of epoch-scoped ephemeral media.
type Entry struct {
	ID          int64
	EpochID     int64
	Kind        string // media kind, e.g. "photo", "audio"
	PayloadPath string // filesystem path of the cached payload
	StoredAt    time.Time
}

// EphemeralStore persists epoch-scoped ephemeral cache entries.
//
// PurgeEpoch is idempotent: purging an epoch with no cached entries
// succeeds. PurgeExpiredEpochs is the bulk form used by startup
// reconciliation.
type EphemeralStore interface {
	PutEntry(ctx context.Context, entry Entry) (Entry, error)
	EntriesForEpoch(ctx context.Context, epochID int64) ([]Entry, error)
	CachedEpochIDs(ctx context.Context) ([]int64, error)
	PurgeEpoch(ctx context.Context, epochID int64) error
	PurgeExpiredEpochs(ctx context.Context, epochIDs []int64) error
}
