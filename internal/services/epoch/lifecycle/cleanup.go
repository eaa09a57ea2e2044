package lifecycle

import (
	"context"
	"fmt"
	"log"

	"github.com/louisbranch/ephemera.space/internal/services/epoch/domain"
)

// PerformStartupCleanup reconciles the ephemeral cache at process start.
// Timers and subscriptions do not survive a restart, so every cached epoch
// is re-checked against the registry: closed, finalized, and unverifiable
// epochs are purged. An unverifiable epoch is assumed closed - the cleanup
// fails toward purging, never toward retaining data.
func (m *Manager) PerformStartupCleanup(ctx context.Context) error {
	ids, err := m.store.CachedEpochIDs(ctx)
	if err != nil {
		return fmt.Errorf("list cached epochs: %w", err)
	}

	var expired []int64
	for _, id := range ids {
		state, err := m.source.FetchEpochState(ctx, id)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			log.Printf("startup state check for epoch %d failed, purging: %v", id, err)
			expired = append(expired, id)
			continue
		}
		switch state {
		case domain.StateClosed, domain.StateFinalized, domain.StateUnknown:
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		return nil
	}
	if err := m.store.PurgeExpiredEpochs(ctx, expired); err != nil {
		return fmt.Errorf("purge expired epochs: %w", err)
	}
	return nil
}
