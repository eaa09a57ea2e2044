// Package sqlite provides an epoch source backed by the local epoch mirror.
//
// The ingest pipeline keeps the mirror table in sync with the on-chain
// registry; this source serves snapshots out of it and derives epoch events
// by polling for row changes, so the lifecycle core never touches the wire.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/ephemera.space/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/ephemera.space/internal/services/epoch/domain"
	"github.com/louisbranch/ephemera.space/internal/services/epoch/source"
	"github.com/louisbranch/ephemera.space/internal/services/epoch/source/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const defaultPollInterval = 2 * time.Second

// Source reads epoch snapshots from the mirror table and streams derived
// events by polling.
type Source struct {
	sqlDB *sql.DB
	poll  time.Duration
	clock func() time.Time
}

// Open opens the epoch mirror and applies migrations. A non-positive poll
// interval falls back to the default.
func Open(path string, poll time.Duration) (*Source, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("mirror path is required")
	}
	if poll <= 0 {
		poll = defaultPollInterval
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	src := &Source{sqlDB: sqlDB, poll: poll, clock: time.Now}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return src, nil
}

// Close releases the SQLite connection.
func (s *Source) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// UpsertEpoch writes one epoch snapshot into the mirror. The ingest
// pipeline calls this as registry updates arrive.
func (s *Source) UpsertEpoch(ctx context.Context, epoch domain.Epoch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("mirror is not configured")
	}
	if err := domain.ValidateID(epoch.ID); err != nil {
		return err
	}
	epoch.Meta = domain.NormalizeMetadata(epoch.Meta)

	registered := 0
	if epoch.Exists {
		registered = 1
	}
	finalized := 0
	if epoch.Finalized {
		finalized = 1
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO epoch_mirror (
	epoch_id, registry_addr, chain_id, starts_at, ends_at,
	finalized, registered, capability, data_policy_hash,
	title, description, participant_count, validated_count, tags, location,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (epoch_id) DO UPDATE SET
	registry_addr = excluded.registry_addr,
	chain_id = excluded.chain_id,
	starts_at = excluded.starts_at,
	ends_at = excluded.ends_at,
	finalized = excluded.finalized,
	registered = excluded.registered,
	capability = excluded.capability,
	data_policy_hash = excluded.data_policy_hash,
	title = excluded.title,
	description = excluded.description,
	participant_count = excluded.participant_count,
	validated_count = excluded.validated_count,
	tags = excluded.tags,
	location = excluded.location,
	updated_at = excluded.updated_at
`,
		epoch.ID,
		epoch.RegistryAddr,
		epoch.ChainID,
		epoch.StartsAt.Unix(),
		epoch.EndsAt.Unix(),
		finalized,
		registered,
		int(epoch.Capability),
		epoch.DataPolicyHash,
		epoch.Meta.Title,
		epoch.Meta.Description,
		epoch.Meta.ParticipantCount,
		epoch.Meta.ValidatedCount,
		strings.Join(epoch.Meta.Tags, ","),
		epoch.Meta.Location,
		s.clock().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert epoch mirror row: %w", err)
	}
	return nil
}

// FetchEpoch returns the mirrored snapshot for id.
func (s *Source) FetchEpoch(ctx context.Context, id int64) (domain.Epoch, error) {
	if err := ctx.Err(); err != nil {
		return domain.Epoch{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Epoch{}, fmt.Errorf("mirror is not configured")
	}
	if err := domain.ValidateID(id); err != nil {
		return domain.Epoch{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT epoch_id, registry_addr, chain_id, starts_at, ends_at,
	finalized, registered, capability, data_policy_hash,
	title, description, participant_count, validated_count, tags, location
FROM epoch_mirror
WHERE epoch_id = ?
`, id)
	epoch, err := scanEpoch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Epoch{}, domain.NotFoundError(id)
	}
	if err != nil {
		return domain.Epoch{}, domain.NetworkError("read epoch mirror", err)
	}
	return epoch, nil
}

// FetchEpochState returns the mirrored epoch's phase at the current instant.
func (s *Source) FetchEpochState(ctx context.Context, id int64) (domain.State, error) {
	epoch, err := s.FetchEpoch(ctx, id)
	if err != nil {
		return domain.StateUnknown, err
	}
	return epoch.StateAt(s.clock()), nil
}

// SubscribeEpochEvents streams events derived from mirror row changes. The
// channel closes when ctx is cancelled.
func (s *Source) SubscribeEpochEvents(ctx context.Context, id int64) (<-chan source.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := domain.ValidateID(id); err != nil {
		return nil, err
	}

	ch := make(chan source.Event, 16)
	go s.pollEvents(ctx, id, ch)
	return ch, nil
}

// UnsubscribeEpochEvents is a no-op: subscriptions are scoped to their
// context and release themselves on cancellation.
func (s *Source) UnsubscribeEpochEvents(int64) {}

// ListCurrent lists mirrored epochs that are scheduled or active right now,
// soonest-ending first.
func (s *Source) ListCurrent(ctx context.Context) ([]domain.Epoch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("mirror is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT epoch_id, registry_addr, chain_id, starts_at, ends_at,
	finalized, registered, capability, data_policy_hash,
	title, description, participant_count, validated_count, tags, location
FROM epoch_mirror
WHERE registered = 1 AND finalized = 0 AND ends_at > ?
ORDER BY ends_at ASC
`, s.clock().Unix())
	if err != nil {
		return nil, domain.NetworkError("list epoch mirror", err)
	}
	defer rows.Close()

	var epochs []domain.Epoch
	for rows.Next() {
		epoch, err := scanEpoch(rows)
		if err != nil {
			return nil, domain.NetworkError("scan epoch mirror row", err)
		}
		epochs = append(epochs, epoch)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NetworkError("iterate epoch mirror rows", err)
	}
	return epochs, nil
}

// pollEvents re-reads the mirror row on every poll and emits the deltas.
func (s *Source) pollEvents(ctx context.Context, id int64, ch chan<- source.Event) {
	defer close(ch)

	prev, err := s.FetchEpoch(ctx, id)
	havePrev := err == nil
	prevState := domain.StateUnknown
	if havePrev {
		prevState = prev.StateAt(s.clock())
	}

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		next, err := s.FetchEpoch(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			emit(ctx, ch, source.Event{Kind: source.EventError, Message: err.Error()})
			continue
		}

		nextState := next.StateAt(s.clock())
		if !havePrev {
			prev, prevState, havePrev = next, nextState, true
			continue
		}
		// A phase can move because the row changed or because time passed;
		// both surface here.
		if nextState != prevState {
			emit(ctx, ch, source.Event{Kind: source.EventPhaseChanged, Phase: nextState})
		}
		if prev.Meta.ParticipantCount != next.Meta.ParticipantCount {
			emit(ctx, ch, source.Event{
				Kind:             source.EventParticipantCountChanged,
				ParticipantCount: next.Meta.ParticipantCount,
			})
		}
		prev, prevState = next, nextState
	}
}

func emit(ctx context.Context, ch chan<- source.Event, ev source.Event) {
	select {
	case <-ctx.Done():
	case ch <- ev:
	}
}

// scanner abstracts sql.Row and sql.Rows for scanEpoch.
type scanner interface {
	Scan(dest ...any) error
}

func scanEpoch(row scanner) (domain.Epoch, error) {
	var epoch domain.Epoch
	var startsAt, endsAt int64
	var finalized, registered, capability int
	var tags string
	if err := row.Scan(
		&epoch.ID,
		&epoch.RegistryAddr,
		&epoch.ChainID,
		&startsAt,
		&endsAt,
		&finalized,
		&registered,
		&capability,
		&epoch.DataPolicyHash,
		&epoch.Meta.Title,
		&epoch.Meta.Description,
		&epoch.Meta.ParticipantCount,
		&epoch.Meta.ValidatedCount,
		&tags,
		&epoch.Meta.Location,
	); err != nil {
		return domain.Epoch{}, err
	}
	epoch.StartsAt = time.Unix(startsAt, 0).UTC()
	epoch.EndsAt = time.Unix(endsAt, 0).UTC()
	epoch.Finalized = finalized != 0
	epoch.Exists = registered != 0
	epoch.Capability = domain.Capability(capability)
	if tags != "" {
		epoch.Meta.Tags = strings.Split(tags, ",")
	}
	return epoch, nil
}
