// Package sqlite provides the SQLite-backed ephemeral cache store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/ephemera.space/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/ephemera.space/internal/services/epoch/domain"
	"github.com/louisbranch/ephemera.space/internal/services/epoch/storage"
	"github.com/louisbranch/ephemera.space/internal/services/epoch/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed ephemeral cache persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens an ephemeral cache store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
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

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutEntry persists one cached ephemeral entry and returns it with the
// assigned row id.
func (s *Store) PutEntry(ctx context.Context, entry storage.Entry) (storage.Entry, error) {
	if err := ctx.Err(); err != nil {
		return storage.Entry{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Entry{}, fmt.Errorf("storage is not configured")
	}

	entry.Kind = strings.TrimSpace(entry.Kind)
	entry.PayloadPath = strings.TrimSpace(entry.PayloadPath)
	if err := domain.ValidateID(entry.EpochID); err != nil {
		return storage.Entry{}, err
	}
	if entry.Kind == "" {
		return storage.Entry{}, fmt.Errorf("entry kind is required")
	}
	if entry.PayloadPath == "" {
		return storage.Entry{}, fmt.Errorf("entry payload path is required")
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO ephemeral_entries (
	epoch_id,
	kind,
	payload_path,
	stored_at
) VALUES (?, ?, ?, ?)
`,
		entry.EpochID,
		entry.Kind,
		entry.PayloadPath,
		entry.StoredAt.Unix(),
	)
	if err != nil {
		return storage.Entry{}, fmt.Errorf("insert ephemeral entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return storage.Entry{}, fmt.Errorf("read inserted entry id: %w", err)
	}
	entry.ID = id
	return entry, nil
}

// EntriesForEpoch lists cached entries for one epoch, oldest first.
func (s *Store) EntriesForEpoch(ctx context.Context, epochID int64) ([]storage.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if err := domain.ValidateID(epochID); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, epoch_id, kind, payload_path, stored_at
FROM ephemeral_entries
WHERE epoch_id = ?
ORDER BY stored_at ASC, id ASC
`, epochID)
	if err != nil {
		return nil, fmt.Errorf("query ephemeral entries: %w", err)
	}
	defer rows.Close()

	var entries []storage.Entry
	for rows.Next() {
		var entry storage.Entry
		var storedAt int64
		if err := rows.Scan(&entry.ID, &entry.EpochID, &entry.Kind, &entry.PayloadPath, &storedAt); err != nil {
			return nil, fmt.Errorf("scan ephemeral entry: %w", err)
		}
		entry.StoredAt = time.Unix(storedAt, 0).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ephemeral entries: %w", err)
	}
	return entries, nil
}

// CachedEpochIDs lists every epoch id currently holding cached entries.
func (s *Store) CachedEpochIDs(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT DISTINCT epoch_id
FROM ephemeral_entries
ORDER BY epoch_id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("query cached epoch ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cached epoch id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cached epoch ids: %w", err)
	}
	return ids, nil
}

// PurgeEpoch deletes all cached entries for one epoch. Purging an epoch
// with no entries succeeds.
func (s *Store) PurgeEpoch(ctx context.Context, epochID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := domain.ValidateID(epochID); err != nil {
		return err
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM ephemeral_entries WHERE epoch_id = ?
`, epochID); err != nil {
		return fmt.Errorf("purge ephemeral entries: %w", err)
	}
	return nil
}

// PurgeExpiredEpochs deletes cached entries for every listed epoch in one
// statement. An empty list is a no-op.
func (s *Store) PurgeExpiredEpochs(ctx context.Context, epochIDs []int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(epochIDs) == 0 {
		return nil
	}

	placeholders := make([]string, len(epochIDs))
	args := make([]any, len(epochIDs))
	for i, id := range epochIDs {
		if err := domain.ValidateID(id); err != nil {
			return err
		}
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
DELETE FROM ephemeral_entries WHERE epoch_id IN (%s)
`, strings.Join(placeholders, ", "))
	if _, err := s.sqlDB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("purge expired epochs: %w", err)
	}
	return nil
}
