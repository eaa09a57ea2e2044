// Package ingest parses ingest command flags and writes epoch registrations
// into the local epoch mirror.
package ingest

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/ephemera.space/internal/platform/cmd"
	"github.com/louisbranch/ephemera.space/internal/services/epoch/domain"
	sourcesqlite "github.com/louisbranch/ephemera.space/internal/services/epoch/source/sqlite"
)

// Config holds one epoch registration to write into the mirror.
type Config struct {
	MirrorDBPath string `env:"EPHEMERA_SPACE_EPOCH_MIRROR_DB_PATH" envDefault:"data/epoch-mirror.db"`

	EpochID      int64
	RegistryAddr string
	ChainID      int64
	StartsAt     string
	EndsAt       string
	Finalized    bool
	Capability   string
	Title        string
	Location     string
	Tags         string
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.MirrorDBPath, "mirror-db-path", cfg.MirrorDBPath, "The epoch mirror SQLite database path")
	fs.Int64Var(&cfg.EpochID, "id", 0, "Epoch id to register")
	fs.StringVar(&cfg.RegistryAddr, "registry-addr", "", "Registry contract address")
	fs.Int64Var(&cfg.ChainID, "chain-id", 0, "Registry chain id")
	fs.StringVar(&cfg.StartsAt, "starts-at", "", "Epoch start (RFC 3339)")
	fs.StringVar(&cfg.EndsAt, "ends-at", "", "Epoch end (RFC 3339)")
	fs.BoolVar(&cfg.Finalized, "finalized", false, "Mark the epoch finalized")
	fs.StringVar(&cfg.Capability, "capability", "presence", "Capability tier (presence, signals, ephemeral-data)")
	fs.StringVar(&cfg.Title, "title", "", "Epoch title")
	fs.StringVar(&cfg.Location, "location", "", "Epoch location label")
	fs.StringVar(&cfg.Tags, "tags", "", "Comma-separated epoch tags")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Epoch converts the parsed flags into a registry snapshot.
func (cfg Config) Epoch() (domain.Epoch, error) {
	if err := domain.ValidateID(cfg.EpochID); err != nil {
		return domain.Epoch{}, err
	}
	startsAt, err := time.Parse(time.RFC3339, cfg.StartsAt)
	if err != nil {
		return domain.Epoch{}, fmt.Errorf("parse starts-at: %w", err)
	}
	endsAt, err := time.Parse(time.RFC3339, cfg.EndsAt)
	if err != nil {
		return domain.Epoch{}, fmt.Errorf("parse ends-at: %w", err)
	}
	if !endsAt.After(startsAt) {
		return domain.Epoch{}, fmt.Errorf("ends-at %v must be after starts-at %v", endsAt, startsAt)
	}
	capability, ok := domain.ParseCapability(cfg.Capability)
	if !ok {
		return domain.Epoch{}, fmt.Errorf("unknown capability %q", cfg.Capability)
	}

	var tags []string
	for _, tag := range strings.Split(cfg.Tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}

	return domain.Epoch{
		ID:           cfg.EpochID,
		RegistryAddr: cfg.RegistryAddr,
		ChainID:      cfg.ChainID,
		StartsAt:     startsAt,
		EndsAt:       endsAt,
		Finalized:    cfg.Finalized,
		Exists:       true,
		Capability:   capability,
		Meta: domain.Metadata{
			Title:    cfg.Title,
			Location: cfg.Location,
			Tags:     tags,
		},
	}, nil
}

// Run writes the epoch registration into the mirror.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	epoch, err := cfg.Epoch()
	if err != nil {
		return err
	}

	if dir := filepath.Dir(cfg.MirrorDBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create mirror dir: %w", err)
		}
	}
	mirror, err := sourcesqlite.Open(cfg.MirrorDBPath, 0)
	if err != nil {
		return fmt.Errorf("open epoch mirror: %w", err)
	}
	defer mirror.Close()

	if err := mirror.UpsertEpoch(ctx, epoch); err != nil {
		return fmt.Errorf("register epoch %d: %w", epoch.ID, err)
	}
	fmt.Fprintf(out, "epoch %d registered (%s to %s)\n",
		epoch.ID, epoch.StartsAt.Format(time.RFC3339), epoch.EndsAt.Format(time.RFC3339))
	return nil
}
