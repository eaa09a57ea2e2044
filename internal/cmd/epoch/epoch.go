// Package epoch parses epoch daemon flags and launches the epoch runtime.
package epoch

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/ephemera.space/internal/platform/cmd"
	epochserver "github.com/louisbranch/ephemera.space/internal/services/epoch/app"
)

// Config holds epoch daemon configuration.
type Config struct {
	Port               int           `env:"EPHEMERA_SPACE_EPOCH_PORT" envDefault:"8093"`
	MirrorDBPath       string        `env:"EPHEMERA_SPACE_EPOCH_MIRROR_DB_PATH" envDefault:"data/epoch-mirror.db"`
	CacheDBPath        string        `env:"EPHEMERA_SPACE_EPOCH_CACHE_DB_PATH" envDefault:"data/epoch-cache.db"`
	MirrorPollInterval time.Duration `env:"EPHEMERA_SPACE_EPOCH_MIRROR_POLL_INTERVAL" envDefault:"2s"`
	ScanInterval       time.Duration `env:"EPHEMERA_SPACE_EPOCH_SCAN_INTERVAL" envDefault:"30s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The epoch health gRPC server port")
	fs.StringVar(&cfg.MirrorDBPath, "mirror-db-path", cfg.MirrorDBPath, "The epoch mirror SQLite database path")
	fs.StringVar(&cfg.CacheDBPath, "cache-db-path", cfg.CacheDBPath, "The ephemeral cache SQLite database path")
	fs.DurationVar(&cfg.MirrorPollInterval, "mirror-poll-interval", cfg.MirrorPollInterval, "Mirror change poll interval")
	fs.DurationVar(&cfg.ScanInterval, "scan-interval", cfg.ScanInterval, "New epoch scan interval")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the epoch daemon runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEpoch, func(context.Context) error {
		return epochserver.Run(ctx, epochserver.RuntimeConfig{
			Port:               cfg.Port,
			MirrorDBPath:       cfg.MirrorDBPath,
			CacheDBPath:        cfg.CacheDBPath,
			MirrorPollInterval: cfg.MirrorPollInterval,
			ScanInterval:       cfg.ScanInterval,
		})
	})
}
