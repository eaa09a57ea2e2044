// Package app wires the epoch daemon runtime: the mirror source, the
// ephemeral cache store, the lifecycle manager, and a health endpoint.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/ephemera.space/internal/platform/timeouts"
	"github.com/louisbranch/ephemera.space/internal/services/epoch/domain"
	"github.com/louisbranch/ephemera.space/internal/services/epoch/lifecycle"
	sourcesqlite "github.com/louisbranch/ephemera.space/internal/services/epoch/source/sqlite"
	storagesqlite "github.com/louisbranch/ephemera.space/internal/services/epoch/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// RuntimeConfig controls epoch daemon startup and loop behavior.
type RuntimeConfig struct {
	Port               int
	MirrorDBPath       string
	CacheDBPath        string
	MirrorPollInterval time.Duration
	ScanInterval       time.Duration
}

const (
	defaultEpochPort = 8093
	defaultMirrorDB  = "data/epoch-mirror.db"
	defaultCacheDB   = "data/epoch-cache.db"
)

// Run starts epoch daemon dependencies and the epoch scan loop. It blocks
// until ctx is cancelled or a dependency fails.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultEpochPort
	}
	if strings.TrimSpace(cfg.MirrorDBPath) == "" {
		cfg.MirrorDBPath = defaultMirrorDB
	}
	if strings.TrimSpace(cfg.CacheDBPath) == "" {
		cfg.CacheDBPath = defaultCacheDB
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = timeouts.EpochScanInterval
	}

	for _, path := range []string{cfg.MirrorDBPath, cfg.CacheDBPath} {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create epoch storage dir: %w", err)
			}
		}
	}

	cacheStore, err := storagesqlite.Open(cfg.CacheDBPath)
	if err != nil {
		return fmt.Errorf("open epoch cache store: %w", err)
	}
	defer func() {
		if closeErr := cacheStore.Close(); closeErr != nil {
			log.Printf("close epoch cache store: %v", closeErr)
		}
	}()

	mirror, err := sourcesqlite.Open(cfg.MirrorDBPath, cfg.MirrorPollInterval)
	if err != nil {
		return fmt.Errorf("open epoch mirror source: %w", err)
	}
	defer func() {
		if closeErr := mirror.Close(); closeErr != nil {
			log.Printf("close epoch mirror source: %v", closeErr)
		}
	}()

	manager := lifecycle.NewManager(mirror, cacheStore, logSink{}, nil)
	defer manager.Close()

	if err := manager.PerformStartupCleanup(ctx); err != nil {
		return fmt.Errorf("startup cleanup: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on epoch port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("epoch.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(timeouts.Shutdown):
			grpcServer.Stop()
		}
		<-serveErr
	}()

	log.Printf("epoch server listening at %v", listener.Addr())
	return runScanLoop(ctx, manager, mirror, cfg.ScanInterval)
}

// currentLister narrows the mirror to the query the scan loop needs.
type currentLister interface {
	ListCurrent(ctx context.Context) ([]domain.Epoch, error)
}

// runScanLoop activates every current epoch from the mirror that the
// manager is not already watching. Terminal epochs leave the manager on
// their own once their lifecycle completes.
func runScanLoop(ctx context.Context, manager *lifecycle.Manager, lister currentLister, interval time.Duration) error {
	scanOnce(ctx, manager, lister)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			scanOnce(ctx, manager, lister)
		}
	}
}

func scanOnce(ctx context.Context, manager *lifecycle.Manager, lister currentLister) {
	epochs, err := lister.ListCurrent(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("scan epoch mirror: %v", err)
		}
		return
	}
	for _, epoch := range epochs {
		if manager.Monitored(epoch.ID) {
			continue
		}
		log.Printf("monitoring epoch %d (%s)", epoch.ID, epoch.Meta.Title)
		manager.ActivateEpoch(epoch)
	}
}

// logSink reports lifecycle transitions to the process log.
type logSink struct{}

func (logSink) EpochActivated(id int64) { log.Printf("epoch %d activated", id) }
func (logSink) EpochClosed(id int64)    { log.Printf("epoch %d closed, ephemeral data purged", id) }
func (logSink) EpochFinalized(id int64) { log.Printf("epoch %d finalized", id) }
