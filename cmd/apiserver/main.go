// Command apiserver serves the HelixForge HTTP API: run lifecycle, archive
// queries, similarity lookups, health probes, and Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/helixforge/helixforge/internal/bootstrap"
	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/internal/infrastructure/search/milvus"
	"github.com/helixforge/helixforge/internal/infrastructure/search/opensearch"
	"github.com/helixforge/helixforge/internal/infrastructure/storage/minio"
	httpserver "github.com/helixforge/helixforge/internal/interfaces/http"
	"github.com/helixforge/helixforge/internal/interfaces/http/handlers"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (HELIX_* env vars when empty)")
	port := flag.Int("port", 0, "HTTP port override")
	flag.Parse()

	if err := run(*configPath, *port); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, portOverride int) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return err
	}
	if portOverride > 0 {
		cfg.Server.Port = portOverride
	}

	log, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := bootstrap.Connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backends.Close()

	if err := backends.Migrate(); err != nil {
		return err
	}

	service, err := backends.CampaignService()
	if err != nil {
		return err
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = backends.Collector.Handler()
	}

	router := httpserver.NewRouter(httpserver.DefaultRouterConfig(cfg.Server), httpserver.RouterDependencies{
		Runs:           handlers.NewRunHandler(service, log),
		Archive:        newArchiveHandler(backends, log),
		Health:         handlers.NewHealthHandler(healthChecks(backends), log),
		MetricsHandler: metricsHandler,
		Logger:         log,
	})

	srv := httpserver.NewServer(cfg.Server, router, log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutdown signal received")
	return srv.Stop(context.Background())
}

// newArchiveHandler wires the post-run analysis endpoints from whichever
// archive backends are connected.
func newArchiveHandler(b *bootstrap.Backends, log logging.Logger) *handlers.ArchiveHandler {
	var searcher handlers.ArchiveSearcher
	if b.OpenSearch != nil {
		searcher = opensearch.NewSearcher(b.OpenSearch, log)
	}
	var index handlers.SimilarityIndex
	if b.Milvus != nil {
		index = milvus.NewEmbeddingStore(b.Milvus, log)
	}
	var poses handlers.PoseArtifacts
	if b.MinIO != nil {
		poses = minio.NewArtifactStore(b.MinIO, log)
	}
	return handlers.NewArchiveHandler(searcher, index, poses, log)
}

func healthChecks(b *bootstrap.Backends) []handlers.NamedCheck {
	byName := b.HealthChecks()
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make([]handlers.NamedCheck, 0, len(names))
	for _, name := range names {
		checks = append(checks, handlers.NamedCheck{Name: name, Check: byName[name]})
	}
	return checks
}
