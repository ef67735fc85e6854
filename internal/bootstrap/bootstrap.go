// Package bootstrap assembles the platform from configuration: it connects
// the storage and messaging backends, wires the campaign service, and hands
// the binaries a single handle to close everything down.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/helixforge/helixforge/internal/application/campaign"
	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/infrastructure/database/neo4j"
	neorepo "github.com/helixforge/helixforge/internal/infrastructure/database/neo4j/repositories"
	"github.com/helixforge/helixforge/internal/infrastructure/database/postgres"
	pgrepo "github.com/helixforge/helixforge/internal/infrastructure/database/postgres/repositories"
	"github.com/helixforge/helixforge/internal/infrastructure/database/redis"
	"github.com/helixforge/helixforge/internal/infrastructure/messaging/kafka"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/prometheus"
	"github.com/helixforge/helixforge/internal/infrastructure/search/milvus"
	"github.com/helixforge/helixforge/internal/infrastructure/search/opensearch"
	"github.com/helixforge/helixforge/internal/infrastructure/storage/minio"
	"github.com/helixforge/helixforge/internal/search/controller"
	"github.com/helixforge/helixforge/internal/search/oracle"
	"github.com/helixforge/helixforge/internal/search/strategy"
)

// runLockTTL comfortably exceeds one generation; the controller extends the
// lock between generations.
const runLockTTL = 2 * time.Minute

// NewLogger builds the process logger from the log config section.
func NewLogger(cfg config.LogConfig) (logging.Logger, error) {
	return logging.NewLogger(logging.LogConfig{
		Level:            cfg.Level,
		Format:           cfg.Format,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: cfg.ErrorOutputPaths,
	})
}

// Backends aggregates the infrastructure clients.  Postgres and Redis are
// required; the remaining backends connect only when configured and stay nil
// otherwise, and every consumer tolerates their absence.
type Backends struct {
	Config *config.Config
	Logger logging.Logger

	Postgres   *postgres.Connection
	Redis      *redis.Client
	Neo4j      *neo4j.Driver
	Milvus     *milvus.Client
	OpenSearch *opensearch.Client
	MinIO      *minio.Client
	Producer   *kafka.Producer

	Collector *prometheus.Collector
	Metrics   *prometheus.Metrics

	closers []func() error
}

// Connect dials every configured backend.  On error, backends connected so
// far are closed before returning.
func Connect(ctx context.Context, cfg *config.Config, log logging.Logger) (*Backends, error) {
	b := &Backends{Config: cfg, Logger: log}

	collector := prometheus.NewCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Metrics.Namespace,
		EnableProcessMetrics: true,
	})
	b.Collector = collector
	b.Metrics = prometheus.NewMetrics(collector)

	pg, err := postgres.NewConnection(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	b.Postgres = pg
	b.closers = append(b.closers, pg.Close)

	rd, err := redis.NewClient(&cfg.Redis, log)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Redis = rd
	b.closers = append(b.closers, rd.Close)

	if cfg.Neo4j.URI != "" {
		drv, err := neo4j.NewDriver(&cfg.Neo4j, log)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Neo4j = drv
		b.closers = append(b.closers, drv.Close)
	}

	if cfg.Milvus.Addr != "" {
		mv, err := milvus.NewClient(&cfg.Milvus, log)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Milvus = mv
		b.closers = append(b.closers, mv.Close)
	}

	if len(cfg.OpenSearch.Addresses) > 0 {
		os, err := opensearch.NewClient(&cfg.OpenSearch, log)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.OpenSearch = os
	}

	if cfg.MinIO.Endpoint != "" {
		mc, err := minio.NewClient(&cfg.MinIO, log)
		if err != nil {
			b.Close()
			return nil, err
		}
		if err := mc.EnsureBucket(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.MinIO = mc
		b.closers = append(b.closers, mc.Close)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(&cfg.Kafka, log)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Producer = producer
		b.closers = append(b.closers, producer.Close)
	}

	return b, nil
}

// Close releases every backend in reverse connection order.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			b.Logger.Warn("backend close failed", logging.Err(err))
		}
	}
	b.closers = nil
}

// Migrate applies pending schema migrations when a migration path is
// configured.
func (b *Backends) Migrate() error {
	db := b.Config.Database
	if db.MigrationPath == "" {
		return nil
	}
	url := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.User, db.Password, db.Host, db.Port, db.DBName, db.SSLMode)
	return postgres.RunMigrations(url, db.MigrationPath)
}

// HealthChecks returns the readiness probes for every connected backend.
func (b *Backends) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"postgres": b.Postgres.HealthCheck,
		"redis":    b.Redis.Ping,
	}
	if b.Neo4j != nil {
		checks["neo4j"] = b.Neo4j.HealthCheck
	}
	if b.Milvus != nil {
		checks["milvus"] = b.Milvus.CheckHealth
	}
	if b.OpenSearch != nil {
		checks["opensearch"] = b.OpenSearch.Ping
	}
	if b.MinIO != nil {
		checks["minio"] = b.MinIO.HealthCheck
	}
	return checks
}

// CampaignService builds the campaign application service on top of the
// connected backends.
func (b *Backends) CampaignService() (campaign.Service, error) {
	cfg := b.Config
	log := b.Logger

	scorer, err := oracle.NewFromConfig(&cfg.Oracle, log, oracle.WithMetrics(b.Metrics))
	if err != nil {
		return nil, err
	}

	var filter strategy.NoveltyFilter
	var embeddings campaign.EmbeddingIndex
	if b.Milvus != nil {
		store := milvus.NewEmbeddingStore(b.Milvus, log)
		filter = store
		embeddings = store
	}

	strat, err := strategy.New(&cfg.Search, nil, filter, log)
	if err != nil {
		return nil, err
	}

	deps := campaign.Dependencies{
		Runs:        pgrepo.NewRunRepository(b.Postgres.DB(), log),
		Candidates:  pgrepo.NewCandidateRepository(b.Postgres.DB(), log),
		Checkpoints: redis.NewCheckpointStore(b.Redis, log),
		Locks: func(runID string) campaign.RunLock {
			return redis.NewRunLock(b.Redis, runID, runLockTTL, log)
		},
		Embeddings: embeddings,
		Strategy:   strat,
		Scorer:     scorer,
		CacheStore: redis.NewScoreStore(b.Redis, log),
		Metrics:    b.Metrics,
	}

	if b.Neo4j != nil {
		deps.Lineage = neorepo.NewLineageRepository(b.Neo4j, log)
	}
	if b.OpenSearch != nil {
		deps.Archive = opensearch.NewIndexer(b.OpenSearch, log)
	}
	if b.MinIO != nil {
		deps.Poses = minio.NewArtifactStore(b.MinIO, log)
	}
	if b.Producer != nil {
		deps.Reporter = kafka.NewReporter(b.Producer, log)
	}

	return campaign.NewService(&cfg.Search, deps, log)
}

// Scorer builds a standalone oracle adapter, used by the scoring worker.
func (b *Backends) Scorer() (controller.Scorer, error) {
	return oracle.NewFromConfig(&b.Config.Oracle, b.Logger, oracle.WithMetrics(b.Metrics))
}
