// Package config defines all configuration structures for the HelixForge
// platform.  No I/O or parsing logic lives here — only plain data types and
// validation.
package config

import (
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the run registry.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// RedisConfig holds Redis connection parameters for the persistent score
// cache tier and run checkpoints.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// Neo4jConfig holds Neo4j connection parameters for the lineage graph.
type Neo4jConfig struct {
	URI                   string        `mapstructure:"uri"`
	User                  string        `mapstructure:"user"`
	Password              string        `mapstructure:"password"`
	MaxConnectionPoolSize int           `mapstructure:"max_connection_pool_size"`
	ConnectionTimeout     time.Duration `mapstructure:"connection_timeout"`
	Database              string        `mapstructure:"database"`
}

// KafkaConfig holds Kafka producer/consumer parameters for reports and
// async scoring jobs.
type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	GroupID         string        `mapstructure:"group_id"`
	AutoOffsetReset string        `mapstructure:"auto_offset_reset"` // "earliest" | "latest"
	ProducerRetries int           `mapstructure:"producer_retries"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	TopicPrefix     string        `mapstructure:"topic_prefix"`
}

// MilvusConfig holds Milvus vector-store parameters for sequence embeddings.
type MilvusConfig struct {
	Addr             string `mapstructure:"addr"`
	DBName           string `mapstructure:"db_name"`
	EmbeddingDim     int    `mapstructure:"embedding_dim"`
	IndexType        string `mapstructure:"index_type"`
	DefaultTopK      int    `mapstructure:"default_top_k"`
	CollectionPrefix string `mapstructure:"collection_prefix"`
}

// OpenSearchConfig holds OpenSearch parameters for the candidate archive.
type OpenSearchConfig struct {
	Addresses          []string `mapstructure:"addresses"`
	User               string   `mapstructure:"user"`
	Password           string   `mapstructure:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	IndexPrefix        string   `mapstructure:"index_prefix"`
	BulkBatchSize      int      `mapstructure:"bulk_batch_size"`
}

// MinIOConfig holds object-storage parameters for receptor structures and
// docked pose artifacts.
type MinIOConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	Bucket        string        `mapstructure:"bucket"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// OracleConfig holds scoring-oracle adapter parameters.
type OracleConfig struct {
	// Endpoint is the docking daemon's REST endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// HealthAddr is the daemon's gRPC health-probe address.
	HealthAddr string `mapstructure:"health_addr"`

	// Engine names the docking backend ("vina" | "embedding" | "mock").
	Engine string `mapstructure:"engine"`

	// Timeout bounds one evaluation; exceeding it yields TIMED_OUT.
	Timeout time.Duration `mapstructure:"timeout"`

	// MaxRetries bounds retries of transient faults before FAILED.
	MaxRetries int `mapstructure:"max_retries"`

	// RetryBackoff is the initial backoff, doubled per attempt.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`

	// Exhaustiveness is forwarded to Vina-style engines.
	Exhaustiveness int `mapstructure:"exhaustiveness"`
}

// SearchConfig holds the search-controller parameters.  Fitness direction and
// selection policy are deliberately required configuration: the platform does
// not guess evaluation semantics.
type SearchConfig struct {
	BatchSize          int           `mapstructure:"batch_size"`
	PopulationCapacity int           `mapstructure:"population_capacity"`
	MinViableSize      int           `mapstructure:"min_viable_size"`
	MaxGenerations     int           `mapstructure:"max_generations"`
	BudgetEvaluations  int           `mapstructure:"budget_evaluations"`
	BudgetWallClock    time.Duration `mapstructure:"budget_wall_clock"`
	Patience           int           `mapstructure:"patience"`
	FailureThreshold   int           `mapstructure:"failure_threshold"`
	MaxConcurrency     int           `mapstructure:"max_concurrency"`
	Seed               int64         `mapstructure:"seed"`
	FitnessDirection   string        `mapstructure:"fitness_direction"` // "minimize" | "maximize"
	SelectionPolicy    string        `mapstructure:"selection_policy"`  // "top_k" | "elitist"
	EliteFraction      float64       `mapstructure:"elite_fraction"`
	Strategy           string        `mapstructure:"strategy"` // mutation | crossover | model_sampled | hybrid
	MutationRate       float64       `mapstructure:"mutation_rate"`
	ForbiddenResidues  string        `mapstructure:"forbidden_residues"` // e.g. "C,K"
	SnapshotInterval   int           `mapstructure:"snapshot_interval"`  // generations between checkpoints
}

// WorkerConfig holds background-worker execution parameters.
type WorkerConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	HandlerTimeout    time.Duration `mapstructure:"handler_timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level            string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format           string   `mapstructure:"format"` // "json" | "console"
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MetricsConfig holds Prometheus exposition parameters.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
	Port      int    `mapstructure:"port"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure for the entire platform.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Neo4j      Neo4jConfig      `mapstructure:"neo4j"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Milvus     MilvusConfig     `mapstructure:"milvus"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Search     SearchConfig     `mapstructure:"search"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start the application.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	if c.Search.BatchSize < 1 {
		return fmt.Errorf("config: search.batch_size %d must be >= 1", c.Search.BatchSize)
	}
	if c.Search.PopulationCapacity < 1 {
		return fmt.Errorf("config: search.population_capacity %d must be >= 1", c.Search.PopulationCapacity)
	}
	if c.Search.MinViableSize < 1 || c.Search.MinViableSize > c.Search.PopulationCapacity {
		return fmt.Errorf("config: search.min_viable_size %d must be in [1, population_capacity]", c.Search.MinViableSize)
	}
	if c.Search.BudgetEvaluations < 1 && c.Search.BudgetWallClock <= 0 {
		return fmt.Errorf("config: search requires a positive evaluation or wall-clock budget")
	}
	if c.Search.Patience < 1 {
		return fmt.Errorf("config: search.patience %d must be >= 1", c.Search.Patience)
	}
	if c.Search.FailureThreshold < 1 {
		return fmt.Errorf("config: search.failure_threshold %d must be >= 1", c.Search.FailureThreshold)
	}
	if c.Search.MaxConcurrency < 1 {
		return fmt.Errorf("config: search.max_concurrency %d must be >= 1", c.Search.MaxConcurrency)
	}
	switch c.Search.FitnessDirection {
	case "minimize", "maximize":
	default:
		return fmt.Errorf("config: search.fitness_direction %q is invalid; expected minimize|maximize", c.Search.FitnessDirection)
	}
	switch c.Search.SelectionPolicy {
	case "top_k", "elitist":
	default:
		return fmt.Errorf("config: search.selection_policy %q is invalid; expected top_k|elitist", c.Search.SelectionPolicy)
	}
	if c.Search.SelectionPolicy == "elitist" &&
		(c.Search.EliteFraction <= 0 || c.Search.EliteFraction > 1) {
		return fmt.Errorf("config: search.elite_fraction %f must be in (0, 1]", c.Search.EliteFraction)
	}
	switch c.Search.Strategy {
	case "mutation", "crossover", "model_sampled", "hybrid":
	default:
		return fmt.Errorf("config: search.strategy %q is invalid", c.Search.Strategy)
	}
	if c.Search.MutationRate < 0 || c.Search.MutationRate > 1 {
		return fmt.Errorf("config: search.mutation_rate %f must be in [0, 1]", c.Search.MutationRate)
	}

	if c.Oracle.Timeout <= 0 {
		return fmt.Errorf("config: oracle.timeout must be positive")
	}
	if c.Oracle.MaxRetries < 0 {
		return fmt.Errorf("config: oracle.max_retries %d must be >= 0", c.Oracle.MaxRetries)
	}
	switch c.Oracle.Engine {
	case "vina", "embedding", "mock":
	default:
		return fmt.Errorf("config: oracle.engine %q is invalid; expected vina|embedding|mock", c.Oracle.Engine)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency %d must be >= 1", c.Worker.Concurrency)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid", c.Log.Level)
	}

	return nil
}
