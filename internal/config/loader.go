package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all platform settings.
const envPrefix = "HELIX"

// configKeys lists every mapstructure path in Config.  Viper only surfaces
// environment variables for keys it already knows about, so each key is bound
// explicitly; without this, env-only settings would be invisible to Unmarshal.
var configKeys = []string{
	"server.port", "server.mode", "server.read_timeout", "server.write_timeout",
	"server.shutdown_timeout",
	"database.host", "database.port", "database.user", "database.password",
	"database.db_name", "database.ssl_mode", "database.max_conns",
	"database.min_conns", "database.conn_max_lifetime", "database.migration_path",
	"redis.addr", "redis.password", "redis.db", "redis.pool_size",
	"redis.dial_timeout", "redis.read_timeout", "redis.write_timeout",
	"redis.default_ttl", "redis.key_prefix",
	"neo4j.uri", "neo4j.user", "neo4j.password", "neo4j.max_connection_pool_size",
	"neo4j.connection_timeout", "neo4j.database",
	"kafka.brokers", "kafka.group_id", "kafka.auto_offset_reset",
	"kafka.producer_retries", "kafka.batch_timeout", "kafka.topic_prefix",
	"milvus.addr", "milvus.db_name", "milvus.embedding_dim", "milvus.index_type",
	"milvus.default_top_k", "milvus.collection_prefix",
	"opensearch.addresses", "opensearch.user", "opensearch.password",
	"opensearch.insecure_skip_verify", "opensearch.index_prefix",
	"opensearch.bulk_batch_size",
	"minio.endpoint", "minio.access_key", "minio.secret_key", "minio.bucket",
	"minio.use_ssl", "minio.presign_expiry",
	"oracle.endpoint", "oracle.health_addr", "oracle.engine", "oracle.timeout",
	"oracle.max_retries", "oracle.retry_backoff", "oracle.exhaustiveness",
	"search.batch_size", "search.population_capacity", "search.min_viable_size",
	"search.max_generations", "search.budget_evaluations", "search.budget_wall_clock",
	"search.patience", "search.failure_threshold", "search.max_concurrency",
	"search.seed", "search.fitness_direction", "search.selection_policy",
	"search.elite_fraction", "search.strategy", "search.mutation_rate",
	"search.forbidden_residues", "search.snapshot_interval",
	"worker.concurrency", "worker.handler_timeout", "worker.max_retries",
	"worker.retry_backoff", "worker.heartbeat_interval",
	"log.level", "log.format", "log.output_paths", "log.error_output_paths",
	"metrics.enabled", "metrics.namespace", "metrics.path", "metrics.port",
}

// newViper builds a pre-configured Viper instance with the platform's
// standard settings: YAML file type, HELIX_ env prefix, automatic env
// binding, and a key replacer that maps "." → "_" so that nested keys like
// "database.host" resolve to "HELIX_DATABASE_HOST".
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads the YAML file at configPath, merges any HELIX_* environment
// variable overrides, applies platform defaults for unset fields, and
// validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from HELIX_* environment variables,
// with no config file required.  Preferred for containerised deployments.
//
// Naming convention: HELIX_<SECTION>_<FIELD>, e.g. HELIX_REDIS_ADDR.
func LoadFromEnv() (*Config, error) {
	v := newViper()
	return unmarshalAndFinalize(v)
}

// unmarshalAndFinalize unmarshals viper state into a Config struct, applies
// defaults, and validates the result.
func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath for changes and invokes onChange with the newly
// parsed Config whenever the file is modified on disk.  Intended for
// hot-reloading non-critical settings such as log level; callers apply only
// the safe subset of changes at runtime.
//
// Watch is non-blocking; it starts a background goroutine managed by viper.
// A changed file that fails to parse or validate does not trigger onChange.
func Watch(configPath string, onChange func(*Config)) {
	v := newViper()
	v.SetConfigFile(configPath)

	// Initial read; callers should have called Load first.
	_ = v.ReadInConfig()

	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
}

// MustLoad is a convenience wrapper around Load that panics on any error.
// Intended for use in main() where a config-load failure is always fatal.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
