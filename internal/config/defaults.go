// Package config provides configuration loading, defaults, and validation for
// the HelixForge platform.
package config

import "time"

// Default value constants.
const (
	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "helixforge"
	DefaultDBMaxConns = 25

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "helix:"

	DefaultNeo4jURI = "bolt://localhost:7687"

	DefaultKafkaBroker  = "localhost:9092"
	DefaultKafkaGroupID = "helixforge-workers"
	DefaultTopicPrefix  = "design"

	DefaultMilvusAddr   = "localhost:19530"
	DefaultEmbeddingDim = 256

	DefaultOpenSearchAddr = "http://localhost:9200"
	DefaultIndexPrefix    = "helix"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "helix-artifacts"

	DefaultOracleEndpoint = "http://localhost:8900"
	DefaultOracleEngine   = "vina"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsNamespace = "helixforge"
)

// ApplyDefaults fills every zero-value field in cfg with the platform
// default.  Fields already set by the caller are left unchanged so that
// explicit configuration always wins.  It must run after unmarshalling and
// before Validate so defaulted fields are never seen as missing.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// Server
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = time.Hour
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = "migrations"
	}

	// Redis
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = 3 * time.Second
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = 3 * time.Second
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = 24 * time.Hour
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// Neo4j
	if cfg.Neo4j.URI == "" {
		cfg.Neo4j.URI = DefaultNeo4jURI
	}
	if cfg.Neo4j.MaxConnectionPoolSize == 0 {
		cfg.Neo4j.MaxConnectionPoolSize = 50
	}
	if cfg.Neo4j.ConnectionTimeout == 0 {
		cfg.Neo4j.ConnectionTimeout = 5 * time.Second
	}
	if cfg.Neo4j.Database == "" {
		cfg.Neo4j.Database = "neo4j"
	}

	// Kafka
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}
	if cfg.Kafka.ProducerRetries == 0 {
		cfg.Kafka.ProducerRetries = 3
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = time.Second
	}
	if cfg.Kafka.TopicPrefix == "" {
		cfg.Kafka.TopicPrefix = DefaultTopicPrefix
	}

	// Milvus
	if cfg.Milvus.Addr == "" {
		cfg.Milvus.Addr = DefaultMilvusAddr
	}
	if cfg.Milvus.EmbeddingDim == 0 {
		cfg.Milvus.EmbeddingDim = DefaultEmbeddingDim
	}
	if cfg.Milvus.IndexType == "" {
		cfg.Milvus.IndexType = "HNSW"
	}
	if cfg.Milvus.DefaultTopK == 0 {
		cfg.Milvus.DefaultTopK = 16
	}
	if cfg.Milvus.CollectionPrefix == "" {
		cfg.Milvus.CollectionPrefix = "helix_"
	}

	// OpenSearch
	if len(cfg.OpenSearch.Addresses) == 0 {
		cfg.OpenSearch.Addresses = []string{DefaultOpenSearchAddr}
	}
	if cfg.OpenSearch.IndexPrefix == "" {
		cfg.OpenSearch.IndexPrefix = DefaultIndexPrefix
	}
	if cfg.OpenSearch.BulkBatchSize == 0 {
		cfg.OpenSearch.BulkBatchSize = 500
	}

	// MinIO
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.MinIO.PresignExpiry == 0 {
		cfg.MinIO.PresignExpiry = time.Hour
	}

	// Oracle
	if cfg.Oracle.Endpoint == "" {
		cfg.Oracle.Endpoint = DefaultOracleEndpoint
	}
	if cfg.Oracle.Engine == "" {
		cfg.Oracle.Engine = DefaultOracleEngine
	}
	if cfg.Oracle.Timeout == 0 {
		cfg.Oracle.Timeout = 2 * time.Minute
	}
	if cfg.Oracle.MaxRetries == 0 {
		cfg.Oracle.MaxRetries = 3
	}
	if cfg.Oracle.RetryBackoff == 0 {
		cfg.Oracle.RetryBackoff = time.Second
	}
	if cfg.Oracle.Exhaustiveness == 0 {
		cfg.Oracle.Exhaustiveness = 8
	}

	// Search
	if cfg.Search.BatchSize == 0 {
		cfg.Search.BatchSize = 32
	}
	if cfg.Search.PopulationCapacity == 0 {
		cfg.Search.PopulationCapacity = 64
	}
	if cfg.Search.MinViableSize == 0 {
		cfg.Search.MinViableSize = 2
	}
	if cfg.Search.MaxGenerations == 0 {
		cfg.Search.MaxGenerations = 100
	}
	if cfg.Search.BudgetEvaluations == 0 {
		cfg.Search.BudgetEvaluations = 1000
	}
	if cfg.Search.Patience == 0 {
		cfg.Search.Patience = 10
	}
	if cfg.Search.FailureThreshold == 0 {
		cfg.Search.FailureThreshold = 3
	}
	if cfg.Search.MaxConcurrency == 0 {
		cfg.Search.MaxConcurrency = 4
	}
	if cfg.Search.Seed == 0 {
		cfg.Search.Seed = 1
	}
	if cfg.Search.FitnessDirection == "" {
		cfg.Search.FitnessDirection = "minimize"
	}
	if cfg.Search.SelectionPolicy == "" {
		cfg.Search.SelectionPolicy = "top_k"
	}
	if cfg.Search.EliteFraction == 0 {
		cfg.Search.EliteFraction = 0.25
	}
	if cfg.Search.Strategy == "" {
		cfg.Search.Strategy = "mutation"
	}
	if cfg.Search.MutationRate == 0 {
		cfg.Search.MutationRate = 0.02
	}
	if cfg.Search.SnapshotInterval == 0 {
		cfg.Search.SnapshotInterval = 5
	}

	// Worker
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 8
	}
	if cfg.Worker.HandlerTimeout == 0 {
		cfg.Worker.HandlerTimeout = 5 * time.Minute
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = 3
	}
	if cfg.Worker.RetryBackoff == 0 {
		cfg.Worker.RetryBackoff = time.Second
	}
	if cfg.Worker.HeartbeatInterval == 0 {
		cfg.Worker.HeartbeatInterval = 30 * time.Second
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if len(cfg.Log.OutputPaths) == 0 {
		cfg.Log.OutputPaths = []string{"stdout"}
	}
	if len(cfg.Log.ErrorOutputPaths) == 0 {
		cfg.Log.ErrorOutputPaths = []string{"stderr"}
	}

	// Metrics
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}
