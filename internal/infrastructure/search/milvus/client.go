// Package milvus provides the sequence-embedding store.  Evaluated designs
// are embedded and indexed so model-sampled proposals can be screened for
// novelty before they spend oracle budget.
package milvus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
)

// milvusNewClient is swapped out in tests.
var milvusNewClient = client.NewClient

var (
	ErrConnectionFailed = errors.New(errors.ErrCodeExternalService, "milvus connection failed")
	ErrUnhealthy        = errors.New(errors.ErrCodeServiceUnavailable, "milvus unhealthy")
)

// Client manages the Milvus connection lifecycle.
type Client struct {
	mc      client.Client
	cfg     *config.MilvusConfig
	logger  logging.Logger
	healthy atomic.Bool
	once    sync.Once
}

func applyDefaults(cfg *config.MilvusConfig) {
	if cfg.DBName == "" {
		cfg.DBName = "default"
	}
	if cfg.EmbeddingDim <= 0 {
		cfg.EmbeddingDim = 256
	}
	if cfg.IndexType == "" {
		cfg.IndexType = "hnsw"
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 10
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = "helixforge_"
	}
}

// NewClient connects to Milvus and verifies the cluster is reachable.
func NewClient(cfg *config.MilvusConfig, log logging.Logger) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New(errors.ErrCodeValidation, "milvus address is required")
	}
	applyDefaults(cfg)

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                60 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mc, err := milvusNewClient(ctx, client.Config{
		Address:     cfg.Addr,
		DBName:      cfg.DBName,
		DialOptions: dialOpts,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to connect to milvus")
	}

	c := &Client{mc: mc, cfg: cfg, logger: log}
	if err := c.CheckHealth(ctx); err != nil {
		c.Close()
		return nil, ErrConnectionFailed
	}

	log.Info("connected to milvus",
		logging.String("addr", cfg.Addr),
		logging.Int("embedding_dim", cfg.EmbeddingDim))
	return c, nil
}

// CheckHealth asks the cluster for its health state.
func (c *Client) CheckHealth(ctx context.Context) error {
	if _, err := c.mc.CheckHealth(ctx); err != nil {
		c.healthy.Store(false)
		c.logger.Warn("milvus health check failed", logging.Err(err))
		return ErrUnhealthy
	}
	c.healthy.Store(true)
	return nil
}

// IsHealthy reports the result of the most recent health check.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// Milvus exposes the underlying SDK client.
func (c *Client) Milvus() client.Client {
	return c.mc
}

// Close releases the connection.  Idempotent.
func (c *Client) Close() error {
	c.once.Do(func() {
		if c.mc != nil {
			c.mc.Close()
		}
		c.logger.Info("milvus client closed")
	})
	return nil
}
