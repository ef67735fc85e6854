// Package opensearch archives evaluated candidates for ad-hoc querying.
// The archive is a write-behind view of the run registry; the search loop
// never reads from it.
package opensearch

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync/atomic"
	"time"

	opensearchgo "github.com/opensearch-project/opensearch-go/v2"

	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
)

var ErrConnectionFailed = errors.New(errors.ErrCodeExternalService, "opensearch connection failed")

// Client manages the OpenSearch connection.
type Client struct {
	client  *opensearchgo.Client
	cfg     *config.OpenSearchConfig
	logger  logging.Logger
	healthy atomic.Bool
}

// NewClient builds an OpenSearch client and verifies connectivity.
func NewClient(cfg *config.OpenSearchConfig, log logging.Logger) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "opensearch addresses are required")
	}
	if cfg.IndexPrefix == "" {
		cfg.IndexPrefix = "helixforge-"
	}
	if cfg.BulkBatchSize <= 0 {
		cfg.BulkBatchSize = 500
	}

	transport := &http.Transport{MaxIdleConnsPerHost: 10}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	osClient, err := opensearchgo.NewClient(opensearchgo.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.User,
		Password:      cfg.Password,
		Transport:     transport,
		MaxRetries:    3,
		RetryBackoff:  func(int) time.Duration { return 100 * time.Millisecond },
		RetryOnStatus: []int{429, 502, 503, 504},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to create opensearch client")
	}

	c := &Client{client: osClient, cfg: cfg, logger: log}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		return nil, ErrConnectionFailed
	}

	log.Info("connected to opensearch", logging.Any("addresses", cfg.Addresses))
	return c, nil
}

// Ping checks cluster reachability.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.Ping(c.client.Ping.WithContext(ctx))
	if err != nil {
		c.healthy.Store(false)
		return errors.Wrap(err, errors.ErrCodeExternalService, "opensearch ping failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		c.healthy.Store(false)
		return errors.New(errors.ErrCodeServiceUnavailable, "opensearch ping returned "+resp.Status())
	}
	c.healthy.Store(true)
	return nil
}

// IsHealthy reports the result of the most recent ping.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// API exposes the underlying SDK client.
func (c *Client) API() *opensearchgo.Client {
	return c.client
}
