// Package minio stores binary artifacts: receptor structures the docking
// oracle scores against and the docked pose payloads it returns.
package minio

import (
	"context"
	"io"
	"net/url"
	"sync"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
)

var ErrClientClosed = errors.New(errors.ErrCodeInternal, "minio client is closed")

// API is the object-storage surface the artifact store uses.  GetObject
// returns a plain ReadCloser so fakes do not need SDK object types.
type API interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts miniogo.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts miniogo.PutObjectOptions) (miniogo.UploadInfo, error)
	GetObject(ctx context.Context, bucket, object string, opts miniogo.GetObjectOptions) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucket, object string, opts miniogo.StatObjectOptions) (miniogo.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts miniogo.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucket string, opts miniogo.ListObjectsOptions) <-chan miniogo.ObjectInfo
	PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration, params url.Values) (*url.URL, error)
}

// sdkAdapter narrows the SDK client to the API interface.
type sdkAdapter struct {
	*miniogo.Client
}

func (a sdkAdapter) GetObject(ctx context.Context, bucket, object string, opts miniogo.GetObjectOptions) (io.ReadCloser, error) {
	return a.Client.GetObject(ctx, bucket, object, opts)
}

// Client manages the object-storage connection and bucket lifecycle.
type Client struct {
	api    API
	cfg    *config.MinIOConfig
	logger logging.Logger
	mu     sync.RWMutex
	closed bool
}

// NewClient connects to the object store.
func NewClient(cfg *config.MinIOConfig, log logging.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New(errors.ErrCodeValidation, "minio endpoint is required")
	}
	applyDefaults(cfg)

	mc, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to create minio client")
	}

	log.Info("connected to object storage",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket))
	return &Client{api: sdkAdapter{mc}, cfg: cfg, logger: log}, nil
}

// NewClientWithAPI wires an explicit backend; used by tests.
func NewClientWithAPI(api API, cfg *config.MinIOConfig, log logging.Logger) *Client {
	applyDefaults(cfg)
	return &Client{api: api, cfg: cfg, logger: log}
}

func applyDefaults(cfg *config.MinIOConfig) {
	if cfg.Bucket == "" {
		cfg.Bucket = "helixforge"
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 15 * time.Minute
	}
}

// EnsureBucket creates the artifact bucket if it does not exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	if c.isClosed() {
		return ErrClientClosed
	}

	exists, err := c.api.BucketExists(ctx, c.cfg.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to check bucket")
	}
	if exists {
		return nil
	}

	if err := c.api.MakeBucket(ctx, c.cfg.Bucket, miniogo.MakeBucketOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create bucket")
	}
	c.logger.Info("artifact bucket created", logging.String("bucket", c.cfg.Bucket))
	return nil
}

// HealthCheck verifies the bucket is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	if _, err := c.api.BucketExists(ctx, c.cfg.Bucket); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "object storage unreachable")
	}
	return nil
}

// Bucket returns the configured artifact bucket name.
func (c *Client) Bucket() string {
	return c.cfg.Bucket
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close marks the client closed.  The SDK holds no persistent connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
