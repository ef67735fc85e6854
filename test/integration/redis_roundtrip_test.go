//go:build integration

// Integration coverage for the redis-backed persistence tier: the score
// store, the checkpoint store, and the run lock, exercised against a real
// redis container.
//
// Run with: go test -tags integration ./test/integration/...
package integration

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/internal/infrastructure/database/redis"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/internal/search/cache"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return net.JoinHostPort(host, port.Port())
}

func newRedisClient(t *testing.T, addr string) *redis.Client {
	t.Helper()

	client, err := redis.NewClient(&config.RedisConfig{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
		KeyPrefix:   "helixforge:test:",
	}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestScoreStore_Roundtrip(t *testing.T) {
	client := newRedisClient(t, startRedis(t))
	store := redis.NewScoreStore(client, logging.NewNopLogger())
	ctx := context.Background()

	_, ok, err := store.Load(ctx, "absent-key")
	require.NoError(t, err)
	assert.False(t, ok)

	saved := candidate.Success(-7.25, []byte(`{"pose":"x"}`), 120*time.Millisecond)
	require.NoError(t, store.Save(ctx, "k1", saved))

	got, ok, err := store.Load(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.SameResult(saved))
	assert.Equal(t, saved.Diagnostics, got.Diagnostics)
}

func TestScoreStore_BacksTheGenerationCache(t *testing.T) {
	client := newRedisClient(t, startRedis(t))
	store := redis.NewScoreStore(client, logging.NewNopLogger())
	ctx := context.Background()

	saved := candidate.Success(-4.5, nil, time.Millisecond)
	require.NoError(t, store.Save(ctx, "warm", saved))

	// A fresh in-memory cache backed by the same store hits without
	// recomputation.
	sc := cache.New(cache.WithStore(store))
	computeCalls := 0
	got, cached, err := sc.GetOrCompute(ctx, "warm", func(context.Context) (candidate.Score, error) {
		computeCalls++
		return candidate.Success(0, nil, 0), nil
	})
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Zero(t, computeCalls, "persistent tier should satisfy the lookup")
	assert.True(t, got.SameResult(saved))
}

func TestCheckpointStore_Roundtrip(t *testing.T) {
	client := newRedisClient(t, startRedis(t))
	store := redis.NewCheckpointStore(client, logging.NewNopLogger())
	ctx := context.Background()

	_, err := store.Load(ctx, "run-1")
	require.Error(t, err, "missing checkpoint must be an error")

	payload := []byte(`{"run_id":"run-1","generation":4}`)
	require.NoError(t, store.Save(ctx, "run-1", payload))

	got, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, store.Delete(ctx, "run-1"))
	_, err = store.Load(ctx, "run-1")
	assert.Error(t, err)
}

func TestRunLock_MutualExclusion(t *testing.T) {
	client := newRedisClient(t, startRedis(t))
	ctx := context.Background()

	first := redis.NewRunLock(client, "run-1", time.Minute, logging.NewNopLogger())
	second := redis.NewRunLock(client, "run-1", time.Minute, logging.NewNopLogger())

	ok, err := first.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second worker must not steal the run")

	require.NoError(t, first.Extend(ctx))
	require.NoError(t, first.Release(ctx))

	ok, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "released lock is reacquirable")
	require.NoError(t, second.Release(ctx))
}
