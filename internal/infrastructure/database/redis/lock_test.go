package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
)

func TestRunLock_TryAcquire(t *testing.T) {
	client, _ := testClient(t)
	log := logging.NewNopLogger()
	ctx := context.Background()

	first := NewRunLock(client, "run-1", time.Minute, log)
	ok, err := first.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second worker cannot take the same run.
	second := NewRunLock(client, "run-1", time.Minute, log)
	ok, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// A different run is independent.
	other := NewRunLock(client, "run-2", time.Minute, log)
	ok, err = other.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunLock_ReleaseAllowsReacquire(t *testing.T) {
	client, _ := testClient(t)
	log := logging.NewNopLogger()
	ctx := context.Background()

	first := NewRunLock(client, "run-1", time.Minute, log)
	ok, err := first.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, first.Release(ctx))

	second := NewRunLock(client, "run-1", time.Minute, log)
	ok, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunLock_ReleaseOnlyByOwner(t *testing.T) {
	client, _ := testClient(t)
	log := logging.NewNopLogger()
	ctx := context.Background()

	owner := NewRunLock(client, "run-1", time.Minute, log)
	ok, err := owner.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// A non-owner release is a no-op; the owner still holds the lock.
	stranger := NewRunLock(client, "run-1", time.Minute, log)
	require.NoError(t, stranger.Release(ctx))

	ok, err = stranger.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunLock_Extend(t *testing.T) {
	client, mr := testClient(t)
	log := logging.NewNopLogger()
	ctx := context.Background()

	lock := NewRunLock(client, "run-1", time.Minute, log)
	ok, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Extend(ctx))

	// Once the key expires, extending reports lost ownership.
	mr.FastForward(2 * time.Minute)
	err = lock.Extend(ctx)
	assert.ErrorIs(t, err, ErrLockNotHeld)
}

func TestRunLock_AcquireWaits(t *testing.T) {
	client, _ := testClient(t)
	log := logging.NewNopLogger()

	owner := NewRunLock(client, "run-1", time.Minute, log)
	ok, err := owner.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	waiter := NewRunLock(client, "run-1", time.Minute, log)
	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- waiter.Acquire(ctx) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, owner.Release(context.Background()))

	require.NoError(t, <-done)
}
