package redis

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodeConflict, "run lock held by another worker")
	ErrLockNotHeld     = errors.New(errors.ErrCodeRunStateInvalid, "run lock not held by this owner")
)

// releaseScript deletes the lock key only when the caller still owns it.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// extendScript refreshes the TTL only when the caller still owns the lock.
const extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`

// RunLock guards a search run against concurrent controllers.  Exactly one
// worker may drive a run's generation loop; others observe through the
// checkpoint store.  The lock value is a random token so only the acquiring
// worker can release or extend it.
type RunLock struct {
	client *Client
	logger logging.Logger
	key    string
	token  string
	ttl    time.Duration
}

// NewRunLock builds the lock for a run.  TTL should comfortably exceed one
// generation; the owner extends it between generations.
func NewRunLock(client *Client, runID string, ttl time.Duration, log logging.Logger) *RunLock {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RunLock{
		client: client,
		logger: log.Named("runlock").With(logging.String("run_id", runID)),
		key:    client.prefix() + "run:" + runID + ":lock",
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// TryAcquire attempts to take the lock without blocking.
func (l *RunLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheUnavailable, "failed to acquire run lock")
	}
	if ok {
		l.logger.Debug("run lock acquired")
	}
	return ok, nil
}

// Acquire takes the lock, retrying until the context expires.
func (l *RunLock) Acquire(ctx context.Context) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		ok, err := l.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.ErrCodeConflict, "gave up waiting for run lock")
		case <-ticker.C:
		}
	}
}

// Extend refreshes the TTL.  Fails when ownership was lost, which means
// another worker may have taken over and this controller must stop.
func (l *RunLock) Extend(ctx context.Context) error {
	res, err := l.client.Eval(ctx, extendScript, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheUnavailable, "failed to extend run lock")
	}
	if res == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Release frees the lock if still owned.  Releasing a lock that expired or
// was taken over is not an error; the ownership is simply gone.
func (l *RunLock) Release(ctx context.Context) error {
	res, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheUnavailable, "failed to release run lock")
	}
	if res == 1 {
		l.logger.Debug("run lock released")
	}
	return nil
}
