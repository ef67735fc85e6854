package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/pkg/errors"
)

func TestPutAndGet(t *testing.T) {
	c := New()
	s := candidate.Success(-8.2, nil, time.Second)

	require.NoError(t, c.Put("k1", s))
	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, -8.2, got.Fitness)
	assert.True(t, c.Contains("k1"))
	assert.False(t, c.Contains("k2"))
	assert.Equal(t, 1, c.Len())
}

func TestPut_Idempotence(t *testing.T) {
	c := New()
	s := candidate.Success(-8.2, nil, time.Second)
	require.NoError(t, c.Put("k1", s))

	// Identical SUCCESS result: no-op.
	require.NoError(t, c.Put("k1", candidate.Success(-8.2, []byte(`{"pose":"x"}`), 2*time.Second)))

	// Conflicting SUCCESS result: fatal consistency error.
	err := c.Put("k1", candidate.Success(-3.0, nil, time.Second))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCacheInconsistent))
}

func TestPut_FailedEntriesMaySupersede(t *testing.T) {
	c := New()
	require.NoError(t, c.Put("k1", candidate.TimedOut(time.Minute)))
	// A later successful evaluation replaces the timeout.
	require.NoError(t, c.Put("k1", candidate.Success(-5, nil, time.Second)))
	got, _ := c.Get("k1")
	assert.True(t, got.Usable())
}

func TestGetOrCompute(t *testing.T) {
	c := New()
	calls := 0
	fn := func(ctx context.Context) (candidate.Score, error) {
		calls++
		return candidate.Success(-7, nil, 0), nil
	}

	score, cached, err := c.GetOrCompute(context.Background(), "k1", fn)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, -7.0, score.Fitness)

	// Second lookup is a hit with zero oracle invocations.
	score, cached, err = c.GetOrCompute(context.Background(), "k1", fn)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, -7.0, score.Fitness)
	assert.Equal(t, 1, calls)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate())
}

func TestPrime_NotCounted(t *testing.T) {
	c := New()
	calls := 0
	fn := func(ctx context.Context) (candidate.Score, error) {
		calls++
		return candidate.Success(-7, nil, 0), nil
	}

	_, cached, err := c.Prime(context.Background(), "k1", fn)
	require.NoError(t, err)
	assert.False(t, cached)

	_, cached, err = c.Prime(context.Background(), "k1", fn)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 1, calls)

	// Priming leaves the hit/miss counters untouched.
	stats := c.Stats()
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)

	// A regular lookup afterwards counts normally.
	_, cached, err = c.GetOrCompute(context.Background(), "k1", fn)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, int64(1), c.Stats().Hits)
	assert.Equal(t, 1, calls)
}

func TestGetOrCompute_ConcurrentSingleflight(t *testing.T) {
	c := New()
	var calls int32
	release := make(chan struct{})
	fn := func(ctx context.Context) (candidate.Score, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return candidate.Success(-4, nil, 0), nil
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([]candidate.Score, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			score, _, err := c.GetOrCompute(context.Background(), "same-key", fn)
			assert.NoError(t, err)
			results[i] = score
		}(i)
	}

	// Let callers pile onto the flight before releasing the computation.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, -4.0, r.Fitness)
	}
}

func TestGetOrCompute_ComputeError(t *testing.T) {
	c := New()
	boom := errors.New(errors.ErrCodeOracleUnavailable, "daemon down")
	_, _, err := c.GetOrCompute(context.Background(), "k1", func(ctx context.Context) (candidate.Score, error) {
		return candidate.Score{}, boom
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeOracleUnavailable))
	assert.False(t, c.Contains("k1"))
}

type fakeStore struct {
	mu     sync.Mutex
	loads  map[string]candidate.Score
	saved  map[string]candidate.Score
	loadN  int
	failIn bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{loads: map[string]candidate.Score{}, saved: map[string]candidate.Score{}}
}

func (f *fakeStore) Load(_ context.Context, key string) (candidate.Score, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadN++
	if f.failIn {
		return candidate.Score{}, false, errors.New(errors.ErrCodeCacheUnavailable, "redis down")
	}
	s, ok := f.loads[key]
	return s, ok, nil
}

func (f *fakeStore) Save(_ context.Context, key string, score candidate.Score) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[key] = score
	return nil
}

func TestGetOrCompute_StoreReadThrough(t *testing.T) {
	store := newFakeStore()
	store.loads["warm"] = candidate.Success(-6, nil, 0)
	c := New(WithStore(store))

	score, cached, err := c.GetOrCompute(context.Background(), "warm", func(ctx context.Context) (candidate.Score, error) {
		t.Fatal("oracle must not be invoked for a store hit")
		return candidate.Score{}, nil
	})
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, -6.0, score.Fitness)
	// Now resident locally.
	assert.True(t, c.Contains("warm"))
}

func TestGetOrCompute_StoreWriteThrough(t *testing.T) {
	store := newFakeStore()
	c := New(WithStore(store))

	_, _, err := c.GetOrCompute(context.Background(), "k1", func(ctx context.Context) (candidate.Score, error) {
		return candidate.Success(-5, nil, 0), nil
	})
	require.NoError(t, err)
	assert.Contains(t, store.saved, "k1")

	// Unusable scores are not persisted.
	_, _, err = c.GetOrCompute(context.Background(), "k2", func(ctx context.Context) (candidate.Score, error) {
		return candidate.TimedOut(0), nil
	})
	require.NoError(t, err)
	assert.NotContains(t, store.saved, "k2")
}

func TestGetOrCompute_StoreFailureDegrades(t *testing.T) {
	store := newFakeStore()
	store.failIn = true
	c := New(WithStore(store))

	score, cached, err := c.GetOrCompute(context.Background(), "k1", func(ctx context.Context) (candidate.Score, error) {
		return candidate.Success(-2, nil, 0), nil
	})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, -2.0, score.Fitness)
}

func TestEntriesAndRestore(t *testing.T) {
	c := New()
	require.NoError(t, c.Put("k1", candidate.Success(-1, nil, 0)))
	require.NoError(t, c.Put("k2", candidate.Failed(nil, 0)))

	entries := c.Entries()
	require.Len(t, entries, 2)

	// Mutating the copy does not touch the cache.
	delete(entries, "k1")
	assert.True(t, c.Contains("k1"))

	restored := New()
	require.NoError(t, restored.Restore(c.Entries()))
	assert.Equal(t, 2, restored.Len())

	// Restore enforces the same consistency rule.
	require.NoError(t, restored.Put("k3", candidate.Success(-9, nil, 0)))
	err := restored.Restore(map[string]candidate.Score{"k3": candidate.Success(-1, nil, 0)})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCacheInconsistent))
}
