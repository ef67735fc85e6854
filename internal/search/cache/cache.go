// Package cache implements the score cache: the memoization layer that
// guarantees at-most-once oracle evaluation per canonical candidate key
// within a run.  The cache is append-only during a run; a key holding a
// SUCCESS score can never be overwritten with a different value.
package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/pkg/errors"
)

// Store is an optional persistence tier behind the in-process cache.
// Implementations (redis) receive write-through copies of SUCCESS scores so
// a resumed run can warm its cache; read-through happens only on a local
// miss.  Store failures degrade the cache to in-process only, they never
// fail a lookup.
type Store interface {
	// Load returns the persisted score for key, or ok=false when absent.
	Load(ctx context.Context, key string) (candidate.Score, bool, error)

	// Save persists a SUCCESS score for key.
	Save(ctx context.Context, key string, score candidate.Score) error
}

// Stats is a point-in-time snapshot of cache counters for reporting.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// ScoreCache memoizes oracle results keyed by canonical candidate key.
// All methods are safe for concurrent use.
type ScoreCache struct {
	mu      sync.RWMutex
	entries map[string]candidate.Score
	hits    int64
	misses  int64

	flight singleflight.Group
	store  Store
}

// Option configures a ScoreCache.
type Option func(*ScoreCache)

// WithStore attaches a persistence tier behind the in-process map.
func WithStore(s Store) Option {
	return func(c *ScoreCache) { c.store = s }
}

// New constructs an empty ScoreCache.
func New(opts ...Option) *ScoreCache {
	c := &ScoreCache{entries: make(map[string]candidate.Score)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached score for key.  Counters are not touched; lookup
// accounting belongs to GetOrCompute, which distinguishes hits from misses
// at the point an oracle call is at stake.
func (c *ScoreCache) Get(key string) (candidate.Score, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	score, ok := c.entries[key]
	return score, ok
}

// Contains reports whether key is cached.
func (c *ScoreCache) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// Put inserts or re-asserts the score for key.  A key already holding a
// SUCCESS score rejects a put with a different result: that means the oracle
// was non-deterministic within the run, which is fatal
// (ErrCodeCacheInconsistent).  Re-putting an identical result is a no-op.
func (c *ScoreCache) Put(key string, score candidate.Score) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.putLocked(key, score)
}

func (c *ScoreCache) putLocked(key string, score candidate.Score) error {
	existing, ok := c.entries[key]
	if ok && existing.Usable() {
		if !existing.SameResult(score) {
			return errors.New(errors.ErrCodeCacheInconsistent,
				"conflicting score for an already-scored key").
				WithDetail("key=" + shortKey(key))
		}
		return nil
	}
	// FAILED/TIMED_OUT entries may be superseded, e.g. by a retry in a
	// resumed run.
	c.entries[key] = score
	return nil
}

// GetOrCompute returns the score for key, computing it at most once across
// concurrent callers.  Lookup order: in-process map, persistence tier, then
// fn (the oracle path).  Concurrent callers for the same novel key collapse
// onto a single fn invocation; latecomers receive the shared result.
//
// The bool result reports whether the score was served from cache (local or
// store) rather than computed.
func (c *ScoreCache) GetOrCompute(ctx context.Context, key string, fn func(ctx context.Context) (candidate.Score, error)) (candidate.Score, bool, error) {
	score, cached, err := c.getOrCompute(ctx, key, fn)
	if err != nil {
		return candidate.Score{}, false, err
	}
	if cached {
		c.recordHit()
	} else {
		c.recordMiss()
	}
	return score, cached, nil
}

// Prime is GetOrCompute without counter accounting.  Seeding happens before
// the run starts, so seed lookups are not part of the run's hit/miss stats.
func (c *ScoreCache) Prime(ctx context.Context, key string, fn func(ctx context.Context) (candidate.Score, error)) (candidate.Score, bool, error) {
	return c.getOrCompute(ctx, key, fn)
}

func (c *ScoreCache) getOrCompute(ctx context.Context, key string, fn func(ctx context.Context) (candidate.Score, error)) (candidate.Score, bool, error) {
	if score, ok := c.Get(key); ok {
		return score, true, nil
	}

	type result struct {
		score  candidate.Score
		cached bool
	}

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		// A racing caller may have completed while this one queued.
		if score, ok := c.Get(key); ok {
			return result{score: score, cached: true}, nil
		}

		if c.store != nil {
			if score, ok, err := c.store.Load(ctx, key); err == nil && ok {
				if putErr := c.Put(key, score); putErr != nil {
					return nil, putErr
				}
				return result{score: score, cached: true}, nil
			}
		}

		score, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Put(key, score); err != nil {
			return nil, err
		}
		if c.store != nil && score.Usable() {
			// Best-effort write-through; the run does not depend on it.
			_ = c.store.Save(ctx, key, score)
		}
		return result{score: score, cached: false}, nil
	})
	if err != nil {
		return candidate.Score{}, false, err
	}

	r := v.(result)
	return r.score, r.cached, nil
}

func (c *ScoreCache) recordHit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *ScoreCache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

// Len returns the number of cached keys.
func (c *ScoreCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *ScoreCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}

// Entries returns a copy of the full key→score map, used by snapshotting.
func (c *ScoreCache) Entries() map[string]candidate.Score {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]candidate.Score, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Restore replays persisted entries into the cache, e.g. when resuming a
// run from a snapshot.  Each entry passes through the same consistency check
// as Put.
func (c *ScoreCache) Restore(entries map[string]candidate.Score) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range entries {
		if err := c.putLocked(k, v); err != nil {
			return err
		}
	}
	return nil
}

func shortKey(key string) string {
	if len(key) <= 12 {
		return key
	}
	return key[:12]
}
