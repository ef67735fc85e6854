package controller

import (
	"encoding/json"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/internal/search/cache"
	"github.com/helixforge/helixforge/internal/search/strategy"
	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// Snapshot captures everything needed to resume a run: the population, the
// score cache, the remaining budget, and the RNG state.  RNG state is the
// pair (seed, generation) because each generation re-derives its RNG from
// them, so a restored run replays the exact draws an uninterrupted run would
// have made.
type Snapshot struct {
	RunID      string `json:"run_id"`
	Generation int    `json:"generation"`
	Seed       int64  `json:"seed"`

	Population []candidate.Member         `json:"population"`
	Cache      map[string]candidate.Score `json:"cache"`
	Budget     int                        `json:"budget_remaining"`

	// Loop bookkeeping carried so convergence and failure windows keep
	// counting across the resume boundary.
	BestGen     int `json:"best_generation"`
	FailRuns    int `json:"consecutive_failed_generations"`
	Evaluations int `json:"evaluations"`
	Failures    int `json:"failures"`
}

// Snapshot captures the run's resumable state.  Valid at any point between
// generations; the controller never snapshots mid-generation.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		RunID:       c.runID,
		Generation:  c.generation,
		Seed:        c.cfg.Seed,
		Population:  c.population.Members(),
		Cache:       c.cache.Entries(),
		Budget:      c.budget,
		BestGen:     c.bestGen,
		FailRuns:    c.failRuns,
		Evaluations: c.evaluations,
		Failures:    c.failures,
	}
}

// Encode serializes the snapshot for external persistence (redis key, minio
// object); the controller does not choose the destination.
func (s Snapshot) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode run snapshot")
	}
	return data, nil
}

// DecodeSnapshot parses a serialized snapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, errors.Wrap(err, errors.ErrCodeSnapshotCorrupt, "failed to decode run snapshot")
	}
	if s.RunID == "" || s.Generation < 0 {
		return Snapshot{}, errors.New(errors.ErrCodeSnapshotCorrupt, "snapshot missing run identity")
	}
	return s, nil
}

// Restore reconstructs a Controller from a snapshot.  The snapshot's seed
// overrides cfg.Seed so the generation RNGs line up; collaborators (strategy,
// scorer, reporter) are supplied fresh since they carry no run state.
func Restore(snap Snapshot, cfg Config, strat strategy.Strategy, scorer Scorer, log logging.Logger, opts ...Option) (*Controller, error) {
	return RestoreWithCache(snap, cfg, strat, scorer, cache.New(), log, opts...)
}

// RestoreWithCache is Restore over a caller-supplied cache, letting a resumed
// run keep its durable write-through tier.  The cache must be empty; snapshot
// entries are replayed into it.
func RestoreWithCache(snap Snapshot, cfg Config, strat strategy.Strategy, scorer Scorer, scoreCache *cache.ScoreCache, log logging.Logger, opts ...Option) (*Controller, error) {
	cfg.Seed = snap.Seed

	if err := scoreCache.Restore(snap.Cache); err != nil {
		return nil, err
	}

	c, err := New(snap.RunID, cfg, strat, scorer, scoreCache, snap.Population, log, opts...)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.generation = snap.Generation
	c.budget = snap.Budget
	c.bestGen = snap.BestGen
	c.failRuns = snap.FailRuns
	c.evaluations = snap.Evaluations
	c.failures = snap.Failures
	c.mu.Unlock()
	return c, nil
}

// Cache exposes the run's score cache, letting a resumed run's owner attach
// persistence tiers or inspect hit counters.
func (c *Controller) Cache() *cache.ScoreCache { return c.cache }

// Population returns a copy of the current population members.
func (c *Controller) Population() []candidate.Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.population.Members()
}

// Summary builds the current run summary without finishing the run.
func (c *Controller) Summary() design.RunSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := c.cache.Stats()
	summary := design.RunSummary{
		RunID:       c.runID,
		State:       c.state,
		Generations: c.generation,
		Evaluations: c.evaluations,
		CacheHits:   int(stats.Hits),
		CacheMisses: int(stats.Misses),
		Failures:    c.failures,
	}
	if c.hasBest {
		summary.BestKey = c.best.Candidate.Key
		summary.BestFitness = c.best.Score.Fitness
		summary.BestSequence = c.best.Candidate.Sequence
	}
	return summary
}
