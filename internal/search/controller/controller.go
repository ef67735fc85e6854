// Package controller implements the search run state machine: the generation
// loop that drives proposal, scoring, selection, and termination under a
// bounded evaluation budget.  One Controller owns the complete state of one
// run; there are no process-wide singletons.
package controller

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/internal/search/cache"
	"github.com/helixforge/helixforge/internal/search/strategy"
	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// Scorer evaluates one candidate.  Satisfied by the oracle adapter; the
// returned error is non-nil only for run-level aborts (cancellation),
// candidate-level failures travel inside the Score.
type Scorer interface {
	Score(ctx context.Context, c *candidate.Candidate) (candidate.Score, error)
}

// Reporter receives per-generation summaries and the terminal run summary.
// Implementations format or forward them (kafka, CLI); the controller never
// does presentation work.
type Reporter interface {
	ReportGeneration(ctx context.Context, report design.GenerationReport)
	ReportRunFinished(ctx context.Context, summary design.RunSummary)
}

// NopReporter discards all reports.
type NopReporter struct{}

func (NopReporter) ReportGeneration(context.Context, design.GenerationReport) {}
func (NopReporter) ReportRunFinished(context.Context, design.RunSummary)     {}

// Metrics is the instrument subset the controller records through.
type Metrics interface {
	ObserveGeneration(runID string, elapsed time.Duration)
	SetPopulationSize(runID string, n int)
	SetBestFitness(runID string, fitness float64)
	SetBudgetRemaining(runID string, n int)
	RunTransition(state string)
	AddProposals(strategy string, novel, duplicate int)
	ReleaseRun(runID string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveGeneration(string, time.Duration) {}
func (nopMetrics) SetPopulationSize(string, int)           {}
func (nopMetrics) SetBestFitness(string, float64)          {}
func (nopMetrics) SetBudgetRemaining(string, int)          {}
func (nopMetrics) RunTransition(string)                    {}
func (nopMetrics) AddProposals(string, int, int)           {}
func (nopMetrics) ReleaseRun(string)                       {}

// Config is the run policy.  All fields are required configuration; the
// controller validates them at construction rather than guessing intent.
type Config struct {
	BatchSize          int
	PopulationCapacity int
	MinViableSize      int
	MaxGenerations     int

	// BudgetEvaluations bounds charged oracle calls; zero means unlimited
	// (wall clock must then bound the run).
	BudgetEvaluations int

	// BudgetWallClock bounds the run's total duration; zero means unlimited.
	BudgetWallClock time.Duration

	// Patience is the number of generations without best-fitness improvement
	// before the run converges.
	Patience int

	// FailureThreshold is the number of consecutive generations in which
	// every oracle call failed before the run is declared FAILED.
	FailureThreshold int

	// MaxConcurrency bounds the per-generation scoring fan-out.
	MaxConcurrency int

	// Seed drives every random draw of the run.
	Seed int64

	Direction     design.FitnessDirection
	Selection     design.SelectionPolicy
	EliteFraction float64
}

func (c Config) validate() error {
	switch {
	case c.BatchSize <= 0:
		return errors.New(errors.ErrCodeValidation, "batch size must be positive")
	case c.PopulationCapacity <= 0:
		return errors.New(errors.ErrCodeValidation, "population capacity must be positive")
	case c.MinViableSize <= 0 || c.MinViableSize > c.PopulationCapacity:
		return errors.New(errors.ErrCodeValidation, "minimum viable size must be in [1, capacity]")
	case c.MaxGenerations <= 0:
		return errors.New(errors.ErrCodeValidation, "max generations must be positive")
	case c.BudgetEvaluations <= 0 && c.BudgetWallClock <= 0:
		return errors.New(errors.ErrCodeValidation, "run requires an evaluation or wall-clock budget")
	case c.Patience <= 0:
		return errors.New(errors.ErrCodeValidation, "patience must be positive")
	case c.FailureThreshold <= 0:
		return errors.New(errors.ErrCodeValidation, "failure threshold must be positive")
	case c.MaxConcurrency <= 0:
		return errors.New(errors.ErrCodeValidation, "max concurrency must be positive")
	case !c.Direction.IsValid():
		return errors.New(errors.ErrCodeValidation, "fitness direction is required")
	case !c.Selection.IsValid():
		return errors.New(errors.ErrCodeValidation, "selection policy is required")
	}
	if c.Selection == design.SelectElitist && (c.EliteFraction <= 0 || c.EliteFraction > 1) {
		return errors.New(errors.ErrCodeValidation, "elite fraction must be in (0, 1] for elitist selection")
	}
	return nil
}

// Controller runs one search.  The generation loop is single-threaded;
// scoring within a generation is the sole concurrent section and is fully
// joined before selection.
type Controller struct {
	runID    string
	cfg      Config
	strategy strategy.Strategy
	scorer   Scorer
	cache    *cache.ScoreCache
	logger   logging.Logger
	metrics  Metrics
	reporter Reporter

	mu         sync.RWMutex
	state      design.RunState
	generation int
	population *candidate.Population
	budget     int

	best     candidate.Member
	hasBest  bool
	bestGen  int
	failRuns int

	evaluations int
	failures    int
}

// Option configures a Controller.
type Option func(*Controller)

// WithReporter attaches a reporting collaborator.
func WithReporter(r Reporter) Option {
	return func(c *Controller) {
		if r != nil {
			c.reporter = r
		}
	}
}

// WithMetrics attaches the prometheus instrument set.
func WithMetrics(m Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// New constructs a Controller over an initial seed population.  Seeds must
// already be scored (generation zero is charged to the caller, typically via
// Seed below) or the run has nothing viable to breed from.
func New(runID string, cfg Config, strat strategy.Strategy, scorer Scorer, scoreCache *cache.ScoreCache, seeds []candidate.Member, log logging.Logger, opts ...Option) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if strat == nil || scorer == nil || scoreCache == nil {
		return nil, errors.New(errors.ErrCodeValidation, "controller requires strategy, scorer, and cache")
	}
	if log == nil {
		log = logging.NewNopLogger()
	}

	pop, err := candidate.FromMembers(cfg.PopulationCapacity, seeds)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		runID:      runID,
		cfg:        cfg,
		strategy:   strat,
		scorer:     scorer,
		cache:      scoreCache,
		logger:     log.Named("controller").With(logging.String("run_id", runID)),
		metrics:    nopMetrics{},
		reporter:   NopReporter{},
		state:      design.RunStateInitialized,
		population: pop,
		budget:     cfg.BudgetEvaluations,
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, m := range pop.Members() {
		if err := scoreCache.Put(m.Candidate.Key, m.Score); err != nil {
			return nil, err
		}
	}
	c.refreshBest(pop.Members(), 0)
	return c, nil
}

// Seed scores raw candidates through the cache-and-oracle path so they can
// seed a run.  Charged against no budget and excluded from the run's cache
// hit/miss accounting, which covers generations only; callers run it before
// New.
func Seed(ctx context.Context, scoreCache *cache.ScoreCache, scorer Scorer, candidates []*candidate.Candidate) ([]candidate.Member, error) {
	members := make([]candidate.Member, 0, len(candidates))
	for _, cand := range candidates {
		score, _, err := scoreCache.Prime(ctx, cand.Key, func(ctx context.Context) (candidate.Score, error) {
			return scorer.Score(ctx, cand)
		})
		if err != nil {
			return nil, err
		}
		members = append(members, candidate.Member{Candidate: cand, Score: score})
	}
	return members, nil
}

// State returns the current run state.
func (c *Controller) State() design.RunState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Generation returns the last completed generation index.
func (c *Controller) Generation() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Best returns the best member found so far.
func (c *Controller) Best() (candidate.Member, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.best, c.hasBest
}

// BudgetRemaining returns the remaining evaluation allowance; meaningful
// only when an evaluation budget was configured.
func (c *Controller) BudgetRemaining() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.budget
}

// rngFor derives the deterministic RNG for a generation.  Seeding from
// (run seed, generation) rather than one long-lived stream is what lets a
// restored run replay the exact draws of an uninterrupted one.
func (c *Controller) rngFor(generation int) *rand.Rand {
	return rand.New(rand.NewSource(c.cfg.Seed + int64(generation)*1_000_003))
}

// Run executes the generation loop to a terminal state.  The returned error
// is non-nil only for hard failures (cache inconsistency, invalid internal
// state); budget exhaustion, convergence, and cancellation are regular
// terminal outcomes carried in the summary.
func (c *Controller) Run(ctx context.Context) (design.RunSummary, error) {
	c.mu.Lock()
	if c.state != design.RunStateInitialized {
		state := c.state
		c.mu.Unlock()
		return design.RunSummary{}, errors.New(errors.ErrCodeRunStateInvalid,
			"run already started").WithDetail("state=" + state.String())
	}
	c.state = design.RunStateRunning
	c.mu.Unlock()
	c.metrics.RunTransition(design.RunStateRunning.String())
	c.logger.Info("run started",
		logging.String("strategy", c.strategy.Kind().String()),
		logging.Int("population", c.population.Len()),
		logging.Int("budget", c.cfg.BudgetEvaluations))

	var deadline time.Time
	if c.cfg.BudgetWallClock > 0 {
		deadline = time.Now().Add(c.cfg.BudgetWallClock)
	}

	for gen := c.generation + 1; gen <= c.cfg.MaxGenerations; gen++ {
		if ctx.Err() != nil {
			return c.finish(ctx, design.RunStateCancelled, nil)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return c.finish(ctx, design.RunStateBudgetExhausted, nil)
		}

		terminal, err := c.runGeneration(ctx, gen)
		if err != nil {
			if errors.IsCode(err, errors.ErrCodeRunCancelled) {
				return c.finish(ctx, design.RunStateCancelled, nil)
			}
			return c.finish(ctx, design.RunStateFailed, err)
		}
		if terminal != "" {
			return c.finish(ctx, terminal, nil)
		}
	}

	// Generation cap reached without convergence; the run spent its allotted
	// search effort.
	return c.finish(ctx, design.RunStateBudgetExhausted, nil)
}

// runGeneration executes one propose→score→select cycle.  A non-empty
// terminal state ends the run; err reports hard failures.
func (c *Controller) runGeneration(ctx context.Context, gen int) (design.RunState, error) {
	started := time.Now()
	rng := c.rngFor(gen)

	proposals, err := c.strategy.Propose(ctx, rng, c.population, gen, c.cfg.BatchSize)
	if err != nil {
		return "", err
	}
	if len(proposals) == 0 {
		// The strategy has nothing novel left to offer.
		c.logger.Info("proposal set empty, converging", logging.Int("generation", gen))
		return design.RunStateConverged, nil
	}

	novel := make([]*candidate.Candidate, 0, len(proposals))
	cachedMembers := make([]candidate.Member, 0)
	for _, p := range proposals {
		if score, ok := c.cache.Get(p.Key); ok {
			cachedMembers = append(cachedMembers, candidate.Member{Candidate: p, Score: score})
			continue
		}
		novel = append(novel, p)
	}
	c.metrics.AddProposals(c.strategy.Kind().String(), len(novel), len(proposals)-len(novel))

	// Only truly novel keys may incur oracle calls, and never more than the
	// remaining budget allows.
	toScore := novel
	if c.cfg.BudgetEvaluations > 0 && len(toScore) > c.budget {
		toScore = toScore[:c.budget]
	}

	scored, stats, err := c.scoreBatch(ctx, toScore)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.generation = gen
	c.budget -= stats.misses
	c.evaluations += stats.misses
	c.failures += stats.failures + stats.timeouts
	c.mu.Unlock()

	if stats.misses > 0 && stats.failures+stats.timeouts == stats.misses {
		c.failRuns++
	} else {
		c.failRuns = 0
	}
	if c.failRuns >= c.cfg.FailureThreshold {
		c.logger.Error("oracle failing across consecutive generations",
			logging.Int("generation", gen),
			logging.Int("consecutive", c.failRuns))
		return design.RunStateFailed, nil
	}

	merged := c.population.Members()
	merged = append(merged, cachedMembers...)
	merged = append(merged, scored...)

	survivors := selectNext(c.cfg.Selection, c.cfg.Direction, c.cfg.PopulationCapacity,
		c.cfg.EliteFraction, rng, merged)
	next, err := candidate.FromMembers(c.cfg.PopulationCapacity, survivors)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.population = next
	c.mu.Unlock()

	if next.Len() < c.cfg.MinViableSize {
		c.logger.Error("population below minimum viable size",
			logging.Int("generation", gen),
			logging.Int("size", next.Len()),
			logging.Int("min_viable", c.cfg.MinViableSize))
		return design.RunStateFailed, nil
	}

	improved := c.refreshBest(survivors, gen)
	c.report(ctx, gen, len(proposals), len(novel), stats, time.Since(started))

	if !improved && gen-c.bestGen >= c.cfg.Patience {
		c.logger.Info("no improvement within patience window, converging",
			logging.Int("generation", gen),
			logging.Int("patience", c.cfg.Patience))
		return design.RunStateConverged, nil
	}
	if c.cfg.BudgetEvaluations > 0 && c.budget <= 0 {
		return design.RunStateBudgetExhausted, nil
	}
	return "", nil
}

// batchStats aggregates one generation's scoring outcomes.
type batchStats struct {
	hits     int
	misses   int
	failures int
	timeouts int
}

// scoreBatch evaluates the batch through the cache with bounded concurrency.
// It returns only after every outstanding call completed or definitively
// failed; the loop never advances with partially-scored candidates.
func (c *Controller) scoreBatch(ctx context.Context, batch []*candidate.Candidate) ([]candidate.Member, batchStats, error) {
	if len(batch) == 0 {
		return nil, batchStats{}, nil
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		stats   batchStats
		members = make([]candidate.Member, 0, len(batch))
		errs    []error
	)
	sem := make(chan struct{}, c.cfg.MaxConcurrency)

	for _, cand := range batch {
		cand := cand
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			score, cached, err := c.cache.GetOrCompute(ctx, cand.Key, func(ctx context.Context) (candidate.Score, error) {
				return c.scorer.Score(ctx, cand)
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if cached {
				stats.hits++
			} else {
				stats.misses++
			}
			switch score.Status {
			case design.ScoreFailed:
				stats.failures++
			case design.ScoreTimedOut:
				stats.timeouts++
			}
			members = append(members, candidate.Member{Candidate: cand, Score: score})
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		// Cancellation and cache inconsistency abort the run; the first
		// error wins, the rest repeat it.
		return nil, stats, errs[0]
	}
	return members, stats, nil
}

// refreshBest updates the best-so-far from the given members, reporting
// whether it improved this generation.
func (c *Controller) refreshBest(members []candidate.Member, gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	improved := false
	for _, m := range members {
		if !m.Score.Usable() {
			continue
		}
		if !c.hasBest || candidate.Less(c.cfg.Direction, m, c.best) {
			if !c.hasBest || m.Score.Fitness != c.best.Score.Fitness {
				improved = true
			}
			c.best = m
			c.hasBest = true
		}
	}
	if improved {
		c.bestGen = gen
	}
	return improved
}

// report emits the per-generation summary and refreshes gauges.
func (c *Controller) report(ctx context.Context, gen, proposed, novel int, stats batchStats, elapsed time.Duration) {
	c.mu.RLock()
	report := design.GenerationReport{
		RunID:           c.runID,
		Generation:      gen,
		Proposed:        proposed,
		Novel:           novel,
		CacheHits:       stats.hits + (proposed - novel),
		CacheMisses:     stats.misses,
		Failures:        stats.failures,
		Timeouts:        stats.timeouts,
		PopulationSize:  c.population.Len(),
		BudgetRemaining: c.budget,
		ElapsedMS:       elapsed.Milliseconds(),
	}
	if c.hasBest {
		report.BestFitness = c.best.Score.Fitness
		report.BestKey = c.best.Candidate.Key
	}
	c.mu.RUnlock()

	c.metrics.ObserveGeneration(c.runID, elapsed)
	c.metrics.SetPopulationSize(c.runID, report.PopulationSize)
	c.metrics.SetBudgetRemaining(c.runID, report.BudgetRemaining)
	if c.hasBest {
		c.metrics.SetBestFitness(c.runID, report.BestFitness)
	}
	c.reporter.ReportGeneration(ctx, report)

	c.logger.Info("generation complete",
		logging.Int("generation", gen),
		logging.Int("proposed", proposed),
		logging.Int("novel", novel),
		logging.Int("cache_hits", report.CacheHits),
		logging.Int("failures", stats.failures+stats.timeouts),
		logging.Int("budget_remaining", report.BudgetRemaining),
		logging.Float64("best_fitness", report.BestFitness))
}

// finish records the terminal state and emits the run summary.
func (c *Controller) finish(ctx context.Context, state design.RunState, hardErr error) (design.RunSummary, error) {
	c.mu.Lock()
	c.state = state
	cacheStats := c.cache.Stats()
	summary := design.RunSummary{
		RunID:       c.runID,
		State:       state,
		Generations: c.generation,
		Evaluations: c.evaluations,
		CacheHits:   int(cacheStats.Hits),
		CacheMisses: int(cacheStats.Misses),
		Failures:    c.failures,
	}
	if c.hasBest {
		summary.BestKey = c.best.Candidate.Key
		summary.BestFitness = c.best.Score.Fitness
		summary.BestSequence = c.best.Candidate.Sequence
	}
	c.mu.Unlock()

	c.metrics.RunTransition(state.String())
	c.metrics.ReleaseRun(c.runID)
	c.reporter.ReportRunFinished(ctx, summary)

	if hardErr != nil {
		c.logger.Error("run failed", logging.Err(hardErr))
		return summary, hardErr
	}
	c.logger.Info("run finished",
		logging.String("state", state.String()),
		logging.Int("generations", summary.Generations),
		logging.Int("evaluations", summary.Evaluations),
		logging.Float64("best_fitness", summary.BestFitness))
	return summary, nil
}
