// Package campaign provides the application-level service that drives design
// campaigns end to end: it assembles a search controller from configuration,
// owns run persistence across the storage backends, and serves the read paths
// the API and CLI expose.
package campaign

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/domain/candidate"
	neorepo "github.com/helixforge/helixforge/internal/infrastructure/database/neo4j/repositories"
	pgrepo "github.com/helixforge/helixforge/internal/infrastructure/database/postgres/repositories"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/internal/search/cache"
	"github.com/helixforge/helixforge/internal/search/controller"
	"github.com/helixforge/helixforge/internal/search/strategy"
	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// ─────────────────────────────────────────────────────────────────────────────
// Collaborator interfaces
// ─────────────────────────────────────────────────────────────────────────────

// RunStore persists run lifecycles and per-generation statistics.
type RunStore interface {
	Create(ctx context.Context, rec *pgrepo.RunRecord) error
	UpdateState(ctx context.Context, runID string, state design.RunState) error
	Finish(ctx context.Context, summary design.RunSummary) error
	RecordGeneration(ctx context.Context, report design.GenerationReport) error
	FindByID(ctx context.Context, runID string) (*pgrepo.RunRecord, error)
	List(ctx context.Context, state design.RunState, limit, offset int) ([]*pgrepo.RunRecord, error)
	GenerationHistory(ctx context.Context, runID string) ([]design.GenerationReport, error)
}

// CandidateStore archives evaluated candidates for post-run analysis.
type CandidateStore interface {
	SaveBatch(ctx context.Context, runID string, members []candidate.Member) error
	FindByKey(ctx context.Context, runID, key string) (*pgrepo.CandidateRecord, error)
	TopByRun(ctx context.Context, runID string, dir design.FitnessDirection, limit int) ([]*pgrepo.CandidateRecord, error)
}

// LineageStore records parent/child derivation edges between candidates.
type LineageStore interface {
	EnsureRun(ctx context.Context, runID string) error
	RecordMembers(ctx context.Context, runID string, members []candidate.Member) error
	Ancestry(ctx context.Context, key string, maxDepth int) ([]neorepo.LineageNode, error)
	Descendants(ctx context.Context, key string, maxDepth int) ([]neorepo.LineageNode, error)
}

// EmbeddingIndex stores sequence embeddings for novelty screening.
type EmbeddingIndex interface {
	Add(ctx context.Context, runID string, members []candidate.Member) error
}

// ArchiveIndex feeds the searchable candidate archive.
type ArchiveIndex interface {
	EnsureIndex(ctx context.Context) error
	IndexMembers(ctx context.Context, runID string, members []candidate.Member) error
}

// CheckpointStore persists encoded run snapshots between generations.
type CheckpointStore interface {
	Save(ctx context.Context, runID string, snapshot []byte) error
	Load(ctx context.Context, runID string) ([]byte, error)
	Delete(ctx context.Context, runID string) error
}

// PoseStore persists docked pose payloads.
type PoseStore interface {
	SavePose(ctx context.Context, runID, candidateKey string, payload []byte) error
}

// RunLock guards one run against concurrent controllers.
type RunLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Extend(ctx context.Context) error
	Release(ctx context.Context) error
}

// LockFactory builds the lock for a run.
type LockFactory func(runID string) RunLock

// Dependencies wires the service's collaborators.  Runs, Candidates,
// Checkpoints, Locks, Strategy, and Scorer are required; the remaining
// backends are optional and skipped when nil.
type Dependencies struct {
	Runs        RunStore
	Candidates  CandidateStore
	Lineage     LineageStore
	Embeddings  EmbeddingIndex
	Archive     ArchiveIndex
	Checkpoints CheckpointStore
	Poses       PoseStore
	Locks       LockFactory

	Strategy   strategy.Strategy
	Scorer     controller.Scorer
	CacheStore cache.Store
	Reporter   controller.Reporter
	Metrics    controller.Metrics
}

func (d Dependencies) validate() error {
	switch {
	case d.Runs == nil:
		return errors.New(errors.ErrCodeValidation, "campaign service requires a run store")
	case d.Candidates == nil:
		return errors.New(errors.ErrCodeValidation, "campaign service requires a candidate store")
	case d.Checkpoints == nil:
		return errors.New(errors.ErrCodeValidation, "campaign service requires a checkpoint store")
	case d.Locks == nil:
		return errors.New(errors.ErrCodeValidation, "campaign service requires a lock factory")
	case d.Strategy == nil:
		return errors.New(errors.ErrCodeValidation, "campaign service requires a proposal strategy")
	case d.Scorer == nil:
		return errors.New(errors.ErrCodeValidation, "campaign service requires a scorer")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Service
// ─────────────────────────────────────────────────────────────────────────────

// StartInput describes a new run.  RunID is optional; a fresh id is assigned
// when empty.
type StartInput struct {
	RunID string
	Seeds []string
}

// Service is the campaign application boundary.
type Service interface {
	StartRun(ctx context.Context, input *StartInput) (design.RunSummary, error)
	ResumeRun(ctx context.Context, runID string) (design.RunSummary, error)
	CancelRun(runID string) bool
	GetRun(ctx context.Context, runID string) (*pgrepo.RunRecord, error)
	ListRuns(ctx context.Context, state design.RunState, limit, offset int) ([]*pgrepo.RunRecord, error)
	GenerationHistory(ctx context.Context, runID string) ([]design.GenerationReport, error)
	TopCandidates(ctx context.Context, runID string, limit int) ([]*pgrepo.CandidateRecord, error)
	GetCandidate(ctx context.Context, runID, key string) (*pgrepo.CandidateRecord, error)
	Ancestry(ctx context.Context, key string, maxDepth int) ([]neorepo.LineageNode, error)
	Descendants(ctx context.Context, key string, maxDepth int) ([]neorepo.LineageNode, error)
}

// serviceImpl implements the Service interface.
type serviceImpl struct {
	cfg    *config.SearchConfig
	deps   Dependencies
	logger logging.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewService constructs the campaign service.
func NewService(cfg *config.SearchConfig, deps Dependencies, log logging.Logger) (Service, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrCodeValidation, "campaign service requires search configuration")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &serviceImpl{
		cfg:    cfg,
		deps:   deps,
		logger: log.Named("campaign"),
		active: make(map[string]context.CancelFunc),
	}, nil
}

// controllerConfig translates file configuration into the run policy.
func (s *serviceImpl) controllerConfig() (controller.Config, error) {
	dir, err := design.ParseFitnessDirection(s.cfg.FitnessDirection)
	if err != nil {
		return controller.Config{}, err
	}
	sel, err := design.ParseSelectionPolicy(s.cfg.SelectionPolicy)
	if err != nil {
		return controller.Config{}, err
	}
	return controller.Config{
		BatchSize:          s.cfg.BatchSize,
		PopulationCapacity: s.cfg.PopulationCapacity,
		MinViableSize:      s.cfg.MinViableSize,
		MaxGenerations:     s.cfg.MaxGenerations,
		BudgetEvaluations:  s.cfg.BudgetEvaluations,
		BudgetWallClock:    s.cfg.BudgetWallClock,
		Patience:           s.cfg.Patience,
		FailureThreshold:   s.cfg.FailureThreshold,
		MaxConcurrency:     s.cfg.MaxConcurrency,
		Seed:               s.cfg.Seed,
		Direction:          dir,
		Selection:          sel,
		EliteFraction:      s.cfg.EliteFraction,
	}, nil
}

// StartRun seeds and executes a new run to a terminal state.  It blocks for
// the duration of the generation loop; callers wanting detachment run it on
// their own goroutine and observe progress through the read paths.
func (s *serviceImpl) StartRun(ctx context.Context, input *StartInput) (design.RunSummary, error) {
	if input == nil || len(input.Seeds) == 0 {
		return design.RunSummary{}, errors.New(errors.ErrCodeValidation, "a run requires at least one seed sequence")
	}

	runID := input.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	ctrlCfg, err := s.controllerConfig()
	if err != nil {
		return design.RunSummary{}, err
	}

	seeds := make([]*candidate.Candidate, 0, len(input.Seeds))
	for _, raw := range input.Seeds {
		c, err := candidate.New(raw, candidate.NewLineage(0, ""), nil)
		if err != nil {
			return design.RunSummary{}, err
		}
		seeds = append(seeds, c)
	}

	lock := s.deps.Locks(runID)
	acquired, err := lock.TryAcquire(ctx)
	if err != nil {
		return design.RunSummary{}, err
	}
	if !acquired {
		return design.RunSummary{}, errors.New(errors.ErrCodeConflict,
			"run is already driven by another worker").WithDetail("run_id=" + runID)
	}
	defer lock.Release(context.WithoutCancel(ctx))

	if err := s.deps.Runs.Create(ctx, &pgrepo.RunRecord{
		ID:                runID,
		State:             design.RunStateInitialized,
		Strategy:          s.deps.Strategy.Kind().String(),
		Direction:         ctrlCfg.Direction,
		Seed:              ctrlCfg.Seed,
		BudgetEvaluations: ctrlCfg.BudgetEvaluations,
	}); err != nil {
		return design.RunSummary{}, err
	}

	s.prepareBackends(ctx, runID)

	scoreCache := s.newCache()
	recorder := newRecordingScorer(s.deps.Scorer)
	archiver := s.newArchiver(runID, recorder, lock)

	members, err := controller.Seed(ctx, scoreCache, recorder, seeds)
	if err != nil {
		s.markFailed(ctx, runID)
		return design.RunSummary{}, err
	}

	ctrl, err := controller.New(runID, ctrlCfg, s.deps.Strategy, recorder, scoreCache, members, s.logger,
		controller.WithReporter(archiver), controller.WithMetrics(s.metrics()))
	if err != nil {
		s.markFailed(ctx, runID)
		return design.RunSummary{}, err
	}
	archiver.bind(ctrl)

	// Seeds are charged to the caller, not the budget, but they are archived
	// like any other generation.
	archiver.persistMembers(ctx, recorder.drain())

	return s.execute(ctx, runID, ctrl)
}

// ResumeRun restores an interrupted run from its latest checkpoint and drives
// it to a terminal state.
func (s *serviceImpl) ResumeRun(ctx context.Context, runID string) (design.RunSummary, error) {
	ctrlCfg, err := s.controllerConfig()
	if err != nil {
		return design.RunSummary{}, err
	}

	data, err := s.deps.Checkpoints.Load(ctx, runID)
	if err != nil {
		return design.RunSummary{}, err
	}
	snap, err := controller.DecodeSnapshot(data)
	if err != nil {
		return design.RunSummary{}, err
	}

	lock := s.deps.Locks(runID)
	acquired, err := lock.TryAcquire(ctx)
	if err != nil {
		return design.RunSummary{}, err
	}
	if !acquired {
		return design.RunSummary{}, errors.New(errors.ErrCodeConflict,
			"run is already driven by another worker").WithDetail("run_id=" + runID)
	}
	defer lock.Release(context.WithoutCancel(ctx))

	recorder := newRecordingScorer(s.deps.Scorer)
	archiver := s.newArchiver(runID, recorder, lock)

	ctrl, err := controller.RestoreWithCache(snap, ctrlCfg, s.deps.Strategy, recorder, s.newCache(), s.logger,
		controller.WithReporter(archiver), controller.WithMetrics(s.metrics()))
	if err != nil {
		return design.RunSummary{}, err
	}
	archiver.bind(ctrl)

	s.logger.Info("run resumed from checkpoint",
		logging.String("run_id", runID),
		logging.Int("generation", snap.Generation),
		logging.Int("budget_remaining", snap.Budget))

	return s.execute(ctx, runID, ctrl)
}

// execute drives the controller loop and persists the terminal outcome.
func (s *serviceImpl) execute(ctx context.Context, runID string, ctrl *controller.Controller) (design.RunSummary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.register(runID, cancel)
	defer s.unregister(runID)

	if err := s.deps.Runs.UpdateState(ctx, runID, design.RunStateRunning); err != nil {
		s.logger.Warn("failed to persist running state", logging.String("run_id", runID), logging.Err(err))
	}

	summary, runErr := ctrl.Run(runCtx)

	// Terminal persistence must survive the cancellation that ended the run.
	finishCtx := context.WithoutCancel(ctx)
	if err := s.deps.Runs.Finish(finishCtx, summary); err != nil {
		s.logger.Error("failed to persist run summary",
			logging.String("run_id", runID), logging.Err(err))
	}

	switch summary.State {
	case design.RunStateConverged, design.RunStateBudgetExhausted:
		if err := s.deps.Checkpoints.Delete(finishCtx, runID); err != nil {
			s.logger.Warn("failed to delete checkpoint", logging.String("run_id", runID), logging.Err(err))
		}
	default:
		// FAILED and CANCELLED keep their checkpoint so the run can resume.
	}

	return summary, runErr
}

// prepareBackends readies the optional per-run storage; failures degrade the
// run's observability but never block it.
func (s *serviceImpl) prepareBackends(ctx context.Context, runID string) {
	if s.deps.Lineage != nil {
		if err := s.deps.Lineage.EnsureRun(ctx, runID); err != nil {
			s.logger.Warn("lineage graph unavailable", logging.String("run_id", runID), logging.Err(err))
		}
	}
	if s.deps.Archive != nil {
		if err := s.deps.Archive.EnsureIndex(ctx); err != nil {
			s.logger.Warn("candidate archive unavailable", logging.String("run_id", runID), logging.Err(err))
		}
	}
}

func (s *serviceImpl) newCache() *cache.ScoreCache {
	if s.deps.CacheStore != nil {
		return cache.New(cache.WithStore(s.deps.CacheStore))
	}
	return cache.New()
}

func (s *serviceImpl) metrics() controller.Metrics {
	return s.deps.Metrics
}

func (s *serviceImpl) markFailed(ctx context.Context, runID string) {
	if err := s.deps.Runs.UpdateState(ctx, runID, design.RunStateFailed); err != nil {
		s.logger.Warn("failed to persist failed state", logging.String("run_id", runID), logging.Err(err))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Cancellation registry
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) register(runID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[runID] = cancel
}

func (s *serviceImpl) unregister(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, runID)
}

// CancelRun requests cooperative cancellation of a run this instance drives.
// It reports whether the run was active here; the loop stops at the next
// cancellation point and finishes as CANCELLED.
func (s *serviceImpl) CancelRun(runID string) bool {
	s.mu.Lock()
	cancel, ok := s.active[runID]
	s.mu.Unlock()
	if ok {
		cancel()
		s.logger.Info("run cancellation requested", logging.String("run_id", runID))
	}
	return ok
}

// ─────────────────────────────────────────────────────────────────────────────
// Read paths
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) GetRun(ctx context.Context, runID string) (*pgrepo.RunRecord, error) {
	return s.deps.Runs.FindByID(ctx, runID)
}

func (s *serviceImpl) ListRuns(ctx context.Context, state design.RunState, limit, offset int) ([]*pgrepo.RunRecord, error) {
	return s.deps.Runs.List(ctx, state, limit, offset)
}

func (s *serviceImpl) GenerationHistory(ctx context.Context, runID string) ([]design.GenerationReport, error) {
	return s.deps.Runs.GenerationHistory(ctx, runID)
}

func (s *serviceImpl) TopCandidates(ctx context.Context, runID string, limit int) ([]*pgrepo.CandidateRecord, error) {
	dir, err := design.ParseFitnessDirection(s.cfg.FitnessDirection)
	if err != nil {
		return nil, err
	}
	return s.deps.Candidates.TopByRun(ctx, runID, dir, limit)
}

func (s *serviceImpl) GetCandidate(ctx context.Context, runID, key string) (*pgrepo.CandidateRecord, error) {
	return s.deps.Candidates.FindByKey(ctx, runID, key)
}

func (s *serviceImpl) Ancestry(ctx context.Context, key string, maxDepth int) ([]neorepo.LineageNode, error) {
	if s.deps.Lineage == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "lineage graph is not configured")
	}
	return s.deps.Lineage.Ancestry(ctx, key, maxDepth)
}

func (s *serviceImpl) Descendants(ctx context.Context, key string, maxDepth int) ([]neorepo.LineageNode, error) {
	if s.deps.Lineage == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "lineage graph is not configured")
	}
	return s.deps.Lineage.Descendants(ctx, key, maxDepth)
}
