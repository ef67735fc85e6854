package campaign

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/domain/candidate"
	neorepo "github.com/helixforge/helixforge/internal/infrastructure/database/neo4j/repositories"
	pgrepo "github.com/helixforge/helixforge/internal/infrastructure/database/postgres/repositories"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/internal/search/strategy"
	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeRunStore struct {
	mu       sync.Mutex
	created  []*pgrepo.RunRecord
	states   map[string][]design.RunState
	finished []design.RunSummary
	reports  []design.GenerationReport
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{states: make(map[string][]design.RunState)}
}

func (f *fakeRunStore) Create(_ context.Context, rec *pgrepo.RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, rec)
	return nil
}

func (f *fakeRunStore) UpdateState(_ context.Context, runID string, state design.RunState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[runID] = append(f.states[runID], state)
	return nil
}

func (f *fakeRunStore) Finish(_ context.Context, summary design.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, summary)
	return nil
}

func (f *fakeRunStore) RecordGeneration(_ context.Context, report design.GenerationReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, report)
	return nil
}

func (f *fakeRunStore) FindByID(_ context.Context, runID string) (*pgrepo.RunRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.created {
		if rec.ID == runID {
			return rec, nil
		}
	}
	return nil, errors.New(errors.ErrCodeRunNotFound, "run not found")
}

func (f *fakeRunStore) List(context.Context, design.RunState, int, int) ([]*pgrepo.RunRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created, nil
}

func (f *fakeRunStore) GenerationHistory(context.Context, string) ([]design.GenerationReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reports, nil
}

type fakeCandidateStore struct {
	mu      sync.Mutex
	batches [][]candidate.Member
}

func (f *fakeCandidateStore) SaveBatch(_ context.Context, _ string, members []candidate.Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, members)
	return nil
}

func (f *fakeCandidateStore) FindByKey(context.Context, string, string) (*pgrepo.CandidateRecord, error) {
	return nil, errors.New(errors.ErrCodeCandidateNotFound, "candidate not found")
}

func (f *fakeCandidateStore) TopByRun(context.Context, string, design.FitnessDirection, int) ([]*pgrepo.CandidateRecord, error) {
	return nil, nil
}

func (f *fakeCandidateStore) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

type fakeLineage struct {
	mu       sync.Mutex
	runs     []string
	recorded int
}

func (f *fakeLineage) EnsureRun(_ context.Context, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, runID)
	return nil
}

func (f *fakeLineage) RecordMembers(_ context.Context, _ string, members []candidate.Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded += len(members)
	return nil
}

func (f *fakeLineage) Ancestry(context.Context, string, int) ([]neorepo.LineageNode, error) {
	return []neorepo.LineageNode{{Key: "parent", Depth: 1}}, nil
}

func (f *fakeLineage) Descendants(context.Context, string, int) ([]neorepo.LineageNode, error) {
	return nil, nil
}

type fakeCheckpoints struct {
	mu        sync.Mutex
	snapshots map[string][]byte
	deleted   []string
}

func newFakeCheckpoints() *fakeCheckpoints {
	return &fakeCheckpoints{snapshots: make(map[string][]byte)}
}

func (f *fakeCheckpoints) Save(_ context.Context, runID string, snapshot []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[runID] = snapshot
	return nil
}

func (f *fakeCheckpoints) Load(_ context.Context, runID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.snapshots[runID]
	if !ok {
		return nil, errors.New(errors.ErrCodeRunNotFound, "no checkpoint for run")
	}
	return data, nil
}

func (f *fakeCheckpoints) Delete(_ context.Context, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.snapshots, runID)
	f.deleted = append(f.deleted, runID)
	return nil
}

func (f *fakeCheckpoints) has(runID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.snapshots[runID]
	return ok
}

type fakeLock struct {
	mu       sync.Mutex
	held     bool
	acquired int
	extended int
	released int
	denied   bool
}

func (f *fakeLock) TryAcquire(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denied {
		return false, nil
	}
	f.held = true
	f.acquired++
	return true, nil
}

func (f *fakeLock) Extend(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extended++
	return nil
}

func (f *fakeLock) Release(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.held = false
	f.released++
	return nil
}

// lengthScorer is a deterministic stand-in oracle: fitness is the sequence
// length, so shorter is better under minimize.
type lengthScorer struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
}

func (s *lengthScorer) Score(ctx context.Context, c *candidate.Candidate) (candidate.Score, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return candidate.Score{}, errors.Wrap(ctx.Err(), errors.ErrCodeRunCancelled, "scoring cancelled")
		}
	}
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return candidate.Success(float64(len(c.Sequence)), []byte(`{"pose":"stub"}`), time.Millisecond), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Harness
// ─────────────────────────────────────────────────────────────────────────────

type harness struct {
	svc         Service
	runs        *fakeRunStore
	candidates  *fakeCandidateStore
	lineage     *fakeLineage
	checkpoints *fakeCheckpoints
	lock        *fakeLock
	scorer      *lengthScorer
}

func searchConfig() *config.SearchConfig {
	return &config.SearchConfig{
		BatchSize:          4,
		PopulationCapacity: 8,
		MinViableSize:      1,
		MaxGenerations:     6,
		BudgetEvaluations:  60,
		Patience:           3,
		FailureThreshold:   2,
		MaxConcurrency:     2,
		Seed:               42,
		FitnessDirection:   "minimize",
		SelectionPolicy:    "top_k",
		Strategy:           "mutation",
		MutationRate:       0.3,
		SnapshotInterval:   1,
	}
}

func newHarness(t *testing.T, cfg *config.SearchConfig) *harness {
	t.Helper()

	strat, err := strategy.NewMutation(cfg.MutationRate, nil, design.Minimize)
	require.NoError(t, err)

	h := &harness{
		runs:        newFakeRunStore(),
		candidates:  &fakeCandidateStore{},
		lineage:     &fakeLineage{},
		checkpoints: newFakeCheckpoints(),
		lock:        &fakeLock{},
		scorer:      &lengthScorer{},
	}

	svc, err := NewService(cfg, Dependencies{
		Runs:        h.runs,
		Candidates:  h.candidates,
		Lineage:     h.lineage,
		Checkpoints: h.checkpoints,
		Locks:       func(string) RunLock { return h.lock },
		Strategy:    strat,
		Scorer:      h.scorer,
	}, logging.NewNopLogger())
	require.NoError(t, err)
	h.svc = svc
	return h
}

func seeds() []string {
	return []string{
		"MKTAYIAKQRQISFVKSHFSRQLEERLGLIEVQ",
		"MKTAYIAKQRQISFVKSHFSRQLEERLGLIEVA",
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// StartRun
// ─────────────────────────────────────────────────────────────────────────────

func TestStartRun_RunsToTerminalState(t *testing.T) {
	h := newHarness(t, searchConfig())

	summary, err := h.svc.StartRun(context.Background(), &StartInput{RunID: "run-1", Seeds: seeds()})
	require.NoError(t, err)

	assert.Equal(t, "run-1", summary.RunID)
	assert.True(t, summary.State.Terminal())
	assert.NotEmpty(t, summary.BestKey)
	assert.Positive(t, summary.Evaluations)
}

func TestStartRun_PersistsLifecycle(t *testing.T) {
	h := newHarness(t, searchConfig())

	summary, err := h.svc.StartRun(context.Background(), &StartInput{RunID: "run-1", Seeds: seeds()})
	require.NoError(t, err)

	require.Len(t, h.runs.created, 1)
	assert.Equal(t, "run-1", h.runs.created[0].ID)
	assert.Equal(t, "mutation", h.runs.created[0].Strategy)

	assert.Contains(t, h.runs.states["run-1"], design.RunStateRunning)
	require.Len(t, h.runs.finished, 1)
	assert.Equal(t, summary.State, h.runs.finished[0].State)

	assert.NotEmpty(t, h.runs.reports, "generation stats recorded")
	assert.Equal(t, 1, h.runs.reports[0].Generation)
}

func TestStartRun_ArchivesSeedsAndOffspring(t *testing.T) {
	h := newHarness(t, searchConfig())

	summary, err := h.svc.StartRun(context.Background(), &StartInput{RunID: "run-1", Seeds: seeds()})
	require.NoError(t, err)

	// Seeds plus every budget-charged evaluation pass through the archive.
	assert.Equal(t, len(seeds())+summary.Evaluations, h.candidates.total())
	assert.Equal(t, h.candidates.total(), h.lineage.recorded)
	assert.Equal(t, []string{"run-1"}, h.lineage.runs)
}

func TestStartRun_LockAcquiredAndReleased(t *testing.T) {
	h := newHarness(t, searchConfig())

	_, err := h.svc.StartRun(context.Background(), &StartInput{RunID: "run-1", Seeds: seeds()})
	require.NoError(t, err)

	assert.Equal(t, 1, h.lock.acquired)
	assert.Equal(t, 1, h.lock.released)
	assert.False(t, h.lock.held)
	assert.Positive(t, h.lock.extended, "lock extended between generations")
}

func TestStartRun_LockHeldElsewhere(t *testing.T) {
	h := newHarness(t, searchConfig())
	h.lock.denied = true

	_, err := h.svc.StartRun(context.Background(), &StartInput{RunID: "run-1", Seeds: seeds()})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))
	assert.Empty(t, h.runs.created, "no run row for a lock that was never held")
}

func TestStartRun_RequiresSeeds(t *testing.T) {
	h := newHarness(t, searchConfig())

	_, err := h.svc.StartRun(context.Background(), &StartInput{RunID: "run-1"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestStartRun_RejectsInvalidSeed(t *testing.T) {
	h := newHarness(t, searchConfig())

	_, err := h.svc.StartRun(context.Background(), &StartInput{
		RunID: "run-1",
		Seeds: []string{"not a protein 123"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCandidateInvalid))
}

func TestStartRun_AssignsRunID(t *testing.T) {
	h := newHarness(t, searchConfig())

	summary, err := h.svc.StartRun(context.Background(), &StartInput{Seeds: seeds()})
	require.NoError(t, err)
	assert.NotEmpty(t, summary.RunID)
}

func TestStartRun_CheckpointDeletedOnCompletion(t *testing.T) {
	h := newHarness(t, searchConfig())

	summary, err := h.svc.StartRun(context.Background(), &StartInput{RunID: "run-1", Seeds: seeds()})
	require.NoError(t, err)
	require.True(t, summary.State == design.RunStateConverged || summary.State == design.RunStateBudgetExhausted)

	_, ok := h.checkpoints.snapshots["run-1"]
	assert.False(t, ok, "completed runs leave no checkpoint behind")
	assert.Contains(t, h.checkpoints.deleted, "run-1")
}

// ─────────────────────────────────────────────────────────────────────────────
// Cancel and resume
// ─────────────────────────────────────────────────────────────────────────────

func TestCancelRun_StopsActiveRun(t *testing.T) {
	cfg := searchConfig()
	cfg.MaxGenerations = 1000
	cfg.BudgetEvaluations = 100000
	cfg.Patience = 1000
	h := newHarness(t, cfg)
	h.scorer.delay = 5 * time.Millisecond

	type result struct {
		summary design.RunSummary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		summary, err := h.svc.StartRun(context.Background(), &StartInput{RunID: "run-1", Seeds: seeds()})
		done <- result{summary, err}
	}()

	// Let at least one checkpoint land before cancelling so the run is
	// resumable afterwards.
	require.Eventually(t, func() bool {
		return h.checkpoints.has("run-1")
	}, 5*time.Second, 10*time.Millisecond)
	require.True(t, h.svc.CancelRun("run-1"))

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, design.RunStateCancelled, res.summary.State)

	// Cancelled runs keep their checkpoint for resumption.
	assert.True(t, h.checkpoints.has("run-1"))
}

func TestCancelRun_UnknownRun(t *testing.T) {
	h := newHarness(t, searchConfig())
	assert.False(t, h.svc.CancelRun("nope"))
}

func TestResumeRun_ContinuesFromCheckpoint(t *testing.T) {
	cfg := searchConfig()
	cfg.MaxGenerations = 1000
	cfg.Patience = 1000
	cfg.BudgetEvaluations = 100000
	h := newHarness(t, cfg)
	h.scorer.delay = 5 * time.Millisecond

	done := make(chan design.RunSummary, 1)
	go func() {
		summary, _ := h.svc.StartRun(context.Background(), &StartInput{RunID: "run-1", Seeds: seeds()})
		done <- summary
	}()
	require.Eventually(t, func() bool {
		return h.checkpoints.has("run-1")
	}, 5*time.Second, 10*time.Millisecond)
	require.True(t, h.svc.CancelRun("run-1"))
	interrupted := <-done
	require.Equal(t, design.RunStateCancelled, interrupted.State)

	// Resume with a finite budget so the second leg terminates quickly.
	h.scorer.delay = 0
	cfg.MaxGenerations = interrupted.Generations + 3
	cfg.Patience = 2

	summary, err := h.svc.ResumeRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.True(t, summary.State.Terminal())
	assert.NotEqual(t, design.RunStateCancelled, summary.State)
	assert.GreaterOrEqual(t, summary.Generations, interrupted.Generations)
}

func TestResumeRun_NoCheckpoint(t *testing.T) {
	h := newHarness(t, searchConfig())

	_, err := h.svc.ResumeRun(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRunNotFound))
}

func TestResumeRun_CorruptCheckpoint(t *testing.T) {
	h := newHarness(t, searchConfig())
	require.NoError(t, h.checkpoints.Save(context.Background(), "run-1", []byte("{broken")))

	_, err := h.svc.ResumeRun(context.Background(), "run-1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSnapshotCorrupt))
}

// ─────────────────────────────────────────────────────────────────────────────
// Read paths
// ─────────────────────────────────────────────────────────────────────────────

func TestReadPaths(t *testing.T) {
	h := newHarness(t, searchConfig())
	ctx := context.Background()

	_, err := h.svc.StartRun(ctx, &StartInput{RunID: "run-1", Seeds: seeds()})
	require.NoError(t, err)

	rec, err := h.svc.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", rec.ID)

	runs, err := h.svc.ListRuns(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	history, err := h.svc.GenerationHistory(ctx, "run-1")
	require.NoError(t, err)
	assert.NotEmpty(t, history)

	nodes, err := h.svc.Ancestry(ctx, strings.Repeat("ab", 32), 5)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestAncestry_WithoutLineageBackend(t *testing.T) {
	cfg := searchConfig()
	strat, err := strategy.NewMutation(cfg.MutationRate, nil, design.Minimize)
	require.NoError(t, err)

	svc, err := NewService(cfg, Dependencies{
		Runs:        newFakeRunStore(),
		Candidates:  &fakeCandidateStore{},
		Checkpoints: newFakeCheckpoints(),
		Locks:       func(string) RunLock { return &fakeLock{} },
		Strategy:    strat,
		Scorer:      &lengthScorer{},
	}, logging.NewNopLogger())
	require.NoError(t, err)

	_, err = svc.Ancestry(context.Background(), "key", 3)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
}

func TestNewService_Validation(t *testing.T) {
	strat, err := strategy.NewMutation(0.3, nil, design.Minimize)
	require.NoError(t, err)

	_, err = NewService(nil, Dependencies{}, logging.NewNopLogger())
	assert.Error(t, err)

	_, err = NewService(searchConfig(), Dependencies{Strategy: strat}, logging.NewNopLogger())
	assert.Error(t, err)
}
