package campaign

import (
	"context"
	"sync"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/internal/search/controller"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// recordingScorer decorates the oracle scorer, capturing every evaluated
// member so the archiver can persist them generation by generation.
type recordingScorer struct {
	inner controller.Scorer

	mu     sync.Mutex
	scored []candidate.Member
}

func newRecordingScorer(inner controller.Scorer) *recordingScorer {
	return &recordingScorer{inner: inner}
}

func (r *recordingScorer) Score(ctx context.Context, c *candidate.Candidate) (candidate.Score, error) {
	score, err := r.inner.Score(ctx, c)
	if err != nil {
		return score, err
	}
	r.mu.Lock()
	r.scored = append(r.scored, candidate.Member{Candidate: c, Score: score})
	r.mu.Unlock()
	return score, nil
}

// drain returns the members scored since the previous drain.
func (r *recordingScorer) drain() []candidate.Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.scored
	r.scored = nil
	return out
}

// archiver implements controller.Reporter, fanning one generation's outcome
// out to the storage backends.  Every write is best effort: a degraded
// backend costs observability, never the run.
type archiver struct {
	runID    string
	deps     Dependencies
	recorder *recordingScorer
	lock     RunLock
	service  *serviceImpl
	logger   logging.Logger

	snapshotInterval int
	ctrl             *controller.Controller
}

func (s *serviceImpl) newArchiver(runID string, recorder *recordingScorer, lock RunLock) *archiver {
	interval := s.cfg.SnapshotInterval
	if interval <= 0 {
		interval = 1
	}
	return &archiver{
		runID:            runID,
		deps:             s.deps,
		recorder:         recorder,
		lock:             lock,
		service:          s,
		logger:           s.logger.Named("archiver").With(logging.String("run_id", runID)),
		snapshotInterval: interval,
	}
}

// bind attaches the controller once constructed; the archiver needs it for
// snapshots.
func (a *archiver) bind(ctrl *controller.Controller) { a.ctrl = ctrl }

// ReportGeneration persists one completed generation: its statistics, the
// newly scored members, a checkpoint on the configured interval, and a lock
// extension so ownership survives long generations.
func (a *archiver) ReportGeneration(ctx context.Context, report design.GenerationReport) {
	if err := a.deps.Runs.RecordGeneration(ctx, report); err != nil {
		a.logger.Error("failed to record generation stats",
			logging.Int("generation", report.Generation), logging.Err(err))
	}

	a.persistMembers(ctx, a.recorder.drain())

	if a.ctrl != nil && report.Generation%a.snapshotInterval == 0 {
		a.checkpoint(ctx, report.Generation)
	}

	if err := a.lock.Extend(ctx); err != nil {
		// Lost ownership means another worker may have taken over; this
		// controller must stop rather than race it.
		a.logger.Error("run lock lost, cancelling run", logging.Err(err))
		a.service.CancelRun(a.runID)
	}

	if a.deps.Reporter != nil {
		a.deps.Reporter.ReportGeneration(ctx, report)
	}
}

// ReportRunFinished forwards the terminal summary; row-level persistence of
// the outcome is the service's job, where failures can surface.
func (a *archiver) ReportRunFinished(ctx context.Context, summary design.RunSummary) {
	if a.deps.Reporter != nil {
		a.deps.Reporter.ReportRunFinished(ctx, summary)
	}
}

// persistMembers archives newly evaluated members across the backends.
func (a *archiver) persistMembers(ctx context.Context, members []candidate.Member) {
	if len(members) == 0 {
		return
	}

	if err := a.deps.Candidates.SaveBatch(ctx, a.runID, members); err != nil {
		a.logger.Error("failed to archive candidates",
			logging.Int("count", len(members)), logging.Err(err))
	}
	if a.deps.Lineage != nil {
		if err := a.deps.Lineage.RecordMembers(ctx, a.runID, members); err != nil {
			a.logger.Warn("failed to record lineage", logging.Err(err))
		}
	}
	if a.deps.Embeddings != nil {
		if err := a.deps.Embeddings.Add(ctx, a.runID, members); err != nil {
			a.logger.Warn("failed to index embeddings", logging.Err(err))
		}
	}
	if a.deps.Archive != nil {
		if err := a.deps.Archive.IndexMembers(ctx, a.runID, members); err != nil {
			a.logger.Warn("failed to index archive documents", logging.Err(err))
		}
	}
	if a.deps.Poses != nil {
		for _, m := range members {
			if !m.Score.Usable() || len(m.Score.Diagnostics) == 0 {
				continue
			}
			if err := a.deps.Poses.SavePose(ctx, a.runID, m.Candidate.Key, m.Score.Diagnostics); err != nil {
				a.logger.Warn("failed to store pose",
					logging.String("key", m.Candidate.ShortKey()), logging.Err(err))
			}
		}
	}
}

// checkpoint persists the controller's resumable state.
func (a *archiver) checkpoint(ctx context.Context, generation int) {
	data, err := a.ctrl.Snapshot().Encode()
	if err != nil {
		a.logger.Error("failed to encode checkpoint", logging.Err(err))
		return
	}
	if err := a.deps.Checkpoints.Save(ctx, a.runID, data); err != nil {
		a.logger.Error("failed to save checkpoint",
			logging.Int("generation", generation), logging.Err(err))
		return
	}
	a.logger.Debug("checkpoint saved",
		logging.Int("generation", generation),
		logging.Int("bytes", len(data)))
}
