package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// RunRecord is the persisted form of a search run.
type RunRecord struct {
	ID                string
	State             design.RunState
	Strategy          string
	Direction         design.FitnessDirection
	Seed              int64
	BudgetEvaluations int
	Generations       int
	Evaluations       int
	CacheHits         int
	CacheMisses       int
	Failures          int
	BestKey           string
	BestFitness       *float64
	BestSequence      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	FinishedAt        *time.Time
}

const runColumns = `id, state, strategy, direction, seed, budget_evaluations,
       generations, evaluations, cache_hits, cache_misses, failures,
       best_key, best_fitness, best_sequence, created_at, updated_at, finished_at`

// RunRepository persists run lifecycles and per-generation statistics.
type RunRepository struct {
	db     queryExecutor
	logger logging.Logger
}

// NewRunRepository constructs a RunRepository over a pool or transaction.
func NewRunRepository(db queryExecutor, log logging.Logger) *RunRepository {
	return &RunRepository{db: db, logger: log.Named("run_repo")}
}

// Create registers a new run in INITIALIZED state.
func (r *RunRepository) Create(ctx context.Context, rec *RunRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, state, strategy, direction, seed, budget_evaluations)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.State, rec.Strategy, rec.Direction, rec.Seed, rec.BudgetEvaluations,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert run").
			WithDetail("run_id=" + rec.ID)
	}
	r.logger.Debug("run created", logging.String("run_id", rec.ID))
	return nil
}

// UpdateState records a state transition.
func (r *RunRepository) UpdateState(ctx context.Context, runID string, state design.RunState) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE runs SET state = $2, updated_at = now() WHERE id = $1`,
		runID, state,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update run state")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeRunNotFound, "run not found").WithDetail("run_id=" + runID)
	}
	return nil
}

// Finish stores the terminal summary of a run.
func (r *RunRepository) Finish(ctx context.Context, summary design.RunSummary) error {
	var bestFitness interface{}
	var bestKey, bestSequence interface{}
	if summary.BestKey != "" {
		bestFitness = summary.BestFitness
		bestKey = summary.BestKey
		bestSequence = summary.BestSequence
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET state = $2, generations = $3, evaluations = $4,
		    cache_hits = $5, cache_misses = $6, failures = $7,
		    best_key = $8, best_fitness = $9, best_sequence = $10,
		    updated_at = now(), finished_at = now()
		WHERE id = $1`,
		summary.RunID, summary.State, summary.Generations, summary.Evaluations,
		summary.CacheHits, summary.CacheMisses, summary.Failures,
		bestKey, bestFitness, bestSequence,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to finish run")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeRunNotFound, "run not found").WithDetail("run_id=" + summary.RunID)
	}
	return nil
}

// RecordGeneration appends one generation's statistics.
func (r *RunRepository) RecordGeneration(ctx context.Context, report design.GenerationReport) error {
	var bestFitness, bestKey interface{}
	if report.BestKey != "" {
		bestFitness = report.BestFitness
		bestKey = report.BestKey
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO generation_stats (
			run_id, generation, proposed, novel, cache_hits, cache_misses,
			failures, timeouts, population_size, best_fitness, best_key,
			budget_remaining, elapsed_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		report.RunID, report.Generation, report.Proposed, report.Novel,
		report.CacheHits, report.CacheMisses, report.Failures, report.Timeouts,
		report.PopulationSize, bestFitness, bestKey,
		report.BudgetRemaining, report.ElapsedMS,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to record generation").
			WithDetail("run_id=" + report.RunID)
	}
	return nil
}

// FindByID fetches one run.
func (r *RunRepository) FindByID(ctx context.Context, runID string) (*RunRecord, error) {
	rec, err := scanRun(r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = $1`, runID))
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeRunNotFound, "run not found").WithDetail("run_id=" + runID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query run")
	}
	return rec, nil
}

// List returns runs newest-first, optionally filtered by state.
func (r *RunRepository) List(ctx context.Context, state design.RunState, limit, offset int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if state == "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, offset)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+runColumns+` FROM runs WHERE state = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			state, limit, offset)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list runs")
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan run row")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate run rows")
	}
	return out, nil
}

// GenerationHistory returns a run's generation statistics in order.
func (r *RunRepository) GenerationHistory(ctx context.Context, runID string) ([]design.GenerationReport, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, generation, proposed, novel, cache_hits, cache_misses,
		       failures, timeouts, population_size, best_fitness, best_key,
		       budget_remaining, elapsed_ms
		FROM generation_stats WHERE run_id = $1 ORDER BY generation`, runID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query generation stats")
	}
	defer rows.Close()

	var out []design.GenerationReport
	for rows.Next() {
		var rep design.GenerationReport
		var bestFitness sql.NullFloat64
		var bestKey sql.NullString
		if err := rows.Scan(
			&rep.RunID, &rep.Generation, &rep.Proposed, &rep.Novel,
			&rep.CacheHits, &rep.CacheMisses, &rep.Failures, &rep.Timeouts,
			&rep.PopulationSize, &bestFitness, &bestKey,
			&rep.BudgetRemaining, &rep.ElapsedMS,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan generation row")
		}
		rep.BestFitness = bestFitness.Float64
		rep.BestKey = bestKey.String
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate generation rows")
	}
	return out, nil
}

func scanRun(s scanner) (*RunRecord, error) {
	var rec RunRecord
	var bestKey, bestSequence sql.NullString
	var bestFitness sql.NullFloat64
	var finishedAt sql.NullTime

	if err := s.Scan(
		&rec.ID, &rec.State, &rec.Strategy, &rec.Direction, &rec.Seed,
		&rec.BudgetEvaluations, &rec.Generations, &rec.Evaluations,
		&rec.CacheHits, &rec.CacheMisses, &rec.Failures,
		&bestKey, &bestFitness, &bestSequence,
		&rec.CreatedAt, &rec.UpdatedAt, &finishedAt,
	); err != nil {
		return nil, err
	}

	rec.BestKey = bestKey.String
	rec.BestSequence = bestSequence.String
	if bestFitness.Valid {
		f := bestFitness.Float64
		rec.BestFitness = &f
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		rec.FinishedAt = &t
	}
	return &rec, nil
}
