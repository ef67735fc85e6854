package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// CandidateRecord is the persisted form of an evaluated candidate within a
// run.  Scores are immutable, so rows are insert-only.
type CandidateRecord struct {
	RunID       string
	Key         string
	Sequence    string
	Generation  int
	ParentKey   string
	Status      design.ScoreStatus
	Fitness     *float64
	Diagnostics json.RawMessage
	EvaluatedAt time.Time
}

const candidateColumns = `run_id, key, sequence, generation, parent_key,
       status, fitness, diagnostics, evaluated_at`

// CandidateRepository archives evaluated candidates for post-run analysis.
type CandidateRepository struct {
	db     queryExecutor
	logger logging.Logger
}

// NewCandidateRepository constructs a CandidateRepository over a pool or
// transaction.
func NewCandidateRepository(db queryExecutor, log logging.Logger) *CandidateRepository {
	return &CandidateRepository{db: db, logger: log.Named("candidate_repo")}
}

// SaveBatch archives one generation's evaluated members.  Conflicting rows
// are skipped: a canonical key is only ever scored once per run.
func (r *CandidateRepository) SaveBatch(ctx context.Context, runID string, members []candidate.Member) error {
	if len(members) == 0 {
		return nil
	}

	for _, m := range members {
		var fitness interface{}
		if m.Score.Usable() {
			fitness = m.Score.Fitness
		}
		var diagnostics interface{}
		if len(m.Score.Diagnostics) > 0 {
			diagnostics = []byte(m.Score.Diagnostics)
		}

		_, err := r.db.ExecContext(ctx, `
			INSERT INTO candidates (
				run_id, key, sequence, generation, parent_key,
				status, fitness, diagnostics, evaluated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (run_id, key) DO NOTHING`,
			runID, m.Candidate.Key, m.Candidate.Sequence,
			m.Candidate.Lineage.Generation, nullable(m.Candidate.Lineage.ParentKey),
			m.Score.Status, fitness, diagnostics, m.Score.EvaluatedAt,
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to archive candidate").
				WithDetail("key=" + m.Candidate.ShortKey())
		}
	}

	r.logger.Debug("candidate batch archived",
		logging.String("run_id", runID),
		logging.Int("count", len(members)))
	return nil
}

// FindByKey fetches one archived candidate of a run.
func (r *CandidateRepository) FindByKey(ctx context.Context, runID, key string) (*CandidateRecord, error) {
	rec, err := scanCandidate(r.db.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE run_id = $1 AND key = $2`,
		runID, key))
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeCandidateNotFound, "candidate not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query candidate")
	}
	return rec, nil
}

// TopByRun returns a run's best-scoring candidates.
func (r *CandidateRepository) TopByRun(ctx context.Context, runID string, dir design.FitnessDirection, limit int) ([]*CandidateRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	order := "ASC"
	if dir == design.Maximize {
		order = "DESC"
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates
		 WHERE run_id = $1 AND status = 'SUCCESS'
		 ORDER BY fitness `+order+`, generation, key LIMIT $2`,
		runID, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query top candidates")
	}
	defer rows.Close()

	return collectCandidates(rows)
}

// ListByGeneration returns every archived candidate of one generation.
func (r *CandidateRepository) ListByGeneration(ctx context.Context, runID string, generation int) ([]*CandidateRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates
		 WHERE run_id = $1 AND generation = $2 ORDER BY key`,
		runID, generation)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query generation candidates")
	}
	defer rows.Close()

	return collectCandidates(rows)
}

// CountByRun returns the number of archived candidates of a run.
func (r *CandidateRepository) CountByRun(ctx context.Context, runID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM candidates WHERE run_id = $1`, runID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count candidates")
	}
	return n, nil
}

func collectCandidates(rows *sql.Rows) ([]*CandidateRecord, error) {
	var out []*CandidateRecord
	for rows.Next() {
		rec, err := scanCandidate(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan candidate row")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate candidate rows")
	}
	return out, nil
}

func scanCandidate(s scanner) (*CandidateRecord, error) {
	var rec CandidateRecord
	var parentKey sql.NullString
	var fitness sql.NullFloat64
	var diagnostics []byte

	if err := s.Scan(
		&rec.RunID, &rec.Key, &rec.Sequence, &rec.Generation, &parentKey,
		&rec.Status, &fitness, &diagnostics, &rec.EvaluatedAt,
	); err != nil {
		return nil, err
	}

	rec.ParentKey = parentKey.String
	if fitness.Valid {
		f := fitness.Float64
		rec.Fitness = &f
	}
	if len(diagnostics) > 0 {
		rec.Diagnostics = json.RawMessage(diagnostics)
	}
	return &rec, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
