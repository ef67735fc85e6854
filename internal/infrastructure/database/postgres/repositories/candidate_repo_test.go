package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/design"
)

type CandidateRepoTestSuite struct {
	suite.Suite
	db   *sql.DB
	mock sqlmock.Sqlmock
	repo *CandidateRepository
}

func (s *CandidateRepoTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	require.NoError(s.T(), err)
	s.repo = NewCandidateRepository(s.db, logging.NewNopLogger())
}

func (s *CandidateRepoTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
	s.db.Close()
}

func candidateRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"run_id", "key", "sequence", "generation", "parent_key",
		"status", "fitness", "diagnostics", "evaluated_at",
	})
}

func (s *CandidateRepoTestSuite) TestSaveBatch() {
	c := candidate.MustNew("MKVLAAGITSILLISGGAHA", candidate.Lineage{Generation: 2, ID: "a", ParentKey: "p1"})
	member := candidate.Member{
		Candidate: c,
		Score:     candidate.Success(-9.5, []byte(`{"pose":"p"}`), time.Second),
	}

	s.mock.ExpectExec("INSERT INTO candidates").
		WithArgs("run-1", c.Key, c.Sequence, 2, "p1",
			design.ScoreSuccess, -9.5, []byte(`{"pose":"p"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.repo.SaveBatch(context.Background(), "run-1", []candidate.Member{member})
	assert.NoError(s.T(), err)
}

func (s *CandidateRepoTestSuite) TestSaveBatch_FailedScoreStoresNullFitness() {
	c := candidate.MustNew("MKVLAAGITSILLISGGAHA", candidate.Lineage{Generation: 1, ID: "a"})
	member := candidate.Member{Candidate: c, Score: candidate.Failed(nil, time.Second)}

	s.mock.ExpectExec("INSERT INTO candidates").
		WithArgs("run-1", c.Key, c.Sequence, 1, nil,
			design.ScoreFailed, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.repo.SaveBatch(context.Background(), "run-1", []candidate.Member{member})
	assert.NoError(s.T(), err)
}

func (s *CandidateRepoTestSuite) TestSaveBatch_Empty() {
	assert.NoError(s.T(), s.repo.SaveBatch(context.Background(), "run-1", nil))
}

func (s *CandidateRepoTestSuite) TestFindByKey() {
	now := time.Now()
	s.mock.ExpectQuery("SELECT .* FROM candidates WHERE run_id =").
		WithArgs("run-1", "k1").
		WillReturnRows(candidateRows().AddRow(
			"run-1", "k1", "MKVLAAGITS", 3, "p1",
			"SUCCESS", -8.25, []byte(`{"pose":"x"}`), now,
		))

	rec, err := s.repo.FindByKey(context.Background(), "run-1", "k1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), design.ScoreSuccess, rec.Status)
	require.NotNil(s.T(), rec.Fitness)
	assert.Equal(s.T(), -8.25, *rec.Fitness)
	assert.JSONEq(s.T(), `{"pose":"x"}`, string(rec.Diagnostics))
}

func (s *CandidateRepoTestSuite) TestFindByKey_NotFound() {
	s.mock.ExpectQuery("SELECT .* FROM candidates WHERE run_id =").
		WithArgs("run-1", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.repo.FindByKey(context.Background(), "run-1", "missing")
	require.Error(s.T(), err)
	assert.True(s.T(), errors.IsCode(err, errors.ErrCodeCandidateNotFound))
}

func (s *CandidateRepoTestSuite) TestTopByRun_MinimizeOrdersAscending() {
	now := time.Now()
	s.mock.ExpectQuery("SELECT .* FROM candidates .*ORDER BY fitness ASC").
		WithArgs("run-1", 2).
		WillReturnRows(candidateRows().
			AddRow("run-1", "k1", "AAAA", 1, nil, "SUCCESS", -12.0, nil, now).
			AddRow("run-1", "k2", "CCCC", 2, nil, "SUCCESS", -11.0, nil, now))

	recs, err := s.repo.TopByRun(context.Background(), "run-1", design.Minimize, 2)
	require.NoError(s.T(), err)
	require.Len(s.T(), recs, 2)
	assert.Equal(s.T(), "k1", recs[0].Key)
}

func (s *CandidateRepoTestSuite) TestTopByRun_MaximizeOrdersDescending() {
	now := time.Now()
	s.mock.ExpectQuery("SELECT .* FROM candidates .*ORDER BY fitness DESC").
		WithArgs("run-1", 1).
		WillReturnRows(candidateRows().
			AddRow("run-1", "k9", "AAAA", 1, nil, "SUCCESS", 0.97, nil, now))

	recs, err := s.repo.TopByRun(context.Background(), "run-1", design.Maximize, 1)
	require.NoError(s.T(), err)
	require.Len(s.T(), recs, 1)
	assert.Equal(s.T(), "k9", recs[0].Key)
}

func (s *CandidateRepoTestSuite) TestCountByRun() {
	s.mock.ExpectQuery("SELECT COUNT").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(57))

	n, err := s.repo.CountByRun(context.Background(), "run-1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 57, n)
}

func TestCandidateRepoTestSuite(t *testing.T) {
	suite.Run(t, new(CandidateRepoTestSuite))
}
