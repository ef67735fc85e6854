package candidate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/design"
)

func member(t *testing.T, seq string, gen int, id string, score Score) Member {
	t.Helper()
	c, err := New(seq, Lineage{Generation: gen, ID: id}, nil)
	require.NoError(t, err)
	return Member{Candidate: c, Score: score}
}

func TestScoreConstructors(t *testing.T) {
	s := Success(-8.5, []byte(`{"pose":"p1"}`), 3*time.Second)
	assert.True(t, s.Usable())
	assert.Equal(t, design.ScoreSuccess, s.Status)
	assert.Equal(t, -8.5, s.Fitness)

	f := Failed([]byte(`{"reason":"steric clash"}`), time.Second)
	assert.False(t, f.Usable())
	assert.Equal(t, design.ScoreFailed, f.Status)

	to := TimedOut(2 * time.Minute)
	assert.False(t, to.Usable())
	assert.Equal(t, design.ScoreTimedOut, to.Status)
}

func TestScoreSameResult(t *testing.T) {
	a := Success(-8.5, nil, time.Second)
	b := Success(-8.5, []byte(`{"other":"diag"}`), 2*time.Second)
	c := Success(-7.0, nil, time.Second)

	assert.True(t, a.SameResult(b))
	assert.False(t, a.SameResult(c))
	assert.False(t, a.SameResult(Failed(nil, 0)))
	assert.True(t, Failed(nil, 0).SameResult(Failed([]byte(`{}`), time.Second)))
	// Fitness drift within epsilon from a serialization round-trip.
	assert.True(t, a.SameResult(Success(-8.5+1e-12, nil, 0)))
}

func TestPopulationAdd(t *testing.T) {
	p, err := NewPopulation(2)
	require.NoError(t, err)

	m1 := member(t, "ACDEFG", 0, "a", Success(-5, nil, 0))
	require.NoError(t, p.Add(m1))
	assert.Equal(t, 1, p.Len())
	assert.True(t, p.Contains(m1.Candidate.Key))

	got, ok := p.Get(m1.Candidate.Key)
	require.True(t, ok)
	assert.Equal(t, m1.Candidate.Key, got.Candidate.Key)

	// Duplicate canonical key rejected, even from a different raw payload.
	dup := member(t, "ac-defg", 1, "b", Success(-5, nil, 0))
	err = p.Add(dup)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCandidateDuplicate))

	// Capacity enforced.
	require.NoError(t, p.Add(member(t, "WWWWWW", 0, "c", Success(-4, nil, 0))))
	err = p.Add(member(t, "YYYYYY", 0, "d", Success(-3, nil, 0)))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodePopulationCapacity))
}

func TestNewPopulation_BadCapacity(t *testing.T) {
	_, err := NewPopulation(0)
	assert.Error(t, err)
}

func TestLess(t *testing.T) {
	dir := design.Minimize
	better := member(t, "AAAA", 1, "m", Success(-9, nil, 0))
	worse := member(t, "CCCC", 0, "a", Success(-5, nil, 0))
	failed := member(t, "DDDD", 0, "b", Failed(nil, 0))

	assert.True(t, Less(dir, better, worse))
	assert.False(t, Less(dir, worse, better))

	// Usable always outranks unusable regardless of lineage.
	assert.True(t, Less(dir, worse, failed))
	assert.False(t, Less(dir, failed, worse))

	// Equal fitness: earlier lineage wins.
	oldTie := member(t, "EEEE", 0, "a", Success(-7, nil, 0))
	newTie := member(t, "FFFF", 3, "a", Success(-7, nil, 0))
	assert.True(t, Less(dir, oldTie, newTie))
	assert.False(t, Less(dir, newTie, oldTie))

	// Maximize flips the fitness comparison, not the tie-break.
	assert.True(t, Less(design.Maximize, worse, better))
}

func TestPopulationBestAndRanked(t *testing.T) {
	p, err := NewPopulation(10)
	require.NoError(t, err)

	ms := []Member{
		member(t, "AAAA", 0, "a", Success(-5, nil, 0)),
		member(t, "CCCC", 1, "b", Success(-9, nil, 0)),
		member(t, "DDDD", 1, "c", Failed(nil, 0)),
		member(t, "EEEE", 2, "d", Success(-9, nil, 0)),
	}
	for _, m := range ms {
		require.NoError(t, p.Add(m))
	}

	best, ok := p.Best(design.Minimize)
	require.True(t, ok)
	// -9 tie broken by earlier lineage (generation 1 beats 2).
	assert.Equal(t, ms[1].Candidate.Key, best.Candidate.Key)

	ranked := p.Ranked(design.Minimize)
	require.Len(t, ranked, 4)
	assert.Equal(t, ms[1].Candidate.Key, ranked[0].Candidate.Key)
	assert.Equal(t, ms[3].Candidate.Key, ranked[1].Candidate.Key)
	assert.Equal(t, ms[0].Candidate.Key, ranked[2].Candidate.Key)
	// Failed member sinks to the bottom.
	assert.Equal(t, ms[2].Candidate.Key, ranked[3].Candidate.Key)

	assert.Equal(t, 3, p.ViableCount())
}

func TestPopulationBest_NoUsableScores(t *testing.T) {
	p, err := NewPopulation(4)
	require.NoError(t, err)
	require.NoError(t, p.Add(member(t, "AAAA", 0, "a", Failed(nil, 0))))
	require.NoError(t, p.Add(member(t, "CCCC", 0, "b", TimedOut(0))))

	_, ok := p.Best(design.Minimize)
	assert.False(t, ok)
	assert.Equal(t, 0, p.ViableCount())
}

func TestFromMembers(t *testing.T) {
	ms := []Member{
		member(t, "AAAA", 0, "a", Success(-5, nil, 0)),
		member(t, "CCCC", 0, "b", Success(-6, nil, 0)),
	}
	p, err := FromMembers(4, ms)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, []string{ms[0].Candidate.Key, ms[1].Candidate.Key}, p.Keys())

	// Members returns a copy.
	got := p.Members()
	got[0] = Member{}
	assert.Equal(t, 2, p.Len())
	assert.NotNil(t, p.Members()[0].Candidate)
}
