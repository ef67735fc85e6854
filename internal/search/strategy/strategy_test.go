package strategy

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/types/design"
)

func seededPopulation(t *testing.T, seqs ...string) *candidate.Population {
	t.Helper()
	pop, err := candidate.NewPopulation(32)
	require.NoError(t, err)
	for i, seq := range seqs {
		c, err := candidate.New(seq, candidate.Lineage{Generation: 0, ID: string(rune('a' + i))}, nil)
		require.NoError(t, err)
		require.NoError(t, pop.Add(candidate.Member{
			Candidate: c,
			Score:     candidate.Success(-5-float64(i), nil, time.Second),
		}))
	}
	return pop
}

func TestMutationPropose(t *testing.T) {
	pop := seededPopulation(t, "ACDEFGHIKLMNPQRSTVWY", "MKVLAAGITSILLISGGAHA")
	s, err := NewMutation(0.1, nil, design.Minimize)
	require.NoError(t, err)
	assert.Equal(t, design.StrategyMutation, s.Kind())

	batch, err := s.Propose(context.Background(), rand.New(rand.NewSource(42)), pop, 1, 8)
	require.NoError(t, err)
	require.Len(t, batch, 8)

	seen := map[string]bool{}
	for _, c := range batch {
		// Novel against the population and within the batch.
		assert.False(t, pop.Contains(c.Key))
		assert.False(t, seen[c.Key])
		seen[c.Key] = true
		// Offspring inherit length and record their parent.
		assert.Len(t, c.Sequence, 20)
		assert.Equal(t, 1, c.Lineage.Generation)
		assert.NotEmpty(t, c.Lineage.ParentKey)
	}
}

func TestMutationPropose_DeterministicForSeed(t *testing.T) {
	newBatch := func() []string {
		pop := seededPopulation(t, "ACDEFGHIKLMNPQRSTVWY")
		s, err := NewMutation(0.2, nil, design.Minimize)
		require.NoError(t, err)
		batch, err := s.Propose(context.Background(), rand.New(rand.NewSource(7)), pop, 1, 5)
		require.NoError(t, err)
		keys := make([]string, len(batch))
		for i, c := range batch {
			keys[i] = c.Key
		}
		return keys
	}
	assert.Equal(t, newBatch(), newBatch())
}

func TestMutationPropose_ForbiddenResiduesNeverIntroduced(t *testing.T) {
	pop := seededPopulation(t, "AGAGAGAGAGAGAGAGAGAG")
	s, err := NewMutation(0.5, []string{"C", "W"}, design.Minimize)
	require.NoError(t, err)

	batch, err := s.Propose(context.Background(), rand.New(rand.NewSource(3)), pop, 1, 20)
	require.NoError(t, err)
	require.NotEmpty(t, batch)
	for _, c := range batch {
		assert.NotContains(t, c.Sequence, "C")
		assert.NotContains(t, c.Sequence, "W")
		assert.NotContains(t, c.Sequence, "X")
	}
}

func TestMutationPropose_EmptyPopulation(t *testing.T) {
	pop, err := candidate.NewPopulation(8)
	require.NoError(t, err)
	s, err := NewMutation(0.1, nil, design.Minimize)
	require.NoError(t, err)

	batch, err := s.Propose(context.Background(), rand.New(rand.NewSource(1)), pop, 1, 4)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestNewMutation_Validation(t *testing.T) {
	_, err := NewMutation(0, nil, design.Minimize)
	assert.Error(t, err)
	_, err = NewMutation(1.5, nil, design.Minimize)
	assert.Error(t, err)
	// Banning nearly the whole alphabet leaves nothing to substitute with.
	_, err = NewMutation(0.1, []string{"ACDEFGHIKLMNPQRSTVW"}, design.Minimize)
	assert.Error(t, err)
}

func TestCrossoverPropose(t *testing.T) {
	pop := seededPopulation(t, "AAAAAAAAAAAAAAAAAAAA", "YYYYYYYYYYYYYYYYYYYY")
	s, err := NewCrossover(design.Minimize)
	require.NoError(t, err)
	assert.Equal(t, design.StrategyCrossover, s.Kind())

	batch, err := s.Propose(context.Background(), rand.New(rand.NewSource(11)), pop, 2, 6)
	require.NoError(t, err)
	require.NotEmpty(t, batch)
	for _, c := range batch {
		// A recombinant of two homopolymers carries residues of both.
		assert.Contains(t, c.Sequence, "A")
		assert.Contains(t, c.Sequence, "Y")
		assert.Len(t, c.Sequence, 20)
		assert.False(t, pop.Contains(c.Key))
	}
}

func TestCrossoverPropose_NeedsTwoParents(t *testing.T) {
	pop := seededPopulation(t, "ACDEFGHIKLMNPQRSTVWY")
	s, err := NewCrossover(design.Minimize)
	require.NoError(t, err)

	batch, err := s.Propose(context.Background(), rand.New(rand.NewSource(11)), pop, 1, 4)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

type fakeSampler struct {
	req     SampleRequest
	samples []string
	err     error
}

func (f *fakeSampler) Sample(_ context.Context, req SampleRequest) ([]string, error) {
	f.req = req
	return f.samples, f.err
}

type fakeFilter struct {
	novel []string
	err   error
}

func (f *fakeFilter) FilterNovel(_ context.Context, seqs []string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.novel, nil
}

func TestModelSampledPropose(t *testing.T) {
	pop := seededPopulation(t, "ACDEFGHIKLMNPQRSTVWY")
	sampler := &fakeSampler{samples: []string{
		"MCDEFGHIKLMNPQRSTVWY",
		"MCDEFGHIKLMNPQRSTVWY", // duplicate, dropped
		"ACDEFGHIKLMNPQRSTVWY", // aliases a population member, dropped
		"b@d-sequence!!",       // malformed, dropped
		"WCDEFGHIKLMNPQRSTVWY",
	}}

	s, err := NewModelSampled(sampler, nil, 0.15, []string{"C"}, design.Minimize, logging.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, design.StrategyModelSampled, s.Kind())

	batch, err := s.Propose(context.Background(), rand.New(rand.NewSource(5)), pop, 3, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	// The request carried a masked template of the best sequence plus the
	// forbidden set and a seed.
	assert.Len(t, sampler.req.Template, 20)
	assert.Contains(t, sampler.req.Template, string(MaskSymbol))
	assert.Equal(t, []string{"C"}, sampler.req.Forbidden)
	assert.Equal(t, 10, sampler.req.Count)
}

func TestModelSampledPropose_FilterFailureAdmitsAll(t *testing.T) {
	pop := seededPopulation(t, "ACDEFGHIKLMNPQRSTVWY")
	sampler := &fakeSampler{samples: []string{"MCDEFGHIKLMNPQRSTVWY"}}
	filter := &fakeFilter{err: assert.AnError}

	s, err := NewModelSampled(sampler, filter, 0.15, nil, design.Minimize, logging.NewNopLogger())
	require.NoError(t, err)

	batch, err := s.Propose(context.Background(), rand.New(rand.NewSource(5)), pop, 1, 4)
	require.NoError(t, err)
	assert.Len(t, batch, 1)
}

func TestHybridPropose(t *testing.T) {
	pop := seededPopulation(t, "AAAAAAAAAAAAAAAAAAAA", "YYYYYYYYYYYYYYYYYYYY")

	mutation, err := NewMutation(0.2, nil, design.Minimize)
	require.NoError(t, err)
	crossover, err := NewCrossover(design.Minimize)
	require.NoError(t, err)

	h, err := NewHybrid(crossover, mutation)
	require.NoError(t, err)
	assert.Equal(t, design.StrategyHybrid, h.Kind())

	batch, err := h.Propose(context.Background(), rand.New(rand.NewSource(9)), pop, 1, 10)
	require.NoError(t, err)
	require.NotEmpty(t, batch)

	seen := map[string]bool{}
	for _, c := range batch {
		assert.False(t, seen[c.Key])
		seen[c.Key] = true
	}
	assert.LessOrEqual(t, len(batch), 10)
}

func TestFactory(t *testing.T) {
	base := func() *config.SearchConfig {
		return &config.SearchConfig{
			Strategy:         "mutation",
			MutationRate:     0.1,
			FitnessDirection: "minimize",
		}
	}
	log := logging.NewNopLogger()

	s, err := New(base(), nil, nil, log)
	require.NoError(t, err)
	assert.Equal(t, design.StrategyMutation, s.Kind())

	cfg := base()
	cfg.Strategy = "crossover"
	s, err = New(cfg, nil, nil, log)
	require.NoError(t, err)
	assert.Equal(t, design.StrategyCrossover, s.Kind())

	cfg = base()
	cfg.Strategy = "model_sampled"
	_, err = New(cfg, nil, nil, log)
	assert.Error(t, err, "model_sampled without a sampler must fail")

	s, err = New(cfg, &fakeSampler{}, nil, log)
	require.NoError(t, err)
	assert.Equal(t, design.StrategyModelSampled, s.Kind())

	cfg = base()
	cfg.Strategy = "hybrid"
	s, err = New(cfg, nil, nil, log)
	require.NoError(t, err)
	assert.Equal(t, design.StrategyHybrid, s.Kind())

	cfg = base()
	cfg.Strategy = "annealing"
	_, err = New(cfg, nil, nil, log)
	assert.Error(t, err)
}
