package strategy

import (
	"context"
	"math/rand"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// CrossoverStrategy recombines two parent sequences at a single cut point.
// Useful once the population carries several distinct high-fitness designs;
// degenerates gracefully when fewer than two parents are viable.
type CrossoverStrategy struct {
	direction design.FitnessDirection
}

// NewCrossover constructs a CrossoverStrategy.
func NewCrossover(dir design.FitnessDirection) (*CrossoverStrategy, error) {
	if !dir.IsValid() {
		return nil, errors.New(errors.ErrCodeValidation, "crossover strategy requires a fitness direction")
	}
	return &CrossoverStrategy{direction: dir}, nil
}

// Kind implements Strategy.
func (s *CrossoverStrategy) Kind() design.StrategyKind { return design.StrategyCrossover }

// Propose implements Strategy.  Requires at least two viable parents;
// otherwise returns an empty batch and lets the controller decide.
func (s *CrossoverStrategy) Propose(ctx context.Context, rng *rand.Rand, pop *candidate.Population, generation, count int) ([]*candidate.Candidate, error) {
	parents := viableParents(pop, s.direction)
	if len(parents) < 2 || count <= 0 {
		return nil, nil
	}

	seen := dedupe{}
	out := make([]*candidate.Candidate, 0, count)
	for len(out) < count {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeRunCancelled, "proposal interrupted")
		}

		produced := false
		for attempt := 0; attempt < maxAttemptsPerCandidate; attempt++ {
			a := pickParent(rng, parents)
			b := pickParent(rng, parents)
			if a.Candidate.Key == b.Candidate.Key {
				continue
			}

			child, err := candidate.New(
				s.recombine(rng, a.Candidate.Sequence, b.Candidate.Sequence),
				candidate.NewLineage(generation, a.Candidate.Key),
				nil,
			)
			if err != nil {
				return nil, err
			}
			if seen.add(pop, child) {
				out = append(out, child)
				produced = true
				break
			}
		}
		if !produced {
			break
		}
	}
	return out, nil
}

// recombine takes a prefix of a and the corresponding suffix of b.  The cut
// point is interior to both sequences so each parent contributes material.
func (s *CrossoverStrategy) recombine(rng *rand.Rand, a, b string) string {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	if minLen < 2 {
		return a + b
	}
	cut := 1 + rng.Intn(minLen-1)
	return a[:cut] + b[cut:]
}
