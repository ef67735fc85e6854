package strategy

import (
	"context"
	"math/rand"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// MutationStrategy derives offspring by point-substituting residues of a
// parent sequence.  Each position mutates with probability rate; at least one
// substitution is forced so offspring never alias their parent.
type MutationStrategy struct {
	rate      float64
	alphabet  []rune
	direction design.FitnessDirection
}

// NewMutation constructs a MutationStrategy.  forbidden lists residues the
// strategy must never introduce (rm_aa-style, e.g. "C" to avoid unpaired
// cysteines).
func NewMutation(rate float64, forbidden []string, dir design.FitnessDirection) (*MutationStrategy, error) {
	if rate <= 0 || rate > 1 {
		return nil, errors.New(errors.ErrCodeValidation, "mutation rate must be in (0, 1]")
	}
	alphabet, err := substitutionAlphabet(forbidden)
	if err != nil {
		return nil, err
	}
	return &MutationStrategy{rate: rate, alphabet: alphabet, direction: dir}, nil
}

// Kind implements Strategy.
func (s *MutationStrategy) Kind() design.StrategyKind { return design.StrategyMutation }

// Propose implements Strategy.
func (s *MutationStrategy) Propose(ctx context.Context, rng *rand.Rand, pop *candidate.Population, generation, count int) ([]*candidate.Candidate, error) {
	parents := viableParents(pop, s.direction)
	if len(parents) == 0 || count <= 0 {
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
			parent := pickParent(rng, parents)
			child, err := candidate.New(
				s.mutate(rng, parent.Candidate.Sequence),
				candidate.NewLineage(generation, parent.Candidate.Key),
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
			// Neighbourhood exhausted around the current population.
			break
		}
	}
	return out, nil
}

// mutate substitutes each position with probability rate, forcing at least
// one substitution.
func (s *MutationStrategy) mutate(rng *rand.Rand, seq string) string {
	residues := []rune(seq)
	mutated := false
	for i := range residues {
		if rng.Float64() < s.rate {
			residues[i] = s.substitute(rng, residues[i])
			mutated = true
		}
	}
	if !mutated {
		i := rng.Intn(len(residues))
		residues[i] = s.substitute(rng, residues[i])
	}
	return string(residues)
}

// substitute draws a residue different from the current one.
func (s *MutationStrategy) substitute(rng *rand.Rand, current rune) rune {
	for {
		r := s.alphabet[rng.Intn(len(s.alphabet))]
		if r != current {
			return r
		}
	}
}
