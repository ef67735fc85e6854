package strategy

import (
	"context"
	"math/rand"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// HybridStrategy splits each batch across several sub-strategies in order,
// handing unfilled quota to the next.  A typical stack is model-sampled
// first (expensive, high quality), then crossover, then mutation as the
// always-productive fallback.
type HybridStrategy struct {
	parts []Strategy
}

// NewHybrid constructs a HybridStrategy over the given sub-strategies.
func NewHybrid(parts ...Strategy) (*HybridStrategy, error) {
	if len(parts) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "hybrid strategy requires at least one sub-strategy")
	}
	for _, p := range parts {
		if p == nil {
			return nil, errors.New(errors.ErrCodeValidation, "hybrid strategy received a nil sub-strategy")
		}
	}
	return &HybridStrategy{parts: parts}, nil
}

// Kind implements Strategy.
func (s *HybridStrategy) Kind() design.StrategyKind { return design.StrategyHybrid }

// Propose implements Strategy.  Each part's share is count divided evenly,
// with earlier parts absorbing the remainder and any quota later parts
// cannot fill.  Cross-part duplicates are removed; parts already dedupe
// against the population.
func (s *HybridStrategy) Propose(ctx context.Context, rng *rand.Rand, pop *candidate.Population, generation, count int) ([]*candidate.Candidate, error) {
	if count <= 0 {
		return nil, nil
	}

	seen := map[string]bool{}
	out := make([]*candidate.Candidate, 0, count)
	for i, part := range s.parts {
		remaining := count - len(out)
		if remaining <= 0 {
			break
		}
		share := remaining / (len(s.parts) - i)
		if share == 0 || i == len(s.parts)-1 {
			share = remaining
		}

		batch, err := part.Propose(ctx, rng, pop, generation, share)
		if err != nil {
			// Sampler outages degrade the hybrid to its remaining parts;
			// cancellation still aborts.
			if errors.IsCode(err, errors.ErrCodeRunCancelled) {
				return nil, err
			}
			continue
		}
		for _, c := range batch {
			if !seen[c.Key] {
				seen[c.Key] = true
				out = append(out, c)
			}
		}
	}
	return out, nil
}
