package strategy

import (
	"context"
	"math/rand"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// SampleRequest describes one batch draw from an external generative model.
// Template is the best known sequence with positions to regenerate replaced
// by MaskSymbol; Forbidden lists residues the model must not emit.
type SampleRequest struct {
	Template  string   `json:"template"`
	Count     int      `json:"count"`
	Forbidden []string `json:"forbidden,omitempty"`
	Seed      int64    `json:"seed"`
}

// MaskSymbol marks template positions the model should regenerate.
const MaskSymbol = '_'

// Sampler is the external generative-model boundary.  Implementations wrap a
// masked-language-model serving endpoint; the core only sees raw payloads it
// canonicalizes itself.
type Sampler interface {
	Sample(ctx context.Context, req SampleRequest) ([]string, error)
}

// NoveltyFilter screens sampled sequences against an embedding store,
// dropping those too close to designs already evaluated.  A nil filter
// admits everything.
type NoveltyFilter interface {
	// FilterNovel returns the subset of sequences considered novel.
	FilterNovel(ctx context.Context, sequences []string) ([]string, error)
}

// ModelSampledStrategy proposes candidates by masking a fraction of the best
// viable design and asking a generative model to fill the masked positions.
type ModelSampledStrategy struct {
	sampler   Sampler
	filter    NoveltyFilter
	maskRate  float64
	forbidden []string
	direction design.FitnessDirection
	logger    logging.Logger
}

// NewModelSampled constructs a ModelSampledStrategy.  maskRate is the
// fraction of template positions masked per draw.
func NewModelSampled(sampler Sampler, filter NoveltyFilter, maskRate float64, forbidden []string, dir design.FitnessDirection, log logging.Logger) (*ModelSampledStrategy, error) {
	if sampler == nil {
		return nil, errors.New(errors.ErrCodeSamplerUnavailable, "model-sampled strategy requires a sampler")
	}
	if maskRate <= 0 || maskRate >= 1 {
		return nil, errors.New(errors.ErrCodeValidation, "mask rate must be in (0, 1)")
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ModelSampledStrategy{
		sampler:   sampler,
		filter:    filter,
		maskRate:  maskRate,
		forbidden: forbidden,
		direction: dir,
		logger:    log.Named("sampler"),
	}, nil
}

// Kind implements Strategy.
func (s *ModelSampledStrategy) Kind() design.StrategyKind { return design.StrategyModelSampled }

// Propose implements Strategy.  Sequences the model returns that fail
// canonicalisation (stray symbols, emptied template) are dropped, not
// surfaced: model misbehaviour must not kill the run.
func (s *ModelSampledStrategy) Propose(ctx context.Context, rng *rand.Rand, pop *candidate.Population, generation, count int) ([]*candidate.Candidate, error) {
	best, ok := pop.Best(s.direction)
	if !ok || count <= 0 {
		return nil, nil
	}

	req := SampleRequest{
		Template:  s.maskTemplate(rng, best.Candidate.Sequence),
		Count:     count,
		Forbidden: s.forbidden,
		Seed:      rng.Int63(),
	}

	sequences, err := s.sampler.Sample(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(err, errors.ErrCodeRunCancelled, "proposal interrupted")
		}
		return nil, errors.Wrap(err, errors.ErrCodeSamplerUnavailable, "generative model sampling failed")
	}

	if s.filter != nil && len(sequences) > 0 {
		filtered, err := s.filter.FilterNovel(ctx, sequences)
		if err != nil {
			// The novelty filter is an optimisation, not a gate.
			s.logger.Warn("novelty filter unavailable, admitting all samples", logging.Err(err))
		} else {
			sequences = filtered
		}
	}

	seen := dedupe{}
	out := make([]*candidate.Candidate, 0, count)
	for _, seq := range sequences {
		if len(out) >= count {
			break
		}
		child, err := candidate.New(seq, candidate.NewLineage(generation, best.Candidate.Key), nil)
		if err != nil {
			s.logger.Debug("dropping malformed model sample", logging.Err(err))
			continue
		}
		if seen.add(pop, child) {
			out = append(out, child)
		}
	}
	return out, nil
}

// maskTemplate replaces a maskRate fraction of positions with MaskSymbol,
// always masking at least one position.
func (s *ModelSampledStrategy) maskTemplate(rng *rand.Rand, seq string) string {
	residues := []rune(seq)
	masked := 0
	for i := range residues {
		if rng.Float64() < s.maskRate {
			residues[i] = MaskSymbol
			masked++
		}
	}
	if masked == 0 {
		residues[rng.Intn(len(residues))] = MaskSymbol
	}
	return string(residues)
}
