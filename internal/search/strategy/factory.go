package strategy

import (
	"strings"

	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// splitResidues parses the configured forbidden-residue list, e.g. "C,K".
func splitResidues(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// New builds the configured strategy variant.  sampler and filter are only
// required for the model_sampled and hybrid variants; pass nil otherwise.
// The mutation rate doubles as the model strategy's template mask rate.
func New(cfg *config.SearchConfig, sampler Sampler, filter NoveltyFilter, log logging.Logger) (Strategy, error) {
	kind, err := design.ParseStrategyKind(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	dir, err := design.ParseFitnessDirection(cfg.FitnessDirection)
	if err != nil {
		return nil, err
	}
	forbidden := splitResidues(cfg.ForbiddenResidues)

	switch kind {
	case design.StrategyMutation:
		return NewMutation(cfg.MutationRate, forbidden, dir)

	case design.StrategyCrossover:
		return NewCrossover(dir)

	case design.StrategyModelSampled:
		return NewModelSampled(sampler, filter, cfg.MutationRate, forbidden, dir, log)

	case design.StrategyHybrid:
		mutation, err := NewMutation(cfg.MutationRate, forbidden, dir)
		if err != nil {
			return nil, err
		}
		crossover, err := NewCrossover(dir)
		if err != nil {
			return nil, err
		}
		parts := []Strategy{}
		if sampler != nil {
			model, err := NewModelSampled(sampler, filter, cfg.MutationRate, forbidden, dir, log)
			if err != nil {
				return nil, err
			}
			parts = append(parts, model)
		}
		parts = append(parts, crossover, mutation)
		return NewHybrid(parts...)

	default:
		return nil, errors.New(errors.ErrCodeStrategyUnsupported, "unsupported proposal strategy: "+cfg.Strategy)
	}
}
