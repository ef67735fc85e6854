// Package design defines the design-search enumerations and request/response
// structures shared across every layer of the HelixForge platform.  No domain
// logic lives here — only plain data types that are safe to import from any
// layer without creating circular dependencies.
package design

import (
	"github.com/helixforge/helixforge/pkg/errors"
)

// ScoreStatus classifies the outcome of one oracle evaluation.
type ScoreStatus string

const (
	// ScoreSuccess means the oracle returned a usable fitness value.
	ScoreSuccess ScoreStatus = "SUCCESS"

	// ScoreFailed means the oracle rejected the candidate or exhausted its
	// retry budget on transient faults.  The candidate is excluded from
	// selection; the run continues.
	ScoreFailed ScoreStatus = "FAILED"

	// ScoreTimedOut means the evaluation exceeded its wall-clock allowance.
	ScoreTimedOut ScoreStatus = "TIMED_OUT"
)

// IsValid reports whether the status is a known value.
func (s ScoreStatus) IsValid() bool {
	switch s {
	case ScoreSuccess, ScoreFailed, ScoreTimedOut:
		return true
	default:
		return false
	}
}

func (s ScoreStatus) String() string { return string(s) }

// FitnessDirection fixes whether lower or higher fitness values win.
// Docking scores (Vina binding affinity, kcal/mol) are lower-is-better,
// which is the platform default.
type FitnessDirection string

const (
	Minimize FitnessDirection = "minimize"
	Maximize FitnessDirection = "maximize"
)

// IsValid reports whether the direction is a known value.
func (d FitnessDirection) IsValid() bool {
	return d == Minimize || d == Maximize
}

func (d FitnessDirection) String() string { return string(d) }

// Better reports whether fitness a beats fitness b under this direction.
func (d FitnessDirection) Better(a, b float64) bool {
	if d == Maximize {
		return a > b
	}
	return a < b
}

// ParseFitnessDirection parses a string into a FitnessDirection.
func ParseFitnessDirection(s string) (FitnessDirection, error) {
	d := FitnessDirection(s)
	if d.IsValid() {
		return d, nil
	}
	return "", errors.New(errors.ErrCodeValidation, "unsupported fitness direction: "+s)
}

// RunState is the lifecycle state of a search run.
type RunState string

const (
	RunStateInitialized     RunState = "INITIALIZED"
	RunStateRunning         RunState = "RUNNING"
	RunStateConverged       RunState = "CONVERGED"
	RunStateBudgetExhausted RunState = "BUDGET_EXHAUSTED"
	RunStateFailed          RunState = "FAILED"
	RunStateCancelled       RunState = "CANCELLED"
	RunStateTerminated      RunState = "TERMINATED"
)

// IsValid reports whether the state is a known value.
func (s RunState) IsValid() bool {
	switch s {
	case RunStateInitialized, RunStateRunning, RunStateConverged,
		RunStateBudgetExhausted, RunStateFailed, RunStateCancelled,
		RunStateTerminated:
		return true
	default:
		return false
	}
}

// Terminal reports whether the state ends the generation loop.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateConverged, RunStateBudgetExhausted, RunStateFailed,
		RunStateCancelled, RunStateTerminated:
		return true
	default:
		return false
	}
}

func (s RunState) String() string { return string(s) }

// SelectionPolicy picks how survivors are chosen each generation.
type SelectionPolicy string

const (
	// SelectTopK keeps the K best candidates by fitness.
	SelectTopK SelectionPolicy = "top_k"

	// SelectElitist keeps a small elite by fitness and fills the rest of the
	// capacity by seeded stochastic draw from the remainder.
	SelectElitist SelectionPolicy = "elitist"
)

// IsValid reports whether the policy is a known value.
func (p SelectionPolicy) IsValid() bool {
	return p == SelectTopK || p == SelectElitist
}

func (p SelectionPolicy) String() string { return string(p) }

// ParseSelectionPolicy parses a string into a SelectionPolicy.
func ParseSelectionPolicy(s string) (SelectionPolicy, error) {
	p := SelectionPolicy(s)
	if p.IsValid() {
		return p, nil
	}
	return "", errors.New(errors.ErrCodeValidation, "unsupported selection policy: "+s)
}

// StrategyKind identifies a proposal-strategy variant.
type StrategyKind string

const (
	StrategyMutation     StrategyKind = "mutation"
	StrategyCrossover    StrategyKind = "crossover"
	StrategyModelSampled StrategyKind = "model_sampled"
	StrategyHybrid       StrategyKind = "hybrid"
)

// IsValid reports whether the kind is a known value.
func (k StrategyKind) IsValid() bool {
	switch k {
	case StrategyMutation, StrategyCrossover, StrategyModelSampled, StrategyHybrid:
		return true
	default:
		return false
	}
}

func (k StrategyKind) String() string { return string(k) }

// ParseStrategyKind parses a string into a StrategyKind.
func ParseStrategyKind(s string) (StrategyKind, error) {
	k := StrategyKind(s)
	if k.IsValid() {
		return k, nil
	}
	return "", errors.New(errors.ErrCodeStrategyUnsupported, "unsupported proposal strategy: "+s)
}

// GenerationReport is the per-generation summary emitted to the reporting
// boundary.  The core never formats it for presentation.
type GenerationReport struct {
	RunID           string  `json:"run_id"`
	Generation      int     `json:"generation"`
	Proposed        int     `json:"proposed"`
	Novel           int     `json:"novel"`
	CacheHits       int     `json:"cache_hits"`
	CacheMisses     int     `json:"cache_misses"`
	Failures        int     `json:"failures"`
	Timeouts        int     `json:"timeouts"`
	PopulationSize  int     `json:"population_size"`
	BestFitness     float64 `json:"best_fitness"`
	BestKey         string  `json:"best_key"`
	BudgetRemaining int     `json:"budget_remaining"`
	ElapsedMS       int64   `json:"elapsed_ms"`
}

// RunSummary is the terminal report of a finished run.
type RunSummary struct {
	RunID        string   `json:"run_id"`
	State        RunState `json:"state"`
	Generations  int      `json:"generations"`
	Evaluations  int      `json:"evaluations"`
	CacheHits    int      `json:"cache_hits"`
	CacheMisses  int      `json:"cache_misses"`
	Failures     int      `json:"failures"`
	BestKey      string   `json:"best_key"`
	BestFitness  float64  `json:"best_fitness"`
	BestSequence string   `json:"best_sequence"`
}
