package candidate

import (
	"encoding/json"
	"math"
	"time"

	"github.com/helixforge/helixforge/pkg/types/design"
)

// Score is the result of evaluating a Candidate against the oracle.  A Score
// whose status is not SUCCESS never contributes a fitness value to selection.
type Score struct {
	Status design.ScoreStatus `json:"status"`

	// Fitness is meaningful only when Status is SUCCESS.  Direction
	// (lower- or higher-is-better) is fixed by run configuration.
	Fitness float64 `json:"fitness"`

	// Diagnostics is the oracle's opaque payload: pose data on success, the
	// oracle's rejection message on failure.
	Diagnostics json.RawMessage `json:"diagnostics,omitempty"`

	// EvaluatedAt is when the evaluation completed.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Elapsed is the wall-clock cost of the evaluation, retries included.
	Elapsed time.Duration `json:"elapsed"`
}

// Success constructs a usable Score.
func Success(fitness float64, diagnostics json.RawMessage, elapsed time.Duration) Score {
	return Score{
		Status:      design.ScoreSuccess,
		Fitness:     fitness,
		Diagnostics: diagnostics,
		EvaluatedAt: time.Now().UTC(),
		Elapsed:     elapsed,
	}
}

// Failed constructs a Score for a rejected candidate or an exhausted retry
// budget.  The candidate is excluded from selection; the run continues.
func Failed(diagnostics json.RawMessage, elapsed time.Duration) Score {
	return Score{
		Status:      design.ScoreFailed,
		Diagnostics: diagnostics,
		EvaluatedAt: time.Now().UTC(),
		Elapsed:     elapsed,
	}
}

// TimedOut constructs a Score for an evaluation that exceeded its wall-clock
// allowance.
func TimedOut(elapsed time.Duration) Score {
	return Score{
		Status:      design.ScoreTimedOut,
		EvaluatedAt: time.Now().UTC(),
		Elapsed:     elapsed,
	}
}

// Usable reports whether the Score carries a fitness value selection may use.
func (s Score) Usable() bool { return s.Status == design.ScoreSuccess }

// fitnessEpsilon absorbs float formatting round-trips when comparing scores
// that crossed a serialization boundary (redis tier, snapshots).
const fitnessEpsilon = 1e-9

// SameResult reports whether two scores are interchangeable for cache
// idempotence: equal status, and for SUCCESS equal fitness within epsilon.
// Diagnostics are advisory and excluded from the comparison.
func (s Score) SameResult(other Score) bool {
	if s.Status != other.Status {
		return false
	}
	if s.Status != design.ScoreSuccess {
		return true
	}
	return math.Abs(s.Fitness-other.Fitness) <= fitnessEpsilon
}
