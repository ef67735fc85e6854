package controller

import (
	"math/rand"
	"sort"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// selectNext applies the configured selection policy to the merged member
// set and returns the survivors, at most capacity of them.  Only members
// with usable scores survive; FAILED and TIMED_OUT candidates are discarded
// (their scores stay in the cache, so a regenerated candidate is still never
// re-scored).  Ties on fitness resolve to the earlier lineage, so selection
// is deterministic for a given RNG state.
func selectNext(policy design.SelectionPolicy, dir design.FitnessDirection, capacity int, eliteFraction float64, rng *rand.Rand, merged []candidate.Member) []candidate.Member {
	viable := make([]candidate.Member, 0, len(merged))
	seen := make(map[string]struct{}, len(merged))
	for _, m := range merged {
		if !m.Score.Usable() {
			continue
		}
		if _, dup := seen[m.Candidate.Key]; dup {
			continue
		}
		seen[m.Candidate.Key] = struct{}{}
		viable = append(viable, m)
	}
	sort.SliceStable(viable, func(i, j int) bool { return candidate.Less(dir, viable[i], viable[j]) })

	if len(viable) <= capacity {
		return viable
	}

	switch policy {
	case design.SelectElitist:
		return selectElitist(capacity, eliteFraction, rng, viable)
	default:
		return viable[:capacity]
	}
}

// selectElitist keeps the elite head of the ranking outright and fills the
// remaining slots by uniform draw from the rest, preserving diversity that
// pure top-K truncation would squeeze out.
func selectElitist(capacity int, eliteFraction float64, rng *rand.Rand, ranked []candidate.Member) []candidate.Member {
	elite := int(float64(capacity) * eliteFraction)
	if elite < 1 {
		elite = 1
	}
	if elite > capacity {
		elite = capacity
	}

	out := make([]candidate.Member, 0, capacity)
	out = append(out, ranked[:elite]...)

	rest := make([]candidate.Member, len(ranked)-elite)
	copy(rest, ranked[elite:])
	rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	out = append(out, rest[:capacity-elite]...)
	return out
}
