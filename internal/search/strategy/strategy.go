// Package strategy implements the proposal strategies that generate new
// candidates from the current population.  The controller is agnostic to the
// active variant; all variants are deterministic for a given RNG state and
// deduplicate their own output.
package strategy

import (
	"context"
	"math/rand"
	"strings"

	"github.com/helixforge/helixforge/internal/domain/candidate"
	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// Strategy proposes new candidates from the current population.
//
// Propose returns at most count candidates, internally deduplicated by
// canonical key.  Returning fewer than count, or none at all, is legal and
// signals the strategy is running out of novel material; the controller
// treats an empty batch as convergence.  All randomness comes from the rng
// argument, which the controller derives from the run seed and generation
// index; no hidden global state, so runs reproduce from a seed and a
// restored run resumes on the exact sequence a continuous run would have
// drawn.
type Strategy interface {
	Kind() design.StrategyKind
	Propose(ctx context.Context, rng *rand.Rand, pop *candidate.Population, generation, count int) ([]*candidate.Candidate, error)
}

// maxAttemptsPerCandidate bounds the retry loop when mutations keep landing
// on keys already proposed; beyond it the strategy gives up on the slot.
const maxAttemptsPerCandidate = 16

// substitutionAlphabet returns the residue alphabet minus forbidden symbols
// and the X wildcard (strategies propose concrete designs).
func substitutionAlphabet(forbidden []string) ([]rune, error) {
	banned := map[rune]bool{'X': true}
	for _, f := range forbidden {
		for _, r := range strings.ToUpper(f) {
			banned[r] = true
		}
	}

	var out []rune
	for _, r := range candidate.Alphabet() {
		if !banned[r] {
			out = append(out, r)
		}
	}
	if len(out) < 2 {
		return nil, errors.New(errors.ErrCodeValidation,
			"forbidden residue set leaves fewer than two substitution symbols")
	}
	return out, nil
}

// viableParents returns the members eligible to act as parents, best first.
// Strategies draw parents from this pool so failed candidates never breed.
func viableParents(pop *candidate.Population, dir design.FitnessDirection) []candidate.Member {
	var out []candidate.Member
	for _, m := range pop.Ranked(dir) {
		if m.Score.Usable() {
			out = append(out, m)
		}
	}
	return out
}

// pickParent samples a parent with rank-biased probability: index drawn as
// the minimum of two uniform draws, favoring the front of the ranking while
// keeping the tail reachable.
func pickParent(rng *rand.Rand, parents []candidate.Member) candidate.Member {
	a, b := rng.Intn(len(parents)), rng.Intn(len(parents))
	if b < a {
		a = b
	}
	return parents[a]
}

// dedupe tracks canonical keys proposed within one Propose call.
type dedupe map[string]bool

// add records the candidate's key, reporting whether it was novel to this
// batch and absent from the population.
func (d dedupe) add(pop *candidate.Population, c *candidate.Candidate) bool {
	if d[c.Key] || pop.Contains(c.Key) {
		return false
	}
	d[c.Key] = true
	return true
}
