package candidate

import (
	"fmt"
	"sort"

	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// Member pairs a Candidate with its Score for one generation.
type Member struct {
	Candidate *Candidate `json:"candidate"`
	Score     Score      `json:"score"`
}

// Less reports whether a ranks strictly ahead of b under the given fitness
// direction.  Unusable scores rank behind every usable score; ties on fitness
// are broken by earlier lineage so ordering is deterministic.
func Less(dir design.FitnessDirection, a, b Member) bool {
	au, bu := a.Score.Usable(), b.Score.Usable()
	if au != bu {
		return au
	}
	if !au {
		return a.Candidate.Lineage.OlderThan(b.Candidate.Lineage)
	}
	if a.Score.Fitness != b.Score.Fitness {
		return dir.Better(a.Score.Fitness, b.Score.Fitness)
	}
	return a.Candidate.Lineage.OlderThan(b.Candidate.Lineage)
}

// Population is the ordered collection of scored candidates carried between
// generations.  Size is bounded by capacity and canonical keys are unique
// within it.  Not safe for concurrent mutation; the controller owns it.
type Population struct {
	capacity int
	members  []Member
	index    map[string]int
}

// NewPopulation constructs an empty Population with the given capacity.
func NewPopulation(capacity int) (*Population, error) {
	if capacity <= 0 {
		return nil, errors.New(errors.ErrCodeValidation, "population capacity must be positive").
			WithDetail(fmt.Sprintf("capacity=%d", capacity))
	}
	return &Population{
		capacity: capacity,
		index:    make(map[string]int, capacity),
	}, nil
}

// FromMembers constructs a Population pre-filled with members, e.g. when
// restoring a snapshot or applying a selection result.
func FromMembers(capacity int, members []Member) (*Population, error) {
	p, err := NewPopulation(capacity)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if err := p.Add(m); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Add appends a member.  Duplicate canonical keys and additions beyond
// capacity are rejected.
func (p *Population) Add(m Member) error {
	if m.Candidate == nil {
		return errors.New(errors.ErrCodeCandidateInvalid, "population member has no candidate")
	}
	if _, exists := p.index[m.Candidate.Key]; exists {
		return errors.New(errors.ErrCodeCandidateDuplicate, "canonical key already present in population").
			WithDetail("key=" + m.Candidate.ShortKey())
	}
	if len(p.members) >= p.capacity {
		return errors.New(errors.ErrCodePopulationCapacity, "population is at capacity").
			WithDetail(fmt.Sprintf("capacity=%d", p.capacity))
	}
	p.index[m.Candidate.Key] = len(p.members)
	p.members = append(p.members, m)
	return nil
}

// Len returns the current number of members.
func (p *Population) Len() int { return len(p.members) }

// Capacity returns the configured bound.
func (p *Population) Capacity() int { return p.capacity }

// Contains reports whether the canonical key is present.
func (p *Population) Contains(key string) bool {
	_, ok := p.index[key]
	return ok
}

// Get returns the member holding the canonical key.
func (p *Population) Get(key string) (Member, bool) {
	i, ok := p.index[key]
	if !ok {
		return Member{}, false
	}
	return p.members[i], true
}

// Members returns a copy of the member slice in insertion order.
func (p *Population) Members() []Member {
	out := make([]Member, len(p.members))
	copy(out, p.members)
	return out
}

// Keys returns the canonical keys in insertion order.
func (p *Population) Keys() []string {
	out := make([]string, 0, len(p.members))
	for _, m := range p.members {
		out = append(out, m.Candidate.Key)
	}
	return out
}

// Best returns the highest-ranked member with a usable score under the given
// direction, or false when no member scored SUCCESS.
func (p *Population) Best(dir design.FitnessDirection) (Member, bool) {
	var best Member
	found := false
	for _, m := range p.members {
		if !m.Score.Usable() {
			continue
		}
		if !found || Less(dir, m, best) {
			best = m
			found = true
		}
	}
	return best, found
}

// Ranked returns the members sorted best-first under the given direction,
// using the deterministic lineage tie-break.  The Population itself is not
// reordered.
func (p *Population) Ranked(dir design.FitnessDirection) []Member {
	out := p.Members()
	sort.SliceStable(out, func(i, j int) bool { return Less(dir, out[i], out[j]) })
	return out
}

// ViableCount returns the number of members whose score is usable.
func (p *Population) ViableCount() int {
	n := 0
	for _, m := range p.members {
		if m.Score.Usable() {
			n++
		}
	}
	return n
}
