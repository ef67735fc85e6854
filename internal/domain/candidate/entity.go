// Package candidate provides the core domain model for design candidates in
// the HelixForge platform.  A Candidate is one immutable proposed sequence
// design; its canonical key, derived deterministically from the normalized
// sequence, is the identity used for caching and deduplication everywhere in
// the search engine.
package candidate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/helixforge/helixforge/pkg/errors"
	"github.com/helixforge/helixforge/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sequence Normalization
// ─────────────────────────────────────────────────────────────────────────────

// aminoAcids is the accepted residue alphabet: the 20 standard amino acids
// plus X as an unknown-residue wildcard.
const aminoAcids = "ACDEFGHIKLMNPQRSTVWYX"

// gapRunes are alignment padding characters stripped during normalization.
// Sequences sourced from aligned FASTA carry them; they are not part of the
// design identity.
const gapRunes = "-. \t"

// Alphabet returns the accepted residue alphabet.  Proposal strategies draw
// substitutions from it.
func Alphabet() string { return aminoAcids }

// IsResidue reports whether r is an accepted residue symbol.
func IsResidue(r rune) bool { return residueSet[r] }

var residueSet = func() map[rune]bool {
	set := make(map[rune]bool, len(aminoAcids))
	for _, r := range aminoAcids {
		set[r] = true
	}
	return set
}()

// NormalizeSequence converts a raw sequence payload to its canonical form:
// uppercase with alignment gaps and surrounding whitespace removed.  Returns
// ErrCodeCandidateInvalid when the result is empty or contains a symbol
// outside the residue alphabet.
func NormalizeSequence(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw))

	for _, r := range strings.ToUpper(raw) {
		if strings.ContainsRune(gapRunes, r) || r == '\n' || r == '\r' {
			continue
		}
		if !residueSet[r] {
			return "", errors.New(errors.ErrCodeCandidateInvalid,
				"sequence contains a symbol outside the residue alphabet").
				WithDetail(fmt.Sprintf("symbol=%q", r))
		}
		b.WriteRune(r)
	}

	if b.Len() == 0 {
		return "", errors.New(errors.ErrCodeCandidateInvalid, "sequence is empty after normalization")
	}
	return b.String(), nil
}

// Canonicalize derives the canonical key for a raw sequence payload.  The
// function is pure and deterministic: payloads with identical normalized
// content yield identical keys regardless of construction order, casing, or
// gap placement.
func Canonicalize(raw string) (string, error) {
	seq, err := NormalizeSequence(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(seq))
	return hex.EncodeToString(sum[:]), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Lineage
// ─────────────────────────────────────────────────────────────────────────────

// Lineage records which generation and parent produced a candidate.  It is
// the deterministic tie-breaker in selection: older candidates are preferred,
// biasing the search toward exploitation of proven regions.
type Lineage struct {
	// Generation is the generation index at which the candidate was proposed;
	// seeds carry generation 0.
	Generation int `json:"generation"`

	// ID uniquely identifies this candidate within the run.
	ID string `json:"id"`

	// ParentKey is the canonical key of the candidate this one was derived
	// from; empty for seeds and model-sampled candidates without a parent.
	ParentKey string `json:"parent_key,omitempty"`
}

// NewLineage constructs a Lineage with a fresh unique id.
func NewLineage(generation int, parentKey string) Lineage {
	return Lineage{
		Generation: generation,
		ID:         common.NewID().String(),
		ParentKey:  parentKey,
	}
}

// OlderThan reports whether l precedes other in lineage order: an earlier
// generation wins, then the lexically smaller id.  Total and deterministic
// for distinct ids.
func (l Lineage) OlderThan(other Lineage) bool {
	if l.Generation != other.Generation {
		return l.Generation < other.Generation
	}
	return l.ID < other.ID
}

// ─────────────────────────────────────────────────────────────────────────────
// Candidate
// ─────────────────────────────────────────────────────────────────────────────

// Candidate is one immutable design point.  Sequence is the normalized
// payload; Key is its content-derived canonical identity.  Two candidates
// with equal keys are the same design for caching and deduplication, even
// when constructed independently.
type Candidate struct {
	// Sequence is the normalized residue string.
	Sequence string `json:"sequence"`

	// Raw preserves the payload as submitted, before normalization.
	Raw string `json:"raw,omitempty"`

	// Key is the canonical content-derived identifier.
	Key string `json:"key"`

	// Lineage records provenance and drives the selection tie-break.
	Lineage Lineage `json:"lineage"`

	// Metadata carries payload fields opaque to the search core, e.g. the
	// receptor target or sampler annotations.
	Metadata common.Metadata `json:"metadata,omitempty"`
}

// New constructs a Candidate from a raw sequence payload, normalizing it and
// deriving its canonical key.  Returns ErrCodeCandidateInvalid for malformed
// payloads; such failures are local and never retried.
func New(raw string, lineage Lineage, metadata common.Metadata) (*Candidate, error) {
	seq, err := NormalizeSequence(raw)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(seq))

	return &Candidate{
		Sequence: seq,
		Raw:      raw,
		Key:      hex.EncodeToString(sum[:]),
		Lineage:  lineage,
		Metadata: metadata,
	}, nil
}

// MustNew is New for payloads known to be valid, e.g. test fixtures and
// sequences already normalized by a prior run.  Panics on invalid input.
func MustNew(raw string, lineage Lineage) *Candidate {
	c, err := New(raw, lineage, nil)
	if err != nil {
		panic(err)
	}
	return c
}

// ShortKey returns a truncated key for log lines and reports.
func (c *Candidate) ShortKey() string {
	if len(c.Key) <= 12 {
		return c.Key
	}
	return c.Key[:12]
}
