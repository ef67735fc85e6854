package oracle

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/helixforge/helixforge/internal/domain/candidate"
)

// MockInvoker is a deterministic in-process oracle for local development and
// tests (engine "mock").  By default it derives a pseudo-fitness from the
// canonical key, so identical candidates always score identically; a custom
// ScoreFunc overrides it.
type MockInvoker struct {
	// ScoreFunc, when set, fully replaces the default scoring.
	ScoreFunc func(ctx context.Context, c *candidate.Candidate) (float64, json.RawMessage, error)
}

// NewMockInvoker constructs a MockInvoker with the default key-derived score.
func NewMockInvoker() *MockInvoker { return &MockInvoker{} }

// Engine implements Invoker.
func (m *MockInvoker) Engine() string { return "mock" }

// Invoke implements Invoker.  The default score maps the key's leading bytes
// onto [-12, 0), mimicking a Vina affinity range.
func (m *MockInvoker) Invoke(ctx context.Context, c *candidate.Candidate) (float64, json.RawMessage, error) {
	if m.ScoreFunc != nil {
		return m.ScoreFunc(ctx, c)
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	var buf [8]byte
	copy(buf[:], c.Key)
	v := binary.BigEndian.Uint64(buf[:])
	fitness := -12.0 * float64(v%10000) / 10000.0
	return fitness, nil, nil
}
