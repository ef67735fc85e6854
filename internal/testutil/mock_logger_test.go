package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
)

func TestMockLoggerRecords(t *testing.T) {
	m := NewMockLogger()

	m.Info("run started", logging.String("run_id", "r1"))
	m.Warn("oracle slow")
	m.Error("oracle unavailable")

	entries := m.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "run started", entries[0].Message)
	require.Len(t, entries[0].Fields, 1)
	assert.Equal(t, "run_id", entries[0].Fields[0].Key)

	assert.True(t, m.HasEntry("warn", "oracle slow"))
	assert.False(t, m.HasEntry("info", "oracle slow"))
	assert.Equal(t, 1, m.CountLevel("error"))

	m.Clear()
	assert.Empty(t, m.Entries())
}

func TestMockLoggerChaining(t *testing.T) {
	m := NewMockLogger()
	m.With(logging.Int("gen", 1)).Named("controller").Info("selected")
	assert.True(t, m.HasEntry("info", "selected"))
}

func TestMockLoggerConcurrent(t *testing.T) {
	m := NewMockLogger()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Info("tick")
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, m.CountLevel("info"))
}
