package design

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreStatus_IsValid(t *testing.T) {
	tests := []struct {
		s    ScoreStatus
		want bool
	}{
		{ScoreSuccess, true},
		{ScoreFailed, true},
		{ScoreTimedOut, true},
		{ScoreStatus("PENDING"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.s), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s.IsValid())
		})
	}
}

func TestFitnessDirection_Better(t *testing.T) {
	assert.True(t, Minimize.Better(-9.2, -7.1))
	assert.False(t, Minimize.Better(-7.1, -9.2))
	assert.True(t, Maximize.Better(0.9, 0.3))
	assert.False(t, Maximize.Better(0.3, 0.9))
}

func TestParseFitnessDirection(t *testing.T) {
	d, err := ParseFitnessDirection("minimize")
	assert.NoError(t, err)
	assert.Equal(t, Minimize, d)

	_, err = ParseFitnessDirection("sideways")
	assert.Error(t, err)
}

func TestRunState_Terminal(t *testing.T) {
	tests := []struct {
		s    RunState
		want bool
	}{
		{RunStateInitialized, false},
		{RunStateRunning, false},
		{RunStateConverged, true},
		{RunStateBudgetExhausted, true},
		{RunStateFailed, true},
		{RunStateCancelled, true},
		{RunStateTerminated, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.s), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s.Terminal())
		})
	}
}

func TestParseSelectionPolicy(t *testing.T) {
	p, err := ParseSelectionPolicy("elitist")
	assert.NoError(t, err)
	assert.Equal(t, SelectElitist, p)

	_, err = ParseSelectionPolicy("roulette")
	assert.Error(t, err)
}

func TestParseStrategyKind(t *testing.T) {
	k, err := ParseStrategyKind("model_sampled")
	assert.NoError(t, err)
	assert.Equal(t, StrategyModelSampled, k)

	_, err = ParseStrategyKind("annealing")
	assert.Error(t, err)
}
