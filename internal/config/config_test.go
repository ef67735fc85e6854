package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a Config that passes Validate after ApplyDefaults.
func validConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)
	assert.Equal(t, DefaultOracleEngine, cfg.Oracle.Engine)
	assert.Equal(t, "minimize", cfg.Search.FitnessDirection)
	assert.Equal(t, "top_k", cfg.Search.SelectionPolicy)
	assert.Equal(t, 2*time.Minute, cfg.Oracle.Timeout)
	assert.Equal(t, []string{"stdout"}, cfg.Log.OutputPaths)
}

func TestApplyDefaults_ExplicitValuesWin(t *testing.T) {
	cfg := &Config{}
	cfg.Search.BatchSize = 7
	cfg.Oracle.Engine = "mock"
	ApplyDefaults(cfg)

	assert.Equal(t, 7, cfg.Search.BatchSize)
	assert.Equal(t, "mock", cfg.Oracle.Engine)
}

func TestApplyDefaults_NilSafe(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad_port", func(c *Config) { c.Server.Port = 0 }},
		{"bad_mode", func(c *Config) { c.Server.Mode = "staging" }},
		{"zero_batch", func(c *Config) { c.Search.BatchSize = 0 }},
		{"min_viable_over_capacity", func(c *Config) { c.Search.MinViableSize = c.Search.PopulationCapacity + 1 }},
		{"no_budget", func(c *Config) {
			c.Search.BudgetEvaluations = 0
			c.Search.BudgetWallClock = 0
		}},
		{"bad_direction", func(c *Config) { c.Search.FitnessDirection = "sideways" }},
		{"bad_selection", func(c *Config) { c.Search.SelectionPolicy = "roulette" }},
		{"bad_elite_fraction", func(c *Config) {
			c.Search.SelectionPolicy = "elitist"
			c.Search.EliteFraction = 1.5
		}},
		{"bad_strategy", func(c *Config) { c.Search.Strategy = "annealing" }},
		{"bad_mutation_rate", func(c *Config) { c.Search.MutationRate = 1.2 }},
		{"zero_oracle_timeout", func(c *Config) { c.Oracle.Timeout = 0 }},
		{"bad_engine", func(c *Config) { c.Oracle.Engine = "glide" }},
		{"bad_log_level", func(c *Config) { c.Log.Level = "trace" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
