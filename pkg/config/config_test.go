package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseengine/pulse/pkg/errors"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Engine.CycleInterval)
	assert.Equal(t, 8, cfg.Engine.MaxInFlight)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 15*time.Minute, cfg.Cache.FastTTL)
	assert.Equal(t, 6*time.Hour, cfg.Cache.SlowTTL)
	assert.Equal(t, 10, cfg.Relations.TopK)
	assert.Equal(t, "20000", cfg.Health.CriticalFundingGap.String())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ENGINE_CYCLE_INTERVAL", "1m")
	t.Setenv("RELATIONS_MIN_SCORE", "0.5")
	t.Setenv("HEALTH_CRITICAL_FUNDING_GAP", "5000.50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Engine.CycleInterval)
	assert.Equal(t, 0.5, cfg.Relations.MinScore)
	assert.Equal(t, "5000.5", cfg.Health.CriticalFundingGap.String())
}

func TestValidate_RejectsBadWeights(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "relationship weights not summing to one",
			mutate: func(c *Config) { c.Relations.TagWeight = 0.9 },
		},
		{
			name:   "health weights not summing to one",
			mutate: func(c *Config) { c.Health.FundingWeight = 0.5 },
		},
		{
			name:   "min score out of range",
			mutate: func(c *Config) { c.Relations.MinScore = 1.5 },
		},
		{
			name:   "non-positive top-k",
			mutate: func(c *Config) { c.Relations.TopK = 0 },
		},
		{
			name:   "negative critical funding gap",
			mutate: func(c *Config) { c.Health.CriticalFundingGap = c.Health.CriticalFundingGap.Neg() },
		},
		{
			name:   "non-positive cycle interval",
			mutate: func(c *Config) { c.Engine.CycleInterval = 0 },
		},
		{
			name:   "negative retry count",
			mutate: func(c *Config) { c.Retry.MaxRetries = -1 },
		},
		{
			name:   "zero latency window",
			mutate: func(c *Config) { c.Cache.LatencyWindow = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
		})
	}
}

func TestValidate_AcceptsWeightSumWithinEpsilon(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	// Floating-point weight arithmetic is allowed to be off by epsilon.
	cfg.Health.FundingWeight = 0.25 + WeightEpsilon/2

	assert.NoError(t, cfg.Validate())
}
