package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 24, cfg.Analysis.MinObservations)
	assert.Equal(t, 12, cfg.Analysis.SeasonalPeriod)
	assert.Contains(t, cfg.EStat.BaseURL, "e-stat.go.jp")
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero port", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "port too large", mutate: func(c *Config) { c.Server.Port = 70000 }},
		{name: "empty base URL", mutate: func(c *Config) { c.EStat.BaseURL = "" }},
		{name: "zero min observations", mutate: func(c *Config) { c.Analysis.MinObservations = 0 }},
		{name: "zero default horizon", mutate: func(c *Config) { c.Analysis.DefaultHorizon = 0 }},
		{name: "zero search slots", mutate: func(c *Config) { c.Analysis.MaxConcurrentSearches = 0 }},
		{name: "seasonal period one", mutate: func(c *Config) { c.Analysis.SeasonalPeriod = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MACROLINK_SERVER_PORT", "9090")
	t.Setenv("MACROLINK_ESTAT_APP_ID", "env-app-id")
	t.Setenv("MACROLINK_ANALYSIS_DEFAULT_HORIZON", "6")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "env-app-id", cfg.EStat.AppID)
	assert.Equal(t, 6, cfg.Analysis.DefaultHorizon)
}
