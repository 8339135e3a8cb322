package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "USD", cfg.Mapping.DefaultCurrency)
	assert.Equal(t, 0.6, cfg.Review.ConfidenceThreshold)
	assert.Equal(t, 72, cfg.Review.ItemTTLHours)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrentSources)
	assert.Contains(t, cfg.Ingest.SupportedEncodings, "utf-8")
	assert.Contains(t, cfg.Transform.DateFormats, "2006-01-02")
	assert.Contains(t, cfg.Quality.NegativeMetrics, "refunds")
	assert.True(t, cfg.Output.WriteCSV)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HARMONIZE_STORE_DRIVER", "postgres")
	t.Setenv("HARMONIZE_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shouting", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
