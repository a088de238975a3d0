package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("ANALYSIS_CONCURRENCY", "")
	t.Setenv("ANALYSIS_RUN_ONCE", "")

	cfg := LoadFromEnv()
	assert.Equal(t, 8, cfg.Analysis.Concurrency)
	assert.Equal(t, 24, cfg.Analysis.IntervalHours)
	assert.False(t, cfg.Analysis.RunOnce)
	assert.Equal(t, 30, cfg.Analysis.BaselineWindowDays)
	assert.Equal(t, 2*time.Minute, cfg.Analysis.UserTimeout())
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("ANALYSIS_CONCURRENCY", "16")
	t.Setenv("ANALYSIS_RUN_ONCE", "true")
	t.Setenv("ANALYSIS_USER_TIMEOUT_SECONDS", "0")
	t.Setenv("ANALYSIS_BASELINE_WINDOW_DAYS", "not-a-number")
	t.Setenv("METRICS_ADDR", ":9191")

	cfg := LoadFromEnv()
	assert.Equal(t, 16, cfg.Analysis.Concurrency)
	assert.True(t, cfg.Analysis.RunOnce)
	assert.Equal(t, time.Duration(0), cfg.Analysis.UserTimeout())
	assert.Equal(t, 30, cfg.Analysis.BaselineWindowDays, "unparsable values fall back to the default")
	assert.Equal(t, ":9191", cfg.MetricsAddr)
}

func TestTargetDate(t *testing.T) {
	now := time.Date(2024, 6, 15, 22, 30, 0, 0, time.FixedZone("PDT", -7*3600))

	d, err := AnalysisConfig{}.TargetDate(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), d)

	d, err = AnalysisConfig{Date: "2024-01-02"}.TargetDate(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), d)

	_, err = AnalysisConfig{Date: "02/01/2024"}.TargetDate(now)
	assert.Error(t, err)
}
