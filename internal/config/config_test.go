package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSchedulerConfig_DefaultsWhenUnset(t *testing.T) {
	cfg, err := LoadSchedulerConfig()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, 14, cfg.PlanningHorizonDays)
	assert.Equal(t, 5*60, cfg.MinTravelFloorSec)
	assert.False(t, cfg.IsProduction())
}

func TestLoadSchedulerConfig_EnvOverridesDefault(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("PLANNING_HORIZON_DAYS", "30")
	t.Setenv("SOLVER_TIMEOUT", "10s")

	cfg, err := LoadSchedulerConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 30, cfg.PlanningHorizonDays)
	assert.Equal(t, 10*time.Second, cfg.SolverTimeout)
}

func TestLoadSchedulerConfig_RejectsNonPositiveHorizon(t *testing.T) {
	t.Setenv("PLANNING_HORIZON_DAYS", "0")
	_, err := LoadSchedulerConfig()
	require.Error(t, err)
}

func TestLoadSchedulerConfig_BlankSolverBaseURLFallsBackToDefault(t *testing.T) {
	t.Setenv("SOLVER_BASE_URL", "")
	cfg, err := LoadSchedulerConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.SolverBaseURL, "blank env var falls back to default, not empty")
}

func TestLoadSolverConfig_DefaultsWhenUnset(t *testing.T) {
	cfg, err := LoadSolverConfig()
	require.NoError(t, err)
	assert.Equal(t, 8091, cfg.Port)
	assert.Equal(t, 100_000, cfg.BasePenalty)
	assert.Equal(t, 9_999_999, cfg.InfeasibleCost)
	assert.False(t, cfg.SearchLogEnabled)
}

func TestLoadSolverConfig_RejectsNonPositiveWallClockLimit(t *testing.T) {
	t.Setenv("SOLVER_WALL_CLOCK_LIMIT", "0s")
	_, err := LoadSolverConfig()
	require.Error(t, err)
}

func TestLoadSolverConfig_RejectsNonPositivePenalty(t *testing.T) {
	t.Setenv("SOLVER_BASE_PENALTY", "-1")
	_, err := LoadSolverConfig()
	require.Error(t, err)
}

func TestLoadSolverConfig_BoolEnvOverride(t *testing.T) {
	t.Setenv("ORTOOLS_LOG_SEARCH_ENABLED", "true")
	cfg, err := LoadSolverConfig()
	require.NoError(t, err)
	assert.True(t, cfg.SearchLogEnabled)
}
