// Package config provides environment-variable-driven configuration for
// both binaries in this repository, following the getEnv/getEnvAsInt/
// getEnvAsBool/getEnvAsDuration + validate() pattern used throughout this
// codebase's config loader.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// SchedulerConfig configures the cmd/scheduler binary: the assignment
// planner and route & time engine, plus their data-access and solver-client
// wiring.
type SchedulerConfig struct {
	Environment string
	Port        int

	DatabaseURL string
	RedisURL    string

	SolverBaseURL          string
	SolverRequestsPerSecond float64
	SolverMaxRetries       int
	SolverTimeout          time.Duration

	PlanningHorizonDays int
	MinTravelFloorSec   int

	LogLevel string
}

// LoadSchedulerConfig builds a SchedulerConfig from the process
// environment, applying the same defaults/validate() shape as the rest of
// this codebase's config loaders.
func LoadSchedulerConfig() (*SchedulerConfig, error) {
	cfg := &SchedulerConfig{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnvAsInt("SCHEDULER_PORT", 8090),

		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/fieldsched?sslmode=disable"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		SolverBaseURL:           getEnv("SOLVER_BASE_URL", "http://localhost:8091"),
		SolverRequestsPerSecond: getEnvAsFloat("SOLVER_REQUESTS_PER_SECOND", 5.0),
		SolverMaxRetries:        getEnvAsInt("SOLVER_MAX_RETRIES", 2),
		SolverTimeout:           getEnvAsDuration("SOLVER_TIMEOUT", 5*time.Second),

		PlanningHorizonDays: getEnvAsInt("PLANNING_HORIZON_DAYS", 14),
		MinTravelFloorSec:   getEnvAsInt("MIN_TRAVEL_FLOOR_SECONDS", 5*60),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *SchedulerConfig) validate() error {
	if c.PlanningHorizonDays <= 0 {
		return fmt.Errorf("PLANNING_HORIZON_DAYS must be positive")
	}
	if c.SolverBaseURL == "" {
		return fmt.Errorf("SOLVER_BASE_URL is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// IsProduction reports whether this is a production deployment.
func (c *SchedulerConfig) IsProduction() bool { return c.Environment == "production" }

// SolverConfig configures the cmd/solver binary: the VRP solver
// microservice's HTTP surface and search tuning.
type SolverConfig struct {
	Environment string
	Port        int

	WallClockLimit       time.Duration
	BasePenalty          int
	InfeasibleCost       int
	SearchLogEnabled     bool

	LogLevel string
}

// LoadSolverConfig builds a SolverConfig from the process environment.
func LoadSolverConfig() (*SolverConfig, error) {
	cfg := &SolverConfig{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnvAsInt("SOLVER_PORT", 8091),

		WallClockLimit:   getEnvAsDuration("SOLVER_WALL_CLOCK_LIMIT", 1*time.Second),
		BasePenalty:      getEnvAsInt("SOLVER_BASE_PENALTY", 100_000),
		InfeasibleCost:   getEnvAsInt("SOLVER_INFEASIBLE_COST", 9_999_999),
		SearchLogEnabled: getEnvAsBool("ORTOOLS_LOG_SEARCH_ENABLED", false),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *SolverConfig) validate() error {
	if c.WallClockLimit <= 0 {
		return fmt.Errorf("SOLVER_WALL_CLOCK_LIMIT must be positive")
	}
	if c.BasePenalty <= 0 || c.InfeasibleCost <= 0 {
		return fmt.Errorf("SOLVER_BASE_PENALTY and SOLVER_INFEASIBLE_COST must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
