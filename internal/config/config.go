// Package config holds the recognized configuration keys for a simulation.
// See design doc Section 6.
package config

import (
	"os"
	"strconv"
)

// Features toggles optional subsystems, one named bool field per feature
// flag.
type Features struct {
	ShockEnabled            bool
	AllowFallbackForMissing bool
}

// Config enumerates every recognized key from design doc Section 6. Values
// are populated with defaults in NewDefault and may be overridden per field
// by the caller (the out-of-scope REST layer owns request-time overrides).
type Config struct {
	TicksPerDay      int     // NewDefault uses 3 (ECON_SIM_TICKS_PER_DAY overrides)
	SimulationDays   int
	GlobalRNGSeed    int64
	ScriptTimeout    float64 // seconds
	ScriptMemoryMB   int
	WorkerPoolSize   int
	WorkerMaxInvocations int
	ScriptExecutionConcurrency int

	Features Features

	// BondCouponFrequencyTicks resolves the open question in design doc
	// Section 9: coupons accrue periodically every N ticks rather than
	// exclusively at day-start or exclusively at redemption. Defaults to
	// TicksPerDay (once per simulated day). See DESIGN.md.
	BondCouponFrequencyTicks int

	ReserveRatio       float64
	ReserveRatioMin    float64
	ReserveRatioMax    float64
	PolicyRateMax      float64

	ScriptLimitPerUser int

	UnemploymentBenefit     float64
	SubsistenceConsumption  float64 // floor on consumption_budget, in goods units
	EducationGain           float64 // education_level gained per tuition-funded study tick

	// ShockMaxFraction bounds the household shock injection module (see
	// internal/logic/shock.go): the largest fraction of a household's cash
	// that its own raw draw in a single tick may move. The mean-correction
	// residual added to the last household is not bounded by it.
	ShockMaxFraction float64
}

// NewDefault returns a Config with the defaults documented in design doc
// Section 6, with environment overrides applied for the values that are
// meaningful to tune per-deployment (mirrors the teacher's practice of
// reading a handful of env vars in cmd/worldsim/main.go).
func NewDefault() Config {
	cfg := Config{
		TicksPerDay:                envInt("ECON_SIM_TICKS_PER_DAY", 3),
		SimulationDays:             envInt("ECON_SIM_SIMULATION_DAYS", 30),
		GlobalRNGSeed:              int64(envInt("ECON_SIM_GLOBAL_SEED", 42)),
		ScriptTimeout:              envFloat("ECON_SIM_SCRIPT_TIMEOUT_SECONDS", 0.75),
		ScriptMemoryMB:             envInt("ECON_SIM_SCRIPT_MEMORY_LIMIT_MB", 256),
		WorkerPoolSize:             envInt("ECON_SIM_WORKER_POOL_SIZE", 8),
		WorkerMaxInvocations:       envInt("ECON_SIM_WORKER_MAX_INVOCATIONS", 200),
		ScriptExecutionConcurrency: envInt("ECON_SIM_SCRIPT_CONCURRENCY", 8),
		Features: Features{
			ShockEnabled:            envBool("ECON_SIM_FEATURE_SHOCK_ENABLED", false),
			AllowFallbackForMissing: envBool("ECON_SIM_ALLOW_FALLBACK_FOR_MISSING", true),
		},
		ReserveRatio:       0.1,
		ReserveRatioMin:    0.05,
		ReserveRatioMax:    0.2,
		PolicyRateMax:      0.4,
		ScriptLimitPerUser: envInt("ECON_SIM_SCRIPT_LIMIT_PER_USER", 25),

		UnemploymentBenefit:    envFloat("ECON_SIM_UNEMPLOYMENT_BENEFIT", 10.0),
		SubsistenceConsumption: envFloat("ECON_SIM_SUBSISTENCE_CONSUMPTION", 3.0),
		EducationGain:          envFloat("ECON_SIM_EDUCATION_GAIN", 0.05),
		ShockMaxFraction:       envFloat("ECON_SIM_SHOCK_MAX_FRACTION", 0.1),
	}
	cfg.BondCouponFrequencyTicks = cfg.TicksPerDay
	return cfg
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
