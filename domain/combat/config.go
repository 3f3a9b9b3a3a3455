package combat

import (
	"runtime"

	"gocombat/domain/core"
)

// Method selects the empirical-Bayes estimation flavor. Only the
// parametric normal/inverse-gamma prior is implemented.
const MethodParametric = "parametric"

// AdjustMode controls which fitted covariate effects return after adjustment
type AdjustMode string

const (
	// ModePreserveInterest adds interest-covariate effects and the grand
	// mean back after batch correction; nuisance effects stay removed.
	ModePreserveInterest AdjustMode = "preserve-interest"
	// ModeStripAll adds back only the grand mean: interest and nuisance
	// effects are both treated as nuisance.
	ModeStripAll AdjustMode = "strip-all"
)

// Defaults for the fixed-point iteration
const (
	DefaultConvergenceTolerance = 1e-4
	DefaultMaxIterations        = 100
)

// Config carries every knob the harmonizer recognizes
type Config struct {
	Method               string     `json:"method"`
	ConvergenceTolerance float64    `json:"convergence_tolerance"`
	MaxIterations        int        `json:"max_iterations"`
	Mode                 AdjustMode `json:"mode"`
	MaxParallelBatches   int        `json:"max_parallel_batches"`
}

// DefaultConfig returns the parametric configuration with standard tolerances
func DefaultConfig() Config {
	return Config{
		Method:               MethodParametric,
		ConvergenceTolerance: DefaultConvergenceTolerance,
		MaxIterations:        DefaultMaxIterations,
		Mode:                 ModePreserveInterest,
		MaxParallelBatches:   runtime.NumCPU(),
	}
}

// Normalize fills zero values with defaults so a partially specified
// config behaves like DefaultConfig for the fields left unset
func (c *Config) Normalize() {
	if c.Method == "" {
		c.Method = MethodParametric
	}
	if c.ConvergenceTolerance == 0 {
		c.ConvergenceTolerance = DefaultConvergenceTolerance
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.Mode == "" {
		c.Mode = ModePreserveInterest
	}
	if c.MaxParallelBatches == 0 {
		c.MaxParallelBatches = runtime.NumCPU()
	}
}

// Validate rejects unsupported or nonsensical settings
func (c Config) Validate() error {
	if c.Method != MethodParametric {
		return core.NewUnsupportedMethodError(c.Method)
	}
	if c.ConvergenceTolerance <= 0 {
		return core.NewConfigError("convergence_tolerance", "must be positive")
	}
	if c.MaxIterations < 1 {
		return core.NewConfigError("max_iterations", "must be at least 1")
	}
	if c.Mode != ModePreserveInterest && c.Mode != ModeStripAll {
		return core.NewConfigError("mode", "must be preserve-interest or strip-all")
	}
	if c.MaxParallelBatches < 1 {
		return core.NewConfigError("max_parallel_batches", "must be at least 1")
	}
	return nil
}
