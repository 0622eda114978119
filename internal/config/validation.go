package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation (spec.md §6's
// ambient config layer), grounded on the teacher's per-section
// validate*() aggregation pattern.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	errs = append(errs, c.validateCandleStore()...)
	errs = append(errs, c.validateBacktest()...)
	errs = append(errs, c.validateOptimization()...)
	return errs
}

func (c *Config) validateCandleStore() ValidationErrors {
	var errs ValidationErrors
	switch c.CandleStore.Kind {
	case "json", "columnar":
	default:
		errs = append(errs, ValidationError{
			Field:   "candle_store.kind",
			Message: fmt.Sprintf("must be \"json\" or \"columnar\", got %q", c.CandleStore.Kind),
		})
	}
	if c.CandleStore.Path == "" {
		errs = append(errs, ValidationError{Field: "candle_store.path", Message: "is required"})
	}
	return errs
}

func (c *Config) validateBacktest() ValidationErrors {
	var errs ValidationErrors
	if c.Backtest.InitialBalance <= 0 {
		errs = append(errs, ValidationError{Field: "backtest.initial_balance", Message: "must be > 0"})
	}
	if c.Backtest.MaxOpenPositions <= 0 {
		errs = append(errs, ValidationError{Field: "backtest.max_open_positions", Message: "must be > 0"})
	}
	if c.Backtest.ChunkSize <= 0 {
		errs = append(errs, ValidationError{Field: "backtest.chunk_size", Message: "must be > 0"})
	}
	if c.Backtest.LookbackBars < 0 {
		errs = append(errs, ValidationError{Field: "backtest.lookback_bars", Message: "must be >= 0"})
	}
	if c.Backtest.Workers < 0 {
		errs = append(errs, ValidationError{Field: "backtest.workers", Message: "must be >= 0"})
	}
	return errs
}

func (c *Config) validateOptimization() ValidationErrors {
	var errs ValidationErrors
	switch c.Optimization.Method {
	case "grid", "random":
	default:
		errs = append(errs, ValidationError{
			Field:   "optimization.method",
			Message: fmt.Sprintf("must be \"grid\" or \"random\", got %q", c.Optimization.Method),
		})
	}
	switch c.Optimization.Metric {
	case "sharpe", "profitFactor", "winRate":
	default:
		errs = append(errs, ValidationError{
			Field:   "optimization.metric",
			Message: fmt.Sprintf("must be \"sharpe\", \"profitFactor\", or \"winRate\", got %q", c.Optimization.Metric),
		})
	}
	if c.Optimization.MaxCombinations <= 0 {
		errs = append(errs, ValidationError{Field: "optimization.max_combinations", Message: "must be > 0"})
	}
	if c.Optimization.DetectionThreshold <= 0 || c.Optimization.DetectionThreshold > 1 {
		errs = append(errs, ValidationError{Field: "optimization.detection_threshold", Message: "must be in (0, 1]"})
	}
	return errs
}
