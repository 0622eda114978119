package analyzer

import (
	"fmt"

	"github.com/cryptofunk/backtestcore/pkg/backtest/candles"
)

// FailureMode controls how the set reacts to one analyzer erroring out
// (insufficient candles or a computation failure).
type FailureMode string

const (
	// Lenient drops the failing analyzer's vote and continues, subject to
	// MinReadyAnalyzers still being satisfied.
	Lenient FailureMode = "lenient"
	// Strict aborts the whole bar the moment one enabled analyzer fails.
	Strict FailureMode = "strict"
)

// SetConfig configures one strategy's analyzer set.
type SetConfig struct {
	Analyzers         []Config
	FailureMode       FailureMode
	MinReadyAnalyzers int
}

// ErrNotEnoughReady is returned when fewer than MinReadyAnalyzers produced a
// signal for the bar.
type ErrNotEnoughReady struct {
	Ready, Required int
}

func (e *ErrNotEnoughReady) Error() string {
	return fmt.Sprintf("analyzer: only %d of %d required analyzers ready", e.Ready, e.Required)
}

// Run evaluates every enabled analyzer in cfg against window, per spec.md
// §4.3: an analyzer whose MinCandlesRequired exceeds len(window) is skipped
// rather than treated as a failure; any other computation error is handled
// per cfg.FailureMode.
func Run(window []candles.Candle, cfg SetConfig) ([]Signal, error) {
	minReady := cfg.MinReadyAnalyzers
	if minReady <= 0 {
		minReady = 1
	}

	signals := make([]Signal, 0, len(cfg.Analyzers))
	for _, ac := range cfg.Analyzers {
		if !ac.Enabled {
			continue
		}

		need, err := MinCandlesRequired(ac)
		if err != nil {
			return nil, err
		}
		if len(window) < need {
			continue
		}

		sig, err := Compute(window, ac)
		if err != nil {
			if cfg.FailureMode == Strict {
				return nil, fmt.Errorf("analyzer %s: %w", ac.Kind, err)
			}
			continue
		}
		signals = append(signals, sig)
	}

	if len(signals) < minReady {
		return signals, &ErrNotEnoughReady{Ready: len(signals), Required: minReady}
	}
	return signals, nil
}
