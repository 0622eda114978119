package analyzer

import (
	"fmt"

	"github.com/cinar/indicator/v2/trend"
	"github.com/cryptofunk/backtestcore/pkg/backtest/candles"
)

// computeTrend derives direction from the EMA's own slope over the window
// rather than from price-vs-EMA distance (computeEMA's job), giving the
// aggregator an independent momentum opinion. Grounded on
// internal/indicators/ema.go's EMA computation, generalized to slope.
func computeTrend(window []candles.Candle, cfg Config) (Signal, error) {
	period := cfg.Period
	if period <= 0 {
		period = 50
	}
	prices := closes(window)
	if len(prices) < period+1 {
		return Signal{}, fmt.Errorf("trend: need at least %d candles, got %d", period+1, len(prices))
	}

	in := make(chan float64, len(prices))
	for _, p := range prices {
		in <- p
	}
	close(in)

	values := collect(trend.NewEmaWithPeriod[float64](period).Compute(in))
	if len(values) < 2 {
		return Signal{}, fmt.Errorf("trend: no values computed")
	}

	current := values[len(values)-1]
	prior := values[0]
	slopePct := pctDelta(current, prior)

	dir := Hold
	switch {
	case slopePct > 0:
		dir = Long
	case slopePct < 0:
		dir = Short
	}

	return Signal{
		Source:     KindTrend,
		Direction:  dir,
		Confidence: confidenceFromDelta(slopePct),
		Weight:     cfg.Weight,
		Priority:   cfg.Priority,
	}, nil
}
