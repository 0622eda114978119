package analyzer

import (
	"fmt"

	"github.com/cinar/indicator/v2/trend"
	"github.com/cryptofunk/backtestcore/pkg/backtest/candles"
)

// computeEMA derives direction from the current close's position relative to
// the EMA, grounded on internal/indicators/ema.go's bullish/bearish/neutral
// trend classification.
func computeEMA(window []candles.Candle, cfg Config) (Signal, error) {
	period := cfg.Period
	if period <= 0 {
		period = 20
	}
	prices := closes(window)
	if len(prices) < period+1 {
		return Signal{}, fmt.Errorf("ema: need at least %d candles, got %d", period+1, len(prices))
	}

	in := make(chan float64, len(prices))
	for _, p := range prices {
		in <- p
	}
	close(in)

	values := collect(trend.NewEmaWithPeriod[float64](period).Compute(in))
	if len(values) == 0 {
		return Signal{}, fmt.Errorf("ema: no values computed")
	}

	currentEMA := values[len(values)-1]
	currentPrice := prices[len(prices)-1]

	dir := Hold
	deltaPct := pctDelta(currentPrice, currentEMA)
	switch {
	case currentPrice > currentEMA:
		dir = Long
	case currentPrice < currentEMA:
		dir = Short
	}

	return Signal{
		Source:     KindEMA,
		Direction:  dir,
		Confidence: confidenceFromDelta(deltaPct),
		Weight:     cfg.Weight,
		Priority:   cfg.Priority,
	}, nil
}

// collect drains a cinar/indicator output channel into a slice.
func collect(ch <-chan float64) []float64 {
	var out []float64
	for v := range ch {
		out = append(out, v)
	}
	return out
}

func pctDelta(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return (a - b) / b * 100
}

// confidenceFromDelta maps a percentage deviation to 0..100, saturating at
// a 2% move away from the reference line.
func confidenceFromDelta(deltaPct float64) float64 {
	abs := deltaPct
	if abs < 0 {
		abs = -abs
	}
	const saturationPct = 2.0
	conf := abs / saturationPct * 100
	if conf > 100 {
		conf = 100
	}
	return conf
}
