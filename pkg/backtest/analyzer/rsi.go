package analyzer

import (
	"fmt"

	"github.com/cinar/indicator/v2/momentum"
	"github.com/cryptofunk/backtestcore/pkg/backtest/candles"
)

// computeRSI derives a mean-reversion opinion from RSI, grounded on
// internal/indicators/rsi.go's oversold (<30) / overbought (>70) bands.
func computeRSI(window []candles.Candle, cfg Config) (Signal, error) {
	period := cfg.Period
	if period <= 0 {
		period = 14
	}
	prices := closes(window)
	if len(prices) < period+1 {
		return Signal{}, fmt.Errorf("rsi: need at least %d candles, got %d", period+1, len(prices))
	}

	in := make(chan float64, len(prices))
	for _, p := range prices {
		in <- p
	}
	close(in)

	values := collect(momentum.NewRsiWithPeriod[float64](period).Compute(in))
	if len(values) == 0 {
		return Signal{}, fmt.Errorf("rsi: no values computed")
	}
	current := values[len(values)-1]

	const oversold, overbought = 30.0, 70.0
	dir := Hold
	var confidence float64
	switch {
	case current < oversold:
		dir = Long
		confidence = (oversold - current) / oversold * 100
	case current > overbought:
		dir = Short
		confidence = (current - overbought) / (100 - overbought) * 100
	}
	if confidence > 100 {
		confidence = 100
	}

	return Signal{
		Source:     KindRSI,
		Direction:  dir,
		Confidence: confidence,
		Weight:     cfg.Weight,
		Priority:   cfg.Priority,
	}, nil
}
