package analyzer

import (
	"fmt"

	"github.com/cinar/indicator/v2/volatility"
	"github.com/cryptofunk/backtestcore/pkg/backtest/candles"
)

// computeBollinger derives a mean-reversion opinion from the close's
// position relative to the bands, grounded on
// internal/indicators/bollinger.go's buy-at-lower / sell-at-upper signal.
// cinar/indicator/v2 fixes the band width at 2 standard deviations; cfg's
// StdDevMult is accepted for config-schema parity but has no effect, same
// as the teacher's library wrapper.
func computeBollinger(window []candles.Candle, cfg Config) (Signal, error) {
	period := cfg.Period
	if period <= 0 {
		period = 20
	}
	prices := closes(window)
	if len(prices) < period+1 {
		return Signal{}, fmt.Errorf("bollinger: need at least %d candles, got %d", period+1, len(prices))
	}

	in := make(chan float64, len(prices))
	for _, p := range prices {
		in <- p
	}
	close(in)

	lowerChan, middleChan, upperChan := volatility.NewBollingerBandsWithPeriod[float64](period).Compute(in)

	var lower, middle, upper []float64
	for {
		l, lok := <-lowerChan
		m, mok := <-middleChan
		u, uok := <-upperChan
		if !lok || !mok || !uok {
			break
		}
		lower = append(lower, l)
		middle = append(middle, m)
		upper = append(upper, u)
	}
	if len(middle) == 0 {
		return Signal{}, fmt.Errorf("bollinger: no values computed")
	}

	currentUpper := upper[len(upper)-1]
	currentMiddle := middle[len(middle)-1]
	currentLower := lower[len(lower)-1]
	currentPrice := prices[len(prices)-1]

	dir := Hold
	var confidence float64
	halfWidth := currentUpper - currentMiddle
	switch {
	case currentPrice <= currentLower:
		dir = Long
		confidence = 100
	case currentPrice >= currentUpper:
		dir = Short
		confidence = 100
	default:
		if halfWidth > 0 {
			confidence = (currentPrice - currentMiddle) / halfWidth * 100
			if confidence < 0 {
				confidence = -confidence
			}
		}
	}

	return Signal{
		Source:     KindBollinger,
		Direction:  dir,
		Confidence: confidence,
		Weight:     cfg.Weight,
		Priority:   cfg.Priority,
	}, nil
}
