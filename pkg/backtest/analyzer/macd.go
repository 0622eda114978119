package analyzer

import (
	"fmt"

	"github.com/cinar/indicator/v2/trend"
	"github.com/cryptofunk/backtestcore/pkg/backtest/candles"
)

// computeMACD derives direction from the MACD/signal crossover, grounded on
// internal/indicators/macd.go's bullish/bearish histogram-sign-flip
// detection.
func computeMACD(window []candles.Candle, cfg Config) (Signal, error) {
	fast, slow, sig := cfg.FastPeriod, cfg.SlowPeriod, cfg.SignalPeriod
	if fast <= 0 {
		fast = 12
	}
	if slow <= 0 {
		slow = 26
	}
	if sig <= 0 {
		sig = 9
	}
	if fast >= slow {
		return Signal{}, fmt.Errorf("macd: fast period (%d) must be less than slow period (%d)", fast, slow)
	}

	prices := closes(window)
	minRequired := slow + sig
	if len(prices) < minRequired {
		return Signal{}, fmt.Errorf("macd: need at least %d candles, got %d", minRequired, len(prices))
	}

	in := make(chan float64, len(prices))
	for _, p := range prices {
		in <- p
	}
	close(in)

	macdChan, signalChan := trend.NewMacdWithPeriod[float64](fast, slow, sig).Compute(in)

	var macdValues, signalValues []float64
	for {
		m, mok := <-macdChan
		s, sok := <-signalChan
		if !mok || !sok {
			break
		}
		macdValues = append(macdValues, m)
		signalValues = append(signalValues, s)
	}
	if len(macdValues) == 0 {
		return Signal{}, fmt.Errorf("macd: no values computed")
	}

	currentHist := macdValues[len(macdValues)-1] - signalValues[len(signalValues)-1]

	dir := Hold
	if currentHist > 0 {
		dir = Long
	} else if currentHist < 0 {
		dir = Short
	}

	crossedNow := false
	if len(macdValues) >= 2 {
		prevHist := macdValues[len(macdValues)-2] - signalValues[len(signalValues)-2]
		crossedNow = (prevHist <= 0 && currentHist > 0) || (prevHist >= 0 && currentHist < 0)
	}

	confidence := histogramConfidence(currentHist, macdValues[len(macdValues)-1])
	if crossedNow {
		confidence = 100
	}

	return Signal{
		Source:     KindMACD,
		Direction:  dir,
		Confidence: confidence,
		Weight:     cfg.Weight,
		Priority:   cfg.Priority,
	}, nil
}

// histogramConfidence scales the histogram's magnitude against the MACD
// line's own magnitude, so confidence is unit-independent across symbols.
func histogramConfidence(hist, macdLine float64) float64 {
	ref := macdLine
	if ref < 0 {
		ref = -ref
	}
	if ref == 0 {
		if hist == 0 {
			return 0
		}
		return 100
	}
	abs := hist
	if abs < 0 {
		abs = -abs
	}
	conf := abs / ref * 100
	if conf > 100 {
		conf = 100
	}
	return conf
}
