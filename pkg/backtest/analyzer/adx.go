package analyzer

import (
	"fmt"
	"math"

	"github.com/cryptofunk/backtestcore/pkg/backtest/candles"
)

// computeADX hand-rolls Wilder's smoothing since cinar/indicator/v2 has no
// ADX implementation, adapted from internal/indicators/adx.go's
// calculateADXManual. Unlike the teacher's MCP tool (which only surfaced
// the ADX magnitude), this also tracks +DI/-DI to derive a direction —
// required by the Signal contract, which the teacher's untyped tool result
// didn't need.
func computeADX(window []candles.Candle, cfg Config) (Signal, error) {
	period := cfg.Period
	if period <= 0 {
		period = 14
	}
	n := len(window)
	if n < period*2 {
		return Signal{}, fmt.Errorf("adx: need at least %d candles, got %d", period*2, n)
	}

	high := make([]float64, n)
	low := make([]float64, n)
	closePx := make([]float64, n)
	for i, c := range window {
		high[i], low[i], closePx[i] = c.High, c.Low, c.Close
	}

	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		tr[i] = math.Max(high[i]-low[i], math.Max(math.Abs(high[i]-closePx[i-1]), math.Abs(low[i]-closePx[i-1])))

		upMove := high[i] - high[i-1]
		downMove := low[i-1] - low[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	smoothTR := smoothWilder(tr, period)
	smoothPlusDM := smoothWilder(plusDM, period)
	smoothMinusDM := smoothWilder(minusDM, period)

	plusDI := make([]float64, n)
	minusDI := make([]float64, n)
	dx := make([]float64, n)
	for i := period; i < n; i++ {
		if smoothTR[i] == 0 {
			continue
		}
		plusDI[i] = 100 * smoothPlusDM[i] / smoothTR[i]
		minusDI[i] = 100 * smoothMinusDM[i] / smoothTR[i]
		diSum := plusDI[i] + minusDI[i]
		if diSum != 0 {
			dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / diSum
		}
	}

	adxValues := smoothWilder(dx, period)
	adx := adxValues[n-1]
	if adx == 0 {
		return Signal{}, fmt.Errorf("adx: calculation failed")
	}

	dir := Hold
	if plusDI[n-1] > minusDI[n-1] {
		dir = Long
	} else if minusDI[n-1] > plusDI[n-1] {
		dir = Short
	}

	return Signal{
		Source:     KindADX,
		Direction:  dir,
		Confidence: adxStrengthConfidence(adx),
		Weight:     cfg.Weight,
		Priority:   cfg.Priority,
	}, nil
}

// adxStrengthConfidence maps ADX's weak(<25)/strong(25-50)/very_strong(>50)
// bands onto a 0..100 confidence, matching internal/indicators/adx.go's
// bucketing.
func adxStrengthConfidence(adx float64) float64 {
	switch {
	case adx >= 50:
		return 100
	case adx >= 25:
		return 50 + (adx-25)/25*50
	default:
		return adx / 25 * 50
	}
}

// smoothWilder applies Wilder's smoothing method.
func smoothWilder(data []float64, period int) []float64 {
	n := len(data)
	result := make([]float64, n)
	if n < period {
		return result
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	result[period-1] = sum / float64(period)

	for i := period; i < n; i++ {
		result[i] = (result[i-1]*float64(period-1) + data[i]) / float64(period)
	}
	return result
}
