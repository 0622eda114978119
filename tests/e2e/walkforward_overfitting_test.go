package e2e

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	btengine "github.com/cryptofunk/backtestcore/pkg/backtest"
	"github.com/cryptofunk/backtestcore/pkg/backtest/candles"
	"github.com/cryptofunk/backtestcore/pkg/backtest/optimize"
	"github.com/cryptofunk/backtestcore/pkg/backtest/walkforward"
)

// flatM5 builds a minimal two-candle series with timestamps firstMs and
// lastMs so walkforward.GenerateWindows has a non-empty series to slide
// over; the stub optimize/backtest functions below never read bar contents,
// only the window membership that walkforward.Run uses to pick
// isData/oosData apart.
func flatM5(firstMs, lastMs int64) []candles.Candle {
	return []candles.Candle{
		{Timeframe: candles.Timeframe5m, TimestampMs: firstMs, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1},
		{Timeframe: candles.Timeframe5m, TimestampMs: lastMs, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1},
	}
}

// TestWalkforwardOverfittingDetection covers spec scenario 6: an in-sample
// sharpe of 2.0 against an out-of-sample sharpe of 0.5 is flagged overfitted
// at detectionThreshold 0.3 but not at 0.8.
func TestWalkforwardOverfittingDetection(t *testing.T) {
	const dayMs = int64(24 * 60 * 60 * 1000)
	start := int64(0)
	last := 10 * dayMs // exactly one 5-day IS + 5-day OOS window, nothing more

	optimizeFn := func(isData candles.TimeframeData) (optimize.Combination, *btengine.Metrics, error) {
		return optimize.Combination{"period": 20}, &btengine.Metrics{SharpeRatio: 2.0}, nil
	}
	backtestFn := func(oosData candles.TimeframeData, params optimize.Combination) (*btengine.Metrics, error) {
		return &btengine.Metrics{SharpeRatio: 0.5}, nil
	}

	data := candles.TimeframeData{Symbol: "BTC", M5: flatM5(start, last)}

	lenient, err := walkforward.Run(data, 5, 5, optimize.MetricSharpe, 0.8, optimizeFn, backtestFn)
	require.NoError(t, err)
	require.Equal(t, 1, lenient.TotalWindows)
	assert.Equal(t, 0, lenient.OverfittedWindows)
	assert.False(t, lenient.Windows[0].Overfitted)
	assert.InDelta(t, 0.75, lenient.Windows[0].PerformanceGap, 1e-9)

	strict, err := walkforward.Run(data, 5, 5, optimize.MetricSharpe, 0.3, optimizeFn, backtestFn)
	require.NoError(t, err)
	require.Equal(t, 1, strict.TotalWindows)
	assert.Equal(t, 1, strict.OverfittedWindows)
	assert.True(t, strict.Windows[0].Overfitted)
}
