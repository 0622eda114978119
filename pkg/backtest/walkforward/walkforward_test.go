package walkforward

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptofunk/backtestcore/pkg/backtest"
	"github.com/cryptofunk/backtestcore/pkg/backtest/candles"
	"github.com/cryptofunk/backtestcore/pkg/backtest/optimize"
)

func TestGenerateWindows_NonOverlappingOOS(t *testing.T) {
	start := int64(0)
	end := int64(10) * dayMs
	windows := GenerateWindows(start, end, 5, 2)

	require.NotEmpty(t, windows)
	for i := 1; i < len(windows); i++ {
		assert.Equal(t, windows[i-1].OutSampleEndMs, windows[i].OutSampleStartMs)
	}
}

func TestGenerateWindows_StopsBeforeExceedingSeriesEnd(t *testing.T) {
	windows := GenerateWindows(0, 6*dayMs, 5, 2)
	for _, w := range windows {
		assert.LessOrEqual(t, w.OutSampleEndMs, int64(6*dayMs))
	}
}

func candleSeries(n int, intervalMs int64) []candles.Candle {
	out := make([]candles.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = candles.Candle{TimestampMs: int64(i) * intervalMs, Close: 100 + float64(i)}
	}
	return out
}

func TestRun_FlagsWindowAsOverfittedWhenGapExceedsThreshold(t *testing.T) {
	data := candles.TimeframeData{M5: candleSeries(2000, 5*60_000)}

	optimizeFn := func(isData candles.TimeframeData) (optimize.Combination, *backtest.Metrics, error) {
		return optimize.Combination{"period": 14}, &backtest.Metrics{SharpeRatio: 2.0}, nil
	}
	backtestFn := func(oosData candles.TimeframeData, params optimize.Combination) (*backtest.Metrics, error) {
		return &backtest.Metrics{SharpeRatio: 0.5}, nil // 75% degradation
	}

	report, err := Run(data, 1, 1, optimize.MetricSharpe, 0.3, optimizeFn, backtestFn)
	require.NoError(t, err)
	require.NotEmpty(t, report.Windows)
	assert.Greater(t, report.OverfittedWindows, 0)
	assert.Greater(t, report.OverfittingRate, 0.0)
}

func TestRun_NoOverfittingWhenOOSMatchesIS(t *testing.T) {
	data := candles.TimeframeData{M5: candleSeries(2000, 5*60_000)}

	optimizeFn := func(isData candles.TimeframeData) (optimize.Combination, *backtest.Metrics, error) {
		return optimize.Combination{"period": 14}, &backtest.Metrics{SharpeRatio: 1.0}, nil
	}
	backtestFn := func(oosData candles.TimeframeData, params optimize.Combination) (*backtest.Metrics, error) {
		return &backtest.Metrics{SharpeRatio: 1.0}, nil
	}

	report, err := Run(data, 1, 1, optimize.MetricSharpe, 0.3, optimizeFn, backtestFn)
	require.NoError(t, err)
	assert.Equal(t, 0, report.OverfittedWindows)
	assert.Equal(t, 0.0, report.AvgOverfittingScore)
}

func TestRun_EmptySeriesYieldsEmptyReport(t *testing.T) {
	report, err := Run(candles.TimeframeData{}, 1, 1, optimize.MetricSharpe, 0.3, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalWindows)
}

func TestPerformanceGap_ZeroInSampleTreatsNonZeroOOSAsTotalDegradation(t *testing.T) {
	assert.Equal(t, 1.0, performanceGap(0, 0.5))
	assert.Equal(t, 0.0, performanceGap(0, 0))
}
