// Package e2e exercises full pipelines (analyzer set through engine, and
// optimizer/walk-forward over engine runs) rather than individual units.
package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	btengine "github.com/cryptofunk/backtestcore/pkg/backtest"
	"github.com/cryptofunk/backtestcore/pkg/backtest/aggregator"
	"github.com/cryptofunk/backtestcore/pkg/backtest/analyzer"
	"github.com/cryptofunk/backtestcore/pkg/backtest/candles"
	"github.com/cryptofunk/backtestcore/pkg/backtest/filter"
	"github.com/cryptofunk/backtestcore/pkg/backtest/risk"
)

// alternatingSeries builds a candle series whose close moves +3%/+1% on
// alternating bars (asset, net uptrend) or -1%/-3% (benchmark, net
// downtrend). Any two such series built from the same interval/count share
// identical per-bar return parity, so their correlation over any
// sufficiently long window sits around 0.7-0.9 regardless of where the
// window starts — see the benchmark-correlation filter's Pearson check in
// pkg/backtest/filter.
func alternatingSeries(n int, intervalMs int64, tf candles.Timeframe, up bool) []candles.Candle {
	out := make([]candles.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		if i > 0 {
			var ret float64
			even := i%2 == 0
			switch {
			case up && even:
				ret = 0.03
			case up && !even:
				ret = 0.01
			case !up && even:
				ret = -0.01
			default:
				ret = -0.03
			}
			price *= 1 + ret
		}
		out[i] = candles.Candle{
			Timeframe:   tf,
			TimestampMs: int64(i) * intervalMs,
			Open:        price - 0.1,
			High:        price + 1,
			Low:         price - 1,
			Close:       price,
			Volume:      100,
		}
	}
	return out
}

func baseEngineConfig() btengine.Config {
	return btengine.Config{
		Analyzers: []analyzer.Config{
			{Kind: analyzer.KindEMA, Enabled: true, Period: 20, Weight: 1, Priority: 1},
		},
		MinReadyAnalyzers:        1,
		Aggregator:               aggregator.DefaultConfig(),
		EntryThreshold:           0,
		FlatMarketEntryThreshold: 100,
		MaxOpenPositions:         3,
		SLMultiplier:             2,
		MinSLDistancePercent:     0.5,
		TakeProfits:              []risk.TakeProfitConfig{{PercentFromEntry: 5, SizePercent: 100}},
		RiskPerTradePercent:      0.5,
		MaxExposurePercent:       5,
	}
}

// TestFilterBlocksEntry covers spec scenario 4: a benchmark-correlation
// filter blocks every LONG entry when the benchmark is trending down while
// positively correlated with the traded asset.
func TestFilterBlocksEntry(t *testing.T) {
	m5 := alternatingSeries(80, 5*60_000, candles.Timeframe5m, true)
	benchM5 := alternatingSeries(80, 5*60_000, candles.Timeframe5m, false)
	data := candles.TimeframeData{Symbol: "BTC", M5: m5, BenchmarkSymbol: "BTC/USDT", BenchmarkM5: benchM5}

	cfg := baseEngineConfig()
	cfg.Filters = filter.Config{
		Correlation: &filter.CorrelationConfig{Enabled: true, Lookback: 30, Threshold: 0.4},
	}

	e, err := btengine.NewEngine("BTC", data, cfg, 10000)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	assert.Empty(t, e.ClosedTrades, "every entry should be blocked by the correlation filter")
	assert.Empty(t, e.OpenPositions)
}

// TestFilterBlocksEntry_DisabledFilterOpensTrades is the control: the same
// uptrending asset without the correlation filter does open positions,
// proving the filter (not the analyzer setup) is what suppresses entries
// above.
func TestFilterBlocksEntry_DisabledFilterOpensTrades(t *testing.T) {
	m5 := alternatingSeries(80, 5*60_000, candles.Timeframe5m, true)
	data := candles.TimeframeData{Symbol: "BTC", M5: m5}

	cfg := baseEngineConfig()

	e, err := btengine.NewEngine("BTC", data, cfg, 10000)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	assert.NotEmpty(t, e.ClosedTrades)
}
