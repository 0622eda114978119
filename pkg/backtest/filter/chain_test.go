package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cryptofunk/backtestcore/pkg/backtest/analyzer"
)

func baseInput() Input {
	return Input{
		Direction:        analyzer.Long,
		FlatMarketScore:  10,
		Trend:            TrendAnalysis{Bias: Uptrend, Strength: 80},
		AtrPercent:       1.0,
		SignalConfidence: 90,
	}
}

func TestEvaluate_AllowsWhenNothingConfigured(t *testing.T) {
	res := Evaluate(baseInput(), Config{})
	assert.True(t, res.Allowed)
}

func TestEvaluate_FlatMarketBlocks(t *testing.T) {
	in := baseInput()
	in.FlatMarketScore = 90
	res := Evaluate(in, Config{FlatMarket: DefaultFlatMarketConfig()})
	assert.False(t, res.Allowed)
	assert.Equal(t, "flat-market", res.BlockedBy)
}

func TestEvaluate_FundingBlocksLongWhenTooPositive(t *testing.T) {
	in := baseInput()
	rate := 0.001
	in.FundingRate = &rate
	res := Evaluate(in, Config{Funding: DefaultFundingConfig()})
	assert.False(t, res.Allowed)
	assert.Equal(t, "funding-rate", res.BlockedBy)
}

func TestEvaluate_FundingNoOpWhenUnknown(t *testing.T) {
	in := baseInput()
	res := Evaluate(in, Config{Funding: DefaultFundingConfig()})
	assert.True(t, res.Allowed)
}

func TestEvaluate_CorrelationFailsOpenOnShortSeries(t *testing.T) {
	in := baseInput()
	in.AssetReturns = []float64{0.01}
	in.BenchmarkReturns = []float64{0.01, 0.02}
	res := Evaluate(in, Config{Correlation: DefaultCorrelationConfig()})
	assert.True(t, res.Allowed)
}

func TestEvaluate_CorrelationBlocksMisalignedLong(t *testing.T) {
	in := baseInput()
	asset := make([]float64, 30)
	bench := make([]float64, 30)
	for i := range asset {
		asset[i] = float64(i)
		bench[i] = float64(30 - i) // negatively... construct positive corr but down benchmark trend
	}
	// Make asset and benchmark move together (positive correlation) while
	// benchmark itself trends down over the lookback.
	for i := range asset {
		asset[i] = float64(30 - i)
		bench[i] = float64(30-i) * 0.5
	}
	in.AssetReturns = asset
	in.BenchmarkReturns = bench
	in.BenchmarkTrendUp = false

	res := Evaluate(in, Config{Correlation: &CorrelationConfig{Enabled: true, Lookback: 30, Threshold: 0.5}})
	assert.False(t, res.Allowed)
	assert.Equal(t, "benchmark-correlation", res.BlockedBy)
}

func TestEvaluate_TrendAlignmentBlocksRestrictedDirection(t *testing.T) {
	in := baseInput()
	in.Trend.RestrictedDirections = []analyzer.Direction{analyzer.Long}
	res := Evaluate(in, Config{})
	assert.False(t, res.Allowed)
	assert.Equal(t, "trend-alignment", res.BlockedBy)
}

func TestEvaluate_CooldownBlocksSameDirectionWithinWindow(t *testing.T) {
	in := baseInput()
	in.LastTPTimestampMs = 1_000_000
	in.LastTPDirection = analyzer.Long
	in.CurrentTimestampMs = 1_000_000 + 100*1000 // 100s later, under 300s default
	res := Evaluate(in, Config{Cooldown: DefaultCooldownConfig()})
	assert.False(t, res.Allowed)
	assert.Equal(t, "post-tp-cooldown", res.BlockedBy)
}

func TestEvaluate_CooldownAllowsAfterWindow(t *testing.T) {
	in := baseInput()
	in.LastTPTimestampMs = 1_000_000
	in.LastTPDirection = analyzer.Long
	in.CurrentTimestampMs = 1_000_000 + 400*1000
	res := Evaluate(in, Config{Cooldown: DefaultCooldownConfig()})
	assert.True(t, res.Allowed)
}

func TestEvaluate_TimeOfDayWrapsPastMidnight(t *testing.T) {
	in := baseInput()
	in.HourUTC = 23
	cfg := Config{TimeOfDay: &TimeOfDayConfig{Enabled: true, StartHourUTC: 22, EndHourUTC: 2}}
	res := Evaluate(in, cfg)
	assert.False(t, res.Allowed)
	assert.Equal(t, "time-of-day", res.BlockedBy)
}

func TestEvaluate_VolatilityRegimeBlocksOutsideBand(t *testing.T) {
	in := baseInput()
	in.AtrPercent = 10
	cfg := Config{Volatility: &VolatilityConfig{Enabled: true, LowAtrPercent: 0.1, HighAtrPercent: 5}}
	res := Evaluate(in, cfg)
	assert.False(t, res.Allowed)
	assert.Equal(t, "volatility-regime", res.BlockedBy)
}

func TestEvaluate_NeutralTrendStrengthBlocksWeakLowConfidence(t *testing.T) {
	in := baseInput()
	in.Trend = TrendAnalysis{Bias: Neutral, Strength: 10}
	in.SignalConfidence = 50
	res := Evaluate(in, Config{NeutralTrend: DefaultNeutralTrendConfig()})
	assert.False(t, res.Allowed)
	assert.Equal(t, "neutral-trend-strength", res.BlockedBy)
}

func TestEvaluate_NeutralTrendStrengthAllowsHighConfidenceOverride(t *testing.T) {
	in := baseInput()
	in.Trend = TrendAnalysis{Bias: Neutral, Strength: 10}
	in.SignalConfidence = 90
	res := Evaluate(in, Config{NeutralTrend: DefaultNeutralTrendConfig()})
	assert.True(t, res.Allowed)
}

func TestEvaluate_ShortCircuitsOnFirstBlocker(t *testing.T) {
	in := baseInput()
	in.FlatMarketScore = 90
	in.Trend.RestrictedDirections = []analyzer.Direction{analyzer.Long}
	res := Evaluate(in, Config{FlatMarket: DefaultFlatMarketConfig()})
	assert.Equal(t, "flat-market", res.BlockedBy)
}
