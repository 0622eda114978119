// Package filter implements the ordered, short-circuiting predicate chain
// of eight entry filters (spec.md §4.5); the ninth, blind-zone, is applied
// in the aggregator. Grounded on
// internal/orchestrator/blackboard.go's ordered-rule-evaluation shape,
// adapted from agent-proposal vetting to entry vetting.
package filter

import "github.com/cryptofunk/backtestcore/pkg/backtest/analyzer"

// Config holds every filter's thresholds. A nil pointer field or an
// Enabled=false on a sub-config means that filter is skipped, per spec.md
// §4.5 ("A filter whose config block is absent or marked disabled is
// skipped"). Trend-alignment is the exception: it has no config block here
// and always runs, blocking only directions listed in
// Input.Trend.RestrictedDirections.
type Config struct {
	FlatMarket  *FlatMarketConfig
	Funding     *FundingConfig
	Correlation *CorrelationConfig
	Cooldown    *CooldownConfig
	TimeOfDay   *TimeOfDayConfig
	Volatility  *VolatilityConfig
	NeutralTrend *NeutralTrendConfig
}

type FlatMarketConfig struct {
	Enabled       bool
	FlatThreshold float64 // default 70
}

func DefaultFlatMarketConfig() *FlatMarketConfig {
	return &FlatMarketConfig{Enabled: true, FlatThreshold: 70}
}

type FundingConfig struct {
	Enabled         bool
	BlockLongAbove  float64 // default +0.0005
	BlockShortBelow float64 // default -0.0005
}

func DefaultFundingConfig() *FundingConfig {
	return &FundingConfig{Enabled: true, BlockLongAbove: 0.0005, BlockShortBelow: -0.0005}
}

type CorrelationConfig struct {
	Enabled   bool
	Lookback  int
	Threshold float64
}

func DefaultCorrelationConfig() *CorrelationConfig {
	return &CorrelationConfig{Enabled: true, Lookback: 30, Threshold: 0.6}
}

type CooldownConfig struct {
	Enabled             bool
	BlockDurationSeconds int64 // default 300
}

func DefaultCooldownConfig() *CooldownConfig {
	return &CooldownConfig{Enabled: true, BlockDurationSeconds: 300}
}

// TimeOfDayConfig blocks entries within [StartHourUTC, EndHourUTC). Hours
// wrap past midnight when EndHourUTC < StartHourUTC.
type TimeOfDayConfig struct {
	Enabled      bool
	StartHourUTC int
	EndHourUTC   int
}

type VolatilityConfig struct {
	Enabled        bool
	LowAtrPercent  float64
	HighAtrPercent float64
}

type NeutralTrendConfig struct {
	Enabled                     bool
	WeakTrendThreshold          float64 // default 40 (percent, of strength 0..100)
	MinConfidenceForWeakNeutral float64 // default 70
}

func DefaultNeutralTrendConfig() *NeutralTrendConfig {
	return &NeutralTrendConfig{Enabled: true, WeakTrendThreshold: 40, MinConfidenceForWeakNeutral: 70}
}

// TrendBias is the multi-timeframe trend classification from spec.md §4.7
// step 3.
type TrendBias string

const (
	Uptrend   TrendBias = "UPTREND"
	Downtrend TrendBias = "DOWNTREND"
	Neutral   TrendBias = "NEUTRAL"
)

// TrendAnalysis is the orchestrator-facing trend snapshot (spec.md §4.6).
type TrendAnalysis struct {
	Bias                 TrendBias
	Strength             float64 // 0..100
	RestrictedDirections []analyzer.Direction
}

// Input bundles everything a single bar's filter evaluation needs. All
// fields are pre-computed by the engine; filters themselves perform no I/O
// besides the correlation filter's read of benchmark candles already held
// in memory (spec.md §4.5 closing note).
type Input struct {
	Direction analyzer.Direction

	FlatMarketScore float64

	FundingRate    *float64 // nil when unknown
	AssetReturns   []float64
	BenchmarkReturns []float64
	BenchmarkTrendUp bool // true if benchmark close rose over the lookback

	Trend TrendAnalysis

	LastTPTimestampMs int64 // 0 if none yet
	LastTPDirection   analyzer.Direction
	CurrentTimestampMs int64

	HourUTC int

	AtrPercent float64

	SignalConfidence float64
}
