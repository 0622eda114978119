package filter

import (
	"math"

	"github.com/cryptofunk/backtestcore/pkg/backtest/analyzer"
	"github.com/cryptofunk/backtestcore/pkg/backtest/stats"
)

// Result is the filter chain's verdict for one bar.
type Result struct {
	Allowed   bool
	BlockedBy string // name of the filter that blocked, empty if allowed
	Reason    string
}

func allow() Result { return Result{Allowed: true} }

func block(name, reason string) Result {
	return Result{Allowed: false, BlockedBy: name, Reason: reason}
}

// predicate is one filter's check. Blind-zone (filter 1 of spec.md §4.5) is
// handled inside the aggregator package, not here — this chain starts at
// filter 2 (flat-market).
type predicate func(in Input, cfg Config) Result

var chain = []predicate{
	flatMarket,
	funding,
	correlation,
	trendAlignment,
	cooldown,
	timeOfDay,
	volatilityRegime,
	neutralTrendStrength,
}

// Evaluate runs the ordered filter chain, short-circuiting on the first
// blocker (spec.md §4.5).
func Evaluate(in Input, cfg Config) Result {
	for _, p := range chain {
		res := p(in, cfg)
		if !res.Allowed {
			return res
		}
	}
	return allow()
}

func flatMarket(in Input, cfg Config) Result {
	c := cfg.FlatMarket
	if c == nil || !c.Enabled {
		return allow()
	}
	if in.FlatMarketScore >= c.FlatThreshold {
		return block("flat-market", "flat-market score at or above threshold")
	}
	return allow()
}

func funding(in Input, cfg Config) Result {
	c := cfg.Funding
	if c == nil || !c.Enabled || in.FundingRate == nil {
		return allow()
	}
	rate := *in.FundingRate
	if in.Direction == analyzer.Long && rate > c.BlockLongAbove {
		return block("funding-rate", "funding rate too positive for LONG entry")
	}
	if in.Direction == analyzer.Short && rate < c.BlockShortBelow {
		return block("funding-rate", "funding rate too negative for SHORT entry")
	}
	return allow()
}

// correlation implements spec.md §4.5 #4: fail open on a short/mismatched
// series, on sub-threshold correlation, or on any computation error.
func correlation(in Input, cfg Config) Result {
	c := cfg.Correlation
	if c == nil || !c.Enabled {
		return allow()
	}
	assetReturns, benchReturns := in.AssetReturns, in.BenchmarkReturns
	if len(assetReturns) > c.Lookback {
		assetReturns = assetReturns[len(assetReturns)-c.Lookback:]
	}
	if len(benchReturns) > c.Lookback {
		benchReturns = benchReturns[len(benchReturns)-c.Lookback:]
	}

	corr, ok := stats.Pearson(assetReturns, benchReturns)
	if !ok {
		return allow()
	}
	if math.Abs(corr) < c.Threshold {
		return allow()
	}

	benchmarkDown := !in.BenchmarkTrendUp
	misaligned := false
	if in.Direction == analyzer.Long && benchmarkDown && corr > 0 {
		misaligned = true
	}
	if in.Direction == analyzer.Short && in.BenchmarkTrendUp && corr > 0 {
		misaligned = true
	}
	if misaligned {
		return block("benchmark-correlation", "entry direction misaligned with correlated benchmark trend")
	}
	return allow()
}

func trendAlignment(in Input, _ Config) Result {
	for _, d := range in.Trend.RestrictedDirections {
		if d == in.Direction {
			return block("trend-alignment", "direction restricted by trend analysis")
		}
	}
	return allow()
}

func cooldown(in Input, cfg Config) Result {
	c := cfg.Cooldown
	if c == nil || !c.Enabled || in.LastTPTimestampMs == 0 {
		return allow()
	}
	if in.LastTPDirection != in.Direction {
		return allow()
	}
	elapsedSec := (in.CurrentTimestampMs - in.LastTPTimestampMs) / 1000
	if elapsedSec < c.BlockDurationSeconds {
		return block("post-tp-cooldown", "take-profit cooldown still active for this direction")
	}
	return allow()
}

func timeOfDay(in Input, cfg Config) Result {
	c := cfg.TimeOfDay
	if c == nil || !c.Enabled {
		return allow()
	}
	h := in.HourUTC
	var inWindow bool
	if c.StartHourUTC <= c.EndHourUTC {
		inWindow = h >= c.StartHourUTC && h < c.EndHourUTC
	} else {
		inWindow = h >= c.StartHourUTC || h < c.EndHourUTC
	}
	if inWindow {
		return block("time-of-day", "within blocked UTC time window")
	}
	return allow()
}

func volatilityRegime(in Input, cfg Config) Result {
	c := cfg.Volatility
	if c == nil || !c.Enabled {
		return allow()
	}
	if in.AtrPercent < c.LowAtrPercent || in.AtrPercent > c.HighAtrPercent {
		return block("volatility-regime", "ATR% outside configured band")
	}
	return allow()
}

func neutralTrendStrength(in Input, cfg Config) Result {
	c := cfg.NeutralTrend
	if c == nil || !c.Enabled {
		return allow()
	}
	if in.Trend.Bias != Neutral {
		return allow()
	}
	if in.Trend.Strength >= c.WeakTrendThreshold {
		return allow()
	}
	if in.SignalConfidence >= c.MinConfidenceForWeakNeutral {
		return allow()
	}
	return block("neutral-trend-strength", "weak neutral trend and signal confidence below override threshold")
}
