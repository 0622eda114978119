// Package analyzer implements the pluggable Analyzer Set (spec.md §4.3) as a
// closed set of tagged variants with a compile-time dispatch table, per the
// REDESIGN FLAG in spec.md §9 replacing the teacher's name-addressable
// plug-in lookup.
package analyzer

import (
	"fmt"

	"github.com/cryptofunk/backtestcore/pkg/backtest/candles"
)

// Direction is the analyzer's directional opinion.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
	Hold  Direction = "HOLD"
)

// Signal is the output of one analyzer for one bar (spec.md §3
// AnalyzerSignal).
type Signal struct {
	Source     Kind      `json:"source"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"` // 0..100
	Weight     float64   `json:"weight"`
	Priority   int       `json:"priority"`
}

// Kind enumerates the known analyzer variants. Extending the analyzer set
// means adding a Kind and a dispatch table entry, not a new string key.
type Kind string

const (
	KindEMA       Kind = "ema"
	KindRSI       Kind = "rsi"
	KindMACD      Kind = "macd"
	KindBollinger Kind = "bollinger"
	KindADX       Kind = "adx"
	KindTrend     Kind = "trend"
)

// AllKinds lists every known analyzer variant, enumerable at compile time.
var AllKinds = []Kind{KindEMA, KindRSI, KindMACD, KindBollinger, KindADX, KindTrend}

// Config parameterizes one enabled analyzer instance (spec.md §3
// StrategyConfig.analyzers[]).
type Config struct {
	Kind     Kind    `json:"name"`
	Enabled  bool    `json:"enabled"`
	Weight   float64 `json:"weight"`
	Priority int     `json:"priority"`

	Period       int     `json:"period,omitempty"`
	FastPeriod   int     `json:"fastPeriod,omitempty"`
	SlowPeriod   int     `json:"slowPeriod,omitempty"`
	SignalPeriod int     `json:"signalPeriod,omitempty"`
	StdDevMult   float64 `json:"stdDevMult,omitempty"`
}

// Func is a pure function (candles, config) -> Signal, required to be
// stateless between invocations per spec.md §4.3.
type Func func(window []candles.Candle, cfg Config) (Signal, error)

// MinCandlesFunc returns the minimum window length a given config needs.
type MinCandlesFunc func(cfg Config) int

// variant bundles one analyzer's pure function with its minimum-candles
// requirement — the compile-time dispatch table entry.
type variant struct {
	compute     Func
	minCandles  MinCandlesFunc
}

var registry = map[Kind]variant{
	KindEMA:       {compute: computeEMA, minCandles: func(cfg Config) int { return orDefault(cfg.Period, 20) + 1 }},
	KindRSI:       {compute: computeRSI, minCandles: func(cfg Config) int { return orDefault(cfg.Period, 14) + 1 }},
	KindMACD:      {compute: computeMACD, minCandles: func(cfg Config) int { return orDefault(cfg.SlowPeriod, 26) + orDefault(cfg.SignalPeriod, 9) }},
	KindBollinger: {compute: computeBollinger, minCandles: func(cfg Config) int { return orDefault(cfg.Period, 20) + 1 }},
	KindADX:       {compute: computeADX, minCandles: func(cfg Config) int { return orDefault(cfg.Period, 14) * 2 }},
	KindTrend:     {compute: computeTrend, minCandles: func(cfg Config) int { return orDefault(cfg.Period, 50) + 1 }},
}

// orDefault mirrors the compute functions' fallback for an unset period.
func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}

// MinCandlesRequired returns how many candles cfg's analyzer needs to
// produce a signal, used by the registry to skip analyzers whose input is
// short (spec.md §4.3).
func MinCandlesRequired(cfg Config) (int, error) {
	v, ok := registry[cfg.Kind]
	if !ok {
		return 0, fmt.Errorf("analyzer: unknown kind %q", cfg.Kind)
	}
	return v.minCandles(cfg), nil
}

// Compute dispatches to cfg.Kind's pure function.
func Compute(window []candles.Candle, cfg Config) (Signal, error) {
	v, ok := registry[cfg.Kind]
	if !ok {
		return Signal{}, fmt.Errorf("analyzer: unknown kind %q", cfg.Kind)
	}
	return v.compute(window, cfg)
}

func closes(window []candles.Candle) []float64 {
	out := make([]float64, len(window))
	for i, c := range window {
		out[i] = c.Close
	}
	return out
}
