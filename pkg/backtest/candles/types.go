// Package candles defines the OHLCV data model and the read-only candle
// store contract the backtest engine is driven from.
package candles

import "fmt"

// Timeframe is one of the three cadences the engine operates on.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
)

// Primary is the timeframe the backtest main loop steps bar-by-bar.
const Primary = Timeframe5m

// Candle is an immutable OHLCV record for one symbol/timeframe/timestamp.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	// TimestampMs is UTC milliseconds since epoch.
	TimestampMs int64   `json:"timestamp_ms"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
}

// TimeframeData bundles the three candle sequences for one symbol plus an
// optional parallel bundle for a correlation benchmark (e.g. BTC). Within a
// sequence, candles are strictly ascending by TimestampMs; gaps are allowed.
type TimeframeData struct {
	Symbol string
	M1     []Candle
	M5     []Candle
	M15    []Candle

	BenchmarkSymbol string
	BenchmarkM5      []Candle
	BenchmarkM15     []Candle
}

// Latest15m returns the most recent 15-minute candle whose timestamp is <=
// ts, or false if none exists. Used to join the lower timeframes to the
// 15-minute series per the "most recent <= timestamp" rule (spec.md §3).
func Latest15m(m15 []Candle, ts int64) (Candle, bool) {
	var best Candle
	found := false
	for _, c := range m15 {
		if c.TimestampMs > ts {
			break
		}
		best = c
		found = true
	}
	return best, found
}

// Slice returns candles with TimestampMs in [0, ts], i.e. everything known
// at or before ts. Used to enforce no-look-ahead when a component must
// reason about "the series so far".
func Slice(series []Candle, ts int64) []Candle {
	idx := 0
	for idx < len(series) && series[idx].TimestampMs <= ts {
		idx++
	}
	return series[:idx]
}

func (c Candle) String() string {
	return fmt.Sprintf("%s/%s@%d O=%.4f H=%.4f L=%.4f C=%.4f V=%.4f",
		c.Symbol, c.Timeframe, c.TimestampMs, c.Open, c.High, c.Low, c.Close, c.Volume)
}
