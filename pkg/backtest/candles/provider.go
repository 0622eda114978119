package candles

import (
	"context"
	"sort"
)

// Provider loads a TimeframeData for a symbol over an optional range. The
// backend is expected to answer with a single union-all query across the
// three timeframes and post-partition the rows here (spec.md §4.1).
type Provider interface {
	// Load returns candles for symbol in [startMs, endMs]. A zero startMs or
	// endMs means "unbounded" on that side.
	Load(ctx context.Context, symbol string, startMs, endMs int64) (TimeframeData, error)

	// LoadWithBenchmark is Load plus a parallel bundle for benchmarkSymbol,
	// used by the benchmark-correlation filter (spec.md §4.5 #4).
	LoadWithBenchmark(ctx context.Context, symbol, benchmarkSymbol string, startMs, endMs int64) (TimeframeData, error)
}

// Row is one record as returned by a backend's union-all query, before
// partitioning by timeframe.
type Row struct {
	Symbol      string
	Timeframe   Timeframe
	TimestampMs int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

// Partition groups rows by timeframe into ascending-sorted candle slices,
// implementing the "one query, post-partition" contract of spec.md §4.1.
func Partition(rows []Row) (m1, m5, m15 []Candle) {
	for _, r := range rows {
		c := Candle{
			Symbol:      r.Symbol,
			Timeframe:   r.Timeframe,
			TimestampMs: r.TimestampMs,
			Open:        r.Open,
			High:        r.High,
			Low:         r.Low,
			Close:       r.Close,
			Volume:      r.Volume,
		}
		switch r.Timeframe {
		case Timeframe1m:
			m1 = append(m1, c)
		case Timeframe5m:
			m5 = append(m5, c)
		case Timeframe15m:
			m15 = append(m15, c)
		}
	}
	sortAscending(m1)
	sortAscending(m5)
	sortAscending(m15)
	return m1, m5, m15
}

func sortAscending(c []Candle) {
	sort.Slice(c, func(i, j int) bool { return c[i].TimestampMs < c[j].TimestampMs })
}

// RequireNonEmpty fails fast with ErrInsufficientData for any empty series,
// per spec.md §4.1.
func RequireNonEmpty(symbol string, startMs, endMs int64, m1, m5, m15 []Candle) error {
	if len(m1) == 0 {
		return &ErrInsufficientData{Symbol: symbol, Timeframe: Timeframe1m, StartMs: startMs, EndMs: endMs}
	}
	if len(m5) == 0 {
		return &ErrInsufficientData{Symbol: symbol, Timeframe: Timeframe5m, StartMs: startMs, EndMs: endMs}
	}
	if len(m15) == 0 {
		return &ErrInsufficientData{Symbol: symbol, Timeframe: Timeframe15m, StartMs: startMs, EndMs: endMs}
	}
	return nil
}
