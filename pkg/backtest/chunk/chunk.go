// Package chunk implements the Parallel Chunk Executor (spec.md §4.9): it
// splits a symbol's candle series into overlapping chunks, runs each chunk
// through an isolated backtest.Engine, and merges the per-chunk results back
// into one run's worth of trades and equity curve.
package chunk

import (
	"github.com/cryptofunk/backtestcore/pkg/backtest/candles"
)

// DefaultChunkSize is the default number of PRIMARY candles per chunk.
const DefaultChunkSize = 1000

// DefaultLookback is the default number of warm-up-only candles prepended to
// every chunk after the first.
const DefaultLookback = 60

// fifteenMinuteMs is the width of one 15-minute candle, used to compute the
// 15m slice's lower bound (spec.md §4.9: "first_5m_ts − 15·60·1000").
const fifteenMinuteMs = 15 * 60 * 1000

// Chunk is a contiguous slice of PRIMARY (5-minute) candles with prepended
// lookback context, plus the 15-minute candles it needs for trend snapshots.
type Chunk struct {
	ID int

	// M5 includes LookbackCount warm-up candles (if any) followed by the
	// chunk's own candles.
	M5            []candles.Candle
	LookbackCount int

	M15 []candles.Candle

	IsFirst bool
	IsLast  bool
}

// Split divides data.M5 into chunks of chunkSize candles, each (except the
// first) prefixed with lookback candles of overlap from the previous chunk
// (spec.md §4.9).
func Split(data candles.TimeframeData, chunkSize, lookback int) []Chunk {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if lookback < 0 {
		lookback = DefaultLookback
	}

	m5 := data.M5
	if len(m5) == 0 {
		return nil
	}

	var chunks []Chunk
	id := 0
	for start := 0; start < len(m5); start += chunkSize {
		end := start + chunkSize
		if end > len(m5) {
			end = len(m5)
		}

		lookbackStart := start
		lookbackCount := 0
		if start > 0 {
			lookbackCount = lookback
			if lookbackCount > start {
				lookbackCount = start
			}
			lookbackStart = start - lookbackCount
		}

		m5Slice := m5[lookbackStart:end]
		firstTs := m5Slice[0].TimestampMs
		lastTs := m5Slice[len(m5Slice)-1].TimestampMs

		chunks = append(chunks, Chunk{
			ID:            id,
			M5:            m5Slice,
			LookbackCount: lookbackCount,
			M15:           slice15m(data.M15, firstTs, lastTs),
			IsFirst:       start == 0,
			IsLast:        end == len(m5),
		})
		id++
	}
	return chunks
}

// slice15m constrains the 15-minute series to
// [firstTs − 15·60·1000, lastTs] per spec.md §4.9.
func slice15m(m15 []candles.Candle, firstTs, lastTs int64) []candles.Candle {
	lowerBound := firstTs - fifteenMinuteMs
	startIdx := len(m15)
	for i, c := range m15 {
		if c.TimestampMs >= lowerBound {
			startIdx = i
			break
		}
	}
	endIdx := startIdx
	for endIdx < len(m15) && m15[endIdx].TimestampMs <= lastTs {
		endIdx++
	}
	return m15[startIdx:endIdx]
}
