package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptofunk/backtestcore/pkg/backtest/candles"
)

func series(n int, intervalMs int64, tf candles.Timeframe) []candles.Candle {
	out := make([]candles.Candle, n)
	for i := 0; i < n; i++ {
		price := 100.0 + float64(i)*0.1
		out[i] = candles.Candle{
			Timeframe:   tf,
			TimestampMs: int64(i) * intervalMs,
			Open:        price,
			High:        price + 1,
			Low:         price - 1,
			Close:       price,
			Volume:      10,
		}
	}
	return out
}

func TestSplit_FirstChunkHasNoLookback(t *testing.T) {
	data := candles.TimeframeData{M5: series(150, 5*60_000, candles.Timeframe5m)}
	chunks := Split(data, 100, 60)

	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].LookbackCount)
	assert.True(t, chunks[0].IsFirst)
	assert.False(t, chunks[0].IsLast)
	assert.Len(t, chunks[0].M5, 100)
}

func TestSplit_SubsequentChunkCarriesLookback(t *testing.T) {
	data := candles.TimeframeData{M5: series(150, 5*60_000, candles.Timeframe5m)}
	chunks := Split(data, 100, 60)

	require.Len(t, chunks, 2)
	last := chunks[1]
	assert.True(t, last.IsLast)
	assert.Equal(t, 60, last.LookbackCount)
	assert.Len(t, last.M5, 60+50) // lookback + remaining 50 candles
}

func TestSplit_LookbackCappedByAvailableHistory(t *testing.T) {
	data := candles.TimeframeData{M5: series(120, 5*60_000, candles.Timeframe5m)}
	chunks := Split(data, 50, 1000) // lookback far exceeds start index

	require.Len(t, chunks, 3)
	assert.Equal(t, 50, chunks[1].LookbackCount) // capped at start index (50)
}

func TestSplit_15mSliceConstrainedToWindow(t *testing.T) {
	m5 := series(200, 5*60_000, candles.Timeframe5m)
	m15 := series(60, 15*60_000, candles.Timeframe15m)
	data := candles.TimeframeData{M5: m5, M15: m15}

	chunks := Split(data, 100, 60)
	require.Len(t, chunks, 2)

	for _, c := range chunks {
		for _, candle := range c.M15 {
			assert.GreaterOrEqual(t, candle.TimestampMs, c.M5[0].TimestampMs-fifteenMinuteMs)
			assert.LessOrEqual(t, candle.TimestampMs, c.M5[len(c.M5)-1].TimestampMs)
		}
	}
}

func TestSplit_EmptySeriesYieldsNoChunks(t *testing.T) {
	chunks := Split(candles.TimeframeData{}, 100, 60)
	assert.Empty(t, chunks)
}

func TestWorkerCount_NeverExceedsChunkCount(t *testing.T) {
	assert.LessOrEqual(t, WorkerCount(2), 2)
	assert.GreaterOrEqual(t, WorkerCount(100), 1)
}
