package candles

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileProvider loads candles from flat JSON files, one per (symbol,
// timeframe), named "<symbol>_<timeframe>.json" under Dir. Grounded on
// agent_replay.go's HistoricalDataLoader JSON backend, generalized from a
// single series to the three-timeframe bundle this engine requires.
type FileProvider struct {
	Dir string
}

var _ Provider = (*FileProvider)(nil)

func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{Dir: dir}
}

func (p *FileProvider) loadSeries(symbol string, tf Timeframe) ([]Candle, error) {
	path := filepath.Join(p.Dir, fmt.Sprintf("%s_%s.json", symbol, tf))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var raw []Candle
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for i := range raw {
		raw[i].Symbol = symbol
		raw[i].Timeframe = tf
	}
	sortAscending(raw)
	return raw, nil
}

func (p *FileProvider) filterRange(c []Candle, startMs, endMs int64) []Candle {
	var out []Candle
	for _, x := range c {
		if startMs != 0 && x.TimestampMs < startMs {
			continue
		}
		if endMs != 0 && x.TimestampMs > endMs {
			continue
		}
		out = append(out, x)
	}
	return out
}

// Load implements Provider.
func (p *FileProvider) Load(_ context.Context, symbol string, startMs, endMs int64) (TimeframeData, error) {
	m1, err := p.loadSeries(symbol, Timeframe1m)
	if err != nil {
		return TimeframeData{}, err
	}
	m5, err := p.loadSeries(symbol, Timeframe5m)
	if err != nil {
		return TimeframeData{}, err
	}
	m15, err := p.loadSeries(symbol, Timeframe15m)
	if err != nil {
		return TimeframeData{}, err
	}

	m1, m5, m15 = p.filterRange(m1, startMs, endMs), p.filterRange(m5, startMs, endMs), p.filterRange(m15, startMs, endMs)
	if err := RequireNonEmpty(symbol, startMs, endMs, m1, m5, m15); err != nil {
		return TimeframeData{}, err
	}
	return TimeframeData{Symbol: symbol, M1: m1, M5: m5, M15: m15}, nil
}

// LoadWithBenchmark implements Provider.
func (p *FileProvider) LoadWithBenchmark(ctx context.Context, symbol, benchmarkSymbol string, startMs, endMs int64) (TimeframeData, error) {
	td, err := p.Load(ctx, symbol, startMs, endMs)
	if err != nil {
		return TimeframeData{}, err
	}
	bm5, err := p.loadSeries(benchmarkSymbol, Timeframe5m)
	if err != nil {
		return TimeframeData{}, err
	}
	bm15, err := p.loadSeries(benchmarkSymbol, Timeframe15m)
	if err != nil {
		return TimeframeData{}, err
	}
	bm5, bm15 = p.filterRange(bm5, startMs, endMs), p.filterRange(bm15, startMs, endMs)
	if len(bm5) == 0 || len(bm15) == 0 {
		return TimeframeData{}, &ErrInsufficientData{Symbol: benchmarkSymbol, Timeframe: Timeframe5m, StartMs: startMs, EndMs: endMs}
	}
	td.BenchmarkSymbol = benchmarkSymbol
	td.BenchmarkM5 = bm5
	td.BenchmarkM15 = bm15
	return td, nil
}
