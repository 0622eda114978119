// Package walkforward implements the Walk-Forward Engine (spec.md §4.11):
// rolling in-sample/out-of-sample windows over a candle series, each
// optimized on its IS segment and validated on its OOS segment, with an
// overfitting score derived from the IS/OOS performance gap.
package walkforward

import (
	"fmt"

	"github.com/cryptofunk/backtestcore/pkg/backtest"
	"github.com/cryptofunk/backtestcore/pkg/backtest/candles"
	"github.com/cryptofunk/backtestcore/pkg/backtest/optimize"
)

// DefaultDetectionThreshold is the performance-gap above which a window is
// flagged overfitted (spec.md §4.11).
const DefaultDetectionThreshold = 0.3

const dayMs = 24 * 60 * 60 * 1000

// Window is one rolling in-sample/out-of-sample slice of the candle series,
// expressed as millisecond timestamp bounds (spec.md §4.11).
type Window struct {
	InSampleStartMs  int64
	InSampleEndMs    int64
	OutSampleStartMs int64
	OutSampleEndMs   int64
}

// GenerateWindows anchors the first window at seriesStartMs and slides by
// oosDays each step, non-overlapping on the OOS segment (spec.md §4.11).
// Windows past seriesEndMs are not produced.
func GenerateWindows(seriesStartMs, seriesEndMs int64, inSampleDays, oosDays int) []Window {
	inSampleMs := int64(inSampleDays) * dayMs
	oosMs := int64(oosDays) * dayMs

	var windows []Window
	cursor := seriesStartMs
	for {
		isEnd := cursor + inSampleMs
		oosStart := isEnd
		oosEnd := oosStart + oosMs
		if oosEnd > seriesEndMs {
			break
		}
		windows = append(windows, Window{
			InSampleStartMs:  cursor,
			InSampleEndMs:    isEnd,
			OutSampleStartMs: oosStart,
			OutSampleEndMs:   oosEnd,
		})
		cursor += oosMs
	}
	return windows
}

// OptimizeFunc runs the parameter optimizer over the in-sample segment and
// returns the winning combination plus its in-sample metrics.
type OptimizeFunc func(isData candles.TimeframeData) (optimize.Combination, *backtest.Metrics, error)

// BacktestFunc runs a single backtest with a fixed parameter combination
// over the out-of-sample segment.
type BacktestFunc func(oosData candles.TimeframeData, params optimize.Combination) (*backtest.Metrics, error)

// WindowResult is one window's in-sample/out-of-sample outcome.
type WindowResult struct {
	Window           Window
	OptimalParams    optimize.Combination
	InSampleMetrics  *backtest.Metrics
	OutSampleMetrics *backtest.Metrics
	PerformanceGap   float64
	OverfittingScore float64
	Overfitted       bool
	Err              error
}

// Report aggregates every window's result (spec.md §4.11).
type Report struct {
	Windows             []WindowResult
	TotalWindows        int
	OverfittedWindows   int
	OverfittingRate     float64
	AvgOverfittingScore float64
}

// sliceByTime returns the subset of a symbol's candle series with
// TimestampMs in [startMs, endMs).
func sliceByTime(data candles.TimeframeData, startMs, endMs int64) candles.TimeframeData {
	return candles.TimeframeData{
		Symbol:          data.Symbol,
		M1:              filterRange(data.M1, startMs, endMs),
		M5:              filterRange(data.M5, startMs, endMs),
		M15:             filterRange(data.M15, startMs, endMs),
		BenchmarkSymbol: data.BenchmarkSymbol,
		BenchmarkM5:     filterRange(data.BenchmarkM5, startMs, endMs),
		BenchmarkM15:    filterRange(data.BenchmarkM15, startMs, endMs),
	}
}

func filterRange(series []candles.Candle, startMs, endMs int64) []candles.Candle {
	var out []candles.Candle
	for _, c := range series {
		if c.TimestampMs >= startMs && c.TimestampMs < endMs {
			out = append(out, c)
		}
	}
	return out
}

// Run executes the walk-forward analysis (spec.md §4.11).
func Run(data candles.TimeframeData, inSampleDays, oosDays int, metric optimize.Metric, detectionThreshold float64, optimizeFn OptimizeFunc, backtestFn BacktestFunc) (*Report, error) {
	if detectionThreshold <= 0 {
		detectionThreshold = DefaultDetectionThreshold
	}

	startMs, endMs, ok := seriesBounds(data.M5)
	if !ok {
		return &Report{}, nil
	}

	windows := GenerateWindows(startMs, endMs, inSampleDays, oosDays)

	report := &Report{TotalWindows: len(windows)}
	var overfittingSum float64

	for _, w := range windows {
		isData := sliceByTime(data, w.InSampleStartMs, w.InSampleEndMs)
		oosData := sliceByTime(data, w.OutSampleStartMs, w.OutSampleEndMs)

		params, isMetrics, err := optimizeFn(isData)
		if err != nil {
			report.Windows = append(report.Windows, WindowResult{Window: w, Err: fmt.Errorf("in-sample optimization: %w", err)})
			continue
		}

		oosMetrics, err := backtestFn(oosData, params)
		if err != nil {
			report.Windows = append(report.Windows, WindowResult{Window: w, OptimalParams: params, InSampleMetrics: isMetrics, Err: fmt.Errorf("out-of-sample backtest: %w", err)})
			continue
		}

		isScore := optimize.MetricValue(isMetrics, metric)
		oosScore := optimize.MetricValue(oosMetrics, metric)

		gap := performanceGap(isScore, oosScore)
		overfitScore := clamp(gap, 0, 1)
		overfitted := gap > detectionThreshold

		if overfitted {
			report.OverfittedWindows++
		}
		overfittingSum += overfitScore

		report.Windows = append(report.Windows, WindowResult{
			Window:           w,
			OptimalParams:    params,
			InSampleMetrics:  isMetrics,
			OutSampleMetrics: oosMetrics,
			PerformanceGap:   gap,
			OverfittingScore: overfitScore,
			Overfitted:       overfitted,
		})
	}

	if report.TotalWindows > 0 {
		report.OverfittingRate = float64(report.OverfittedWindows) / float64(report.TotalWindows)
		report.AvgOverfittingScore = overfittingSum / float64(report.TotalWindows)
	}

	return report, nil
}

// performanceGap is spec.md §4.11's 1 − (OOS/IS). A zero in-sample score
// makes the ratio undefined: the gap is 0 when OOS is also zero and 1 (total
// degradation) otherwise. A negative in-sample score uses the ratio as is.
func performanceGap(isScore, oosScore float64) float64 {
	if isScore == 0 {
		if oosScore == 0 {
			return 0
		}
		return 1
	}
	return 1 - (oosScore / isScore)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func seriesBounds(series []candles.Candle) (start, end int64, ok bool) {
	if len(series) == 0 {
		return 0, 0, false
	}
	return series[0].TimestampMs, series[len(series)-1].TimestampMs, true
}
