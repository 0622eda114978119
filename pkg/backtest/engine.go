package backtest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cryptofunk/backtestcore/pkg/backtest/aggregator"
	"github.com/cryptofunk/backtestcore/pkg/backtest/analyzer"
	"github.com/cryptofunk/backtestcore/pkg/backtest/candles"
	"github.com/cryptofunk/backtestcore/pkg/backtest/filter"
	"github.com/cryptofunk/backtestcore/pkg/backtest/indicatorcache"
	"github.com/cryptofunk/backtestcore/pkg/backtest/orchestrator"
	"github.com/cryptofunk/backtestcore/pkg/backtest/risk"
)

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	TimestampMs int64
	Balance     float64
}

// Config parameterizes one Engine run, assembled by the caller (typically
// from internal/strategy.Config) so this package stays independent of the
// config-document format.
type Config struct {
	Analyzers       []analyzer.Config
	AnalyzerFailure analyzer.FailureMode
	MinReadyAnalyzers int

	Aggregator aggregator.Config

	Filters filter.Config

	EntryThreshold           float64
	FlatMarketEntryThreshold float64
	MaxOpenPositions         int

	SLMultiplier         float64
	MinSLDistancePercent float64
	TakeProfits          []risk.TakeProfitConfig
	RiskPerTradePercent  float64
	MaxExposurePercent   float64

	// SizingMode and KellyFraction are carried from the strategy document but
	// not read by the engine: openPosition always sizes by the
	// risk-%/exposure-cap rule (risk.PositionSize).
	SizingMode    string
	KellyFraction float64
}

// trendWindowSize is the number of 15-minute candles the trend snapshot
// looks back over (spec.md §4.7 step 3).
const trendWindowSize = 60

// trendThresholdPercent is the close-to-close move, as a percentage, that
// separates UPTREND/DOWNTREND from NEUTRAL (spec.md §4.7 step 3).
const trendThresholdPercent = 0.2

// Engine runs the per-bar main loop over one symbol's candle data (spec.md
// §4.7). Grounded on the former engine.go's Run/Step loop shape and zerolog
// progress-logging idiom.
type Engine struct {
	Symbol string
	Data   candles.TimeframeData
	Config Config

	Balance       float64
	OpenPositions []Position
	ClosedTrades  []ClosedFill
	EquityCurve   []EquityPoint

	LastTPTimestampMs int64
	LastTPDirection   analyzer.Direction

	cache *indicatorcache.Cache

	minCandlesRequired int

	// WarmupBars suppresses entry evaluation for the first N bars of Run
	// while intra-bar fills are still applied to them. Used by the chunk
	// executor (spec.md §4.9) to treat a chunk's prepended lookback candles
	// as warm-up only; zero for an ordinary single-chunk run.
	WarmupBars int

	// KeepOpenAtEnd skips the end-of-data forced close so a chunk's
	// terminal open_positions can be carried into the next chunk (spec.md
	// §4.9). False for an ordinary single-chunk run and for a series'
	// final chunk.
	KeepOpenAtEnd bool
}

// NewEngine builds an Engine ready to Run.
func NewEngine(symbol string, data candles.TimeframeData, cfg Config, initialBalance float64) (*Engine, error) {
	e := &Engine{
		Symbol:  symbol,
		Data:    data,
		Config:  cfg,
		Balance: initialBalance,
		cache:   indicatorcache.New(indicatorcache.DefaultCapacity),
	}

	minRequired := 1
	for _, ac := range cfg.Analyzers {
		if !ac.Enabled {
			continue
		}
		need, err := analyzer.MinCandlesRequired(ac)
		if err != nil {
			return nil, err
		}
		if need > minRequired {
			minRequired = need
		}
	}
	e.minCandlesRequired = minRequired
	return e, nil
}

// Run executes the candle-stepping main loop, strictly ascending over the
// 5-minute series (spec.md §4.7).
func (e *Engine) Run(ctx context.Context) error {
	m5 := e.Data.M5
	for i, bar := range m5 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// New PRIMARY bar: indicator cache is bar-local (spec.md §4.2).
		e.cache.Clear()

		e.applyFillsForBar(bar)

		if i >= e.WarmupBars && i+1 >= e.minCandlesRequired {
			e.evaluateEntry(m5[:i+1], bar)
		}

		e.EquityCurve = append(e.EquityCurve, EquityPoint{TimestampMs: bar.TimestampMs, Balance: e.Balance})

		if i > 0 && i%1000 == 0 {
			log.Info().Str("symbol", e.Symbol).Int("bar", i).Int("total", len(m5)).Float64("balance", e.Balance).Msg("backtest progress")
		}
	}

	if len(m5) > 0 && !e.KeepOpenAtEnd {
		e.closeAllPositions(m5[len(m5)-1].Close, m5[len(m5)-1].TimestampMs)
	}
	return nil
}

func (e *Engine) applyFillsForBar(bar candles.Candle) {
	remaining := e.OpenPositions[:0]
	for _, pos := range e.OpenPositions {
		outcome := applyIntraBarFills(pos, bar.High, bar.Low, bar.TimestampMs)
		e.Balance += outcome.BalanceDelta
		e.ClosedTrades = append(e.ClosedTrades, outcome.Fills...)
		if outcome.TPHitNow {
			e.LastTPTimestampMs = bar.TimestampMs
			e.LastTPDirection = pos.Direction
		}
		if outcome.Position != nil {
			remaining = append(remaining, *outcome.Position)
		}
	}
	e.OpenPositions = remaining
}

func (e *Engine) evaluateEntry(windowSoFar []candles.Candle, bar candles.Candle) {
	if len(e.OpenPositions) >= e.Config.MaxOpenPositions {
		return
	}

	trend := e.trendSnapshot(bar.TimestampMs)

	signals, err := analyzer.Run(windowSoFar, analyzer.SetConfig{
		Analyzers:         e.Config.Analyzers,
		FailureMode:       e.Config.AnalyzerFailure,
		MinReadyAnalyzers: e.Config.MinReadyAnalyzers,
	})
	if err != nil {
		var notReady *analyzer.ErrNotEnoughReady
		if !errors.As(err, &notReady) {
			log.Error().Err(err).Str("symbol", e.Symbol).Msg("analyzer set aborted in strict mode")
		}
		return
	}

	agg := aggregator.Aggregate(signals, e.Config.Aggregator)
	if agg.Direction != analyzer.Long && agg.Direction != analyzer.Short {
		return
	}

	flatScore := flatMarketScore(windowSoFar)
	atr := risk.ATRFromCandle(bar.High, bar.Low, bar.Close)
	atrPct := risk.ATRPercent(atr, bar.Close)

	assetReturns := returnsFromCandles(lastN(windowSoFar, e.correlationLookback()))
	benchReturns, benchTrendUp := e.benchmarkContext(bar.TimestampMs)

	filterInput := filter.Input{
		Direction:          agg.Direction,
		FlatMarketScore:    flatScore,
		FundingRate:        nil,
		AssetReturns:       assetReturns,
		BenchmarkReturns:   benchReturns,
		BenchmarkTrendUp:   benchTrendUp,
		Trend:              trend,
		LastTPTimestampMs:  e.LastTPTimestampMs,
		LastTPDirection:    e.LastTPDirection,
		CurrentTimestampMs: bar.TimestampMs,
		HourUTC:            time.UnixMilli(bar.TimestampMs).UTC().Hour(),
		AtrPercent:         atrPct,
		SignalConfidence:   agg.Confidence,
	}

	decision := orchestrator.Decide(orchestrator.Params{
		Signal:                   agg,
		EntryThreshold:           e.Config.EntryThreshold,
		FlatMarketEntryThreshold: e.Config.FlatMarketEntryThreshold,
		IsFlatMarket:             flatScore >= flatThresholdOf(e.Config.Filters),
		FilterInput:              filterInput,
		FilterConfig:             e.Config.Filters,
	})
	if decision.Verdict != orchestrator.Enter {
		return
	}

	e.openPosition(agg.Direction, bar, atrPct)
}

func (e *Engine) openPosition(dir analyzer.Direction, bar candles.Candle, atrPct float64) {
	// The stop distance depends only on ATR/multiplier, never on size, so
	// it can be derived before sizing. Size then depends on that stop, and
	// the TP ladder's size shares depend on the final size — Calculate is
	// therefore called twice: once to learn the stop, once to derive the
	// ladder against the real size.
	riskParams := risk.Params{
		Direction:            dir,
		EntryPrice:           bar.Close,
		AtrPercent:           atrPct,
		SLMultiplier:         e.Config.SLMultiplier,
		MinSLDistancePercent: e.Config.MinSLDistancePercent,
		TakeProfits:          e.Config.TakeProfits,
	}

	stopOnly, err := risk.Calculate(riskParams)
	if err != nil {
		log.Error().Err(err).Str("symbol", e.Symbol).Msg("invalid risk parameters, skipping entry")
		return
	}

	size := risk.PositionSize(risk.SizeParams{
		Balance:         e.Balance,
		EntryPrice:      bar.Close,
		Stop:            stopOnly.Stop,
		RiskPerTradePct: e.Config.RiskPerTradePercent,
		MaxExposurePct:  e.Config.MaxExposurePercent,
	})
	if size <= 0 {
		return
	}

	riskParams.Size = size
	plan, err := risk.Calculate(riskParams)
	if err != nil {
		return
	}

	pos := newPositionFromPlan(e.Symbol, dir, bar.Close, bar.TimestampMs, size, plan)
	e.OpenPositions = append(e.OpenPositions, pos)
}

func (e *Engine) closeAllPositions(closePrice float64, timestampMs int64) {
	for _, pos := range e.OpenPositions {
		fill, pnl := closeRemainder(pos, closePrice, ExitEndOfBacktest, timestampMs)
		e.Balance += pnl
		e.ClosedTrades = append(e.ClosedTrades, fill)
	}
	e.OpenPositions = nil
}

// trendSnapshot implements spec.md §4.7 step 3.
func (e *Engine) trendSnapshot(currentTimestampMs int64) filter.TrendAnalysis {
	m15 := candles.Slice(e.Data.M15, currentTimestampMs)
	if len(m15) > trendWindowSize {
		m15 = m15[len(m15)-trendWindowSize:]
	}
	if len(m15) < 2 {
		return filter.TrendAnalysis{Bias: filter.Neutral, Strength: 0}
	}

	firstClose := m15[0].Close
	lastClose := m15[len(m15)-1].Close
	changePct := pctChange(lastClose, firstClose)

	bias := filter.Neutral
	switch {
	case changePct > trendThresholdPercent:
		bias = filter.Uptrend
	case changePct < -trendThresholdPercent:
		bias = filter.Downtrend
	}

	strength := changePct
	if strength < 0 {
		strength = -strength
	}
	if strength > 100 {
		strength = 100
	}

	return filter.TrendAnalysis{Bias: bias, Strength: strength}
}

func (e *Engine) correlationLookback() int {
	if e.Config.Filters.Correlation != nil && e.Config.Filters.Correlation.Lookback > 0 {
		return e.Config.Filters.Correlation.Lookback
	}
	return 30
}

func (e *Engine) benchmarkContext(currentTimestampMs int64) ([]float64, bool) {
	bm5 := candles.Slice(e.Data.BenchmarkM5, currentTimestampMs)
	lookback := e.correlationLookback()
	bm5 = lastN(bm5, lookback)
	if len(bm5) < 2 {
		return nil, false
	}
	trendUp := bm5[len(bm5)-1].Close > bm5[0].Close
	return returnsFromCandles(bm5), trendUp
}

func pctChange(current, reference float64) float64 {
	if reference == 0 {
		return 0
	}
	return (current - reference) / reference * 100
}

func lastN(c []candles.Candle, n int) []candles.Candle {
	if n <= 0 || len(c) <= n {
		return c
	}
	return c[len(c)-n:]
}

func returnsFromCandles(c []candles.Candle) []float64 {
	closes := make([]float64, len(c))
	for i, x := range c {
		closes[i] = x.Close
	}
	return simpleReturns(closes)
}

func simpleReturns(series []float64) []float64 {
	if len(series) == 0 {
		return nil
	}
	out := make([]float64, len(series))
	for i := 1; i < len(series); i++ {
		if series[i-1] == 0 {
			continue
		}
		out[i] = (series[i] - series[i-1]) / series[i-1]
	}
	return out
}

// flatMarketScore is a 0-100 proxy for how range-bound the recent window
// is: the percentage distance between the window's high and low, inverted
// so a tight range scores high. Grounded on no literal teacher analog (no
// "flat market" concept anywhere in the corpus) — designed fresh as a pure
// function of the candles already in memory, consistent with spec.md
// §4.5's "no I/O" requirement for filters.
func flatMarketScore(window []candles.Candle) float64 {
	tail := lastN(window, 20)
	if len(tail) < 2 {
		return 0
	}
	high, low := tail[0].High, tail[0].Low
	for _, c := range tail[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	if high == 0 {
		return 0
	}
	rangePct := (high - low) / high * 100
	score := 100 - rangePct*20
	return clampScore(score)
}

func clampScore(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 100 {
		return 100
	}
	return x
}

func flatThresholdOf(cfg filter.Config) float64 {
	if cfg.FlatMarket != nil {
		return cfg.FlatMarket.FlatThreshold
	}
	return 70
}

