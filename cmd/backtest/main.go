// Command backtest is the CLI surface over the engine, chunk executor,
// parameter optimizer and walk-forward engine (spec.md §6). It has three
// subcommands: run, optimize, walkforward.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/cryptofunk/backtestcore/internal/config"
	"github.com/cryptofunk/backtestcore/internal/metrics"
	"github.com/cryptofunk/backtestcore/internal/strategy"
	btengine "github.com/cryptofunk/backtestcore/pkg/backtest"
	"github.com/cryptofunk/backtestcore/pkg/backtest/candles"
	"github.com/cryptofunk/backtestcore/pkg/backtest/chunk"
	"github.com/cryptofunk/backtestcore/pkg/backtest/optimize"
	"github.com/cryptofunk/backtestcore/pkg/backtest/walkforward"
)

// dateLayout is spec.md §6's "yyyy-mm-dd" flag format.
const dateLayout = "2006-01-02"

// defaultBenchmarkSymbol is used to load the correlation filter's benchmark
// series when a strategy document enables it but does not say otherwise.
const defaultBenchmarkSymbol = "BTC/USDT"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(os.Args[2:])
	case "optimize":
		err = optimizeCmd(os.Args[2:])
	case "walkforward":
		err = walkforwardCmd(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		log.Error().Err(err).Msg("backtest command failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: backtest <run|optimize|walkforward> [flags]")
}

// startMetricsServer starts the Prometheus/health endpoint in the background
// when monitoring is enabled, returning a shutdown func the caller should
// defer.
func startMetricsServer(cfg *config.Config) func() {
	if !cfg.Monitoring.EnableMetrics {
		return func() {}
	}
	srv := metrics.NewServer(cfg.Monitoring.PrometheusPort, log.Logger)
	if err := srv.Start(); err != nil {
		log.Error().Err(err).Msg("failed to start metrics server")
		return func() {}
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// ============================================================================
// run
// ============================================================================

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	strategyPath := fs.String("strategy", "", "path to strategy document (required)")
	symbol := fs.String("symbol", "", "symbol to backtest (required)")
	startStr := fs.String("start", "", "start date (YYYY-MM-DD)")
	endStr := fs.String("end", "", "end date (YYYY-MM-DD)")
	balance := fs.Float64("balance", 0, "initial balance (defaults to configured value)")
	maxPos := fs.Int("max-pos", 0, "max open positions override")
	source := fs.String("source", "", "candle store backend: json or columnar (defaults to configured value)")
	output := fs.String("output", "", "directory to write the result JSON into")
	configPath := fs.String("config", "", "path to config file")
	chunkSize := fs.Int("chunk-size", 0, "candles per chunk (0 uses configured default)")
	workers := fs.Int("workers", 0, "worker pool size (0 autodetects)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *strategyPath == "" || *symbol == "" {
		return fmt.Errorf("run: -strategy and -symbol are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	config.InitLogger(cfg.App.LogLevel, "console")
	defer startMetricsServer(cfg)()

	strat, err := loadStrategy(*strategyPath)
	if err != nil {
		return err
	}

	startMs, endMs, err := parseDateRange(*startStr, *endStr)
	if err != nil {
		return err
	}

	ctx := context.Background()
	provider, closeProvider, err := buildProvider(ctx, cfg, *source)
	if err != nil {
		return err
	}
	defer closeProvider()

	data, err := loadSeries(ctx, provider, strat, *symbol, startMs, endMs)
	if err != nil {
		return fmt.Errorf("loading candle data: %w", err)
	}

	engineCfg := strat.ToEngineConfig()
	if *maxPos > 0 {
		engineCfg.MaxOpenPositions = *maxPos
	}

	initialBalance := cfg.Backtest.InitialBalance
	if *balance > 0 {
		initialBalance = *balance
	}

	size := *chunkSize
	if size <= 0 {
		size = cfg.Backtest.ChunkSize
	}
	lookback := cfg.Backtest.LookbackBars

	chunks := chunk.Split(data, size, lookback)
	results := chunk.Run(ctx, chunks, engineCfg, initialBalance, chunk.StrictSerial, *workers)
	merged := chunk.Merge(results, initialBalance)
	if !merged.Valid {
		return fmt.Errorf("run: chunk merge invariants violated: %v", merged.Errors)
	}

	fakeEngine := &btengine.Engine{
		Balance:      merged.FinalBalance,
		EquityCurve:  merged.EquityCurve,
		ClosedTrades: merged.ClosedTrades,
	}
	runMetrics := btengine.CalculateMetrics(fakeEngine)

	report := runReport{
		Symbol:       *symbol,
		Strategy:     strat.Metadata.Name,
		Metrics:      runMetrics,
		EquityCurve:  merged.EquityCurve,
		Trades:       merged.ClosedTrades,
		FinalBalance: merged.FinalBalance,
	}

	return emitResult(*output, "run", report)
}

type runReport struct {
	Symbol       string                 `json:"symbol"`
	Strategy     string                 `json:"strategy"`
	Metrics      btengine.Metrics       `json:"metrics"`
	EquityCurve  []btengine.EquityPoint `json:"equity_curve"`
	Trades       []btengine.ClosedFill  `json:"trades"`
	FinalBalance float64                `json:"final_balance"`
}

// ============================================================================
// optimize
// ============================================================================

func optimizeCmd(args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ExitOnError)
	strategyPath := fs.String("strategy", "", "path to base strategy document (required)")
	gridPath := fs.String("grid", "", "path to grid JSON file: {\"param\": [values...]} (required)")
	symbol := fs.String("symbol", "", "symbol to optimize against (required)")
	startStr := fs.String("start", "", "start date (YYYY-MM-DD)")
	endStr := fs.String("end", "", "end date (YYYY-MM-DD)")
	method := fs.String("method", "", "grid or random (defaults to configured value)")
	metric := fs.String("metric", "", "sharpe, profitFactor or winRate (defaults to configured value)")
	maxCombos := fs.Int("max", 0, "max combinations to test (0 uses configured default)")
	source := fs.String("source", "", "candle store backend: json or columnar")
	output := fs.String("output", "", "directory to write the result JSON into")
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *strategyPath == "" || *gridPath == "" || *symbol == "" {
		return fmt.Errorf("optimize: -strategy, -grid and -symbol are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	config.InitLogger(cfg.App.LogLevel, "console")
	defer startMetricsServer(cfg)()

	strat, err := loadStrategy(*strategyPath)
	if err != nil {
		return err
	}
	grid, err := loadGrid(*gridPath)
	if err != nil {
		return err
	}

	startMs, endMs, err := parseDateRange(*startStr, *endStr)
	if err != nil {
		return err
	}

	ctx := context.Background()
	provider, closeProvider, err := buildProvider(ctx, cfg, *source)
	if err != nil {
		return err
	}
	defer closeProvider()

	data, err := loadSeries(ctx, provider, strat, *symbol, startMs, endMs)
	if err != nil {
		return fmt.Errorf("loading candle data: %w", err)
	}

	mode := optimize.Mode(cfg.Optimization.Method)
	if *method != "" {
		mode = optimize.Mode(*method)
	}
	met := optimize.Metric(cfg.Optimization.Metric)
	if *metric != "" {
		met = optimize.Metric(*metric)
	}
	max := cfg.Optimization.MaxCombinations
	if *maxCombos > 0 {
		max = *maxCombos
	}

	initialBalance := cfg.Backtest.InitialBalance
	runFn := backtestRunFunc(ctx, strat, data, initialBalance, cfg.Backtest.ChunkSize, cfg.Backtest.LookbackBars)

	summary, err := optimize.Run(grid, mode, max, met, cfg.Optimization.Seed, runFn)
	if err != nil {
		return fmt.Errorf("optimize: %w", err)
	}

	return emitResult(*output, "optimize", summary)
}

// backtestRunFunc adapts one parameter combination into a chunked backtest
// run, returning its metrics, for use as optimize.RunFunc and as the
// out-of-sample half of walkforward.BacktestFunc.
func backtestRunFunc(ctx context.Context, base *strategy.Config, data candles.TimeframeData, initialBalance float64, chunkSize, lookback int) optimize.RunFunc {
	return func(combo optimize.Combination) (*btengine.Metrics, error) {
		doc := base.WithOverrides(combo)
		engineCfg := doc.ToEngineConfig()

		chunks := chunk.Split(data, chunkSize, lookback)
		results := chunk.Run(ctx, chunks, engineCfg, initialBalance, chunk.Independent, 0)
		merged := chunk.Merge(results, initialBalance)
		if !merged.Valid {
			return nil, fmt.Errorf("chunk merge invariants violated: %v", merged.Errors)
		}

		e := &btengine.Engine{Balance: merged.FinalBalance, EquityCurve: merged.EquityCurve, ClosedTrades: merged.ClosedTrades}
		metrics := btengine.CalculateMetrics(e)
		return &metrics, nil
	}
}

// ============================================================================
// walkforward
// ============================================================================

func walkforwardCmd(args []string) error {
	fs := flag.NewFlagSet("walkforward", flag.ExitOnError)
	strategyPath := fs.String("strategy", "", "path to base strategy document (required)")
	gridPath := fs.String("grid", "", "path to grid JSON file (required)")
	symbol := fs.String("symbol", "", "symbol to analyze (required)")
	startStr := fs.String("start", "", "start date (YYYY-MM-DD)")
	endStr := fs.String("end", "", "end date (YYYY-MM-DD)")
	inDays := fs.Int("in-days", 0, "in-sample window length in days (required)")
	oosDays := fs.Int("oos-days", 0, "out-of-sample window length in days (required)")
	metric := fs.String("metric", "", "sharpe, profitFactor or winRate")
	threshold := fs.Float64("threshold", 0, "overfitting detection threshold (0 uses configured default)")
	source := fs.String("source", "", "candle store backend: json or columnar")
	output := fs.String("output", "", "directory to write the result JSON into")
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *strategyPath == "" || *gridPath == "" || *symbol == "" || *inDays <= 0 || *oosDays <= 0 {
		return fmt.Errorf("walkforward: -strategy, -grid, -symbol, -in-days and -oos-days are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	config.InitLogger(cfg.App.LogLevel, "console")
	defer startMetricsServer(cfg)()

	strat, err := loadStrategy(*strategyPath)
	if err != nil {
		return err
	}
	grid, err := loadGrid(*gridPath)
	if err != nil {
		return err
	}

	startMs, endMs, err := parseDateRange(*startStr, *endStr)
	if err != nil {
		return err
	}

	ctx := context.Background()
	provider, closeProvider, err := buildProvider(ctx, cfg, *source)
	if err != nil {
		return err
	}
	defer closeProvider()

	data, err := loadSeries(ctx, provider, strat, *symbol, startMs, endMs)
	if err != nil {
		return fmt.Errorf("loading candle data: %w", err)
	}

	met := optimize.Metric(cfg.Optimization.Metric)
	if *metric != "" {
		met = optimize.Metric(*metric)
	}
	gap := cfg.Optimization.DetectionThreshold
	if *threshold > 0 {
		gap = *threshold
	}

	initialBalance := cfg.Backtest.InitialBalance
	chunkSize, lookback := cfg.Backtest.ChunkSize, cfg.Backtest.LookbackBars

	optimizeFn := func(isData candles.TimeframeData) (optimize.Combination, *btengine.Metrics, error) {
		runFn := backtestRunFunc(ctx, strat, isData, initialBalance, chunkSize, lookback)
		summary, err := optimize.Run(grid, optimize.Mode(cfg.Optimization.Method), cfg.Optimization.MaxCombinations, met, cfg.Optimization.Seed, runFn)
		if err != nil {
			return nil, nil, err
		}
		return summary.BestParams, summary.BestMetrics, nil
	}
	backtestFn := func(oosData candles.TimeframeData, params optimize.Combination) (*btengine.Metrics, error) {
		runFn := backtestRunFunc(ctx, strat, oosData, initialBalance, chunkSize, lookback)
		return runFn(params)
	}

	report, err := walkforward.Run(data, *inDays, *oosDays, met, gap, optimizeFn, backtestFn)
	if err != nil {
		return fmt.Errorf("walkforward: %w", err)
	}

	return emitResult(*output, "walkforward", report)
}

// ============================================================================
// shared helpers
// ============================================================================

func loadStrategy(path string) (*strategy.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading strategy document %s: %w", path, err)
	}
	cfg, err := strategy.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing strategy document %s: %w", path, err)
	}
	return cfg, nil
}

func loadGrid(path string) (map[string][]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading grid file %s: %w", path, err)
	}
	var grid map[string][]float64
	if err := json.Unmarshal(data, &grid); err != nil {
		return nil, fmt.Errorf("parsing grid file %s: %w", path, err)
	}
	return grid, nil
}

func parseDateRange(startStr, endStr string) (startMs, endMs int64, err error) {
	if startStr != "" {
		t, perr := time.Parse(dateLayout, startStr)
		if perr != nil {
			return 0, 0, fmt.Errorf("invalid -start date %q: %w", startStr, perr)
		}
		startMs = t.UnixMilli()
	}
	if endStr != "" {
		t, perr := time.Parse(dateLayout, endStr)
		if perr != nil {
			return 0, 0, fmt.Errorf("invalid -end date %q: %w", endStr, perr)
		}
		endMs = t.UnixMilli()
	}
	return startMs, endMs, nil
}

// buildProvider constructs the candle provider named by source (falling
// back to cfg.CandleStore.Kind), and a cleanup func to release any pool it
// opened.
func buildProvider(ctx context.Context, cfg *config.Config, source string) (candles.Provider, func(), error) {
	kind := cfg.CandleStore.Kind
	if source != "" {
		kind = source
	}

	switch kind {
	case "columnar":
		pool, err := pgxpool.New(ctx, cfg.CandleStore.Path)
		if err != nil {
			return nil, func() {}, fmt.Errorf("connecting to columnar candle store: %w", err)
		}
		return candles.NewColumnarProvider(pool), func() { pool.Close() }, nil
	default:
		return candles.NewFileProvider(cfg.CandleStore.Path), func() {}, nil
	}
}

// loadSeries loads symbol's TimeframeData, pulling in the correlation
// filter's benchmark series when the strategy document enables it.
func loadSeries(ctx context.Context, provider candles.Provider, strat *strategy.Config, symbol string, startMs, endMs int64) (candles.TimeframeData, error) {
	if strat.Filters.Correlation != nil && strat.Filters.Correlation.Enabled {
		return provider.LoadWithBenchmark(ctx, symbol, defaultBenchmarkSymbol, startMs, endMs)
	}
	return provider.Load(ctx, symbol, startMs, endMs)
}

// emitResult prints payload as JSON to stdout and, if dir is non-empty,
// also writes it to "<dir>/<command>-<timestamp>.json".
func emitResult(dir, command string, payload interface{}) error {
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s result: %w", command, err)
	}
	fmt.Println(string(out))

	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", dir, err)
	}
	path := fmt.Sprintf("%s/%s-%d.json", dir, command, time.Now().UnixMilli())
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("writing output file %s: %w", path, err)
	}
	log.Info().Str("file", path).Msg("result written to file")
	return nil
}
