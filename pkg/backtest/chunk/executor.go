package chunk

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/cryptofunk/backtestcore/pkg/backtest"
	"github.com/cryptofunk/backtestcore/pkg/backtest/analyzer"
	"github.com/cryptofunk/backtestcore/pkg/backtest/candles"
)

// Mode selects how chunk-to-chunk state is propagated (spec.md §4.9).
type Mode string

const (
	// StrictSerial waits for chunk k's terminal (balance, open_positions)
	// before starting chunk k+1, so chunks run one after another on the
	// calling goroutine and Run's workers argument is not used. Required
	// when exact state transfer matters (production runs).
	StrictSerial Mode = "strict_serial"
	// Independent runs every chunk from the same speculated starting
	// balance with no open positions, fully in parallel. Valid only when
	// the caller needs aggregate statistics (optimization runs).
	Independent Mode = "independent"
)

// Result is one chunk's terminal state plus whatever it produced.
type Result struct {
	ChunkID int

	ClosedTrades []backtest.ClosedFill
	EquityCurve  []backtest.EquityPoint

	TerminalBalance       float64
	TerminalOpenPositions []backtest.Position
	LastTPTimestampMs     int64
	LastTPDirection       analyzer.Direction

	Err error
}

// WorkerCount returns spec.md §4.9's recommended pool size:
// min(chunkCount, max(1, cpu_count−1)).
func WorkerCount(chunkCount int) int {
	max1 := runtime.NumCPU() - 1
	if max1 < 1 {
		max1 = 1
	}
	if chunkCount < max1 {
		return chunkCount
	}
	return max1
}

// Run executes chunks according to mode and returns one Result per chunk,
// ordered by ChunkID (spec.md §4.9).
func Run(ctx context.Context, chunks []Chunk, cfg backtest.Config, initialBalance float64, mode Mode, workers int) []Result {
	if workers <= 0 {
		workers = WorkerCount(len(chunks))
	}

	results := make([]Result, len(chunks))

	switch mode {
	case Independent:
		runIndependent(ctx, chunks, cfg, initialBalance, workers, results)
	default:
		runStrictSerial(ctx, chunks, cfg, initialBalance, results)
	}

	return results
}

func runIndependent(ctx context.Context, chunks []Chunk, cfg backtest.Config, initialBalance float64, workers int, results []Result) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, ch := range chunks {
		i, ch := i, ch
		g.Go(func() error {
			// Independent chunks never carry state to a sibling, so each is
			// force-closed at its own end regardless of IsLast — there is no
			// next chunk to hand open positions to.
			results[i] = runOne(gctx, ch, cfg, initialBalance, nil, 0, "", false)
			return nil
		})
	}
	_ = g.Wait()
}

// runStrictSerial honors chunk-to-chunk dependency: chunk k+1 cannot start
// until chunk k's terminal state is known, even though a worker pool exists
// for the independent path (spec.md §4.9's "scheduler runs chunks in strict
// order across parallel workers by dependency"). With a hard dependency
// chain the pool collapses to sequential execution.
func runStrictSerial(ctx context.Context, chunks []Chunk, cfg backtest.Config, initialBalance float64, results []Result) {
	balance := initialBalance
	var openPositions []backtest.Position
	var lastTPTimestampMs int64
	var lastTPDirection analyzer.Direction

	for i, ch := range chunks {
		select {
		case <-ctx.Done():
			results[i] = Result{ChunkID: ch.ID, Err: ctx.Err()}
			return
		default:
		}

		res := runOne(ctx, ch, cfg, balance, openPositions, lastTPTimestampMs, lastTPDirection, !ch.IsLast)
		results[i] = res
		if res.Err != nil {
			return
		}
		balance = res.TerminalBalance
		openPositions = res.TerminalOpenPositions
		lastTPTimestampMs = res.LastTPTimestampMs
		lastTPDirection = res.LastTPDirection
	}
}

func runOne(ctx context.Context, ch Chunk, cfg backtest.Config, startingBalance float64, startingPositions []backtest.Position, lastTPTimestampMs int64, lastTPDirection analyzer.Direction, keepOpenAtEnd bool) Result {
	data := candles.TimeframeData{M5: ch.M5, M15: ch.M15}

	e, err := backtest.NewEngine("", data, cfg, startingBalance)
	if err != nil {
		return Result{ChunkID: ch.ID, Err: err}
	}
	e.WarmupBars = ch.LookbackCount
	e.KeepOpenAtEnd = keepOpenAtEnd
	e.OpenPositions = append([]backtest.Position(nil), startingPositions...)
	e.LastTPTimestampMs = lastTPTimestampMs
	e.LastTPDirection = lastTPDirection

	if err := e.Run(ctx); err != nil {
		return Result{ChunkID: ch.ID, Err: err}
	}

	return Result{
		ChunkID:               ch.ID,
		ClosedTrades:          e.ClosedTrades,
		EquityCurve:           e.EquityCurve,
		TerminalBalance:       e.Balance,
		TerminalOpenPositions: e.OpenPositions,
		LastTPTimestampMs:     e.LastTPTimestampMs,
		LastTPDirection:       e.LastTPDirection,
	}
}
