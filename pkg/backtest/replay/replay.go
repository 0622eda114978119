// Package replay implements Event Replay (spec.md §4.12): reconstructing
// metrics and an equity curve from a recorded trade list without rerunning
// the engine, plus a metric-level comparison against the original run.
package replay

import (
	"fmt"
	"math"
	"sort"

	"github.com/cryptofunk/backtestcore/pkg/backtest"
)

// Result is Replay's output: the reconstructed metrics and equity curve,
// plus any integrity violations found in the input trade list.
type Result struct {
	Metrics     backtest.Metrics
	EquityCurve []backtest.EquityPoint
	Violations  []string
}

// Replay reconstructs metrics/equity_curve from trades without rerunning the
// engine (spec.md §4.12). Integrity violations are reported, not fatal —
// the reconstruction still runs over whatever trades are present.
func Replay(trades []backtest.ClosedFill, initialBalance float64) Result {
	violations := validate(trades)

	sorted := append([]backtest.ClosedFill(nil), trades...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ExitTimestampMs < sorted[j].ExitTimestampMs })

	balance := initialBalance
	curve := make([]backtest.EquityPoint, 0, len(sorted)+1)
	for _, t := range sorted {
		balance += pnl(t)
		curve = append(curve, backtest.EquityPoint{TimestampMs: t.ExitTimestampMs, Balance: balance})
	}

	e := &backtest.Engine{ClosedTrades: sorted, EquityCurve: curve}
	return Result{
		Metrics:     backtest.CalculateMetrics(e),
		EquityCurve: curve,
		Violations:  violations,
	}
}

func validate(trades []backtest.ClosedFill) []string {
	var violations []string
	for i, t := range trades {
		if t.ExitTimestampMs < t.EntryTimestampMs {
			violations = append(violations, fmt.Sprintf("trade %d: exit_time %d before entry_time %d", i, t.ExitTimestampMs, t.EntryTimestampMs))
		}
		if t.Size <= 0 {
			violations = append(violations, fmt.Sprintf("trade %d: non-positive size %.8f", i, t.Size))
		}
		if t.EntryPrice < 0 || t.ExitPrice < 0 {
			violations = append(violations, fmt.Sprintf("trade %d: negative price", i))
		}
	}
	return violations
}

func pnl(t backtest.ClosedFill) float64 {
	if t.Direction == "LONG" {
		return (t.ExitPrice - t.EntryPrice) * t.Size
	}
	return (t.EntryPrice - t.ExitPrice) * t.Size
}

// relativeTolerance is compareMetrics' 1% relative agreement bound (spec.md
// §4.12).
const relativeTolerance = 0.01

// Compare reports whether original and replayed agree on every scalar
// metric within 1% relative tolerance, and matches trade count exactly
// (spec.md §4.12).
func Compare(original, replayed backtest.Metrics) (bool, []string) {
	var mismatches []string

	if original.TotalTrades != replayed.TotalTrades {
		mismatches = append(mismatches, fmt.Sprintf("total_trades: %d != %d", original.TotalTrades, replayed.TotalTrades))
	}

	checks := []struct {
		name string
		a, b float64
	}{
		{"win_rate", original.WinRate, replayed.WinRate},
		{"profit_factor", original.ProfitFactor, replayed.ProfitFactor},
		{"average_win", original.AverageWin, replayed.AverageWin},
		{"average_loss", original.AverageLoss, replayed.AverageLoss},
		{"largest_win", original.LargestWin, replayed.LargestWin},
		{"largest_loss", original.LargestLoss, replayed.LargestLoss},
		{"sharpe_ratio", original.SharpeRatio, replayed.SharpeRatio},
		{"max_drawdown", original.MaxDrawdown, replayed.MaxDrawdown},
	}
	for _, c := range checks {
		if !withinTolerance(c.a, c.b) {
			mismatches = append(mismatches, fmt.Sprintf("%s: %.6f != %.6f (>1%% relative)", c.name, c.a, c.b))
		}
	}

	return len(mismatches) == 0, mismatches
}

func withinTolerance(a, b float64) bool {
	if a == b {
		return true
	}
	denom := math.Max(math.Abs(a), 1e-12)
	return math.Abs(a-b)/denom <= relativeTolerance
}
