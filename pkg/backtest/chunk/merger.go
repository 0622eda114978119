package chunk

import (
	"fmt"
	"math"
	"sort"

	"github.com/cryptofunk/backtestcore/pkg/backtest"
)

// conservationTolerance bounds acceptable drift between the merged final
// balance and initial_balance + Σ realized_pnl (spec.md §8 "Conservation").
const conservationTolerance = 1e-8

// Merged is the Parallel Chunk Executor's combined output (spec.md §4.9).
type Merged struct {
	ClosedTrades []backtest.ClosedFill
	EquityCurve  []backtest.EquityPoint
	FinalBalance float64

	Valid  bool
	Errors []string
}

// Merge sorts results by ChunkID, concatenates closed_trades and equity
// points (deduplicating consecutive points sharing a timestamp), and
// validates sequencing, per-chunk errors and balance conservation (spec.md
// §4.9).
func Merge(results []Result, initialBalance float64) Merged {
	sorted := append([]Result(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChunkID < sorted[j].ChunkID })

	m := Merged{Valid: true}

	for i, r := range sorted {
		if r.Err != nil {
			m.Valid = false
			m.Errors = append(m.Errors, fmt.Sprintf("chunk %d: %v", r.ChunkID, r.Err))
			continue
		}
		if i > 0 && sorted[i].ChunkID != sorted[i-1].ChunkID+1 {
			m.Valid = false
			m.Errors = append(m.Errors, fmt.Sprintf("chunk sequence gap: %d follows %d", sorted[i].ChunkID, sorted[i-1].ChunkID))
		}
		if i > 0 && len(m.EquityCurve) > 0 && len(r.EquityCurve) > 0 {
			prevLast := m.EquityCurve[len(m.EquityCurve)-1].TimestampMs
			thisFirst := r.EquityCurve[0].TimestampMs
			if thisFirst < prevLast {
				m.Valid = false
				m.Errors = append(m.Errors, fmt.Sprintf("chunk %d equity curve out of order relative to previous chunk", r.ChunkID))
			}
		}

		m.ClosedTrades = append(m.ClosedTrades, r.ClosedTrades...)
		m.EquityCurve = appendDedup(m.EquityCurve, r.EquityCurve)
	}

	if len(sorted) > 0 {
		m.FinalBalance = sorted[len(sorted)-1].TerminalBalance
	} else {
		m.FinalBalance = initialBalance
	}

	realizedPnL := 0.0
	for _, t := range m.ClosedTrades {
		realizedPnL += fillPnL(t)
	}
	expected := initialBalance + realizedPnL
	if math.Abs(m.FinalBalance-expected) >= conservationTolerance*math.Max(1, math.Abs(initialBalance)) {
		m.Valid = false
		m.Errors = append(m.Errors, fmt.Sprintf("conservation violated: final=%.8f expected=%.8f", m.FinalBalance, expected))
	}

	return m
}

// appendDedup concatenates curve onto base, dropping curve's leading point if
// it shares a timestamp with base's trailing point (spec.md §4.9).
func appendDedup(base, curve []backtest.EquityPoint) []backtest.EquityPoint {
	if len(base) > 0 && len(curve) > 0 && base[len(base)-1].TimestampMs == curve[0].TimestampMs {
		curve = curve[1:]
	}
	return append(base, curve...)
}

func fillPnL(t backtest.ClosedFill) float64 {
	if t.Direction == "LONG" {
		return (t.ExitPrice - t.EntryPrice) * t.Size
	}
	return (t.EntryPrice - t.ExitPrice) * t.Size
}
