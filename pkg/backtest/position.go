// Package backtest implements the per-bar Backtest Engine (spec.md §4.7):
// the main candle-stepping loop wired through the analyzer, aggregator,
// filter, orchestrator and risk packages. Grounded on the former
// pkg/backtest/engine.go's Run/Step loop shape and Strategy-driven design,
// generalized from a hardcoded buy/sell Strategy to a StrategyConfig-driven
// pipeline.
package backtest

import (
	"github.com/cryptofunk/backtestcore/pkg/backtest/analyzer"
	"github.com/cryptofunk/backtestcore/pkg/backtest/risk"
)

// ExitReason names why a position's remaining size was closed.
type ExitReason string

const (
	ExitTakeProfit    ExitReason = "TP_HIT"
	ExitStopLoss      ExitReason = "SL_HIT"
	ExitEndOfBacktest ExitReason = "END_OF_BACKTEST"
)

// TakeProfitState is one TP level's price, size share and hit state.
type TakeProfitState struct {
	Price     float64
	SizeShare float64
	Hit       bool
}

// Position is an immutable value — every state transition (a fill, a
// trailing-stop activation) produces a new Position rather than mutating
// one in place. This replaces the teacher's mutate-in-place *Position with
// Quantity/CurrentPrice/UnrealizedPL fields updated by method calls.
type Position struct {
	Symbol          string
	Direction       analyzer.Direction
	EntryPrice      float64
	EntryTimestampMs int64
	Stop            float64
	TakeProfits     []TakeProfitState
	RemainingSize   float64
	OriginalSize    float64
	TrailingActive  bool
}

// ClosedFill is one realized slice of a position (a TP hit, an SL hit, or
// an end-of-backtest close).
type ClosedFill struct {
	Symbol        string
	Direction     analyzer.Direction
	EntryPrice    float64
	ExitPrice     float64
	Size          float64
	ExitReason    ExitReason
	EntryTimestampMs int64
	ExitTimestampMs  int64
}

func (p Position) pnl(exitPrice, size float64) float64 {
	if p.Direction == analyzer.Long {
		return (exitPrice - p.EntryPrice) * size
	}
	return (p.EntryPrice - exitPrice) * size
}

// FillOutcome is applyIntraBarFills' result for one bar: the position's new
// value (nil if fully closed), any realized fills, and the balance delta to
// credit.
type FillOutcome struct {
	Position     *Position
	Fills        []ClosedFill
	BalanceDelta float64
	TPHitNow     bool // a TP was realized on this bar (for cooldown tracking)
}

// applyIntraBarFills evaluates one bar's high/low against an open
// position's TP ladder and stop, in the exact order spec.md §4.7 step 2
// requires: TPs in ascending level order first (optimistic "price touched
// the profit extreme before the loss extreme" convention), stop-loss only
// afterward and only if size remains.
func applyIntraBarFills(p Position, high, low float64, timestampMs int64) FillOutcome {
	var fills []ClosedFill
	var balanceDelta float64
	tpHitNow := false
	p.TakeProfits = append([]TakeProfitState(nil), p.TakeProfits...) // leave the caller's ladder untouched

	for i := range p.TakeProfits {
		tp := &p.TakeProfits[i]
		if tp.Hit || tp.SizeShare <= 0 {
			continue
		}
		triggered := (p.Direction == analyzer.Long && high >= tp.Price) ||
			(p.Direction == analyzer.Short && low <= tp.Price)
		if !triggered {
			continue
		}

		tp.Hit = true
		tpHitNow = true
		realizedSize := tp.SizeShare
		if realizedSize > p.RemainingSize {
			realizedSize = p.RemainingSize
		}
		pnl := p.pnl(tp.Price, realizedSize)
		balanceDelta += pnl
		p.RemainingSize -= realizedSize

		fills = append(fills, ClosedFill{
			Symbol:           p.Symbol,
			Direction:        p.Direction,
			EntryPrice:       p.EntryPrice,
			ExitPrice:        tp.Price,
			Size:             realizedSize,
			ExitReason:       ExitTakeProfit,
			EntryTimestampMs: p.EntryTimestampMs,
			ExitTimestampMs:  timestampMs,
		})

		if countHit(p.TakeProfits) >= 2 {
			p.TrailingActive = true
		}
	}

	if p.RemainingSize > 0 {
		slTriggered := (p.Direction == analyzer.Long && low <= p.Stop) ||
			(p.Direction == analyzer.Short && high >= p.Stop)
		if slTriggered {
			pnl := p.pnl(p.Stop, p.RemainingSize)
			balanceDelta += pnl
			fills = append(fills, ClosedFill{
				Symbol:           p.Symbol,
				Direction:        p.Direction,
				EntryPrice:       p.EntryPrice,
				ExitPrice:        p.Stop,
				Size:             p.RemainingSize,
				ExitReason:       ExitStopLoss,
				EntryTimestampMs: p.EntryTimestampMs,
				ExitTimestampMs:  timestampMs,
			})
			p.RemainingSize = 0
		}
	}

	out := FillOutcome{Fills: fills, BalanceDelta: balanceDelta, TPHitNow: tpHitNow}
	if p.RemainingSize > 0 {
		out.Position = &p
	}
	return out
}

func countHit(tps []TakeProfitState) int {
	n := 0
	for _, tp := range tps {
		if tp.Hit {
			n++
		}
	}
	return n
}

// closeRemainder force-closes whatever size remains, used for
// end-of-backtest (spec.md §4.7 step 7).
func closeRemainder(p Position, exitPrice float64, reason ExitReason, timestampMs int64) (ClosedFill, float64) {
	pnl := p.pnl(exitPrice, p.RemainingSize)
	return ClosedFill{
		Symbol:           p.Symbol,
		Direction:        p.Direction,
		EntryPrice:       p.EntryPrice,
		ExitPrice:        exitPrice,
		Size:             p.RemainingSize,
		ExitReason:       reason,
		EntryTimestampMs: p.EntryTimestampMs,
		ExitTimestampMs:  timestampMs,
	}, pnl
}

// newPositionFromPlan opens a position from a risk.Plan (spec.md §4.7 step
// 5a). Size is not debited from balance — the cash model records only
// realized PnL.
func newPositionFromPlan(symbol string, dir analyzer.Direction, entryPrice float64, timestampMs int64, size float64, plan risk.Plan) Position {
	tps := make([]TakeProfitState, len(plan.TakeProfits))
	for i, tp := range plan.TakeProfits {
		tps[i] = TakeProfitState{Price: tp.Price, SizeShare: tp.SizeShare}
	}
	return Position{
		Symbol:           symbol,
		Direction:        dir,
		EntryPrice:       entryPrice,
		EntryTimestampMs: timestampMs,
		Stop:             plan.Stop,
		TakeProfits:      tps,
		RemainingSize:    size,
		OriginalSize:     size,
	}
}
