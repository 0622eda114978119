package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cryptofunk/backtestcore/pkg/backtest/analyzer"
	"github.com/cryptofunk/backtestcore/pkg/backtest/risk"
)

func longPosition(entry, stop float64, tps ...TakeProfitState) Position {
	size := 0.0
	for _, tp := range tps {
		size += tp.SizeShare
	}
	return Position{
		Symbol:        "BTC",
		Direction:     analyzer.Long,
		EntryPrice:    entry,
		Stop:          stop,
		TakeProfits:   tps,
		RemainingSize: size,
		OriginalSize:  size,
	}
}

// Scenario 1 (spec.md §8): trivial LONG to TP1.
func TestApplyIntraBarFills_TrivialLongToTP(t *testing.T) {
	pos := longPosition(100, 95, TakeProfitState{Price: 105, SizeShare: 10})
	out := applyIntraBarFills(pos, 110, 100, 3)
	assert.Nil(t, out.Position)
	assert.Len(t, out.Fills, 1)
	assert.Equal(t, ExitTakeProfit, out.Fills[0].ExitReason)
	assert.InDelta(t, 50, out.BalanceDelta, 0.0001) // (105-100)*10
}

// Scenario 2 (spec.md §8): SL hit before TP, no TP in range.
func TestApplyIntraBarFills_StopLossOnly(t *testing.T) {
	pos := longPosition(100, 95, TakeProfitState{Price: 105, SizeShare: 10})
	out := applyIntraBarFills(pos, 100, 94, 4)
	assert.Nil(t, out.Position)
	assert.Len(t, out.Fills, 1)
	assert.Equal(t, ExitStopLoss, out.Fills[0].ExitReason)
	assert.InDelta(t, -50, out.BalanceDelta, 0.0001) // (95-100)*10
}

// Scenario 3 (spec.md §8): TP1 then SL on the remainder in the same bar —
// TPs are always evaluated before the stop.
func TestApplyIntraBarFills_TPThenSLSameBar(t *testing.T) {
	pos := longPosition(100, 95,
		TakeProfitState{Price: 105, SizeShare: 5},
		TakeProfitState{Price: 110, SizeShare: 5},
	)
	out := applyIntraBarFills(pos, 106, 94, 10)
	assert.Nil(t, out.Position)
	assert.Len(t, out.Fills, 2)
	assert.Equal(t, ExitTakeProfit, out.Fills[0].ExitReason)
	assert.Equal(t, ExitStopLoss, out.Fills[1].ExitReason)
	// net = 5*(105-100) + 5*(95-100) = 25 - 25 = 0
	assert.InDelta(t, 0, out.BalanceDelta, 0.0001)
}

func TestApplyIntraBarFills_SecondTPActivatesTrailing(t *testing.T) {
	pos := longPosition(100, 95,
		TakeProfitState{Price: 105, SizeShare: 5},
		TakeProfitState{Price: 110, SizeShare: 5},
		TakeProfitState{Price: 120, SizeShare: 5},
	)
	out := applyIntraBarFills(pos, 111, 100, 1)
	assert.Len(t, out.Fills, 2)
	if out.Position != nil {
		assert.True(t, out.Position.TrailingActive)
	}
}

func TestApplyIntraBarFills_NoTriggerKeepsPositionOpen(t *testing.T) {
	pos := longPosition(100, 95, TakeProfitState{Price: 105, SizeShare: 10})
	out := applyIntraBarFills(pos, 102, 98, 1)
	assert.NotNil(t, out.Position)
	assert.Empty(t, out.Fills)
	assert.Equal(t, 0.0, out.BalanceDelta)
}

func TestApplyIntraBarFills_ShortDirection(t *testing.T) {
	pos := Position{
		Symbol:        "BTC",
		Direction:     analyzer.Short,
		EntryPrice:    100,
		Stop:          105,
		TakeProfits:   []TakeProfitState{{Price: 95, SizeShare: 10}},
		RemainingSize: 10,
		OriginalSize:  10,
	}
	out := applyIntraBarFills(pos, 96, 94, 1)
	assert.Nil(t, out.Position)
	assert.InDelta(t, 50, out.BalanceDelta, 0.0001) // (100-95)*10
}

func TestNewPositionFromPlan(t *testing.T) {
	plan, err := risk.Calculate(risk.Params{
		Direction:            analyzer.Long,
		EntryPrice:           100,
		AtrPercent:           1,
		SLMultiplier:         2,
		MinSLDistancePercent: 0.5,
		TakeProfits:          []risk.TakeProfitConfig{{PercentFromEntry: 5, SizePercent: 100}},
		Size:                 10,
	})
	assert.NoError(t, err)

	pos := newPositionFromPlan("BTC", analyzer.Long, 100, 1000, 10, plan)
	assert.Equal(t, 10.0, pos.RemainingSize)
	assert.Equal(t, plan.Stop, pos.Stop)
	assert.Len(t, pos.TakeProfits, 1)
}
