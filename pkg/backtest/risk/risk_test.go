package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptofunk/backtestcore/pkg/backtest/analyzer"
)

func TestCalculate_LongStopAndTPs(t *testing.T) {
	plan, err := Calculate(Params{
		Direction:            analyzer.Long,
		EntryPrice:           100,
		AtrPercent:           1,
		SLMultiplier:         2,
		MinSLDistancePercent: 0.5,
		TakeProfits: []TakeProfitConfig{
			{PercentFromEntry: 1, SizePercent: 50},
			{PercentFromEntry: 2, SizePercent: 50},
		},
		Size: 10,
	})
	require.NoError(t, err)
	assert.InDelta(t, 98, plan.Stop, 0.001) // raw: 2*(100*1/100)=2 -> stop=98
	assert.InDelta(t, 101, plan.TakeProfits[0].Price, 0.001)
	assert.InDelta(t, 5, plan.TakeProfits[0].SizeShare, 0.001)
	assert.InDelta(t, 102, plan.TakeProfits[1].Price, 0.001)
}

func TestCalculate_ShortDirection(t *testing.T) {
	plan, err := Calculate(Params{
		Direction:            analyzer.Short,
		EntryPrice:           100,
		AtrPercent:           1,
		SLMultiplier:         2,
		MinSLDistancePercent: 0.5,
		TakeProfits:          []TakeProfitConfig{{PercentFromEntry: 1, SizePercent: 100}},
		Size:                 10,
	})
	require.NoError(t, err)
	assert.InDelta(t, 102, plan.Stop, 0.001)
	assert.InDelta(t, 99, plan.TakeProfits[0].Price, 0.001)
}

func TestCalculate_WidenedByMinStopDistance(t *testing.T) {
	plan, err := Calculate(Params{
		Direction:            analyzer.Long,
		EntryPrice:           100,
		AtrPercent:           0.1, // raw distance tiny
		SLMultiplier:         1,
		MinSLDistancePercent: 2, // min distance dominates
	})
	require.NoError(t, err)
	assert.InDelta(t, 98, plan.Stop, 0.001)
}

func TestCalculate_RejectsNonPositiveATR(t *testing.T) {
	_, err := Calculate(Params{Direction: analyzer.Long, EntryPrice: 100, AtrPercent: 0, SLMultiplier: 1})
	var invalid *InvalidRiskParameters
	assert.ErrorAs(t, err, &invalid)
}

func TestCalculate_RejectsNonPositiveMultiplier(t *testing.T) {
	_, err := Calculate(Params{Direction: analyzer.Long, EntryPrice: 100, AtrPercent: 1, SLMultiplier: 0})
	var invalid *InvalidRiskParameters
	assert.ErrorAs(t, err, &invalid)
}

func TestCalculate_RejectsBadSizePercentSum(t *testing.T) {
	_, err := Calculate(Params{
		Direction:    analyzer.Long,
		EntryPrice:   100,
		AtrPercent:   1,
		SLMultiplier: 1,
		TakeProfits:  []TakeProfitConfig{{PercentFromEntry: 1, SizePercent: 60}},
	})
	var invalid *InvalidRiskParameters
	assert.ErrorAs(t, err, &invalid)
}

func TestPositionSize_MinOfRiskAndExposure(t *testing.T) {
	size := PositionSize(SizeParams{
		Balance:         10000,
		EntryPrice:      100,
		Stop:            98,
		RiskPerTradePct: 0.5,
		MaxExposurePct:  5,
	})
	// size_by_risk = (10000*0.005)/2 = 25; size_by_exposure = (10000*0.05)/100 = 5
	assert.InDelta(t, 5, size, 0.001)
}

func TestATRFromCandle_FloorsAtPercentOfClose(t *testing.T) {
	assert.InDelta(t, 0.2, ATRFromCandle(100.1, 100, 100), 0.001)
	assert.InDelta(t, 5, ATRFromCandle(105, 100, 100), 0.001)
}

func TestKellySize_ConservativeDefaultWithFewTrades(t *testing.T) {
	size := KellySize(TradeStats{TotalTrades: 5, WinningTrades: 3, AvgWin: 10, AvgLoss: 5}, 10000, 1)
	assert.InDelta(t, 1000, size, 0.001)
}

func TestKellySize_CapsAtMax(t *testing.T) {
	size := KellySize(TradeStats{TotalTrades: 100, WinningTrades: 90, AvgWin: 10, AvgLoss: 1}, 10000, 1)
	assert.InDelta(t, 2500, size, 0.001)
}

func TestKellySize_FloorsAtMinWhenNegativeEdge(t *testing.T) {
	size := KellySize(TradeStats{TotalTrades: 100, WinningTrades: 20, AvgWin: 1, AvgLoss: 10}, 10000, 1)
	assert.InDelta(t, 100, size, 0.001)
}
