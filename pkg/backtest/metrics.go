package backtest

import (
	"math"

	"github.com/cryptofunk/backtestcore/pkg/backtest/stats"
)

// profitFactorSentinel is emitted when gross_loss == 0 and gross_profit > 0
// (spec.md §4.13, §8's "Profit-factor sentinel" testable property).
const profitFactorSentinel = 999

// tradingDaysPerYear annualizes the per-bar Sharpe ratio (spec.md §4.13).
const tradingDaysPerYear = 252

// Metrics summarizes one run's closed trades and equity curve, replacing
// the former metrics.go's annualized-return-based Sharpe formula with
// spec.md §4.13's exact per-bar-return-series definition.
type Metrics struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64

	GrossProfit  float64
	GrossLoss    float64
	ProfitFactor float64

	AverageWin  float64
	AverageLoss float64
	LargestWin  float64
	LargestLoss float64

	SharpeRatio  float64
	MaxDrawdown  float64
}

// CalculateMetrics derives Metrics from an Engine's closed trades and
// equity curve (spec.md §4.13).
func CalculateMetrics(e *Engine) Metrics {
	m := Metrics{}
	tradePnLs := make([]float64, 0, len(e.ClosedTrades))
	for _, t := range e.ClosedTrades {
		pnl := fillPnL(t)
		tradePnLs = append(tradePnLs, pnl)

		m.TotalTrades++
		if pnl > 0 {
			m.WinningTrades++
			m.GrossProfit += pnl
			if pnl > m.LargestWin {
				m.LargestWin = pnl
			}
		} else if pnl < 0 {
			m.LosingTrades++
			m.GrossLoss += -pnl
			if pnl < m.LargestLoss {
				m.LargestLoss = pnl
			}
		}
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	}
	if m.WinningTrades > 0 {
		m.AverageWin = m.GrossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = m.GrossLoss / float64(m.LosingTrades)
	}

	switch {
	case m.GrossLoss == 0 && m.GrossProfit > 0:
		m.ProfitFactor = profitFactorSentinel
	case m.GrossLoss == 0 && m.GrossProfit == 0:
		m.ProfitFactor = 0
	default:
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	}

	m.SharpeRatio = sharpeFromEquityCurve(e.EquityCurve)
	m.MaxDrawdown = maxDrawdown(e.EquityCurve)

	return m
}

func fillPnL(t ClosedFill) float64 {
	if t.Direction == "LONG" {
		return (t.ExitPrice - t.EntryPrice) * t.Size
	}
	return (t.EntryPrice - t.ExitPrice) * t.Size
}

func sharpeFromEquityCurve(curve []EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	balances := make([]float64, len(curve))
	for i, p := range curve {
		balances[i] = p.Balance
	}
	returns := stats.Returns(balances)
	sd := stats.StdDev(returns)
	if sd == 0 {
		return 0
	}
	return stats.Mean(returns) / sd * math.Sqrt(tradingDaysPerYear)
}

func maxDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Balance
	var worst float64
	for _, p := range curve {
		if p.Balance > peak {
			peak = p.Balance
		}
		if peak == 0 {
			continue
		}
		dd := (peak - p.Balance) / peak
		if dd > worst {
			worst = dd
		}
	}
	return worst
}
