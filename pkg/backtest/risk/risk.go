// Package risk implements the ATR-scaled stop/take-profit sizing of
// spec.md §4.8, plus the §4.7 step 5a position-sizing formulas. Grounded on
// internal/risk/calculator.go's guard-clause-and-log shape for parameter
// validation.
package risk

import (
	"fmt"
	"math"

	"github.com/cryptofunk/backtestcore/pkg/backtest/analyzer"
)

// TakeProfitConfig is one strategy-configured TP level (spec.md §3
// StrategyConfig.riskManagement.takeProfits[]).
type TakeProfitConfig struct {
	PercentFromEntry float64 // p
	SizePercent      float64 // s, of the full position
}

// TakeProfit is a derived TP level attached to a position.
type TakeProfit struct {
	Price     float64
	SizeShare float64
	Hit       bool
}

// Params is the Risk Calculator's input (spec.md §4.8).
type Params struct {
	Direction            analyzer.Direction
	EntryPrice           float64
	AtrPercent           float64
	SLMultiplier         float64
	MinSLDistancePercent float64
	TakeProfits          []TakeProfitConfig
	Size                 float64 // total position size, for TP size_share derivation
}

// Plan is the Risk Calculator's output: a stop price and TP ladder.
type Plan struct {
	Stop        float64
	TakeProfits []TakeProfit
}

// InvalidRiskParameters is emitted per spec.md §4.8's failure clause.
type InvalidRiskParameters struct {
	Reason string
}

func (e *InvalidRiskParameters) Error() string {
	return fmt.Sprintf("invalid risk parameters: %s", e.Reason)
}

const sizePercentTolerance = 0.01

// Calculate derives a stop and TP ladder exactly per spec.md §4.8.
func Calculate(p Params) (Plan, error) {
	if p.AtrPercent <= 0 {
		return Plan{}, &InvalidRiskParameters{Reason: "atr_percent must be > 0"}
	}
	if p.SLMultiplier <= 0 {
		return Plan{}, &InvalidRiskParameters{Reason: "sl_multiplier must be > 0"}
	}
	var sizePercentSum float64
	for _, tp := range p.TakeProfits {
		sizePercentSum += tp.SizePercent
	}
	if len(p.TakeProfits) > 0 && math.Abs(sizePercentSum-100) > sizePercentTolerance {
		return Plan{}, &InvalidRiskParameters{Reason: fmt.Sprintf("take-profit size percentages sum to %.4f, want 100±%.2f", sizePercentSum, sizePercentTolerance)}
	}

	rawStopDistance := p.SLMultiplier * (p.EntryPrice * p.AtrPercent / 100)
	minStopDistance := p.EntryPrice * p.MinSLDistancePercent / 100
	stopDistance := math.Max(rawStopDistance, minStopDistance)

	var stop float64
	if p.Direction == analyzer.Long {
		stop = p.EntryPrice - stopDistance
	} else {
		stop = p.EntryPrice + stopDistance
	}

	tps := make([]TakeProfit, len(p.TakeProfits))
	for i, cfg := range p.TakeProfits {
		var price float64
		if p.Direction == analyzer.Long {
			price = p.EntryPrice * (1 + cfg.PercentFromEntry/100)
		} else {
			price = p.EntryPrice * (1 - cfg.PercentFromEntry/100)
		}
		tps[i] = TakeProfit{
			Price:     price,
			SizeShare: p.Size * cfg.SizePercent / 100,
		}
	}

	return Plan{Stop: stop, TakeProfits: tps}, nil
}

// PositionSize computes size_by_risk, size_by_exposure, and their minimum
// per spec.md §4.7 step 5a.
type SizeParams struct {
	Balance           float64
	EntryPrice        float64
	Stop              float64
	RiskPerTradePct   float64 // default 0.5
	MaxExposurePct    float64 // default 5
}

func PositionSize(p SizeParams) float64 {
	riskAmount := p.Balance * p.RiskPerTradePct / 100
	distance := math.Abs(p.EntryPrice - p.Stop)
	if distance == 0 {
		return 0
	}
	sizeByRisk := riskAmount / distance
	sizeByExposure := (p.Balance * p.MaxExposurePct / 100) / p.EntryPrice
	return math.Min(sizeByRisk, sizeByExposure)
}

// ATRFromCandle approximates ATR from a single bar per spec.md §4.7 step
// 5a: max(high-low, 0.002*close).
func ATRFromCandle(high, low, close float64) float64 {
	return math.Max(high-low, 0.002*close)
}

// ATRPercent converts an absolute ATR into a percentage of close.
func ATRPercent(atr, close float64) float64 {
	if close == 0 {
		return 0
	}
	return atr / close * 100
}
