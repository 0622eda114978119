package risk

import (
	"github.com/rs/zerolog/log"
)

// TradeStats summarizes a run's closed trades for Kelly sizing, adapted
// from kelly.go's TradingStats (Total/Winning/LosingTrades, AvgWin/Loss).
type TradeStats struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	AvgWin        float64
	AvgLoss       float64 // positive magnitude
}

func (s TradeStats) winRate() float64 {
	if s.TotalTrades == 0 {
		return 0
	}
	return float64(s.WinningTrades) / float64(s.TotalTrades)
}

const (
	minTradesForKelly  = 30
	conservativeSizing = 0.10
	minKellySizing     = 0.01
	maxKellySizing     = 0.25
)

// KellySize computes a position size fraction of capital using the full
// Kelly formula f* = (p*b - q) / b, adapted from kelly.go's
// CalculatePositionSize. Falls back to a conservative 10% allocation when
// there isn't enough trade history or the inputs are degenerate, floors at
// 1%, and caps at 25% — same guard bands as the teacher.
func KellySize(stats TradeStats, capital, kellyFraction float64) float64 {
	if stats.TotalTrades < minTradesForKelly {
		log.Debug().Int("trades", stats.TotalTrades).Msg("risk: insufficient trade history for kelly sizing, using conservative default")
		return capital * conservativeSizing
	}

	winRate := stats.winRate()
	if winRate <= 0 || winRate >= 1 || stats.AvgLoss <= 0 {
		log.Debug().Float64("win_rate", winRate).Msg("risk: degenerate kelly inputs, using conservative default")
		return capital * conservativeSizing
	}

	b := stats.AvgWin / stats.AvgLoss
	p := winRate
	q := 1 - p
	kelly := (p*b - q) / b

	if kelly <= 0 {
		log.Debug().Float64("kelly", kelly).Msg("risk: negative kelly edge, using minimum sizing")
		return capital * minKellySizing
	}

	sized := kelly * kellyFraction
	if sized > maxKellySizing {
		sized = maxKellySizing
	}
	if sized < minKellySizing {
		sized = minKellySizing
	}
	return capital * sized
}
