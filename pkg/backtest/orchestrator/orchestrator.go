// Package orchestrator implements the trend-aware entry gate (spec.md
// §4.6): restricted-direction check, entry-threshold check, then the filter
// chain, in that exact order. Grounded on
// internal/orchestrator/orchestrator.go's sequential-gate shape, adapted
// from agent-action gating to trade-entry gating.
package orchestrator

import (
	"github.com/cryptofunk/backtestcore/pkg/backtest/aggregator"
	"github.com/cryptofunk/backtestcore/pkg/backtest/analyzer"
	"github.com/cryptofunk/backtestcore/pkg/backtest/filter"
)

// Verdict is the orchestrator's ENTER/SKIP decision.
type Verdict string

const (
	Enter Verdict = "ENTER"
	Skip  Verdict = "SKIP"
)

// Decision is the orchestrator's output for one bar.
type Decision struct {
	Verdict Verdict
	Reason  string
}

func enter() Decision { return Decision{Verdict: Enter} }

func skip(reason string) Decision { return Decision{Verdict: Skip, Reason: reason} }

// Params bundles everything Decide needs for one bar.
type Params struct {
	Signal                   aggregator.Result
	EntryThreshold           float64
	FlatMarketEntryThreshold float64 // used instead of EntryThreshold when IsFlatMarket
	IsFlatMarket             bool

	FilterInput  filter.Input
	FilterConfig filter.Config
}

// Decide applies spec.md §4.6's rules in order.
func Decide(p Params) Decision {
	for _, d := range p.FilterInput.Trend.RestrictedDirections {
		if d == p.Signal.Direction {
			return skip("direction restricted by trend analysis")
		}
	}

	threshold := p.EntryThreshold
	if p.IsFlatMarket {
		threshold = p.FlatMarketEntryThreshold
	}
	if p.Signal.Confidence < threshold {
		return skip("aggregated confidence below entry threshold")
	}

	if res := filter.Evaluate(p.FilterInput, p.FilterConfig); !res.Allowed {
		return skip("blocked by filter: " + res.BlockedBy)
	}

	if p.Signal.Direction != analyzer.Long && p.Signal.Direction != analyzer.Short {
		return skip("no directional proposal")
	}

	return enter()
}
