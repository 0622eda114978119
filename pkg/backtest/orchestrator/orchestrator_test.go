package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cryptofunk/backtestcore/pkg/backtest/aggregator"
	"github.com/cryptofunk/backtestcore/pkg/backtest/analyzer"
	"github.com/cryptofunk/backtestcore/pkg/backtest/filter"
)

func TestDecide_RestrictedDirectionSkips(t *testing.T) {
	p := Params{
		Signal: aggregator.Result{Direction: analyzer.Long, Confidence: 90},
		FilterInput: filter.Input{
			Direction: analyzer.Long,
			Trend:     filter.TrendAnalysis{RestrictedDirections: []analyzer.Direction{analyzer.Long}},
		},
		EntryThreshold: 50,
	}
	d := Decide(p)
	assert.Equal(t, Skip, d.Verdict)
}

func TestDecide_BelowThresholdSkips(t *testing.T) {
	p := Params{
		Signal:         aggregator.Result{Direction: analyzer.Long, Confidence: 40},
		EntryThreshold: 50,
	}
	d := Decide(p)
	assert.Equal(t, Skip, d.Verdict)
}

func TestDecide_UsesFlatMarketThresholdWhenFlat(t *testing.T) {
	p := Params{
		Signal:                   aggregator.Result{Direction: analyzer.Long, Confidence: 60},
		EntryThreshold:           50,
		FlatMarketEntryThreshold: 80,
		IsFlatMarket:             true,
	}
	d := Decide(p)
	assert.Equal(t, Skip, d.Verdict)
}

func TestDecide_FilterBlockSkipsWithName(t *testing.T) {
	p := Params{
		Signal:         aggregator.Result{Direction: analyzer.Long, Confidence: 90},
		EntryThreshold: 50,
		FilterInput:    filter.Input{Direction: analyzer.Long, FlatMarketScore: 90},
		FilterConfig:   filter.Config{FlatMarket: filter.DefaultFlatMarketConfig()},
	}
	d := Decide(p)
	assert.Equal(t, Skip, d.Verdict)
	assert.Contains(t, d.Reason, "flat-market")
}

func TestDecide_EntersWhenEverythingClears(t *testing.T) {
	p := Params{
		Signal:         aggregator.Result{Direction: analyzer.Long, Confidence: 90},
		EntryThreshold: 50,
		FilterInput:    filter.Input{Direction: analyzer.Long, FlatMarketScore: 10},
	}
	d := Decide(p)
	assert.Equal(t, Enter, d.Verdict)
}

func TestDecide_NoDirectionSkips(t *testing.T) {
	p := Params{
		Signal:         aggregator.Result{Direction: analyzer.Hold, Confidence: 90},
		EntryThreshold: 50,
	}
	d := Decide(p)
	assert.Equal(t, Skip, d.Verdict)
}
