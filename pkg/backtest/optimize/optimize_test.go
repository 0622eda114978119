package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptofunk/backtestcore/pkg/backtest"
)

func TestGenerateCombinations_CartesianProduct(t *testing.T) {
	grid := map[string][]float64{
		"a": {1, 2},
		"b": {10, 20, 30},
	}
	combos := GenerateCombinations(grid)
	assert.Len(t, combos, 6)
}

func TestGenerateCombinations_EmptyGridYieldsOneEmptyCombination(t *testing.T) {
	combos := GenerateCombinations(map[string][]float64{})
	require.Len(t, combos, 1)
	assert.Empty(t, combos[0])
}

func TestRun_GridModeTestsEveryCombination(t *testing.T) {
	grid := map[string][]float64{"period": {10, 20, 30}}
	calls := 0
	run := func(c Combination) (*backtest.Metrics, error) {
		calls++
		return &backtest.Metrics{SharpeRatio: c["period"]}, nil
	}

	summary, err := Run(grid, Grid, 0, MetricSharpe, 1, run)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, summary.Efficiency.Tested)
	assert.Equal(t, 30.0, summary.BestParams["period"]) // highest sharpe wins
}

func TestRun_RandomModeCapsAtMaxCombinations(t *testing.T) {
	grid := map[string][]float64{"a": {1, 2, 3, 4, 5}, "b": {1, 2}}
	run := func(c Combination) (*backtest.Metrics, error) {
		return &backtest.Metrics{SharpeRatio: c["a"] + c["b"]}, nil
	}

	summary, err := Run(grid, Random, 4, MetricSharpe, 42, run)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(summary.AllResultsRanked), 4)
	assert.Equal(t, 10, summary.Efficiency.TotalCombinations)
}

func TestRun_RandomModeReturnsAllWhenGridSmallerThanMax(t *testing.T) {
	grid := map[string][]float64{"a": {1, 2}}
	run := func(c Combination) (*backtest.Metrics, error) {
		return &backtest.Metrics{SharpeRatio: c["a"]}, nil
	}

	summary, err := Run(grid, Random, 100, MetricSharpe, 1, run)
	require.NoError(t, err)
	assert.Len(t, summary.AllResultsRanked, 2)
}

func TestRun_SkipsInvalidWeightLayoutsAndCountsThem(t *testing.T) {
	grid := map[string][]float64{"w": {0.1, 0.9, 1.5}}
	run := func(c Combination) (*backtest.Metrics, error) {
		if c["w"] > 1 {
			return nil, ErrInvalidWeightLayout
		}
		return &backtest.Metrics{SharpeRatio: c["w"]}, nil
	}

	summary, err := Run(grid, Grid, 0, MetricSharpe, 1, run)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Efficiency.SkippedInvalid)
	assert.Equal(t, 2, summary.Efficiency.Tested)
}

func TestRun_CachesDuplicateCombinations(t *testing.T) {
	grid := map[string][]float64{"period": {10}}
	calls := 0
	run := func(c Combination) (*backtest.Metrics, error) {
		calls++
		return &backtest.Metrics{SharpeRatio: 1}, nil
	}

	// The second run shares the first run's cache, finds the combination
	// already tested, and does not call run again.
	cache := NewCache()
	first, err := RunCached(grid, Grid, 0, MetricSharpe, 1, run, cache)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Efficiency.CacheSavings)

	second, err := RunCached(grid, Grid, 0, MetricSharpe, 1, run, cache)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, second.Efficiency.CacheSavings)
}

func TestRun_RanksByProfitFactorWhenSelected(t *testing.T) {
	grid := map[string][]float64{"x": {1, 2, 3}}
	run := func(c Combination) (*backtest.Metrics, error) {
		return &backtest.Metrics{ProfitFactor: c["x"], SharpeRatio: 4 - c["x"]}, nil
	}

	summary, err := Run(grid, Grid, 0, MetricProfitFactor, 1, run)
	require.NoError(t, err)
	assert.Equal(t, 3.0, summary.BestParams["x"])
}

func TestCompositeScore_Bounded(t *testing.T) {
	m := &backtest.Metrics{WinRate: 1, ProfitFactor: 10, SharpeRatio: 5, TotalTrades: 100}
	score := CompositeScore(m)
	assert.InDelta(t, 1.0, score, 0.0001)
}

func TestCompositeScore_Zero(t *testing.T) {
	score := CompositeScore(&backtest.Metrics{})
	assert.Equal(t, 0.0, score)
}
