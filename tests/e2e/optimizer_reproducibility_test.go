package e2e

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	btengine "github.com/cryptofunk/backtestcore/pkg/backtest"
	"github.com/cryptofunk/backtestcore/pkg/backtest/optimize"
)

// TestOptimizerReproducibility covers spec scenario 5: a 3x2 grid yields 6
// combinations, ranking is stable, and a cache shared across two identical
// runs reports zero savings on the first pass and full savings on the
// second.
func TestOptimizerReproducibility(t *testing.T) {
	grid := map[string][]float64{
		"period":    {10, 20, 30},
		"threshold": {0.5, 1.0},
	}

	run := func(c optimize.Combination) (*btengine.Metrics, error) {
		return &btengine.Metrics{SharpeRatio: c["period"] + c["threshold"]}, nil
	}

	cache := optimize.NewCache()

	first, err := optimize.RunCached(grid, optimize.Grid, 0, optimize.MetricSharpe, 1, run, cache)
	require.NoError(t, err)
	assert.Equal(t, 6, first.Efficiency.TotalCombinations)
	assert.Equal(t, 6, first.Efficiency.Tested)
	assert.Equal(t, 0, first.Efficiency.CacheSavings)
	require.Len(t, first.AllResultsRanked, 6)
	assert.Equal(t, 30.0, first.BestParams["period"])
	assert.Equal(t, 1.0, first.BestParams["threshold"])

	for i := 1; i < len(first.AllResultsRanked); i++ {
		assert.GreaterOrEqual(t, first.AllResultsRanked[i-1].Score, first.AllResultsRanked[i].Score,
			"ranking must be sorted by descending score")
	}

	second, err := optimize.RunCached(grid, optimize.Grid, 0, optimize.MetricSharpe, 1, run, cache)
	require.NoError(t, err)
	assert.Equal(t, 6, second.Efficiency.TotalCombinations)
	assert.Equal(t, 0, second.Efficiency.Tested)
	assert.Equal(t, 6, second.Efficiency.CacheSavings)
	assert.Equal(t, first.BestParams, second.BestParams)
	assert.Equal(t, first.AllResultsRanked, second.AllResultsRanked)
}
