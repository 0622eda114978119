// Package optimize implements the Parameter Optimizer (spec.md §4.10): grid
// or random search over a parameter grid, backed by a canonical-fingerprint
// result cache and single-metric ranking.
package optimize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/cryptofunk/backtestcore/pkg/backtest"
)

// Mode selects how the parameter grid is searched.
type Mode string

const (
	Grid   Mode = "grid"
	Random Mode = "random"
)

// Metric selects which scalar of backtest.Metrics ranks results.
type Metric string

const (
	MetricSharpe       Metric = "sharpe"
	MetricProfitFactor Metric = "profitFactor"
	MetricWinRate      Metric = "winRate"
)

// Combination is one point in the parameter grid: parameter name -> value.
type Combination map[string]float64

// Clone returns a deep copy, mirroring the teacher's ParameterSet.Clone.
func (c Combination) Clone() Combination {
	clone := make(Combination, len(c))
	for k, v := range c {
		clone[k] = v
	}
	return clone
}

// ErrInvalidWeightLayout is returned by a RunFunc when a combination
// produces a weight group that does not normalize to ≤ 1 (spec.md §4.10);
// such combinations are skipped and counted separately rather than treated
// as a backtest failure.
var ErrInvalidWeightLayout = errors.New("optimize: invalid weight layout")

// RunFunc materializes a strategy from a combination (by deep-cloning a base
// config and overwriting the named parameters, normalizing weight groups)
// and runs a backtest, returning its metrics. Kept as a caller-supplied
// function so this package stays independent of the strategy-document
// schema (internal/strategy.Config).
type RunFunc func(Combination) (*backtest.Metrics, error)

// Result is one combination's outcome.
type Result struct {
	Combination Combination
	Metrics     *backtest.Metrics
	Score       float64
	Rank        int
}

// Efficiency reports the optimizer's search-space coverage (spec.md §4.10).
type Efficiency struct {
	TotalCombinations int
	Tested            int
	CacheSavings      int
	SkippedInvalid    int
	DurationMs        int64
}

// Summary is the optimizer's full output (spec.md §4.10).
type Summary struct {
	BestParams       Combination
	BestMetrics      *backtest.Metrics
	AllResultsRanked []Result
	Efficiency       Efficiency
}

// GenerateCombinations returns the Cartesian product of grid's value lists,
// in the teacher's recursive-combination-generation style.
func GenerateCombinations(grid map[string][]float64) []Combination {
	names := make([]string, 0, len(grid))
	for name := range grid {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic ordering across runs

	return generateRecursive(grid, names, 0, Combination{})
}

func generateRecursive(grid map[string][]float64, names []string, idx int, current Combination) []Combination {
	if idx >= len(names) {
		return []Combination{current.Clone()}
	}
	name := names[idx]
	var out []Combination
	for _, v := range grid[name] {
		next := current.Clone()
		next[name] = v
		out = append(out, generateRecursive(grid, names, idx+1, next)...)
	}
	return out
}

// Sample draws at most max combinations without replacement from combos, in
// generation order if max >= len(combos) (spec.md §4.10: "if the grid is
// smaller, return all").
func Sample(combos []Combination, max int, rng *rand.Rand) []Combination {
	if max <= 0 || max >= len(combos) {
		return combos
	}
	idx := rng.Perm(len(combos))[:max]
	out := make([]Combination, max)
	for i, j := range idx {
		out[i] = combos[j]
	}
	return out
}

// canonicalKey is the JSON-canonical serialization used as the cache key
// (spec.md §4.10); encoding/json sorts map[string]float64 keys alphabetically.
func canonicalKey(c Combination) string {
	b, _ := json.Marshal(c)
	return string(b)
}

// MetricValue extracts the named metric's scalar value from m, shared by
// the walkforward package's overfitting-gap calculation.
func MetricValue(m *backtest.Metrics, metric Metric) float64 {
	return scoreOf(m, metric)
}

func scoreOf(m *backtest.Metrics, metric Metric) float64 {
	switch metric {
	case MetricProfitFactor:
		return m.ProfitFactor
	case MetricWinRate:
		return m.WinRate
	default:
		return m.SharpeRatio
	}
}

// CompositeScore is a diagnostic-only blended score (spec.md §4.10), never
// used for ranking unless the caller explicitly selects it as the metric.
func CompositeScore(m *backtest.Metrics) float64 {
	sharpeTerm := clamp(m.SharpeRatio/3, 0, 1)
	pfTerm := math.Min(m.ProfitFactor/5, 1)
	tradesTerm := math.Min(float64(m.TotalTrades)/50, 1)
	return 0.40*m.WinRate + 0.35*pfTerm + 0.15*sharpeTerm + 0.10*tradesTerm
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Cache holds tested combinations' metrics keyed by their canonical
// fingerprint, reusable across repeated Run calls (spec.md §8 scenario 5: a
// second identical run over the same grid reports full cache_savings). The
// zero value is ready to use.
type Cache map[string]*backtest.Metrics

// NewCache returns an empty, ready-to-share Cache.
func NewCache() Cache { return make(Cache) }

// Run executes the search (spec.md §4.10): generates the grid, optionally
// samples it (random mode), runs each distinct combination once (caching by
// canonical fingerprint), ranks by metric descending, and reports the
// best/ranked results plus efficiency stats. Each call gets its own
// throwaway cache; use RunCached to share a cache across calls.
func Run(grid map[string][]float64, mode Mode, maxCombinations int, metric Metric, seed int64, run RunFunc) (*Summary, error) {
	return RunCached(grid, mode, maxCombinations, metric, seed, run, NewCache())
}

// RunCached is Run with a caller-supplied, cross-call Cache. Passing the
// same Cache to two identical Run calls makes the second one report
// cache_savings equal to the combination count tested by the first.
func RunCached(grid map[string][]float64, mode Mode, maxCombinations int, metric Metric, seed int64, run RunFunc, cache Cache) (*Summary, error) {
	start := time.Now()

	all := GenerateCombinations(grid)
	totalCombinations := len(all)

	combos := all
	if mode == Random {
		rng := rand.New(rand.NewSource(seed)) // #nosec G404 -- reproducible sampling, not cryptographic
		combos = Sample(all, maxCombinations, rng)
	}

	var results []Result
	cacheSavings := 0
	skippedInvalid := 0
	tested := 0

	for _, c := range combos {
		key := canonicalKey(c)
		if m, ok := cache[key]; ok {
			cacheSavings++
			results = append(results, Result{Combination: c, Metrics: m, Score: scoreOf(m, metric)})
			continue
		}

		m, err := run(c)
		if err != nil {
			if errors.Is(err, ErrInvalidWeightLayout) {
				skippedInvalid++
				continue
			}
			return nil, fmt.Errorf("optimize: combination %s: %w", key, err)
		}
		tested++
		cache[key] = m
		results = append(results, Result{Combination: c, Metrics: m, Score: scoreOf(m, metric)})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	for i := range results {
		results[i].Rank = i + 1
	}

	summary := &Summary{
		AllResultsRanked: results,
		Efficiency: Efficiency{
			TotalCombinations: totalCombinations,
			Tested:            tested,
			CacheSavings:      cacheSavings,
			SkippedInvalid:    skippedInvalid,
			DurationMs:        time.Since(start).Milliseconds(),
		},
	}
	if len(results) > 0 {
		summary.BestParams = results[0].Combination
		summary.BestMetrics = results[0].Metrics
	}
	return summary, nil
}
