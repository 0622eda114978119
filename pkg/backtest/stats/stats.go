// Package stats holds the small statistical helpers shared across metrics,
// the benchmark-correlation filter and the walk-forward engine. Grounded on
// internal/risk/calculator.go's hand-rolled stddev/moving-average helpers —
// no library in the retrieved corpus wraps these, every example repo that
// needs them rolls its own over math.
package stats

import "math"

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the population standard deviation of xs (no Bessel's
// correction — matches the per-bar-return series usage in spec.md §4.13).
func StdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := Mean(xs)
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

// Returns computes the simple return series r_i = (x_i - x_{i-1}) / x_{i-1}
// over a series, with the first point fixed at 0 (spec.md §4.13).
func Returns(series []float64) []float64 {
	if len(series) == 0 {
		return nil
	}
	out := make([]float64, len(series))
	for i := 1; i < len(series); i++ {
		prev := series[i-1]
		if prev == 0 {
			out[i] = 0
			continue
		}
		out[i] = (series[i] - prev) / prev
	}
	return out
}

// Pearson computes the Pearson correlation coefficient between two equal
// length series. Returns 0 if either series has zero variance or inputs
// differ in length (callers are expected to "fail open" on such inputs per
// the benchmark-correlation filter's contract, spec.md §4.5 #4).
func Pearson(a, b []float64) (float64, bool) {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0, false
	}
	meanA, meanB := Mean(a), Mean(b)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0, false
	}
	return cov / math.Sqrt(varA*varB), true
}

// ClosePrices extracts the Close field of a candle-like slice via a caller
// supplied accessor, avoiding an import of the candles package here (kept
// dependency-free so metrics/replay/walkforward can all use it).
func ClosePrices[T any](items []T, close func(T) float64) []float64 {
	out := make([]float64, len(items))
	for i, it := range items {
		out[i] = close(it)
	}
	return out
}

// Clamp restricts x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
