package keystroke

import (
	"math"
	"sort"
)

// Small statistics helpers shared by the feature extractor. All of them
// return 0 for degenerate inputs instead of NaN so every feature slot stays
// finite.

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// SampleVariance returns the Bessel-corrected sample variance (n-1 in the
// denominator). Fewer than 2 values yields 0.
func SampleVariance(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	mean := Mean(values)
	sum := 0.0
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}
	return sum / float64(n-1)
}

// StdDev is the square root of the sample variance.
func StdDev(values []float64) float64 {
	return math.Sqrt(SampleVariance(values))
}

// Percentile returns the p-th percentile (p in [0,100]) using the
// ceiling-rank convention: idx = ceil(p/100 * n) - 1, clamped to [0, n-1],
// over the ascending sort. Empty input yields 0.
func Percentile(values []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(math.Ceil(p/100.0*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}
