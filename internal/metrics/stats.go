package metrics

import (
	"math"
	"sort"
)

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

func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	sum := 0.0
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(values)))
}

// Percentile selects the value at index floor(n*p) of the ascending-sorted
// input, clamped to the last element.
func Percentile(sorted []int, p float64) int {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Floor(float64(len(sorted)) * p))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// PerformanceScore maps a latency in milliseconds onto [0,1], where 0ms
// scores 1.0 and anything at or above 5000ms scores 0.
func PerformanceScore(latencyMS float64) float64 {
	score := (5000 - latencyMS) / 5000
	return math.Max(0, math.Min(1, score))
}

func sortedInts(values []int) []int {
	out := make([]int, len(values))
	copy(out, values)
	sort.Ints(out)
	return out
}
