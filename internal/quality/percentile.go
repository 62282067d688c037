package quality

import (
	"math"
	"sort"
)

// percentile computes the nearest-rank percentile (p in [0,100]) of
// values. values is not mutated; an empty slice yields 0.
func percentile(values []int64, p float64) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := int(math.Ceil(p * float64(len(sorted)) / 100))
	if rank > len(sorted) {
		rank = len(sorted)
	}
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
