package flow

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SizeStats summarizes a payload size distribution.
type SizeStats struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// ComputeSizeStats computes summary statistics over the given samples. The
// input slice is not modified. An empty input yields a zero SizeStats.
func ComputeSizeStats(samples []float64) SizeStats {
	if len(samples) == 0 {
		return SizeStats{}
	}

	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	s := SizeStats{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  stat.Mean(sorted, nil),
		P50:   stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P95:   stat.Quantile(0.95, stat.Empirical, sorted, nil),
		P99:   stat.Quantile(0.99, stat.Empirical, sorted, nil),
	}
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	return s
}
