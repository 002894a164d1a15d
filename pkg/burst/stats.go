package burst

import (
	"math"
	"sort"
)

// Percentiles summarises a distribution.
type Percentiles struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

// Stats describes burst durations and the idle time between bursts.
type Stats struct {
	Duration       Percentiles `json:"duration"`
	InterBurstTime Percentiles `json:"inter_burst_time"`
}

// ComputeStats returns duration and inter-burst percentiles over time-ordered bursts.
func ComputeStats(bursts []Burst) Stats {
	durations := make([]float64, 0, len(bursts))
	gaps := make([]float64, 0, len(bursts))
	for idx, b := range bursts {
		durations = append(durations, nonNegative(b.Duration()))
		if idx > 0 {
			gaps = append(gaps, nonNegative(b.Begin-bursts[idx-1].End))
		}
	}
	return Stats{
		Duration:       summarize(durations),
		InterBurstTime: summarize(gaps),
	}
}

func summarize(values []float64) Percentiles {
	if len(values) == 0 {
		return Percentiles{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return Percentiles{
		P50: quantile(sorted, 0.50),
		P95: quantile(sorted, 0.95),
		P99: quantile(sorted, 0.99),
		Max: sorted[len(sorted)-1],
	}
}

// quantile interpolates linearly over an ascending slice.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		q = 0
	}
	if q >= 1 {
		q = 1
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
