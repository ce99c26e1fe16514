package metrics

import (
	"sort"

	"github.com/montanaflynn/stats"
)

// Quantiles bound the sample distribution before aggregation. [0, 1] keeps
// everything; [0.05, 0.95] drops the tails that flaky automation produces.
type Quantiles [2]float64

// DefaultQuantiles keeps the full distribution.
var DefaultQuantiles = Quantiles{0, 1}

// Valid reports whether the bounds form a proper sub-interval of [0, 1].
func (q Quantiles) Valid() bool {
	return q[0] >= 0 && q[1] <= 1 && q[0] < q[1]
}

// clip discards samples outside the quantile bounds. The input is not
// modified.
func clip(samples []float64, q Quantiles) []float64 {
	if len(samples) == 0 || (q[0] == 0 && q[1] == 1) {
		return samples
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	lo, hi := 0, len(sorted)
	if q[0] > 0 {
		cut, err := stats.Percentile(sorted, q[0]*100)
		if err == nil {
			lo = sort.SearchFloat64s(sorted, cut)
		}
	}
	if q[1] < 1 {
		cut, err := stats.Percentile(sorted, q[1]*100)
		if err == nil {
			hi = sort.Search(len(sorted), func(i int) bool { return sorted[i] > cut })
		}
	}
	if lo >= hi {
		return sorted[:0]
	}
	return sorted[lo:hi]
}

// SummarizeExecutionTimes aggregates raw duration samples into a mean after
// quantile clipping; the miners use it for CI execution times where the tails
// are dominated by stuck runners.
func SummarizeExecutionTimes(samples []float64, q Quantiles) Metric {
	samples = clip(samples, q)
	if len(samples) == 0 {
		return Metric{}
	}
	mean, err := stats.Mean(samples)
	if err != nil {
		return Metric{}
	}
	m := Metric{Exists: true, Value: mean, ConfidenceMin: mean, ConfidenceMax: mean}
	if len(samples) > 1 {
		if lo, err := stats.Percentile(samples, 25); err == nil {
			m.ConfidenceMin = lo
		}
		if hi, err := stats.Percentile(samples, 75); err == nil {
			m.ConfidenceMax = hi
		}
	}
	return m
}

// summarizeMedian aggregates samples into a median with the interquartile
// range as the confidence interval.
func summarizeMedian(samples []float64, q Quantiles) Metric {
	samples = clip(samples, q)
	if len(samples) == 0 {
		return Metric{}
	}
	med, err := stats.Median(samples)
	if err != nil {
		return Metric{}
	}
	m := Metric{Exists: true, Value: med, ConfidenceMin: med, ConfidenceMax: med}
	if len(samples) > 1 {
		if lo, err := stats.Percentile(samples, 25); err == nil {
			m.ConfidenceMin = lo
		}
		if hi, err := stats.Percentile(samples, 75); err == nil {
			m.ConfidenceMax = hi
		}
	}
	return m
}

// count wraps an exact tally: the interval is degenerate.
func count(n int) Metric {
	return Metric{Exists: true, Value: float64(n), ConfidenceMin: float64(n), ConfidenceMax: float64(n)}
}

