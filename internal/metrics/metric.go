// Package metrics holds the pure calculators that turn mined fact tables into
// numeric values with confidence intervals. Calculators never touch a store;
// they receive facts already scoped to an account and repository set.
package metrics

import "math"

// Metric is a single computed value. Durations are expressed in seconds.
// When Exists is false the remaining fields are meaningless.
type Metric struct {
	Exists        bool    `json:"exists"`
	Value         float64 `json:"value"`
	ConfidenceMin float64 `json:"confidence_min"`
	ConfidenceMax float64 `json:"confidence_max"`
}

// ConfidenceScore maps the confidence interval to [0, 100]: 100 means the
// interval collapses to the value, 0 means it spans the value itself or the
// metric does not exist.
func (m Metric) ConfidenceScore() int {
	if !m.Exists {
		return 0
	}
	spread := m.ConfidenceMax - m.ConfidenceMin
	if spread <= 0 {
		return 100
	}
	if m.Value == 0 {
		return 0
	}
	penalty := 100 * spread / math.Abs(m.Value)
	if penalty > 100 {
		penalty = 100
	}
	return int(math.Round(100 - penalty))
}
