package domain

import (
	"math"

	"github.com/montanaflynn/stats"
)

// DefaultAnomalyEpsilon keeps constant series from dividing by zero.
const DefaultAnomalyEpsilon = 1e-6

// Anomalizer converts a raw cell series into anomalies relative to the
// cell's own temporal mean and variability.
type Anomalizer struct {
	Epsilon float64
}

// Transform returns the anomaly series of s. Categorical series are
// returned unchanged since their values are class codes, not quantities.
// Invalid entries come out as NaN.
func (a Anomalizer) Transform(s Series, categorical bool) Series {
	out := Series{Years: s.Years}
	if categorical {
		out.Values = append([]float64(nil), s.Values...)
		return out
	}
	out.Values = StandardAnomaly(s.Values, a.Epsilon)
	return out
}

// StandardAnomaly returns (v - mean) / (std + eps) for every valid v, using
// the population standard deviation of the valid entries.
func StandardAnomaly(values []float64, eps float64) []float64 {
	out := make([]float64, len(values))
	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if IsValid(v, math.NaN()) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	mean, err := stats.Mean(valid)
	if err != nil {
		mean = math.NaN()
	}
	std, err := stats.StandardDeviationPopulation(valid)
	if err != nil {
		std = math.NaN()
	}

	for i, v := range values {
		if !IsValid(v, math.NaN()) {
			out[i] = math.NaN()
			continue
		}
		out[i] = (v - mean) / (std + eps)
	}
	return out
}
