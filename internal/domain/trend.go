package domain

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Default sample-size floors for the trend stage.
const (
	DefaultMinTrendSamples        = 2
	DefaultMinSignificanceSamples = 6
	DefaultSignificanceLevel      = 0.05
)

// TrendDirection is the verdict of a Mann-Kendall test at a given level.
type TrendDirection string

// Possible trend verdicts.
const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendNone       TrendDirection = "no trend"
)

// TrendResult is the per-cell trend output. NaN marks an undefined value.
type TrendResult struct {
	Slope  float64
	PValue float64
	N      int // Number of valid samples.
}

// MannKendallResult holds the full Mann-Kendall test outcome.
type MannKendallResult struct {
	N     int
	S     float64
	VarS  float64
	Z     float64
	P     float64 // Two-sided probability.
	Tau   float64
	Trend TrendDirection
}

// TrendEstimator computes Sen's slope and the Mann-Kendall test with fixed
// minimum sample sizes.
type TrendEstimator struct {
	MinSlopeSamples        int
	MinSignificanceSamples int
	Alpha                  float64
}

// DefaultTrendEstimator returns an estimator with the standard thresholds.
func DefaultTrendEstimator() TrendEstimator {
	return TrendEstimator{
		MinSlopeSamples:        DefaultMinTrendSamples,
		MinSignificanceSamples: DefaultMinSignificanceSamples,
		Alpha:                  DefaultSignificanceLevel,
	}
}

// Estimate returns slope and p-value for a series. Invalid entries are
// ignored; each output is NaN when its sample floor is not met.
func (e TrendEstimator) Estimate(s Series) TrendResult {
	valid := s.Valid()
	res := TrendResult{Slope: math.NaN(), PValue: math.NaN(), N: valid.Len()}
	if res.N >= e.MinSlopeSamples {
		res.Slope = SenSlope(valid)
	}
	if res.N >= e.MinSignificanceSamples {
		res.PValue = MannKendall(valid, e.Alpha).P
	}
	return res
}

// Test runs the Mann-Kendall test on the valid part of s. It returns
// ErrInsufficientData below the significance floor.
func (e TrendEstimator) Test(s Series) (MannKendallResult, error) {
	valid := s.Valid()
	if valid.Len() < e.MinSignificanceSamples {
		return MannKendallResult{N: valid.Len()}, NewInsufficientDataError("mann-kendall", valid.Len(), e.MinSignificanceSamples)
	}
	return MannKendall(valid, e.Alpha), nil
}

// SenSlope returns the median of all pairwise slopes between valid points,
// or NaN when there is no valid pair.
//
//	slope_ij = (v_j - v_i) / (year_j - year_i),  i < j
func SenSlope(s Series) float64 {
	n := len(s.Values)
	slopes := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		if !IsValid(s.Values[i], math.NaN()) {
			continue
		}
		for j := i + 1; j < n; j++ {
			if !IsValid(s.Values[j], math.NaN()) {
				continue
			}
			dy := s.Years[j] - s.Years[i]
			if dy == 0 {
				continue
			}
			slopes = append(slopes, (s.Values[j]-s.Values[i])/float64(dy))
		}
	}
	if len(slopes) == 0 {
		return math.NaN()
	}
	median, err := stats.Median(slopes)
	if err != nil {
		return math.NaN()
	}
	return median
}

// MannKendall runs the classic (non-seasonal) Mann-Kendall test on the
// valid entries of s, in order. Var(S) is corrected for ties:
//
//	Var(S) = [n(n-1)(2n+5) - Σ t(t-1)(2t+5)] / 18
func MannKendall(s Series, alpha float64) MannKendallResult {
	values := make([]float64, 0, len(s.Values))
	for _, v := range s.Values {
		if IsValid(v, math.NaN()) {
			values = append(values, v)
		}
	}
	n := len(values)
	res := MannKendallResult{N: n, P: math.NaN(), Z: math.NaN(), Tau: math.NaN(), Trend: TrendNone}
	if n < 2 {
		return res
	}

	var sum float64
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			sum += sign(values[j] - values[i])
		}
	}
	res.S = sum
	res.VarS = mkVariance(values)
	res.Tau = sum / (0.5 * float64(n*(n-1)))

	switch {
	case sum > 0 && res.VarS > 0:
		res.Z = (sum - 1) / math.Sqrt(res.VarS)
	case sum < 0 && res.VarS > 0:
		res.Z = (sum + 1) / math.Sqrt(res.VarS)
	default:
		res.Z = 0
	}
	res.P = 2 * distuv.UnitNormal.Survival(math.Abs(res.Z))

	if res.P < alpha {
		if res.Z > 0 {
			res.Trend = TrendIncreasing
		} else if res.Z < 0 {
			res.Trend = TrendDecreasing
		}
	}
	return res
}

// mkVariance returns the tie-corrected variance of S under H0.
func mkVariance(values []float64) float64 {
	n := float64(len(values))
	v := n * (n - 1) * (2*n + 5)

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		if t := float64(j - i); t > 1 {
			v -= t * (t - 1) * (2*t + 5)
		}
		i = j
	}
	return v / 18
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
