package domain

import "math"

// MaxMagnitude bounds sane raster values; anything larger in magnitude is
// treated as an unflagged nodata fill (e.g. -3.4e38).
const MaxMagnitude = 1e30

// Series is the ordered time series of one spatial cell.
type Series struct {
	Years  []int
	Values []float64
}

// IsValid reports whether v is usable as an observation.
// A NaN nodata sentinel means "no explicit sentinel".
func IsValid(v, nodata float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	if !math.IsNaN(nodata) && v == nodata {
		return false
	}
	return math.Abs(v) <= MaxMagnitude
}

// Len returns the number of time steps, valid or not.
func (s Series) Len() int {
	return len(s.Values)
}

// Mask returns the validity flag of every entry.
func (s Series) Mask(nodata float64) []bool {
	mask := make([]bool, len(s.Values))
	for i, v := range s.Values {
		mask[i] = IsValid(v, nodata)
	}
	return mask
}

// ValidCount returns the number of valid entries. Only NaN, Inf and
// out-of-range magnitudes count as invalid: a series carrying a raw nodata
// sentinel must go through Normalize first. Stack.Series already does so.
func (s Series) ValidCount() int {
	n := 0
	for _, v := range s.Values {
		if IsValid(v, math.NaN()) {
			n++
		}
	}
	return n
}

// Valid returns the valid (year, value) pairs in temporal order. Like
// ValidCount it expects a normalized series.
// The returned series never aliases s.
func (s Series) Valid() Series {
	out := Series{
		Years:  make([]int, 0, len(s.Values)),
		Values: make([]float64, 0, len(s.Values)),
	}
	for i, v := range s.Values {
		if !IsValid(v, math.NaN()) {
			continue
		}
		out.Years = append(out.Years, s.Years[i])
		out.Values = append(out.Values, v)
	}
	return out
}

// Normalize replaces every invalid entry (with respect to nodata) by NaN so
// that later stages only need a NaN check. The input is not modified.
func (s Series) Normalize(nodata float64) Series {
	out := Series{Years: s.Years, Values: make([]float64, len(s.Values))}
	for i, v := range s.Values {
		if IsValid(v, nodata) {
			out.Values[i] = v
		} else {
			out.Values[i] = math.NaN()
		}
	}
	return out
}

// YearRange returns the inclusive list of years from start to end.
func YearRange(start, end int) []int {
	if end < start {
		return nil
	}
	years := make([]int, 0, end-start+1)
	for y := start; y <= end; y++ {
		years = append(years, y)
	}
	return years
}
