package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStandardAnomaly(t *testing.T) {
	// mean 5, population std 2
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	got := StandardAnomaly(values, 0)

	want := []float64{-1.5, -0.5, -0.5, -0.5, 0, 0, 1, 2}
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-12, "index %d", i)
	}
}

func TestStandardAnomaly_SkipsInvalid(t *testing.T) {
	nan := math.NaN()
	got := StandardAnomaly([]float64{1, nan, 3}, 0)

	assert.InDelta(t, -1.0, got[0], 1e-12)
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 1.0, got[2], 1e-12)
}

func TestStandardAnomaly_ConstantSeries(t *testing.T) {
	got := StandardAnomaly([]float64{3, 3, 3}, DefaultAnomalyEpsilon)
	for _, v := range got {
		assert.Equal(t, 0.0, v)
	}
}

func TestStandardAnomaly_AllInvalid(t *testing.T) {
	got := StandardAnomaly([]float64{math.NaN(), math.Inf(1)}, DefaultAnomalyEpsilon)
	for _, v := range got {
		assert.True(t, math.IsNaN(v))
	}
}

func TestAnomalizer_CategoricalPassthrough(t *testing.T) {
	a := Anomalizer{Epsilon: DefaultAnomalyEpsilon}
	s := series(2000, 1, 8, 8, 2)

	out := a.Transform(s, true)
	assert.Equal(t, s.Values, out.Values)
	assert.Equal(t, s.Years, out.Years)

	out.Values[0] = 99
	assert.Equal(t, 1.0, s.Values[0], "passthrough must copy")
}

func TestAnomalizer_Continuous(t *testing.T) {
	a := Anomalizer{Epsilon: DefaultAnomalyEpsilon}
	out := a.Transform(series(2000, 10, 20), false)

	// mean 15, std 5
	assert.InDelta(t, -1.0, out.Values[0], 1e-6)
	assert.InDelta(t, 1.0, out.Values[1], 1e-6)
}
