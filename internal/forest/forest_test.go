package forest

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepData returns rows where y depends only on feature 0 through a step.
func stepData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = []float64{rng.Float64(), rng.Float64(), rng.Float64()}
		if x[i][0] > 0.5 {
			y[i] = 10
		}
	}
	return x, y
}

func TestFit_ImportancesFavourSignal(t *testing.T) {
	x, y := stepData(60, 1)
	r := New(DefaultConfig())
	require.NoError(t, r.Fit(x, y, nil))

	imp := r.FeatureImportances()
	require.Len(t, imp, 3)
	var sum float64
	for _, v := range imp {
		assert.GreaterOrEqual(t, v, 0.0)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, imp[0], 0.9)
}

func TestFit_Deterministic(t *testing.T) {
	x, y := stepData(40, 2)
	for i := range y {
		y[i] += x[i][1]
	}

	a := New(DefaultConfig())
	b := New(DefaultConfig())
	require.NoError(t, a.Fit(x, y, nil))
	require.NoError(t, b.Fit(x, y, nil))
	assert.Equal(t, a.FeatureImportances(), b.FeatureImportances())

	pa, err := a.Predict([]float64{0.7, 0.2, 0.1})
	require.NoError(t, err)
	pb, err := b.Predict([]float64{0.7, 0.2, 0.1})
	require.NoError(t, err)
	assert.Equal(t, pa, pb)

	// Refitting the same regressor reproduces the first fit.
	first := a.FeatureImportances()
	require.NoError(t, a.Fit(x, y, nil))
	assert.Equal(t, first, a.FeatureImportances())
}

func TestFit_SeedChangesBootstrap(t *testing.T) {
	x, y := stepData(40, 3)
	for i := range y {
		y[i] += 3 * x[i][1] * x[i][2]
	}
	cfg := DefaultConfig()
	a := New(cfg)
	cfg.Seed = 7
	b := New(cfg)
	require.NoError(t, a.Fit(x, y, nil))
	require.NoError(t, b.Fit(x, y, nil))
	assert.NotEqual(t, a.FeatureImportances(), b.FeatureImportances())
}

func TestPredictAndScore(t *testing.T) {
	x, y := stepData(50, 4)
	r := New(DefaultConfig())
	require.NoError(t, r.Fit(x, y, nil))

	p, err := r.Predict([]float64{0.9, 0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 10, p, 1.0)
	p, err = r.Predict([]float64{0.1, 0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0, p, 1.0)

	r2, err := r.Score(x, y)
	require.NoError(t, err)
	assert.Greater(t, r2, 0.9)
}

func TestFit_CategoricalOneVsRest(t *testing.T) {
	// Class 5 is the only informative level; codes are not ordered by effect.
	codes := []float64{1, 5, 3, 5, 1, 3, 5, 1, 3, 5, 1, 3}
	x := make([][]float64, len(codes))
	y := make([]float64, len(codes))
	for i, c := range codes {
		x[i] = []float64{c}
		if c == 5 {
			y[i] = 4
		}
	}
	cfg := DefaultConfig()
	cfg.Bootstrap = false
	cfg.Trees = 1
	r := New(cfg)
	require.NoError(t, r.Fit(x, y, []bool{true}))

	p, err := r.Predict([]float64{5})
	require.NoError(t, err)
	assert.Equal(t, 4.0, p)
	p, err = r.Predict([]float64{3})
	require.NoError(t, err)
	assert.Equal(t, 0.0, p)
	// One split separates the classes.
	assert.Len(t, r.trees[0].nodes, 3)
}

func TestFit_ConstantTargetHasZeroImportance(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}, {4}}
	y := []float64{2, 2, 2, 2}
	r := New(DefaultConfig())
	require.NoError(t, r.Fit(x, y, nil))
	assert.Equal(t, []float64{0}, r.FeatureImportances())
}

func TestFit_Errors(t *testing.T) {
	r := New(DefaultConfig())

	assert.True(t, errors.Is(r.Fit(nil, nil, nil), ErrNoSamples))
	assert.True(t, errors.Is(r.Fit([][]float64{{1}}, []float64{1, 2}, nil), ErrDimension))
	assert.True(t, errors.Is(r.Fit([][]float64{{1}, {1, 2}}, []float64{1, 2}, nil), ErrDimension))
	assert.True(t, errors.Is(r.Fit([][]float64{{math.NaN()}}, []float64{1}, nil), ErrNonFinite))
	assert.True(t, errors.Is(r.Fit([][]float64{{1}}, []float64{1}, []bool{true, false}), ErrDimension))

	_, err := New(DefaultConfig()).Predict([]float64{1})
	assert.True(t, errors.Is(err, ErrNotFitted))

	bad := DefaultConfig()
	bad.Trees = 0
	assert.True(t, errors.Is(New(bad).Fit([][]float64{{1}}, []float64{1}, nil), ErrInvalidConfig))
}
