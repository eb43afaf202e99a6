package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/ecotrend/internal/domain"
)

func newTestInspector(t *testing.T, in Inputs) *PixelInspector {
	t.Helper()
	p, err := NewPixelInspector(newTestEngine(quietLogger()), in)
	require.NoError(t, err)
	return p
}

func TestPixelInspector_Grid(t *testing.T) {
	info := newTestInspector(t, fixtureInputs()).Grid()

	assert.Equal(t, fixtureHeight, info.Height)
	assert.Equal(t, fixtureWidth, info.Width)
	assert.Len(t, info.Years, 24)
	assert.Equal(t, "EPSG:4326", info.CRS)
	assert.Equal(t, [6]float64(fixtureTransform), info.Transform)
	assert.Equal(t, []string{"NDVI", "EcoIndex"}, info.Stacks)
	assert.Equal(t, "EcoIndex", info.Response)
	assert.Equal(t, []string{"PR", "POP"}, info.Drivers)
}

func TestPixelInspector_Trend(t *testing.T) {
	p := newTestInspector(t, fixtureInputs())

	tr, err := p.Trend("", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "NDVI", tr.Stack)
	assert.Equal(t, 24, tr.N)
	assert.InDelta(t, 111.25, tr.X, 1e-12)
	assert.InDelta(t, 31.25, tr.Y, 1e-12)
	require.NotNil(t, tr.SenSlope)
	assert.InDelta(t, 0.5, *tr.SenSlope, 1e-12)
	require.NotNil(t, tr.MannKendall)
	assert.Equal(t, "increasing", tr.MannKendall.Trend)
	assert.InDelta(t, 1.0, *tr.MannKendall.Tau, 1e-12)
	assert.Empty(t, tr.Note)

	// Driver stacks can be inspected by name too.
	tr, err = p.Trend("PR", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "PR", tr.Stack)
}

func TestPixelInspector_TrendBelowSignificanceFloor(t *testing.T) {
	in := fixtureInputs()
	for i, g := range in.Trend[0].Grids {
		if i >= 4 {
			g.Values[0][0] = math.NaN()
		}
	}
	tr, err := newTestInspector(t, in).Trend("NDVI", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, 4, tr.N)
	assert.NotNil(t, tr.SenSlope)
	assert.Nil(t, tr.PValue)
	assert.Nil(t, tr.MannKendall)
	assert.Contains(t, tr.Note, "insufficient")
	assert.Nil(t, tr.Values[4])
	assert.NotNil(t, tr.Values[3])
}

func TestPixelInspector_Attribution(t *testing.T) {
	p := newTestInspector(t, fixtureInputs())

	a, err := p.Attribution(2, 5)
	require.NoError(t, err)
	require.Len(t, a.Drivers, 2)
	assert.Equal(t, "PR", a.Drivers[0].Name)
	assert.Equal(t, "climate", a.Drivers[0].Group)
	assert.Equal(t, "human", a.Drivers[1].Group)
	assert.Len(t, a.Response, 24)
	require.NotNil(t, a.Climate)
	require.NotNil(t, a.Human)
	assert.InDelta(t, 1.0, *a.Climate+*a.Human, 1e-9)
	assert.Equal(t, uint8(a.Dominance), a.Code)
	assert.Empty(t, a.Note)

	// The inspector agrees with the grid engine.
	res, err := newTestEngine(quietLogger()).Run(context.Background(), fixtureInputs())
	require.NoError(t, err)
	assert.Equal(t, res.Dominance.Values[2][5], float64(a.Code))
	assert.Equal(t, res.Importance[1].Values[2][5], *a.Drivers[1].Importance)
}

func TestPixelInspector_AttributionInsufficient(t *testing.T) {
	in := fixtureInputs()
	for _, g := range in.Drivers[0].Grids[3:] {
		g.Values[1][1] = math.NaN()
	}
	a, err := newTestInspector(t, in).Attribution(1, 1)
	require.NoError(t, err)

	assert.Equal(t, domain.DominanceUndefined, a.Dominance)
	assert.Nil(t, a.Climate)
	assert.Nil(t, a.Drivers[0].Importance)
	assert.Contains(t, a.Note, "insufficient")
}

func TestPixelInspector_Locate(t *testing.T) {
	p := newTestInspector(t, fixtureInputs())

	row, col, err := p.Locate(111.3, 31.1)
	require.NoError(t, err)
	assert.Equal(t, 1, row)
	assert.Equal(t, 2, col)

	_, _, err = p.Locate(109.9, 31.1)
	assert.True(t, errors.Is(err, ErrOutOfGrid))
}

func TestPixelInspector_Errors(t *testing.T) {
	in := fixtureInputs()
	p := newTestInspector(t, in)

	_, err := p.Trend("NDVI", fixtureHeight, 0)
	assert.True(t, errors.Is(err, ErrOutOfGrid))
	_, err = p.Trend("NDVI", 0, -1)
	assert.True(t, errors.Is(err, ErrOutOfGrid))
	_, err = p.Trend("LST", 0, 0)
	assert.True(t, errors.Is(err, ErrUnknownStack))
	_, err = p.Attribution(0, fixtureWidth)
	assert.True(t, errors.Is(err, ErrOutOfGrid))

	trendOnly := newTestInspector(t, Inputs{Trend: in.Trend})
	_, err = trendOnly.Attribution(0, 0)
	assert.True(t, errors.Is(err, ErrNoDrivers))

	_, err = NewPixelInspector(newTestEngine(quietLogger()), Inputs{})
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
}
