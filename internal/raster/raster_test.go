package raster

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/ecotrend/internal/domain"
)

var testTransform = GeoTransform{110, 0.5, 0, 32, 0, -0.5}

func newStack(name string, years []int, fill func(t, r, c int) float64) *Stack {
	s := &Stack{Name: name, Years: years}
	for t := range years {
		g := NewGrid(3, 4, testTransform, "EPSG:4326", 0)
		for r := 0; r < 3; r++ {
			for c := 0; c < 4; c++ {
				g.Values[r][c] = fill(t, r, c)
			}
		}
		s.Grids = append(s.Grids, g)
	}
	return s
}

func TestGeoTransform_CellCenterAndIndex(t *testing.T) {
	x, y := testTransform.CellCenter(0, 0)
	assert.InDelta(t, 110.25, x, 1e-12)
	assert.InDelta(t, 31.75, y, 1e-12)

	x, y = testTransform.CellCenter(2, 3)
	row, col, err := testTransform.Index(x, y)
	require.NoError(t, err)
	assert.Equal(t, 2, row)
	assert.Equal(t, 3, col)

	_, _, err = GeoTransform{}.Index(1, 1)
	assert.Error(t, err)
}

func TestTransformFromAxes(t *testing.T) {
	g := NewGrid(3, 4, testTransform, "", 0)
	gt, err := TransformFromAxes(g.XAxis(), g.YAxis())
	require.NoError(t, err)
	assert.True(t, gt.Equal(testTransform), "got %v", gt)

	_, err = TransformFromAxes([]float64{0, 1, 3}, []float64{0, 1})
	assert.Error(t, err)
}

func TestGrid_Congruent(t *testing.T) {
	a := NewGrid(3, 4, testTransform, "EPSG:4326", 0)

	b := NewGrid(3, 4, testTransform, "EPSG:4326", 1)
	b.Transform[0] += 1e-12
	assert.NoError(t, a.Congruent(b), "differences within tolerance are congruent")

	assert.Error(t, a.Congruent(NewGrid(4, 4, testTransform, "EPSG:4326", 0)))
	assert.Error(t, a.Congruent(NewGrid(3, 4, testTransform, "EPSG:3857", 0)))

	shifted := testTransform
	shifted[3] += 1e-6
	assert.Error(t, a.Congruent(NewGrid(3, 4, shifted, "EPSG:4326", 0)))
}

func TestGrid_Validate(t *testing.T) {
	assert.Error(t, (&Grid{}).Validate())
	assert.Error(t, (&Grid{Values: [][]float64{{1, 2}, {3}}}).Validate())
	assert.NoError(t, NewGrid(1, 1, IdentityTransform, "", 0).Validate())
}

func TestStack_SeriesNormalizesNodata(t *testing.T) {
	years := domain.YearRange(2000, 2002)
	s := newStack("EcoIndex", years, func(tt, r, c int) float64 { return float64(tt + r + c) })
	for _, g := range s.Grids {
		g.NoData = -9999
	}
	s.Grids[1].Values[1][2] = -9999
	s.Grids[2].Values[1][2] = -3.4e38

	series := s.Series(1, 2)
	assert.Equal(t, years, series.Years)
	assert.Equal(t, 3.0, series.Values[0])
	assert.True(t, math.IsNaN(series.Values[1]))
	assert.True(t, math.IsNaN(series.Values[2]))
}

func TestStack_Mask(t *testing.T) {
	s := newStack("PR", domain.YearRange(2000, 2001), func(_, _, _ int) float64 { return 1 })
	n := s.Mask(func(r, c int) bool { return c < 2 })

	assert.Equal(t, 6, n)
	for _, g := range s.Grids {
		assert.Equal(t, 1.0, g.Values[0][1])
		assert.True(t, math.IsNaN(g.Values[0][2]))
	}
}

func TestCheckCongruent(t *testing.T) {
	years := domain.YearRange(2000, 2002)
	fill := func(_, _, _ int) float64 { return 1 }
	eco := newStack("EcoIndex", years, fill)
	pr := newStack("PR", years, fill)
	require.NoError(t, CheckCongruent(eco, pr))

	t.Run("shape", func(t *testing.T) {
		bad := newStack("NL", years, fill)
		bad.Grids[0] = NewGrid(2, 4, testTransform, "EPSG:4326", 0)
		err := CheckCongruent(eco, bad)
		assert.True(t, errors.Is(err, domain.ErrShapeMismatch), "got %v", err)
	})

	t.Run("crs", func(t *testing.T) {
		bad := newStack("NL", years, fill)
		for _, g := range bad.Grids {
			g.CRS = "EPSG:3857"
		}
		assert.True(t, errors.Is(CheckCongruent(eco, bad), domain.ErrShapeMismatch))
	})

	t.Run("years", func(t *testing.T) {
		bad := newStack("NL", domain.YearRange(2001, 2003), fill)
		assert.True(t, errors.Is(CheckCongruent(eco, bad), domain.ErrShapeMismatch))
	})

	t.Run("empty stack", func(t *testing.T) {
		assert.True(t, errors.Is(CheckCongruent(&Stack{Name: "X"}), domain.ErrShapeMismatch))
	})
}
