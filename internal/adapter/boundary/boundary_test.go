package boundary

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"

	"go.ngs.io/ecotrend/internal/raster"
)

// square returns the axis-aligned square [x0, x1] × [y0, y1].
func square(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0},
		{X: x1, Y: y0},
		{X: x1, Y: y1},
		{X: x0, Y: y1},
		{X: x0, Y: y0},
	}}
}

func TestMask_Contains(t *testing.T) {
	m := NewMask(square(0, 0, 2, 2), square(10, 10, 11, 11))

	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Contains(1, 1))
	assert.True(t, m.Contains(10.5, 10.5))
	assert.True(t, m.Contains(2, 1), "edge points are inside")
	assert.False(t, m.Contains(5, 5))
	assert.False(t, m.Contains(-0.1, 1))
}

func TestMask_Apply(t *testing.T) {
	// 4x4 grid of unit cells from (0, 4) down to (4, 0).
	gt := raster.GeoTransform{0, 1, 0, 4, 0, -1}
	stack := &raster.Stack{Name: "EcoIndex", Years: []int{2000, 2001}}
	for range stack.Years {
		stack.Grids = append(stack.Grids, raster.NewGrid(4, 4, gt, "", 1))
	}

	// Covers the centres of the bottom-left 2x2 block only.
	m := NewMask(square(0, 0, 2, 2))
	removed := m.Apply(stack)

	assert.Equal(t, 12, removed)
	for _, g := range stack.Grids {
		assert.Equal(t, 1.0, g.Values[3][0])
		assert.Equal(t, 1.0, g.Values[2][1])
		assert.True(t, math.IsNaN(g.Values[0][0]))
		assert.True(t, math.IsNaN(g.Values[3][2]))
	}
}

func TestCellFilter(t *testing.T) {
	gt := raster.GeoTransform{100, 0.5, 0, 40, 0, -0.5}
	keep := NewMask(square(100, 39, 101, 40)).CellFilter(gt)

	assert.True(t, keep(0, 0))
	assert.True(t, keep(1, 1))
	assert.False(t, keep(2, 0))
	assert.False(t, keep(0, 2))
}

func TestLoadShapefile_Missing(t *testing.T) {
	_, err := LoadShapefile(filepath.Join(t.TempDir(), "none.shp"))
	assert.Error(t, err)
}
