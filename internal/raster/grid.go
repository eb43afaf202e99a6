// Package raster holds co-registered single-band grids and annual stacks.
package raster

import (
	"fmt"
	"math"
)

// transformTolerance is the absolute tolerance used when comparing affine
// coefficients of two grids.
const transformTolerance = 1e-9

// GeoTransform is a GDAL-ordered affine transform mapping (col, row) pixel
// corner coordinates to map coordinates:
//
//	x = gt[0] + col*gt[1] + row*gt[2]
//	y = gt[3] + col*gt[4] + row*gt[5]
type GeoTransform [6]float64

// IdentityTransform maps pixel corners directly to map coordinates.
var IdentityTransform = GeoTransform{0, 1, 0, 0, 0, 1}

// CellCenter returns the map coordinates of the centre of (row, col).
func (gt GeoTransform) CellCenter(row, col int) (x, y float64) {
	c := float64(col) + 0.5
	r := float64(row) + 0.5
	return gt[0] + c*gt[1] + r*gt[2], gt[3] + c*gt[4] + r*gt[5]
}

// Index returns the (row, col) of the cell containing map point (x, y).
func (gt GeoTransform) Index(x, y float64) (row, col int, err error) {
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if det == 0 {
		return 0, 0, fmt.Errorf("geotransform is not invertible")
	}
	dx, dy := x-gt[0], y-gt[3]
	c := (gt[5]*dx - gt[2]*dy) / det
	r := (-gt[4]*dx + gt[1]*dy) / det
	return int(math.Floor(r)), int(math.Floor(c)), nil
}

// Equal reports whether two transforms match within tolerance.
func (gt GeoTransform) Equal(other GeoTransform) bool {
	for i := range gt {
		if math.Abs(gt[i]-other[i]) > transformTolerance {
			return false
		}
	}
	return true
}

// TransformFromAxes derives a north-up transform from cell-centre coordinate
// axes. Both axes must be regularly spaced.
func TransformFromAxes(x, y []float64) (GeoTransform, error) {
	dx, err := axisStep(x)
	if err != nil {
		return GeoTransform{}, fmt.Errorf("x axis: %w", err)
	}
	dy, err := axisStep(y)
	if err != nil {
		return GeoTransform{}, fmt.Errorf("y axis: %w", err)
	}
	return GeoTransform{x[0] - dx/2, dx, 0, y[0] - dy/2, 0, dy}, nil
}

func axisStep(axis []float64) (float64, error) {
	if len(axis) < 2 {
		return 1, nil
	}
	step := axis[1] - axis[0]
	if step == 0 {
		return 0, fmt.Errorf("coordinates must be strictly monotonic")
	}
	tol := math.Abs(step) * 1e-6
	for i := 2; i < len(axis); i++ {
		if math.Abs(axis[i]-axis[i-1]-step) > tol {
			return 0, fmt.Errorf("coordinates are not regularly spaced at index %d", i)
		}
	}
	return step, nil
}

// Grid is one single-band raster.
type Grid struct {
	Values    [][]float64 // Values[row][col].
	Transform GeoTransform
	CRS       string
	NoData    float64 // NaN when the grid has no explicit sentinel.
}

// NewGrid allocates a height×width grid filled with fill.
func NewGrid(height, width int, transform GeoTransform, crs string, fill float64) *Grid {
	values := make([][]float64, height)
	flat := make([]float64, height*width)
	for i := range flat {
		flat[i] = fill
	}
	for r := range values {
		values[r] = flat[r*width : (r+1)*width]
	}
	return &Grid{Values: values, Transform: transform, CRS: crs, NoData: math.NaN()}
}

// Height returns the number of rows.
func (g *Grid) Height() int {
	return len(g.Values)
}

// Width returns the number of columns.
func (g *Grid) Width() int {
	if len(g.Values) == 0 {
		return 0
	}
	return len(g.Values[0])
}

// Validate checks that the grid is rectangular and non-empty.
func (g *Grid) Validate() error {
	if len(g.Values) == 0 {
		return fmt.Errorf("grid must have at least 1 row")
	}
	w := len(g.Values[0])
	if w == 0 {
		return fmt.Errorf("grid must have at least 1 column")
	}
	for i, row := range g.Values {
		if len(row) != w {
			return fmt.Errorf("row %d has %d values, expected %d", i, len(row), w)
		}
	}
	return nil
}

// Contains reports whether (row, col) lies inside the grid.
func (g *Grid) Contains(row, col int) bool {
	return row >= 0 && col >= 0 && row < g.Height() && col < g.Width()
}

// XAxis returns the cell-centre x coordinates of the first row.
func (g *Grid) XAxis() []float64 {
	xs := make([]float64, g.Width())
	for c := range xs {
		xs[c], _ = g.Transform.CellCenter(0, c)
	}
	return xs
}

// YAxis returns the cell-centre y coordinates of the first column.
func (g *Grid) YAxis() []float64 {
	ys := make([]float64, g.Height())
	for r := range ys {
		_, ys[r] = g.Transform.CellCenter(r, 0)
	}
	return ys
}

// Congruent returns nil when g and other share shape, transform and CRS.
func (g *Grid) Congruent(other *Grid) error {
	if g.Height() != other.Height() || g.Width() != other.Width() {
		return fmt.Errorf("shape %dx%d differs from %dx%d", other.Height(), other.Width(), g.Height(), g.Width())
	}
	if !g.Transform.Equal(other.Transform) {
		return fmt.Errorf("geotransform %v differs from %v", other.Transform, g.Transform)
	}
	if g.CRS != other.CRS {
		return fmt.Errorf("crs %q differs from %q", other.CRS, g.CRS)
	}
	return nil
}
