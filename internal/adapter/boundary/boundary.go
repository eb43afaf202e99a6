// Package boundary restricts analysis to cells inside a region of interest.
package boundary

import (
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"

	"go.ngs.io/ecotrend/internal/raster"
)

// Mask is a union of polygons. A point belongs to the mask when it lies
// inside or on the edge of any polygon.
type Mask struct {
	polygons []geom.Polygonal
	bounds   []*geom.Bounds
}

// NewMask creates a mask from polygons.
func NewMask(polygons ...geom.Polygonal) *Mask {
	m := &Mask{}
	for _, p := range polygons {
		m.polygons = append(m.polygons, p)
		m.bounds = append(m.bounds, p.Bounds())
	}
	return m
}

// LoadShapefile reads every polygon record of an ESRI shapefile. Coordinates
// are used as stored; the shapefile must share the rasters' CRS.
func LoadShapefile(path string) (*Mask, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shapefile %s: %w", path, err)
	}
	defer dec.Close()

	var polygons []geom.Polygonal
	for {
		g, _, more := dec.DecodeRowFields()
		if !more {
			break
		}
		if p, ok := g.(geom.Polygonal); ok {
			polygons = append(polygons, p)
		}
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("failed to decode shapefile %s: %w", path, err)
	}
	if len(polygons) == 0 {
		return nil, fmt.Errorf("shapefile %s contains no polygons", path)
	}
	return NewMask(polygons...), nil
}

// Len returns the number of polygons in the mask.
func (m *Mask) Len() int {
	return len(m.polygons)
}

// Contains reports whether map point (x, y) lies inside the mask.
func (m *Mask) Contains(x, y float64) bool {
	pt := geom.Point{X: x, Y: y}
	for i, p := range m.polygons {
		b := m.bounds[i]
		if b != nil && (x < b.Min.X || x > b.Max.X || y < b.Min.Y || y > b.Max.Y) {
			continue
		}
		if pt.Within(p) != geom.Outside {
			return true
		}
	}
	return false
}

// CellFilter returns a predicate keeping the cells of a grid with transform
// gt whose centre lies inside the mask.
func (m *Mask) CellFilter(gt raster.GeoTransform) func(row, col int) bool {
	return func(row, col int) bool {
		x, y := gt.CellCenter(row, col)
		return m.Contains(x, y)
	}
}

// Apply masks every stack in place and returns the number of cells removed
// from the first stack.
func (m *Mask) Apply(stacks ...*raster.Stack) int {
	removed := 0
	for i, s := range stacks {
		n := s.Mask(m.CellFilter(s.Reference().Transform))
		if i == 0 {
			removed = n
		}
	}
	return removed
}
