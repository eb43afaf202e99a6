package store

import "go.ngs.io/ecotrend/internal/raster"

// Source locates the annual grids of one variable.
type Source struct {
	Name        string // Variable name, e.g. "EcoIndex" or "PR".
	Dir         string // Directory searched recursively for the yearly files.
	Pattern     string // File name with a {year} placeholder, e.g. "{year}_EcoIndex.nc".
	Variable    string // Data variable inside each file; empty tries common names.
	Categorical bool   // Class-coded variable (e.g. land cover).
}

// StackLoader is the interface for loading annual raster stacks.
type StackLoader interface {
	// LoadStack loads one grid per year for src, in the given year order.
	LoadStack(src Source, years []int) (*raster.Stack, error)
}

// GridWriter is the interface for persisting output grids.
type GridWriter interface {
	// WriteFloat writes a floating point grid with NaN as nodata.
	WriteFloat(path, varName string, g *raster.Grid) error

	// WriteClass writes a small unsigned integer grid with 0 as nodata.
	WriteClass(path, varName string, g *raster.Grid) error
}
