package ncgrid

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/ecotrend/internal/raster"
)

// Writer persists output grids as NETCDF4 files.
type Writer struct{}

// NewWriter creates a NetCDF grid writer.
func NewWriter() *Writer {
	return &Writer{}
}

// WriteFloat writes g as a DOUBLE variable with a NaN _FillValue.
func (w *Writer) WriteFloat(path, varName string, g *raster.Grid) error {
	flat := make([]float64, 0, g.Height()*g.Width())
	for _, row := range g.Values {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = math.NaN()
			}
			flat = append(flat, v)
		}
	}
	return writeGrid(path, varName, g, netcdf.DOUBLE, func(v netcdf.Var) error {
		if err := v.Attr("_FillValue").WriteFloat64s([]float64{math.NaN()}); err != nil {
			return fmt.Errorf("failed to write fill value: %w", err)
		}
		return nil
	}, func(v netcdf.Var) error {
		return v.WriteFloat64s(flat)
	})
}

// WriteClass writes g as a UBYTE variable with 0 as _FillValue. Values that
// are NaN or outside [0, 255] are written as 0.
func (w *Writer) WriteClass(path, varName string, g *raster.Grid) error {
	flat := make([]uint8, 0, g.Height()*g.Width())
	for _, row := range g.Values {
		for _, v := range row {
			if math.IsNaN(v) || v < 0 || v > math.MaxUint8 {
				flat = append(flat, 0)
				continue
			}
			flat = append(flat, uint8(v))
		}
	}
	return writeGrid(path, varName, g, netcdf.UBYTE, func(v netcdf.Var) error {
		if err := v.Attr("_FillValue").WriteUint8s([]uint8{0}); err != nil {
			return fmt.Errorf("failed to write fill value: %w", err)
		}
		return nil
	}, func(v netcdf.Var) error {
		return v.WriteUint8s(flat)
	})
}

// writeGrid creates the file layout shared by every output: y/x dimensions
// and coordinate variables, crs and geotransform global attributes, and one
// data variable.
func writeGrid(path, varName string, g *raster.Grid, typ netcdf.Type,
	defineAttrs func(netcdf.Var) error, writeData func(netcdf.Var) error) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("invalid grid: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ds, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() { _ = ds.Close() }()

	yDim, err := ds.AddDim("y", uint64(g.Height()))
	if err != nil {
		return err
	}
	xDim, err := ds.AddDim("x", uint64(g.Width()))
	if err != nil {
		return err
	}
	yVar, err := ds.AddVar("y", netcdf.DOUBLE, []netcdf.Dim{yDim})
	if err != nil {
		return err
	}
	xVar, err := ds.AddVar("x", netcdf.DOUBLE, []netcdf.Dim{xDim})
	if err != nil {
		return err
	}
	dataVar, err := ds.AddVar(varName, typ, []netcdf.Dim{yDim, xDim})
	if err != nil {
		return err
	}
	if err := defineAttrs(dataVar); err != nil {
		return err
	}
	if g.CRS != "" {
		if err := ds.Attr(crsAttrName).WriteBytes([]byte(g.CRS)); err != nil {
			return fmt.Errorf("failed to write crs: %w", err)
		}
	}
	if err := ds.Attr(transformAttrName).WriteFloat64s(g.Transform[:]); err != nil {
		return fmt.Errorf("failed to write geotransform: %w", err)
	}
	if err := ds.EndDef(); err != nil {
		return fmt.Errorf("failed to leave define mode: %w", err)
	}

	if err := yVar.WriteFloat64s(g.YAxis()); err != nil {
		return fmt.Errorf("failed to write y axis: %w", err)
	}
	if err := xVar.WriteFloat64s(g.XAxis()); err != nil {
		return fmt.Errorf("failed to write x axis: %w", err)
	}
	if err := writeData(dataVar); err != nil {
		return fmt.Errorf("failed to write %s: %w", varName, err)
	}
	return nil
}
