package ncgrid

import (
	"fmt"
	"math"
	"strings"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/ecotrend/internal/raster"
)

// Global attribute names carrying the spatial reference.
const (
	crsAttrName       = "crs"
	transformAttrName = "geotransform"
)

// LoadGrid reads a single-band 2D grid from a NetCDF file.
//
//nolint:gocyclo // Variable lookup tries several naming conventions.
func LoadGrid(path, dataVarName string) (*raster.Grid, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file: %w", err)
	}
	defer func() { _ = nc.Close() }()

	xNames := []string{"x", "lon", "longitude", "easting"}
	yNames := []string{"y", "lat", "latitude", "northing"}
	dataNames := []string{}
	if dataVarName != "" {
		dataNames = append(dataNames, dataVarName)
	}
	dataNames = append(dataNames, "band1", "Band1", "data", "value", "z")

	xData, xName, err := readAxis(nc, xNames)
	if err != nil {
		return nil, fmt.Errorf("x coordinate variable not found (tried: %v)", xNames)
	}
	yData, yName, err := readAxis(nc, yNames)
	if err != nil {
		return nil, fmt.Errorf("y coordinate variable not found (tried: %v)", yNames)
	}

	var dataVar netcdf.Var
	var dataFound bool
	for _, name := range dataNames {
		if name == xName || name == yName {
			continue
		}
		if v, err := nc.Var(name); err == nil {
			dataVar = v
			dataFound = true
			break
		}
	}
	if !dataFound {
		return nil, fmt.Errorf("data variable not found (tried: %v)", dataNames)
	}

	dims, err := dataVar.Dims()
	if err != nil {
		return nil, fmt.Errorf("failed to get dimensions: %w", err)
	}
	if len(dims) != 2 {
		return nil, fmt.Errorf("expected 2D data, got %dD", len(dims))
	}
	dim0Len, err := dims[0].Len()
	if err != nil {
		return nil, fmt.Errorf("failed to get dim0 length: %w", err)
	}
	dim1Len, err := dims[1].Len()
	if err != nil {
		return nil, fmt.Errorf("failed to get dim1 length: %w", err)
	}

	nY := len(yData)
	nX := len(xData)

	var values [][]float64
	type dimOrder struct{ d0, d1 uint64 }
	switch (dimOrder{dim0Len, dim1Len}) {
	case dimOrder{uint64(nY), uint64(nX)}:
		values, err = read2DFloat64Var(dataVar, nY, nX)
	case dimOrder{uint64(nX), uint64(nY)}:
		var transposed [][]float64
		transposed, err = read2DFloat64Var(dataVar, nX, nY)
		if err == nil {
			values = transpose2D(transposed)
		}
	default:
		return nil, fmt.Errorf("dimension mismatch: data is [%d, %d], expected [%d, %d] or [%d, %d]",
			dim0Len, dim1Len, nY, nX, nX, nY)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	grid := &raster.Grid{Values: values, NoData: math.NaN()}
	if fv, ok := getFillValue(dataVar); ok {
		grid.NoData = fv
	}

	grid.CRS = readTextAttr(nc.Attr(crsAttrName))
	if gt, ok := readTransformAttr(nc.Attr(transformAttrName)); ok {
		grid.Transform = gt
	} else {
		gt, err := raster.TransformFromAxes(xData, yData)
		if err != nil {
			return nil, fmt.Errorf("cannot derive geotransform: %w", err)
		}
		grid.Transform = gt
	}

	if err := grid.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid: %w", err)
	}
	return grid, nil
}

func readAxis(nc netcdf.Dataset, names []string) ([]float64, string, error) {
	var lastErr error = fmt.Errorf("not found")
	for _, name := range names {
		v, err := nc.Var(name)
		if err != nil {
			continue
		}
		data, err := readFloat64Var(v)
		if err != nil {
			lastErr = err
			continue
		}
		return data, name, nil
	}
	return nil, "", lastErr
}

// readTextAttr returns a CHAR attribute, or "" when it is missing.
func readTextAttr(a netcdf.Attr) string {
	n, err := a.Len()
	if err != nil || n == 0 {
		return ""
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return ""
	}
	return strings.TrimRight(string(buf), "\x00")
}

func readTransformAttr(a netcdf.Attr) (raster.GeoTransform, bool) {
	var gt raster.GeoTransform
	if n, err := a.Len(); err != nil || n != uint64(len(gt)) {
		return gt, false
	}
	buf := make([]float64, len(gt))
	if err := a.ReadFloat64s(buf); err != nil {
		return gt, false
	}
	copy(gt[:], buf)
	return gt, true
}

// getFillValue returns the _FillValue or missing_value attribute if present as float64.
func getFillValue(v netcdf.Var) (float64, bool) {
	for _, name := range []string{"_FillValue", "missing_value"} {
		a := v.Attr(name)
		n, err := a.Len()
		if err != nil || n == 0 {
			continue
		}
		buf64 := make([]float64, 1)
		if err := a.ReadFloat64s(buf64); err == nil {
			return buf64[0], true
		}
		buf32 := make([]float32, 1)
		if err := a.ReadFloat32s(buf32); err == nil {
			return float64(buf32[0]), true
		}
		bufi := make([]int32, 1)
		if err := a.ReadInt32s(bufi); err == nil {
			return float64(bufi[0]), true
		}
		bufs := make([]int16, 1)
		if err := a.ReadInt16s(bufs); err == nil {
			return float64(bufs[0]), true
		}
		bufu8 := make([]uint8, 1)
		if err := a.ReadUint8s(bufu8); err == nil {
			return float64(bufu8[0]), true
		}
	}
	return 0, false
}

// readFloat64Var reads a 1D float64 array from a NetCDF variable.
func readFloat64Var(v netcdf.Var) ([]float64, error) {
	dims, err := v.Dims()
	if err != nil {
		return nil, fmt.Errorf("failed to get dimensions: %w", err)
	}
	if len(dims) != 1 {
		return nil, fmt.Errorf("expected 1D variable, got %dD", len(dims))
	}
	length, err := dims[0].Len()
	if err != nil {
		return nil, err
	}
	return readFlat(v, int(length))
}

// read2DFloat64Var reads a 2D array from a NetCDF variable as float64 rows.
func read2DFloat64Var(v netcdf.Var, nRows, nCols int) ([][]float64, error) {
	flat, err := readFlat(v, nRows*nCols)
	if err != nil {
		return nil, err
	}
	values := make([][]float64, nRows)
	for i := 0; i < nRows; i++ {
		values[i] = flat[i*nCols : (i+1)*nCols]
	}
	return values, nil
}

// readFlat reads total values of any supported numeric type as float64.
func readFlat(v netcdf.Var, total int) ([]float64, error) {
	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get var type: %w", err)
	}
	flat := make([]float64, total)
	switch t {
	case netcdf.DOUBLE:
		if err := v.ReadFloat64s(flat); err != nil {
			return nil, err
		}
	case netcdf.FLOAT:
		tmp := make([]float32, total)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			flat[i] = float64(val)
		}
	case netcdf.INT:
		tmp := make([]int32, total)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			flat[i] = float64(val)
		}
	case netcdf.SHORT:
		tmp := make([]int16, total)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			flat[i] = float64(val)
		}
	case netcdf.UBYTE:
		tmp := make([]uint8, total)
		if err := v.ReadUint8s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			flat[i] = float64(val)
		}
	case netcdf.BYTE:
		tmp := make([]int8, total)
		if err := v.ReadInt8s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			flat[i] = float64(val)
		}
	default:
		return nil, fmt.Errorf("unsupported data type: %v", t)
	}
	return flat, nil
}

// transpose2D transposes a 2D array.
func transpose2D(data [][]float64) [][]float64 {
	if len(data) == 0 {
		return data
	}
	nRows := len(data)
	nCols := len(data[0])
	transposed := make([][]float64, nCols)
	for i := 0; i < nCols; i++ {
		transposed[i] = make([]float64, nRows)
		for j := 0; j < nRows; j++ {
			transposed[i][j] = data[j][i]
		}
	}
	return transposed
}
