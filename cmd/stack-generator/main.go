// Package main generates a synthetic set of annual NetCDF stacks with
// planted trends and driver effects, plus a matching configuration file.
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"go.ngs.io/ecotrend/internal/adapter/store/ncgrid"
	"go.ngs.io/ecotrend/internal/config"
	"go.ngs.io/ecotrend/internal/logging"
	"go.ngs.io/ecotrend/internal/raster"
)

// Region defines the geographic bounds and resolution.
type Region struct {
	LatMin     float64
	LatMax     float64
	LonMin     float64
	LonMax     float64
	Resolution float64 // degrees
}

// Size returns the number of rows and columns.
func (r Region) Size() (rows, cols int) {
	rows = int(math.Round((r.LatMax - r.LatMin) / r.Resolution))
	cols = int(math.Round((r.LonMax - r.LonMin) / r.Resolution))
	return rows, cols
}

// Transform returns the north-up geotransform of the region.
func (r Region) Transform() raster.GeoTransform {
	return raster.GeoTransform{r.LonMin, r.Resolution, 0, r.LatMax, 0, -r.Resolution}
}

// driver describes one synthetic explanatory variable.
type driver struct {
	name        string
	group       string
	categorical bool
}

var drivers = []driver{
	{name: "PR", group: "climate"},
	{name: "TMP", group: "climate"},
	{name: "POP", group: "human"},
	{name: "CLCD", group: "human", categorical: true},
}

const (
	responseName = "EcoIndex"
	wgs84        = "EPSG:4326"
)

func main() {
	outDir := flag.String("out", "./data/synthetic", "Output directory for NetCDF files")
	configOut := flag.String("config-out", "", "Write a matching configuration file here (default: <out>/ecotrend.yaml)")
	latMin := flag.Float64("lat-min", 30.0, "Minimum latitude")
	latMax := flag.Float64("lat-max", 32.0, "Maximum latitude")
	lonMin := flag.Float64("lon-min", 110.0, "Minimum longitude")
	lonMax := flag.Float64("lon-max", 113.0, "Maximum longitude")
	resolution := flag.Float64("resolution", 0.05, "Grid resolution in degrees")
	startYear := flag.Int("start", 2000, "First year")
	endYear := flag.Int("end", 2023, "Last year")
	missing := flag.Float64("missing", 0.02, "Fraction of values written as nodata")
	seed := flag.Int64("seed", 7, "Random seed")
	flag.Parse()

	log := logging.New(os.Stderr)

	region := Region{LatMin: *latMin, LatMax: *latMax, LonMin: *lonMin, LonMax: *lonMax, Resolution: *resolution}
	rows, cols := region.Size()
	if rows < 1 || cols < 1 {
		log.Fatalf("Empty region: %d × %d cells", rows, cols)
	}
	if *endYear < *startYear {
		log.Fatalf("End year %d is before start year %d", *endYear, *startYear)
	}

	log.WithFields(logrus.Fields{
		"rows":  rows,
		"cols":  cols,
		"years": *endYear - *startYear + 1,
		"out":   *outDir,
	}).Info("Generating synthetic stacks")

	gen := &generator{
		region:  region,
		rows:    rows,
		cols:    cols,
		missing: *missing,
		rng:     rand.New(rand.NewSource(*seed)),
		writer:  ncgrid.NewWriter(),
		outDir:  *outDir,
	}
	for year := *startYear; year <= *endYear; year++ {
		if err := gen.writeYear(year, year-*startYear); err != nil {
			log.WithError(err).Fatalf("Failed to write year %d", year)
		}
		log.WithField("year", year).Debug("Year written")
	}

	path := *configOut
	if path == "" {
		path = filepath.Join(*outDir, "ecotrend.yaml")
	}
	if err := writeConfig(path, *outDir, *startYear, *endYear); err != nil {
		log.WithError(err).Fatal("Failed to write configuration")
	}

	n := (*endYear - *startYear + 1) * (len(drivers) + 1)
	log.WithFields(logrus.Fields{"files": n, "config": path}).Info("Generation complete")
}

type generator struct {
	region  Region
	rows    int
	cols    int
	missing float64
	rng     *rand.Rand
	writer  *ncgrid.Writer
	outDir  string
}

// writeYear writes the response and every driver for year index t.
//
// Climate drivers dominate the western half of the region and human
// drivers the eastern half; the response carries a north-south trend
// gradient on top.
func (g *generator) writeYear(year, t int) error {
	gt := g.region.Transform()
	grids := make(map[string]*raster.Grid, len(drivers)+1)
	for _, d := range drivers {
		grids[d.name] = raster.NewGrid(g.rows, g.cols, gt, wgs84, math.NaN())
	}
	response := raster.NewGrid(g.rows, g.cols, gt, wgs84, math.NaN())

	for r := 0; r < g.rows; r++ {
		for c := 0; c < g.cols; c++ {
			u := float64(c) / float64(g.cols) // 0 west, 1 east
			v := float64(r) / float64(g.rows) // 0 north, 1 south

			pr := 800 + 200*math.Sin(float64(t)*0.9+u*3) + 40*g.rng.NormFloat64()
			tmp := 15 + 0.03*float64(t) + 0.8*g.rng.NormFloat64()
			pop := 100 + 8*float64(t)*u + 10*g.rng.NormFloat64()
			clcd := 1.0
			if u > 0.5 && t > 10 {
				clcd = 8 // built-up
			} else if g.rng.Float64() < 0.3 {
				clcd = 2
			}

			climate := (1 - u) * (0.002*(pr-800) + 0.05*(tmp-15))
			human := u * (-0.004*(pop-100) - 0.05*(clcd-1))
			trend := (0.004 - 0.008*v) * float64(t)
			eco := 0.5 + trend + climate + human + 0.01*g.rng.NormFloat64()

			grids["PR"].Values[r][c] = g.maybeMissing(pr)
			grids["TMP"].Values[r][c] = g.maybeMissing(tmp)
			grids["POP"].Values[r][c] = g.maybeMissing(pop)
			grids["CLCD"].Values[r][c] = clcd
			response.Values[r][c] = g.maybeMissing(eco)
		}
	}

	for _, d := range drivers {
		path := g.path(d.name, year)
		var err error
		if d.categorical {
			err = g.writer.WriteClass(path, d.name, grids[d.name])
		} else {
			err = g.writer.WriteFloat(path, d.name, grids[d.name])
		}
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	if err := g.writer.WriteFloat(g.path(responseName, year), responseName, response); err != nil {
		return fmt.Errorf("%s: %w", responseName, err)
	}
	return nil
}

func (g *generator) maybeMissing(v float64) float64 {
	if g.rng.Float64() < g.missing {
		return math.NaN()
	}
	return v
}

func (g *generator) path(name string, year int) string {
	return filepath.Join(g.outDir, name, fmt.Sprintf("%d_%s.nc", year, name))
}

// writeConfig writes a configuration pointing at the generated stacks.
func writeConfig(path, dataDir string, start, end int) error {
	stack := func(name string, categorical bool) config.StackConfig {
		return config.StackConfig{
			Name:        name,
			Dir:         filepath.Join(dataDir, name),
			Pattern:     "{year}_" + name + ".nc",
			Variable:    name,
			Categorical: categorical,
		}
	}

	cfg := config.Default()
	cfg.Years = config.YearRange{Start: start, End: end}
	cfg.OutputDir = filepath.Join(dataDir, "results")
	cfg.Trend.Stacks = []config.StackConfig{stack(responseName, false)}
	cfg.Attribution.Response = stack(responseName, false)
	for _, d := range drivers {
		cfg.Attribution.Drivers = append(cfg.Attribution.Drivers, config.DriverConfig{
			StackConfig: stack(d.name, d.categorical),
			Group:       d.group,
		})
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	//nolint:gosec // G306: configuration is not secret.
	return os.WriteFile(path, data, 0o644)
}
