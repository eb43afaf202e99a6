package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"

	"go.ngs.io/ecotrend/internal/domain"
	"go.ngs.io/ecotrend/internal/forest"
)

// BaselineMaxRows caps the pooled training rows of the baseline model.
const BaselineMaxRows = 50000

// DriverImportance is one entry of an importance ranking.
type DriverImportance struct {
	Driver     string  `json:"driver"`
	Group      string  `json:"group"`
	Importance float64 `json:"importance"`
}

// Baseline is a single model fitted on anomaly rows pooled from a sample of
// cells. It is a sanity check for the per-cell models, not an output grid.
type Baseline struct {
	Cells      int                `json:"cells"`
	Rows       int                `json:"rows"`
	R2         float64            `json:"r2"`
	Importance []DriverImportance `json:"importance"`
}

// Baseline samples up to sampleCells cells holding at least one valid
// response value, pools their complete anomaly rows and fits one ensemble.
// Sampling uses the forest seed, so the result is reproducible.
func (e *GridEngine) Baseline(ctx context.Context, in Inputs, sampleCells int) (*Baseline, error) {
	if !in.attribution() {
		return nil, fmt.Errorf("%w: baseline needs a response and drivers", domain.ErrMissingDriver)
	}
	if sampleCells <= 0 {
		return nil, fmt.Errorf("%w: sample size must be positive", domain.ErrInvalidConfig)
	}
	attr := e.attributor(in)
	rng := rand.New(rand.NewSource(attr.Forest.Seed))

	// Reservoir sample of candidate cells in row-major order.
	height, width := in.Response.Height(), in.Response.Width()
	var sample []int
	seen := 0
	for r := 0; r < height; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for c := 0; c < width; c++ {
			if in.Response.Series(r, c).ValidCount() == 0 {
				continue
			}
			seen++
			if len(sample) < sampleCells {
				sample = append(sample, r*width+c)
				continue
			}
			if j := rng.Intn(seen); j < sampleCells {
				sample[j] = r*width + c
			}
		}
	}
	sort.Ints(sample)

	var x [][]float64
	var y []float64
	for _, idx := range sample {
		response, drivers := e.CellAnomalies(in, idx/width, idx%width)
		cx, cy := domain.TrainingRows(response, drivers)
		x = append(x, cx...)
		y = append(y, cy...)
	}
	if len(y) > BaselineMaxRows {
		x, y = subsampleRows(rng, x, y, BaselineMaxRows)
	}
	if len(y) < attr.MinSamples {
		return nil, domain.NewInsufficientDataError("baseline", len(y), attr.MinSamples)
	}

	model := forest.New(attr.Forest)
	if err := model.Fit(x, y, attr.Categorical); err != nil {
		return nil, fmt.Errorf("%w: baseline: %v", domain.ErrModelFit, err)
	}
	r2, err := model.Score(x, y)
	if err != nil {
		return nil, fmt.Errorf("%w: baseline: %v", domain.ErrModelFit, err)
	}

	b := &Baseline{Cells: len(sample), Rows: len(y), R2: r2}
	for k, v := range model.FeatureImportances() {
		group := ""
		if k < len(e.Classifier.Partition) {
			group = string(e.Classifier.Partition[k])
		}
		b.Importance = append(b.Importance, DriverImportance{
			Driver:     in.Drivers[k].Name,
			Group:      group,
			Importance: v,
		})
	}
	sort.SliceStable(b.Importance, func(i, j int) bool {
		return b.Importance[i].Importance > b.Importance[j].Importance
	})

	entry := e.logger().WithFields(logrus.Fields{
		"cells": b.Cells,
		"rows":  b.Rows,
		"r2":    fmt.Sprintf("%.4f", b.R2),
	})
	for _, di := range b.Importance {
		entry = entry.WithField(di.Driver, fmt.Sprintf("%.4f", di.Importance))
	}
	entry.Info("Baseline model fitted")
	return b, nil
}

// subsampleRows keeps n rows chosen without replacement, in original order.
func subsampleRows(rng *rand.Rand, x [][]float64, y []float64, n int) ([][]float64, []float64) {
	keep := rng.Perm(len(y))[:n]
	sort.Ints(keep)
	sx := make([][]float64, n)
	sy := make([]float64, n)
	for i, k := range keep {
		sx[i] = x[k]
		sy[i] = y[k]
	}
	return sx, sy
}
