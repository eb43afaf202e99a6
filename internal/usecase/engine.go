package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gosuri/uiprogress"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go.ngs.io/ecotrend/internal/domain"
	"go.ngs.io/ecotrend/internal/forest"
	"go.ngs.io/ecotrend/internal/raster"
)

// DefaultBlockRows is the number of grid rows handed to a worker at once.
const DefaultBlockRows = 16

// Options controls scheduling of a grid run.
type Options struct {
	Workers   int           // Concurrent row blocks; 0 means runtime.NumCPU().
	BlockRows int           // Rows per block; 0 means DefaultBlockRows.
	MaxCells  int           // Row-major cell budget; 0 means unlimited.
	Timeout   time.Duration // Wall-clock budget; 0 means unlimited.
	Progress  bool          // Show a terminal progress bar.
}

// Inputs are the validated, congruent stacks of one run. Trend and Response
// may overlap; Response is required only when Drivers is non-empty.
type Inputs struct {
	Trend    []*raster.Stack
	Response *raster.Stack
	Drivers  []*raster.Stack
}

func (in Inputs) all() []*raster.Stack {
	stacks := append([]*raster.Stack(nil), in.Trend...)
	if in.Response != nil {
		stacks = append(stacks, in.Response)
	}
	return append(stacks, in.Drivers...)
}

func (in Inputs) attribution() bool {
	return in.Response != nil && len(in.Drivers) > 0
}

// TrendOutput holds the trend grids of one stack.
type TrendOutput struct {
	Name   string
	Slope  *raster.Grid
	PValue *raster.Grid
}

// Result holds the output grids and run statistics.
type Result struct {
	Trends     []TrendOutput
	Importance []*raster.Grid // Aligned with Inputs.Drivers.
	Dominance  *raster.Grid   // Dominance codes, 0 where undefined.
	Stats      RunStats
}

// RunStats counts what happened during a run.
type RunStats struct {
	Cells                   int            `json:"cells"`
	Processed               int            `json:"processed"`
	Truncated               bool           `json:"truncated"`
	SlopeUndefined          map[string]int `json:"slope_undefined,omitempty"`
	PValueUndefined         map[string]int `json:"pvalue_undefined,omitempty"`
	AttributionInsufficient int            `json:"attribution_insufficient"`
	ModelFitFailures        int            `json:"model_fit_failures"`
	Dominance               map[string]int `json:"dominance,omitempty"`
	Elapsed                 time.Duration  `json:"elapsed_ns"`
}

func (s *RunStats) merge(o blockStats) {
	for name, n := range o.slopeUndefined {
		s.SlopeUndefined[name] += n
	}
	for name, n := range o.pvalueUndefined {
		s.PValueUndefined[name] += n
	}
	s.AttributionInsufficient += o.insufficient
	s.ModelFitFailures += o.fitFailures
	for d, n := range o.dominance {
		if n > 0 {
			s.Dominance[domain.Dominance(d).String()] += n
		}
	}
}

type blockStats struct {
	slopeUndefined  map[string]int
	pvalueUndefined map[string]int
	insufficient    int
	fitFailures     int
	dominance       [4]int
}

// GridEngine applies the trend estimator and the attribution pipeline to
// every cell of a set of congruent stacks.
type GridEngine struct {
	Trend      domain.TrendEstimator
	Anomalizer domain.Anomalizer
	Attributor domain.Attributor
	Classifier domain.Classifier
	Options    Options
	Log        logrus.FieldLogger
}

// NewGridEngine creates an engine with default estimators and options.
func NewGridEngine(log logrus.FieldLogger) *GridEngine {
	return &GridEngine{
		Trend:      domain.DefaultTrendEstimator(),
		Anomalizer: domain.Anomalizer{Epsilon: domain.DefaultAnomalyEpsilon},
		Attributor: domain.Attributor{MinSamples: domain.DefaultMinAttributionSamples, Forest: forest.DefaultConfig()},
		Classifier: domain.Classifier{Tolerance: domain.DefaultDominanceTolerance},
		Log:        log,
	}
}

// Run processes every cell of in. The result is deterministic for a given
// input and configuration, whatever the worker count. When the cell budget
// or the timeout stops the run early, the unprocessed cells stay undefined
// and Stats.Truncated is set; only cancellation of ctx itself is an error.
func (e *GridEngine) Run(ctx context.Context, in Inputs) (*Result, error) {
	stacks := in.all()
	if len(stacks) == 0 {
		return nil, fmt.Errorf("%w: no input stacks", domain.ErrInvalidConfig)
	}
	if len(in.Drivers) > 0 && in.Response == nil {
		return nil, fmt.Errorf("%w: drivers given without a response stack", domain.ErrInvalidConfig)
	}
	if in.Response != nil && len(in.Drivers) == 0 {
		return nil, fmt.Errorf("%w: response %s has no drivers", domain.ErrMissingDriver, in.Response.Name)
	}
	if err := raster.CheckCongruent(stacks...); err != nil {
		return nil, err
	}
	if in.attribution() && len(e.Classifier.Partition) != len(in.Drivers) {
		return nil, fmt.Errorf("%w: %d driver groups for %d drivers", domain.ErrInvalidConfig, len(e.Classifier.Partition), len(in.Drivers))
	}

	log := e.logger()
	ref := stacks[0].Reference()
	height, width := ref.Height(), ref.Width()
	result := e.allocate(in, ref)
	result.Stats.Cells = height * width

	limit := result.Stats.Cells
	if e.Options.MaxCells > 0 && e.Options.MaxCells < limit {
		limit = e.Options.MaxCells
	}

	runCtx := ctx
	if e.Options.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.Options.Timeout)
		defer cancel()
	}

	workers := e.Options.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	blockRows := e.Options.BlockRows
	if blockRows <= 0 {
		blockRows = DefaultBlockRows
	}
	rows := (limit + width - 1) / width

	// Each run owns its progress instance; the package default can only be
	// started and stopped once per process.
	var bar *uiprogress.Bar
	if e.Options.Progress {
		progress := uiprogress.New()
		progress.Start()
		bar = progress.AddBar(rows).AppendCompleted().PrependElapsed()
		defer progress.Stop()
	}

	log.WithFields(logrus.Fields{
		"rows":    height,
		"cols":    width,
		"budget":  limit,
		"workers": workers,
		"years":   len(stacks[0].Years),
	}).Info("Starting grid run")

	start := time.Now()
	var processed int64
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for r0 := 0; r0 < rows; r0 += blockRows {
		if runCtx.Err() != nil {
			break
		}
		r0 := r0
		r1 := r0 + blockRows
		if r1 > rows {
			r1 = rows
		}
		g.Go(func() error {
			bs := newBlockStats(in)
			for r := r0; r < r1; r++ {
				if runCtx.Err() != nil {
					break
				}
				for c := 0; c < width; c++ {
					if r*width+c >= limit {
						break
					}
					e.processCell(in, result, r, c, &bs, log)
					atomic.AddInt64(&processed, 1)
				}
				if bar != nil {
					bar.Incr()
				}
			}
			mu.Lock()
			result.Stats.merge(bs)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("grid run cancelled: %w", err)
	}

	result.Stats.Processed = int(processed)
	result.Stats.Truncated = result.Stats.Processed < result.Stats.Cells
	result.Stats.Elapsed = time.Since(start)

	entry := log.WithFields(logrus.Fields{
		"processed":          result.Stats.Processed,
		"model_fit_failures": result.Stats.ModelFitFailures,
		"elapsed":            result.Stats.Elapsed.Round(time.Millisecond),
	})
	if result.Stats.Truncated {
		reason := "cell budget"
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			reason = "timeout"
		}
		entry.WithField("reason", reason).Warn("Grid run truncated")
	} else {
		entry.Info("Grid run complete")
	}
	return result, nil
}

func (e *GridEngine) logger() logrus.FieldLogger {
	if e.Log == nil {
		return logrus.StandardLogger()
	}
	return e.Log
}

func (e *GridEngine) allocate(in Inputs, ref *raster.Grid) *Result {
	h, w := ref.Height(), ref.Width()
	newGrid := func(fill float64) *raster.Grid {
		return raster.NewGrid(h, w, ref.Transform, ref.CRS, fill)
	}
	result := &Result{
		Stats: RunStats{
			SlopeUndefined:  make(map[string]int),
			PValueUndefined: make(map[string]int),
			Dominance:       make(map[string]int),
		},
	}
	for _, s := range in.Trend {
		result.Trends = append(result.Trends, TrendOutput{
			Name:   s.Name,
			Slope:  newGrid(math.NaN()),
			PValue: newGrid(math.NaN()),
		})
	}
	if in.attribution() {
		for range in.Drivers {
			result.Importance = append(result.Importance, newGrid(math.NaN()))
		}
		result.Dominance = newGrid(float64(domain.DominanceUndefined))
		result.Dominance.NoData = float64(domain.DominanceUndefined)
	}
	return result
}

func newBlockStats(in Inputs) blockStats {
	bs := blockStats{
		slopeUndefined:  make(map[string]int, len(in.Trend)),
		pvalueUndefined: make(map[string]int, len(in.Trend)),
	}
	return bs
}

// processCell writes the outputs of one cell. Each cell is written by
// exactly one block, so the output grids need no locking.
func (e *GridEngine) processCell(in Inputs, result *Result, row, col int, bs *blockStats, log logrus.FieldLogger) {
	for i, s := range in.Trend {
		tr := e.Trend.Estimate(s.Series(row, col))
		result.Trends[i].Slope.Values[row][col] = tr.Slope
		result.Trends[i].PValue.Values[row][col] = tr.PValue
		if math.IsNaN(tr.Slope) {
			bs.slopeUndefined[s.Name]++
		}
		if math.IsNaN(tr.PValue) {
			bs.pvalueUndefined[s.Name]++
		}
	}

	if !in.attribution() {
		return
	}
	importance, err := e.AttributeCell(in, row, col)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientData):
			bs.insufficient++
		case errors.Is(err, domain.ErrModelFit):
			bs.fitFailures++
			log.WithFields(logrus.Fields{"row": row, "col": col}).WithError(err).Warn("Model fit failed")
		}
	}
	for k, v := range importance {
		result.Importance[k].Values[row][col] = v
	}
	d := e.Classifier.Classify(importance)
	result.Dominance.Values[row][col] = float64(d)
	bs.dominance[d]++
}

// AttributeCell builds the anomaly series of one cell and fits its model.
// The returned vector is aligned with in.Drivers and all NaN on error.
func (e *GridEngine) AttributeCell(in Inputs, row, col int) ([]float64, error) {
	response, drivers := e.CellAnomalies(in, row, col)
	return e.attributor(in).Attribute(response, drivers)
}

// attributor fills in the categorical flags from the driver stacks when the
// configured attributor does not carry them.
func (e *GridEngine) attributor(in Inputs) domain.Attributor {
	a := e.Attributor
	if len(a.Categorical) != len(in.Drivers) {
		a.Categorical = make([]bool, len(in.Drivers))
		for i, d := range in.Drivers {
			a.Categorical[i] = d.Categorical
		}
	}
	return a
}

// CellAnomalies returns the anomaly series of the response and of every
// driver at one cell. Categorical drivers are passed through.
func (e *GridEngine) CellAnomalies(in Inputs, row, col int) (domain.Series, []domain.Series) {
	response := e.Anomalizer.Transform(in.Response.Series(row, col), in.Response.Categorical)
	drivers := make([]domain.Series, len(in.Drivers))
	for k, d := range in.Drivers {
		drivers[k] = e.Anomalizer.Transform(d.Series(row, col), d.Categorical)
	}
	return response, drivers
}
