package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"go.ngs.io/ecotrend/internal/adapter/store"
	"go.ngs.io/ecotrend/internal/raster"
)

// Output variable and file names.
const (
	SlopeSuffix      = "_SenSlope"
	PValueSuffix     = "_MK_pvalue"
	ImportanceSuffix = "_importance"
	DominanceName    = "Driver_Dominance"
)

// CellMask restricts stacks to a region of interest in place.
type CellMask interface {
	Apply(stacks ...*raster.Stack) int
}

// AnalysisRequest describes one batch run.
type AnalysisRequest struct {
	Years     []int
	Trend     []store.Source
	Response  *store.Source  // Nil disables attribution.
	Drivers   []store.Source // Aligned with the engine's driver partition.
	OutputDir string

	// BaselineSampleCells is the number of cells pooled into the baseline
	// model; 0 skips it.
	BaselineSampleCells int

	// Config is echoed into the manifest.
	Config interface{}
}

// AnalysisUseCase loads stacks, runs the grid engine and writes its outputs.
type AnalysisUseCase struct {
	loader store.StackLoader
	writer store.GridWriter
	engine *GridEngine
	mask   CellMask
	log    logrus.FieldLogger
}

// NewAnalysisUseCase creates a batch use case. mask may be nil.
func NewAnalysisUseCase(loader store.StackLoader, writer store.GridWriter, engine *GridEngine, mask CellMask) *AnalysisUseCase {
	return &AnalysisUseCase{
		loader: loader,
		writer: writer,
		engine: engine,
		mask:   mask,
		log:    engine.logger(),
	}
}

// LoadInputs loads every stack of req, applies the mask and checks that all
// stacks are congruent.
func (uc *AnalysisUseCase) LoadInputs(req AnalysisRequest) (Inputs, int, error) {
	var in Inputs
	load := func(src store.Source) (*raster.Stack, error) {
		uc.log.WithFields(logrus.Fields{"stack": src.Name, "dir": src.Dir}).Debug("Loading stack")
		s, err := uc.loader.LoadStack(src, req.Years)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", src.Name, err)
		}
		return s, nil
	}

	for _, src := range req.Trend {
		s, err := load(src)
		if err != nil {
			return Inputs{}, 0, err
		}
		in.Trend = append(in.Trend, s)
	}
	if req.Response != nil {
		s, err := load(*req.Response)
		if err != nil {
			return Inputs{}, 0, err
		}
		in.Response = s
		for _, src := range req.Drivers {
			d, err := load(src)
			if err != nil {
				return Inputs{}, 0, err
			}
			in.Drivers = append(in.Drivers, d)
		}
	}
	if err := raster.CheckCongruent(in.all()...); err != nil {
		return Inputs{}, 0, err
	}

	masked := 0
	if uc.mask != nil {
		masked = uc.mask.Apply(in.all()...)
		uc.log.WithField("cells", masked).Info("Boundary mask applied")
	}
	return in, masked, nil
}

// Execute runs the batch and returns its manifest. Structural errors abort
// before any file is written.
func (uc *AnalysisUseCase) Execute(ctx context.Context, req AnalysisRequest) (*Manifest, error) {
	manifest := NewManifest(req.Years, req.Config)
	log := uc.log.WithField("run_id", manifest.RunID)

	in, masked, err := uc.LoadInputs(req)
	if err != nil {
		return nil, err
	}
	manifest.MaskedCells = masked

	result, err := uc.engine.Run(ctx, in)
	if err != nil {
		return nil, err
	}
	manifest.Stats = result.Stats

	if in.attribution() && req.BaselineSampleCells > 0 {
		baseline, err := uc.engine.Baseline(ctx, in, req.BaselineSampleCells)
		if err != nil {
			log.WithError(err).Warn("Baseline model skipped")
			manifest.BaselineError = err.Error()
		}
		manifest.Baseline = baseline
	}

	files, err := uc.writeOutputs(req.OutputDir, in, result)
	manifest.Files = append(manifest.Files, files...)
	if err != nil {
		return manifest, err
	}

	manifest.FinishedAt = time.Now().UTC()
	path, err := manifest.Write(req.OutputDir)
	if err != nil {
		return manifest, err
	}
	log.WithFields(logrus.Fields{"files": len(manifest.Files), "manifest": path}).Info("Outputs written")
	return manifest, nil
}

func (uc *AnalysisUseCase) writeOutputs(dir string, in Inputs, result *Result) ([]string, error) {
	var files []string
	writeFloat := func(name string, g *raster.Grid) error {
		path := filepath.Join(dir, name+".nc")
		if err := uc.writer.WriteFloat(path, name, g); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		files = append(files, path)
		return nil
	}

	for _, t := range result.Trends {
		if err := writeFloat(t.Name+SlopeSuffix, t.Slope); err != nil {
			return files, err
		}
		if err := writeFloat(t.Name+PValueSuffix, t.PValue); err != nil {
			return files, err
		}
	}
	for k, g := range result.Importance {
		if err := writeFloat(in.Drivers[k].Name+ImportanceSuffix, g); err != nil {
			return files, err
		}
	}
	if result.Dominance != nil {
		path := filepath.Join(dir, DominanceName+".nc")
		if err := uc.writer.WriteClass(path, DominanceName, result.Dominance); err != nil {
			return files, fmt.Errorf("failed to write %s: %w", path, err)
		}
		files = append(files, path)
	}
	return files, nil
}
