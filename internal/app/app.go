// Package app wires configuration into stores and use cases.
package app

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"go.ngs.io/ecotrend/internal/adapter/boundary"
	"go.ngs.io/ecotrend/internal/adapter/store"
	"go.ngs.io/ecotrend/internal/config"
	"go.ngs.io/ecotrend/internal/usecase"
)

// Stages selects which parts of the configured run execute.
type Stages struct {
	Trend       bool
	Attribution bool
}

// AllStages runs everything the configuration enables.
var AllStages = Stages{Trend: true, Attribution: true}

// NewEngine builds a grid engine from cfg.
func NewEngine(cfg *config.Config, log logrus.FieldLogger) *usecase.GridEngine {
	engine := usecase.NewGridEngine(log)
	engine.Trend = cfg.TrendEstimator()
	engine.Anomalizer = cfg.Anomalizer()
	engine.Attributor = cfg.Attributor()
	engine.Classifier = cfg.Classifier()
	engine.Options = usecase.Options{
		Workers:   cfg.Engine.Workers,
		BlockRows: cfg.Engine.BlockRows,
		MaxCells:  cfg.Engine.MaxCells,
		Timeout:   time.Duration(cfg.Engine.Timeout),
		Progress:  cfg.Engine.Progress,
	}
	return engine
}

// NewRequest builds the batch request for the selected stages.
func NewRequest(cfg *config.Config, stages Stages) (usecase.AnalysisRequest, error) {
	req := usecase.AnalysisRequest{
		Years:               cfg.Years.List(),
		OutputDir:           cfg.OutputDir,
		BaselineSampleCells: cfg.Attribution.BaselineSampleCells,
		Config:              cfg,
	}
	if stages.Trend {
		for _, s := range cfg.Trend.Stacks {
			req.Trend = append(req.Trend, s.Source())
		}
	}
	if stages.Attribution && cfg.Attribution.Enabled() {
		response := cfg.Attribution.Response.Source()
		req.Response = &response
		for _, d := range cfg.Attribution.Drivers {
			req.Drivers = append(req.Drivers, d.Source())
		}
	}
	if len(req.Trend) == 0 && req.Response == nil {
		return req, fmt.Errorf("no stage selected has any configured stack")
	}
	return req, nil
}

// NewMask loads the configured boundary, or returns nil when none is set.
func NewMask(cfg *config.Config, log logrus.FieldLogger) (usecase.CellMask, error) {
	if cfg.Boundary == "" {
		return nil, nil
	}
	mask, err := boundary.LoadShapefile(cfg.Boundary)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"path": cfg.Boundary, "polygons": mask.Len()}).Info("Boundary loaded")
	return mask, nil
}

// LoadInputs loads and masks every configured stack for inspection.
func LoadInputs(cfg *config.Config, loader store.StackLoader, log logrus.FieldLogger) (usecase.Inputs, error) {
	req, err := NewRequest(cfg, AllStages)
	if err != nil {
		return usecase.Inputs{}, err
	}
	mask, err := NewMask(cfg, log)
	if err != nil {
		return usecase.Inputs{}, err
	}
	uc := usecase.NewAnalysisUseCase(loader, nil, NewEngine(cfg, log), mask)
	in, _, err := uc.LoadInputs(req)
	return in, err
}
