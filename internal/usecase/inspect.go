package usecase

import (
	"errors"
	"fmt"
	"math"

	"go.ngs.io/ecotrend/internal/domain"
	"go.ngs.io/ecotrend/internal/raster"
)

// Lookup errors.
var (
	ErrUnknownStack = errors.New("unknown stack")
	ErrOutOfGrid    = errors.New("cell outside grid")
	ErrNoDrivers    = errors.New("attribution not configured")
)

// GridInfo describes the shared grid of the loaded stacks.
type GridInfo struct {
	Height    int        `json:"height"`
	Width     int        `json:"width"`
	Years     []int      `json:"years"`
	CRS       string     `json:"crs"`
	Transform [6]float64 `json:"geotransform"`
	Stacks    []string   `json:"stacks"`
	Response  string     `json:"response,omitempty"`
	Drivers   []string   `json:"drivers,omitempty"`
}

// PixelTrend is the trend breakdown of one cell.
type PixelTrend struct {
	Stack       string           `json:"stack"`
	Row         int              `json:"row"`
	Col         int              `json:"col"`
	X           float64          `json:"x"`
	Y           float64          `json:"y"`
	Years       []int            `json:"years"`
	Values      []*float64       `json:"values"`
	N           int              `json:"n"`
	SenSlope    *float64         `json:"sen_slope"`
	PValue      *float64         `json:"p_value"`
	MannKendall *MannKendallInfo `json:"mann_kendall,omitempty"`
	Note        string           `json:"note,omitempty"`
}

// MannKendallInfo is the JSON form of a Mann-Kendall test.
type MannKendallInfo struct {
	S     *float64 `json:"s"`
	VarS  *float64 `json:"var_s"`
	Z     *float64 `json:"z"`
	P     *float64 `json:"p"`
	Tau   *float64 `json:"tau"`
	Trend string   `json:"trend"`
}

// PixelAttribution is the attribution breakdown of one cell.
type PixelAttribution struct {
	Row       int                  `json:"row"`
	Col       int                  `json:"col"`
	X         float64              `json:"x"`
	Y         float64              `json:"y"`
	Years     []int                `json:"years"`
	Response  []*float64           `json:"response_anomaly"`
	Drivers   []DriverContribution `json:"drivers"`
	Climate   *float64             `json:"climate_score"`
	Human     *float64             `json:"human_score"`
	Dominance domain.Dominance     `json:"dominance"`
	Code      uint8                `json:"dominance_code"`
	Note      string               `json:"note,omitempty"`
}

// DriverContribution is one driver's anomaly series and importance.
type DriverContribution struct {
	Name        string     `json:"name"`
	Group       string     `json:"group"`
	Categorical bool       `json:"categorical"`
	Anomaly     []*float64 `json:"anomaly"`
	Importance  *float64   `json:"importance"`
}

// PixelInspector answers per-cell queries against loaded stacks.
type PixelInspector struct {
	engine *GridEngine
	in     Inputs
	ref    *raster.Grid
}

// NewPixelInspector creates an inspector over congruent inputs.
func NewPixelInspector(engine *GridEngine, in Inputs) (*PixelInspector, error) {
	stacks := in.all()
	if len(stacks) == 0 {
		return nil, fmt.Errorf("%w: no input stacks", domain.ErrInvalidConfig)
	}
	if err := raster.CheckCongruent(stacks...); err != nil {
		return nil, err
	}
	return &PixelInspector{engine: engine, in: in, ref: stacks[0].Reference()}, nil
}

// Grid returns the grid description.
func (p *PixelInspector) Grid() GridInfo {
	info := GridInfo{
		Height:    p.ref.Height(),
		Width:     p.ref.Width(),
		Years:     p.in.all()[0].Years,
		CRS:       p.ref.CRS,
		Transform: p.ref.Transform,
	}
	for _, s := range p.in.Trend {
		info.Stacks = append(info.Stacks, s.Name)
	}
	if p.in.Response != nil {
		info.Response = p.in.Response.Name
	}
	for _, d := range p.in.Drivers {
		info.Drivers = append(info.Drivers, d.Name)
	}
	return info
}

func (p *PixelInspector) checkCell(row, col int) error {
	if !p.ref.Contains(row, col) {
		return fmt.Errorf("%w: (%d, %d) not in %dx%d", ErrOutOfGrid, row, col, p.ref.Height(), p.ref.Width())
	}
	return nil
}

// Locate returns the cell containing the map coordinate (x, y).
func (p *PixelInspector) Locate(x, y float64) (row, col int, err error) {
	row, col, err = p.ref.Transform.Index(x, y)
	if err != nil {
		return 0, 0, err
	}
	if err := p.checkCell(row, col); err != nil {
		return 0, 0, err
	}
	return row, col, nil
}

func (p *PixelInspector) findStack(name string) (*raster.Stack, error) {
	for _, s := range p.in.Trend {
		if s.Name == name {
			return s, nil
		}
	}
	if p.in.Response != nil && p.in.Response.Name == name {
		return p.in.Response, nil
	}
	for _, d := range p.in.Drivers {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStack, name)
}

// Trend computes the trend of one stack at one cell. An empty name selects
// the first trend stack.
func (p *PixelInspector) Trend(name string, row, col int) (*PixelTrend, error) {
	if err := p.checkCell(row, col); err != nil {
		return nil, err
	}
	if name == "" {
		if len(p.in.Trend) == 0 {
			return nil, fmt.Errorf("%w: no trend stacks", ErrUnknownStack)
		}
		name = p.in.Trend[0].Name
	}
	s, err := p.findStack(name)
	if err != nil {
		return nil, err
	}

	series := s.Series(row, col)
	tr := p.engine.Trend.Estimate(series)
	x, y := p.ref.Transform.CellCenter(row, col)
	out := &PixelTrend{
		Stack:    s.Name,
		Row:      row,
		Col:      col,
		X:        x,
		Y:        y,
		Years:    series.Years,
		Values:   nullables(series.Values),
		N:        tr.N,
		SenSlope: nullable(tr.Slope),
		PValue:   nullable(tr.PValue),
	}
	mk, err := p.engine.Trend.Test(series)
	if err != nil {
		out.Note = err.Error()
		return out, nil
	}
	out.MannKendall = &MannKendallInfo{
		S:     nullable(mk.S),
		VarS:  nullable(mk.VarS),
		Z:     nullable(mk.Z),
		P:     nullable(mk.P),
		Tau:   nullable(mk.Tau),
		Trend: string(mk.Trend),
	}
	return out, nil
}

// Attribution fits the model of one cell and classifies it.
func (p *PixelInspector) Attribution(row, col int) (*PixelAttribution, error) {
	if !p.in.attribution() {
		return nil, ErrNoDrivers
	}
	if err := p.checkCell(row, col); err != nil {
		return nil, err
	}

	response, drivers := p.engine.CellAnomalies(p.in, row, col)
	importance, err := p.engine.attributor(p.in).Attribute(response, drivers)
	climate, human := p.engine.Classifier.Partition.Scores(importance)
	d := p.engine.Classifier.Classify(importance)
	x, y := p.ref.Transform.CellCenter(row, col)

	out := &PixelAttribution{
		Row:       row,
		Col:       col,
		X:         x,
		Y:         y,
		Years:     response.Years,
		Response:  nullables(response.Values),
		Dominance: d,
		Code:      uint8(d),
	}
	if d != domain.DominanceUndefined {
		out.Climate = nullable(climate)
		out.Human = nullable(human)
	}
	if err != nil {
		out.Note = err.Error()
	}
	for k, ds := range p.in.Drivers {
		group := ""
		if k < len(p.engine.Classifier.Partition) {
			group = string(p.engine.Classifier.Partition[k])
		}
		out.Drivers = append(out.Drivers, DriverContribution{
			Name:        ds.Name,
			Group:       group,
			Categorical: ds.Categorical,
			Anomaly:     nullables(drivers[k].Values),
			Importance:  nullable(importance[k]),
		})
	}
	return out, nil
}

// nullable maps undefined values to nil so they encode as JSON null.
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nullables(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		out[i] = nullable(v)
	}
	return out
}
