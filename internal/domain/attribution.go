package domain

import (
	"fmt"
	"math"

	"go.ngs.io/ecotrend/internal/forest"
)

// DefaultMinAttributionSamples is the minimum number of complete years a
// cell needs before a model is fitted.
const DefaultMinAttributionSamples = 10

// Attributor fits one regression ensemble per cell and reports each
// driver's relative importance.
type Attributor struct {
	MinSamples  int
	Forest      forest.Config
	Categorical []bool // Per driver, aligned with the driver series order.
}

// TrainingRows returns the years where the response and every driver are
// valid, as a feature matrix and target vector.
func TrainingRows(response Series, drivers []Series) ([][]float64, []float64) {
	var x [][]float64
	var y []float64
	for t, v := range response.Values {
		if !IsValid(v, math.NaN()) {
			continue
		}
		row := make([]float64, len(drivers))
		complete := true
		for k, d := range drivers {
			if t >= len(d.Values) || !IsValid(d.Values[t], math.NaN()) {
				complete = false
				break
			}
			row[k] = d.Values[t]
		}
		if !complete {
			continue
		}
		x = append(x, row)
		y = append(y, v)
	}
	return x, y
}

// Attribute returns the importance vector for one cell. Series must be
// anomalies (categorical drivers passed through). The error is
// ErrInsufficientData or ErrModelFit; in both cases the vector is all NaN.
func (a Attributor) Attribute(response Series, drivers []Series) (importance []float64, err error) {
	importance = UndefinedVector(len(drivers))
	x, y := TrainingRows(response, drivers)
	if len(y) < a.MinSamples {
		return importance, NewInsufficientDataError("attribution", len(y), a.MinSamples)
	}

	defer func() {
		if p := recover(); p != nil {
			importance = UndefinedVector(len(drivers))
			err = fmt.Errorf("%w: panic: %v", ErrModelFit, p)
		}
	}()

	model := forest.New(a.Forest)
	if err := model.Fit(x, y, a.Categorical); err != nil {
		return importance, fmt.Errorf("%w: %v", ErrModelFit, err)
	}
	return model.FeatureImportances(), nil
}

// UndefinedVector returns an importance vector with every entry undefined.
func UndefinedVector(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = math.NaN()
	}
	return v
}
