// Package forest implements a bagged ensemble of CART regression trees with
// mean-decrease-in-impurity feature importances.
//
// Every tree considers all features at every split; the ensemble's only
// randomness is the bootstrap draw, taken from a source seeded with
// Config.Seed at the start of each Fit. Two fits with the same seed and the
// same rows therefore produce identical models.
package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Fit input errors.
var (
	ErrNoSamples     = errors.New("no training samples")
	ErrDimension     = errors.New("inconsistent training dimensions")
	ErrNonFinite     = errors.New("non-finite training value")
	ErrNotFitted     = errors.New("model is not fitted")
	ErrInvalidConfig = errors.New("invalid forest configuration")
)

// Config controls the ensemble shape.
type Config struct {
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Seed            int64
	Bootstrap       bool
}

// DefaultConfig mirrors the per-pixel model: 100 trees of depth 10, seed 42.
func DefaultConfig() Config {
	return Config{
		Trees:           100,
		MaxDepth:        10,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Seed:            42,
		Bootstrap:       true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Trees < 1 {
		return fmt.Errorf("%w: trees must be >= 1, got %d", ErrInvalidConfig, c.Trees)
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("%w: max depth must be >= 1, got %d", ErrInvalidConfig, c.MaxDepth)
	}
	if c.MinSamplesSplit < 2 {
		return fmt.Errorf("%w: min samples split must be >= 2, got %d", ErrInvalidConfig, c.MinSamplesSplit)
	}
	if c.MinSamplesLeaf < 1 {
		return fmt.Errorf("%w: min samples leaf must be >= 1, got %d", ErrInvalidConfig, c.MinSamplesLeaf)
	}
	return nil
}

// Regressor is a bagged regression-tree ensemble.
type Regressor struct {
	cfg         Config
	nFeatures   int
	trees       []*tree
	importances []float64
}

// New creates an unfitted regressor.
func New(cfg Config) *Regressor {
	return &Regressor{cfg: cfg}
}

// Fit trains the ensemble on rows x (samples × features) and targets y.
// categorical marks features whose values are class codes; it may be nil.
func (r *Regressor) Fit(x [][]float64, y []float64, categorical []bool) error {
	if err := r.cfg.Validate(); err != nil {
		return err
	}
	if len(x) == 0 || len(y) == 0 {
		return ErrNoSamples
	}
	if len(x) != len(y) {
		return fmt.Errorf("%w: %d rows but %d targets", ErrDimension, len(x), len(y))
	}
	nf := len(x[0])
	if nf == 0 {
		return fmt.Errorf("%w: zero features", ErrDimension)
	}
	for i, row := range x {
		if len(row) != nf {
			return fmt.Errorf("%w: row %d has %d features, expected %d", ErrDimension, i, len(row), nf)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w in row %d", ErrNonFinite, i)
			}
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return fmt.Errorf("%w in target %d", ErrNonFinite, i)
		}
	}
	if categorical != nil && len(categorical) != nf {
		return fmt.Errorf("%w: %d categorical flags for %d features", ErrDimension, len(categorical), nf)
	}

	rng := rand.New(rand.NewSource(r.cfg.Seed))
	n := len(y)
	r.nFeatures = nf
	r.trees = make([]*tree, 0, r.cfg.Trees)
	importances := make([]float64, nf)

	for k := 0; k < r.cfg.Trees; k++ {
		idx := make([]int, n)
		for i := range idx {
			if r.cfg.Bootstrap {
				idx[i] = rng.Intn(n)
			} else {
				idx[i] = i
			}
		}
		t := &tree{gain: make([]float64, nf)}
		b := &builder{x: x, y: y, categorical: categorical, cfg: r.cfg, t: t}
		b.build(idx, 0)
		r.trees = append(r.trees, t)

		if total := floats.Sum(t.gain); total > 0 {
			floats.AddScaled(importances, 1/total, t.gain)
		}
	}

	floats.Scale(1/float64(len(r.trees)), importances)
	if total := floats.Sum(importances); total > 0 {
		floats.Scale(1/total, importances)
	}
	r.importances = importances
	return nil
}

// Predict returns the ensemble mean prediction for one feature vector.
func (r *Regressor) Predict(x []float64) (float64, error) {
	if len(r.trees) == 0 {
		return 0, ErrNotFitted
	}
	if len(x) != r.nFeatures {
		return 0, fmt.Errorf("%w: got %d features, expected %d", ErrDimension, len(x), r.nFeatures)
	}
	var sum float64
	for _, t := range r.trees {
		sum += t.predict(x)
	}
	return sum / float64(len(r.trees)), nil
}

// Score returns the coefficient of determination R² on (x, y).
func (r *Regressor) Score(x [][]float64, y []float64) (float64, error) {
	if len(x) != len(y) || len(y) == 0 {
		return 0, fmt.Errorf("%w: %d rows but %d targets", ErrDimension, len(x), len(y))
	}
	m := floats.Sum(y) / float64(len(y))
	var ssRes, ssTot float64
	for i, row := range x {
		p, err := r.Predict(row)
		if err != nil {
			return 0, err
		}
		ssRes += (y[i] - p) * (y[i] - p)
		ssTot += (y[i] - m) * (y[i] - m)
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 1 - ssRes/ssTot, nil
}

// FeatureImportances returns a copy of the normalized impurity importances.
// Entries sum to 1, or are all zero when no tree could split.
func (r *Regressor) FeatureImportances() []float64 {
	return append([]float64(nil), r.importances...)
}
