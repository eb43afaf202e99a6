package raster

import (
	"fmt"
	"math"

	"go.ngs.io/ecotrend/internal/domain"
)

// Stack is an ordered sequence of co-registered grids, one per year.
type Stack struct {
	Name        string
	Years       []int
	Grids       []*Grid
	Categorical bool
}

// Validate checks that the stack is non-empty, year-aligned and internally
// congruent.
func (s *Stack) Validate() error {
	if len(s.Grids) == 0 {
		return domain.NewShapeMismatchError(s.Name, "stack has no grids")
	}
	if len(s.Years) != len(s.Grids) {
		return domain.NewShapeMismatchError(s.Name, fmt.Sprintf("%d years for %d grids", len(s.Years), len(s.Grids)))
	}
	for i := 1; i < len(s.Years); i++ {
		if s.Years[i] <= s.Years[i-1] {
			return domain.NewShapeMismatchError(s.Name, "years must be strictly increasing")
		}
	}
	first := s.Grids[0]
	if err := first.Validate(); err != nil {
		return domain.NewShapeMismatchError(s.Name, fmt.Sprintf("year %d: %v", s.Years[0], err))
	}
	for i, g := range s.Grids[1:] {
		if err := g.Validate(); err != nil {
			return domain.NewShapeMismatchError(s.Name, fmt.Sprintf("year %d: %v", s.Years[i+1], err))
		}
		if err := first.Congruent(g); err != nil {
			return domain.NewShapeMismatchError(s.Name, fmt.Sprintf("year %d: %v", s.Years[i+1], err))
		}
	}
	return nil
}

// Reference returns the first grid, whose metadata all others share.
func (s *Stack) Reference() *Grid {
	return s.Grids[0]
}

// Height returns the number of rows.
func (s *Stack) Height() int {
	return s.Reference().Height()
}

// Width returns the number of columns.
func (s *Stack) Width() int {
	return s.Reference().Width()
}

// Series returns the time series at (row, col) with every invalid value,
// including the grid's nodata sentinel, replaced by NaN.
func (s *Stack) Series(row, col int) domain.Series {
	values := make([]float64, len(s.Grids))
	for t, g := range s.Grids {
		v := g.Values[row][col]
		if domain.IsValid(v, g.NoData) {
			values[t] = v
		} else {
			values[t] = math.NaN()
		}
	}
	return domain.Series{Years: s.Years, Values: values}
}

// Mask sets every cell for which keep returns false to NaN in all grids.
// It returns the number of cells masked out.
func (s *Stack) Mask(keep func(row, col int) bool) int {
	masked := 0
	for r := 0; r < s.Height(); r++ {
		for c := 0; c < s.Width(); c++ {
			if keep(r, c) {
				continue
			}
			masked++
			for _, g := range s.Grids {
				g.Values[r][c] = math.NaN()
			}
		}
	}
	return masked
}

// CheckCongruent verifies that every stack is valid, shares the first
// stack's grid metadata and has the same year sequence.
func CheckCongruent(stacks ...*Stack) error {
	if len(stacks) == 0 {
		return nil
	}
	for _, s := range stacks {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	ref := stacks[0]
	for _, s := range stacks[1:] {
		if err := ref.Reference().Congruent(s.Reference()); err != nil {
			return domain.NewShapeMismatchError(s.Name, fmt.Sprintf("against %s: %v", ref.Name, err))
		}
		if len(s.Years) != len(ref.Years) {
			return domain.NewShapeMismatchError(s.Name, fmt.Sprintf("%d years, %s has %d", len(s.Years), ref.Name, len(ref.Years)))
		}
		for i := range s.Years {
			if s.Years[i] != ref.Years[i] {
				return domain.NewShapeMismatchError(s.Name, fmt.Sprintf("year %d at position %d, %s has %d", s.Years[i], i, ref.Name, ref.Years[i]))
			}
		}
	}
	return nil
}
