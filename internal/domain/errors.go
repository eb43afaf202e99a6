package domain

import (
	"errors"
	"fmt"
)

// Run-level and cell-level failure classes.
//
// ErrInsufficientData and ErrModelFit are local to a single cell and never
// abort a run. ErrShapeMismatch, ErrMissingDriver and ErrInvalidConfig are
// structural and abort before any output is written.
var (
	ErrInsufficientData = errors.New("insufficient valid samples")
	ErrModelFit         = errors.New("model fit failed")
	ErrShapeMismatch    = errors.New("raster shape mismatch")
	ErrMissingDriver    = errors.New("missing driver")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// NewInsufficientDataError reports that a stage needed more valid points.
func NewInsufficientDataError(stage string, have, need int) error {
	return fmt.Errorf("%w: %s has %d valid samples, needs %d", ErrInsufficientData, stage, have, need)
}

// NewShapeMismatchError reports incongruent stacks.
func NewShapeMismatchError(name, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrShapeMismatch, name, reason)
}

// IsCellLocal reports whether err only invalidates the current cell.
func IsCellLocal(err error) bool {
	return errors.Is(err, ErrInsufficientData) || errors.Is(err, ErrModelFit)
}
