package model

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidTopology is returned by the constructors for non-positive layer
// sizes or a learning rate that is not a positive finite number.
var ErrInvalidTopology = errors.New("model: invalid topology")

// ErrDimensionMismatch matches any *DimensionMismatchError via errors.Is.
var ErrDimensionMismatch = errors.New("model: dimension mismatch")

// DimensionMismatchError reports a vector whose length does not match its layer.
type DimensionMismatchError struct {
	Operand  string
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("model: %s has length %d, expected %d", e.Operand, e.Actual, e.Expected)
}

// Is lets errors.Is(err, ErrDimensionMismatch) succeed.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

func checkLen(operand string, v []float64, expected int) error {
	if len(v) != expected {
		return &DimensionMismatchError{Operand: operand, Expected: expected, Actual: len(v)}
	}
	return nil
}
