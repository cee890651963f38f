package base

import (
	"fmt"
	"math"

	ts "github.com/sugarme/gotch/tensor"
)

// ShapeError reports a tensor whose shape does not satisfy the contract of
// the operation named in Op. It is fatal for the forward pass that produced
// it; retrying would reproduce the same shapes.
type ShapeError struct {
	Op   string
	Want []int64
	Got  []int64
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%v: shape mismatch: want %v, got %v", e.Op, e.Want, e.Got)
}

// ConfigError reports an invalid model configuration. It is raised at
// assembly time, before any forward pass runs.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %q: %v", e.Field, e.Reason)
}

// NumericError reports NaN or infinite values in a tensor. The values are
// surfaced, never substituted; they indicate upstream parameter instability.
type NumericError struct {
	Op     string
	Detail string
}

func (e *NumericError) Error() string {
	return fmt.Sprintf("%v: %v", e.Op, e.Detail)
}

// CheckFinite returns a NumericError if x contains NaN or infinite values.
func CheckFinite(op string, x *ts.Tensor) error {
	vals := x.Float64Values()
	for i, v := range vals {
		if math.IsNaN(v) {
			return &NumericError{Op: op, Detail: fmt.Sprintf("NaN at flat index %v", i)}
		}
		if math.IsInf(v, 0) {
			return &NumericError{Op: op, Detail: fmt.Sprintf("infinite value at flat index %v", i)}
		}
	}
	return nil
}
