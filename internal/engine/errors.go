package engine

import (
	"errors"
	"fmt"

	"github.com/weft-ml/weft/internal/tensor"
)

// Common errors.
var (
	ErrShapeMismatch   = errors.New("descriptor shapes are inconsistent")
	ErrUnsupportedAxis = errors.New("axis out of range")
	ErrNotFloat32      = errors.New("engine computes in float32")
)

// ConstructionError reports that an operator configuration could not be
// compiled: an invalid or unsupported shape/attribute combination. It is
// surfaced to the caller and never retried, and a failed construction is
// never cached.
type ConstructionError struct {
	Op     Kind
	Config string // formatted configuration summary
	Err    error
}

// Error implements the error interface.
func (e *ConstructionError) Error() string {
	if e.Config != "" {
		return fmt.Sprintf("%s: construction failed (%s): %v", e.Op, e.Config, e.Err)
	}
	return fmt.Sprintf("%s: construction failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConstructionError) Unwrap() error { return e.Err }

// ExecutionError reports that the engine failed while running a compiled
// handle. Fatal for that invocation; not retried.
type ExecutionError struct {
	Op  Kind
	Err error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: execution failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ExecutionError) Unwrap() error { return e.Err }

// IncompatibleBindingError reports a buffer whose descriptor matches neither
// a computation's expected descriptor at its position nor the source side of
// the reorder attached there. This is a programming error in the caller.
type IncompatibleBindingError struct {
	Op   Kind
	Pos  int
	Got  tensor.Descriptor
	Want tensor.Descriptor
	Alt  tensor.Descriptor // reorder source accepted at this position, if any
	Out  bool              // true when the position indexes an output
}

// Error implements the error interface.
func (e *IncompatibleBindingError) Error() string {
	slot := "input"
	if e.Out {
		slot = "output"
	}
	if e.Alt.Rank() != 0 {
		return fmt.Sprintf("%s: %s %d bound as %s, want %s (or %s for conversion)",
			e.Op, slot, e.Pos, e.Got, e.Want, e.Alt)
	}
	return fmt.Sprintf("%s: %s %d bound as %s, want %s", e.Op, slot, e.Pos, e.Got, e.Want)
}

// UnsupportedConfigurationError reports a requested fusion or axis/format
// combination outside the engine's closed rule set. Fusion paths treat it
// as "fall back to unfused execution"; construction paths treat it as fatal.
type UnsupportedConfigurationError struct {
	Op     Kind
	Detail string
}

// Error implements the error interface.
func (e *UnsupportedConfigurationError) Error() string {
	return fmt.Sprintf("%s: unsupported configuration: %s", e.Op, e.Detail)
}
