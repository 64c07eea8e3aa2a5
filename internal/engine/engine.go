// Package engine defines the boundary to the external tensor-primitive
// engine: a closed set of operator configurations, the handle/execute
// contract, and the error taxonomy shared by everything above it.
//
// The engine is a collaborator, not part of this system's core: given a
// fully specified configuration it compiles an opaque execution handle, and
// given a handle plus bound buffers it runs to completion. The cache and
// fusion layers never look inside a handle.
package engine

import (
	"github.com/weft-ml/weft/internal/tensor"
)

// Handle is an engine-compiled execution plan for one fixed configuration.
// The expected descriptors report, per position, the layout the engine
// actually wants, which may differ from what the caller provided in the
// configuration; the format negotiator bridges the difference.
type Handle interface {
	// Kind returns the operator kind the handle was compiled for.
	Kind() Kind
	// ExpectedInputs returns the engine's required input descriptors, in
	// binding order.
	ExpectedInputs() []tensor.Descriptor
	// ExpectedOutputs returns the descriptors of the outputs the handle
	// produces, in binding order.
	ExpectedOutputs() []tensor.Descriptor
}

// Engine compiles operator configurations and executes them against bound
// buffers. Implementations may parallelize internally; that parallelism is
// invisible above this interface. Execution is synchronous: Execute returns
// only when the outputs are fully written.
type Engine interface {
	// Build compiles a configuration into a handle. Failures are
	// *ConstructionError and are never retried by the layers above.
	Build(cfg Config) (Handle, error)

	// Execute runs a compiled handle. Every bound tensor's descriptor must
	// exactly equal the handle's expected descriptor at that position;
	// descriptor negotiation happens before this call, not inside it.
	// Failures are *ExecutionError.
	Execute(h Handle, in, out []*tensor.Tensor) error

	// Convert compiles a layout-conversion plan between two descriptors of
	// equal logical shape. The plan executes like any other handle, with
	// one input and one output.
	Convert(src, dst tensor.Descriptor) (Handle, error)
}
