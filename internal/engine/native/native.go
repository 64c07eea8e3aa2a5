// Package native implements the engine contract in pure Go. It exists so
// the cache and fusion layers have a complete collaborator to run against:
// kernels favor clarity over peak throughput, compute in float32, and
// prefer plain canonical layouts, leaving layout and dtype bridging to the
// reorder kernels.
package native

import (
	"errors"
	"fmt"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/parallel"
	"github.com/weft-ml/weft/internal/tensor"
)

// Config controls engine behavior.
type Config struct {
	// Parallel sizes the worker pool used inside kernels.
	Parallel parallel.Config
	// BlockedWeights makes convolution report OIhw8i8o as its expected
	// weights layout whenever both channel dims are divisible by the block
	// size. The kernel unpacks before computing; the point is to exercise
	// real layout negotiation, not speed.
	BlockedWeights bool
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{Parallel: parallel.DefaultConfig()}
}

// Engine is the pure-Go reference engine.
type Engine struct {
	cfg Config
}

// New creates an engine with default configuration.
func New() *Engine {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates an engine with explicit configuration.
func NewWithConfig(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// handle retains the original configuration next to the descriptors the
// engine decided to require. Execution dispatches on the configuration's
// concrete type.
type handle struct {
	cfg engine.Config
	in  []tensor.Descriptor
	out []tensor.Descriptor
}

func (h *handle) Kind() engine.Kind                    { return h.cfg.Kind() }
func (h *handle) ExpectedInputs() []tensor.Descriptor  { return h.in }
func (h *handle) ExpectedOutputs() []tensor.Descriptor { return h.out }

// Build compiles a configuration, validating geometry and deciding the
// layouts execution will require.
func (e *Engine) Build(cfg engine.Config) (engine.Handle, error) {
	switch c := cfg.(type) {
	case engine.ConvConfig:
		return e.buildConv(c)
	case engine.ConvBackDataConfig:
		return e.buildConvBackData(c)
	case engine.ConvBackWeightsConfig:
		return e.buildConvBackWeights(c)
	case engine.PoolConfig:
		return e.buildPool(c)
	case engine.PoolBackConfig:
		return e.buildPoolBack(c)
	case engine.BatchNormConfig:
		return e.buildBatchNorm(c)
	case engine.EltwiseConfig:
		return e.buildEltwise(c)
	case engine.InnerProductConfig:
		return e.buildInnerProduct(c)
	case engine.SumConfig:
		return e.buildSum(c)
	case engine.ConcatConfig:
		return e.buildConcat(c)
	case engine.SoftmaxConfig:
		return e.buildSoftmax(c)
	case engine.ReorderConfig:
		return e.buildReorder(c)
	default:
		return nil, &engine.ConstructionError{
			Op:  cfg.Kind(),
			Err: fmt.Errorf("unrecognized configuration type %T", cfg),
		}
	}
}

// Execute runs a compiled handle against exactly-matching bound tensors.
func (e *Engine) Execute(h engine.Handle, in, out []*tensor.Tensor) error {
	hd, ok := h.(*handle)
	if !ok {
		return &engine.ExecutionError{Op: h.Kind(), Err: errors.New("handle was not built by this engine")}
	}
	if err := bindCheck(hd, in, out); err != nil {
		return err
	}

	switch c := hd.cfg.(type) {
	case engine.ConvConfig:
		e.execConv(c, in, out)
	case engine.ConvBackDataConfig:
		e.execConvBackData(c, in, out)
	case engine.ConvBackWeightsConfig:
		e.execConvBackWeights(c, in, out)
	case engine.PoolConfig:
		e.execPool(c, in, out)
	case engine.PoolBackConfig:
		e.execPoolBack(c, in, out)
	case engine.BatchNormConfig:
		e.execBatchNorm(c, in, out)
	case engine.EltwiseConfig:
		e.execEltwise(c, in, out)
	case engine.InnerProductConfig:
		e.execInnerProduct(c, in, out)
	case engine.SumConfig:
		e.execSum(c, in, out)
	case engine.ConcatConfig:
		e.execConcat(c, in, out)
	case engine.SoftmaxConfig:
		e.execSoftmax(c, in, out)
	case engine.ReorderConfig:
		e.execReorder(hd.in[0], hd.out[0], in[0], out[0])
	default:
		return &engine.ExecutionError{Op: hd.Kind(), Err: fmt.Errorf("unrecognized configuration type %T", hd.cfg)}
	}
	return nil
}

// Convert compiles a standalone layout conversion.
func (e *Engine) Convert(src, dst tensor.Descriptor) (engine.Handle, error) {
	return e.Build(engine.ReorderConfig{Src: src, Dst: dst})
}

// bindCheck enforces the exact-descriptor contract of Execute.
func bindCheck(h *handle, in, out []*tensor.Tensor) error {
	if len(in) != len(h.in) || len(out) != len(h.out) {
		return &engine.ExecutionError{
			Op: h.Kind(),
			Err: fmt.Errorf("bound %d inputs and %d outputs, handle expects %d and %d",
				len(in), len(out), len(h.in), len(h.out)),
		}
	}
	for i, t := range in {
		if !t.Materialized() {
			return &engine.ExecutionError{Op: h.Kind(), Err: fmt.Errorf("input %d is not materialized", i)}
		}
		if !t.Desc().Equal(h.in[i]) {
			return &engine.IncompatibleBindingError{Op: h.Kind(), Pos: i, Got: t.Desc(), Want: h.in[i]}
		}
	}
	for i, t := range out {
		if !t.Materialized() {
			return &engine.ExecutionError{Op: h.Kind(), Err: fmt.Errorf("output %d is not materialized", i)}
		}
		if !t.Desc().Equal(h.out[i]) {
			return &engine.IncompatibleBindingError{Op: h.Kind(), Pos: i, Got: t.Desc(), Want: h.out[i], Out: true}
		}
	}
	return nil
}

// cerr wraps a cause into a ConstructionError with a configuration summary.
func cerr(op engine.Kind, summary string, cause error) error {
	return &engine.ConstructionError{Op: op, Config: summary, Err: cause}
}

// canonicalPlain maps a logical rank to the plain activation layout the
// kernels compute in.
func canonicalPlain(rank int) (tensor.Layout, error) {
	switch rank {
	case 1:
		return tensor.Vec, nil
	case 2:
		return tensor.NC, nil
	case 4:
		return tensor.NCHW, nil
	default:
		return 0, fmt.Errorf("no canonical plain layout for rank %d", rank)
	}
}
