package native

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/tensor"
)

func (e *Engine) buildSum(c engine.SumConfig) (engine.Handle, error) {
	sum := fmt.Sprintf("srcs %v coeffs %v dst %s", c.Srcs, c.Coeffs, c.Dst)

	if len(c.Srcs) == 0 {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("at least one source is required"))
	}
	if len(c.Coeffs) != len(c.Srcs) {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("%d coefficients for %d sources: %w",
			len(c.Coeffs), len(c.Srcs), engine.ErrShapeMismatch))
	}
	for i, s := range c.Srcs {
		if !s.Dims().Equal(c.Dst.Dims()) {
			return nil, cerr(c.Kind(), sum, fmt.Errorf("source %d dims %v, dst dims %v: %w",
				i, s.Dims(), c.Dst.Dims(), engine.ErrShapeMismatch))
		}
	}

	// The destination's layout wins; every source is expected in it so the
	// flat buffers align element for element.
	d := c.Dst.WithDType(tensor.Float32)
	in := make([]tensor.Descriptor, len(c.Srcs))
	for i := range in {
		in[i] = d
	}
	return &handle{cfg: c, in: in, out: []tensor.Descriptor{d}}, nil
}

// execSum computes dst = sum_i coeff_i * src_i. dst may alias the first
// source; later sources must be distinct buffers.
func (e *Engine) execSum(c engine.SumConfig, in, out []*tensor.Tensor) {
	dst := out[0].Float32s()
	n := len(dst)

	first := in[0].Float32s()
	copy(dst, first)
	if c.Coeffs[0] != 1 {
		blas32.Scal(c.Coeffs[0], blas32.Vector{N: n, Inc: 1, Data: dst})
	}
	for i := 1; i < len(in); i++ {
		blas32.Axpy(c.Coeffs[i],
			blas32.Vector{N: n, Inc: 1, Data: in[i].Float32s()},
			blas32.Vector{N: n, Inc: 1, Data: dst})
	}
}
