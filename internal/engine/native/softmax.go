package native

import (
	"fmt"
	"math"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/parallel"
	"github.com/weft-ml/weft/internal/tensor"
)

// normAxis resolves a possibly negative axis against a rank.
func normAxis(axis, rank int) int {
	if axis < 0 {
		return axis + rank
	}
	return axis
}

func (e *Engine) buildSoftmax(c engine.SoftmaxConfig) (engine.Handle, error) {
	sum := fmt.Sprintf("src %s axis %d", c.Src, c.Axis)

	rank := c.Src.Rank()
	axis := normAxis(c.Axis, rank)
	if axis < 0 || axis >= rank {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("axis %d for rank %d: %w",
			c.Axis, rank, engine.ErrUnsupportedAxis))
	}
	canon, err := canonicalPlain(rank)
	if err != nil {
		return nil, &engine.UnsupportedConfigurationError{Op: c.Kind(), Detail: err.Error()}
	}

	d := tensor.MustDescriptor(c.Src.Dims(), tensor.Float32, canon)
	return &handle{cfg: c, in: []tensor.Descriptor{d}, out: []tensor.Descriptor{d}}, nil
}

// execSoftmax normalizes along the axis with the usual max-subtraction so
// large logits do not overflow the exponential.
func (e *Engine) execSoftmax(c engine.SoftmaxConfig, in, out []*tensor.Tensor) {
	src := in[0].Float32s()
	dst := out[0].Float32s()

	dims := c.Src.Dims()
	axis := normAxis(c.Axis, len(dims))
	axisN := dims[axis]
	outer := 1
	for d := 0; d < axis; d++ {
		outer *= dims[d]
	}
	inner := 1
	for d := axis + 1; d < len(dims); d++ {
		inner *= dims[d]
	}

	parallel.For(outer*inner, func(oi int) {
		o, ii := oi/inner, oi%inner
		base := o*axisN*inner + ii

		maxVal := src[base]
		for k := 1; k < axisN; k++ {
			if v := src[base+k*inner]; v > maxVal {
				maxVal = v
			}
		}
		var total float32
		for k := 0; k < axisN; k++ {
			ev := float32(math.Exp(float64(src[base+k*inner] - maxVal)))
			dst[base+k*inner] = ev
			total += ev
		}
		inv := 1 / total
		for k := 0; k < axisN; k++ {
			dst[base+k*inner] *= inv
		}
	}, e.cfg.Parallel)
}
