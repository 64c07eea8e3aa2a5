package native

import (
	"fmt"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/parallel"
	"github.com/weft-ml/weft/internal/tensor"
)

func (e *Engine) buildConcat(c engine.ConcatConfig) (engine.Handle, error) {
	sum := fmt.Sprintf("srcs %v axis %d dst %s", c.Srcs, c.Axis, c.Dst)

	if len(c.Srcs) == 0 {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("at least one source is required"))
	}
	rank := c.Dst.Rank()
	if c.Axis < 0 || c.Axis >= rank {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("axis %d for rank %d: %w",
			c.Axis, rank, engine.ErrUnsupportedAxis))
	}
	axisTotal := 0
	for i, s := range c.Srcs {
		if s.Rank() != rank {
			return nil, cerr(c.Kind(), sum, fmt.Errorf("source %d rank %d, dst rank %d: %w",
				i, s.Rank(), rank, engine.ErrShapeMismatch))
		}
		for d := 0; d < rank; d++ {
			if d != c.Axis && s.Dim(d) != c.Dst.Dim(d) {
				return nil, cerr(c.Kind(), sum, fmt.Errorf("source %d dim %d = %d, dst has %d: %w",
					i, d, s.Dim(d), c.Dst.Dim(d), engine.ErrShapeMismatch))
			}
		}
		axisTotal += s.Dim(c.Axis)
	}
	if axisTotal != c.Dst.Dim(c.Axis) {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("sources sum to %d along axis %d, dst has %d: %w",
			axisTotal, c.Axis, c.Dst.Dim(c.Axis), engine.ErrShapeMismatch))
	}

	canon, err := canonicalPlain(rank)
	if err != nil {
		return nil, &engine.UnsupportedConfigurationError{Op: c.Kind(), Detail: err.Error()}
	}
	in := make([]tensor.Descriptor, len(c.Srcs))
	for i, s := range c.Srcs {
		in[i] = tensor.MustDescriptor(s.Dims(), tensor.Float32, canon)
	}
	out := []tensor.Descriptor{tensor.MustDescriptor(c.Dst.Dims(), tensor.Float32, canon)}
	return &handle{cfg: c, in: in, out: out}, nil
}

// execConcat copies each source's row-major block for every outer index,
// walking the destination's axis extent left to right.
func (e *Engine) execConcat(c engine.ConcatConfig, in, out []*tensor.Tensor) {
	dst := out[0].Float32s()
	dims := c.Dst.Dims()

	outer := 1
	for d := 0; d < c.Axis; d++ {
		outer *= dims[d]
	}
	dstInner := 1
	for d := c.Axis; d < len(dims); d++ {
		dstInner *= dims[d]
	}

	offset := 0
	for si, s := range in {
		srcDims := c.Srcs[si].Dims()
		inner := 1
		for d := c.Axis; d < len(srcDims); d++ {
			inner *= srcDims[d]
		}
		srcData := s.Float32s()
		parallel.For(outer, func(o int) {
			copy(dst[o*dstInner+offset:o*dstInner+offset+inner], srcData[o*inner:(o+1)*inner])
		}, e.cfg.Parallel)
		offset += inner
	}
}
