package native

import (
	"fmt"
	"math"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/parallel"
	"github.com/weft-ml/weft/internal/tensor"
)

// Inference batch normalization binds inputs in the order
// src, scale, shift, mean, variance.
func (e *Engine) buildBatchNorm(c engine.BatchNormConfig) (engine.Handle, error) {
	sum := fmt.Sprintf("src %s stats %s eps %g", c.Src, c.Stats, c.Eps)

	if c.Src.Rank() != 4 {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("src must be rank 4: %w", engine.ErrShapeMismatch))
	}
	if c.Stats.Rank() != 1 || c.Stats.Dim(0) != c.Src.Dim(1) {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("statistics must be vectors of %d channels: %w",
			c.Src.Dim(1), engine.ErrShapeMismatch))
	}
	if c.Eps < 0 {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("epsilon must not be negative"))
	}

	stat := tensor.MustDescriptor(c.Stats.Dims(), tensor.Float32, tensor.Vec)
	in := []tensor.Descriptor{
		tensor.MustDescriptor(c.Src.Dims(), tensor.Float32, tensor.NCHW),
		stat, stat, stat, stat,
	}
	out := []tensor.Descriptor{tensor.MustDescriptor(c.Src.Dims(), tensor.Float32, tensor.NCHW)}
	return &handle{cfg: c, in: in, out: out}, nil
}

func (e *Engine) execBatchNorm(c engine.BatchNormConfig, in, out []*tensor.Tensor) {
	src := in[0].Float32s()
	scale := in[1].Float32s()
	shift := in[2].Float32s()
	mean := in[3].Float32s()
	variance := in[4].Float32s()
	dst := out[0].Float32s()

	n, ch := c.Src.Dim(0), c.Src.Dim(1)
	hw := c.Src.Dim(2) * c.Src.Dim(3)

	// y = a*x + b with a = scale/sqrt(variance+eps), b = shift - a*mean.
	a := make([]float32, ch)
	bias := make([]float32, ch)
	for i := range a {
		a[i] = scale[i] / float32(math.Sqrt(float64(variance[i]+c.Eps)))
		bias[i] = shift[i] - a[i]*mean[i]
	}

	parallel.ForBatch(n, ch, func(b, cc int) {
		srcPlane := src[(b*ch+cc)*hw : (b*ch+cc+1)*hw]
		dstPlane := dst[(b*ch+cc)*hw : (b*ch+cc+1)*hw]
		av, bv := a[cc], bias[cc]
		for i, v := range srcPlane {
			dstPlane[i] = av*v + bv
		}
	}, e.cfg.Parallel)
}
