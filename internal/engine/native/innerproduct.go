package native

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/parallel"
	"github.com/weft-ml/weft/internal/tensor"
)

func (e *Engine) buildInnerProduct(c engine.InnerProductConfig) (engine.Handle, error) {
	sum := fmt.Sprintf("src %s weights %s dst %s bias %t", c.Src, c.Weights, c.Dst, c.HasBias)

	if c.Src.Rank() != 2 || c.Weights.Rank() != 2 || c.Dst.Rank() != 2 {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("operands must be rank 2: %w", engine.ErrShapeMismatch))
	}
	if c.Weights.Dim(1) != c.Src.Dim(1) {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("weights expect %d input channels, src has %d: %w",
			c.Weights.Dim(1), c.Src.Dim(1), engine.ErrShapeMismatch))
	}
	if c.Dst.Dim(0) != c.Src.Dim(0) || c.Dst.Dim(1) != c.Weights.Dim(0) {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("dst must be [%d %d], got %v: %w",
			c.Src.Dim(0), c.Weights.Dim(0), c.Dst.Dims(), engine.ErrShapeMismatch))
	}
	if c.HasBias && (c.Bias.Rank() != 1 || c.Bias.Dim(0) != c.Weights.Dim(0)) {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("bias must be a vector of %d: %w",
			c.Weights.Dim(0), engine.ErrShapeMismatch))
	}

	in := []tensor.Descriptor{
		tensor.MustDescriptor(c.Src.Dims(), tensor.Float32, tensor.NC),
		tensor.MustDescriptor(c.Weights.Dims(), tensor.Float32, tensor.OI),
	}
	if c.HasBias {
		in = append(in, tensor.MustDescriptor(c.Bias.Dims(), tensor.Float32, tensor.Vec))
	}
	out := []tensor.Descriptor{tensor.MustDescriptor(c.Dst.Dims(), tensor.Float32, tensor.NC)}
	return &handle{cfg: c, in: in, out: out}, nil
}

func (e *Engine) execInnerProduct(c engine.InnerProductConfig, in, out []*tensor.Tensor) {
	src := in[0].Float32s()
	weights := in[1].Float32s()
	dst := out[0].Float32s()

	n := c.Src.Dim(0)
	ch := c.Src.Dim(1)
	o := c.Dst.Dim(1)

	a := blas32.General{Rows: n, Cols: ch, Stride: ch, Data: src}
	b := blas32.General{Rows: o, Cols: ch, Stride: ch, Data: weights}
	d := blas32.General{Rows: n, Cols: o, Stride: o, Data: dst}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1, a, b, 0, d)

	if c.HasBias {
		bias := in[2].Float32s()
		parallel.For(n, func(b int) {
			row := dst[b*o : (b+1)*o]
			for i := range row {
				row[i] += bias[i]
			}
		}, e.cfg.Parallel)
	}
}
