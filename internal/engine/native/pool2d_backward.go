package native

import (
	"fmt"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/parallel"
	"github.com/weft-ml/weft/internal/tensor"
)

func (e *Engine) buildPoolBack(c engine.PoolBackConfig) (engine.Handle, error) {
	sum := fmt.Sprintf("diffDst %s diffSrc %s algo %s kernel %v strides %v padding %v",
		c.DiffDst, c.DiffSrc, c.Algo, c.Kernel, c.Strides, c.Padding)

	if err := poolGeom(c.Kind(), sum, c.DiffSrc, c.DiffDst, c.Kernel, c.Strides, c.Padding); err != nil {
		return nil, err
	}

	in := []tensor.Descriptor{tensor.MustDescriptor(c.DiffDst.Dims(), tensor.Float32, tensor.NCHW)}
	if c.Algo == engine.MaxPool {
		in = append(in, tensor.MustDescriptor(c.DiffDst.Dims(), tensor.Int32, tensor.NCHW))
	}
	out := []tensor.Descriptor{tensor.MustDescriptor(c.DiffSrc.Dims(), tensor.Float32, tensor.NCHW)}
	return &handle{cfg: c, in: in, out: out}, nil
}

// execPoolBack routes gradients back through the pooling window: max pooling
// sends each gradient to the position recorded in the forward workspace,
// average pooling spreads it evenly across the window's valid positions.
func (e *Engine) execPoolBack(c engine.PoolBackConfig, in, out []*tensor.Tensor) {
	diffDst := in[0].Float32s()
	diffSrc := out[0].Float32s()
	var ws []int32
	if c.Algo == engine.MaxPool {
		ws = in[1].Int32s()
	}

	n, ch := c.DiffSrc.Dim(0), c.DiffSrc.Dim(1)
	h, w := c.DiffSrc.Dim(2), c.DiffSrc.Dim(3)
	hOut, wOut := c.DiffDst.Dim(2), c.DiffDst.Dim(3)
	hw := h * w
	outHW := hOut * wOut

	for i := range diffSrc {
		diffSrc[i] = 0
	}

	parallel.ForBatch(n, ch, func(b, cc int) {
		gradPlane := diffDst[(b*ch+cc)*outHW : (b*ch+cc+1)*outHW]
		srcPlane := diffSrc[(b*ch+cc)*hw : (b*ch+cc+1)*hw]
		if c.Algo == engine.MaxPool {
			wsPlane := ws[(b*ch+cc)*outHW : (b*ch+cc+1)*outHW]
			for i, gv := range gradPlane {
				srcPlane[wsPlane[i]] += gv
			}
			return
		}
		for oh := 0; oh < hOut; oh++ {
			for ow := 0; ow < wOut; ow++ {
				hStart := oh*c.Strides[0] - c.Padding[0]
				wStart := ow*c.Strides[1] - c.Padding[1]
				count := 0
				for i := 0; i < c.Kernel[0]; i++ {
					if ih := hStart + i; ih < 0 || ih >= h {
						continue
					}
					for j := 0; j < c.Kernel[1]; j++ {
						if iw := wStart + j; iw >= 0 && iw < w {
							count++
						}
					}
				}
				share := gradPlane[oh*wOut+ow] / float32(count)
				for i := 0; i < c.Kernel[0]; i++ {
					ih := hStart + i
					if ih < 0 || ih >= h {
						continue
					}
					for j := 0; j < c.Kernel[1]; j++ {
						iw := wStart + j
						if iw < 0 || iw >= w {
							continue
						}
						srcPlane[ih*w+iw] += share
					}
				}
			}
		}
	}, e.cfg.Parallel)
}
