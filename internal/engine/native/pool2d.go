package native

import (
	"fmt"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/parallel"
	"github.com/weft-ml/weft/internal/tensor"
)

// poolGeom validates pooling geometry shared by the forward and backward
// passes. Padding must stay below the kernel extent so every window covers at
// least one source element.
func poolGeom(op engine.Kind, sum string, src, dst tensor.Descriptor, kernel, strides, padding [2]int) error {
	if kernel[0] < 1 || kernel[1] < 1 || strides[0] < 1 || strides[1] < 1 {
		return cerr(op, sum, fmt.Errorf("kernel and strides must be at least 1"))
	}
	if padding[0] < 0 || padding[1] < 0 || padding[0] >= kernel[0] || padding[1] >= kernel[1] {
		return cerr(op, sum, fmt.Errorf("padding must be in [0, kernel)"))
	}
	if src.Rank() != 4 || dst.Rank() != 4 {
		return cerr(op, sum, fmt.Errorf("activations must be rank 4: %w", engine.ErrShapeMismatch))
	}
	hOut := outSpatial(src.Dim(2), kernel[0], strides[0], padding[0], 1)
	wOut := outSpatial(src.Dim(3), kernel[1], strides[1], padding[1], 1)
	if hOut < 1 || wOut < 1 {
		return cerr(op, sum, fmt.Errorf("window exceeds padded input: %w", engine.ErrShapeMismatch))
	}
	if dst.Dim(0) != src.Dim(0) || dst.Dim(1) != src.Dim(1) || dst.Dim(2) != hOut || dst.Dim(3) != wOut {
		return cerr(op, sum, fmt.Errorf("destination %v, computed [%d %d %d %d]: %w",
			dst.Dims(), src.Dim(0), src.Dim(1), hOut, wOut, engine.ErrShapeMismatch))
	}
	return nil
}

func (e *Engine) buildPool(c engine.PoolConfig) (engine.Handle, error) {
	sum := fmt.Sprintf("src %s dst %s algo %s kernel %v strides %v padding %v workspace %t",
		c.Src, c.Dst, c.Algo, c.Kernel, c.Strides, c.Padding, c.Workspace)

	if err := poolGeom(c.Kind(), sum, c.Src, c.Dst, c.Kernel, c.Strides, c.Padding); err != nil {
		return nil, err
	}
	if c.Workspace && c.Algo != engine.MaxPool {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("workspace is only produced by max pooling"))
	}

	in := []tensor.Descriptor{tensor.MustDescriptor(c.Src.Dims(), tensor.Float32, tensor.NCHW)}
	out := []tensor.Descriptor{tensor.MustDescriptor(c.Dst.Dims(), tensor.Float32, tensor.NCHW)}
	if c.Workspace {
		out = append(out, tensor.MustDescriptor(c.Dst.Dims(), tensor.Int32, tensor.NCHW))
	}
	return &handle{cfg: c, in: in, out: out}, nil
}

func (e *Engine) execPool(c engine.PoolConfig, in, out []*tensor.Tensor) {
	src := in[0].Float32s()
	dst := out[0].Float32s()
	var ws []int32
	if c.Workspace {
		ws = out[1].Int32s()
	}

	n, ch := c.Src.Dim(0), c.Src.Dim(1)
	h, w := c.Src.Dim(2), c.Src.Dim(3)
	hOut, wOut := c.Dst.Dim(2), c.Dst.Dim(3)
	hw := h * w
	outHW := hOut * wOut

	parallel.ForBatch(n, ch, func(b, cc int) {
		plane := src[(b*ch+cc)*hw : (b*ch+cc+1)*hw]
		outPlane := dst[(b*ch+cc)*outHW : (b*ch+cc+1)*outHW]
		var wsPlane []int32
		if ws != nil {
			wsPlane = ws[(b*ch+cc)*outHW : (b*ch+cc+1)*outHW]
		}
		for oh := 0; oh < hOut; oh++ {
			for ow := 0; ow < wOut; ow++ {
				hStart := oh*c.Strides[0] - c.Padding[0]
				wStart := ow*c.Strides[1] - c.Padding[1]
				if c.Algo == engine.MaxPool {
					maxVal := float32(-1e38)
					maxIdx := -1
					for i := 0; i < c.Kernel[0]; i++ {
						ih := hStart + i
						if ih < 0 || ih >= h {
							continue
						}
						row := plane[ih*w : (ih+1)*w]
						for j := 0; j < c.Kernel[1]; j++ {
							iw := wStart + j
							if iw < 0 || iw >= w {
								continue
							}
							if v := row[iw]; v > maxVal || maxIdx < 0 {
								maxVal = v
								maxIdx = ih*w + iw
							}
						}
					}
					outPlane[oh*wOut+ow] = maxVal
					if wsPlane != nil {
						wsPlane[oh*wOut+ow] = int32(maxIdx)
					}
				} else {
					var sum float32
					count := 0
					for i := 0; i < c.Kernel[0]; i++ {
						ih := hStart + i
						if ih < 0 || ih >= h {
							continue
						}
						row := plane[ih*w : (ih+1)*w]
						for j := 0; j < c.Kernel[1]; j++ {
							iw := wStart + j
							if iw < 0 || iw >= w {
								continue
							}
							sum += row[iw]
							count++
						}
					}
					outPlane[oh*wOut+ow] = sum / float32(count)
				}
			}
		}
	}, e.cfg.Parallel)
}
