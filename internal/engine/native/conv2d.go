package native

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/parallel"
	"github.com/weft-ml/weft/internal/tensor"
)

// outSpatial returns one output extent for a strided, padded, dilated window.
func outSpatial(in, k, stride, pad, dil int) int {
	eff := (k-1)*dil + 1
	return (in+2*pad-eff)/stride + 1
}

func (e *Engine) buildConv(c engine.ConvConfig) (engine.Handle, error) {
	sum := fmt.Sprintf("src %s weights %s dst %s strides %v padding %v dilation %v groups %d bias %t",
		c.Src, c.Weights, c.Dst, c.Strides, c.Padding, c.Dilation, c.Groups, c.HasBias)

	if c.Strides[0] < 1 || c.Strides[1] < 1 || c.Dilation[0] < 1 || c.Dilation[1] < 1 {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("strides and dilation must be at least 1"))
	}
	if c.Padding[0] < 0 || c.Padding[1] < 0 {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("padding must not be negative"))
	}
	if c.Groups < 1 {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("groups must be at least 1"))
	}
	if c.Src.Rank() != 4 || c.Dst.Rank() != 4 {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("activations must be rank 4: %w", engine.ErrShapeMismatch))
	}

	var oTotal, iGroup, kh, kw int
	if c.Groups == 1 {
		if c.Weights.Rank() != 4 {
			return nil, cerr(c.Kind(), sum, fmt.Errorf("weights must be rank 4: %w", engine.ErrShapeMismatch))
		}
		oTotal, iGroup, kh, kw = c.Weights.Dim(0), c.Weights.Dim(1), c.Weights.Dim(2), c.Weights.Dim(3)
	} else {
		if c.Weights.Rank() != 5 {
			return nil, cerr(c.Kind(), sum, fmt.Errorf("grouped weights must be rank 5: %w", engine.ErrShapeMismatch))
		}
		if c.Weights.Dim(0) != c.Groups {
			return nil, cerr(c.Kind(), sum, fmt.Errorf("weights carry %d groups, config says %d: %w",
				c.Weights.Dim(0), c.Groups, engine.ErrShapeMismatch))
		}
		oTotal, iGroup, kh, kw = c.Groups*c.Weights.Dim(1), c.Weights.Dim(2), c.Weights.Dim(3), c.Weights.Dim(4)
	}
	if c.Src.Dim(1) != c.Groups*iGroup {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("src channels %d, weights expect %d: %w",
			c.Src.Dim(1), c.Groups*iGroup, engine.ErrShapeMismatch))
	}
	if c.Dst.Dim(0) != c.Src.Dim(0) || c.Dst.Dim(1) != oTotal {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("dst batch/channels do not match: %w", engine.ErrShapeMismatch))
	}

	hOut := outSpatial(c.Src.Dim(2), kh, c.Strides[0], c.Padding[0], c.Dilation[0])
	wOut := outSpatial(c.Src.Dim(3), kw, c.Strides[1], c.Padding[1], c.Dilation[1])
	if hOut < 1 || wOut < 1 {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("window exceeds padded input: %w", engine.ErrShapeMismatch))
	}
	if c.Dst.Dim(2) != hOut || c.Dst.Dim(3) != wOut {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("dst spatial dims %dx%d, computed %dx%d: %w",
			c.Dst.Dim(2), c.Dst.Dim(3), hOut, wOut, engine.ErrShapeMismatch))
	}
	if c.HasBias && (c.Bias.Rank() != 1 || c.Bias.Dim(0) != oTotal) {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("bias must be a vector of %d: %w", oTotal, engine.ErrShapeMismatch))
	}
	for _, po := range c.PostOps {
		switch po.Kind {
		case engine.PostEltwise:
			if po.Algo > engine.Linear {
				return nil, &engine.UnsupportedConfigurationError{
					Op: c.Kind(), Detail: fmt.Sprintf("eltwise post-op algorithm %d", po.Algo),
				}
			}
		case engine.PostSum:
		default:
			return nil, &engine.UnsupportedConfigurationError{
				Op: c.Kind(), Detail: fmt.Sprintf("post-op kind %d", po.Kind),
			}
		}
	}

	wLayout := tensor.GOIHW
	if c.Groups == 1 {
		wLayout = tensor.OIHW
		if e.cfg.BlockedWeights && oTotal%tensor.BlockSize == 0 && iGroup%tensor.BlockSize == 0 {
			wLayout = tensor.OIhw8i8o
		}
	}

	in := []tensor.Descriptor{
		tensor.MustDescriptor(c.Src.Dims(), tensor.Float32, tensor.NCHW),
		tensor.MustDescriptor(c.Weights.Dims(), tensor.Float32, wLayout),
	}
	if c.HasBias {
		in = append(in, tensor.MustDescriptor(c.Bias.Dims(), tensor.Float32, tensor.Vec))
	}
	out := []tensor.Descriptor{tensor.MustDescriptor(c.Dst.Dims(), tensor.Float32, tensor.NCHW)}
	return &handle{cfg: c, in: in, out: out}, nil
}

func (e *Engine) execConv(c engine.ConvConfig, in, out []*tensor.Tensor) {
	src := in[0].Float32s()
	dst := out[0].Float32s()

	n := c.Src.Dim(0)
	h, w := c.Src.Dim(2), c.Src.Dim(3)
	groups := c.Groups
	cIn := c.Src.Dim(1)
	cOut := c.Dst.Dim(1)
	ig := cIn / groups
	og := cOut / groups

	var kh, kw int
	if groups == 1 {
		kh, kw = c.Weights.Dim(2), c.Weights.Dim(3)
	} else {
		kh, kw = c.Weights.Dim(3), c.Weights.Dim(4)
	}

	wData := in[1].Float32s()
	if in[1].Desc().Layout() == tensor.OIhw8i8o {
		plain := tensor.New(tensor.MustDescriptor(c.Weights.Dims(), tensor.Float32, tensor.OIHW))
		unpackOIhw8i8o(plain.Bytes(), in[1].Bytes(), cOut, cIn, kh, kw, tensor.Float32.Size())
		wData = plain.Float32s()
	}

	hOut, wOut := c.Dst.Dim(2), c.Dst.Dim(3)
	m := hOut * wOut
	k := ig * kh * kw

	var prev []float32
	for _, po := range c.PostOps {
		if po.Kind == engine.PostSum {
			prev = append([]float32(nil), dst...)
			break
		}
	}

	parallel.ForBatch(n, groups, func(b, g int) {
		col := make([]float32, k*m)
		im2col(col, src[(b*cIn+g*ig)*h*w:(b*cIn+(g+1)*ig)*h*w],
			h, w, kh, kw, hOut, wOut,
			c.Strides[0], c.Strides[1], c.Padding[0], c.Padding[1], c.Dilation[0], c.Dilation[1], ig)
		a := blas32.General{Rows: og, Cols: k, Stride: k, Data: wData[g*og*k : (g+1)*og*k]}
		bm := blas32.General{Rows: k, Cols: m, Stride: m, Data: col}
		cm := blas32.General{Rows: og, Cols: m, Stride: m, Data: dst[(b*cOut+g*og)*m : (b*cOut+(g+1)*og)*m]}
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, a, bm, 0, cm)
	}, e.cfg.Parallel)

	if c.HasBias {
		bias := in[2].Float32s()
		parallel.ForBatch(n, cOut, func(b, o int) {
			plane := dst[(b*cOut+o)*m : (b*cOut+o+1)*m]
			bv := bias[o]
			for i := range plane {
				plane[i] += bv
			}
		}, e.cfg.Parallel)
	}

	for _, po := range c.PostOps {
		switch po.Kind {
		case engine.PostSum:
			blas32.Axpy(po.Scale,
				blas32.Vector{N: len(prev), Inc: 1, Data: prev},
				blas32.Vector{N: len(dst), Inc: 1, Data: dst})
		case engine.PostEltwise:
			applyEltwiseF32(dst, dst, po.Algo, po.Alpha, po.Beta, e.cfg.Parallel)
		}
	}
}

// im2col writes the patch matrix for one image and one group. Rows index
// (channel, kh, kw), columns index output positions, so the result multiplies
// directly against row-major [outChannels, channels*kh*kw] weights.
func im2col(col, src []float32, h, w, kh, kw, hOut, wOut, strideH, strideW, padH, padW, dilH, dilW, channels int) {
	m := hOut * wOut
	for c := 0; c < channels; c++ {
		plane := src[c*h*w : (c+1)*h*w]
		for i := 0; i < kh; i++ {
			for j := 0; j < kw; j++ {
				row := col[((c*kh+i)*kw+j)*m : ((c*kh+i)*kw+j+1)*m]
				for oh := 0; oh < hOut; oh++ {
					ih := oh*strideH - padH + i*dilH
					dstRow := row[oh*wOut : (oh+1)*wOut]
					if ih < 0 || ih >= h {
						for ow := range dstRow {
							dstRow[ow] = 0
						}
						continue
					}
					srcRow := plane[ih*w : (ih+1)*w]
					for ow := 0; ow < wOut; ow++ {
						iw := ow*strideW - padW + j*dilW
						if iw < 0 || iw >= w {
							dstRow[ow] = 0
						} else {
							dstRow[ow] = srcRow[iw]
						}
					}
				}
			}
		}
	}
}
