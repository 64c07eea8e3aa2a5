package native

import (
	"fmt"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/parallel"
	"github.com/weft-ml/weft/internal/tensor"
)

// convGeom validates the geometry shared by the two convolution backward
// passes and returns the per-group channel counts and kernel extents.
func convGeom(op engine.Kind, sum string, src, weights, dst tensor.Descriptor,
	strides, padding, dilation [2]int, groups int) (iGroup, oGroup, kh, kw int, err error) {
	if strides[0] < 1 || strides[1] < 1 || dilation[0] < 1 || dilation[1] < 1 {
		return 0, 0, 0, 0, cerr(op, sum, fmt.Errorf("strides and dilation must be at least 1"))
	}
	if padding[0] < 0 || padding[1] < 0 {
		return 0, 0, 0, 0, cerr(op, sum, fmt.Errorf("padding must not be negative"))
	}
	if groups < 1 {
		return 0, 0, 0, 0, cerr(op, sum, fmt.Errorf("groups must be at least 1"))
	}
	if src.Rank() != 4 || dst.Rank() != 4 {
		return 0, 0, 0, 0, cerr(op, sum, fmt.Errorf("activations must be rank 4: %w", engine.ErrShapeMismatch))
	}
	var oTotal int
	if groups == 1 {
		if weights.Rank() != 4 {
			return 0, 0, 0, 0, cerr(op, sum, fmt.Errorf("weights must be rank 4: %w", engine.ErrShapeMismatch))
		}
		oTotal, iGroup, kh, kw = weights.Dim(0), weights.Dim(1), weights.Dim(2), weights.Dim(3)
	} else {
		if weights.Rank() != 5 || weights.Dim(0) != groups {
			return 0, 0, 0, 0, cerr(op, sum, fmt.Errorf("grouped weights must be rank 5 with %d groups: %w",
				groups, engine.ErrShapeMismatch))
		}
		oTotal, iGroup, kh, kw = groups*weights.Dim(1), weights.Dim(2), weights.Dim(3), weights.Dim(4)
	}
	oGroup = oTotal / groups
	if src.Dim(1) != groups*iGroup {
		return 0, 0, 0, 0, cerr(op, sum, fmt.Errorf("source channels %d, weights expect %d: %w",
			src.Dim(1), groups*iGroup, engine.ErrShapeMismatch))
	}
	hOut := outSpatial(src.Dim(2), kh, strides[0], padding[0], dilation[0])
	wOut := outSpatial(src.Dim(3), kw, strides[1], padding[1], dilation[1])
	if hOut < 1 || wOut < 1 {
		return 0, 0, 0, 0, cerr(op, sum, fmt.Errorf("window exceeds padded input: %w", engine.ErrShapeMismatch))
	}
	if dst.Dim(0) != src.Dim(0) || dst.Dim(1) != oTotal || dst.Dim(2) != hOut || dst.Dim(3) != wOut {
		return 0, 0, 0, 0, cerr(op, sum, fmt.Errorf("destination %v, computed [%d %d %d %d]: %w",
			dst.Dims(), src.Dim(0), oTotal, hOut, wOut, engine.ErrShapeMismatch))
	}
	return iGroup, oGroup, kh, kw, nil
}

func (e *Engine) buildConvBackData(c engine.ConvBackDataConfig) (engine.Handle, error) {
	sum := fmt.Sprintf("diffDst %s weights %s diffSrc %s strides %v padding %v dilation %v groups %d",
		c.DiffDst, c.Weights, c.DiffSrc, c.Strides, c.Padding, c.Dilation, c.Groups)

	_, _, _, _, err := convGeom(c.Kind(), sum, c.DiffSrc, c.Weights, c.DiffDst,
		c.Strides, c.Padding, c.Dilation, c.Groups)
	if err != nil {
		return nil, err
	}

	wLayout := tensor.OIHW
	if c.Groups > 1 {
		wLayout = tensor.GOIHW
	}
	in := []tensor.Descriptor{
		tensor.MustDescriptor(c.DiffDst.Dims(), tensor.Float32, tensor.NCHW),
		tensor.MustDescriptor(c.Weights.Dims(), tensor.Float32, wLayout),
	}
	out := []tensor.Descriptor{tensor.MustDescriptor(c.DiffSrc.Dims(), tensor.Float32, tensor.NCHW)}
	return &handle{cfg: c, in: in, out: out}, nil
}

// execConvBackData distributes every output-position gradient back across the
// input positions its window covered.
func (e *Engine) execConvBackData(c engine.ConvBackDataConfig, in, out []*tensor.Tensor) {
	diffDst := in[0].Float32s()
	wData := in[1].Float32s()
	diffSrc := out[0].Float32s()

	n := c.DiffSrc.Dim(0)
	cIn := c.DiffSrc.Dim(1)
	h, w := c.DiffSrc.Dim(2), c.DiffSrc.Dim(3)
	cOut := c.DiffDst.Dim(1)
	hOut, wOut := c.DiffDst.Dim(2), c.DiffDst.Dim(3)
	groups := c.Groups
	igCount := cIn / groups
	ogCount := cOut / groups

	var kh, kw int
	if groups == 1 {
		kh, kw = c.Weights.Dim(2), c.Weights.Dim(3)
	} else {
		kh, kw = c.Weights.Dim(3), c.Weights.Dim(4)
	}
	khkw := kh * kw
	hw := h * w
	outHW := hOut * wOut

	for i := range diffSrc {
		diffSrc[i] = 0
	}

	// Output channels within one image scatter into shared input planes, so
	// parallelism stays at the batch level.
	parallel.For(n, func(b int) {
		for g := 0; g < groups; g++ {
			srcGroup := diffSrc[(b*cIn+g*igCount)*hw : (b*cIn+(g+1)*igCount)*hw]
			for og := 0; og < ogCount; og++ {
				gradPlane := diffDst[(b*cOut+g*ogCount+og)*outHW : (b*cOut+g*ogCount+og+1)*outHW]
				wGroup := wData[(g*ogCount+og)*igCount*khkw : (g*ogCount+og+1)*igCount*khkw]
				for oh := 0; oh < hOut; oh++ {
					for ow := 0; ow < wOut; ow++ {
						gv := gradPlane[oh*wOut+ow]
						for ig := 0; ig < igCount; ig++ {
							srcPlane := srcGroup[ig*hw : (ig+1)*hw]
							wPlane := wGroup[ig*khkw : (ig+1)*khkw]
							for i := 0; i < kh; i++ {
								ih := oh*c.Strides[0] - c.Padding[0] + i*c.Dilation[0]
								if ih < 0 || ih >= h {
									continue
								}
								for j := 0; j < kw; j++ {
									iw := ow*c.Strides[1] - c.Padding[1] + j*c.Dilation[1]
									if iw < 0 || iw >= w {
										continue
									}
									srcPlane[ih*w+iw] += gv * wPlane[i*kw+j]
								}
							}
						}
					}
				}
			}
		}
	}, e.cfg.Parallel)
}

//nolint:dupl
func (e *Engine) buildConvBackWeights(c engine.ConvBackWeightsConfig) (engine.Handle, error) {
	sum := fmt.Sprintf("src %s diffDst %s diffWeights %s strides %v padding %v dilation %v groups %d bias %t",
		c.Src, c.DiffDst, c.DiffWeights, c.Strides, c.Padding, c.Dilation, c.Groups, c.HasBias)

	_, oGroup, _, _, err := convGeom(c.Kind(), sum, c.Src, c.DiffWeights, c.DiffDst,
		c.Strides, c.Padding, c.Dilation, c.Groups)
	if err != nil {
		return nil, err
	}
	oTotal := c.Groups * oGroup
	if c.HasBias && (c.DiffBias.Rank() != 1 || c.DiffBias.Dim(0) != oTotal) {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("bias gradient must be a vector of %d: %w",
			oTotal, engine.ErrShapeMismatch))
	}

	wLayout := tensor.OIHW
	if c.Groups > 1 {
		wLayout = tensor.GOIHW
	}
	in := []tensor.Descriptor{
		tensor.MustDescriptor(c.Src.Dims(), tensor.Float32, tensor.NCHW),
		tensor.MustDescriptor(c.DiffDst.Dims(), tensor.Float32, tensor.NCHW),
	}
	out := []tensor.Descriptor{tensor.MustDescriptor(c.DiffWeights.Dims(), tensor.Float32, wLayout)}
	if c.HasBias {
		out = append(out, tensor.MustDescriptor(c.DiffBias.Dims(), tensor.Float32, tensor.Vec))
	}
	return &handle{cfg: c, in: in, out: out}, nil
}

// execConvBackWeights accumulates, for every kernel weight, the product of
// each source value with the output gradient it contributed to. The bias
// gradient is the per-channel sum of the output gradient.
func (e *Engine) execConvBackWeights(c engine.ConvBackWeightsConfig, in, out []*tensor.Tensor) {
	src := in[0].Float32s()
	diffDst := in[1].Float32s()
	diffW := out[0].Float32s()

	n := c.Src.Dim(0)
	cIn := c.Src.Dim(1)
	h, w := c.Src.Dim(2), c.Src.Dim(3)
	cOut := c.DiffDst.Dim(1)
	hOut, wOut := c.DiffDst.Dim(2), c.DiffDst.Dim(3)
	groups := c.Groups
	igCount := cIn / groups
	ogCount := cOut / groups

	var kh, kw int
	if groups == 1 {
		kh, kw = c.DiffWeights.Dim(2), c.DiffWeights.Dim(3)
	} else {
		kh, kw = c.DiffWeights.Dim(3), c.DiffWeights.Dim(4)
	}
	khkw := kh * kw
	hw := h * w
	outHW := hOut * wOut

	var diffBias []float32
	if c.HasBias {
		diffBias = out[1].Float32s()
	}

	parallel.For(cOut, func(o int) {
		g := o / ogCount
		wBase := o * igCount * khkw
		var biasSum float32
		for b := 0; b < n; b++ {
			gradPlane := diffDst[(b*cOut+o)*outHW : (b*cOut+o+1)*outHW]
			if diffBias != nil {
				for _, gv := range gradPlane {
					biasSum += gv
				}
			}
			for ig := 0; ig < igCount; ig++ {
				srcPlane := src[(b*cIn+g*igCount+ig)*hw : (b*cIn+g*igCount+ig+1)*hw]
				for i := 0; i < kh; i++ {
					for j := 0; j < kw; j++ {
						var sum float32
						for oh := 0; oh < hOut; oh++ {
							ih := oh*c.Strides[0] - c.Padding[0] + i*c.Dilation[0]
							if ih < 0 || ih >= h {
								continue
							}
							for ow := 0; ow < wOut; ow++ {
								iw := ow*c.Strides[1] - c.Padding[1] + j*c.Dilation[1]
								if iw < 0 || iw >= w {
									continue
								}
								sum += srcPlane[ih*w+iw] * gradPlane[oh*wOut+ow]
							}
						}
						if b == 0 {
							diffW[wBase+ig*khkw+i*kw+j] = sum
						} else {
							diffW[wBase+ig*khkw+i*kw+j] += sum
						}
					}
				}
			}
		}
		if diffBias != nil {
			diffBias[o] = biasSum
		}
	}, e.cfg.Parallel)
}
