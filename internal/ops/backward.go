package ops

import (
	"errors"
	"fmt"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/tensor"
)

// Conv2DBackwardData computes the gradient with respect to the convolution
// source. srcDims names the forward source shape, which the gradient
// inherits.
func (s *Stream) Conv2DBackwardData(diffDst, weights *tensor.Tensor, srcDims tensor.Dims, attr ConvAttr) (*tensor.Tensor, error) {
	attr = attr.withDefaults()
	if len(srcDims) != 4 {
		return nil, fmt.Errorf("ops: source dims must be rank 4, got %v: %w",
			srcDims, engine.ErrShapeMismatch)
	}
	cfg := engine.ConvBackDataConfig{
		DiffDst:  diffDst.Desc(),
		Weights:  weights.Desc(),
		DiffSrc:  tensor.MustDescriptor(srcDims, tensor.Float32, tensor.NCHW),
		Strides:  attr.Strides,
		Padding:  attr.Padding,
		Dilation: attr.Dilation,
		Groups:   attr.Groups,
	}
	return s.submit(cfg,
		[]*tensor.Tensor{diffDst, weights},
		[]*tensor.Tensor{tensor.Describe(cfg.DiffSrc)})
}

// Conv2DBackwardWeights computes the gradient with respect to the
// convolution weights, and the bias gradient when withBias is set.
// weightDims names the forward weights shape: [O,C,KH,KW], or
// [G,O/G,C/G,KH,KW] when attr.Groups is above one.
func (s *Stream) Conv2DBackwardWeights(src, diffDst *tensor.Tensor, weightDims tensor.Dims, withBias bool, attr ConvAttr) (*tensor.Tensor, *tensor.Tensor, error) {
	attr = attr.withDefaults()
	wLayout := tensor.OIHW
	oTotal := 0
	switch {
	case attr.Groups == 1 && len(weightDims) == 4:
		oTotal = weightDims[0]
	case attr.Groups > 1 && len(weightDims) == 5:
		wLayout = tensor.GOIHW
		oTotal = attr.Groups * weightDims[1]
	default:
		return nil, nil, fmt.Errorf("ops: weight dims %v do not fit %d groups: %w",
			weightDims, attr.Groups, engine.ErrShapeMismatch)
	}
	cfg := engine.ConvBackWeightsConfig{
		Src:         src.Desc(),
		DiffDst:     diffDst.Desc(),
		DiffWeights: tensor.MustDescriptor(weightDims, tensor.Float32, wLayout),
		Strides:     attr.Strides,
		Padding:     attr.Padding,
		Dilation:    attr.Dilation,
		Groups:      attr.Groups,
	}
	diffW := tensor.Describe(cfg.DiffWeights)
	out := []*tensor.Tensor{diffW}
	var diffB *tensor.Tensor
	if withBias {
		cfg.HasBias = true
		cfg.DiffBias = tensor.MustDescriptor(tensor.Dims{oTotal}, tensor.Float32, tensor.Vec)
		diffB = tensor.Describe(cfg.DiffBias)
		out = append(out, diffB)
	}
	if _, err := s.submit(cfg, []*tensor.Tensor{src, diffDst}, out); err != nil {
		return nil, nil, err
	}
	return diffW, diffB, nil
}

// MaxPool2DBackward routes the pooled gradient back to the positions the
// forward pass selected. pooled must be the forward result, which carries
// the argmax workspace as its extra tensor.
func (s *Stream) MaxPool2DBackward(pooled, diffDst *tensor.Tensor, srcDims tensor.Dims, attr PoolAttr) (*tensor.Tensor, error) {
	attr = attr.withDefaults()
	ws := pooled.Extra()
	if ws == nil {
		return nil, errors.New("ops: pooled tensor carries no workspace")
	}
	if len(srcDims) != 4 {
		return nil, fmt.Errorf("ops: source dims must be rank 4, got %v: %w",
			srcDims, engine.ErrShapeMismatch)
	}
	cfg := engine.PoolBackConfig{
		DiffDst: diffDst.Desc(),
		DiffSrc: tensor.MustDescriptor(srcDims, tensor.Float32, tensor.NCHW),
		Algo:    engine.MaxPool,
		Kernel:  attr.Kernel,
		Strides: attr.Strides,
		Padding: attr.Padding,
	}
	return s.submit(cfg,
		[]*tensor.Tensor{diffDst, ws},
		[]*tensor.Tensor{tensor.Describe(cfg.DiffSrc)})
}

// AvgPool2DBackward spreads each pooled gradient evenly across the window
// positions that contributed to it.
func (s *Stream) AvgPool2DBackward(diffDst *tensor.Tensor, srcDims tensor.Dims, attr PoolAttr) (*tensor.Tensor, error) {
	attr = attr.withDefaults()
	if len(srcDims) != 4 {
		return nil, fmt.Errorf("ops: source dims must be rank 4, got %v: %w",
			srcDims, engine.ErrShapeMismatch)
	}
	cfg := engine.PoolBackConfig{
		DiffDst: diffDst.Desc(),
		DiffSrc: tensor.MustDescriptor(srcDims, tensor.Float32, tensor.NCHW),
		Algo:    engine.AvgPool,
		Kernel:  attr.Kernel,
		Strides: attr.Strides,
		Padding: attr.Padding,
	}
	return s.submit(cfg,
		[]*tensor.Tensor{diffDst},
		[]*tensor.Tensor{tensor.Describe(cfg.DiffSrc)})
}
