package ops

import (
	"fmt"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/tensor"
)

// ConvAttr collects the scalar attributes of a 2D convolution. Zero values
// mean dense defaults: unit strides, no padding, unit dilation, one group.
type ConvAttr struct {
	Strides  [2]int
	Padding  [2]int
	Dilation [2]int
	Groups   int
}

func (a ConvAttr) withDefaults() ConvAttr {
	if a.Strides == ([2]int{}) {
		a.Strides = [2]int{1, 1}
	}
	if a.Dilation == ([2]int{}) {
		a.Dilation = [2]int{1, 1}
	}
	if a.Groups == 0 {
		a.Groups = 1
	}
	return a
}

// PoolAttr collects the window attributes of 2D pooling. Zero strides
// default to the kernel extents, giving non-overlapping windows.
type PoolAttr struct {
	Kernel  [2]int
	Strides [2]int
	Padding [2]int
}

func (a PoolAttr) withDefaults() PoolAttr {
	if a.Strides == ([2]int{}) {
		a.Strides = a.Kernel
	}
	return a
}

// Conv2D convolves src [N,C,H,W] with weights [O,C,KH,KW] ([G,O/G,C/G,KH,KW]
// when grouped), adding bias [O] when it is non-nil. The result shape
// derives from the attributes.
func (s *Stream) Conv2D(src, weights, bias *tensor.Tensor, attr ConvAttr) (*tensor.Tensor, error) {
	attr = attr.withDefaults()
	dims, err := convOutDims(src.Desc(), weights.Desc(), attr)
	if err != nil {
		return nil, err
	}
	cfg := engine.ConvConfig{
		Src:      src.Desc(),
		Weights:  weights.Desc(),
		Dst:      tensor.MustDescriptor(dims, tensor.Float32, tensor.NCHW),
		Strides:  attr.Strides,
		Padding:  attr.Padding,
		Dilation: attr.Dilation,
		Groups:   attr.Groups,
	}
	in := []*tensor.Tensor{src, weights}
	if bias != nil {
		cfg.HasBias = true
		cfg.Bias = bias.Desc()
		in = append(in, bias)
	}
	return s.submit(cfg, in, []*tensor.Tensor{tensor.Describe(cfg.Dst)})
}

// MaxPool2D reduces each window to its maximum. The result carries an
// argmax workspace as its extra tensor so a later backward pass can route
// gradients.
func (s *Stream) MaxPool2D(src *tensor.Tensor, attr PoolAttr) (*tensor.Tensor, error) {
	attr = attr.withDefaults()
	dims, err := poolOutDims(src.Desc(), attr)
	if err != nil {
		return nil, err
	}
	cfg := engine.PoolConfig{
		Src:       src.Desc(),
		Dst:       tensor.MustDescriptor(dims, tensor.Float32, tensor.NCHW),
		Algo:      engine.MaxPool,
		Kernel:    attr.Kernel,
		Strides:   attr.Strides,
		Padding:   attr.Padding,
		Workspace: true,
	}
	out := tensor.Describe(cfg.Dst)
	ws := tensor.Describe(tensor.MustDescriptor(dims, tensor.Int32, tensor.NCHW))
	out.SetExtra(ws)
	return s.submit(cfg, []*tensor.Tensor{src}, []*tensor.Tensor{out, ws})
}

// AvgPool2D reduces each window to the mean of its in-bounds cells.
func (s *Stream) AvgPool2D(src *tensor.Tensor, attr PoolAttr) (*tensor.Tensor, error) {
	attr = attr.withDefaults()
	dims, err := poolOutDims(src.Desc(), attr)
	if err != nil {
		return nil, err
	}
	cfg := engine.PoolConfig{
		Src:     src.Desc(),
		Dst:     tensor.MustDescriptor(dims, tensor.Float32, tensor.NCHW),
		Algo:    engine.AvgPool,
		Kernel:  attr.Kernel,
		Strides: attr.Strides,
		Padding: attr.Padding,
	}
	return s.submit(cfg, []*tensor.Tensor{src}, []*tensor.Tensor{tensor.Describe(cfg.Dst)})
}

// BatchNormInference normalizes src per channel with precomputed
// statistics: y = scale*(x-mean)/sqrt(variance+eps) + shift. On a lazy
// stream directly after a convolution, the statistics fold into the
// convolution's weights instead of running as their own operator.
func (s *Stream) BatchNormInference(src, scale, shift, mean, variance *tensor.Tensor, eps float32) (*tensor.Tensor, error) {
	if src.Desc().Rank() != 4 {
		return nil, fmt.Errorf("ops: batch norm src must be rank 4, got %s: %w",
			src.Desc(), engine.ErrShapeMismatch)
	}
	cfg := engine.BatchNormConfig{Src: src.Desc(), Stats: scale.Desc(), Eps: eps}
	out := tensor.Describe(tensor.MustDescriptor(src.Desc().Dims(), tensor.Float32, tensor.NCHW))
	return s.submit(cfg,
		[]*tensor.Tensor{src, scale, shift, mean, variance},
		[]*tensor.Tensor{out})
}

// Eltwise applies an elementwise function. Alpha is the ReLU negative
// slope or the Linear gain; Beta is the Linear offset.
func (s *Stream) Eltwise(src *tensor.Tensor, algo engine.EltwiseAlgo, alpha, beta float32) (*tensor.Tensor, error) {
	cfg := engine.EltwiseConfig{Src: src.Desc(), Algo: algo, Alpha: alpha, Beta: beta}
	out := tensor.Describe(src.Desc().WithDType(tensor.Float32))
	return s.submit(cfg, []*tensor.Tensor{src}, []*tensor.Tensor{out})
}

// ReLU rectifies src.
func (s *Stream) ReLU(src *tensor.Tensor) (*tensor.Tensor, error) {
	return s.Eltwise(src, engine.ReLU, 0, 0)
}

// InnerProduct computes dst[n,o] = src[n,c]*weights[o,c] + bias[o], with a
// nil bias meaning none.
func (s *Stream) InnerProduct(src, weights, bias *tensor.Tensor) (*tensor.Tensor, error) {
	if src.Desc().Rank() != 2 || weights.Desc().Rank() != 2 {
		return nil, fmt.Errorf("ops: inner product takes rank-2 src and weights: %w",
			engine.ErrShapeMismatch)
	}
	cfg := engine.InnerProductConfig{
		Src:     src.Desc(),
		Weights: weights.Desc(),
		Dst: tensor.MustDescriptor(tensor.Dims{src.Desc().Dim(0), weights.Desc().Dim(0)},
			tensor.Float32, tensor.NC),
	}
	in := []*tensor.Tensor{src, weights}
	if bias != nil {
		cfg.HasBias = true
		cfg.Bias = bias.Desc()
		in = append(in, bias)
	}
	return s.submit(cfg, in, []*tensor.Tensor{tensor.Describe(cfg.Dst)})
}

// Sum computes dst = sum coeffs[i]*srcs[i]. A nil dst allocates a fresh
// result; passing srcs[0] as dst accumulates in place, which is the form
// the residual fusion rule recognizes.
func (s *Stream) Sum(coeffs []float32, srcs []*tensor.Tensor, dst *tensor.Tensor) (*tensor.Tensor, error) {
	if len(srcs) == 0 || len(coeffs) != len(srcs) {
		return nil, fmt.Errorf("ops: sum takes one coefficient per source: %w",
			engine.ErrShapeMismatch)
	}
	descs := make([]tensor.Descriptor, len(srcs))
	for i, t := range srcs {
		descs[i] = t.Desc()
	}
	out := dst
	if out == nil {
		out = tensor.Describe(srcs[0].Desc().WithDType(tensor.Float32))
	}
	cfg := engine.SumConfig{Srcs: descs, Coeffs: coeffs, Dst: out.Desc()}
	return s.submit(cfg, srcs, []*tensor.Tensor{out})
}

// Concat concatenates the sources along axis.
func (s *Stream) Concat(srcs []*tensor.Tensor, axis int) (*tensor.Tensor, error) {
	if len(srcs) == 0 {
		return nil, fmt.Errorf("ops: concat needs at least one source: %w", engine.ErrShapeMismatch)
	}
	first := srcs[0].Desc()
	if axis < 0 || axis >= first.Rank() {
		return nil, fmt.Errorf("ops: concat axis %d on rank %d: %w",
			axis, first.Rank(), engine.ErrUnsupportedAxis)
	}
	layout, err := canonicalPlain(first.Rank())
	if err != nil {
		return nil, err
	}
	descs := make([]tensor.Descriptor, len(srcs))
	dims := make(tensor.Dims, first.Rank())
	copy(dims, first.Dims())
	dims[axis] = 0
	for i, t := range srcs {
		descs[i] = t.Desc()
		dims[axis] += t.Desc().Dim(axis)
	}
	cfg := engine.ConcatConfig{
		Srcs: descs,
		Axis: axis,
		Dst:  tensor.MustDescriptor(dims, tensor.Float32, layout),
	}
	return s.submit(cfg, srcs, []*tensor.Tensor{tensor.Describe(cfg.Dst)})
}

// Softmax normalizes src along axis; a negative axis counts from the end.
func (s *Stream) Softmax(src *tensor.Tensor, axis int) (*tensor.Tensor, error) {
	layout, err := canonicalPlain(src.Desc().Rank())
	if err != nil {
		return nil, err
	}
	cfg := engine.SoftmaxConfig{Src: src.Desc(), Axis: axis}
	out := tensor.Describe(tensor.MustDescriptor(src.Desc().Dims(), tensor.Float32, layout))
	return s.submit(cfg, []*tensor.Tensor{src}, []*tensor.Tensor{out})
}
