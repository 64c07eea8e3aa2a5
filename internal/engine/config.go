package engine

import (
	"github.com/weft-ml/weft/internal/fingerprint"
	"github.com/weft-ml/weft/internal/tensor"
)

// Config is a fully specified operator configuration: descriptors for every
// bound tensor plus the operator's scalar attributes. The set of
// implementations is closed (one per Kind); engines dispatch on the concrete
// type. Fingerprint returns the configuration's cache key and must cover
// every field that affects compilation.
type Config interface {
	Kind() Kind
	Fingerprint() fingerprint.Key
	sealed()
}

func kindKey(k Kind) *fingerprint.Builder {
	return fingerprint.NewBuilder().Byte(byte(k)).Byte(byte(k.Prop()))
}

// ConvConfig configures 2D convolution. Dims follow NCHW/OIHW logical order
// regardless of the provided layouts; Dst is derived by the caller from the
// spatial attributes. Groups > 1 requires GOIHW weights. Dilation {1, 1} is
// a dense kernel.
type ConvConfig struct {
	Src      tensor.Descriptor
	Weights  tensor.Descriptor
	Bias     tensor.Descriptor // valid only when HasBias
	Dst      tensor.Descriptor
	HasBias  bool
	Strides  [2]int
	Padding  [2]int // symmetric per spatial axis
	Dilation [2]int
	Groups   int
	PostOps  []PostOp
}

func (c ConvConfig) Kind() Kind { return Conv2D }
func (c ConvConfig) sealed()    {}

func (c ConvConfig) Fingerprint() fingerprint.Key {
	b := kindKey(Conv2D).
		Desc(c.Src).
		Desc(c.Weights)
	appendOptionalDesc(b, c.HasBias, c.Bias)
	b.Desc(c.Dst).
		Ints(c.Strides[:]).
		Ints(c.Padding[:]).
		Ints(c.Dilation[:]).
		Int(c.Groups)
	appendPostOps(b, c.PostOps)
	return b.Key()
}

// ConvBackDataConfig configures the data-gradient convolution: given the
// output gradient and the weights, produce the input gradient.
type ConvBackDataConfig struct {
	DiffDst  tensor.Descriptor
	Weights  tensor.Descriptor
	DiffSrc  tensor.Descriptor
	Strides  [2]int
	Padding  [2]int
	Dilation [2]int
	Groups   int
}

func (c ConvBackDataConfig) Kind() Kind { return Conv2DBackData }
func (c ConvBackDataConfig) sealed()    {}

func (c ConvBackDataConfig) Fingerprint() fingerprint.Key {
	return kindKey(Conv2DBackData).
		Desc(c.DiffDst).
		Desc(c.Weights).
		Desc(c.DiffSrc).
		Ints(c.Strides[:]).
		Ints(c.Padding[:]).
		Ints(c.Dilation[:]).
		Int(c.Groups).
		Key()
}

// ConvBackWeightsConfig configures the weight-gradient convolution: given
// the forward input and the output gradient, produce the weight gradient
// and, when HasBias, the bias gradient.
type ConvBackWeightsConfig struct {
	Src         tensor.Descriptor
	DiffDst     tensor.Descriptor
	DiffWeights tensor.Descriptor
	DiffBias    tensor.Descriptor // valid only when HasBias
	HasBias     bool
	Strides     [2]int
	Padding     [2]int
	Dilation    [2]int
	Groups      int
}

func (c ConvBackWeightsConfig) Kind() Kind { return Conv2DBackWeights }
func (c ConvBackWeightsConfig) sealed()    {}

func (c ConvBackWeightsConfig) Fingerprint() fingerprint.Key {
	b := kindKey(Conv2DBackWeights).
		Desc(c.Src).
		Desc(c.DiffDst).
		Desc(c.DiffWeights)
	appendOptionalDesc(b, c.HasBias, c.DiffBias)
	return b.Ints(c.Strides[:]).
		Ints(c.Padding[:]).
		Ints(c.Dilation[:]).
		Int(c.Groups).
		Key()
}

// PoolAlgo selects the pooling reduction.
type PoolAlgo int

// Pooling algorithms.
const (
	MaxPool PoolAlgo = iota
	AvgPool // padding-aware divisor
)

// String returns the algorithm name.
func (a PoolAlgo) String() string {
	if a == MaxPool {
		return "max"
	}
	return "avg"
}

// PoolConfig configures 2D pooling. Workspace asks max pooling to emit an
// argmax side-channel tensor alongside the output so a later backward pass
// can route gradients.
type PoolConfig struct {
	Src       tensor.Descriptor
	Dst       tensor.Descriptor
	Algo      PoolAlgo
	Kernel    [2]int
	Strides   [2]int
	Padding   [2]int
	Workspace bool
}

func (c PoolConfig) Kind() Kind { return Pool2D }
func (c PoolConfig) sealed()    {}

func (c PoolConfig) Fingerprint() fingerprint.Key {
	b := kindKey(Pool2D).
		Desc(c.Src).
		Desc(c.Dst).
		Byte(byte(c.Algo)).
		Ints(c.Kernel[:]).
		Ints(c.Strides[:]).
		Ints(c.Padding[:])
	if c.Workspace {
		b.Byte(1)
	} else {
		b.Byte(0)
	}
	return b.Key()
}

// PoolBackConfig configures the pooling gradient. Max pooling consumes the
// forward pass's workspace; average pooling needs none.
type PoolBackConfig struct {
	DiffDst tensor.Descriptor
	DiffSrc tensor.Descriptor
	Algo    PoolAlgo
	Kernel  [2]int
	Strides [2]int
	Padding [2]int
}

func (c PoolBackConfig) Kind() Kind { return Pool2DBack }
func (c PoolBackConfig) sealed()    {}

func (c PoolBackConfig) Fingerprint() fingerprint.Key {
	return kindKey(Pool2DBack).
		Desc(c.DiffDst).
		Desc(c.DiffSrc).
		Byte(byte(c.Algo)).
		Ints(c.Kernel[:]).
		Ints(c.Strides[:]).
		Ints(c.Padding[:]).
		Key()
}

// BatchNormConfig configures inference-mode batch normalization:
// y = scale*(x-mean)/sqrt(variance+eps) + shift, per channel. Stats is the
// shared descriptor of the four per-channel statistic vectors.
type BatchNormConfig struct {
	Src   tensor.Descriptor
	Stats tensor.Descriptor
	Eps   float32
}

func (c BatchNormConfig) Kind() Kind { return BatchNorm }
func (c BatchNormConfig) sealed()    {}

func (c BatchNormConfig) Fingerprint() fingerprint.Key {
	return kindKey(BatchNorm).
		Desc(c.Src).
		Desc(c.Stats).
		Float32(c.Eps).
		Key()
}

// EltwiseConfig configures a standalone elementwise operator.
type EltwiseConfig struct {
	Src   tensor.Descriptor
	Algo  EltwiseAlgo
	Alpha float32
	Beta  float32
}

func (c EltwiseConfig) Kind() Kind { return Eltwise }
func (c EltwiseConfig) sealed()    {}

func (c EltwiseConfig) Fingerprint() fingerprint.Key {
	return kindKey(Eltwise).
		Desc(c.Src).
		Byte(byte(c.Algo)).
		Float32(c.Alpha).
		Float32(c.Beta).
		Key()
}

// InnerProductConfig configures a fully connected operator:
// dst[n,o] = src[n,c] * weights[o,c] + bias[o].
type InnerProductConfig struct {
	Src     tensor.Descriptor
	Weights tensor.Descriptor
	Bias    tensor.Descriptor // valid only when HasBias
	Dst     tensor.Descriptor
	HasBias bool
}

func (c InnerProductConfig) Kind() Kind { return InnerProduct }
func (c InnerProductConfig) sealed()    {}

func (c InnerProductConfig) Fingerprint() fingerprint.Key {
	b := kindKey(InnerProduct).
		Desc(c.Src).
		Desc(c.Weights)
	appendOptionalDesc(b, c.HasBias, c.Bias)
	return b.Desc(c.Dst).Key()
}

// SumConfig configures an n-ary weighted elementwise sum:
// dst = sum_i Coeffs[i] * src_i. All descriptors must be equal.
type SumConfig struct {
	Srcs   []tensor.Descriptor
	Coeffs []float32
	Dst    tensor.Descriptor
}

func (c SumConfig) Kind() Kind { return Sum }
func (c SumConfig) sealed()    {}

func (c SumConfig) Fingerprint() fingerprint.Key {
	return kindKey(Sum).
		Descs(c.Srcs).
		Float32s(c.Coeffs).
		Desc(c.Dst).
		Key()
}

// ConcatConfig configures concatenation of the inputs along Axis.
type ConcatConfig struct {
	Srcs []tensor.Descriptor
	Axis int
	Dst  tensor.Descriptor
}

func (c ConcatConfig) Kind() Kind { return Concat }
func (c ConcatConfig) sealed()    {}

func (c ConcatConfig) Fingerprint() fingerprint.Key {
	return kindKey(Concat).
		Descs(c.Srcs).
		Int(c.Axis).
		Desc(c.Dst).
		Key()
}

// SoftmaxConfig configures softmax along Axis.
type SoftmaxConfig struct {
	Src  tensor.Descriptor
	Axis int
}

func (c SoftmaxConfig) Kind() Kind { return Softmax }
func (c SoftmaxConfig) sealed()    {}

func (c SoftmaxConfig) Fingerprint() fingerprint.Key {
	return kindKey(Softmax).
		Desc(c.Src).
		Int(c.Axis).
		Key()
}

// ReorderConfig configures a layout conversion between two descriptors of
// equal logical shape.
type ReorderConfig struct {
	Src tensor.Descriptor
	Dst tensor.Descriptor
}

func (c ReorderConfig) Kind() Kind { return Reorder }
func (c ReorderConfig) sealed()    {}

func (c ReorderConfig) Fingerprint() fingerprint.Key {
	return kindKey(Reorder).
		Desc(c.Src).
		Desc(c.Dst).
		Key()
}

func appendOptionalDesc(b *fingerprint.Builder, present bool, d tensor.Descriptor) {
	if present {
		b.Byte(1).Desc(d)
	} else {
		b.Byte(0)
	}
}
