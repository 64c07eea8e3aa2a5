package web

import (
	"encoding/binary"
	"math"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/weft-ml/weft/internal/compcache"
	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/fingerprint"
	"github.com/weft-ml/weft/internal/tensor"
)

// foldNorm returns the convolution's weights and bias rewritten with the
// attached normalization statistics folded in:
//
//	factor[o] = scale[o] / sqrt(variance[o] + eps)
//	weights'[o,...] = weights[o,...] * factor[o]
//	bias'[o] = factor[o]*(bias[o] - mean[o]) + shift[o]
//
// Results live in the stream's fold cache, keyed by weight buffer identity
// plus statistic content: re-running a model reuses the folded tensors as
// long as the weights stay in the same buffer and the statistics keep the
// same values, even across re-uploaded statistic tensors.
func (w *Web) foldNorm(n *Node, conv engine.ConvConfig) (compcache.Folded, error) {
	key := compcache.FoldKey{
		Weights: n.in[1].BufferID(),
		Stats:   statsDigest(n.attr),
	}
	return w.folds.FetchOrCreate(key, func() (compcache.Folded, error) {
		return computeFold(n, conv)
	})
}

// statsDigest fingerprints the folded statistics by value, epsilon
// included, so statistic tensors with equal contents hit the same cache
// entry regardless of buffer identity.
func statsDigest(attr *FusionAttr) uint64 {
	var eps [4]byte
	binary.LittleEndian.PutUint32(eps[:], math.Float32bits(attr.Eps))
	return fingerprint.ContentDigest(
		attr.Scale.Bytes(),
		attr.Shift.Bytes(),
		attr.Mean.Bytes(),
		attr.Variance.Bytes(),
		eps[:],
	)
}

// computeFold performs the fold arithmetic on fresh tensors; the node's own
// weights and bias are never touched. Channel blocks are contiguous in both
// plain weight layouts: OIHW scales dims[0] blocks of I*KH*KW values, GOIHW
// scales dims[0]*dims[1] blocks of (I/g)*KH*KW values, and in both the
// block order is the output channel order.
func computeFold(n *Node, conv engine.ConvConfig) (compcache.Folded, error) {
	src := n.in[1]
	dims := src.Desc().Dims()
	channels := dims[0]
	if conv.Groups > 1 {
		channels = dims[0] * dims[1]
	}
	block := src.NumElements() / channels

	weights := tensor.New(src.Desc())
	copy(weights.Float32s(), src.Float32s())
	bias := tensor.New(tensor.MustDescriptor(tensor.Dims{channels}, tensor.Float32, tensor.Vec))

	attr := n.attr
	scale := attr.Scale.Float32s()
	shift := attr.Shift.Float32s()
	mean := attr.Mean.Float32s()
	variance := attr.Variance.Float32s()
	wd := weights.Float32s()
	bd := bias.Float32s()
	var prior []float32
	if conv.HasBias {
		prior = n.in[2].Float32s()
	}

	for o := 0; o < channels; o++ {
		factor := scale[o] / float32(math.Sqrt(float64(variance[o]+attr.Eps)))
		blas32.Scal(factor, blas32.Vector{N: block, Inc: 1, Data: wd[o*block : (o+1)*block]})
		b := float32(0)
		if prior != nil {
			b = prior[o]
		}
		bd[o] = factor*(b-mean[o]) + shift[o]
	}
	return compcache.Folded{Weights: weights, Bias: bias}, nil
}
