package ops

import (
	"fmt"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/tensor"
)

// spatialOut returns one output extent for a strided, padded, dilated
// window, or 0 when the attributes cannot produce one.
func spatialOut(in, k, stride, pad, dil int) int {
	if stride < 1 || dil < 1 {
		return 0
	}
	eff := (k-1)*dil + 1
	return (in+2*pad-eff)/stride + 1
}

// convOutDims derives the result dims of a convolution from its source,
// weights, and attributes.
func convOutDims(src, weights tensor.Descriptor, attr ConvAttr) (tensor.Dims, error) {
	if src.Rank() != 4 {
		return nil, fmt.Errorf("ops: conv src must be rank 4, got %s: %w", src, engine.ErrShapeMismatch)
	}
	var oTotal, kh, kw int
	switch {
	case attr.Groups == 1 && weights.Rank() == 4:
		oTotal, kh, kw = weights.Dim(0), weights.Dim(2), weights.Dim(3)
	case attr.Groups > 1 && weights.Rank() == 5:
		oTotal, kh, kw = attr.Groups*weights.Dim(1), weights.Dim(3), weights.Dim(4)
	default:
		return nil, fmt.Errorf("ops: conv weights rank %d does not fit %d groups: %w",
			weights.Rank(), attr.Groups, engine.ErrShapeMismatch)
	}
	h := spatialOut(src.Dim(2), kh, attr.Strides[0], attr.Padding[0], attr.Dilation[0])
	w := spatialOut(src.Dim(3), kw, attr.Strides[1], attr.Padding[1], attr.Dilation[1])
	if h < 1 || w < 1 {
		return nil, fmt.Errorf("ops: convolution window exceeds padded input: %w", engine.ErrShapeMismatch)
	}
	return tensor.Dims{src.Dim(0), oTotal, h, w}, nil
}

// poolOutDims derives the result dims of a pooling window sweep.
func poolOutDims(src tensor.Descriptor, attr PoolAttr) (tensor.Dims, error) {
	if src.Rank() != 4 {
		return nil, fmt.Errorf("ops: pool src must be rank 4, got %s: %w", src, engine.ErrShapeMismatch)
	}
	h := spatialOut(src.Dim(2), attr.Kernel[0], attr.Strides[0], attr.Padding[0], 1)
	w := spatialOut(src.Dim(3), attr.Kernel[1], attr.Strides[1], attr.Padding[1], 1)
	if h < 1 || w < 1 {
		return nil, fmt.Errorf("ops: pooling window exceeds padded input: %w", engine.ErrShapeMismatch)
	}
	return tensor.Dims{src.Dim(0), src.Dim(1), h, w}, nil
}

// canonicalPlain returns the plain layout the engine produces results in
// for a given rank.
func canonicalPlain(rank int) (tensor.Layout, error) {
	switch rank {
	case 1:
		return tensor.Vec, nil
	case 2:
		return tensor.NC, nil
	case 4:
		return tensor.NCHW, nil
	default:
		return 0, fmt.Errorf("ops: no canonical layout for rank %d: %w", rank, engine.ErrShapeMismatch)
	}
}
