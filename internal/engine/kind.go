package engine

// Kind enumerates the closed set of operator kinds. The fusion web's firing
// switch and the cache set are both indexed by Kind; adding an operator
// means extending this enum and every switch over it.
type Kind int

// Operator kinds.
const (
	Conv2D Kind = iota
	Conv2DBackData
	Conv2DBackWeights
	Pool2D
	Pool2DBack
	BatchNorm
	Eltwise
	InnerProduct
	Sum
	Concat
	Softmax
	Reorder

	// KindCount sizes per-kind tables. Keep last.
	KindCount
)

// String returns the operator kind's name as used in error messages and keys.
func (k Kind) String() string {
	switch k {
	case Conv2D:
		return "conv2d"
	case Conv2DBackData:
		return "conv2d_bwd_data"
	case Conv2DBackWeights:
		return "conv2d_bwd_weights"
	case Pool2D:
		return "pool2d"
	case Pool2DBack:
		return "pool2d_bwd"
	case BatchNorm:
		return "batchnorm"
	case Eltwise:
		return "eltwise"
	case InnerProduct:
		return "inner_product"
	case Sum:
		return "sum"
	case Concat:
		return "concat"
	case Softmax:
		return "softmax"
	case Reorder:
		return "reorder"
	default:
		return "unknown"
	}
}

// PropKind tags a computation's propagation direction.
type PropKind int

// Propagation kinds.
const (
	Forward PropKind = iota
	Backward
	PropNA
)

// Prop returns the propagation direction implied by the operator kind.
func (k Kind) Prop() PropKind {
	switch k {
	case Conv2DBackData, Conv2DBackWeights, Pool2DBack:
		return Backward
	case Reorder, Sum, Concat:
		return PropNA
	default:
		return Forward
	}
}

// String returns the propagation kind's name.
func (p PropKind) String() string {
	switch p {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return "na"
	}
}
