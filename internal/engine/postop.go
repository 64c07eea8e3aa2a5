package engine

import "github.com/weft-ml/weft/internal/fingerprint"

// EltwiseAlgo selects the elementwise function, both for the standalone
// eltwise operator and for activation post-ops.
type EltwiseAlgo int

// Elementwise algorithms.
const (
	ReLU EltwiseAlgo = iota // alpha = negative-side slope
	Tanh
	Sigmoid
	Linear // alpha*x + beta
)

// String returns the algorithm name.
func (a EltwiseAlgo) String() string {
	switch a {
	case ReLU:
		return "relu"
	case Tanh:
		return "tanh"
	case Sigmoid:
		return "sigmoid"
	case Linear:
		return "linear"
	default:
		return "unknown"
	}
}

// PostOpKind tags one entry of an operator's post-op chain.
type PostOpKind int

// Post-op kinds.
const (
	PostEltwise PostOpKind = iota // apply an elementwise function to the output
	PostSum                       // accumulate Scale * previous destination contents
)

// PostOp is one pass appended to an operator's output stage. Post-ops run
// in list order after bias: a PostSum reads the destination buffer's prior
// contents, so the caller must bind an already-written destination when one
// is present.
type PostOp struct {
	Kind  PostOpKind
	Algo  EltwiseAlgo // PostEltwise only
	Alpha float32     // PostEltwise only
	Beta  float32     // PostEltwise only
	Scale float32     // PostSum only
}

// appendPostOps serializes a post-op chain with an explicit count prefix;
// list order is the canonical order because it is the execution order.
func appendPostOps(b *fingerprint.Builder, ps []PostOp) {
	b.Int(len(ps))
	for _, p := range ps {
		b.Byte(byte(p.Kind)).
			Byte(byte(p.Algo)).
			Float32(p.Alpha).
			Float32(p.Beta).
			Float32(p.Scale)
	}
}
