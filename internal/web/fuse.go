package web

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/tensor"
)

// FusionKind tags which rule folded an operator into a node.
type FusionKind int

// Fusion kinds.
const (
	// FuseActivation applies an elementwise function to the node's output.
	FuseActivation FusionKind = iota
	// FuseSum accumulates the node's output into a materialized destination.
	FuseSum
	// FuseNormFold rewrites convolution weights and bias with folded
	// normalization statistics.
	FuseNormFold
)

// String returns the fusion kind's name.
func (k FusionKind) String() string {
	switch k {
	case FuseActivation:
		return "activation"
	case FuseSum:
		return "sum"
	case FuseNormFold:
		return "norm_fold"
	default:
		return "unknown"
	}
}

// FusionAttr carries the parameters of one folded operator as plain data.
// At most one attribute attaches to a node; a second fold attempt against
// the same node runs as its own node instead. The attribute keeps the
// folded operator's original configuration and bindings so an engine that
// rejects the fused form can fall back to two plain invocations.
type FusionAttr struct {
	Kind FusionKind

	// FuseActivation.
	Algo  engine.EltwiseAlgo
	Alpha float32
	Beta  float32

	// FuseSum: the coefficient applied to the destination's prior contents.
	SumScale float32

	// FuseNormFold.
	Scale    *tensor.Tensor
	Shift    *tensor.Tensor
	Mean     *tensor.Tensor
	Variance *tensor.Tensor
	Eps      float32

	// Fallback bindings: the folded operator as it was enqueued, and the
	// intermediate tensor the fusion bypassed.
	Cfg engine.Config
	In  []*tensor.Tensor
	Via *tensor.Tensor
}

// tryFuse attempts to fold the operator into the pending producer of one of
// its inputs. It returns the producer node on success and nil when no rule
// matched; on nil the caller enqueues the operator as its own node.
func (w *Web) tryFuse(cfg engine.Config, in, out []*tensor.Tensor) *Node {
	switch c := cfg.(type) {
	case engine.EltwiseConfig:
		return w.fuseActivation(c, in, out)
	case engine.SumConfig:
		return w.fuseResidual(c, in, out)
	case engine.BatchNormConfig:
		return w.fuseNormFold(c, in, out)
	default:
		return nil
	}
}

// fusable returns t's producer when it is a pending convolution with no
// attribute yet whose sole output is t itself. Every rule folds into
// convolutions, and each node takes one fold at most.
func (w *Web) fusable(t *tensor.Tensor) *Node {
	if t.Materialized() {
		return nil
	}
	n := w.producers[t]
	if n == nil || n.state != Pending || n.attr != nil {
		return nil
	}
	if n.cfg.Kind() != engine.Conv2D {
		return nil
	}
	if len(n.out) != 1 || n.out[0] != t {
		return nil
	}
	return n
}

// fuseActivation folds an elementwise operator into the pending convolution
// that produces its input. Allowed only while that intermediate is
// unmaterialized: the fused node computes the activated values directly and
// the intermediate never materializes.
func (w *Web) fuseActivation(cfg engine.EltwiseConfig, in, out []*tensor.Tensor) *Node {
	if len(in) != 1 || len(out) != 1 {
		return nil
	}
	n := w.fusable(in[0])
	if n == nil {
		return nil
	}
	w.attach(n, &FusionAttr{
		Kind:  FuseActivation,
		Algo:  cfg.Algo,
		Alpha: cfg.Alpha,
		Beta:  cfg.Beta,
		Cfg:   cfg,
		In:    in,
		Via:   in[0],
	}, out[0])
	return n
}

// fuseResidual folds a two-source weighted sum into the pending convolution
// producing its second source, turning the sum into an accumulating
// post-op. The destination must be the first source itself, already
// materialized in the convolution's output form: the post-op scales the
// destination's prior contents, so those contents have to exist, in place,
// before the node fires. Anything else runs as a plain sum node.
func (w *Web) fuseResidual(cfg engine.SumConfig, in, out []*tensor.Tensor) *Node {
	if len(in) != 2 || len(out) != 1 || len(cfg.Coeffs) != 2 {
		return nil
	}
	n := w.fusable(in[1])
	if n == nil || cfg.Coeffs[1] != 1 {
		return nil
	}
	dst := out[0]
	if dst != in[0] || !dst.Materialized() {
		return nil
	}
	if _, pending := w.producers[dst]; pending {
		return nil
	}
	conv, ok := n.cfg.(engine.ConvConfig)
	if !ok || !dst.Desc().Equal(conv.Dst) {
		return nil
	}
	w.attach(n, &FusionAttr{
		Kind:     FuseSum,
		SumScale: cfg.Coeffs[0],
		Cfg:      cfg,
		In:       in,
		Via:      in[1],
	}, dst)
	return n
}

// fuseNormFold folds inference batch normalization into the pending
// convolution producing its input by rewriting the weights and bias. The
// statistics and the weights must already be materialized (their values go
// into the fold arithmetic) and the weights must use a plain
// output-channel-major layout so channel blocks are contiguous.
func (w *Web) fuseNormFold(cfg engine.BatchNormConfig, in, out []*tensor.Tensor) *Node {
	if len(in) != 5 || len(out) != 1 {
		return nil
	}
	n := w.fusable(in[0])
	if n == nil {
		return nil
	}
	conv, ok := n.cfg.(engine.ConvConfig)
	if !ok || conv.Weights.DType() != tensor.Float32 {
		return nil
	}
	switch conv.Weights.Layout() {
	case tensor.OIHW, tensor.GOIHW:
	default:
		return nil
	}
	if !n.in[1].Materialized() {
		return nil
	}
	if conv.HasBias && !n.in[2].Materialized() {
		return nil
	}
	channels := conv.Dst.Dims()[1]
	for _, s := range in[1:] {
		if !s.Materialized() || s.Desc().DType() != tensor.Float32 ||
			s.NumElements() != channels {
			return nil
		}
	}
	w.attach(n, &FusionAttr{
		Kind:     FuseNormFold,
		Scale:    in[1],
		Shift:    in[2],
		Mean:     in[3],
		Variance: in[4],
		Eps:      cfg.Eps,
		Cfg:      cfg,
		In:       in,
		Via:      in[0],
	}, out[0])
	return n
}

// attach folds an operator into node n: the attribute records the fold,
// the node's output retargets to the folded operator's output, and the
// bypassed intermediate loses its producer entry. The intermediate will
// never materialize; the rules' unmaterialized guard is what makes that
// safe.
func (w *Web) attach(n *Node, attr *FusionAttr, out *tensor.Tensor) {
	delete(w.producers, n.out[0])
	n.attr = attr
	n.out[0] = out
	w.producers[out] = n
	slog.Debug("operator fused",
		"kind", n.cfg.Kind().String(),
		"fold", attr.Kind.String(),
	)
}

// composeFused returns the configuration and input bindings the node
// actually fires with: the base pair when nothing folded in, or the base
// rewritten by the attached fold.
func (w *Web) composeFused(n *Node) (engine.Config, []*tensor.Tensor, error) {
	if n.attr == nil {
		return n.cfg, n.in, nil
	}
	conv := n.cfg.(engine.ConvConfig)
	switch n.attr.Kind {
	case FuseActivation:
		conv.PostOps = append(slices.Clip(conv.PostOps), engine.PostOp{
			Kind:  engine.PostEltwise,
			Algo:  n.attr.Algo,
			Alpha: n.attr.Alpha,
			Beta:  n.attr.Beta,
		})
		return conv, n.in, nil
	case FuseSum:
		conv.PostOps = append(slices.Clip(conv.PostOps), engine.PostOp{
			Kind:  engine.PostSum,
			Scale: n.attr.SumScale,
		})
		return conv, n.in, nil
	case FuseNormFold:
		folded, err := w.foldNorm(n, conv)
		if err != nil {
			return nil, nil, err
		}
		conv.HasBias = true
		conv.Bias = folded.Bias.Desc()
		in := []*tensor.Tensor{n.in[0], folded.Weights, folded.Bias}
		return conv, in, nil
	default:
		panic(fmt.Sprintf("web: unknown fusion kind %d", n.attr.Kind))
	}
}
