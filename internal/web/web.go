// Package web implements the lazy computation web: a dependency graph of
// pending operator nodes that defers engine execution until a result is
// actually needed, and folds compatible neighbors into single fused
// computations while it waits.
//
// A stream enqueues operators instead of running them. Each enqueued
// operator becomes a pending node producing one or more unmaterialized
// tensors; materializing any of those tensors fires the producing node,
// dependencies first. Between enqueue and fire, fusion rules may fold a
// later operator into the pending node it reads from, so the node fires
// once with a post-op chain or rewritten parameters instead of as separate
// engine invocations.
//
// A web serves one stream and is not safe for concurrent use; callers that
// share one across goroutines must serialize access externally, the same
// contract the computation cache carries.
package web

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/weft-ml/weft/internal/compcache"
	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/tensor"
)

// NodeState tracks a node through its lifecycle. Nodes move strictly
// forward: pending until fired or discarded, never back.
type NodeState int

// Node lifecycle states.
const (
	// Pending means the node's computation has not run yet.
	Pending NodeState = iota
	// Fired means the node executed and its outputs are written.
	Fired
	// Discarded means the node will never run: its web was closed or a
	// previous firing attempt failed.
	Discarded
)

// String returns the state name.
func (s NodeState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fired:
		return "fired"
	case Discarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Node is one deferred operator invocation: the configuration it was
// enqueued with, the tensors it reads and writes, and the pending producers
// it depends on. A node fires exactly once.
type Node struct {
	seq   uint64
	state NodeState
	cfg   engine.Config
	in    []*tensor.Tensor
	out   []*tensor.Tensor
	deps  []*Node
	attr  *FusionAttr
}

// State returns the node's lifecycle state.
func (n *Node) State() NodeState { return n.state }

// Kind returns the operator kind of the node's base configuration.
func (n *Node) Kind() engine.Kind { return n.cfg.Kind() }

// Fused reports whether a later operator folded into this node.
func (n *Node) Fused() bool { return n.attr != nil }

// Web is the lazy graph for one stream. It owns the FIFO pending list, the
// producer index mapping each not-yet-produced tensor to the node that will
// fill it, and the caches every firing path goes through.
type Web struct {
	eng    engine.Engine
	comps  *compcache.Set
	folds  *compcache.FoldCache
	fusion bool

	pending   []*Node
	producers map[*tensor.Tensor]*Node
	seq       uint64
}

// New creates an empty web bound to an engine and the stream's caches.
// fusion toggles the fold-at-enqueue rules; with it off every operator
// becomes its own node.
func New(eng engine.Engine, comps *compcache.Set, folds *compcache.FoldCache, fusion bool) *Web {
	return &Web{
		eng:       eng,
		comps:     comps,
		folds:     folds,
		fusion:    fusion,
		producers: make(map[*tensor.Tensor]*Node),
	}
}

// Pending returns the number of nodes waiting to fire.
func (w *Web) Pending() int {
	count := 0
	for _, n := range w.pending {
		if n.state == Pending {
			count++
		}
	}
	return count
}

// Enqueue records one operator invocation. When fusion is on and a rule
// matches, the operator folds into the pending producer of one of its
// inputs and that node is returned; otherwise a fresh pending node is
// created. Configuration problems surface when the node fires, not here.
func (w *Web) Enqueue(cfg engine.Config, in, out []*tensor.Tensor) *Node {
	if w.fusion {
		if n := w.tryFuse(cfg, in, out); n != nil {
			return n
		}
	}
	n := &Node{
		seq: w.seq,
		cfg: cfg,
		in:  in,
		out: out,
	}
	w.seq++
	for _, t := range in {
		if p, ok := w.producers[t]; ok && p.state == Pending {
			n.deps = append(n.deps, p)
		}
	}
	for _, t := range out {
		w.producers[t] = n
	}
	w.pending = append(w.pending, n)
	return n
}

// Materialize brings one tensor to a materialized state, firing its pending
// producer (and that node's dependencies) first when it has one. A tensor
// with neither storage nor producer cannot be materialized.
func (w *Web) Materialize(t *tensor.Tensor) error {
	if n, ok := w.producers[t]; ok {
		return w.fire(n)
	}
	if !t.Materialized() {
		return fmt.Errorf("web: tensor %s has no producer", t)
	}
	return nil
}

// Flush fires every pending node in enqueue order and empties the web.
func (w *Web) Flush() error {
	for len(w.pending) > 0 {
		n := w.pending[0]
		w.pending = w.pending[1:]
		if n.state != Pending {
			continue
		}
		if err := w.fire(n); err != nil {
			return err
		}
	}
	return nil
}

// Close discards all pending nodes without firing them and drops the
// producer index. Tensors those nodes would have produced stay
// unmaterialized.
func (w *Web) Close() {
	for _, n := range w.pending {
		if n.state == Pending {
			n.state = Discarded
		}
	}
	w.pending = nil
	w.producers = make(map[*tensor.Tensor]*Node)
}

// fire runs one node: dependencies first, then the node's computation with
// any folded attribute applied. Firing is synchronous; when fire returns
// nil every output tensor is materialized and fully written.
func (w *Web) fire(n *Node) error {
	switch n.state {
	case Fired:
		return nil
	case Discarded:
		return fmt.Errorf("web: %s node previously failed", n.cfg.Kind())
	}
	for _, d := range n.deps {
		if err := w.fire(d); err != nil {
			return err
		}
	}
	cfg, in, err := w.composeFused(n)
	if err != nil {
		n.state = Discarded
		return err
	}
	comp, err := w.comps.FetchOrBuild(w.eng, cfg)
	if err != nil {
		var unsupported *engine.UnsupportedConfigurationError
		if n.attr != nil && errors.As(err, &unsupported) {
			return w.fireUnfused(n)
		}
		n.state = Discarded
		return err
	}
	if n.attr != nil && n.attr.Kind == FuseSum &&
		!comp.ExpectedOutputs()[0].Equal(n.out[0].Desc()) {
		// the accumulating post-op reads the destination's prior contents,
		// so it cannot run through a scratch rebind
		return w.fireUnfused(n)
	}
	if err := w.run(comp, in, n.out); err != nil {
		n.state = Discarded
		return err
	}
	n.state = Fired
	w.retire(n)
	slog.Debug("node fired",
		"kind", n.cfg.Kind().String(),
		"seq", n.seq,
		"fused", n.attr != nil,
	)
	return nil
}

// fireUnfused runs a node whose fused form the engine rejected: the base
// operator fires into the bypassed intermediate, then the folded operator
// runs from its original bindings. Two invocations, same values.
func (w *Web) fireUnfused(n *Node) error {
	attr := n.attr
	base, err := w.comps.FetchOrBuild(w.eng, n.cfg)
	if err != nil {
		n.state = Discarded
		return err
	}
	if err := w.run(base, n.in, []*tensor.Tensor{attr.Via}); err != nil {
		n.state = Discarded
		return err
	}
	folded, err := w.comps.FetchOrBuild(w.eng, attr.Cfg)
	if err != nil {
		n.state = Discarded
		return err
	}
	if err := w.run(folded, attr.In, n.out); err != nil {
		n.state = Discarded
		return err
	}
	n.state = Fired
	w.retire(n)
	slog.Debug("fusion fell back to unfused execution",
		"kind", n.cfg.Kind().String(),
		"fold", attr.Kind.String(),
	)
	return nil
}

// retire removes a node's producer entries once it has fired. Its pending
// list slot stays until Flush pops it; the state check there skips it.
func (w *Web) retire(n *Node) {
	for _, t := range n.out {
		if w.producers[t] == n {
			delete(w.producers, t)
		}
	}
}
