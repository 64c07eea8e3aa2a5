package web

import (
	"github.com/weft-ml/weft/internal/compcache"
	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/tensor"
)

// run binds tensors to a computation and executes it. Inputs whose
// descriptors differ from the expected ones are converted first; outputs
// whose descriptors differ execute into scratch tensors that are converted
// back afterwards. Descriptor equality is exact, so a bind either goes
// straight through or goes through a cached reorder, nothing in between.
func (w *Web) run(comp *compcache.Computation, in, out []*tensor.Tensor) error {
	bound, err := w.negotiateInputs(comp, in)
	if err != nil {
		return err
	}
	expected := comp.ExpectedOutputs()
	targets := make([]*tensor.Tensor, len(out))
	for i, t := range out {
		if t.Desc().Equal(expected[i]) {
			t.Materialize()
			targets[i] = t
			continue
		}
		targets[i] = tensor.New(expected[i])
	}
	if err := comp.Execute(w.eng, bound, targets); err != nil {
		return err
	}
	for i, t := range out {
		if targets[i] == t {
			continue
		}
		if err := w.convertInto(targets[i], t); err != nil {
			return err
		}
	}
	return nil
}

// negotiateInputs returns the tensors to bind, position by position. A
// tensor already in the expected form binds as-is. Parameter positions
// canonicalize proactively: the converted copy attaches to the source
// tensor and every later bind reuses it. Activation positions convert into
// throwaway tensors.
func (w *Web) negotiateInputs(comp *compcache.Computation, in []*tensor.Tensor) ([]*tensor.Tensor, error) {
	want := comp.ExpectedInputs()
	bound := make([]*tensor.Tensor, len(in))
	for i, t := range in {
		if !comp.NeedsConversion(i, t.Desc()) {
			bound[i] = t
			continue
		}
		var (
			converted *tensor.Tensor
			err       error
		)
		if asWeights(comp.Kind(), i) {
			converted, err = w.canonicalized(t, want[i])
		} else {
			converted, err = w.convert(t, want[i])
		}
		if err != nil {
			return nil, err
		}
		bound[i] = converted
	}
	return bound, nil
}

// canonicalized returns the cached canonical copy of t matching want,
// converting and attaching one when absent or built for a different form.
func (w *Web) canonicalized(t *tensor.Tensor, want tensor.Descriptor) (*tensor.Tensor, error) {
	if c := t.Canonical(); c != nil && c.Desc().Equal(want) {
		return c, nil
	}
	c, err := w.convert(t, want)
	if err != nil {
		return nil, err
	}
	t.SetCanonical(c)
	return c, nil
}

// convert produces a fresh tensor holding src's values in the want form.
func (w *Web) convert(src *tensor.Tensor, want tensor.Descriptor) (*tensor.Tensor, error) {
	dst := tensor.New(want)
	if err := w.convertInto(src, dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// convertInto reorders src's values into dst through a cached reorder
// computation, materializing dst first when needed.
func (w *Web) convertInto(src, dst *tensor.Tensor) error {
	cfg := engine.ReorderConfig{Src: src.Desc(), Dst: dst.Desc()}
	comp, err := w.comps.FetchOrBuild(w.eng, cfg)
	if err != nil {
		return err
	}
	dst.Materialize()
	return comp.Execute(w.eng, []*tensor.Tensor{src}, []*tensor.Tensor{dst})
}

// asWeights reports whether position pos of an operator binds long-lived
// parameters. Parameter tensors convert once and keep the canonical copy;
// activations flow through fresh on every bind.
func asWeights(kind engine.Kind, pos int) bool {
	switch kind {
	case engine.Conv2D, engine.Conv2DBackData, engine.InnerProduct:
		return pos == 1
	default:
		return false
	}
}
