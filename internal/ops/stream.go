// Package ops is the operator-level API over the computation cache and the
// lazy fusion web. A Stream issues tensor operators; depending on its
// configuration each operator either executes immediately or joins the
// stream's web until something reads its result.
//
// A stream is single-threaded: its caches and web are not locked, so all
// calls on one stream must come from one goroutine at a time. Streams
// sharing an engine each carry their own caches and never contend.
package ops

import (
	"github.com/weft-ml/weft/internal/compcache"
	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/tensor"
	"github.com/weft-ml/weft/internal/web"
)

// Config controls a stream's execution strategy and cache sizing.
type Config struct {
	// Lazy defers execution until a result is read; an eager stream runs
	// every operator at call time.
	Lazy bool
	// Fusion folds compatible neighbors while nodes are pending. Only
	// meaningful on lazy streams.
	Fusion bool
	// CacheCapacity bounds each per-kind computation cache. Must be
	// positive.
	CacheCapacity int
	// FoldCapacity bounds the folded-parameter cache. Must be positive.
	FoldCapacity int
}

// DefaultConfig returns the default stream configuration: lazy execution
// with fusion on and default cache capacities.
func DefaultConfig() Config {
	return Config{
		Lazy:          true,
		Fusion:        true,
		CacheCapacity: compcache.DefaultCapacity,
		FoldCapacity:  compcache.DefaultFoldCapacity,
	}
}

// Stream issues operators against one engine.
type Stream struct {
	eng   engine.Engine
	comps *compcache.Set
	folds *compcache.FoldCache
	web   *web.Web
	lazy  bool
}

// NewStream creates a stream with the default configuration.
func NewStream(eng engine.Engine) *Stream {
	return NewStreamWithConfig(eng, DefaultConfig())
}

// NewStreamWithConfig creates a stream with explicit settings.
func NewStreamWithConfig(eng engine.Engine, cfg Config) *Stream {
	comps := compcache.NewSet(cfg.CacheCapacity)
	folds := compcache.NewFoldCache(cfg.FoldCapacity)
	return &Stream{
		eng:   eng,
		comps: comps,
		folds: folds,
		web:   web.New(eng, comps, folds, cfg.Lazy && cfg.Fusion),
		lazy:  cfg.Lazy,
	}
}

// Materialize forces one tensor to computed storage, firing its pending
// producer chain on a lazy stream. On an eager stream every returned tensor
// is already materialized and this is a no-op.
func (s *Stream) Materialize(t *tensor.Tensor) error {
	return s.web.Materialize(t)
}

// Flush fires every pending operator in enqueue order.
func (s *Stream) Flush() error {
	return s.web.Flush()
}

// Pending returns the number of operators waiting to fire.
func (s *Stream) Pending() int {
	return s.web.Pending()
}

// Close abandons pending operators and drops cached computations and folded
// parameters. The stream must not be used afterwards.
func (s *Stream) Close() {
	s.web.Close()
	s.comps.Purge()
	s.folds.Purge()
}

// Reorder converts src into the want form. Reorders are materialization
// boundaries: they run immediately, firing any pending producer of src
// first, even on a lazy stream. A src already in the want form comes back
// unchanged once materialized.
func (s *Stream) Reorder(src *tensor.Tensor, want tensor.Descriptor) (*tensor.Tensor, error) {
	if src.Desc().Equal(want) {
		if err := s.web.Materialize(src); err != nil {
			return nil, err
		}
		return src, nil
	}
	cfg := engine.ReorderConfig{Src: src.Desc(), Dst: want}
	out := tensor.Describe(want)
	s.web.Enqueue(cfg, []*tensor.Tensor{src}, []*tensor.Tensor{out})
	if err := s.web.Materialize(out); err != nil {
		return nil, err
	}
	return out, nil
}

// submit enqueues one operator and, on an eager stream, fires it before
// returning. The first output is the operator's primary result.
func (s *Stream) submit(cfg engine.Config, in, out []*tensor.Tensor) (*tensor.Tensor, error) {
	s.web.Enqueue(cfg, in, out)
	if s.lazy {
		return out[0], nil
	}
	if err := s.web.Materialize(out[0]); err != nil {
		return nil, err
	}
	return out[0], nil
}
