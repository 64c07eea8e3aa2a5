// Package compcache caches compiled computations by configuration
// fingerprint, one LRU per operator kind. Caches are not internally
// synchronized: a stream owns its cache set, and cross-stream sharing must
// wrap access in the caller's lock. Failed constructions are never cached;
// eviction only drops the cache's reference and never invalidates a
// computation a caller still holds.
package compcache

import (
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/fingerprint"
	"github.com/weft-ml/weft/internal/tensor"
)

// DefaultCapacity is the per-kind entry limit used when no explicit capacity
// is configured.
const DefaultCapacity = 1024

// Computation pairs a compiled engine handle with the fingerprint it was
// built from. Computations are immutable once constructed and remain valid
// after cache eviction.
type Computation struct {
	key    fingerprint.Key
	handle engine.Handle
}

// NewComputation wraps a built handle with its cache key.
func NewComputation(key fingerprint.Key, handle engine.Handle) *Computation {
	return &Computation{key: key, handle: handle}
}

// Key returns the fingerprint the computation is cached under.
func (c *Computation) Key() fingerprint.Key { return c.key }

// Kind returns the operator kind.
func (c *Computation) Kind() engine.Kind { return c.handle.Kind() }

// ExpectedInputs returns the descriptors execution requires, in binding
// order.
func (c *Computation) ExpectedInputs() []tensor.Descriptor { return c.handle.ExpectedInputs() }

// ExpectedOutputs returns the descriptors execution produces, in binding
// order.
func (c *Computation) ExpectedOutputs() []tensor.Descriptor { return c.handle.ExpectedOutputs() }

// NeedsConversion reports whether a tensor described by d must be reordered
// before binding as input pos. Any descriptor inequality requires
// conversion.
func (c *Computation) NeedsConversion(pos int, d tensor.Descriptor) bool {
	return !c.handle.ExpectedInputs()[pos].Equal(d)
}

// Execute runs the computation on the engine that built it.
func (c *Computation) Execute(e engine.Engine, in, out []*tensor.Tensor) error {
	return e.Execute(c.handle, in, out)
}

// Cache is a fixed-capacity LRU of computations of one kind.
type Cache struct {
	kind engine.Kind
	lru  *lru.LRU[fingerprint.Key, *Computation]
}

// NewCache creates a cache for one operator kind. Capacity must be at least
// one.
func NewCache(kind engine.Kind, capacity int) *Cache {
	c := &Cache{kind: kind}
	inner, err := lru.NewLRU(capacity, func(key fingerprint.Key, _ *Computation) {
		slog.Debug("computation evicted", "kind", kind, "keyBytes", len(key))
	})
	if err != nil {
		panic("compcache: capacity must be positive")
	}
	c.lru = inner
	return c
}

// Fetch returns the cached computation for key, if any, refreshing its
// recency.
func (c *Cache) Fetch(key fingerprint.Key) (*Computation, bool) {
	return c.lru.Get(key)
}

// FetchOrCreate returns the cached computation for key or invokes create to
// construct it. A successful construction is cached before returning; a
// failed one is not, so the next call retries.
func (c *Cache) FetchOrCreate(key fingerprint.Key, create func() (*Computation, error)) (*Computation, error) {
	if comp, ok := c.lru.Get(key); ok {
		return comp, nil
	}
	comp, err := create()
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, comp)
	slog.Debug("computation built", "kind", c.kind, "cached", c.lru.Len())
	return comp, nil
}

// FetchOrBuild is FetchOrCreate keyed and constructed from a configuration.
// The configuration's kind must match the cache's.
func (c *Cache) FetchOrBuild(e engine.Engine, cfg engine.Config) (*Computation, error) {
	if cfg.Kind() != c.kind {
		panic("compcache: configuration kind does not match cache kind")
	}
	key := cfg.Fingerprint()
	return c.FetchOrCreate(key, func() (*Computation, error) {
		h, err := e.Build(cfg)
		if err != nil {
			return nil, err
		}
		return NewComputation(key, h), nil
	})
}

// Len returns the number of cached computations.
func (c *Cache) Len() int { return c.lru.Len() }

// Purge drops every entry.
func (c *Cache) Purge() { c.lru.Purge() }

// Set holds one cache per operator kind so fingerprints of different
// operators never contend for the same entries.
type Set struct {
	caches [engine.KindCount]*Cache
}

// NewSet creates a cache set with the given per-kind capacity.
func NewSet(capacity int) *Set {
	s := &Set{}
	for k := range s.caches {
		s.caches[k] = NewCache(engine.Kind(k), capacity)
	}
	return s
}

// For returns the cache for one kind.
func (s *Set) For(kind engine.Kind) *Cache { return s.caches[kind] }

// FetchOrBuild dispatches to the configuration's kind cache.
func (s *Set) FetchOrBuild(e engine.Engine, cfg engine.Config) (*Computation, error) {
	return s.caches[cfg.Kind()].FetchOrBuild(e, cfg)
}

// Len returns the total number of cached computations across kinds.
func (s *Set) Len() int {
	total := 0
	for _, c := range s.caches {
		total += c.Len()
	}
	return total
}

// Purge drops every entry in every kind cache.
func (s *Set) Purge() {
	for _, c := range s.caches {
		c.Purge()
	}
}
