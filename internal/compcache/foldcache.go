package compcache

import (
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/weft-ml/weft/internal/tensor"
)

// DefaultFoldCapacity limits how many folded weight/bias pairs are retained.
const DefaultFoldCapacity = 64

// FoldKey identifies a normalization fold: the identity of the weight buffer
// folded into, and a content digest of the statistics folded in. Statistics
// tensors are matched by value, so re-uploading equal statistics into a new
// buffer still hits.
type FoldKey struct {
	Weights uint64
	Stats   uint64
}

// Folded holds the rescaled weights and adjusted bias a fold produced.
type Folded struct {
	Weights *tensor.Tensor
	Bias    *tensor.Tensor
}

// FoldCache retains fold results outside the computation web, so rebuilt
// graphs over the same parameters skip the arithmetic.
type FoldCache struct {
	lru *lru.LRU[FoldKey, Folded]
}

// NewFoldCache creates a fold cache. Capacity must be at least one.
func NewFoldCache(capacity int) *FoldCache {
	inner, err := lru.NewLRU(capacity, func(_ FoldKey, v Folded) {
		v.Weights.Release()
		v.Bias.Release()
		slog.Debug("fold result evicted")
	})
	if err != nil {
		panic("compcache: fold capacity must be positive")
	}
	return &FoldCache{lru: inner}
}

// Fetch returns the fold result for key, if cached.
func (c *FoldCache) Fetch(key FoldKey) (Folded, bool) {
	return c.lru.Get(key)
}

// FetchOrCreate returns the cached fold result or computes and caches it.
// Failed folds are not cached. The cache holds one reference to each stored
// tensor and releases it on eviction.
func (c *FoldCache) FetchOrCreate(key FoldKey, create func() (Folded, error)) (Folded, error) {
	if f, ok := c.lru.Get(key); ok {
		return f, nil
	}
	f, err := create()
	if err != nil {
		return Folded{}, err
	}
	f.Weights.Retain()
	f.Bias.Retain()
	c.lru.Add(key, f)
	return f, nil
}

// Len returns the number of cached fold results.
func (c *FoldCache) Len() int { return c.lru.Len() }

// Purge drops every fold result.
func (c *FoldCache) Purge() { c.lru.Purge() }
