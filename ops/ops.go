// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ops

import (
	"github.com/weft-ml/weft/engine"
	internalops "github.com/weft-ml/weft/internal/ops"
)

// Stream issues tensor operators against one engine, backed by a per-kind
// computation cache and, when lazy, a fusion web.
//
// A stream is single-threaded: all calls on one stream must come from one
// goroutine at a time. Streams sharing an engine each carry their own
// caches and never contend.
type Stream = internalops.Stream

// Config controls a stream's execution strategy and cache sizing.
type Config = internalops.Config

// ConvAttr carries the geometric attributes of a 2D convolution. Zero
// values mean unit strides and dilation, no padding, one group.
type ConvAttr = internalops.ConvAttr

// PoolAttr carries the geometric attributes of 2D pooling. Zero strides
// default to the kernel extents.
type PoolAttr = internalops.PoolAttr

// DefaultConfig returns the default stream configuration: lazy execution
// with fusion on and default cache capacities.
func DefaultConfig() Config {
	return internalops.DefaultConfig()
}

// NewStream creates a stream with the default configuration.
//
// Example:
//
//	import (
//	    "github.com/weft-ml/weft/engine/native"
//	    "github.com/weft-ml/weft/ops"
//	)
//
//	func main() {
//	    stream := ops.NewStream(native.New())
//	    defer stream.Close()
//	}
func NewStream(eng engine.Engine) *Stream {
	return internalops.NewStream(eng)
}

// NewStreamWithConfig creates a stream with explicit settings.
func NewStreamWithConfig(eng engine.Engine, cfg Config) *Stream {
	return internalops.NewStreamWithConfig(eng, cfg)
}
