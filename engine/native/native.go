// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package native

import (
	"github.com/weft-ml/weft/engine"
	internalnative "github.com/weft-ml/weft/internal/engine/native"
)

// Engine is the pure Go reference engine.
//
// It implements the full operator set in float32, preferring plain
// canonical layouts and bridging everything else through its reorder
// kernels.
type Engine = internalnative.Engine

// Compile-time check that Engine implements engine.Engine.
var _ engine.Engine = (*Engine)(nil)

// Config controls kernel parallelism and whether convolution asks for
// channel-blocked weights.
type Config = internalnative.Config

// DefaultConfig returns the engine defaults: a worker pool sized to the
// machine and plain weight layouts.
func DefaultConfig() Config {
	return internalnative.DefaultConfig()
}

// New creates an engine with default configuration.
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
func New() *Engine {
	return internalnative.New()
}

// NewWithConfig creates an engine with explicit configuration.
func NewWithConfig(cfg Config) *Engine {
	return internalnative.NewWithConfig(cfg)
}
