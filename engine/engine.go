// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/fingerprint"
)

// Engine compiles operator configurations and executes them against bound
// buffers. Execution is synchronous: Execute returns only when the outputs
// are fully written.
type Engine = engine.Engine

// Handle is an engine-compiled execution plan for one fixed configuration.
// Its expected descriptors report, per binding position, the form the
// engine actually wants, which may differ from the configuration.
type Handle = engine.Handle

// Kind enumerates the closed set of operator kinds.
type Kind = engine.Kind

// Operator kinds.
const (
	Conv2D            Kind = engine.Conv2D
	Conv2DBackData    Kind = engine.Conv2DBackData
	Conv2DBackWeights Kind = engine.Conv2DBackWeights
	Pool2D            Kind = engine.Pool2D
	Pool2DBack        Kind = engine.Pool2DBack
	BatchNorm         Kind = engine.BatchNorm
	Eltwise           Kind = engine.Eltwise
	InnerProduct      Kind = engine.InnerProduct
	Sum               Kind = engine.Sum
	Concat            Kind = engine.Concat
	Softmax           Kind = engine.Softmax
	Reorder           Kind = engine.Reorder

	// KindCount sizes per-kind tables.
	KindCount Kind = engine.KindCount
)

// PropKind tags a computation's propagation direction.
type PropKind = engine.PropKind

// Propagation kinds.
const (
	Forward  PropKind = engine.Forward
	Backward PropKind = engine.Backward
	PropNA   PropKind = engine.PropNA
)

// Fingerprint is the deterministic byte key a configuration reduces to.
// Identical configurations always produce identical fingerprints; the
// computation cache treats them as opaque.
type Fingerprint = fingerprint.Key
