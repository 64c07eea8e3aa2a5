// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"github.com/weft-ml/weft/internal/engine"
)

// Common errors.
var (
	ErrShapeMismatch   = engine.ErrShapeMismatch
	ErrUnsupportedAxis = engine.ErrUnsupportedAxis
	ErrNotFloat32      = engine.ErrNotFloat32
)

// ConstructionError reports that an operator configuration could not be
// compiled. It is surfaced to the caller and never retried, and a failed
// construction is never cached.
type ConstructionError = engine.ConstructionError

// ExecutionError reports that the engine failed while running a compiled
// handle.
type ExecutionError = engine.ExecutionError

// IncompatibleBindingError reports a buffer whose descriptor matches neither
// a computation's expected descriptor at its position nor the source side of
// the reorder attached there.
type IncompatibleBindingError = engine.IncompatibleBindingError

// UnsupportedConfigurationError reports a requested fusion or axis/format
// combination outside an engine's closed rule set. Fusion paths treat it as
// "fall back to unfused execution"; construction paths treat it as fatal.
type UnsupportedConfigurationError = engine.UnsupportedConfigurationError
