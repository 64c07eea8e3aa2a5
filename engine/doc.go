// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package engine defines the boundary between weft and a tensor-primitive
// engine.
//
// # Overview
//
// An engine is the component that actually computes: given a fully
// specified operator configuration it compiles an opaque handle, and given
// a handle plus bound buffers it runs to completion. Weft's cache and
// fusion layers sit above this boundary and never look inside a handle.
//
// The contract has three parts:
//   - Config: one value type per operator kind, carrying every attribute
//     that distinguishes one compiled computation from another
//   - Handle: a compiled plan reporting the exact descriptors it requires
//     at every binding position
//   - Engine: Build, Execute, and Convert
//
// # Binding
//
// Execute demands exact descriptor equality at every position. A handle may
// require layouts that differ from the configuration (a convolution may
// want channel-blocked weights); bridging from what the caller holds to
// what the handle expects is the job of the ops layer, not the engine.
//
// # Errors
//
//   - ConstructionError: Build rejected a configuration; never cached,
//     never retried
//   - ExecutionError: a run failed after construction
//   - IncompatibleBindingError: a bound tensor's descriptor did not equal
//     the expected one
//   - UnsupportedConfigurationError: the configuration is recognized but
//     this engine cannot serve it; fusion treats this as "fall back to the
//     unfused form"
//
// # Implementations
//
// Package engine/native provides the pure Go reference engine. The
// interface is small on purpose: an engine backed by an accelerator
// library implements the same three methods.
package engine
