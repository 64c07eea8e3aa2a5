// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the descriptor and tensor types the weft
// computation cache and fusion web are built on.
//
// # Overview
//
// Weft separates what a tensor is from where its bytes live:
//   - Descriptor: an immutable value of dims, element type, and layout
//   - Tensor: a descriptor bound to reference-counted storage
//   - Dims: always the logical shape; Layout alone decides the physical
//     arrangement
//
// Two descriptors are interchangeable only when dims, element type, and
// layout are all equal. Everything above the engine treats any inequality as
// "needs conversion", so a logical shape can travel through plain, permuted,
// and channel-blocked forms without ambiguity.
//
// # Basic Usage
//
//	desc := tensor.MustDescriptor(tensor.Dims{1, 3, 8, 8}, tensor.Float32, tensor.NCHW)
//
//	src := tensor.New(desc) // allocated and materialized
//	copy(src.Float32s(), pixels)
//
//	out := tensor.Describe(desc) // descriptor only; storage attaches when
//	                             // a computation writes it
//
// # Materialization
//
// A tensor created with Describe starts unmaterialized: it has a shape but
// no storage. Reading its data panics until a computation (or Materialize)
// attaches storage. The lazy fusion web relies on this distinction to tell
// pending results from constants.
//
// # Layouts
//
// Plain layouts (NCHW, NHWC, OIHW, ...) store elements in the row-major
// order their name spells. Blocked layouts (NChw8c, OIhw8i8o) tile channel
// dimensions in runs of BlockSize for engines that vectorize across
// channels; blocked dims must divide evenly. Layout conversion is the
// engine's reorder operator, reachable through the ops package.
package tensor
