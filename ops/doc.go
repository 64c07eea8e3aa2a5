// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ops is the operator-level API over weft's computation cache and
// lazy fusion web.
//
// # Overview
//
// A Stream turns operator calls into engine work while hiding two layers of
// machinery:
//   - every distinct operator configuration compiles once and is reused
//     from a fingerprint-keyed cache on later calls
//   - on a lazy stream, operators join a fusion web and may fold into their
//     neighbors (activation into convolution, residual sums, batch-norm
//     parameters into convolution weights) before anything runs
//
// Reading a result forces it: Materialize, or any operator that consumes a
// pending tensor as weights or statistics, fires the producer chain in
// submission order.
//
// # Basic Usage
//
//	stream := ops.NewStream(native.New())
//	defer stream.Close()
//
//	conv, err := stream.Conv2D(src, weights, bias, ops.ConvAttr{Padding: [2]int{1, 1}})
//	if err != nil {
//	    return err
//	}
//	relu, err := stream.ReLU(conv) // folds into conv while both are pending
//	if err != nil {
//	    return err
//	}
//	if err := stream.Materialize(relu); err != nil {
//	    return err
//	}
//	_ = relu.Float32s()
//
// # Eager Streams
//
//	cfg := ops.DefaultConfig()
//	cfg.Lazy = false
//	stream := ops.NewStreamWithConfig(native.New(), cfg)
//
// An eager stream runs every operator at call time and never fuses, but
// still reuses compiled computations through the cache. Results come back
// already materialized.
//
// # Layout Negotiation
//
// Callers hold tensors in plain layouts; the engine may demand blocked or
// half-precision forms. The stream inserts cached reorders at the boundary
// in both directions, and remembers the canonical form of weights on the
// tensor itself so repeated inference reconverts nothing.
package ops
