// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package native provides the pure Go reference engine.
//
// # Overview
//
// This package implements the engine contract with:
//   - Pure Go kernels (no CGO)
//   - Im2col plus GEMM convolutions with fused post-ops
//   - Backward kernels for convolution and pooling
//   - Reorders between plain, channel-blocked, and half-precision forms
//
// # Basic Usage
//
//	import (
//	    "github.com/weft-ml/weft/engine/native"
//	    "github.com/weft-ml/weft/ops"
//	    "github.com/weft-ml/weft/tensor"
//	)
//
//	func main() {
//	    stream := ops.NewStream(native.New())
//	    defer stream.Close()
//
//	    src := tensor.NewFloat32(
//	        tensor.MustDescriptor(tensor.Dims{1, 3, 8, 8}, tensor.Float32, tensor.NCHW),
//	        data)
//	    out, err := stream.Conv2D(src, weights, bias, ops.ConvAttr{Padding: [2]int{1, 1}})
//	    ...
//	}
//
// # Performance
//
// Kernels favor clarity over peak throughput. Heavy loops run on a chunked
// worker pool sized to the machine, and matrix products go through gonum's
// float32 BLAS. Enabling Config.BlockedWeights makes convolution request
// OIhw8i8o weights so callers exercise real layout negotiation.
//
// # Thread Safety
//
// The engine holds no mutable state after construction. Handles are
// immutable once built; concurrent Execute calls are safe as long as the
// bound tensors are not shared.
package native
