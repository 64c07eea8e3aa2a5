// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/weft-ml/weft/internal/tensor"
)

// Dims holds the logical extent of each tensor dimension.
type Dims = tensor.Dims

// DataType represents the element type of a tensor.
type DataType = tensor.DataType

// Supported element types.
const (
	Float32 DataType = tensor.Float32
	Float16 DataType = tensor.Float16
	Int32   DataType = tensor.Int32
	Uint8   DataType = tensor.Uint8
)

// Layout tags the physical memory arrangement of a tensor. Dims stay
// logical under every layout; see the package documentation.
type Layout = tensor.Layout

// Recognized layouts. The letters name the dimension order: N batch, C
// channel, H height, W width, O output channel, I input channel, G group.
const (
	Vec      Layout = tensor.Vec      // 1D contiguous
	NC       Layout = tensor.NC       // 2D row-major (batch, channel)
	OI       Layout = tensor.OI       // 2D weights (output, input)
	IO       Layout = tensor.IO       // 2D weights, transposed
	NCHW     Layout = tensor.NCHW     // 4D activations, channel-major
	NHWC     Layout = tensor.NHWC     // 4D activations, channel-minor
	OIHW     Layout = tensor.OIHW     // 4D conv weights
	HWIO     Layout = tensor.HWIO     // 4D conv weights, spatial-major
	GOIHW    Layout = tensor.GOIHW    // 5D grouped conv weights
	NChw8c   Layout = tensor.NChw8c   // 4D activations, channels blocked by 8
	OIhw8i8o Layout = tensor.OIhw8i8o // 4D conv weights, both channel dims blocked by 8
)

// BlockSize is the channel tile width of the blocked layouts.
const BlockSize = tensor.BlockSize

// Descriptor is the immutable identity of a tensor form: dims, element
// type, and layout. Descriptors compare by value; any inequality means a
// conversion is required before the forms are interchangeable.
type Descriptor = tensor.Descriptor

// NewDescriptor validates dims against the layout and returns a descriptor.
func NewDescriptor(dims Dims, dtype DataType, layout Layout) (Descriptor, error) {
	return tensor.NewDescriptor(dims, dtype, layout)
}

// MustDescriptor is NewDescriptor, panicking on invalid input. Intended for
// statically known shapes.
func MustDescriptor(dims Dims, dtype DataType, layout Layout) Descriptor {
	return tensor.MustDescriptor(dims, dtype, layout)
}
