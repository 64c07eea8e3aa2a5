// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/weft-ml/weft/internal/tensor"
)

// Tensor binds a descriptor to reference-counted storage.
//
// A tensor is either materialized (storage attached, data readable) or a
// pure description waiting for a computation to write it. Data accessors
// panic on unmaterialized tensors.
type Tensor = tensor.Tensor

// New allocates a materialized, zero-filled tensor.
func New(desc Descriptor) *Tensor {
	return tensor.New(desc)
}

// Describe creates an unmaterialized tensor: shape now, storage when a
// computation produces it.
func Describe(desc Descriptor) *Tensor {
	return tensor.Describe(desc)
}

// NewFloat32 allocates a materialized tensor initialized from values, which
// must have exactly the descriptor's element count. The descriptor's
// element type must be Float32.
func NewFloat32(desc Descriptor, values []float32) *Tensor {
	return tensor.NewFloat32(desc, values)
}
