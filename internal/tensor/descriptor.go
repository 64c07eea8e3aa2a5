package tensor

import "fmt"

// Descriptor identifies a tensor configuration: logical dims, element type,
// and physical memory layout. Descriptors are immutable values; two
// descriptors are equal iff dims, dtype, and layout are all equal. Layout
// inequality alone is enough to require a reorder between two buffers that
// hold the same logical values.
type Descriptor struct {
	dims   Dims
	dtype  DataType
	layout Layout
}

// NewDescriptor builds a validated descriptor. The dims rank must match the
// layout's rank, and blocked layouts require their tiled dims to be divisible
// by the block size.
func NewDescriptor(dims Dims, dtype DataType, layout Layout) (Descriptor, error) {
	if err := dims.Validate(); err != nil {
		return Descriptor{}, fmt.Errorf("descriptor: %w", err)
	}
	if len(dims) != layout.Rank() {
		return Descriptor{}, fmt.Errorf("descriptor: dims rank %d does not match layout %s (rank %d)",
			len(dims), layout, layout.Rank())
	}
	for _, i := range layout.blockedDims() {
		if dims[i]%BlockSize != 0 {
			return Descriptor{}, fmt.Errorf("descriptor: dim %d = %d not divisible by block size %d for layout %s",
				i, dims[i], BlockSize, layout)
		}
	}
	return Descriptor{dims: dims.Clone(), dtype: dtype, layout: layout}, nil
}

// MustDescriptor is NewDescriptor that panics on invalid input.
func MustDescriptor(dims Dims, dtype DataType, layout Layout) Descriptor {
	d, err := NewDescriptor(dims, dtype, layout)
	if err != nil {
		panic(err)
	}
	return d
}

// Dims returns a copy of the logical dims.
func (d Descriptor) Dims() Dims {
	return d.dims.Clone()
}

// Dim returns the extent of one dimension.
func (d Descriptor) Dim(i int) int {
	return d.dims[i]
}

// Rank returns the number of logical dimensions.
func (d Descriptor) Rank() int {
	return len(d.dims)
}

// DType returns the element type.
func (d Descriptor) DType() DataType {
	return d.dtype
}

// Layout returns the physical layout tag.
func (d Descriptor) Layout() Layout {
	return d.layout
}

// NumElements returns the total element count. Blocked layouts pad nothing:
// divisibility is enforced at construction, so logical and physical element
// counts coincide.
func (d Descriptor) NumElements() int {
	return d.dims.NumElements()
}

// ByteSize returns the buffer size in bytes needed to hold the tensor.
func (d Descriptor) ByteSize() int {
	return d.NumElements() * d.dtype.Size()
}

// Equal reports component-wise descriptor equality.
func (d Descriptor) Equal(other Descriptor) bool {
	return d.dtype == other.dtype && d.layout == other.layout && d.dims.Equal(other.dims)
}

// WithLayout returns a descriptor with the same dims and dtype under a
// different layout tag. The rank and blocking constraints are re-validated.
func (d Descriptor) WithLayout(layout Layout) (Descriptor, error) {
	return NewDescriptor(d.dims, d.dtype, layout)
}

// WithDType returns a descriptor with the same dims and layout but a
// different element type.
func (d Descriptor) WithDType(dtype DataType) Descriptor {
	return Descriptor{dims: d.dims.Clone(), dtype: dtype, layout: d.layout}
}

// String formats the descriptor as dtype:layout[dims].
func (d Descriptor) String() string {
	return fmt.Sprintf("%s:%s%v", d.dtype, d.layout, []int(d.dims))
}
