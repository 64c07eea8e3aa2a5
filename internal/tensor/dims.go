package tensor

import "fmt"

// Dims holds the logical extent of each tensor dimension.
type Dims []int

// NumElements returns the total number of elements spanned by the dims.
func (d Dims) NumElements() int {
	if len(d) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range d {
		n *= dim
	}
	return n
}

// Validate checks that every dimension is positive.
func (d Dims) Validate() error {
	for i, dim := range d {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two dims are equal element-wise.
func (d Dims) Equal(other Dims) bool {
	if len(d) != len(other) {
		return false
	}
	for i := range d {
		if d[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the dims.
func (d Dims) Clone() Dims {
	clone := make(Dims, len(d))
	copy(clone, d)
	return clone
}
