package tensor

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// bufferSeq hands out stable buffer identities. Identity 0 is reserved for
// "no buffer".
var bufferSeq atomic.Uint64

// buffer is a reference-counted byte store shared between tensor views.
// The id survives for the buffer's lifetime and is never reused, so it can
// key identity-based caches (the fold-result cache keys folded weights by
// the weight buffer's id).
type buffer struct {
	id   uint64
	data []byte
	refs atomic.Int32
}

// newBuffer allocates a zeroed buffer with refcount 1.
func newBuffer(size int) *buffer {
	buf := &buffer{
		id:   bufferSeq.Add(1),
		data: make([]byte, size),
	}
	buf.refs.Store(1)
	return buf
}

// retain increments the reference count.
func (b *buffer) retain() {
	b.refs.Add(1)
}

// release decrements the reference count and drops the storage at zero.
func (b *buffer) release() {
	if b.refs.Add(-1) == 0 {
		b.data = nil
	}
}

// Tensor couples a descriptor with an optional backing buffer. A tensor with
// no buffer is "unmaterialized": it describes a value some pending
// computation will produce, and materialization is the act of binding real
// storage to it. The extra tensor is a side channel for operator-specific
// companions (a max-pooling workspace, for example); canon holds the
// canonical-form copy a format negotiation produced, so long-lived parameters
// convert once instead of per bind.
type Tensor struct {
	desc  Descriptor
	buf   *buffer
	extra *Tensor
	canon *Tensor
}

// New creates a materialized tensor with zeroed storage.
func New(desc Descriptor) *Tensor {
	t := Describe(desc)
	t.Materialize()
	return t
}

// Describe creates an unmaterialized, descriptor-only tensor.
func Describe(desc Descriptor) *Tensor {
	return &Tensor{desc: desc}
}

// NewFloat32 creates a materialized Float32 tensor initialized from values.
// The value count must match the descriptor's element count.
func NewFloat32(desc Descriptor, values []float32) *Tensor {
	if desc.DType() != Float32 {
		panic(fmt.Sprintf("tensor: NewFloat32 on %s descriptor", desc.DType()))
	}
	if len(values) != desc.NumElements() {
		panic(fmt.Sprintf("tensor: %d values for descriptor %s (%d elements)",
			len(values), desc, desc.NumElements()))
	}
	t := New(desc)
	copy(t.Float32s(), values)
	return t
}

// Desc returns the tensor's descriptor.
func (t *Tensor) Desc() Descriptor {
	return t.desc
}

// Materialized reports whether the tensor has storage bound.
func (t *Tensor) Materialized() bool {
	return t.buf != nil
}

// Materialize binds fresh zeroed storage sized by the descriptor. Calling it
// on an already-materialized tensor is a no-op.
func (t *Tensor) Materialize() {
	if t.buf != nil {
		return
	}
	t.buf = newBuffer(t.desc.ByteSize())
}

// Alias binds this tensor to another tensor's storage (retaining it). The
// two descriptors must have equal byte sizes. Residual accumulation uses
// this to make a fused output share its destination's buffer.
func (t *Tensor) Alias(src *Tensor) {
	if !src.Materialized() {
		panic("tensor: alias of unmaterialized tensor")
	}
	if t.desc.ByteSize() != src.desc.ByteSize() {
		panic(fmt.Sprintf("tensor: alias size mismatch: %s vs %s", t.desc, src.desc))
	}
	if t.buf != nil {
		t.buf.release()
	}
	src.buf.retain()
	t.buf = src.buf
}

// BufferID returns the stable identity of the bound buffer, or 0 when
// unmaterialized. Aliased tensors share one id.
func (t *Tensor) BufferID() uint64 {
	if t.buf == nil {
		return 0
	}
	return t.buf.id
}

// Retain increments the storage refcount (no-op when unmaterialized).
func (t *Tensor) Retain() {
	if t.buf != nil {
		t.buf.retain()
	}
}

// Release decrements the storage refcount (no-op when unmaterialized).
func (t *Tensor) Release() {
	if t.buf != nil {
		t.buf.release()
	}
}

// Extra returns the side-channel tensor, or nil.
func (t *Tensor) Extra() *Tensor {
	return t.extra
}

// SetExtra attaches a side-channel tensor.
func (t *Tensor) SetExtra(extra *Tensor) {
	t.extra = extra
}

// Canonical returns the cached canonical-form copy of this tensor, or nil if
// none has been attached.
func (t *Tensor) Canonical() *Tensor {
	return t.canon
}

// SetCanonical caches a canonical-form copy. The previous copy, if any, is
// released.
func (t *Tensor) SetCanonical(canon *Tensor) {
	if t.canon != nil {
		t.canon.Release()
	}
	t.canon = canon
}

// NumElements returns the descriptor's element count.
func (t *Tensor) NumElements() int {
	return t.desc.NumElements()
}

// ByteSize returns the descriptor's byte size.
func (t *Tensor) ByteSize() int {
	return t.desc.ByteSize()
}

// Bytes returns the raw byte storage.
// Panics if the tensor is unmaterialized.
func (t *Tensor) Bytes() []byte {
	return t.storage()
}

// Float32s interprets the storage as []float32.
// Panics if the dtype is not Float32 or the tensor is unmaterialized.
func (t *Tensor) Float32s() []float32 {
	if t.desc.DType() != Float32 {
		panic(fmt.Sprintf("tensor: dtype is %s, not f32", t.desc.DType()))
	}
	data := t.storage()
	//nolint:gosec // unsafe.Slice for zero-copy views, bounds fixed by the descriptor
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), t.NumElements())
}

// Uint16s interprets the storage as []uint16 (Float16 bit patterns).
// Panics if the dtype is not Float16 or the tensor is unmaterialized.
func (t *Tensor) Uint16s() []uint16 {
	if t.desc.DType() != Float16 {
		panic(fmt.Sprintf("tensor: dtype is %s, not f16", t.desc.DType()))
	}
	data := t.storage()
	//nolint:gosec // unsafe.Slice for zero-copy views, bounds fixed by the descriptor
	return unsafe.Slice((*uint16)(unsafe.Pointer(&data[0])), t.NumElements())
}

// Int32s interprets the storage as []int32.
// Panics if the dtype is not Int32 or the tensor is unmaterialized.
func (t *Tensor) Int32s() []int32 {
	if t.desc.DType() != Int32 {
		panic(fmt.Sprintf("tensor: dtype is %s, not i32", t.desc.DType()))
	}
	data := t.storage()
	//nolint:gosec // unsafe.Slice for zero-copy views, bounds fixed by the descriptor
	return unsafe.Slice((*int32)(unsafe.Pointer(&data[0])), t.NumElements())
}

func (t *Tensor) storage() []byte {
	if t.buf == nil {
		panic(fmt.Sprintf("tensor: access to unmaterialized tensor %s", t.desc))
	}
	return t.buf.data
}

// String formats the tensor as its descriptor plus materialization state.
func (t *Tensor) String() string {
	if t.Materialized() {
		return t.desc.String()
	}
	return t.desc.String() + " (unmaterialized)"
}
