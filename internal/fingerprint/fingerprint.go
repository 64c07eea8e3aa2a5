// Package fingerprint builds deterministic byte keys from operator
// configurations. A key covers everything that distinguishes one compiled
// computation from another: dims, element types, layout tags, scalar
// attributes, and attribute lists. Identical configurations always produce
// byte-identical keys; the cache layer treats keys as opaque.
package fingerprint

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/weft-ml/weft/internal/tensor"
)

// Key is an opaque, deterministic encoding of an operator configuration.
type Key string

// Field tags. Every appender writes its tag before the payload so that
// adjacent fields of different types can never alias, and a list can never
// collide with the concatenation of its elements appended individually.
const (
	tagInt byte = iota + 1
	tagInts
	tagFloat32
	tagFloat32s
	tagByte
	tagStr
	tagDType
	tagLayout
	tagDesc
	tagDescs
)

// Builder accumulates configuration fields into a Key. Multi-valued
// appenders write an explicit element count before their payload, so a
// permuted or re-split list produces a different key from the original.
type Builder struct {
	buf []byte
}

// NewBuilder returns a Builder with room for a typical operator key.
func NewBuilder() *Builder {
	return &Builder{buf: make([]byte, 0, 128)}
}

// Int appends one signed integer.
func (b *Builder) Int(v int) *Builder {
	b.buf = append(b.buf, tagInt)
	b.buf = binary.LittleEndian.AppendUint64(b.buf, uint64(v))
	return b
}

// Ints appends a count-prefixed integer list.
func (b *Builder) Ints(vs []int) *Builder {
	b.buf = append(b.buf, tagInts)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(len(vs)))
	for _, v := range vs {
		b.buf = binary.LittleEndian.AppendUint64(b.buf, uint64(v))
	}
	return b
}

// Float32 appends one float by bit pattern.
func (b *Builder) Float32(v float32) *Builder {
	b.buf = append(b.buf, tagFloat32)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, math.Float32bits(v))
	return b
}

// Float32s appends a count-prefixed float list by bit patterns.
func (b *Builder) Float32s(vs []float32) *Builder {
	b.buf = append(b.buf, tagFloat32s)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(len(vs)))
	for _, v := range vs {
		b.buf = binary.LittleEndian.AppendUint32(b.buf, math.Float32bits(v))
	}
	return b
}

// Byte appends one raw byte.
func (b *Builder) Byte(v byte) *Builder {
	b.buf = append(b.buf, tagByte, v)
	return b
}

// Str appends a length-prefixed string.
func (b *Builder) Str(s string) *Builder {
	b.buf = append(b.buf, tagStr)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(len(s)))
	b.buf = append(b.buf, s...)
	return b
}

// DType appends an element type tag.
func (b *Builder) DType(dt tensor.DataType) *Builder {
	b.buf = append(b.buf, tagDType, byte(dt))
	return b
}

// Layout appends a layout tag.
func (b *Builder) Layout(l tensor.Layout) *Builder {
	b.buf = append(b.buf, tagLayout, byte(l))
	return b
}

// Desc appends a full descriptor: dtype, layout, count-prefixed dims.
func (b *Builder) Desc(d tensor.Descriptor) *Builder {
	b.buf = append(b.buf, tagDesc, byte(d.DType()), byte(d.Layout()))
	b.appendDims(d.Dims())
	return b
}

// Descs appends a count-prefixed descriptor list. Operators with a variable
// number of inputs (concat, sum) serialize them through this so the input
// count itself is part of the key.
func (b *Builder) Descs(ds []tensor.Descriptor) *Builder {
	b.buf = append(b.buf, tagDescs)
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(len(ds)))
	for _, d := range ds {
		b.buf = append(b.buf, byte(d.DType()), byte(d.Layout()))
		b.appendDims(d.Dims())
	}
	return b
}

func (b *Builder) appendDims(dims tensor.Dims) {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(len(dims)))
	for _, v := range dims {
		b.buf = binary.LittleEndian.AppendUint64(b.buf, uint64(v))
	}
}

// Key returns the accumulated key. The Builder remains usable; further
// appends produce longer keys.
func (b *Builder) Key() Key {
	return Key(b.buf)
}

// ContentDigest hashes raw byte sections into one 64-bit content
// fingerprint. The fold-result cache keys normalization statistics by this
// digest rather than by buffer handle identity, so logically equal
// statistics in different buffers hit the same entry.
func ContentDigest(sections ...[]byte) uint64 {
	d := xxhash.New()
	var sep [4]byte
	for _, s := range sections {
		binary.LittleEndian.PutUint32(sep[:], uint32(len(s)))
		_, _ = d.Write(sep[:])
		_, _ = d.Write(s)
	}
	return d.Sum64()
}
