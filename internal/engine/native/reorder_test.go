package native

import (
	"errors"
	"testing"

	"github.com/x448/float16"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/tensor"
)

func reorderOnce(t *testing.T, src *tensor.Tensor, dstDesc tensor.Descriptor) *tensor.Tensor {
	t.Helper()
	e := New()
	h, err := e.Convert(src.Desc(), dstDesc)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	dst := tensor.New(dstDesc)
	if err := e.Execute(h, []*tensor.Tensor{src}, []*tensor.Tensor{dst}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return dst
}

func TestReorderNCHWToNHWC(t *testing.T) {
	srcDesc := tensor.MustDescriptor(tensor.Dims{1, 2, 2, 2}, tensor.Float32, tensor.NCHW)
	dstDesc := tensor.MustDescriptor(tensor.Dims{1, 2, 2, 2}, tensor.Float32, tensor.NHWC)

	src := tensor.NewFloat32(srcDesc, []float32{0, 1, 2, 3, 4, 5, 6, 7})
	dst := reorderOnce(t, src, dstDesc)

	want := []float32{0, 4, 1, 5, 2, 6, 3, 7}
	got := dst.Float32s()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("nhwc[%d] = %g, want %g", i, got[i], want[i])
		}
	}

	back := reorderOnce(t, dst, srcDesc)
	for i, v := range back.Float32s() {
		if v != float32(i) {
			t.Errorf("roundtrip[%d] = %g, want %d", i, v, i)
		}
	}
}

func TestReorderOIHWToHWIO(t *testing.T) {
	srcDesc := tensor.MustDescriptor(tensor.Dims{2, 1, 2, 2}, tensor.Float32, tensor.OIHW)
	dstDesc := tensor.MustDescriptor(tensor.Dims{2, 1, 2, 2}, tensor.Float32, tensor.HWIO)

	src := tensor.NewFloat32(srcDesc, []float32{0, 1, 2, 3, 4, 5, 6, 7})
	dst := reorderOnce(t, src, dstDesc)

	want := []float32{0, 4, 1, 5, 2, 6, 3, 7}
	got := dst.Float32s()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("hwio[%d] = %g, want %g", i, got[i], want[i])
		}
	}
}

// OIHW and NCHW share a physical order, so retagging is a flat copy.
func TestReorderRetagIsCopy(t *testing.T) {
	srcDesc := tensor.MustDescriptor(tensor.Dims{2, 3, 2, 2}, tensor.Float32, tensor.OIHW)
	dstDesc := tensor.MustDescriptor(tensor.Dims{2, 3, 2, 2}, tensor.Float32, tensor.NCHW)

	data := make([]float32, srcDesc.NumElements())
	fill(data, 23)
	src := tensor.NewFloat32(srcDesc, data)
	dst := reorderOnce(t, src, dstDesc)
	for i, v := range dst.Float32s() {
		if v != data[i] {
			t.Fatalf("dst[%d] = %g, want %g", i, v, data[i])
		}
	}
}

func TestReorderNChw8cPackUnpack(t *testing.T) {
	plainDesc := tensor.MustDescriptor(tensor.Dims{1, 16, 1, 2}, tensor.Float32, tensor.NCHW)
	blockedDesc := tensor.MustDescriptor(tensor.Dims{1, 16, 1, 2}, tensor.Float32, tensor.NChw8c)

	data := make([]float32, 32)
	for i := range data {
		data[i] = float32(i)
	}
	src := tensor.NewFloat32(plainDesc, data)
	packed := reorderOnce(t, src, blockedDesc)

	// Channel 11 is block 1 lane 3; at w=1 it lands at ((1*2)+1)*8+3.
	if got := packed.Float32s()[27]; got != 23 {
		t.Errorf("packed[27] = %g, want 23", got)
	}

	back := reorderOnce(t, packed, plainDesc)
	for i, v := range back.Float32s() {
		if v != data[i] {
			t.Fatalf("roundtrip[%d] = %g, want %g", i, v, data[i])
		}
	}
}

func TestReorderOIhw8i8oPackUnpack(t *testing.T) {
	plainDesc := tensor.MustDescriptor(tensor.Dims{8, 8, 1, 1}, tensor.Float32, tensor.OIHW)
	blockedDesc := tensor.MustDescriptor(tensor.Dims{8, 8, 1, 1}, tensor.Float32, tensor.OIhw8i8o)

	data := make([]float32, 64)
	for i := range data {
		data[i] = float32(i)
	}
	src := tensor.NewFloat32(plainDesc, data)
	packed := reorderOnce(t, src, blockedDesc)

	// With a single 8x8 block the packed form is the [i][o] transpose.
	got := packed.Float32s()
	for o := 0; o < 8; o++ {
		for i := 0; i < 8; i++ {
			if got[i*8+o] != float32(o*8+i) {
				t.Fatalf("packed[%d] = %g, want %d", i*8+o, got[i*8+o], o*8+i)
			}
		}
	}

	back := reorderOnce(t, packed, plainDesc)
	for i, v := range back.Float32s() {
		if v != data[i] {
			t.Fatalf("roundtrip[%d] = %g, want %g", i, v, data[i])
		}
	}
}

func TestReorderFloat16(t *testing.T) {
	f32Desc := tensor.MustDescriptor(tensor.Dims{4}, tensor.Float32, tensor.Vec)
	f16Desc := tensor.MustDescriptor(tensor.Dims{4}, tensor.Float16, tensor.Vec)

	data := []float32{1.5, -0.1, 65504, 0}
	src := tensor.NewFloat32(f32Desc, data)
	half := reorderOnce(t, src, f16Desc)

	bits := half.Uint16s()
	for i, v := range data {
		if want := float16.Fromfloat32(v).Bits(); bits[i] != want {
			t.Errorf("half[%d] = %#x, want %#x", i, bits[i], want)
		}
	}

	back := reorderOnce(t, half, f32Desc)
	for i, v := range back.Float32s() {
		want := float16.Fromfloat32(data[i]).Float32()
		if v != want {
			t.Errorf("back[%d] = %g, want %g", i, v, want)
		}
	}
}

func TestReorderLayoutAndDTypeTogether(t *testing.T) {
	srcDesc := tensor.MustDescriptor(tensor.Dims{1, 2, 2, 2}, tensor.Float32, tensor.NCHW)
	dstDesc := tensor.MustDescriptor(tensor.Dims{1, 2, 2, 2}, tensor.Float16, tensor.NHWC)

	src := tensor.NewFloat32(srcDesc, []float32{0, 1, 2, 3, 4, 5, 6, 7})
	dst := reorderOnce(t, src, dstDesc)

	want := []float32{0, 4, 1, 5, 2, 6, 3, 7}
	bits := dst.Uint16s()
	for i, w := range want {
		if got := float16.Frombits(bits[i]).Float32(); got != w {
			t.Errorf("dst[%d] = %g, want %g", i, got, w)
		}
	}
}

func TestReorderRejectsBlockedToBlocked(t *testing.T) {
	a := tensor.MustDescriptor(tensor.Dims{8, 8, 2, 2}, tensor.Float32, tensor.NChw8c)
	b := tensor.MustDescriptor(tensor.Dims{8, 8, 2, 2}, tensor.Float32, tensor.OIhw8i8o)

	e := New()
	_, err := e.Convert(a, b)
	var uerr *engine.UnsupportedConfigurationError
	if !errors.As(err, &uerr) {
		t.Fatalf("Convert error = %v, want UnsupportedConfigurationError", err)
	}
}

func TestReorderRejectsDimsMismatch(t *testing.T) {
	a := tensor.MustDescriptor(tensor.Dims{1, 2, 2, 2}, tensor.Float32, tensor.NCHW)
	b := tensor.MustDescriptor(tensor.Dims{1, 2, 2, 3}, tensor.Float32, tensor.NHWC)

	e := New()
	if _, err := e.Convert(a, b); !errors.Is(err, engine.ErrShapeMismatch) {
		t.Errorf("Convert error = %v, want ErrShapeMismatch", err)
	}
}

func TestReorderRejectsIntToFloat(t *testing.T) {
	a := tensor.MustDescriptor(tensor.Dims{4}, tensor.Int32, tensor.Vec)
	b := tensor.MustDescriptor(tensor.Dims{4}, tensor.Float32, tensor.Vec)

	e := New()
	var uerr *engine.UnsupportedConfigurationError
	if _, err := e.Convert(a, b); !errors.As(err, &uerr) {
		t.Errorf("Convert error = %v, want UnsupportedConfigurationError", err)
	}
}
