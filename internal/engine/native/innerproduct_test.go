package native

import (
	"testing"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/tensor"
)

func TestInnerProduct(t *testing.T) {
	srcDesc := tensor.MustDescriptor(tensor.Dims{2, 3}, tensor.Float32, tensor.NC)
	wDesc := tensor.MustDescriptor(tensor.Dims{4, 3}, tensor.Float32, tensor.OI)
	biasDesc := tensor.MustDescriptor(tensor.Dims{4}, tensor.Float32, tensor.Vec)
	dstDesc := tensor.MustDescriptor(tensor.Dims{2, 4}, tensor.Float32, tensor.NC)

	e := New()
	h, err := e.Build(engine.InnerProductConfig{
		Src: srcDesc, Weights: wDesc, Bias: biasDesc, Dst: dstDesc, HasBias: true,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	srcData := []float32{1, 2, 3, 4, 5, 6}
	wData := make([]float32, 12)
	fill(wData, 22)
	biasData := []float32{1, -1, 2, 0}

	src := tensor.NewFloat32(srcDesc, srcData)
	w := tensor.NewFloat32(wDesc, wData)
	bias := tensor.NewFloat32(biasDesc, biasData)
	dst := tensor.New(dstDesc)
	if err := e.Execute(h, []*tensor.Tensor{src, w, bias}, []*tensor.Tensor{dst}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := dst.Float32s()
	for n := 0; n < 2; n++ {
		for o := 0; o < 4; o++ {
			want := biasData[o]
			for c := 0; c < 3; c++ {
				want += srcData[n*3+c] * wData[o*3+c]
			}
			if !close32(got[n*4+o], want) {
				t.Errorf("dst[%d,%d] = %g, want %g", n, o, got[n*4+o], want)
			}
		}
	}
}

func TestInnerProductRejectsChannelMismatch(t *testing.T) {
	srcDesc := tensor.MustDescriptor(tensor.Dims{2, 3}, tensor.Float32, tensor.NC)
	wDesc := tensor.MustDescriptor(tensor.Dims{4, 5}, tensor.Float32, tensor.OI)
	dstDesc := tensor.MustDescriptor(tensor.Dims{2, 4}, tensor.Float32, tensor.NC)

	e := New()
	if _, err := e.Build(engine.InnerProductConfig{Src: srcDesc, Weights: wDesc, Dst: dstDesc}); err == nil {
		t.Fatal("Build accepted mismatched channel counts")
	}
}
