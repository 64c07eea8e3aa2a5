package native

import (
	"math"
	"testing"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/tensor"
)

func close32(a, b float32) bool {
	return math.Abs(float64(a-b)) <= 1e-4
}

// fill writes a deterministic, varied pattern of small integers so float32
// accumulation stays exact.
func fill(data []float32, seed int) {
	for i := range data {
		data[i] = float32((i*31+seed*17+7)%13) - 6
	}
}

// convRef computes convolution directly from the definition.
func convRef(src, w, bias []float32, n, cIn, h, wid, cOut, kh, kw int,
	strides, padding, dilation [2]int, groups int) []float32 {
	hOut := outSpatial(h, kh, strides[0], padding[0], dilation[0])
	wOut := outSpatial(wid, kw, strides[1], padding[1], dilation[1])
	ig := cIn / groups
	og := cOut / groups
	dst := make([]float32, n*cOut*hOut*wOut)
	for b := 0; b < n; b++ {
		for o := 0; o < cOut; o++ {
			g := o / og
			for oh := 0; oh < hOut; oh++ {
				for ow := 0; ow < wOut; ow++ {
					var sum float32
					for ic := 0; ic < ig; ic++ {
						for i := 0; i < kh; i++ {
							ih := oh*strides[0] - padding[0] + i*dilation[0]
							if ih < 0 || ih >= h {
								continue
							}
							for j := 0; j < kw; j++ {
								iw := ow*strides[1] - padding[1] + j*dilation[1]
								if iw < 0 || iw >= wid {
									continue
								}
								sum += src[((b*cIn+g*ig+ic)*h+ih)*wid+iw] * w[((o*ig+ic)*kh+i)*kw+j]
							}
						}
					}
					if bias != nil {
						sum += bias[o]
					}
					dst[((b*cOut+o)*hOut+oh)*wOut+ow] = sum
				}
			}
		}
	}
	return dst
}

func TestConv2DMatchesReference(t *testing.T) {
	srcDesc := tensor.MustDescriptor(tensor.Dims{1, 3, 8, 8}, tensor.Float32, tensor.NCHW)
	wDesc := tensor.MustDescriptor(tensor.Dims{4, 3, 3, 3}, tensor.Float32, tensor.OIHW)
	biasDesc := tensor.MustDescriptor(tensor.Dims{4}, tensor.Float32, tensor.Vec)
	dstDesc := tensor.MustDescriptor(tensor.Dims{1, 4, 8, 8}, tensor.Float32, tensor.NCHW)

	e := New()
	h, err := e.Build(engine.ConvConfig{
		Src: srcDesc, Weights: wDesc, Bias: biasDesc, Dst: dstDesc, HasBias: true,
		Strides: [2]int{1, 1}, Padding: [2]int{1, 1}, Dilation: [2]int{1, 1}, Groups: 1,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	srcData := make([]float32, srcDesc.NumElements())
	wData := make([]float32, wDesc.NumElements())
	biasData := make([]float32, biasDesc.NumElements())
	fill(srcData, 1)
	fill(wData, 2)
	fill(biasData, 3)

	src := tensor.NewFloat32(srcDesc, srcData)
	w := tensor.NewFloat32(wDesc, wData)
	bias := tensor.NewFloat32(biasDesc, biasData)
	dst := tensor.New(dstDesc)

	if err := e.Execute(h, []*tensor.Tensor{src, w, bias}, []*tensor.Tensor{dst}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := convRef(srcData, wData, biasData, 1, 3, 8, 8, 4, 3, 3,
		[2]int{1, 1}, [2]int{1, 1}, [2]int{1, 1}, 1)
	got := dst.Float32s()
	for i := range want {
		if !close32(got[i], want[i]) {
			t.Fatalf("dst[%d] = %g, want %g", i, got[i], want[i])
		}
	}
}

func TestConv2DStride2NoPadding(t *testing.T) {
	srcDesc := tensor.MustDescriptor(tensor.Dims{1, 1, 5, 5}, tensor.Float32, tensor.NCHW)
	wDesc := tensor.MustDescriptor(tensor.Dims{1, 1, 3, 3}, tensor.Float32, tensor.OIHW)
	dstDesc := tensor.MustDescriptor(tensor.Dims{1, 1, 2, 2}, tensor.Float32, tensor.NCHW)

	e := New()
	h, err := e.Build(engine.ConvConfig{
		Src: srcDesc, Weights: wDesc, Dst: dstDesc,
		Strides: [2]int{2, 2}, Padding: [2]int{0, 0}, Dilation: [2]int{1, 1}, Groups: 1,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	srcData := make([]float32, 25)
	for i := range srcData {
		srcData[i] = float32(i)
	}
	wData := make([]float32, 9)
	wData[4] = 1 // identity kernel picks the window center

	src := tensor.NewFloat32(srcDesc, srcData)
	w := tensor.NewFloat32(wDesc, wData)
	dst := tensor.New(dstDesc)
	if err := e.Execute(h, []*tensor.Tensor{src, w}, []*tensor.Tensor{dst}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := []float32{6, 8, 16, 18}
	got := dst.Float32s()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dst[%d] = %g, want %g", i, got[i], want[i])
		}
	}
}

func TestConv2DGroupsAndDilation(t *testing.T) {
	srcDesc := tensor.MustDescriptor(tensor.Dims{2, 4, 6, 6}, tensor.Float32, tensor.NCHW)
	wDesc := tensor.MustDescriptor(tensor.Dims{2, 2, 2, 3, 3}, tensor.Float32, tensor.GOIHW)
	dstDesc := tensor.MustDescriptor(tensor.Dims{2, 4, 6, 6}, tensor.Float32, tensor.NCHW)

	e := New()
	h, err := e.Build(engine.ConvConfig{
		Src: srcDesc, Weights: wDesc, Dst: dstDesc,
		Strides: [2]int{1, 1}, Padding: [2]int{2, 2}, Dilation: [2]int{2, 2}, Groups: 2,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	srcData := make([]float32, srcDesc.NumElements())
	wData := make([]float32, wDesc.NumElements())
	fill(srcData, 4)
	fill(wData, 5)

	src := tensor.NewFloat32(srcDesc, srcData)
	w := tensor.NewFloat32(wDesc, wData)
	dst := tensor.New(dstDesc)
	if err := e.Execute(h, []*tensor.Tensor{src, w}, []*tensor.Tensor{dst}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := convRef(srcData, wData, nil, 2, 4, 6, 6, 4, 3, 3,
		[2]int{1, 1}, [2]int{2, 2}, [2]int{2, 2}, 2)
	got := dst.Float32s()
	for i := range want {
		if !close32(got[i], want[i]) {
			t.Fatalf("dst[%d] = %g, want %g", i, got[i], want[i])
		}
	}
}

func TestConv2DEltwisePostOp(t *testing.T) {
	srcDesc := tensor.MustDescriptor(tensor.Dims{1, 2, 4, 4}, tensor.Float32, tensor.NCHW)
	wDesc := tensor.MustDescriptor(tensor.Dims{2, 2, 3, 3}, tensor.Float32, tensor.OIHW)
	dstDesc := tensor.MustDescriptor(tensor.Dims{1, 2, 4, 4}, tensor.Float32, tensor.NCHW)

	cfg := engine.ConvConfig{
		Src: srcDesc, Weights: wDesc, Dst: dstDesc,
		Strides: [2]int{1, 1}, Padding: [2]int{1, 1}, Dilation: [2]int{1, 1}, Groups: 1,
		PostOps: []engine.PostOp{{Kind: engine.PostEltwise, Algo: engine.ReLU}},
	}
	e := New()
	h, err := e.Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	srcData := make([]float32, srcDesc.NumElements())
	wData := make([]float32, wDesc.NumElements())
	fill(srcData, 6)
	fill(wData, 7)

	src := tensor.NewFloat32(srcDesc, srcData)
	w := tensor.NewFloat32(wDesc, wData)
	dst := tensor.New(dstDesc)
	if err := e.Execute(h, []*tensor.Tensor{src, w}, []*tensor.Tensor{dst}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	plain := convRef(srcData, wData, nil, 1, 2, 4, 4, 2, 3, 3,
		[2]int{1, 1}, [2]int{1, 1}, [2]int{1, 1}, 1)
	got := dst.Float32s()
	sawNegativePlain := false
	for i := range plain {
		want := plain[i]
		if want < 0 {
			sawNegativePlain = true
			want = 0
		}
		if !close32(got[i], want) {
			t.Fatalf("dst[%d] = %g, want %g", i, got[i], want)
		}
	}
	if !sawNegativePlain {
		t.Fatal("fixture never exercised the clamp")
	}
}

func TestConv2DSumPostOp(t *testing.T) {
	srcDesc := tensor.MustDescriptor(tensor.Dims{1, 1, 4, 4}, tensor.Float32, tensor.NCHW)
	wDesc := tensor.MustDescriptor(tensor.Dims{1, 1, 3, 3}, tensor.Float32, tensor.OIHW)
	dstDesc := tensor.MustDescriptor(tensor.Dims{1, 1, 4, 4}, tensor.Float32, tensor.NCHW)

	e := New()
	h, err := e.Build(engine.ConvConfig{
		Src: srcDesc, Weights: wDesc, Dst: dstDesc,
		Strides: [2]int{1, 1}, Padding: [2]int{1, 1}, Dilation: [2]int{1, 1}, Groups: 1,
		PostOps: []engine.PostOp{{Kind: engine.PostSum, Scale: 2}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	srcData := make([]float32, srcDesc.NumElements())
	wData := make([]float32, wDesc.NumElements())
	fill(srcData, 8)
	fill(wData, 9)

	// The destination starts out holding the values the post-op accumulates.
	prior := make([]float32, dstDesc.NumElements())
	fill(prior, 10)

	src := tensor.NewFloat32(srcDesc, srcData)
	w := tensor.NewFloat32(wDesc, wData)
	dst := tensor.NewFloat32(dstDesc, prior)
	if err := e.Execute(h, []*tensor.Tensor{src, w}, []*tensor.Tensor{dst}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	plain := convRef(srcData, wData, nil, 1, 1, 4, 4, 1, 3, 3,
		[2]int{1, 1}, [2]int{1, 1}, [2]int{1, 1}, 1)
	got := dst.Float32s()
	for i := range plain {
		want := plain[i] + 2*prior[i]
		if !close32(got[i], want) {
			t.Fatalf("dst[%d] = %g, want %g", i, got[i], want)
		}
	}
}

func TestConv2DBlockedWeightsMatchPlain(t *testing.T) {
	srcDesc := tensor.MustDescriptor(tensor.Dims{1, 8, 5, 5}, tensor.Float32, tensor.NCHW)
	wDesc := tensor.MustDescriptor(tensor.Dims{8, 8, 3, 3}, tensor.Float32, tensor.OIHW)
	dstDesc := tensor.MustDescriptor(tensor.Dims{1, 8, 5, 5}, tensor.Float32, tensor.NCHW)

	cfg := engine.ConvConfig{
		Src: srcDesc, Weights: wDesc, Dst: dstDesc,
		Strides: [2]int{1, 1}, Padding: [2]int{1, 1}, Dilation: [2]int{1, 1}, Groups: 1,
	}

	srcData := make([]float32, srcDesc.NumElements())
	wData := make([]float32, wDesc.NumElements())
	fill(srcData, 11)
	fill(wData, 12)
	src := tensor.NewFloat32(srcDesc, srcData)
	w := tensor.NewFloat32(wDesc, wData)

	plainEngine := New()
	ph, err := plainEngine.Build(cfg)
	if err != nil {
		t.Fatalf("plain Build: %v", err)
	}
	plainDst := tensor.New(dstDesc)
	if err := plainEngine.Execute(ph, []*tensor.Tensor{src, w}, []*tensor.Tensor{plainDst}); err != nil {
		t.Fatalf("plain Execute: %v", err)
	}

	blockedCfg := DefaultConfig()
	blockedCfg.BlockedWeights = true
	blockedEngine := NewWithConfig(blockedCfg)
	bh, err := blockedEngine.Build(cfg)
	if err != nil {
		t.Fatalf("blocked Build: %v", err)
	}
	wantW := bh.ExpectedInputs()[1]
	if wantW.Layout() != tensor.OIhw8i8o {
		t.Fatalf("expected weights layout = %s, want %s", wantW.Layout(), tensor.OIhw8i8o)
	}

	rh, err := blockedEngine.Convert(wDesc, wantW)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	packed := tensor.New(wantW)
	if err := blockedEngine.Execute(rh, []*tensor.Tensor{w}, []*tensor.Tensor{packed}); err != nil {
		t.Fatalf("reorder Execute: %v", err)
	}

	blockedDst := tensor.New(dstDesc)
	if err := blockedEngine.Execute(bh, []*tensor.Tensor{src, packed}, []*tensor.Tensor{blockedDst}); err != nil {
		t.Fatalf("blocked Execute: %v", err)
	}

	pg, bg := plainDst.Float32s(), blockedDst.Float32s()
	for i := range pg {
		if !close32(pg[i], bg[i]) {
			t.Fatalf("blocked dst[%d] = %g, plain %g", i, bg[i], pg[i])
		}
	}
}
