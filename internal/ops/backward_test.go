package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/engine/native"
	"github.com/weft-ml/weft/internal/tensor"
)

func TestConv2DBackwardDataScalesThroughUnitFilter(t *testing.T) {
	s := newEager(native.New())
	defer s.Close()

	diffDst := image(tensor.Dims{1, 1, 2, 2}, 1, 2, 3, 4)
	weights := tensor.NewFloat32(
		tensor.MustDescriptor(tensor.Dims{1, 1, 1, 1}, tensor.Float32, tensor.OIHW),
		[]float32{2})

	diffSrc, err := s.Conv2DBackwardData(diffDst, weights, tensor.Dims{1, 1, 2, 2}, ConvAttr{})
	require.NoError(t, err)
	assert.Equal(t, tensor.Dims{1, 1, 2, 2}, diffSrc.Desc().Dims())
	requireClose(t, []float32{2, 4, 6, 8}, diffSrc.Float32s(), 0)
}

func TestConv2DBackwardDataRejectsBadSourceRank(t *testing.T) {
	s := newEager(native.New())
	defer s.Close()

	diffDst := image(tensor.Dims{1, 1, 2, 2}, 1, 2, 3, 4)
	weights := filled(tensor.Dims{1, 1, 1, 1}, tensor.OIHW, 1)
	_, err := s.Conv2DBackwardData(diffDst, weights, tensor.Dims{4}, ConvAttr{})
	require.ErrorIs(t, err, engine.ErrShapeMismatch)
}

func TestConv2DBackwardWeightsAccumulatesProducts(t *testing.T) {
	s := newEager(native.New())
	defer s.Close()

	src := image(tensor.Dims{1, 1, 2, 2}, 1, 2, 3, 4)
	diffDst := image(tensor.Dims{1, 1, 2, 2}, 1, 2, 3, 4)

	diffW, diffB, err := s.Conv2DBackwardWeights(src, diffDst, tensor.Dims{1, 1, 1, 1}, true, ConvAttr{})
	require.NoError(t, err)
	requireClose(t, []float32{30}, diffW.Float32s(), 0)
	require.NotNil(t, diffB)
	assert.Equal(t, tensor.Dims{1}, diffB.Desc().Dims())
	requireClose(t, []float32{10}, diffB.Float32s(), 0)

	diffW, diffB, err = s.Conv2DBackwardWeights(src, diffDst, tensor.Dims{1, 1, 1, 1}, false, ConvAttr{})
	require.NoError(t, err)
	require.Nil(t, diffB)
	requireClose(t, []float32{30}, diffW.Float32s(), 0)
}

func TestConv2DBackwardWeightsRejectsGroupMismatch(t *testing.T) {
	s := newEager(native.New())
	defer s.Close()

	src := filled(tensor.Dims{1, 2, 4, 4}, tensor.NCHW, 1)
	diffDst := filled(tensor.Dims{1, 2, 4, 4}, tensor.NCHW, 2)
	_, _, err := s.Conv2DBackwardWeights(src, diffDst, tensor.Dims{2, 1, 3, 3}, false,
		ConvAttr{Groups: 2, Padding: [2]int{1, 1}})
	require.ErrorIs(t, err, engine.ErrShapeMismatch)
}

func TestMaxPool2DBackwardRoutesToSelectedPositions(t *testing.T) {
	rec := record()
	s := NewStream(rec)
	defer s.Close()

	src := image(tensor.Dims{1, 1, 4, 4},
		0, 1, 2, 3,
		4, 5, 6, 7,
		8, 9, 10, 11,
		12, 13, 14, 15)
	attr := PoolAttr{Kernel: [2]int{2, 2}}

	pooled, err := s.MaxPool2D(src, attr)
	require.NoError(t, err)
	require.False(t, pooled.Materialized())

	diffDst := image(tensor.Dims{1, 1, 2, 2}, 1, 2, 3, 4)
	diffSrc, err := s.MaxPool2DBackward(pooled, diffDst, tensor.Dims{1, 1, 4, 4}, attr)
	require.NoError(t, err)
	require.NoError(t, s.Materialize(diffSrc))

	// The forward pass fires first so the workspace exists.
	assert.Equal(t, []engine.Kind{engine.Pool2D, engine.Pool2DBack}, rec.fired)
	want := []float32{
		0, 0, 0, 0,
		0, 1, 0, 2,
		0, 0, 0, 0,
		0, 3, 0, 4,
	}
	requireClose(t, want, diffSrc.Float32s(), 0)
}

func TestMaxPool2DBackwardRequiresWorkspace(t *testing.T) {
	s := newEager(native.New())
	defer s.Close()

	pooled := filled(tensor.Dims{1, 1, 2, 2}, tensor.NCHW, 1)
	diffDst := image(tensor.Dims{1, 1, 2, 2}, 1, 2, 3, 4)
	_, err := s.MaxPool2DBackward(pooled, diffDst, tensor.Dims{1, 1, 4, 4}, PoolAttr{Kernel: [2]int{2, 2}})
	require.ErrorContains(t, err, "no workspace")
}

func TestAvgPool2DBackwardSpreadsEvenly(t *testing.T) {
	s := newEager(native.New())
	defer s.Close()

	diffDst := image(tensor.Dims{1, 1, 1, 1}, 4)
	diffSrc, err := s.AvgPool2DBackward(diffDst, tensor.Dims{1, 1, 2, 2}, PoolAttr{Kernel: [2]int{2, 2}})
	require.NoError(t, err)
	requireClose(t, []float32{1, 1, 1, 1}, diffSrc.Float32s(), 0)
}
