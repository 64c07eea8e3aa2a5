package web

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weft-ml/weft/internal/compcache"
	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/engine/native"
	"github.com/weft-ml/weft/internal/tensor"
)

// recordingEngine wraps an engine and records the kind of every executed
// handle, so tests can assert on how many invocations a graph turned into.
type recordingEngine struct {
	engine.Engine
	fired []engine.Kind
}

func record() *recordingEngine {
	return &recordingEngine{Engine: native.New()}
}

func (r *recordingEngine) Execute(h engine.Handle, in, out []*tensor.Tensor) error {
	r.fired = append(r.fired, h.Kind())
	return r.Engine.Execute(h, in, out)
}

func newTestWeb(eng engine.Engine, fusion bool) *Web {
	return New(eng,
		compcache.NewSet(compcache.DefaultCapacity),
		compcache.NewFoldCache(compcache.DefaultFoldCapacity),
		fusion)
}

func fill(data []float32, seed int) {
	for i := range data {
		data[i] = float32((i*31+seed*17+7)%13) - 6
	}
}

// convScenario returns a convolution over [1,3,8,8] x [4,3,3,3] with
// stride 1 and padding 1, producing [1,4,8,8], plus freshly filled inputs
// and an unmaterialized output.
func convScenario(withBias bool) (engine.ConvConfig, []*tensor.Tensor, *tensor.Tensor) {
	src := tensor.New(tensor.MustDescriptor(tensor.Dims{1, 3, 8, 8}, tensor.Float32, tensor.NCHW))
	weights := tensor.New(tensor.MustDescriptor(tensor.Dims{4, 3, 3, 3}, tensor.Float32, tensor.OIHW))
	fill(src.Float32s(), 1)
	fill(weights.Float32s(), 2)
	cfg := engine.ConvConfig{
		Src:      src.Desc(),
		Weights:  weights.Desc(),
		Dst:      tensor.MustDescriptor(tensor.Dims{1, 4, 8, 8}, tensor.Float32, tensor.NCHW),
		Strides:  [2]int{1, 1},
		Padding:  [2]int{1, 1},
		Dilation: [2]int{1, 1},
		Groups:   1,
	}
	in := []*tensor.Tensor{src, weights}
	if withBias {
		bias := tensor.New(tensor.MustDescriptor(tensor.Dims{4}, tensor.Float32, tensor.Vec))
		fill(bias.Float32s(), 3)
		cfg.HasBias = true
		cfg.Bias = bias.Desc()
		in = append(in, bias)
	}
	return cfg, in, tensor.Describe(cfg.Dst)
}

func enqueueRelu(w *Web, src *tensor.Tensor) (*Node, *tensor.Tensor) {
	cfg := engine.EltwiseConfig{Src: src.Desc(), Algo: engine.ReLU}
	out := tensor.Describe(src.Desc())
	return w.Enqueue(cfg, []*tensor.Tensor{src}, []*tensor.Tensor{out}), out
}

func statVec(values []float32) *tensor.Tensor {
	desc := tensor.MustDescriptor(tensor.Dims{len(values)}, tensor.Float32, tensor.Vec)
	return tensor.NewFloat32(desc, values)
}

func requireClose(t *testing.T, want, got []float32, tol float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.InDelta(t, want[i], got[i], tol, "element %d", i)
	}
}

func TestEnqueueDefersExecution(t *testing.T) {
	rec := record()
	w := newTestWeb(rec, false)

	cfg, in, out := convScenario(false)
	n := w.Enqueue(cfg, in, []*tensor.Tensor{out})

	assert.Equal(t, Pending, n.State())
	assert.False(t, out.Materialized())
	assert.Equal(t, 1, w.Pending())
	assert.Empty(t, rec.fired)

	require.NoError(t, w.Materialize(out))
	assert.Equal(t, Fired, n.State())
	assert.True(t, out.Materialized())
	assert.Equal(t, 0, w.Pending())
	assert.Equal(t, []engine.Kind{engine.Conv2D}, rec.fired)
}

func TestMaterializeIsIdempotent(t *testing.T) {
	rec := record()
	w := newTestWeb(rec, false)

	cfg, in, out := convScenario(false)
	w.Enqueue(cfg, in, []*tensor.Tensor{out})

	require.NoError(t, w.Materialize(out))
	require.NoError(t, w.Materialize(out))
	assert.Equal(t, []engine.Kind{engine.Conv2D}, rec.fired)
}

func TestMaterializeOfConstantIsNoOp(t *testing.T) {
	w := newTestWeb(record(), false)
	constant := tensor.New(tensor.MustDescriptor(tensor.Dims{4}, tensor.Float32, tensor.Vec))
	require.NoError(t, w.Materialize(constant))
}

func TestMaterializeWithoutProducerFails(t *testing.T) {
	w := newTestWeb(record(), false)
	orphan := tensor.Describe(tensor.MustDescriptor(tensor.Dims{4}, tensor.Float32, tensor.Vec))
	require.ErrorContains(t, w.Materialize(orphan), "no producer")
}

func TestFlushFiresInEnqueueOrder(t *testing.T) {
	rec := record()
	w := newTestWeb(rec, false)

	desc := tensor.MustDescriptor(tensor.Dims{2, 6}, tensor.Float32, tensor.NC)
	a := tensor.New(desc)
	b := tensor.New(desc)
	fill(a.Float32s(), 4)
	fill(b.Float32s(), 5)

	_, _ = enqueueRelu(w, a)
	w.Enqueue(engine.SoftmaxConfig{Src: b.Desc(), Axis: 1},
		[]*tensor.Tensor{b}, []*tensor.Tensor{tensor.Describe(desc)})
	w.Enqueue(engine.SumConfig{
		Srcs:   []tensor.Descriptor{desc, desc},
		Coeffs: []float32{1, 1},
		Dst:    desc,
	}, []*tensor.Tensor{a, b}, []*tensor.Tensor{tensor.Describe(desc)})

	require.NoError(t, w.Flush())
	assert.Equal(t, []engine.Kind{engine.Eltwise, engine.Softmax, engine.Sum}, rec.fired)
	assert.Equal(t, 0, w.Pending())
}

func TestMaterializeFiresDependenciesFirst(t *testing.T) {
	rec := record()
	w := newTestWeb(rec, false)

	cfg, in, mid := convScenario(false)
	w.Enqueue(cfg, in, []*tensor.Tensor{mid})

	poolCfg := engine.PoolConfig{
		Src:     mid.Desc(),
		Dst:     tensor.MustDescriptor(tensor.Dims{1, 4, 4, 4}, tensor.Float32, tensor.NCHW),
		Algo:    engine.MaxPool,
		Kernel:  [2]int{2, 2},
		Strides: [2]int{2, 2},
	}
	pooled := tensor.Describe(poolCfg.Dst)
	w.Enqueue(poolCfg, []*tensor.Tensor{mid}, []*tensor.Tensor{pooled})

	require.NoError(t, w.Materialize(pooled))
	assert.Equal(t, []engine.Kind{engine.Conv2D, engine.Pool2D}, rec.fired)
	assert.True(t, mid.Materialized())
	assert.True(t, pooled.Materialized())
}

func TestFlushPropagatesFirstError(t *testing.T) {
	w := newTestWeb(record(), false)

	cfg, in, out := convScenario(false)
	cfg.Strides = [2]int{0, 0}
	n := w.Enqueue(cfg, in, []*tensor.Tensor{out})

	err := w.Flush()
	require.Error(t, err)
	var consErr *engine.ConstructionError
	require.ErrorAs(t, err, &consErr)
	assert.Equal(t, Discarded, n.State())
}

func TestFailedNodeStaysFailed(t *testing.T) {
	w := newTestWeb(record(), false)

	cfg, in, out := convScenario(false)
	cfg.Strides = [2]int{0, 0}
	w.Enqueue(cfg, in, []*tensor.Tensor{out})

	require.Error(t, w.Materialize(out))
	require.ErrorContains(t, w.Materialize(out), "previously failed")
	assert.False(t, out.Materialized())
}

func TestDependencyFailurePropagates(t *testing.T) {
	w := newTestWeb(record(), false)

	cfg, in, mid := convScenario(false)
	cfg.Strides = [2]int{0, 0}
	w.Enqueue(cfg, in, []*tensor.Tensor{mid})
	_, out := enqueueRelu(w, mid)

	require.Error(t, w.Materialize(out))
	assert.False(t, out.Materialized())
}

func TestCloseDiscardsPending(t *testing.T) {
	rec := record()
	w := newTestWeb(rec, false)

	cfg, in, out := convScenario(false)
	n := w.Enqueue(cfg, in, []*tensor.Tensor{out})
	w.Close()

	assert.Equal(t, Discarded, n.State())
	assert.Equal(t, 0, w.Pending())
	assert.False(t, out.Materialized())
	assert.Empty(t, rec.fired)
	require.NoError(t, w.Flush())
	require.ErrorContains(t, w.Materialize(out), "no producer")
}

func TestChainedValuesMatchDirectExecution(t *testing.T) {
	// Same tensors through a lazy graph and through immediate
	// materialization must yield identical values.
	lazy := newTestWeb(record(), false)
	eager := newTestWeb(record(), false)

	cfg, in, lazyMid := convScenario(true)
	lazyNode := lazy.Enqueue(cfg, in, []*tensor.Tensor{lazyMid})
	_, lazyOut := enqueueRelu(lazy, lazyMid)

	eagerMid := tensor.Describe(cfg.Dst)
	eager.Enqueue(cfg, in, []*tensor.Tensor{eagerMid})
	require.NoError(t, eager.Materialize(eagerMid))
	_, eagerOut := enqueueRelu(eager, eagerMid)
	require.NoError(t, eager.Materialize(eagerOut))

	require.NoError(t, lazy.Flush())
	assert.Equal(t, Fired, lazyNode.State())
	requireClose(t, eagerOut.Float32s(), lazyOut.Float32s(), 0)
}
