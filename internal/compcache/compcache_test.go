package compcache_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/weft-ml/weft/internal/compcache"
	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/engine/native"
	"github.com/weft-ml/weft/internal/fingerprint"
	"github.com/weft-ml/weft/internal/tensor"
)

func convConfig(spatial int) engine.ConvConfig {
	dims := tensor.Dims{1, 3, spatial, spatial}
	return engine.ConvConfig{
		Src:      tensor.MustDescriptor(dims, tensor.Float32, tensor.NCHW),
		Weights:  tensor.MustDescriptor(tensor.Dims{4, 3, 3, 3}, tensor.Float32, tensor.OIHW),
		Dst:      tensor.MustDescriptor(tensor.Dims{1, 4, spatial, spatial}, tensor.Float32, tensor.NCHW),
		Strides:  [2]int{1, 1},
		Padding:  [2]int{1, 1},
		Dilation: [2]int{1, 1},
		Groups:   1,
	}
}

func eltwiseConfig(alpha float32) engine.EltwiseConfig {
	return engine.EltwiseConfig{
		Src:   tensor.MustDescriptor(tensor.Dims{8}, tensor.Float32, tensor.Vec),
		Algo:  engine.ReLU,
		Alpha: alpha,
	}
}

func TestFetchOrBuildReusesComputation(t *testing.T) {
	eng := native.New()
	set := compcache.NewSet(8)

	first, err := set.FetchOrBuild(eng, convConfig(8))
	require.NoError(t, err)
	second, err := set.FetchOrBuild(eng, convConfig(8))
	require.NoError(t, err)

	// Identical configurations must share one compiled computation.
	assert.Same(t, first, second)
	assert.Equal(t, 1, set.For(engine.Conv2D).Len())

	other, err := set.FetchOrBuild(eng, convConfig(16))
	require.NoError(t, err)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, set.For(engine.Conv2D).Len())
}

func TestFetchOrCreateRunsCreateOncePerKey(t *testing.T) {
	eng := native.New()
	cache := compcache.NewCache(engine.Eltwise, 4)
	cfg := eltwiseConfig(0)
	key := cfg.Fingerprint()

	builds := 0
	create := func() (*compcache.Computation, error) {
		builds++
		h, err := eng.Build(cfg)
		if err != nil {
			return nil, err
		}
		return compcache.NewComputation(key, h), nil
	}

	for i := 0; i < 3; i++ {
		_, err := cache.FetchOrCreate(key, create)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, builds)
}

func TestFailedConstructionIsNotCached(t *testing.T) {
	cache := compcache.NewCache(engine.Eltwise, 4)
	key := fingerprint.NewBuilder().Str("broken").Key()

	attempts := 0
	boom := errors.New("transient failure")
	create := func() (*compcache.Computation, error) {
		attempts++
		if attempts == 1 {
			return nil, boom
		}
		return compcache.NewComputation(key, nil), nil
	}

	_, err := cache.FetchOrCreate(key, create)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cache.Len())

	_, err = cache.FetchOrCreate(key, create)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, cache.Len())
}

func TestEvictionDoesNotInvalidateBorrowedComputation(t *testing.T) {
	eng := native.New()
	cache := compcache.NewCache(engine.Eltwise, 1)

	borrowed, err := cache.FetchOrBuild(eng, eltwiseConfig(0))
	require.NoError(t, err)

	_, err = cache.FetchOrBuild(eng, eltwiseConfig(0.5))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	// The evicted computation still executes.
	desc := borrowed.ExpectedInputs()[0]
	src := tensor.NewFloat32(desc, []float32{-1, 2, -3, 4, -5, 6, -7, 8})
	dst := tensor.New(borrowed.ExpectedOutputs()[0])
	require.NoError(t, borrowed.Execute(eng, []*tensor.Tensor{src}, []*tensor.Tensor{dst}))
	assert.Equal(t, float32(0), dst.Float32s()[0])
	assert.Equal(t, float32(2), dst.Float32s()[1])

	// Re-fetching after eviction compiles a fresh computation.
	again, err := cache.FetchOrBuild(eng, eltwiseConfig(0))
	require.NoError(t, err)
	assert.NotSame(t, borrowed, again)
}

func TestSetKeepsKindsSeparate(t *testing.T) {
	eng := native.New()
	set := compcache.NewSet(8)

	_, err := set.FetchOrBuild(eng, convConfig(8))
	require.NoError(t, err)
	_, err = set.FetchOrBuild(eng, eltwiseConfig(0))
	require.NoError(t, err)

	assert.Equal(t, 1, set.For(engine.Conv2D).Len())
	assert.Equal(t, 1, set.For(engine.Eltwise).Len())
	assert.Equal(t, 2, set.Len())

	set.Purge()
	assert.Equal(t, 0, set.Len())
}

func TestFetchOrBuildRejectsForeignKind(t *testing.T) {
	eng := native.New()
	cache := compcache.NewCache(engine.Conv2D, 4)
	assert.Panics(t, func() {
		_, _ = cache.FetchOrBuild(eng, eltwiseConfig(0))
	})
}

func TestNeedsConversionIsExactInequality(t *testing.T) {
	eng := native.New()
	set := compcache.NewSet(8)
	comp, err := set.FetchOrBuild(eng, convConfig(8))
	require.NoError(t, err)

	exact := comp.ExpectedInputs()[0]
	assert.False(t, comp.NeedsConversion(0, exact))

	nhwc, err := exact.WithLayout(tensor.NHWC)
	require.NoError(t, err)
	assert.True(t, comp.NeedsConversion(0, nhwc))

	half := exact.WithDType(tensor.Float16)
	assert.True(t, comp.NeedsConversion(0, half))
}

// Streams that share a cache set serialize around it with their own lock;
// under that discipline a key still builds exactly once.
func TestSharedSetWithExternalLock(t *testing.T) {
	cache := compcache.NewCache(engine.Eltwise, 8)
	key := fingerprint.NewBuilder().Str("shared").Key()

	var mu sync.Mutex
	var builds atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			mu.Lock()
			defer mu.Unlock()
			_, err := cache.FetchOrCreate(key, func() (*compcache.Computation, error) {
				builds.Add(1)
				return compcache.NewComputation(key, nil), nil
			})
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), builds.Load())
}
