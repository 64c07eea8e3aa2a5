package native

import (
	"fmt"
	"math"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/parallel"
	"github.com/weft-ml/weft/internal/tensor"
)

// Elementwise operators are layout-blind: every layout orders the same
// logical elements, so the kernel runs over the flat buffer and the expected
// descriptors keep whatever layout the caller provided.
func (e *Engine) buildEltwise(c engine.EltwiseConfig) (engine.Handle, error) {
	if c.Algo > engine.Linear {
		return nil, &engine.UnsupportedConfigurationError{
			Op: c.Kind(), Detail: fmt.Sprintf("eltwise algorithm %d", c.Algo),
		}
	}
	d := c.Src.WithDType(tensor.Float32)
	return &handle{cfg: c, in: []tensor.Descriptor{d}, out: []tensor.Descriptor{d}}, nil
}

func (e *Engine) execEltwise(c engine.EltwiseConfig, in, out []*tensor.Tensor) {
	applyEltwiseF32(out[0].Float32s(), in[0].Float32s(), c.Algo, c.Alpha, c.Beta, e.cfg.Parallel)
}

// applyEltwiseF32 applies one activation over a flat buffer. dst and src may
// alias. Alpha is the negative slope for ReLU and the gain for Linear; Beta
// is the Linear offset.
func applyEltwiseF32(dst, src []float32, algo engine.EltwiseAlgo, alpha, beta float32, cfg parallel.Config) {
	switch algo {
	case engine.ReLU:
		parallel.For(len(src), func(i int) {
			if v := src[i]; v > 0 {
				dst[i] = v
			} else {
				dst[i] = alpha * v
			}
		}, cfg)
	case engine.Tanh:
		parallel.For(len(src), func(i int) {
			dst[i] = float32(math.Tanh(float64(src[i])))
		}, cfg)
	case engine.Sigmoid:
		parallel.For(len(src), func(i int) {
			dst[i] = float32(1 / (1 + math.Exp(float64(-src[i]))))
		}, cfg)
	case engine.Linear:
		parallel.For(len(src), func(i int) {
			dst[i] = alpha*src[i] + beta
		}, cfg)
	default:
		panic(fmt.Sprintf("native: unhandled eltwise algorithm %d", algo))
	}
}
