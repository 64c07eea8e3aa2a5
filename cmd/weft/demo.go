// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/weft-ml/weft/engine/native"
	"github.com/weft-ml/weft/ops"
	"github.com/weft-ml/weft/tensor"
)

const demoChannels = 16

// demoNet bundles the parameters of a small residual block. The same
// parameters run on any stream, so fused and unfused passes are directly
// comparable.
type demoNet struct {
	src    *tensor.Tensor
	w1, b1 *tensor.Tensor
	w2, w3 *tensor.Tensor

	scale, shift, mean, variance *tensor.Tensor
}

func newDemoNet(rng *rand.Rand, batch, size int) demoNet {
	return demoNet{
		src:      randomTensor(rng, tensor.Dims{batch, 3, size, size}, tensor.NCHW),
		w1:       randomTensor(rng, tensor.Dims{demoChannels, 3, 3, 3}, tensor.OIHW),
		b1:       randomTensor(rng, tensor.Dims{demoChannels}, tensor.Vec),
		w2:       randomTensor(rng, tensor.Dims{demoChannels, demoChannels, 3, 3}, tensor.OIHW),
		w3:       randomTensor(rng, tensor.Dims{demoChannels, demoChannels, 3, 3}, tensor.OIHW),
		scale:    positiveTensor(rng, demoChannels),
		shift:    randomTensor(rng, tensor.Dims{demoChannels}, tensor.Vec),
		mean:     randomTensor(rng, tensor.Dims{demoChannels}, tensor.Vec),
		variance: positiveTensor(rng, demoChannels),
	}
}

// forward runs the block. On a lazy stream the rectifier folds into the
// first convolution, the normalization statistics fold into the second
// convolution's weights, and the third convolution accumulates straight
// into the pooled shortcut.
func (n demoNet) forward(s *ops.Stream) (*tensor.Tensor, error) {
	y, err := s.Conv2D(n.src, n.w1, n.b1, ops.ConvAttr{Padding: [2]int{1, 1}})
	if err != nil {
		return nil, err
	}
	y, err = s.ReLU(y)
	if err != nil {
		return nil, err
	}
	p, err := s.MaxPool2D(y, ops.PoolAttr{Kernel: [2]int{2, 2}})
	if err != nil {
		return nil, err
	}
	// The residual destination has to hold real values before the
	// accumulating convolution fires.
	if err := s.Materialize(p); err != nil {
		return nil, err
	}

	z, err := s.Conv2D(p, n.w2, nil, ops.ConvAttr{Padding: [2]int{1, 1}})
	if err != nil {
		return nil, err
	}
	z, err = s.BatchNormInference(z, n.scale, n.shift, n.mean, n.variance, 1e-5)
	if err != nil {
		return nil, err
	}

	r, err := s.Conv2D(z, n.w3, nil, ops.ConvAttr{Padding: [2]int{1, 1}})
	if err != nil {
		return nil, err
	}
	out, err := s.Sum([]float32{1, 1}, []*tensor.Tensor{p, r}, p)
	if err != nil {
		return nil, err
	}
	if err := s.Materialize(out); err != nil {
		return nil, err
	}
	return out, nil
}

func runDemo(cmd *cobra.Command, _ []string) error {
	batch, _ := cmd.Flags().GetInt("batch")
	size, _ := cmd.Flags().GetInt("size")
	seed, _ := cmd.Flags().GetInt64("seed")
	if batch < 1 {
		return fmt.Errorf("batch must be positive, got %d", batch)
	}
	if size < 4 || size%2 != 0 {
		return fmt.Errorf("size must be even and at least 4, got %d", size)
	}

	fmt.Println("weft demo: residual block on a lazy stream with fusion")
	fmt.Printf("input [%d,3,%d,%d] float32 NCHW, seed %d\n\n", batch, size, size, seed)

	//nolint:gosec // math/rand is appropriate for synthetic demo inputs
	net := newDemoNet(rand.New(rand.NewSource(seed)), batch, size)

	fused := ops.NewStream(native.New())
	defer fused.Close()

	start := time.Now()
	first, err := net.forward(fused)
	if err != nil {
		return err
	}
	cold := time.Since(start)

	start = time.Now()
	second, err := net.forward(fused)
	if err != nil {
		return err
	}
	warm := time.Since(start)

	fmt.Printf("first pass   %10v   compiles every computation\n", cold.Round(time.Microsecond))
	fmt.Printf("second pass  %10v   served entirely from the cache\n", warm.Round(time.Microsecond))

	// The same block, one kernel per operator.
	cfg := ops.DefaultConfig()
	cfg.Lazy = false
	plain := ops.NewStreamWithConfig(native.New(), cfg)
	defer plain.Close()

	unfused, err := net.forward(plain)
	if err != nil {
		return err
	}

	fmt.Printf("\noutput %s, checksum %.6f\n", first.Desc(), checksum(first.Float32s()))
	fmt.Printf("second pass vs first:  max abs difference %.3g\n",
		maxAbsDiff(second.Float32s(), first.Float32s()))
	fmt.Printf("fused vs unfused:      max abs difference %.3g\n",
		maxAbsDiff(first.Float32s(), unfused.Float32s()))
	return nil
}

// randomTensor allocates a tensor filled with uniform values in [-1, 1).
func randomTensor(rng *rand.Rand, dims tensor.Dims, layout tensor.Layout) *tensor.Tensor {
	t := tensor.New(tensor.MustDescriptor(dims, tensor.Float32, layout))
	data := t.Float32s()
	for i := range data {
		data[i] = rng.Float32()*2 - 1
	}
	return t
}

// positiveTensor allocates a per-channel vector in [0.5, 1.5), usable as
// batch norm scale or variance.
func positiveTensor(rng *rand.Rand, channels int) *tensor.Tensor {
	t := tensor.New(tensor.MustDescriptor(tensor.Dims{channels}, tensor.Float32, tensor.Vec))
	data := t.Float32s()
	for i := range data {
		data[i] = rng.Float32() + 0.5
	}
	return t
}

func checksum(values []float32) float64 {
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	return sum
}

func maxAbsDiff(a, b []float32) float64 {
	var worst float64
	for i := range a {
		if d := math.Abs(float64(a[i]) - float64(b[i])); d > worst {
			worst = d
		}
	}
	return worst
}
