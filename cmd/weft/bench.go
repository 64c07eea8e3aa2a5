// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/weft-ml/weft/engine/native"
	"github.com/weft-ml/weft/ops"
	"github.com/weft-ml/weft/tensor"
)

// benchResult carries one stream's timings back to the reporter.
type benchResult struct {
	cold time.Duration
	warm time.Duration // total across the remaining iterations
}

func runBench(cmd *cobra.Command, _ []string) error {
	streams, _ := cmd.Flags().GetInt("streams")
	iters, _ := cmd.Flags().GetInt("iters")
	batch, _ := cmd.Flags().GetInt("batch")
	size, _ := cmd.Flags().GetInt("size")
	eager, _ := cmd.Flags().GetBool("eager")
	noFusion, _ := cmd.Flags().GetBool("no-fusion")

	if streams < 1 || iters < 2 {
		return fmt.Errorf("need at least 1 stream and 2 iterations, got %d and %d", streams, iters)
	}
	if batch < 1 {
		return fmt.Errorf("batch must be positive, got %d", batch)
	}
	if size < 4 || size%2 != 0 {
		return fmt.Errorf("size must be even and at least 4, got %d", size)
	}

	cfg := ops.DefaultConfig()
	cfg.Lazy = !eager
	cfg.Fusion = !noFusion

	mode := "lazy with fusion"
	switch {
	case eager:
		mode = "eager"
	case noFusion:
		mode = "lazy, fusion off"
	}

	fmt.Printf("weft bench: conv/relu/pool, %s\n", mode)
	fmt.Printf("%d streams x %d iterations, input [%d,3,%d,%d], %d CPUs\n\n",
		streams, iters, batch, size, size, runtime.NumCPU())

	// One engine serves every stream; each stream owns its caches and runs
	// on its own goroutine.
	eng := native.New()
	results := make([]benchResult, streams)

	wall := time.Now()
	var g errgroup.Group
	for i := 0; i < streams; i++ {
		i := i
		g.Go(func() error {
			//nolint:gosec // math/rand is appropriate for synthetic bench inputs
			rng := rand.New(rand.NewSource(int64(i) + 1))
			src := randomTensor(rng, tensor.Dims{batch, 3, size, size}, tensor.NCHW)
			w := randomTensor(rng, tensor.Dims{demoChannels, 3, 3, 3}, tensor.OIHW)
			b := randomTensor(rng, tensor.Dims{demoChannels}, tensor.Vec)

			s := ops.NewStreamWithConfig(eng, cfg)
			defer s.Close()

			for n := 0; n < iters; n++ {
				start := time.Now()
				if err := pipeline(s, src, w, b); err != nil {
					return err
				}
				if n == 0 {
					results[i].cold = time.Since(start)
				} else {
					results[i].warm += time.Since(start)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(wall)

	var cold, warm time.Duration
	for _, r := range results {
		cold += r.cold
		warm += r.warm
	}
	avgCold := cold / time.Duration(streams)
	avgWarm := warm / time.Duration(streams*(iters-1))

	fmt.Printf("first pass    %12v per stream, compiles the pipeline\n", avgCold.Round(time.Microsecond))
	fmt.Printf("steady state  %12v per pass, cache reuse\n", avgWarm.Round(time.Microsecond))
	fmt.Printf("throughput    %12.1f passes/s\n", float64(streams*iters)/elapsed.Seconds())
	fmt.Printf("wall time     %12v\n", elapsed.Round(time.Millisecond))
	return nil
}

// pipeline runs one conv/relu/pool pass to a materialized result.
func pipeline(s *ops.Stream, src, w, b *tensor.Tensor) error {
	y, err := s.Conv2D(src, w, b, ops.ConvAttr{Padding: [2]int{1, 1}})
	if err != nil {
		return err
	}
	y, err = s.ReLU(y)
	if err != nil {
		return err
	}
	p, err := s.MaxPool2D(y, ops.PoolAttr{Kernel: [2]int{2, 2}})
	if err != nil {
		return err
	}
	return s.Materialize(p)
}
