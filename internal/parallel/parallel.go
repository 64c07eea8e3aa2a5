// Package parallel provides the chunked worker pool the native engine uses
// for its elementwise and per-image kernel loops. The parallelism stays
// inside one engine call: For returns only when every chunk has finished,
// so nothing above the engine observes any ordering difference.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how kernel loops are split across goroutines.
type Config struct {
	Enabled      bool // whether loops may run concurrently at all
	NumWorkers   int  // goroutines per loop
	MinChunkSize int  // smallest per-goroutine range worth the handoff
}

// DefaultConfig sizes the pool from the CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// For executes f(i) for i in [0, n), splitting the range into chunks when
// the config allows it and the range is large enough to pay for the
// goroutine handoff. Small or disabled runs stay on the calling goroutine.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || n < cfg.MinChunkSize {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForBatch runs f over a batch*channels index space, the iteration shape of
// the image kernels (convolution, pooling, normalization).
func ForBatch(batch, channels int, f func(b, c int), cfg Config) {
	n := batch * channels
	For(n, func(k int) {
		f(k/channels, k%channels)
	}, cfg)
}
