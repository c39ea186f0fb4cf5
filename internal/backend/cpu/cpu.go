// Package cpu implements the reference compute backend.
//
// MatMul has two code paths: a fixed-order serial kernel used in
// deterministic mode, and an auto-tuned blocked kernel that benchmarks
// candidate tile sizes per shape on first use. The tuned kernel changes
// the floating-point accumulation order depending on which tile wins the
// benchmark, which is exactly the kind of run-to-run nondeterminism the
// determinism setter exists to switch off.
package cpu

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/szhang963/HighPerfNNI/internal/tensor"
)

// Backend is the CPU compute backend.
type Backend struct {
	mu            sync.Mutex
	deterministic bool
	workers       int
	tuned         map[matmulShape]int // winning k-tile per shape
}

type matmulShape struct{ m, k, n int }

// candidate k-tile sizes for the auto-tuned kernel.
var kTiles = []int{64, 128, 256}

// New creates a CPU backend using all available cores.
func New() *Backend {
	return &Backend{
		workers: runtime.GOMAXPROCS(0),
		tuned:   make(map[matmulShape]int),
	}
}

func (b *Backend) Name() string          { return "CPU" }
func (b *Backend) Device() tensor.Device { return tensor.CPU }

// SetDeterministic pins MatMul to the serial fixed-order kernel.
func (b *Backend) SetDeterministic(on bool) {
	b.mu.Lock()
	b.deterministic = on
	b.mu.Unlock()
}

// MatMul computes a @ b for [M,K] @ [K,N] -> [M,N].
// Panics on shape mismatch; shape errors here are programmer errors.
func (b *Backend) MatMul(a, c *tensor.Tensor) *tensor.Tensor {
	as, cs := a.Shape(), c.Shape()
	if len(as) != 2 || len(cs) != 2 {
		panic(fmt.Sprintf("cpu: MatMul needs 2D tensors, got %v and %v", as, cs))
	}
	if as[1] != cs[0] {
		panic(fmt.Sprintf("cpu: MatMul inner dimension mismatch: %v @ %v", as, cs))
	}
	m, k, n := as[0], as[1], cs[1]
	out := tensor.New(tensor.Shape{m, n})

	b.mu.Lock()
	deterministic := b.deterministic
	b.mu.Unlock()

	if deterministic || m*k*n < 1<<16 {
		matmulSerial(a.Data(), c.Data(), out.Data(), m, k, n)
		return out
	}

	tile := b.tuneTile(a, c, m, k, n)
	b.matmulBlocked(a.Data(), c.Data(), out.Data(), m, k, n, tile)
	return out
}

// tuneTile returns the cached k-tile for this shape, benchmarking the
// candidates the first time the shape is seen.
func (b *Backend) tuneTile(a, c *tensor.Tensor, m, k, n int) int {
	shape := matmulShape{m, k, n}
	b.mu.Lock()
	if tile, ok := b.tuned[shape]; ok {
		b.mu.Unlock()
		return tile
	}
	b.mu.Unlock()

	best, bestTime := kTiles[0], time.Duration(1<<62)
	scratch := make([]float32, m*n)
	for _, tile := range kTiles {
		start := time.Now()
		b.matmulBlocked(a.Data(), c.Data(), scratch, m, k, n, tile)
		if elapsed := time.Since(start); elapsed < bestTime {
			best, bestTime = tile, elapsed
		}
	}

	b.mu.Lock()
	b.tuned[shape] = best
	b.mu.Unlock()
	return best
}

// matmulSerial is the fixed-order reference kernel: each output element
// accumulates over k in strictly increasing order.
func matmulSerial(a, c, out []float32, m, k, n int) {
	for i := 0; i < m; i++ {
		arow := a[i*k : (i+1)*k]
		orow := out[i*n : (i+1)*n]
		for j := range orow {
			orow[j] = 0
		}
		for kk := 0; kk < k; kk++ {
			av := arow[kk]
			if av == 0 {
				continue
			}
			crow := c[kk*n : (kk+1)*n]
			for j := 0; j < n; j++ {
				orow[j] += av * crow[j]
			}
		}
	}
}

// matmulBlocked splits the k dimension into tiles, accumulating each
// tile into a partial sum before folding it into the output row. Rows
// are distributed across worker goroutines.
func (b *Backend) matmulBlocked(a, c, out []float32, m, k, n, tile int) {
	var wg sync.WaitGroup
	rowsPer := (m + b.workers - 1) / b.workers
	for w := 0; w < b.workers; w++ {
		lo := w * rowsPer
		hi := lo + rowsPer
		if hi > m {
			hi = m
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			partial := make([]float32, n)
			for i := lo; i < hi; i++ {
				arow := a[i*k : (i+1)*k]
				orow := out[i*n : (i+1)*n]
				for j := range orow {
					orow[j] = 0
				}
				for k0 := 0; k0 < k; k0 += tile {
					k1 := k0 + tile
					if k1 > k {
						k1 = k
					}
					for j := range partial {
						partial[j] = 0
					}
					for kk := k0; kk < k1; kk++ {
						av := arow[kk]
						if av == 0 {
							continue
						}
						crow := c[kk*n : (kk+1)*n]
						for j := 0; j < n; j++ {
							partial[j] += av * crow[j]
						}
					}
					for j := 0; j < n; j++ {
						orow[j] += partial[j]
					}
				}
			}
		}(lo, hi)
	}
	wg.Wait()
}
