package data

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/szhang963/HighPerfNNI/internal/tensor"
)

// Batch is one mini-batch of inputs and labels with matching leading
// count. Batches are produced per iteration and not retained.
type Batch struct {
	Images *tensor.Tensor // [size, features]
	Labels []int32        // [size]
	Size   int
}

// Transform mutates one sample in place before batching, drawing any
// randomness from the worker-local rng.
type Transform func(sample []float32, rng *rand.Rand)

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	BatchSize int
	Shuffle   bool // reshuffle sample order before every epoch
	DropLast  bool // drop the final partial batch
	Seed      int64
	Workers   int // prefetch goroutines (0 = assemble batches inline)
	Transform Transform
}

// Loader serves a Dataset as an ordered, finite, one-shot-per-epoch
// sequence of batches. The shuffle order is drawn from a private rng
// seeded once from the config, so a fixed seed reproduces the exact
// data ordering across runs. Batch assembly can be spread over prefetch
// workers; delivery order is always the same regardless of worker count.
type Loader struct {
	ds  *Dataset
	cfg LoaderConfig
	rng *rand.Rand
}

// WorkerSeed derives the deterministic seed for a prefetch worker from
// the base seed and the worker index.
func WorkerSeed(base int64, worker int) int64 {
	return base + int64(worker)
}

// NewLoader creates a Loader over ds.
func NewLoader(ds *Dataset, cfg LoaderConfig) (*Loader, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("data: batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("data: worker count must be non-negative, got %d", cfg.Workers)
	}
	return &Loader{
		ds:  ds,
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// NumBatches returns the number of batches one epoch yields.
func (l *Loader) NumBatches() int {
	n := l.ds.Len() / l.cfg.BatchSize
	if !l.cfg.DropLast && l.ds.Len()%l.cfg.BatchSize != 0 {
		n++
	}
	return n
}

// DatasetSize returns the size of the underlying dataset, including any
// samples a dropped partial batch would skip. Progress logs use this as
// the epoch denominator.
func (l *Loader) DatasetSize() int { return l.ds.Len() }

// SampleCount returns how many samples one epoch visits (excludes a
// dropped partial batch).
func (l *Loader) SampleCount() int {
	if l.cfg.DropLast {
		return l.NumBatches() * l.cfg.BatchSize
	}
	return l.ds.Len()
}

// Batches starts one epoch and returns its batch sequence. The channel
// is closed after the last batch. Canceling ctx releases the assembly
// goroutines of an epoch the consumer abandons early.
func (l *Loader) Batches(ctx context.Context) <-chan *Batch {
	order := make([]int, l.ds.Len())
	for i := range order {
		order[i] = i
	}
	if l.cfg.Shuffle {
		l.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	numBatches := l.NumBatches()
	batchAt := func(b int) []int {
		lo := b * l.cfg.BatchSize
		hi := lo + l.cfg.BatchSize
		if hi > len(order) {
			hi = len(order)
		}
		return order[lo:hi]
	}

	send := func(ch chan<- *Batch, batch *Batch) bool {
		select {
		case ch <- batch:
			return true
		case <-ctx.Done():
			return false
		}
	}

	out := make(chan *Batch, 1)
	if l.cfg.Workers == 0 {
		rng := rand.New(rand.NewSource(WorkerSeed(l.cfg.Seed, 0)))
		go func() {
			defer close(out)
			for b := 0; b < numBatches; b++ {
				if !send(out, l.makeBatch(batchAt(b), rng)) {
					return
				}
			}
		}()
		return out
	}

	// Worker w assembles batches w, w+workers, ... into its own channel;
	// the merger drains the channels round-robin so the delivered order
	// matches the shuffle order exactly.
	workers := l.cfg.Workers
	lanes := make([]chan *Batch, workers)
	for w := 0; w < workers; w++ {
		lane := make(chan *Batch, 1)
		lanes[w] = lane
		rng := rand.New(rand.NewSource(WorkerSeed(l.cfg.Seed, w)))
		go func(w int) {
			defer close(lane)
			for b := w; b < numBatches; b += workers {
				if !send(lane, l.makeBatch(batchAt(b), rng)) {
					return
				}
			}
		}(w)
	}
	go func() {
		defer close(out)
		for b := 0; b < numBatches; b++ {
			batch, ok := <-lanes[b%workers]
			if !ok || !send(out, batch) {
				return
			}
		}
	}()
	return out
}

func (l *Loader) makeBatch(indices []int, rng *rand.Rand) *Batch {
	features := len(l.ds.Images[0])
	images := tensor.New(tensor.Shape{len(indices), features})
	labels := make([]int32, len(indices))
	buf := images.Data()
	for i, idx := range indices {
		row := buf[i*features : (i+1)*features]
		copy(row, l.ds.Images[idx])
		if l.cfg.Transform != nil {
			l.cfg.Transform(row, rng)
		}
		labels[i] = l.ds.Labels[idx]
	}
	return &Batch{Images: images, Labels: labels, Size: len(indices)}
}
