// Package tensor provides the dense float32 tensor type used throughout
// the training pipeline.
//
// The design is deliberately small: a flat []float32 buffer plus a Shape.
// Class labels travel alongside tensors as plain []int32 slices rather than
// as a second tensor dtype. Reduced-precision storage for the mixed-precision
// path lives in half.go.
package tensor

import (
	"fmt"
	"math/rand"
	"strings"
)

// Shape represents the dimensions of a tensor.
// Shape{512, 784} is a 2D tensor with 512 rows of 784 features.
type Shape []int

// NumElements returns the product of all dimensions.
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether two shapes have identical dimensions.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Device identifies where tensor computation runs.
type Device int

const (
	CPU Device = iota
	WebGPU
)

func (d Device) String() string {
	switch d {
	case CPU:
		return "cpu"
	case WebGPU:
		return "webgpu"
	}
	return "unknown"
}

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	shape Shape
	data  []float32
}

// New creates a zero-filled tensor with the given shape.
func New(shape Shape) *Tensor {
	return &Tensor{
		shape: append(Shape(nil), shape...),
		data:  make([]float32, shape.NumElements()),
	}
}

// FromSlice creates a tensor backed by a copy of data.
// Returns an error if the data length does not match the shape.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	t := New(shape)
	copy(t.data, data)
	return t, nil
}

// Full creates a tensor filled with value.
func Full(shape Shape, value float32) *Tensor {
	t := New(shape)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// Uniform creates a tensor with values drawn from U(lo, hi) using rng.
// The rng is explicit so that parameter initialization is reproducible
// from the run seed.
func Uniform(shape Shape, lo, hi float32, rng *rand.Rand) *Tensor {
	t := New(shape)
	span := hi - lo
	for i := range t.data {
		t.data[i] = lo + rng.Float32()*span
	}
	return t
}

// Shape returns the tensor's shape. Callers must not modify it.
func (t *Tensor) Shape() Shape { return t.shape }

// Data returns the underlying buffer. Mutations are visible to all
// holders of the tensor.
func (t *Tensor) Data() []float32 { return t.data }

// NumElements returns the total element count.
func (t *Tensor) NumElements() int { return len(t.data) }

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int { return t.shape[i] }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := New(t.shape)
	copy(c.data, t.data)
	return c
}

// Row returns a view of row i of a 2D tensor.
func (t *Tensor) Row(i int) []float32 {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("tensor: Row on non-2D tensor with shape %v", t.shape))
	}
	cols := t.shape[1]
	return t.data[i*cols : (i+1)*cols]
}

// Transpose returns a new 2D tensor with rows and columns swapped.
func (t *Tensor) Transpose() *Tensor {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("tensor: Transpose on non-2D tensor with shape %v", t.shape))
	}
	rows, cols := t.shape[0], t.shape[1]
	out := New(Shape{cols, rows})
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.data[j*rows+i] = t.data[i*cols+j]
		}
	}
	return out
}

// ArgmaxRows returns, for each row of a 2D tensor, the index of its
// largest element. Used to turn log-probabilities into predicted classes.
func (t *Tensor) ArgmaxRows() []int32 {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("tensor: ArgmaxRows on non-2D tensor with shape %v", t.shape))
	}
	rows := t.shape[0]
	out := make([]int32, rows)
	for i := 0; i < rows; i++ {
		row := t.Row(i)
		best := 0
		for j := 1; j < len(row); j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		out[i] = int32(best)
	}
	return out
}
