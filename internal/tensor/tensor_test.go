package tensor

import (
	"math/rand"
	"testing"
)

func TestShapeNumElements(t *testing.T) {
	if n := (Shape{2, 3, 4}).NumElements(); n != 24 {
		t.Errorf("NumElements() = %d, want 24", n)
	}
	if n := (Shape{}).NumElements(); n != 1 {
		t.Errorf("NumElements() on empty shape = %d, want 1", n)
	}
}

func TestShapeEqual(t *testing.T) {
	if !(Shape{2, 3}).Equal(Shape{2, 3}) {
		t.Error("Equal shapes reported unequal")
	}
	if (Shape{2, 3}).Equal(Shape{3, 2}) {
		t.Error("Unequal shapes reported equal")
	}
	if (Shape{2}).Equal(Shape{2, 1}) {
		t.Error("Shapes of different rank reported equal")
	}
}

func TestFromSlice(t *testing.T) {
	x, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}
	if !x.Shape().Equal(Shape{2, 3}) {
		t.Errorf("Shape() = %v, want [2, 3]", x.Shape())
	}
	if x.Row(1)[2] != 6 {
		t.Errorf("Row(1)[2] = %f, want 6", x.Row(1)[2])
	}

	if _, err := FromSlice([]float32{1, 2}, Shape{2, 3}); err == nil {
		t.Error("FromSlice with mismatched length should fail")
	}
}

func TestFromSliceCopies(t *testing.T) {
	src := []float32{1, 2}
	x, _ := FromSlice(src, Shape{2})
	src[0] = 99
	if x.Data()[0] != 1 {
		t.Error("FromSlice must copy its input")
	}
}

func TestTranspose(t *testing.T) {
	x, _ := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	xt := x.Transpose()
	if !xt.Shape().Equal(Shape{3, 2}) {
		t.Fatalf("Transpose shape = %v, want [3, 2]", xt.Shape())
	}
	want := []float32{1, 4, 2, 5, 3, 6}
	for i, v := range xt.Data() {
		if v != want[i] {
			t.Errorf("Transpose data[%d] = %f, want %f", i, v, want[i])
		}
	}
}

func TestArgmaxRows(t *testing.T) {
	x, _ := FromSlice([]float32{0.1, 0.9, 0.0, 0.7, 0.2, 0.1}, Shape{2, 3})
	got := x.ArgmaxRows()
	if got[0] != 1 || got[1] != 0 {
		t.Errorf("ArgmaxRows() = %v, want [1 0]", got)
	}
}

func TestUniform(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	x := Uniform(Shape{1000}, -0.5, 0.5, rng)
	for _, v := range x.Data() {
		if v < -0.5 || v >= 0.5 {
			t.Fatalf("Uniform value %f outside [-0.5, 0.5)", v)
		}
	}

	// Same seed, same draws.
	a := Uniform(Shape{10}, 0, 1, rand.New(rand.NewSource(3)))
	b := Uniform(Shape{10}, 0, 1, rand.New(rand.NewSource(3)))
	for i := range a.Data() {
		if a.Data()[i] != b.Data()[i] {
			t.Fatal("Uniform with identical seeds must produce identical tensors")
		}
	}
}

func TestClone(t *testing.T) {
	x, _ := FromSlice([]float32{1, 2}, Shape{2})
	y := x.Clone()
	y.Data()[0] = 42
	if x.Data()[0] != 1 {
		t.Error("Clone must not share its buffer")
	}
}
