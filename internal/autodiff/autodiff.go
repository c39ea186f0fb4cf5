// Package autodiff implements reverse-mode automatic differentiation
// with a gradient tape.
//
// Operations are methods on a Tape. Each op computes its output through
// the compute backend (or directly for cheap elementwise work), and while
// the tape is recording it also pushes a backward closure. Backward walks
// the recorded closures in reverse, accumulating gradients into the
// participating Variables via the chain rule.
//
// The tape optionally emulates a reduced-precision forward pass: with
// half mode on, every op output is rounded through float16 before the
// next op consumes it. Gradients always stay in float32.
package autodiff

import (
	"fmt"

	"github.com/szhang963/HighPerfNNI/internal/backend"
	"github.com/szhang963/HighPerfNNI/internal/tensor"
)

// Variable couples a tensor value with its accumulated gradient.
type Variable struct {
	Value        *tensor.Tensor
	grad         *tensor.Tensor
	requiresGrad bool
}

// Grad returns the accumulated gradient, or nil before any backward pass.
func (v *Variable) Grad() *tensor.Tensor { return v.grad }

// RequiresGrad reports whether backward passes accumulate into this variable.
func (v *Variable) RequiresGrad() bool { return v.requiresGrad }

// ZeroGrad drops the accumulated gradient.
func (v *Variable) ZeroGrad() { v.grad = nil }

// SetGrad replaces the gradient tensor. Used by the loss scaler to seed
// scaled backward passes in tests; normal code goes through Backward.
func (v *Variable) SetGrad(g *tensor.Tensor) { v.grad = g }

func (v *Variable) accumulate(g *tensor.Tensor) {
	if !v.requiresGrad {
		return
	}
	if v.grad == nil {
		v.grad = tensor.New(v.Value.Shape())
	}
	dst := v.grad.Data()
	for i, x := range g.Data() {
		dst[i] += x
	}
}

// Tape records operations for the backward pass.
type Tape struct {
	backend   backend.Backend
	records   []func()
	recording bool
	half      bool
}

// NewTape creates a recording tape on the given backend.
func NewTape(b backend.Backend) *Tape {
	return &Tape{backend: b, recording: true}
}

// Backend returns the compute backend the tape dispatches to.
func (t *Tape) Backend() backend.Backend { return t.backend }

// SetRecording toggles recording. With recording off the ops still
// compute values, so the same code path serves inference.
func (t *Tape) SetRecording(on bool) { t.recording = on }

// Recording reports whether ops are currently being recorded.
func (t *Tape) Recording() bool { return t.recording }

// SetHalf toggles the reduced-precision forward emulation.
func (t *Tape) SetHalf(on bool) { t.half = on }

// Reset discards all recorded operations.
func (t *Tape) Reset() { t.records = t.records[:0] }

// Variable wraps a tensor for use with tape operations.
func (t *Tape) Variable(v *tensor.Tensor, requiresGrad bool) *Variable {
	return &Variable{Value: v, requiresGrad: requiresGrad}
}

func (t *Tape) out(v *tensor.Tensor, requiresGrad bool) *Variable {
	if t.half {
		tensor.RoundHalf(v.Data())
	}
	return &Variable{Value: v, requiresGrad: requiresGrad}
}

func (t *Tape) record(backward func()) {
	if t.recording {
		t.records = append(t.records, backward)
	}
}

// MatMul computes a @ b, recording gradients for both operands:
// dA = dOut @ B^T, dB = A^T @ dOut.
func (t *Tape) MatMul(a, b *Variable) *Variable {
	out := t.out(t.backend.MatMul(a.Value, b.Value), a.requiresGrad || b.requiresGrad)
	t.record(func() {
		if out.grad == nil {
			return
		}
		if a.requiresGrad {
			a.accumulate(t.backend.MatMul(out.grad, b.Value.Transpose()))
		}
		if b.requiresGrad {
			b.accumulate(t.backend.MatMul(a.Value.Transpose(), out.grad))
		}
	})
	return out
}

// AddBias adds a bias row vector to every row of x.
func (t *Tape) AddBias(x, bias *Variable) *Variable {
	xs, bs := x.Value.Shape(), bias.Value.Shape()
	if len(xs) != 2 || len(bs) != 1 || xs[1] != bs[0] {
		panic(fmt.Sprintf("autodiff: AddBias shape mismatch: %v + %v", xs, bs))
	}
	rows, cols := xs[0], xs[1]

	v := x.Value.Clone()
	data, bdata := v.Data(), bias.Value.Data()
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]
		for j := range row {
			row[j] += bdata[j]
		}
	}

	out := t.out(v, x.requiresGrad || bias.requiresGrad)
	t.record(func() {
		if out.grad == nil {
			return
		}
		x.accumulate(out.grad)
		if bias.requiresGrad {
			bg := tensor.New(tensor.Shape{cols})
			bgd, gd := bg.Data(), out.grad.Data()
			for i := 0; i < rows; i++ {
				row := gd[i*cols : (i+1)*cols]
				for j := range row {
					bgd[j] += row[j]
				}
			}
			bias.accumulate(bg)
		}
	})
	return out
}

// ReLU applies max(0, x) elementwise.
func (t *Tape) ReLU(x *Variable) *Variable {
	v := x.Value.Clone()
	for i, val := range v.Data() {
		if val < 0 {
			v.Data()[i] = 0
		}
	}
	out := t.out(v, x.requiresGrad)
	t.record(func() {
		if !x.requiresGrad || out.grad == nil {
			return
		}
		g := tensor.New(x.Value.Shape())
		gd, xd, od := g.Data(), x.Value.Data(), out.grad.Data()
		for i := range gd {
			if xd[i] > 0 {
				gd[i] = od[i]
			}
		}
		x.accumulate(g)
	})
	return out
}

// LogSoftmax computes row-wise log-softmax with the log-sum-exp trick,
// which keeps the computation stable even for large logits.
func (t *Tape) LogSoftmax(x *Variable) *Variable {
	xs := x.Value.Shape()
	if len(xs) != 2 {
		panic(fmt.Sprintf("autodiff: LogSoftmax needs a 2D tensor, got %v", xs))
	}
	rows, cols := xs[0], xs[1]

	v := tensor.New(xs)
	for i := 0; i < rows; i++ {
		in, o := x.Value.Row(i), v.Row(i)
		logSoftmaxRow(in, o)
	}

	out := t.out(v, x.requiresGrad)
	t.record(func() {
		if !x.requiresGrad || out.grad == nil {
			return
		}
		// dx_ij = g_ij - softmax(x)_ij * sum_j g_ij
		g := tensor.New(xs)
		for i := 0; i < rows; i++ {
			grow := out.grad.Data()[i*cols : (i+1)*cols]
			yrow := out.Value.Row(i)
			drow := g.Row(i)
			var sum float32
			for _, gv := range grow {
				sum += gv
			}
			for j := range drow {
				drow[j] = grow[j] - exp32(yrow[j])*sum
			}
		}
		x.accumulate(g)
	})
	return out
}

// NLLLoss computes the mean negative log-likelihood over a batch of
// log-probabilities: -(1/N) * sum_i logProbs[i, targets[i]].
// The result is a scalar variable of shape [1].
func (t *Tape) NLLLoss(logProbs *Variable, targets []int32) *Variable {
	ls := logProbs.Value.Shape()
	if len(ls) != 2 || ls[0] != len(targets) {
		panic(fmt.Sprintf("autodiff: NLLLoss shape mismatch: log-probs %v, %d targets", ls, len(targets)))
	}
	rows, cols := ls[0], ls[1]

	var total float32
	for i, target := range targets {
		if target < 0 || int(target) >= cols {
			panic(fmt.Sprintf("autodiff: NLLLoss target %d out of range [0, %d)", target, cols))
		}
		total -= logProbs.Value.Row(i)[target]
	}
	v := tensor.Full(tensor.Shape{1}, total/float32(rows))

	out := t.out(v, logProbs.requiresGrad)
	t.record(func() {
		if !logProbs.requiresGrad || out.grad == nil {
			return
		}
		g := tensor.New(ls)
		scale := out.grad.Data()[0] / float32(rows)
		for i, target := range targets {
			g.Row(i)[target] = -scale
		}
		logProbs.accumulate(g)
	})
	return out
}

// Scale multiplies every element by s. The loss scaler uses this to
// scale the loss before backward.
func (t *Tape) Scale(x *Variable, s float32) *Variable {
	v := x.Value.Clone()
	for i := range v.Data() {
		v.Data()[i] *= s
	}
	out := t.out(v, x.requiresGrad)
	t.record(func() {
		if !x.requiresGrad || out.grad == nil {
			return
		}
		g := out.grad.Clone()
		for i := range g.Data() {
			g.Data()[i] *= s
		}
		x.accumulate(g)
	})
	return out
}

// Backward seeds the loss gradient with ones and runs all recorded
// backward closures in reverse order, then clears the tape.
func (t *Tape) Backward(loss *Variable) {
	if loss.grad == nil {
		loss.grad = tensor.Full(loss.Value.Shape(), 1)
	}
	for i := len(t.records) - 1; i >= 0; i-- {
		t.records[i]()
	}
	t.Reset()
}
