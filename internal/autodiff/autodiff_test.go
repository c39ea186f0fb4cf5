package autodiff

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/szhang963/HighPerfNNI/internal/backend/cpu"
	"github.com/szhang963/HighPerfNNI/internal/tensor"
)

func newTape() *Tape {
	return NewTape(cpu.New())
}

func TestScaleGradient(t *testing.T) {
	tape := newTape()
	x := tape.Variable(tensor.Full(tensor.Shape{2}, 1.5), true)

	out := tape.Scale(x, 3)
	tape.Backward(out)

	require.NotNil(t, x.Grad())
	assert.InDelta(t, 3.0, x.Grad().Data()[0], 1e-6)
	assert.InDelta(t, 3.0, x.Grad().Data()[1], 1e-6)
	assert.InDelta(t, 4.5, out.Value.Data()[0], 1e-6)
}

func TestReLUGradient(t *testing.T) {
	tape := newTape()
	v, err := tensor.FromSlice([]float32{-2, -0.5, 0.5, 3}, tensor.Shape{1, 4})
	require.NoError(t, err)
	x := tape.Variable(v, true)

	out := tape.ReLU(x)
	tape.Backward(out)

	assert.Equal(t, []float32{0, 0, 0.5, 3}, out.Value.Data())
	assert.Equal(t, []float32{0, 0, 1, 1}, x.Grad().Data())
}

func TestAddBiasGradient(t *testing.T) {
	tape := newTape()
	xv, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2})
	bv, _ := tensor.FromSlice([]float32{10, 20}, tensor.Shape{2})
	x := tape.Variable(xv, true)
	bias := tape.Variable(bv, true)

	out := tape.AddBias(x, bias)
	tape.Backward(out)

	assert.Equal(t, []float32{11, 22, 13, 24, 15, 26}, out.Value.Data())
	// Bias gradient is the column sum of the output gradient (all ones).
	assert.Equal(t, []float32{3, 3}, bias.Grad().Data())
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, x.Grad().Data())
}

func TestMatMulGradient(t *testing.T) {
	tape := newTape()
	av, _ := tensor.FromSlice([]float32{2, 3}, tensor.Shape{1, 2})
	bv, _ := tensor.FromSlice([]float32{5, 7}, tensor.Shape{2, 1})
	a := tape.Variable(av, true)
	b := tape.Variable(bv, true)

	out := tape.MatMul(a, b)
	tape.Backward(out)

	assert.InDelta(t, 31.0, out.Value.Data()[0], 1e-6) // 2*5 + 3*7
	assert.Equal(t, []float32{5, 7}, a.Grad().Data())
	assert.Equal(t, []float32{2, 3}, b.Grad().Data())
}

func TestLogSoftmaxRows(t *testing.T) {
	tape := newTape()
	v, _ := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{1, 3})
	x := tape.Variable(v, false)

	out := tape.LogSoftmax(x)

	// Probabilities must sum to 1.
	var sum float64
	for _, lp := range out.Value.Data() {
		sum += math.Exp(float64(lp))
	}
	assert.InDelta(t, 1.0, sum, 1e-5)

	// Shift invariance: logits + 100 give identical log-probabilities.
	shifted, _ := tensor.FromSlice([]float32{101, 102, 103}, tensor.Shape{1, 3})
	out2 := tape.LogSoftmax(tape.Variable(shifted, false))
	for i := range out.Value.Data() {
		assert.InDelta(t, out.Value.Data()[i], out2.Value.Data()[i], 1e-5)
	}
}

func TestNLLGradientIsSoftmaxMinusOneHot(t *testing.T) {
	tape := newTape()
	v, _ := tensor.FromSlice([]float32{0.2, -0.4, 1.1}, tensor.Shape{1, 3})
	x := tape.Variable(v, true)

	logProbs := tape.LogSoftmax(x)
	loss := tape.NLLLoss(logProbs, []int32{2})
	tape.Backward(loss)

	grad := x.Grad().Data()
	for j := 0; j < 3; j++ {
		want := math.Exp(float64(logProbs.Value.Data()[j]))
		if j == 2 {
			want -= 1
		}
		assert.InDelta(t, want, float64(grad[j]), 1e-5, "grad[%d]", j)
	}
}

// Numeric gradient check for the composed pipeline x @ W + b ->
// log-softmax -> mean NLL, differentiated with respect to W.
func TestNumericGradientCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	xv := tensor.Uniform(tensor.Shape{2, 3}, -1, 1, rng)
	wv := tensor.Uniform(tensor.Shape{3, 2}, -1, 1, rng)
	bv := tensor.Uniform(tensor.Shape{2}, -0.1, 0.1, rng)
	targets := []int32{0, 1}

	lossAt := func(w *tensor.Tensor) float64 {
		tape := newTape()
		tape.SetRecording(false)
		x := tape.Variable(xv, false)
		logits := tape.AddBias(tape.MatMul(x, tape.Variable(w, false)), tape.Variable(bv, false))
		loss := tape.NLLLoss(tape.LogSoftmax(logits), targets)
		return float64(loss.Value.Data()[0])
	}

	tape := newTape()
	w := tape.Variable(wv, true)
	x := tape.Variable(xv, false)
	logits := tape.AddBias(tape.MatMul(x, w), tape.Variable(bv, false))
	loss := tape.NLLLoss(tape.LogSoftmax(logits), targets)
	tape.Backward(loss)
	require.NotNil(t, w.Grad())

	const eps = 1e-2
	for i := range wv.Data() {
		perturbed := wv.Clone()
		perturbed.Data()[i] += eps
		plus := lossAt(perturbed)
		perturbed.Data()[i] -= 2 * eps
		minus := lossAt(perturbed)

		numeric := (plus - minus) / (2 * eps)
		assert.InDelta(t, numeric, float64(w.Grad().Data()[i]), 1e-2, "dW[%d]", i)
	}
}

func TestNoGradWithoutRequiresGrad(t *testing.T) {
	tape := newTape()
	x := tape.Variable(tensor.Full(tensor.Shape{1, 2}, 1), false)

	out := tape.ReLU(x)
	tape.Backward(out)

	assert.Nil(t, x.Grad())
}

func TestHalfModeQuantizesForward(t *testing.T) {
	tape := newTape()
	tape.SetHalf(true)
	v, _ := tensor.FromSlice([]float32{1e-6, 1.0 + 1.0/4096.0}, tensor.Shape{2})
	x := tape.Variable(v, false)

	out := tape.Scale(x, 1)

	assert.Equal(t, float32(0), out.Value.Data()[0], "tiny values flush to zero in half mode")
	assert.Equal(t, tensor.ToFloat16(1.0+1.0/4096.0).Float32(), out.Value.Data()[1])
}

func TestBackwardClearsTape(t *testing.T) {
	tape := newTape()
	x := tape.Variable(tensor.Full(tensor.Shape{1}, 2), true)
	out := tape.Scale(x, 2)
	tape.Backward(out)

	g := x.Grad().Data()[0]
	// Running backward again must be a no-op on a cleared tape.
	tape.Backward(out)
	assert.Equal(t, g, x.Grad().Data()[0])
}
