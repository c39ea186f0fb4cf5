package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/szhang963/HighPerfNNI/internal/autodiff"
	"github.com/szhang963/HighPerfNNI/internal/tensor"
)

// Linear is a fully connected layer computing y = x @ W + b.
//
// W has shape [in_features, out_features] and b has shape [out_features].
// Weights use Xavier/Glorot uniform initialization from the explicit rng
// so that a run seed fully determines the initial parameters; biases
// start at zero.
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter
	bias        *Parameter
}

// NewLinear creates a Linear layer with Xavier-initialized weights.
func NewLinear(name string, inFeatures, outFeatures int, rng *rand.Rand, tape *autodiff.Tape) *Linear {
	bound := float32(math.Sqrt(6.0 / float64(inFeatures+outFeatures)))
	w := tensor.Uniform(tensor.Shape{inFeatures, outFeatures}, -bound, bound, rng)
	b := tensor.New(tensor.Shape{outFeatures})

	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter(name+".weight", w, tape),
		bias:        NewParameter(name+".bias", b, tape),
	}
}

// Forward computes x @ W + b on the tape.
// Input shape [batch, in_features], output [batch, out_features].
func (l *Linear) Forward(tape *autodiff.Tape, x *autodiff.Variable) *autodiff.Variable {
	xs := x.Value.Shape()
	if len(xs) != 2 || xs[1] != l.inFeatures {
		panic(fmt.Sprintf("nn: Linear expected input [batch, %d], got %v", l.inFeatures, xs))
	}
	out := tape.MatMul(x, l.weight.Variable())
	return tape.AddBias(out, l.bias.Variable())
}

// Parameters returns [weight, bias].
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// InFeatures returns the input feature count.
func (l *Linear) InFeatures() int { return l.inFeatures }

// OutFeatures returns the output feature count.
func (l *Linear) OutFeatures() int { return l.outFeatures }
