package nn

import (
	"math/rand"

	"github.com/szhang963/HighPerfNNI/internal/autodiff"
)

// Network dimensions for the digit classifier: 28x28 input images,
// one hidden layer, ten digit classes.
const (
	InputFeatures = 28 * 28
	HiddenUnits   = 128
	NumClasses    = 10
)

// Classifier is the digit classification network:
//
//	784 -> Linear -> ReLU -> Linear -> LogSoftmax -> 10
//
// Forward returns log-probabilities so the training loop can pair it
// with the negative log-likelihood loss directly.
type Classifier struct {
	fc1 *Linear
	fc2 *Linear
}

// NewClassifier builds the network, drawing initial weights from rng.
func NewClassifier(rng *rand.Rand, tape *autodiff.Tape) *Classifier {
	return &Classifier{
		fc1: NewLinear("fc1", InputFeatures, HiddenUnits, rng, tape),
		fc2: NewLinear("fc2", HiddenUnits, NumClasses, rng, tape),
	}
}

// Forward maps a batch of flattened images [batch, 784] to class
// log-probabilities [batch, 10].
func (m *Classifier) Forward(tape *autodiff.Tape, x *autodiff.Variable) *autodiff.Variable {
	h := m.fc1.Forward(tape, x)
	h = tape.ReLU(h)
	logits := m.fc2.Forward(tape, h)
	return tape.LogSoftmax(logits)
}

// Parameters returns all trainable parameters, fc1 first.
func (m *Classifier) Parameters() []*Parameter {
	params := make([]*Parameter, 0, 4)
	params = append(params, m.fc1.Parameters()...)
	params = append(params, m.fc2.Parameters()...)
	return params
}
