// Package optim implements the parameter update step.
package optim

import (
	"github.com/szhang963/HighPerfNNI/internal/nn"
)

// Optimizer updates model parameters from their accumulated gradients.
type Optimizer interface {
	// Step applies one update using the gradients currently stored on
	// the parameters. Parameters without a gradient are skipped.
	Step()

	// ZeroGrad clears all parameter gradients. Call before each
	// backward pass so gradients do not accumulate across batches.
	ZeroGrad()

	// LR returns the current learning rate.
	LR() float32
}

// SGD is stochastic gradient descent with optional momentum.
//
// Without momentum:
//
//	param -= lr * grad
//
// With momentum:
//
//	velocity = momentum * velocity + grad
//	param   -= lr * velocity
type SGD struct {
	params     []*nn.Parameter
	lr         float32
	momentum   float32
	velocities map[*nn.Parameter][]float32
}

// SGDConfig holds SGD hyperparameters.
type SGDConfig struct {
	LR       float32 // learning rate (default 0.01)
	Momentum float32 // momentum factor in [0, 1)
}

// NewSGD creates an SGD optimizer over the given parameters.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[*nn.Parameter][]float32),
	}
}

// Step applies one gradient descent update in place.
func (s *SGD) Step() {
	for _, param := range s.params {
		grad := param.Grad()
		if grad == nil {
			continue
		}
		data, gdata := param.Value().Data(), grad.Data()

		if s.momentum == 0 {
			for i := range data {
				data[i] -= s.lr * gdata[i]
			}
			continue
		}

		velocity, ok := s.velocities[param]
		if !ok {
			velocity = make([]float32, len(data))
			s.velocities[param] = velocity
		}
		for i := range data {
			velocity[i] = s.momentum*velocity[i] + gdata[i]
			data[i] -= s.lr * velocity[i]
		}
	}
}

// ZeroGrad clears gradients on all parameters.
func (s *SGD) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// LR returns the learning rate.
func (s *SGD) LR() float32 { return s.lr }
