// Package nn provides the layers and the digit classifier built from them.
package nn

import (
	"github.com/szhang963/HighPerfNNI/internal/autodiff"
	"github.com/szhang963/HighPerfNNI/internal/tensor"
)

// Parameter is a named trainable tensor. The underlying autodiff
// Variable accumulates gradients during backward passes; the optimizer
// reads and clears them between steps.
type Parameter struct {
	name string
	v    *autodiff.Variable
}

// NewParameter wraps an initialized tensor as a trainable parameter.
func NewParameter(name string, t *tensor.Tensor, tape *autodiff.Tape) *Parameter {
	return &Parameter{name: name, v: tape.Variable(t, true)}
}

// Name returns the parameter name, e.g. "fc1.weight".
func (p *Parameter) Name() string { return p.name }

// Variable returns the autodiff variable for use in tape operations.
func (p *Parameter) Variable() *autodiff.Variable { return p.v }

// Value returns the parameter tensor.
func (p *Parameter) Value() *tensor.Tensor { return p.v.Value }

// Grad returns the accumulated gradient, nil before any backward pass.
func (p *Parameter) Grad() *tensor.Tensor { return p.v.Grad() }

// ZeroGrad clears the accumulated gradient.
func (p *Parameter) ZeroGrad() { p.v.ZeroGrad() }
