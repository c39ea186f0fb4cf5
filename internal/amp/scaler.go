// Package amp implements dynamic loss scaling for mixed-precision
// training.
//
// Half-precision gradients underflow below 2^-14, so the loss is
// multiplied by a large scale factor before backward and the gradients
// divided by it afterwards. When scaled gradients overflow to infinity
// the update is skipped and the scale backs off; after a long enough
// streak of clean steps the scale grows again to reclaim dynamic range.
package amp

import (
	"math"

	"github.com/szhang963/HighPerfNNI/internal/autodiff"
	"github.com/szhang963/HighPerfNNI/internal/nn"
	"github.com/szhang963/HighPerfNNI/internal/optim"
)

// Scaling policy defaults. Scale halves on overflow and doubles after
// GrowthInterval consecutive overflow-free steps.
const (
	InitScale      = 65536.0
	GrowthFactor   = 2.0
	BackoffFactor  = 0.5
	GrowthInterval = 2000
)

// GradScaler owns the mixed-precision scale factor and the skip-on-
// overflow update policy.
type GradScaler struct {
	scale          float32
	growthFactor   float32
	backoffFactor  float32
	growthInterval int

	goodSteps int
	foundInf  bool
}

// NewGradScaler creates a scaler with the default policy.
func NewGradScaler() *GradScaler {
	return &GradScaler{
		scale:          InitScale,
		growthFactor:   GrowthFactor,
		backoffFactor:  BackoffFactor,
		growthInterval: GrowthInterval,
	}
}

// Scale returns the current scale factor.
func (s *GradScaler) Scale() float32 { return s.scale }

// ScaleLoss multiplies the loss by the scale factor on the tape, so the
// backward pass produces scaled gradients.
func (s *GradScaler) ScaleLoss(tape *autodiff.Tape, loss *autodiff.Variable) *autodiff.Variable {
	return tape.Scale(loss, s.scale)
}

// Step unscales the parameter gradients in place and applies the
// optimizer update, unless any gradient is non-finite (overflow), in
// which case the update is skipped entirely. Returns whether the update
// was applied. Call Update afterwards to adapt the scale.
func (s *GradScaler) Step(opt optim.Optimizer, params []*nn.Parameter) bool {
	s.foundInf = false
	inv := 1 / s.scale
	for _, param := range params {
		grad := param.Grad()
		if grad == nil {
			continue
		}
		data := grad.Data()
		for i, v := range data {
			if math.IsInf(float64(v), 0) || math.IsNaN(float64(v)) {
				s.foundInf = true
			}
			data[i] = v * inv
		}
	}
	if s.foundInf {
		return false
	}
	opt.Step()
	return true
}

// Update adapts the scale factor based on the last Step: back off
// immediately after an overflow, grow after a full interval of clean
// steps, otherwise leave the scale unchanged.
func (s *GradScaler) Update() {
	s.update(s.foundInf)
	s.foundInf = false
}

func (s *GradScaler) update(overflow bool) {
	if overflow {
		s.scale *= s.backoffFactor
		s.goodSteps = 0
		return
	}
	s.goodSteps++
	if s.goodSteps >= s.growthInterval {
		s.scale *= s.growthFactor
		s.goodSteps = 0
	}
}
