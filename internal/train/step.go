package train

import (
	"context"
	"fmt"
	"math"

	"github.com/szhang963/HighPerfNNI/internal/amp"
	"github.com/szhang963/HighPerfNNI/internal/data"
)

// Stepper runs one training epoch. The precision strategy is chosen
// once at startup, so the per-batch loop carries no precision
// conditionals.
type Stepper interface {
	TrainEpoch(epoch int, loader *data.Loader) error
}

func (t *Trainer) newStepper() Stepper {
	if t.cfg.UseMixedPrecision {
		return &mixedPrecisionStep{t: t, scaler: amp.NewGradScaler()}
	}
	return &fullPrecisionStep{t: t}
}

// fullPrecisionStep trains in float32 throughout. A non-finite loss is
// not absorbed; it aborts the run.
type fullPrecisionStep struct {
	t *Trainer
}

func (s *fullPrecisionStep) TrainEpoch(epoch int, loader *data.Loader) error {
	t := s.t
	samples := loader.DatasetSize()
	numBatches := loader.NumBatches()

	// Canceling releases the loader's assembly goroutines if the epoch
	// aborts mid-stream.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batchIdx := 0
	for batch := range loader.Batches(ctx) {
		t.opt.ZeroGrad()
		t.tape.Reset()

		input := t.tape.Variable(batch.Images, false)
		logProbs := t.model.Forward(t.tape, input)
		loss := t.tape.NLLLoss(logProbs, batch.Labels)

		lossValue := float64(loss.Value.Data()[0])
		if math.IsNaN(lossValue) || math.IsInf(lossValue, 0) {
			return fmt.Errorf("train: non-finite loss %v at epoch %d batch %d", lossValue, epoch, batchIdx)
		}

		t.tape.Backward(loss)
		t.opt.Step()

		if batchIdx%t.cfg.LogInterval == 0 {
			t.logger.Printf("Train Epoch: %d [%d/%d (%.0f%%)]\tLoss: %.6f",
				epoch, batchIdx*batch.Size, samples,
				100*float64(batchIdx)/float64(numBatches), lossValue)
		}
		batchIdx++
	}
	return nil
}

// mixedPrecisionStep runs the forward pass and loss under the reduced-
// precision context, computes gradients from the scaled loss, and lets
// the scaler absorb per-step overflow instead of raising it.
type mixedPrecisionStep struct {
	t      *Trainer
	scaler *amp.GradScaler
}

func (s *mixedPrecisionStep) TrainEpoch(epoch int, loader *data.Loader) error {
	t := s.t
	params := t.model.Parameters()
	samples := loader.DatasetSize()
	numBatches := loader.NumBatches()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batchIdx := 0
	for batch := range loader.Batches(ctx) {
		t.opt.ZeroGrad()
		t.tape.Reset()

		t.tape.SetHalf(true)
		input := t.tape.Variable(batch.Images, false)
		logProbs := t.model.Forward(t.tape, input)
		loss := t.tape.NLLLoss(logProbs, batch.Labels)
		t.tape.SetHalf(false)

		lossValue := float64(loss.Value.Data()[0])

		scaled := s.scaler.ScaleLoss(t.tape, loss)
		t.tape.Backward(scaled)
		s.scaler.Step(t.opt, params)
		s.scaler.Update()

		if batchIdx%t.cfg.LogInterval == 0 {
			t.logger.Printf("Train Epoch: %d [%d/%d (%.0f%%)]\tLoss: %.6f\tLoss Scale: %g",
				epoch, batchIdx*batch.Size, samples,
				100*float64(batchIdx)/float64(numBatches), lossValue, s.scaler.Scale())
		}
		batchIdx++
	}
	return nil
}
