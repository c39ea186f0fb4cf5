package train

import (
	"context"

	"github.com/szhang963/HighPerfNNI/internal/data"
)

// Evaluate runs the model over the full test split in inference mode
// and returns the accuracy fraction. It accumulates summed loss and the
// count of argmax predictions matching the label, then logs the mean
// loss and accuracy percentage. Model parameters are not touched: the
// tape records nothing while evaluating.
func (t *Trainer) Evaluate(loader *data.Loader, testSize int) (float64, error) {
	t.tape.SetRecording(false)
	defer t.tape.SetRecording(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var testLoss float64
	correct := 0
	for batch := range loader.Batches(ctx) {
		input := t.tape.Variable(batch.Images, false)
		logProbs := t.model.Forward(t.tape, input)

		for i, label := range batch.Labels {
			testLoss += -float64(logProbs.Value.Row(i)[label])
		}
		for i, pred := range logProbs.Value.ArgmaxRows() {
			if pred == batch.Labels[i] {
				correct++
			}
		}
	}

	testLoss /= float64(testSize)
	accuracy := float64(correct) / float64(testSize)
	t.logger.Printf("Test set: Average loss: %.4f, Accuracy: %.2f%%", testLoss, 100*accuracy)
	return accuracy, nil
}
