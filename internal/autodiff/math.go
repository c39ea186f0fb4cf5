package autodiff

import "math"

func exp32(x float32) float32 {
	return float32(math.Exp(float64(x)))
}

// logSoftmaxRow writes log-softmax of in to out using the log-sum-exp
// trick: shift by the row max so the exponentials cannot overflow.
func logSoftmaxRow(in, out []float32) {
	max := in[0]
	for _, v := range in[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	for _, v := range in {
		sum += math.Exp(float64(v - max))
	}
	lse := max + float32(math.Log(sum))
	for i, v := range in {
		out[i] = v - lse
	}
}
