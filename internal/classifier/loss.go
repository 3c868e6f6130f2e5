package classifier

import (
	"fmt"
	"math"
)

// Softmax converts logits, flat (batch, classes), into row-wise
// probabilities. Each row is shifted by its max before exponentiation for
// numerical stability.
func Softmax(logits []float32, batch, classes int) []float32 {
	probs := make([]float32, len(logits))
	for b := 0; b < batch; b++ {
		row := logits[b*classes : (b+1)*classes]
		out := probs[b*classes : (b+1)*classes]

		max := row[0]
		for _, v := range row[1:] {
			if v > max {
				max = v
			}
		}

		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v - max))
			out[i] = float32(e)
			sum += e
		}
		inv := float32(1.0 / sum)
		for i := range out {
			out[i] *= inv
		}
	}
	return probs
}

// CrossEntropy computes the mean negative log-likelihood of the integer
// labels under softmax(logits) and returns the gradient of that loss with
// respect to the logits: softmax(logits) - onehot(labels).
func CrossEntropy(logits []float32, labels []int, batch, classes int) (float32, []float32, error) {
	if len(logits) != batch*classes {
		return 0, nil, fmt.Errorf("%w: logits length %d does not match (%d, %d)",
			ErrShapeMismatch, len(logits), batch, classes)
	}
	if len(labels) != batch {
		return 0, nil, fmt.Errorf("%w: %d labels for batch of %d", ErrShapeMismatch, len(labels), batch)
	}
	for i, label := range labels {
		if label < 0 || label >= classes {
			return 0, nil, fmt.Errorf("%w: label %d at index %d out of range [0, %d)",
				ErrShapeMismatch, label, i, classes)
		}
	}

	probs := Softmax(logits, batch, classes)
	dLogits := make([]float32, len(logits))
	copy(dLogits, probs)

	var loss float64
	for b, label := range labels {
		p := float64(probs[b*classes+label])
		// Softmax output is strictly positive, but clamp anyway so the log
		// stays finite for extreme logits.
		if p < 1e-12 {
			p = 1e-12
		}
		loss -= math.Log(p)
		dLogits[b*classes+label] -= 1
	}

	return float32(loss / float64(batch)), dLogits, nil
}
