package pooling

import (
	"errors"
	"fmt"
)

// epsilon floors the mask-sum denominator so an all-padding row divides by a
// small positive value instead of zero.
const epsilon = 1e-9

// ErrShapeMismatch indicates that hidden states and attention mask disagree
// on batch size or sequence length.
var ErrShapeMismatch = errors.New("shape mismatch")

// HiddenStates holds per-token encoder outputs as a flat row-major
// (batch, seq, hidden) tensor, the layout ONNX Runtime returns.
type HiddenStates struct {
	Data   []float32
	Batch  int
	Seq    int
	Hidden int
}

// AttentionMask holds a flat row-major (batch, seq) mask where 1 marks a
// real token and 0 marks padding.
type AttentionMask struct {
	Data  []int64
	Batch int
	Seq   int
}

// At returns the hidden-state vector for one token position. The returned
// slice aliases the underlying data.
func (h HiddenStates) At(batch, seq int) []float32 {
	off := (batch*h.Seq + seq) * h.Hidden
	return h.Data[off : off+h.Hidden]
}

// MeanPool collapses per-token hidden states into one fixed-length vector
// per batch element by averaging token vectors weighted by the attention
// mask. The result is a flat (batch, hidden) slice.
//
// Rows whose mask is entirely zero produce a zero vector: the denominator
// is floored at epsilon, so the division never yields NaN or Inf.
func MeanPool(hidden HiddenStates, mask AttentionMask) ([]float32, error) {
	if err := checkShapes(hidden, mask); err != nil {
		return nil, err
	}

	out := make([]float32, hidden.Batch*hidden.Hidden)

	for b := 0; b < hidden.Batch; b++ {
		maskOff := b * mask.Seq
		outOff := b * hidden.Hidden

		var maskSum float32
		for s := 0; s < hidden.Seq; s++ {
			if mask.Data[maskOff+s] != 0 {
				maskSum++
				tok := hidden.At(b, s)
				for d, v := range tok {
					out[outOff+d] += v
				}
			}
		}

		denom := maskSum
		if denom < epsilon {
			denom = epsilon
		}
		inv := 1.0 / denom
		for d := 0; d < hidden.Hidden; d++ {
			out[outOff+d] *= inv
		}
	}

	return out, nil
}

// checkShapes validates that the tensors are internally consistent and agree
// on their leading two dimensions.
func checkShapes(hidden HiddenStates, mask AttentionMask) error {
	if hidden.Batch < 1 || hidden.Seq < 1 || hidden.Hidden < 1 {
		return fmt.Errorf("%w: invalid hidden state dims (%d, %d, %d)",
			ErrShapeMismatch, hidden.Batch, hidden.Seq, hidden.Hidden)
	}
	if len(hidden.Data) != hidden.Batch*hidden.Seq*hidden.Hidden {
		return fmt.Errorf("%w: hidden data length %d does not match dims (%d, %d, %d)",
			ErrShapeMismatch, len(hidden.Data), hidden.Batch, hidden.Seq, hidden.Hidden)
	}
	if len(mask.Data) != mask.Batch*mask.Seq {
		return fmt.Errorf("%w: mask data length %d does not match dims (%d, %d)",
			ErrShapeMismatch, len(mask.Data), mask.Batch, mask.Seq)
	}
	if hidden.Batch != mask.Batch || hidden.Seq != mask.Seq {
		return fmt.Errorf("%w: hidden states (%d, %d, %d) vs attention mask (%d, %d)",
			ErrShapeMismatch, hidden.Batch, hidden.Seq, hidden.Hidden, mask.Batch, mask.Seq)
	}
	return nil
}
