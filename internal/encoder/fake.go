package encoder

import (
	"context"

	"github.com/jkoiv/minivec/internal/pooling"
	"github.com/jkoiv/minivec/internal/tokenizer"
)

// Fake is a deterministic in-memory Encoder for tests and local
// development. Hidden states are a pure function of token id, position, and
// dimension, so identical inputs always produce identical outputs.
type Fake struct {
	Hidden int
	// Calls counts Encode invocations.
	Calls int
	// Err, when set, is returned by every Encode call.
	Err error
}

// NewFake returns a Fake encoder with the given hidden size.
func NewFake(hidden int) *Fake {
	return &Fake{Hidden: hidden}
}

// HiddenSize returns the configured hidden dimension.
func (f *Fake) HiddenSize() int {
	return f.Hidden
}

// Encode synthesizes hidden states for the batch.
func (f *Fake) Encode(ctx context.Context, batch tokenizer.Batch) (pooling.HiddenStates, error) {
	if f.Err != nil {
		return pooling.HiddenStates{}, f.Err
	}
	select {
	case <-ctx.Done():
		return pooling.HiddenStates{}, ctx.Err()
	default:
	}
	f.Calls++

	data := make([]float32, batch.Size*batch.SeqLen*f.Hidden)
	for b := 0; b < batch.Size; b++ {
		for s := 0; s < batch.SeqLen; s++ {
			id := batch.InputIDs[b*batch.SeqLen+s]
			off := (b*batch.SeqLen + s) * f.Hidden
			for d := 0; d < f.Hidden; d++ {
				v := (id*31 + int64(s)*7 + int64(d)) % 1000
				data[off+d] = float32(v)/1000.0 - 0.5
			}
		}
	}

	return pooling.HiddenStates{
		Data:   data,
		Batch:  batch.Size,
		Seq:    batch.SeqLen,
		Hidden: f.Hidden,
	}, nil
}

// Close is a no-op.
func (f *Fake) Close() error {
	return nil
}

var _ Encoder = (*Fake)(nil)
