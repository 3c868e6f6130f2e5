package encoder

import (
	"context"
	"errors"

	"github.com/jkoiv/minivec/internal/pooling"
	"github.com/jkoiv/minivec/internal/tokenizer"
)

// Encoder errors.
var (
	ErrNotReady    = errors.New("encoder: backend not ready")
	ErrUnavailable = errors.New("encoder: no backend compiled in (build with -tags onnx)")
)

// Encoder turns a tokenized batch into per-token hidden states. The
// pre-trained model behind it is opaque: implementations may use ONNX
// Runtime or any other engine, and tests use a deterministic fake.
type Encoder interface {
	// Encode runs one inference for the batch and returns hidden states of
	// shape (batch, seq, hidden).
	Encode(ctx context.Context, batch tokenizer.Batch) (pooling.HiddenStates, error)
	// HiddenSize returns the model's hidden dimension.
	HiddenSize() int
	// Close releases any native resources.
	Close() error
}

// Config contains encoder backend configuration.
type Config struct {
	ModelPath      string `yaml:"model_path" mapstructure:"model_path"`
	LibraryPath    string `yaml:"library_path" mapstructure:"library_path"`
	IntraOpThreads int    `yaml:"intra_op_threads" mapstructure:"intra_op_threads"`
}
