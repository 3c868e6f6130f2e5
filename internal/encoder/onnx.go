//go:build onnx
// +build onnx

package encoder

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/jkoiv/minivec/internal/pooling"
	"github.com/jkoiv/minivec/internal/tokenizer"
)

// ortInit guards process-wide ONNX Runtime environment initialization.
var ortInit struct {
	once sync.Once
	err  error
}

func initRuntime(libPath string) error {
	ortInit.once.Do(func() {
		if libPath == "" {
			libPath = os.Getenv("ONNXRUNTIME_SHARED_LIB")
		}
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortInit.err = ort.InitializeEnvironment()
	})
	return ortInit.err
}

// OnnxEncoder runs a BERT-style transformer through ONNX Runtime and
// returns the last hidden state for every token.
type OnnxEncoder struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
	hiddenSize int
	logger     *zap.Logger
	mu         sync.Mutex
}

// NewEncoder loads the ONNX model at cfg.ModelPath and builds an inference
// session. The model must expose BERT-style inputs and a 3D
// (batch, seq, hidden) output.
func NewEncoder(cfg Config, logger *zap.Logger) (Encoder, error) {
	if err := initRuntime(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("encoder: runtime init failed: %w", err)
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("encoder: failed to inspect model %s: %w", cfg.ModelPath, err)
	}

	available := make(map[string]bool, len(inputsInfo))
	for _, ii := range inputsInfo {
		available[strings.ToLower(ii.Name)] = true
	}
	var inputNames []string
	for _, name := range []string{"input_ids", "attention_mask", "token_type_ids"} {
		if available[name] {
			inputNames = append(inputNames, name)
		}
	}
	if len(inputNames) < 2 {
		return nil, fmt.Errorf("encoder: model %s missing BERT-style inputs", cfg.ModelPath)
	}

	if len(outputsInfo) == 0 {
		return nil, fmt.Errorf("encoder: model %s reports no outputs", cfg.ModelPath)
	}
	outputName := outputsInfo[0].Name
	dims := outputsInfo[0].Dimensions
	if len(dims) != 3 {
		return nil, fmt.Errorf("encoder: expected 3D hidden-state output, got %v", dims)
	}
	hiddenSize := int(dims[2])

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("encoder: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if cfg.IntraOpThreads > 0 {
		opts.SetIntraOpNumThreads(cfg.IntraOpThreads)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, []string{outputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("encoder: session creation failed: %w", err)
	}

	logger.Info("ONNX encoder ready",
		zap.String("model", cfg.ModelPath),
		zap.Strings("inputs", inputNames),
		zap.String("output", outputName),
		zap.Int("hidden_size", hiddenSize))

	return &OnnxEncoder{
		session:    session,
		inputNames: inputNames,
		outputName: outputName,
		hiddenSize: hiddenSize,
		logger:     logger,
	}, nil
}

// HiddenSize returns the model's hidden dimension.
func (e *OnnxEncoder) HiddenSize() int {
	return e.hiddenSize
}

// Encode runs a single inference call for the batch.
func (e *OnnxEncoder) Encode(ctx context.Context, batch tokenizer.Batch) (pooling.HiddenStates, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return pooling.HiddenStates{}, ErrNotReady
	}
	select {
	case <-ctx.Done():
		return pooling.HiddenStates{}, ctx.Err()
	default:
	}

	shape := ort.NewShape(int64(batch.Size), int64(batch.SeqLen))

	idsTensor, err := ort.NewTensor(shape, batch.InputIDs)
	if err != nil {
		return pooling.HiddenStates{}, fmt.Errorf("encoder: input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, batch.AttentionMask)
	if err != nil {
		return pooling.HiddenStates{}, fmt.Errorf("encoder: attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	typeTensor, err := ort.NewTensor(shape, batch.TokenTypeIDs)
	if err != nil {
		return pooling.HiddenStates{}, fmt.Errorf("encoder: token_type_ids tensor: %w", err)
	}
	defer typeTensor.Destroy()

	inputs := make([]ort.Value, 0, len(e.inputNames))
	for _, name := range e.inputNames {
		switch name {
		case "input_ids":
			inputs = append(inputs, idsTensor)
		case "attention_mask":
			inputs = append(inputs, maskTensor)
		case "token_type_ids":
			inputs = append(inputs, typeTensor)
		}
	}

	outShape := ort.NewShape(int64(batch.Size), int64(batch.SeqLen), int64(e.hiddenSize))
	outTensor, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		return pooling.HiddenStates{}, fmt.Errorf("encoder: output tensor: %w", err)
	}
	defer outTensor.Destroy()

	if err := e.session.Run(inputs, []ort.Value{outTensor}); err != nil {
		return pooling.HiddenStates{}, fmt.Errorf("encoder: inference failed: %w", err)
	}

	// Copy out before the tensor is destroyed.
	src := outTensor.GetData()
	data := make([]float32, len(src))
	copy(data, src)

	return pooling.HiddenStates{
		Data:   data,
		Batch:  batch.Size,
		Seq:    batch.SeqLen,
		Hidden: e.hiddenSize,
	}, nil
}

// Close releases the ONNX session.
func (e *OnnxEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	return nil
}
