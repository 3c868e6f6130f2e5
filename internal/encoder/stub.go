//go:build !onnx
// +build !onnx

package encoder

import (
	"go.uber.org/zap"
)

// NewEncoder without the onnx build tag always fails: the default build
// carries no CGO dependency on ONNX Runtime.
func NewEncoder(cfg Config, logger *zap.Logger) (Encoder, error) {
	logger.Warn("no encoder backend compiled in", zap.String("model", cfg.ModelPath))
	return nil, ErrUnavailable
}
