package embedder

import (
	"time"

	"github.com/jkoiv/minivec/internal/tokenizer"
)

// Config contains embedder configuration.
type Config struct {
	ModelName string            `yaml:"model_name" mapstructure:"model_name"` // e.g. "sentence-transformers/all-mpnet-base-v2"
	VocabPath string            `yaml:"vocab_path" mapstructure:"vocab_path"` // "./models/vocab.txt"
	Normalize bool              `yaml:"normalize" mapstructure:"normalize"`   // L2-normalize pooled vectors
	BatchSize int               `yaml:"batch_size" mapstructure:"batch_size"` // 32
	CacheTTL  time.Duration     `yaml:"cache_ttl" mapstructure:"cache_ttl"`   // 6h
	Tokenizer tokenizer.Options `yaml:"tokenizer" mapstructure:"tokenizer"`
}

// Result is the outcome of embedding a single text.
type Result struct {
	Embedding  []float32     `json:"embedding"`
	Dims       int           `json:"dims"`
	TokenCount int           `json:"token_count"`
	Duration   time.Duration `json:"duration"`
	CacheHit   bool          `json:"cache_hit"`
}

// BatchResult is the outcome of embedding a batch of texts.
type BatchResult struct {
	Embeddings  [][]float32   `json:"embeddings"`
	Dims        int           `json:"dims"`
	TotalTokens int           `json:"total_tokens"`
	Duration    time.Duration `json:"duration"`
}

// Stats tracks embedder performance counters.
type Stats struct {
	TotalInferences   int64         `json:"total_inferences"`
	TotalTokens       int64         `json:"total_tokens"`
	FailedRuns        int64         `json:"failed_runs"`
	AvgInferenceTime  time.Duration `json:"avg_inference_time"`
	LastInferenceTime time.Time     `json:"last_inference_time"`
	CacheHits         int64         `json:"cache_hits"`
	StartTime         time.Time     `json:"start_time"`
}

// Error is a typed embedder error.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *Error) Error() string {
	return e.Message
}

// Common error values.
var (
	ErrInvalidInput       = &Error{Type: "invalid_input", Message: "invalid input text", Code: 1001}
	ErrEncoderNotLoaded   = &Error{Type: "encoder_not_loaded", Message: "encoder not loaded", Code: 1002}
	ErrInferenceFailed    = &Error{Type: "inference_failed", Message: "inference failed", Code: 1003}
	ErrTokenizationFailed = &Error{Type: "tokenization_failed", Message: "tokenization failed", Code: 1004}
)
