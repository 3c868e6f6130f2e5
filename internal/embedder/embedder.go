package embedder

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jkoiv/minivec/internal/cache"
	"github.com/jkoiv/minivec/internal/encoder"
	"github.com/jkoiv/minivec/internal/pooling"
	"github.com/jkoiv/minivec/internal/tokenizer"
)

// Service is the embedding forward pass: sentences in, fixed-length
// sentence vectors out.
type Service interface {
	Embed(ctx context.Context, text string) (*Result, error)
	EmbedBatch(ctx context.Context, texts []string) (*BatchResult, error)
	Dims() int
	GetStats() *Stats
	Close() error
}

// Embedder composes tokenizer, encoder, and masked mean pooling. It holds
// no mutable model state: given fixed encoder weights, identical inputs
// yield identical outputs.
type Embedder struct {
	cfg    Config
	tok    *tokenizer.Tokenizer
	enc    encoder.Encoder
	cache  *cache.EmbeddingCache
	logger *zap.Logger
	stats  *Stats
	mu     sync.RWMutex
}

var _ Service = (*Embedder)(nil)

// New creates an Embedder. The embedding cache is optional; pass nil to
// disable caching.
func New(cfg Config, tok *tokenizer.Tokenizer, enc encoder.Encoder, embCache *cache.EmbeddingCache, logger *zap.Logger) (*Embedder, error) {
	if enc == nil {
		return nil, ErrEncoderNotLoaded
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}

	logger.Info("Embedder initialized",
		zap.String("model", cfg.ModelName),
		zap.Int("dims", enc.HiddenSize()),
		zap.Bool("normalize", cfg.Normalize),
		zap.Bool("cache", embCache != nil))

	return &Embedder{
		cfg:    cfg,
		tok:    tok,
		enc:    enc,
		cache:  embCache,
		logger: logger,
		stats:  &Stats{StartTime: time.Now()},
	}, nil
}

// Dims returns the sentence embedding dimensionality.
func (e *Embedder) Dims() int {
	return e.enc.HiddenSize()
}

// Embed produces one sentence embedding.
func (e *Embedder) Embed(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrInvalidInput)
	}

	start := time.Now()

	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, text); ok && len(cached) == e.Dims() {
			e.recordCacheHit()
			return &Result{
				Embedding: cached,
				Dims:      len(cached),
				Duration:  time.Since(start),
				CacheHit:  true,
			}, nil
		}
	}

	vecs, tokens, err := e.forward(ctx, []string{text})
	if err != nil {
		e.recordFailure()
		return nil, err
	}

	if e.cache != nil {
		go e.cache.Set(context.Background(), text, vecs[0])
	}

	duration := time.Since(start)
	e.recordRun(1, tokens, duration)

	return &Result{
		Embedding:  vecs[0],
		Dims:       len(vecs[0]),
		TokenCount: tokens,
		Duration:   duration,
	}, nil
}

// EmbedBatch produces one embedding per input text, processing the inputs
// in configured batch-size chunks.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) (*BatchResult, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: empty sentence list", ErrInvalidInput)
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: text %d is empty", ErrInvalidInput, i)
		}
	}

	start := time.Now()
	result := &BatchResult{
		Embeddings: make([][]float32, 0, len(texts)),
		Dims:       e.Dims(),
	}

	for i := 0; i < len(texts); i += e.cfg.BatchSize {
		end := i + e.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		vecs, tokens, err := e.forward(ctx, texts[i:end])
		if err != nil {
			e.recordFailure()
			return nil, err
		}
		result.Embeddings = append(result.Embeddings, vecs...)
		result.TotalTokens += tokens
	}

	result.Duration = time.Since(start)
	e.recordRun(int64(len(texts)), result.TotalTokens, result.Duration)

	e.logger.Debug("Batch embedding completed",
		zap.Int("texts", len(texts)),
		zap.Int("total_tokens", result.TotalTokens),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// forward is the core pass: tokenize, encode, mean-pool, and split the flat
// (batch, hidden) result into per-text vectors.
func (e *Embedder) forward(ctx context.Context, texts []string) ([][]float32, int, error) {
	batch, err := e.tok.EncodeBatch(texts)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrTokenizationFailed, err)
	}

	hidden, err := e.enc.Encode(ctx, batch)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInferenceFailed, err)
	}

	pooled, err := pooling.MeanPool(hidden, batch.Mask())
	if err != nil {
		return nil, 0, fmt.Errorf("mean pooling: %w", err)
	}

	dims := hidden.Hidden
	vecs := make([][]float32, batch.Size)
	for i := 0; i < batch.Size; i++ {
		vec := make([]float32, dims)
		copy(vec, pooled[i*dims:(i+1)*dims])
		if e.cfg.Normalize {
			normalize(vec)
		}
		vecs[i] = vec
	}

	tokens := 0
	for _, m := range batch.AttentionMask {
		if m != 0 {
			tokens++
		}
	}
	return vecs, tokens, nil
}

// GetStats returns a copy of the embedder's counters.
func (e *Embedder) GetStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	stats := *e.stats
	return &stats
}

// Close releases the encoder.
func (e *Embedder) Close() error {
	return e.enc.Close()
}

func (e *Embedder) recordRun(inferences int64, tokens int, duration time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.TotalInferences += inferences
	e.stats.TotalTokens += int64(tokens)
	e.stats.LastInferenceTime = time.Now()

	if e.stats.TotalInferences > 0 {
		total := time.Duration(e.stats.TotalInferences-inferences)*e.stats.AvgInferenceTime + duration
		e.stats.AvgInferenceTime = total / time.Duration(e.stats.TotalInferences)
	}
}

func (e *Embedder) recordCacheHit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.CacheHits++
}

func (e *Embedder) recordFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.FailedRuns++
}

// normalize scales vec to unit length in place. Zero vectors are left
// untouched.
func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
}

// CosineSimilarity computes the cosine similarity of two vectors. Vectors
// of unequal length or zero norm yield 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
