package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// EmbeddingCache is a Redis-backed cache for sentence embeddings, keyed by
// a hash of the normalized input text.
type EmbeddingCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger

	mu     sync.Mutex
	hits   int64
	misses int64
}

// New creates a Redis-backed embedding cache and verifies the connection.
func New(config *Config, logger *zap.Logger) (*EmbeddingCache, error) {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "minivec"
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ec := &EmbeddingCache{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Embedding cache initialized",
		zap.String("addr", config.Addr),
		zap.Duration("default_ttl", config.DefaultTTL))

	return ec, nil
}

// Get looks up the cached embedding for text. A miss, a lookup error, or a
// corrupt entry all report ok=false; corrupt entries are evicted.
func (ec *EmbeddingCache) Get(ctx context.Context, text string) ([]float32, bool) {
	key := ec.key(text)

	data, err := ec.client.Get(ctx, key).Result()
	if err == redis.Nil {
		ec.recordMiss()
		return nil, false
	} else if err != nil {
		ec.logger.Error("Cache lookup failed", zap.Error(err))
		ec.recordMiss()
		return nil, false
	}

	var entry CachedEmbedding
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		ec.logger.Error("Failed to unmarshal cached embedding", zap.Error(err))
		ec.client.Del(ctx, key)
		ec.recordMiss()
		return nil, false
	}

	if len(entry.Embedding) == 0 || len(entry.Embedding) != entry.Dims {
		ec.client.Del(ctx, key)
		ec.recordMiss()
		return nil, false
	}

	ec.recordHit()
	ec.logger.Debug("Cache hit", zap.String("key", key))
	return entry.Embedding, true
}

// Set caches the embedding for text with the configured TTL.
func (ec *EmbeddingCache) Set(ctx context.Context, text string, embedding []float32) error {
	entry := CachedEmbedding{
		Text:      text,
		Embedding: embedding,
		Dims:      len(embedding),
		CachedAt:  time.Now(),
		TTL:       int64(ec.config.DefaultTTL.Seconds()),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding for caching: %w", err)
	}

	if err := ec.client.Set(ctx, ec.key(text), data, ec.config.DefaultTTL).Err(); err != nil {
		ec.logger.Error("Failed to cache embedding", zap.Error(err))
		return fmt.Errorf("failed to cache embedding: %w", err)
	}

	return nil
}

// SetBatch caches several embeddings in one pipelined round trip.
func (ec *EmbeddingCache) SetBatch(ctx context.Context, texts []string, embeddings [][]float32) error {
	if len(texts) != len(embeddings) {
		return fmt.Errorf("texts and embeddings length mismatch")
	}
	if len(texts) == 0 {
		return nil
	}

	pipe := ec.client.Pipeline()
	for i, text := range texts {
		entry := CachedEmbedding{
			Text:      text,
			Embedding: embeddings[i],
			Dims:      len(embeddings[i]),
			CachedAt:  time.Now(),
			TTL:       int64(ec.config.DefaultTTL.Seconds()),
		}
		data, err := json.Marshal(entry)
		if err != nil {
			ec.logger.Error("Failed to marshal embedding for batch caching", zap.Error(err))
			continue
		}
		pipe.Set(ctx, ec.key(text), data, ec.config.DefaultTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		ec.logger.Error("Batch cache operation failed", zap.Error(err))
		return fmt.Errorf("batch cache operation failed: %w", err)
	}

	ec.logger.Debug("Batch cache operation completed", zap.Int("cached", len(texts)))
	return nil
}

// GetStats returns cache performance statistics
func (ec *EmbeddingCache) GetStats(ctx context.Context) (*Stats, error) {
	info, err := ec.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	ec.mu.Lock()
	stats := &Stats{
		Hits:   ec.hits,
		Misses: ec.misses,
	}
	ec.mu.Unlock()

	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	for _, line := range strings.Split(info, "\r\n") {
		if strings.HasPrefix(line, "used_memory:") {
			if mem, err := strconv.ParseInt(strings.TrimPrefix(line, "used_memory:"), 10, 64); err == nil {
				stats.MemoryUsage = mem
			}
		}
	}

	if keys, err := ec.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}

	return stats, nil
}

// Clear removes all cached embeddings under this cache's key prefix.
func (ec *EmbeddingCache) Clear(ctx context.Context) error {
	pattern := ec.config.KeyPrefix + ":emb:*"

	iter := ec.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	batchSize := 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := ec.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	ec.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (ec *EmbeddingCache) Close() error {
	if ec.client != nil {
		return ec.client.Close()
	}
	return nil
}

// key hashes the normalized text into a stable cache key. Normalization is
// limited to trimming and lowercasing so the key matches what the tokenizer
// will see in lowercase vocabularies.
func (ec *EmbeddingCache) key(text string) string {
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return fmt.Sprintf("%s:emb:%s", ec.config.KeyPrefix, hex.EncodeToString(hash[:])[:16])
}

func (ec *EmbeddingCache) recordHit() {
	ec.mu.Lock()
	ec.hits++
	ec.mu.Unlock()
}

func (ec *EmbeddingCache) recordMiss() {
	ec.mu.Lock()
	ec.misses++
	ec.mu.Unlock()
}
