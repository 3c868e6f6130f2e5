package dataset

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jkoiv/minivec/internal/cache"
	"github.com/jkoiv/minivec/internal/embedder"
	"github.com/jkoiv/minivec/internal/vector"
)

// Pipeline ingests a labeled dataset: it embeds each batch of sentences and
// writes the vectors to the store, optionally warming the embedding cache.
type Pipeline struct {
	loader      *Loader
	emb         embedder.Service
	vectorStore *vector.Store
	vectorCache *cache.EmbeddingCache
	config      *Config
	logger      *zap.Logger
}

// NewPipeline creates an ingest pipeline. The cache is optional.
func NewPipeline(
	loader *Loader,
	emb embedder.Service,
	vectorStore *vector.Store,
	vectorCache *cache.EmbeddingCache,
	config *Config,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		loader:      loader,
		emb:         emb,
		vectorStore: vectorStore,
		vectorCache: vectorCache,
		config:      config,
		logger:      logger,
	}
}

// IngestFile embeds and stores every record in the dataset file.
func (p *Pipeline) IngestFile(ctx context.Context, filePath string) (*IngestResult, error) {
	start := time.Now()
	result := &IngestResult{}

	p.logger.Info("Starting dataset ingestion",
		zap.String("file", filePath),
		zap.Int("batch_size", p.config.BatchSize))

	err := p.loader.ReadBatches(ctx, filePath, func(batch []Record) error {
		result.TotalRecords += int64(len(batch))

		if err := p.ingestBatch(ctx, batch, result); err != nil {
			p.logger.Error("Batch ingestion failed", zap.Error(err))
			result.ProcessedFailed += int64(len(batch))
			result.Errors = append(result.Errors, err.Error())
			return nil
		}

		result.ProcessedOK += int64(len(batch))
		if p.config.ProgressReport > 0 && result.TotalRecords%int64(p.config.ProgressReport) == 0 {
			p.reportProgress(result, start)
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	result.Duration = time.Since(start)

	if p.config.CreateIndex && result.ProcessedOK > 1000 {
		indexStart := time.Now()
		if err := p.vectorStore.CreateIndex(ctx); err != nil {
			p.logger.Warn("Failed to create vector index", zap.Error(err))
		} else {
			p.logger.Info("Vector index created", zap.Duration("duration", time.Since(indexStart)))
		}
	}

	p.logger.Info("Dataset ingestion completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("embedding_time", result.EmbeddingTime),
		zap.Duration("database_time", result.DatabaseTime))

	return result, nil
}

func (p *Pipeline) ingestBatch(ctx context.Context, batch []Record, result *IngestResult) error {
	texts := make([]string, len(batch))
	for i, record := range batch {
		texts[i] = record.Text
	}

	embeddingStart := time.Now()
	batchResult, err := p.emb.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("batch embedding failed: %w", err)
	}
	result.EmbeddingTime += time.Since(embeddingStart)

	if len(batchResult.Embeddings) != len(batch) {
		return fmt.Errorf("embedding count mismatch: got %d, expected %d",
			len(batchResult.Embeddings), len(batch))
	}

	vectors := make([]*vector.TextVector, len(batch))
	for i, record := range batch {
		vectors[i] = &vector.TextVector{
			Text:      record.Text,
			TextHash:  vector.HashText(record.Text),
			LabelText: record.LabelText,
			Label:     record.Label,
			Embedding: batchResult.Embeddings[i],
		}
	}

	dbStart := time.Now()
	insertResult, err := p.vectorStore.BatchInsert(ctx, vectors)
	if err != nil {
		return fmt.Errorf("database batch insert failed: %w", err)
	}
	result.DatabaseTime += time.Since(dbStart)

	if p.config.UpdateCache && p.vectorCache != nil {
		cacheStart := time.Now()
		if err := p.vectorCache.SetBatch(ctx, texts, batchResult.Embeddings); err != nil {
			p.logger.Warn("Failed to warm embedding cache", zap.Error(err))
		}
		result.CacheTime += time.Since(cacheStart)
	}

	p.logger.Debug("Batch ingested",
		zap.Int("batch_size", len(batch)),
		zap.Int64("inserted", insertResult.Inserted),
		zap.Int64("duplicates_skipped", insertResult.Skipped))

	return nil
}

func (p *Pipeline) reportProgress(result *IngestResult, start time.Time) {
	elapsed := time.Since(start)
	rate := float64(result.TotalRecords) / elapsed.Seconds()

	p.logger.Info("Ingestion progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("records_ok", result.ProcessedOK),
		zap.Int64("records_failed", result.ProcessedFailed),
		zap.Float64("rate_per_sec", rate),
		zap.Duration("elapsed", elapsed))
}
