package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jkoiv/minivec/internal/cache"
	"github.com/jkoiv/minivec/internal/classifier"
	"github.com/jkoiv/minivec/internal/config"
	"github.com/jkoiv/minivec/internal/dataset"
	"github.com/jkoiv/minivec/internal/embedder"
	"github.com/jkoiv/minivec/internal/encoder"
	"github.com/jkoiv/minivec/internal/logger"
	"github.com/jkoiv/minivec/internal/tokenizer"
	"github.com/jkoiv/minivec/internal/vector"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Labeled dataset file (CSV, Parquet, or JSON)")
		epochs     = flag.Int("epochs", 0, "Training epochs (overrides config)")
		batchSize  = flag.Int("batch-size", 0, "Training batch size (overrides config)")
		output     = flag.String("output", "", "Output path for trained head (overrides config)")
		ingest     = flag.Bool("ingest", false, "Also store dataset embeddings in the vector database")
		skipTrain  = flag.Bool("skip-train", false, "Skip head training, only ingest")
		showStats  = flag.Bool("stats", false, "Show vector database statistics and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *epochs > 0 {
		cfg.Training.Epochs = *epochs
	}
	if *batchSize > 0 {
		cfg.Training.BatchSize = *batchSize
	}
	if *inputFile != "" {
		cfg.Training.DataPath = *inputFile
	}
	if *output != "" {
		cfg.Classifier.HeadPath = *output
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.Training.DataPath == "" && !*showStats {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input dataset.csv --epochs 5\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input dataset.parquet --ingest\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	log.Info("Starting MiniVec trainer",
		zap.String("data", cfg.Training.DataPath),
		zap.Int("epochs", cfg.Training.Epochs),
		zap.Int("batch_size", cfg.Training.BatchSize))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling...")
		cancel()
	}()

	emb, cleanup, err := buildEmbedder(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize embedder", zap.Error(err))
	}
	defer cleanup()

	var store *vector.Store
	if cfg.Database.Enabled && (*ingest || *showStats) {
		store, err = vector.NewStore(&vector.Config{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, emb.Dims(), log.WithComponent("vector").Logger)
		if err != nil {
			log.Fatal("Failed to initialize vector store", zap.Error(err))
		}
		defer store.Close()
	}

	if *showStats {
		if err := printStoreStats(ctx, store, emb); err != nil {
			log.Fatal("Failed to show stats", zap.Error(err))
		}
		return
	}

	if _, err := os.Stat(cfg.Training.DataPath); os.IsNotExist(err) {
		log.Fatal("Input file does not exist", zap.String("path", cfg.Training.DataPath))
	}

	loader := dataset.NewLoader(&dataset.Config{
		BatchSize:    cfg.Training.BatchSize,
		Classes:      cfg.Classifier.Classes,
		ValidateData: true,
	}, log.WithComponent("dataset").Logger)

	if !*skipTrain {
		if err := trainHead(ctx, cfg, loader, emb, log); err != nil {
			log.Fatal("Training failed", zap.Error(err))
		}
	}

	if *ingest {
		if store == nil {
			log.Fatal("Ingestion requires database.enabled in configuration")
		}
		if err := ingestDataset(ctx, cfg, loader, emb, store, log); err != nil {
			log.Fatal("Ingestion failed", zap.Error(err))
		}
	}

	log.Info("Trainer completed successfully")
}

// buildEmbedder wires the tokenizer, encoder, and embedder for offline use.
func buildEmbedder(cfg *config.Config, log *logger.Logger) (embedder.Service, func(), error) {
	noop := func() {}

	tok, err := tokenizer.New(cfg.Embedder.VocabPath, tokenizer.Options{
		MaxLength:  cfg.Embedder.MaxLength,
		Padding:    cfg.Embedder.Padding,
		Truncation: cfg.Embedder.Truncation,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	enc, err := encoder.NewEncoder(encoder.Config{
		ModelPath:      cfg.Encoder.ModelPath,
		LibraryPath:    cfg.Encoder.LibraryPath,
		IntraOpThreads: cfg.Encoder.IntraOpThreads,
	}, log.WithComponent("encoder").Logger)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to load encoder: %w", err)
	}

	emb, err := embedder.New(embedder.Config{
		ModelName: cfg.Embedder.ModelName,
		Normalize: cfg.Embedder.Normalize,
		BatchSize: cfg.Embedder.BatchSize,
	}, tok, enc, nil, log.WithComponent("embedder").Logger)
	if err != nil {
		enc.Close()
		return nil, noop, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return emb, func() { emb.Close() }, nil
}

// trainHead runs SGD epochs over the dataset and saves the trained head.
func trainHead(ctx context.Context, cfg *config.Config, loader *dataset.Loader, emb embedder.Service, log *logger.Logger) error {
	cls, err := classifier.New(classifier.Config{
		Classes:      cfg.Classifier.Classes,
		Labels:       cfg.Classifier.Labels,
		LearningRate: cfg.Classifier.LearningRate,
		Seed:         cfg.Classifier.Seed,
	}, emb, log.WithComponent("classifier").Logger)
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}

	records, err := loader.Load(ctx, cfg.Training.DataPath)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	log.Info("Dataset loaded", zap.Int("records", len(records)))

	batchSize := cfg.Training.BatchSize
	start := time.Now()

	for epoch := 1; epoch <= cfg.Training.Epochs; epoch++ {
		if cfg.Training.Shuffle {
			dataset.Shuffle(records, cfg.Classifier.Seed+int64(epoch))
		}

		var epochLoss float64
		var batches int

		for i := 0; i < len(records); i += batchSize {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			end := i + batchSize
			if end > len(records) {
				end = len(records)
			}

			texts := make([]string, end-i)
			labels := make([]int, end-i)
			for j, record := range records[i:end] {
				texts[j] = record.Text
				labels[j] = record.Label
			}

			loss, err := cls.TrainStep(ctx, texts, labels)
			if err != nil {
				return fmt.Errorf("training step failed at epoch %d batch %d: %w", epoch, batches, err)
			}
			epochLoss += float64(loss)
			batches++
		}

		log.Info("Epoch completed",
			zap.Int("epoch", epoch),
			zap.Int("epochs", cfg.Training.Epochs),
			zap.Int("batches", batches),
			zap.Float64("avg_loss", epochLoss/float64(batches)),
			zap.Duration("elapsed", time.Since(start)))
	}

	headPath := cfg.Classifier.HeadPath
	if headPath == "" {
		headPath = filepath.Join(cfg.Training.OutputDir, "head.json")
	}
	if err := os.MkdirAll(filepath.Dir(headPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := cls.Head().Save(headPath); err != nil {
		return fmt.Errorf("failed to save head: %w", err)
	}

	log.Info("Trained head saved", zap.String("path", headPath))
	return nil
}

// ingestDataset embeds the dataset and stores the vectors.
func ingestDataset(ctx context.Context, cfg *config.Config, loader *dataset.Loader, emb embedder.Service, store *vector.Store, log *logger.Logger) error {
	var embCache *cache.EmbeddingCache
	if cfg.Cache.Enabled {
		var err error
		embCache, err = cache.New(&cache.Config{
			Addr:       cfg.Cache.Addr,
			Password:   cfg.Cache.Password,
			DB:         cfg.Cache.DB,
			DefaultTTL: cfg.Embedder.CacheTTL,
		}, log.WithComponent("cache").Logger)
		if err != nil {
			log.Warn("Cache unavailable, ingesting without it", zap.Error(err))
		} else {
			defer embCache.Close()
		}
	}

	pipeline := dataset.NewPipeline(loader, emb, store, embCache, &dataset.Config{
		BatchSize:      cfg.Training.BatchSize,
		Classes:        cfg.Classifier.Classes,
		ValidateData:   true,
		CreateIndex:    true,
		UpdateCache:    embCache != nil,
		ProgressReport: 1000,
	}, log.WithComponent("pipeline").Logger)

	result, err := pipeline.IngestFile(ctx, cfg.Training.DataPath)
	if err != nil {
		return fmt.Errorf("pipeline processing failed: %w", err)
	}

	log.Info("Dataset ingestion completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("embedding_time", result.EmbeddingTime),
		zap.Duration("database_time", result.DatabaseTime))

	if len(result.Errors) > 0 {
		log.Warn("Ingestion completed with errors", zap.Strings("errors", result.Errors))
	}
	return nil
}

// printStoreStats displays vector store and embedder statistics.
func printStoreStats(ctx context.Context, store *vector.Store, emb embedder.Service) error {
	if store == nil {
		return fmt.Errorf("vector database is not enabled in configuration")
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get database stats: %w", err)
	}

	fmt.Printf("\n=== MiniVec Vector Database Statistics ===\n")
	fmt.Printf("Total Vectors:      %d\n", stats.TotalVectors)
	for _, lc := range stats.Labels {
		pct := float64(0)
		if stats.TotalVectors > 0 {
			pct = float64(lc.Count) / float64(stats.TotalVectors) * 100
		}
		fmt.Printf("  label %d (%s): %d (%.1f%%)\n", lc.Label, lc.LabelText, lc.Count, pct)
	}

	embStats := emb.GetStats()
	fmt.Printf("\n=== Embedder Statistics ===\n")
	fmt.Printf("Total Inferences:   %d\n", embStats.TotalInferences)
	fmt.Printf("Total Tokens:       %d\n", embStats.TotalTokens)
	fmt.Printf("Avg Inference Time: %v\n", embStats.AvgInferenceTime)

	return nil
}
