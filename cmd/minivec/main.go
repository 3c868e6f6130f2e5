package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jkoiv/minivec/internal/cache"
	"github.com/jkoiv/minivec/internal/classifier"
	"github.com/jkoiv/minivec/internal/config"
	"github.com/jkoiv/minivec/internal/embedder"
	"github.com/jkoiv/minivec/internal/encoder"
	"github.com/jkoiv/minivec/internal/logger"
	"github.com/jkoiv/minivec/internal/server"
	"github.com/jkoiv/minivec/internal/tokenizer"
	"github.com/jkoiv/minivec/internal/vector"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("MiniVec %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting MiniVec",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
		zap.String("model", cfg.Embedder.ModelName),
	)

	emb, cls, store, cleanup, err := buildServices(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer cleanup()

	srv, err := server.New(cfg, emb, cls, store, log)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	// Config file edits require a restart to take effect; log them so
	// operators notice.
	config.Watch(cfg, func(newCfg *config.Config) {
		log.Info("Configuration file changed, restart to apply")
	})

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// buildServices wires the tokenizer, encoder, cache, embedder, classifier,
// and vector store from configuration.
func buildServices(cfg *config.Config, log *logger.Logger) (embedder.Service, *classifier.Classifier, *vector.Store, func(), error) {
	noop := func() {}

	tok, err := tokenizer.New(cfg.Embedder.VocabPath, tokenizer.Options{
		MaxLength:  cfg.Embedder.MaxLength,
		Padding:    cfg.Embedder.Padding,
		Truncation: cfg.Embedder.Truncation,
	})
	if err != nil {
		return nil, nil, nil, noop, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	enc, err := encoder.NewEncoder(encoder.Config{
		ModelPath:      cfg.Encoder.ModelPath,
		LibraryPath:    cfg.Encoder.LibraryPath,
		IntraOpThreads: cfg.Encoder.IntraOpThreads,
	}, log.WithComponent("encoder").Logger)
	if err != nil {
		return nil, nil, nil, noop, fmt.Errorf("failed to load encoder: %w", err)
	}

	var embCache *cache.EmbeddingCache
	if cfg.Cache.Enabled {
		embCache, err = cache.New(&cache.Config{
			Addr:       cfg.Cache.Addr,
			Password:   cfg.Cache.Password,
			DB:         cfg.Cache.DB,
			DefaultTTL: cfg.Embedder.CacheTTL,
		}, log.WithComponent("cache").Logger)
		if err != nil {
			enc.Close()
			return nil, nil, nil, noop, fmt.Errorf("failed to initialize cache: %w", err)
		}
	}

	emb, err := embedder.New(embedder.Config{
		ModelName: cfg.Embedder.ModelName,
		VocabPath: cfg.Embedder.VocabPath,
		Normalize: cfg.Embedder.Normalize,
		BatchSize: cfg.Embedder.BatchSize,
		CacheTTL:  cfg.Embedder.CacheTTL,
	}, tok, enc, embCache, log.WithComponent("embedder").Logger)
	if err != nil {
		enc.Close()
		return nil, nil, nil, noop, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	var cls *classifier.Classifier
	if cfg.Classifier.Enabled {
		cls, err = classifier.New(classifier.Config{
			Enabled:         cfg.Classifier.Enabled,
			Classes:         cfg.Classifier.Classes,
			Labels:          cfg.Classifier.Labels,
			LearningRate:    cfg.Classifier.LearningRate,
			Seed:            cfg.Classifier.Seed,
			FineTuneEncoder: cfg.Classifier.FineTuneEncoder,
			HeadPath:        cfg.Classifier.HeadPath,
		}, emb, log.WithComponent("classifier").Logger)
		if err != nil {
			emb.Close()
			return nil, nil, nil, noop, fmt.Errorf("failed to initialize classifier: %w", err)
		}
	}

	var store *vector.Store
	if cfg.Database.Enabled {
		store, err = vector.NewStore(&vector.Config{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, emb.Dims(), log.WithComponent("vector").Logger)
		if err != nil {
			emb.Close()
			return nil, nil, nil, noop, fmt.Errorf("failed to initialize vector store: %w", err)
		}
	}

	cleanup := func() {
		emb.Close()
		if embCache != nil {
			embCache.Close()
		}
		if store != nil {
			store.Close()
		}
	}
	return emb, cls, store, cleanup, nil
}

// performHealthCheck performs a health check against the running server
func performHealthCheck() {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
