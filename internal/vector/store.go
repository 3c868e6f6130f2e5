package vector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Store handles vector storage operations with PostgreSQL + pgvector
type Store struct {
	db     *sqlx.DB
	dims   int
	logger *zap.Logger
}

// Config contains database configuration
type Config struct {
	DSN             string        `yaml:"dsn" mapstructure:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// NewStore creates a vector store for embeddings of the given dimensionality.
func NewStore(config *Config, dims int, logger *zap.Logger) (*Store, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("invalid embedding dimensionality: %d", dims)
	}

	db, err := sqlx.Connect("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := &Store{
		db:     db,
		dims:   dims,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Vector store initialized successfully",
		zap.String("dsn", maskDSN(config.DSN)),
		zap.Int("dims", dims),
		zap.Int("max_open_conns", config.MaxOpenConns))

	return store, nil
}

// initialize verifies the connection, requires pgvector, and ensures the
// text_vectors table exists.
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var extensionExists bool
	query := "SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')"
	if err := s.db.GetContext(ctx, &extensionExists, query); err != nil {
		return fmt.Errorf("failed to check pgvector extension: %w", err)
	}
	if !extensionExists {
		return fmt.Errorf("pgvector extension is not installed")
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS text_vectors (
			id BIGSERIAL PRIMARY KEY,
			text TEXT NOT NULL,
			text_hash VARCHAR(64) NOT NULL UNIQUE,
			label_text VARCHAR(255) NOT NULL DEFAULT '',
			label INTEGER NOT NULL DEFAULT -1,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dims)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure text_vectors table: %w", err)
	}

	s.logger.Info("Database initialized with pgvector extension")
	return nil
}

// HashText returns the deduplication hash used for the text_hash column.
func HashText(text string) string {
	hash := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(hash[:])
}

// Insert adds a new text vector to the database
func (s *Store) Insert(ctx context.Context, vector *TextVector) error {
	if vector.TextHash == "" {
		vector.TextHash = HashText(vector.Text)
	}

	query := `
		INSERT INTO text_vectors (text, text_hash, label_text, label, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (text_hash) DO UPDATE
			SET embedding = EXCLUDED.embedding,
			    label_text = EXCLUDED.label_text,
			    label = EXCLUDED.label,
			    updated_at = now()
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		vector.Text,
		vector.TextHash,
		vector.LabelText,
		vector.Label,
		formatEmbedding(vector.Embedding),
	).Scan(&vector.ID, &vector.CreatedAt, &vector.UpdatedAt)

	if err != nil {
		s.logger.Error("Failed to insert vector",
			zap.Error(err),
			zap.String("label_text", vector.LabelText))
		return fmt.Errorf("failed to insert vector: %w", err)
	}

	s.logger.Debug("Vector inserted successfully",
		zap.Int64("id", vector.ID),
		zap.String("label_text", vector.LabelText))

	return nil
}

// BatchInsert adds multiple text vectors efficiently
func (s *Store) BatchInsert(ctx context.Context, vectors []*TextVector) (*BatchInsertResult, error) {
	if len(vectors) == 0 {
		return &BatchInsertResult{}, nil
	}

	start := time.Now()

	valueStrings := make([]string, 0, len(vectors))
	valueArgs := make([]interface{}, 0, len(vectors)*5)

	for i, vector := range vectors {
		if vector.TextHash == "" {
			vector.TextHash = HashText(vector.Text)
		}
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", i*5+1, i*5+2, i*5+3, i*5+4, i*5+5))
		valueArgs = append(valueArgs,
			vector.Text,
			vector.TextHash,
			vector.LabelText,
			vector.Label,
			formatEmbedding(vector.Embedding),
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO text_vectors (text, text_hash, label_text, label, embedding)
		VALUES %s
		ON CONFLICT (text_hash) DO NOTHING`,
		strings.Join(valueStrings, ","))

	res, err := s.db.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		s.logger.Error("Batch insert failed", zap.Error(err))
		return nil, fmt.Errorf("batch insert failed: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Could not get rows affected", zap.Error(err))
		inserted = int64(len(vectors))
	}

	result := &BatchInsertResult{
		Inserted: inserted,
		Skipped:  int64(len(vectors)) - inserted,
		Duration: time.Since(start),
	}

	s.logger.Info("Batch insert completed",
		zap.Int64("inserted", result.Inserted),
		zap.Int64("duplicates_skipped", result.Skipped),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// FindSimilar finds stored vectors similar to the given embedding
func (s *Store) FindSimilar(ctx context.Context, embedding []float32, options *SearchOptions) ([]*SimilarityResult, error) {
	if options == nil {
		options = &SearchOptions{
			Limit:         5,
			MinSimilarity: 0.7,
		}
	}

	embeddingStr := formatEmbedding(embedding)

	whereClause := "WHERE (1 - (embedding <=> $1)) >= $2"
	args := []interface{}{embeddingStr, options.MinSimilarity}
	argIndex := 3

	if options.LabelFilter != nil {
		whereClause += fmt.Sprintf(" AND label = $%d", argIndex)
		args = append(args, *options.LabelFilter)
		argIndex++
	}

	if options.LabelTextFilter != "" {
		whereClause += fmt.Sprintf(" AND label_text = $%d", argIndex)
		args = append(args, options.LabelTextFilter)
		argIndex++
	}

	query := fmt.Sprintf(`
		SELECT
			id, text, label_text, label, embedding,
			created_at, updated_at,
			(1 - (embedding <=> $1)) as similarity,
			(embedding <=> $1) as distance
		FROM text_vectors
		%s
		ORDER BY embedding <=> $1
		LIMIT $%d`, whereClause, argIndex)

	args = append(args, options.Limit)

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("Similarity search failed", zap.Error(err))
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	var results []*SimilarityResult
	for rows.Next() {
		var result SimilarityResult
		var vector TextVector
		var embeddingStr string

		err := rows.Scan(
			&vector.ID,
			&vector.Text,
			&vector.LabelText,
			&vector.Label,
			&embeddingStr,
			&vector.CreatedAt,
			&vector.UpdatedAt,
			&result.Similarity,
			&result.Distance,
		)
		if err != nil {
			s.logger.Error("Failed to scan similarity result", zap.Error(err))
			continue
		}

		vector.Embedding, err = parseEmbedding(embeddingStr)
		if err != nil {
			s.logger.Error("Failed to parse embedding", zap.Error(err))
			continue
		}

		result.Vector = &vector
		results = append(results, &result)
	}

	s.logger.Debug("Similarity search completed",
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
		zap.Float32("min_similarity", options.MinSimilarity))

	return results, nil
}

// GetStats returns database statistics
func (s *Store) GetStats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}

	if err := s.db.GetContext(ctx, &stats.TotalVectors, "SELECT COUNT(*) FROM text_vectors"); err != nil {
		return nil, fmt.Errorf("failed to get vector stats: %w", err)
	}

	query := `
		SELECT label, label_text, COUNT(*) as count
		FROM text_vectors
		GROUP BY label, label_text
		ORDER BY label`
	if err := s.db.SelectContext(ctx, &stats.Labels, query); err != nil {
		return nil, fmt.Errorf("failed to get label counts: %w", err)
	}

	return stats, nil
}

// CreateIndex creates the vector similarity index for better performance
func (s *Store) CreateIndex(ctx context.Context) error {
	// ivfflat needs a populated table before the lists pay off
	var count int64
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM text_vectors"); err != nil {
		return fmt.Errorf("failed to count vectors: %w", err)
	}

	if count < 1000 {
		s.logger.Info("Skipping index creation, not enough vectors", zap.Int64("count", count))
		return nil
	}

	s.logger.Info("Creating vector similarity index...", zap.Int64("vector_count", count))

	query := `
		CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_text_vectors_embedding
		ON text_vectors USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	s.logger.Info("Vector similarity index created successfully")
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// formatEmbedding converts float32 slice to PostgreSQL vector format
func formatEmbedding(embedding []float32) string {
	if len(embedding) == 0 {
		return "[]"
	}

	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseEmbedding converts PostgreSQL vector format back to float32 slice
func parseEmbedding(embeddingStr string) ([]float32, error) {
	embeddingStr = strings.Trim(embeddingStr, "[]")
	if embeddingStr == "" {
		return []float32{}, nil
	}

	parts := strings.Split(embeddingStr, ",")
	embedding := make([]float32, len(parts))

	for i, part := range parts {
		var val float32
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "%g", &val); err != nil {
			return nil, fmt.Errorf("failed to parse embedding value: %w", err)
		}
		embedding[i] = val
	}

	return embedding, nil
}

// maskDSN masks the password in a connection string for logging
func maskDSN(dsn string) string {
	if strings.Contains(dsn, "@") {
		parts := strings.Split(dsn, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return dsn
}
