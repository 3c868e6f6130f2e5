package vector

import (
	"time"
)

// TextVector represents a stored sentence with its embedding
type TextVector struct {
	ID        int64     `db:"id" json:"id"`
	Text      string    `db:"text" json:"text"`
	TextHash  string    `db:"text_hash" json:"text_hash"`
	LabelText string    `db:"label_text" json:"label_text"`
	Label     int       `db:"label" json:"label"`
	Embedding []float32 `db:"embedding" json:"embedding"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SimilarityResult represents a vector similarity search result
type SimilarityResult struct {
	Vector     *TextVector `json:"vector"`
	Similarity float32     `json:"similarity"`
	Distance   float32     `json:"distance"`
}

// SearchOptions contains options for vector similarity search
type SearchOptions struct {
	Limit           int     `json:"limit"`
	MinSimilarity   float32 `json:"min_similarity"`
	LabelFilter     *int    `json:"label_filter,omitempty"`
	LabelTextFilter string  `json:"label_text_filter,omitempty"`
}

// LabelCount is the number of stored vectors carrying one label.
type LabelCount struct {
	Label     int    `db:"label" json:"label"`
	LabelText string `db:"label_text" json:"label_text"`
	Count     int64  `db:"count" json:"count"`
}

// StoreStats represents database statistics
type StoreStats struct {
	TotalVectors int64        `json:"total_vectors"`
	Labels       []LabelCount `json:"labels"`
}

// BatchInsertResult represents the result of a batch insert operation
type BatchInsertResult struct {
	Inserted int64         `json:"inserted"`
	Skipped  int64         `json:"skipped"`
	Duration time.Duration `json:"duration"`
}
