package dataset

import (
	"strings"
	"time"
)

// Record represents a single labeled sentence from the input dataset
type Record struct {
	Text      string `csv:"text" parquet:"text" json:"text"`
	LabelText string `csv:"label_text" parquet:"label_text" json:"label_text"`
	Label     int    `csv:"label" parquet:"label" json:"label"`
}

// Config contains dataset loading and ingestion configuration
type Config struct {
	BatchSize      int  `yaml:"batch_size" mapstructure:"batch_size"`
	Classes        int  `yaml:"classes" mapstructure:"classes"`
	ValidateData   bool `yaml:"validate_data" mapstructure:"validate_data"`
	MaxTextLength  int  `yaml:"max_text_length" mapstructure:"max_text_length"`
	CreateIndex    bool `yaml:"create_index" mapstructure:"create_index"`
	UpdateCache    bool `yaml:"update_cache" mapstructure:"update_cache"`
	ProgressReport int  `yaml:"progress_report" mapstructure:"progress_report"`
}

// IngestResult represents the result of ingesting a dataset
type IngestResult struct {
	TotalRecords    int64         `json:"total_records"`
	ProcessedOK     int64         `json:"processed_ok"`
	ProcessedFailed int64         `json:"processed_failed"`
	Duration        time.Duration `json:"duration"`
	EmbeddingTime   time.Duration `json:"embedding_time"`
	DatabaseTime    time.Duration `json:"database_time"`
	CacheTime       time.Duration `json:"cache_time"`
	Errors          []string      `json:"errors,omitempty"`
}

// Format represents supported file formats
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatJSON    Format = "json"
)

// DetectFormat detects file format from extension
func DetectFormat(filename string) Format {
	switch {
	case strings.HasSuffix(filename, ".csv"):
		return FormatCSV
	case strings.HasSuffix(filename, ".parquet"):
		return FormatParquet
	case strings.HasSuffix(filename, ".json"), strings.HasSuffix(filename, ".jsonl"):
		return FormatJSON
	default:
		return FormatCSV
	}
}
