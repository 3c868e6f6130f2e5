package dataset

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// Loader reads labeled sentence datasets from CSV, JSON Lines, or Parquet
// files in fixed-size batches.
type Loader struct {
	config *Config
	logger *zap.Logger
}

// NewLoader creates a dataset loader
func NewLoader(config *Config, logger *zap.Logger) *Loader {
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}
	if config.MaxTextLength <= 0 {
		config.MaxTextLength = 10000
	}
	return &Loader{
		config: config,
		logger: logger,
	}
}

// Load reads the entire dataset into memory. Invalid records are skipped
// and counted, not fatal.
func (l *Loader) Load(ctx context.Context, filePath string) ([]Record, error) {
	var records []Record
	err := l.ReadBatches(ctx, filePath, func(batch []Record) error {
		records = append(records, batch...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no valid records in %s", filePath)
	}
	return records, nil
}

// ReadBatches streams the dataset to fn in batches of the configured size.
func (l *Loader) ReadBatches(ctx context.Context, filePath string, fn func([]Record) error) error {
	format := DetectFormat(filePath)
	l.logger.Info("Reading dataset",
		zap.String("file", filePath),
		zap.String("format", string(format)),
		zap.Int("batch_size", l.config.BatchSize))

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer file.Close()

	var next func() (*Record, error)
	switch format {
	case FormatCSV:
		next, err = l.csvReader(file)
		if err != nil {
			return err
		}
	case FormatParquet:
		next = l.parquetReader(file)
	case FormatJSON:
		next = l.jsonReader(file)
	default:
		return fmt.Errorf("unsupported file format: %s", format)
	}

	var skipped int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch := make([]Record, 0, l.config.BatchSize)
		eof := false
		for len(batch) < l.config.BatchSize {
			record, err := next()
			if err == io.EOF {
				eof = true
				break
			}
			if err != nil {
				l.logger.Warn("Skipping unreadable record", zap.Error(err))
				skipped++
				continue
			}
			if !l.validateRecord(record) {
				skipped++
				continue
			}
			batch = append(batch, *record)
		}

		if len(batch) > 0 {
			if err := fn(batch); err != nil {
				return err
			}
		}
		if eof {
			break
		}
	}

	if skipped > 0 {
		l.logger.Warn("Dataset contained invalid records", zap.Int64("skipped", skipped))
	}
	return nil
}

// csvReader expects a header and three columns: text, label_text, label.
func (l *Loader) csvReader(file *os.File) (func() (*Record, error), error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 3

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	l.logger.Debug("CSV header detected", zap.Strings("columns", header))

	return func() (*Record, error) {
		row, err := reader.Read()
		if err != nil {
			return nil, err
		}
		label, err := parseLabel(row[2])
		if err != nil {
			return nil, err
		}
		return &Record{
			Text:      strings.TrimSpace(row[0]),
			LabelText: strings.TrimSpace(row[1]),
			Label:     label,
		}, nil
	}, nil
}

func (l *Loader) parquetReader(file *os.File) func() (*Record, error) {
	reader := parquet.NewReader(file)
	return func() (*Record, error) {
		var record Record
		if err := reader.Read(&record); err != nil {
			if err == io.EOF {
				reader.Close()
			}
			return nil, err
		}
		return &record, nil
	}
}

// jsonReader reads one JSON object per line (or a stream of objects).
func (l *Loader) jsonReader(file *os.File) func() (*Record, error) {
	decoder := json.NewDecoder(file)
	return func() (*Record, error) {
		var record Record
		if err := decoder.Decode(&record); err != nil {
			return nil, err
		}
		return &record, nil
	}
}

// validateRecord validates a data record
func (l *Loader) validateRecord(record *Record) bool {
	if !l.config.ValidateData {
		return true
	}

	if strings.TrimSpace(record.Text) == "" {
		l.logger.Debug("Invalid record: empty text")
		return false
	}

	if record.Label < 0 {
		l.logger.Debug("Invalid record: negative label", zap.Int("label", record.Label))
		return false
	}

	if l.config.Classes > 0 && record.Label >= l.config.Classes {
		l.logger.Debug("Invalid record: label out of range",
			zap.Int("label", record.Label),
			zap.Int("classes", l.config.Classes))
		return false
	}

	if len(record.Text) > l.config.MaxTextLength {
		l.logger.Debug("Invalid record: text too long", zap.Int("length", len(record.Text)))
		return false
	}

	return true
}

// Shuffle permutes records in place with a seeded generator so training
// epochs are reproducible.
func Shuffle(records []Record, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(records), func(i, j int) {
		records[i], records[j] = records[j], records[i]
	})
}

func parseLabel(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	label, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid label %q: %w", raw, err)
	}
	return label, nil
}
