package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg := GetDefaults()
		if cfg.Server.Port != 8080 {
			t.Errorf("default port = %d, want 8080", cfg.Server.Port)
		}
		if cfg.Embedder.MaxLength != 128 {
			t.Errorf("default max length = %d, want 128", cfg.Embedder.MaxLength)
		}
		if !cfg.Embedder.Padding || !cfg.Embedder.Truncation {
			t.Error("padding and truncation should default to enabled")
		}
		if cfg.Classifier.FineTuneEncoder {
			t.Error("fine_tune_encoder should default to false")
		}
		if err := validateConfig(cfg); err != nil {
			t.Errorf("defaults should validate: %v", err)
		}
	})

	t.Run("FileOverridesDefaults", func(t *testing.T) {
		path := writeConfig(t, strings.TrimSpace(`
server:
  port: 9090
embedder:
  model_name: custom-model
  batch_size: 8
  cache_ttl: 5m
classifier:
  enabled: true
  classes: 3
  labels: ["negative", "neutral", "positive"]
`))
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("port = %d, want 9090", cfg.Server.Port)
		}
		if cfg.Embedder.ModelName != "custom-model" {
			t.Errorf("model name = %s, want custom-model", cfg.Embedder.ModelName)
		}
		if cfg.Embedder.CacheTTL != 5*time.Minute {
			t.Errorf("cache TTL = %v, want 5m", cfg.Embedder.CacheTTL)
		}
		// Untouched sections keep their defaults.
		if cfg.Training.Epochs != 3 {
			t.Errorf("training epochs = %d, want default 3", cfg.Training.Epochs)
		}
	})

	t.Run("ExplicitMissingFileFails", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("expected error for explicitly named missing file")
		}
	})
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"InvalidPort", func(c *Config) { c.Server.Port = 0 }},
		{"InvalidBatchSize", func(c *Config) { c.Embedder.BatchSize = -1 }},
		{"MaxLengthTooSmall", func(c *Config) { c.Embedder.MaxLength = 2 }},
		{"FineTuneEncoder", func(c *Config) {
			c.Classifier.Enabled = true
			c.Classifier.FineTuneEncoder = true
		}},
		{"TooFewClasses", func(c *Config) {
			c.Classifier.Enabled = true
			c.Classifier.Classes = 1
		}},
		{"LabelCountMismatch", func(c *Config) {
			c.Classifier.Enabled = true
			c.Classifier.Classes = 3
			c.Classifier.Labels = []string{"a", "b"}
		}},
		{"BadTrainingFormat", func(c *Config) { c.Training.Format = "xml" }},
		{"BadLogLevel", func(c *Config) { c.Logging.Level = "verbose" }},
		{"BadLogFormat", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
