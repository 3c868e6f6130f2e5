package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	config := GetDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/minivec/")
	viper.AddConfigPath("$HOME/.minivec/")

	viper.SetEnvPrefix("MINIVEC")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Embedder.BatchSize <= 0 {
		return fmt.Errorf("invalid embedder batch size: %d", config.Embedder.BatchSize)
	}

	if config.Embedder.MaxLength < 3 {
		return fmt.Errorf("invalid max length: %d (must fit [CLS] and [SEP] plus at least one token)", config.Embedder.MaxLength)
	}

	if config.Classifier.Enabled {
		if config.Classifier.Classes < 2 {
			return fmt.Errorf("invalid class count: %d (must be at least 2)", config.Classifier.Classes)
		}
		if config.Classifier.FineTuneEncoder {
			return fmt.Errorf("fine_tune_encoder is not supported: the encoder is frozen, only the head is trained")
		}
		if len(config.Classifier.Labels) > 0 && len(config.Classifier.Labels) != config.Classifier.Classes {
			return fmt.Errorf("label count %d does not match class count %d", len(config.Classifier.Labels), config.Classifier.Classes)
		}
	}

	if config.Training.Format != "csv" && config.Training.Format != "json" && config.Training.Format != "parquet" {
		return fmt.Errorf("invalid training data format: %s (must be csv, json, or parquet)", config.Training.Format)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}

// Watch starts watching the configuration file for changes
func Watch(config *Config, callback func(*Config)) error {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := viper.Unmarshal(newConfig); err != nil {
			// Log error but don't crash
			return
		}

		if err := validateConfig(newConfig); err != nil {
			// Log error but don't crash
			return
		}

		callback(newConfig)
	})

	return nil
}
