package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Embedder   EmbedderConfig   `yaml:"embedder" mapstructure:"embedder"`
	Encoder    EncoderConfig    `yaml:"encoder" mapstructure:"encoder"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Training   TrainingConfig   `yaml:"training" mapstructure:"training"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	WebSocket  WebSocketConfig  `yaml:"websocket" mapstructure:"websocket"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// EmbedderConfig contains sentence embedding configuration
type EmbedderConfig struct {
	ModelName  string        `yaml:"model_name" mapstructure:"model_name"`
	VocabPath  string        `yaml:"vocab_path" mapstructure:"vocab_path"`
	Normalize  bool          `yaml:"normalize" mapstructure:"normalize"`
	BatchSize  int           `yaml:"batch_size" mapstructure:"batch_size"`
	CacheTTL   time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	MaxLength  int           `yaml:"max_length" mapstructure:"max_length"`
	Padding    bool          `yaml:"padding" mapstructure:"padding"`
	Truncation bool          `yaml:"truncation" mapstructure:"truncation"`
}

// EncoderConfig contains ONNX Runtime configuration
type EncoderConfig struct {
	ModelPath      string `yaml:"model_path" mapstructure:"model_path"`
	LibraryPath    string `yaml:"library_path" mapstructure:"library_path"`
	IntraOpThreads int    `yaml:"intra_op_threads" mapstructure:"intra_op_threads"`
}

// ClassifierConfig contains classification head configuration
type ClassifierConfig struct {
	Enabled         bool     `yaml:"enabled" mapstructure:"enabled"`
	Classes         int      `yaml:"classes" mapstructure:"classes"`
	Labels          []string `yaml:"labels" mapstructure:"labels"`
	LearningRate    float64  `yaml:"learning_rate" mapstructure:"learning_rate"`
	Seed            int64    `yaml:"seed" mapstructure:"seed"`
	FineTuneEncoder bool     `yaml:"fine_tune_encoder" mapstructure:"fine_tune_encoder"`
	HeadPath        string   `yaml:"head_path" mapstructure:"head_path"`
}

// CacheConfig contains Redis embedding cache configuration
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// DatabaseConfig contains PostgreSQL vector store configuration
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DSN             string        `yaml:"dsn" mapstructure:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// TrainingConfig contains offline training configuration
type TrainingConfig struct {
	DataPath  string `yaml:"data_path" mapstructure:"data_path"`
	Format    string `yaml:"format" mapstructure:"format"` // csv, json, or parquet
	Epochs    int    `yaml:"epochs" mapstructure:"epochs"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
	Shuffle   bool   `yaml:"shuffle" mapstructure:"shuffle"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Path            string        `yaml:"path" mapstructure:"path"`
	MaxConnections  int           `yaml:"max_connections" mapstructure:"max_connections"`
	ReadBufferSize  int           `yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
	PingInterval    time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxMessageSize  int64         `yaml:"max_message_size" mapstructure:"max_message_size"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// RateLimitConfig contains per-client request rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Embedder: EmbedderConfig{
			ModelName:  "all-MiniLM-L6-v2",
			VocabPath:  "models/vocab.txt",
			Normalize:  false,
			BatchSize:  32,
			CacheTTL:   time.Hour,
			MaxLength:  128,
			Padding:    true,
			Truncation: true,
		},
		Encoder: EncoderConfig{
			ModelPath:      "models/model.onnx",
			IntraOpThreads: 0,
		},
		Classifier: ClassifierConfig{
			Enabled:      false,
			Classes:      2,
			LearningRate: 0.01,
			Seed:         42,
			HeadPath:     "models/head.json",
		},
		Cache: CacheConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Database: DatabaseConfig{
			Enabled:         false,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Training: TrainingConfig{
			Format:    "csv",
			Epochs:    3,
			BatchSize: 16,
			Shuffle:   true,
			OutputDir: "models",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File: struct {
				Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
				Path    string `yaml:"path" mapstructure:"path"`
			}{
				Enabled: false,
				Path:    "logs/minivec.log",
			},
		},
		WebSocket: WebSocketConfig{
			Enabled:         true,
			Path:            "/ws",
			MaxConnections:  100,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingInterval:    54 * time.Second,
			PongTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxMessageSize:  512,
			AllowedOrigins:  []string{"*"},
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 20,
			Burst:             40,
		},
	}
}
