// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Redis, Kafka, Queue, Storage, Chunker,
// Embedding, Index, Generation, Retrieval, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Queue      QueueConfig      `yaml:"queue"`
	Storage    StorageConfig    `yaml:"storage"`
	Upload     UploadConfig     `yaml:"upload"`
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Index      IndexConfig      `yaml:"index"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

// PostgresConfig holds PostgreSQL connection parameters. An empty Host
// disables document status tracking.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// KafkaConfig holds Kafka broker settings.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumerGroup"`
}

// QueueConfig controls the ingestion job queue. Backend is "redis" (streams)
// or "kafka". Name is the stream or topic carrying job descriptors.
// Concurrency bounds in-flight jobs per worker; on kafka it is the number of
// group readers, so partitions cap it. VisibilityTimeout is how long a redis
// entry stays pending before another consumer reclaims it.
type QueueConfig struct {
	Backend           string        `yaml:"backend"`
	Name              string        `yaml:"name"`
	DeadLetter        string        `yaml:"deadLetter"`
	Group             string        `yaml:"group"`
	Concurrency       int           `yaml:"concurrency"`
	MaxDeliveries     int           `yaml:"maxDeliveries"`
	VisibilityTimeout time.Duration `yaml:"visibilityTimeout"`
	BlockTimeout      time.Duration `yaml:"blockTimeout"`
}

// StorageConfig selects where uploaded PDFs are persisted. Backend is
// "local" (Dir) or "gcs" (Bucket).
type StorageConfig struct {
	Backend         string `yaml:"backend"`
	Dir             string `yaml:"dir"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentialsFile"`
}

// UploadConfig bounds accepted uploads.
type UploadConfig struct {
	MaxBytes  int64  `yaml:"maxBytes"`
	FormField string `yaml:"formField"`
}

// ChunkerConfig sets the character window used to split extracted text.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingConfig selects the embedding model. Provider is "ollama" or
// "openai".
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"baseUrl"`
	APIKey    string        `yaml:"apiKey"`
	BatchSize int           `yaml:"batchSize"`
	Timeout   time.Duration `yaml:"timeout"`
}

// IndexConfig selects the vector index. Backend is "pgvector", "qdrant" or
// "memory". All documents share Collection.
type IndexConfig struct {
	Backend    string        `yaml:"backend"`
	Collection string        `yaml:"collection"`
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"apiKey"`
	Timeout    time.Duration `yaml:"timeout"`
}

// GenerationConfig selects the generative model. Provider is "ollama" or
// "openai".
type GenerationConfig struct {
	Provider         string        `yaml:"provider"`
	Model            string        `yaml:"model"`
	BaseURL          string        `yaml:"baseUrl"`
	APIKey           string        `yaml:"apiKey"`
	Temperature      float64       `yaml:"temperature"`
	MaxTokens        int           `yaml:"maxTokens"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// RetrievalConfig controls the query path.
type RetrievalConfig struct {
	TopK         int    `yaml:"topK"`
	DefaultQuery string `yaml:"defaultQuery"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig toggles span logging for ingestion jobs.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "pdfchat",
			User:            "pdfchat",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "pdfchat-workers",
		},
		Queue: QueueConfig{
			Backend:           "redis",
			Name:              "file-upload-queue",
			DeadLetter:        "file-upload-queue-dead",
			Group:             "pdfchat-workers",
			Concurrency:       100,
			MaxDeliveries:     5,
			VisibilityTimeout: 5 * time.Minute,
			BlockTimeout:      5 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "local",
			Dir:     "./uploads",
		},
		Upload: UploadConfig{
			MaxBytes:  50 << 20,
			FormField: "pdf",
		},
		Chunker: ChunkerConfig{
			Size:    500,
			Overlap: 50,
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "all-minilm",
			BaseURL:   "http://localhost:11434",
			BatchSize: 32,
			Timeout:   30 * time.Second,
		},
		Index: IndexConfig{
			Backend:    "pgvector",
			Collection: "pdf-collection",
			URL:        "http://localhost:6333",
			Timeout:    10 * time.Second,
		},
		Generation: GenerationConfig{
			Provider:         "ollama",
			Model:            "llama3.1",
			BaseURL:          "http://localhost:11434",
			Temperature:      0.2,
			MaxTokens:        1024,
			Timeout:          60 * time.Second,
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		Retrieval: RetrievalConfig{
			TopK:         5,
			DefaultQuery: "What is this document about?",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads PDFCHAT_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PDFCHAT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PDFCHAT_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("PDFCHAT_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("PDFCHAT_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("PDFCHAT_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("PDFCHAT_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("PDFCHAT_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("PDFCHAT_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PDFCHAT_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PDFCHAT_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("PDFCHAT_QUEUE_BACKEND"); v != "" {
		cfg.Queue.Backend = v
	}
	if v := os.Getenv("PDFCHAT_QUEUE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.Concurrency = n
		}
	}
	if v := os.Getenv("PDFCHAT_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("PDFCHAT_STORAGE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("PDFCHAT_STORAGE_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("PDFCHAT_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("PDFCHAT_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("PDFCHAT_INDEX_BACKEND"); v != "" {
		cfg.Index.Backend = v
	}
	if v := os.Getenv("PDFCHAT_INDEX_URL"); v != "" {
		cfg.Index.URL = v
	}
	if v := os.Getenv("PDFCHAT_INDEX_API_KEY"); v != "" {
		cfg.Index.APIKey = v
	}
	if v := os.Getenv("PDFCHAT_GENERATION_BASE_URL"); v != "" {
		cfg.Generation.BaseURL = v
	}
	if v := os.Getenv("PDFCHAT_GENERATION_API_KEY"); v != "" {
		cfg.Generation.APIKey = v
	}
	if v := os.Getenv("PDFCHAT_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
	if v := os.Getenv("PDFCHAT_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PDFCHAT_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
