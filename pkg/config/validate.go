package config

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
)

// Validate checks that the configuration is internally consistent. All
// problems are reported together, wrapped in ErrInvalidConfiguration.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Server.Port <= 0 {
		add("server.port must be positive")
	}
	if c.Chunker.Size <= 0 {
		add("chunker.size must be positive")
	}
	if c.Chunker.Overlap <= 0 {
		add("chunker.overlap must be positive")
	}
	if c.Chunker.Overlap >= c.Chunker.Size {
		add("chunker.overlap (%d) must be smaller than chunker.size (%d)", c.Chunker.Overlap, c.Chunker.Size)
	}
	if c.Upload.MaxBytes <= 0 {
		add("upload.maxBytes must be positive")
	}
	if c.Upload.FormField == "" {
		add("upload.formField is required")
	}
	if c.Retrieval.TopK <= 0 {
		add("retrieval.topK must be positive")
	}
	if c.Queue.Concurrency <= 0 {
		add("queue.concurrency must be positive")
	}
	if c.Queue.MaxDeliveries <= 0 {
		add("queue.maxDeliveries must be positive")
	}
	if c.Queue.Name == "" {
		add("queue.name is required")
	}
	if c.Index.Collection == "" {
		add("index.collection is required")
	}
	if c.Embedding.BatchSize <= 0 {
		add("embedding.batchSize must be positive")
	}

	switch c.Queue.Backend {
	case "redis":
		if c.Queue.VisibilityTimeout <= 0 {
			add("queue.visibilityTimeout must be positive for the redis backend")
		}
	case "kafka":
	default:
		add("queue.backend %q is not one of redis, kafka", c.Queue.Backend)
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.Dir == "" {
			add("storage.dir is required for the local backend")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			add("storage.bucket is required for the gcs backend")
		}
	default:
		add("storage.backend %q is not one of local, gcs", c.Storage.Backend)
	}
	switch c.Index.Backend {
	case "pgvector", "memory":
	case "qdrant":
		if c.Index.URL == "" {
			add("index.url is required for the qdrant backend")
		}
	default:
		add("index.backend %q is not one of pgvector, qdrant, memory", c.Index.Backend)
	}
	for name, provider := range map[string]string{
		"embedding.provider":  c.Embedding.Provider,
		"generation.provider": c.Generation.Provider,
	} {
		if provider != "ollama" && provider != "openai" {
			add("%s %q is not one of ollama, openai", name, provider)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", apperrors.ErrInvalidConfiguration, strings.Join(problems, "; "))
}
