// Package embedding maps text to fixed-dimension vectors through an
// external embedding model reached via langchaingo.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/resilience"
)

// Embedder turns text into vectors. Embed returns one vector per input, in
// input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Service is the langchaingo-backed Embedder. Inputs are sent in batches of
// BatchSize; every call is bounded by Timeout.
type Service struct {
	embedder embeddings.Embedder
	timeout  time.Duration
	logger   *slog.Logger
}

// Options configures a Service.
type Options struct {
	BatchSize int
	Timeout   time.Duration
}

// New wraps client, e.g. an *ollama.LLM or *openai.LLM.
func New(client embeddings.EmbedderClient, opts Options) (*Service, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	e, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(opts.BatchSize),
		embeddings.WithStripNewLines(true),
	)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return &Service{
		embedder: e,
		timeout:  opts.Timeout,
		logger:   slog.Default().With("component", "embedder"),
	}, nil
}

// NewClient builds the provider client named by cfg.Provider.
func NewClient(cfg config.EmbeddingConfig) (embeddings.EmbedderClient, error) {
	switch cfg.Provider {
	case "ollama":
		llm, err := ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(cfg.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("creating ollama embedding client: %w", err)
		}
		return llm, nil
	case "openai":
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithEmbeddingModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating openai embedding client: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", apperrors.ErrInvalidConfiguration, cfg.Provider)
	}
}

func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	start := time.Now()
	var vectors [][]float32
	err := resilience.WithTimeout(ctx, s.timeout, "embed documents", func(ctx context.Context) error {
		var err error
		vectors, err = s.embedder.EmbedDocuments(ctx, texts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrEmbeddingUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", apperrors.ErrEmbeddingUnavailable, len(vectors), len(texts))
	}
	if err := sameDimension(vectors); err != nil {
		return nil, err
	}
	s.logger.Debug("embedded batch", "texts", len(texts), "dimension", len(vectors[0]), "duration", time.Since(start))
	return vectors, nil
}

func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := resilience.WithTimeout(ctx, s.timeout, "embed query", func(ctx context.Context) error {
		var err error
		vector, err = s.embedder.EmbedQuery(ctx, text)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrEmbeddingUnavailable, err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", apperrors.ErrEmbeddingUnavailable)
	}
	return vector, nil
}

func sameDimension(vectors [][]float32) error {
	dim := len(vectors[0])
	if dim == 0 {
		return fmt.Errorf("%w: empty vector", apperrors.ErrEmbeddingUnavailable)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, expected %d", apperrors.ErrEmbeddingUnavailable, i, len(v), dim)
		}
	}
	return nil
}
