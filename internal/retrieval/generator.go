package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pdf-chat-platform/pkg/resilience"
)

// Generator produces an answer for a fully assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMGenerator calls a langchaingo model behind a timeout and a circuit
// breaker. Every failure, including an open circuit, wraps
// apperrors.ErrGenerationUnavailable, except a call the caller abandoned:
// that returns the context error and leaves the breaker untouched.
type LLMGenerator struct {
	model   llms.Model
	opts    []llms.CallOption
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewLLMGenerator wraps model. onStateChange, if set, observes the breaker.
func NewLLMGenerator(model llms.Model, cfg config.GenerationConfig, onStateChange func(string, resilience.State)) *LLMGenerator {
	var opts []llms.CallOption
	opts = append(opts, llms.WithTemperature(cfg.Temperature))
	if cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(cfg.MaxTokens))
	}
	return &LLMGenerator{
		model:   model,
		opts:    opts,
		timeout: cfg.Timeout,
		breaker: resilience.NewCircuitBreaker("generation", resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			ResetTimeout:     cfg.ResetTimeout,
			OnStateChange:    onStateChange,
		}),
		logger: slog.Default().With("component", "generator"),
	}
}

// NewModel builds the provider model named by cfg.Provider.
func NewModel(cfg config.GenerationConfig) (llms.Model, error) {
	switch cfg.Provider {
	case "ollama":
		llm, err := ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(cfg.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("creating ollama model: %w", err)
		}
		return llm, nil
	case "openai":
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating openai model: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("%w: unknown generation provider %q", apperrors.ErrInvalidConfiguration, cfg.Provider)
	}
}

func (g *LLMGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	var text string
	err := g.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		return resilience.WithTimeout(ctx, g.timeout, "generate", func(ctx context.Context) error {
			var err error
			text, err = llms.GenerateFromSinglePrompt(ctx, g.model, prompt, g.opts...)
			return err
		})
	})
	if err != nil && ctx.Err() != nil {
		return "", fmt.Errorf("generation abandoned: %w", err)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrGenerationUnavailable, err)
	}
	g.logger.Debug("generated answer", "prompt_chars", len(prompt), "answer_chars", len(text), "duration", time.Since(start))
	return text, nil
}

// BreakerState reports the circuit state, for health checks.
func (g *LLMGenerator) BreakerState() resilience.State {
	return g.breaker.GetState()
}
