// Language-model text generation, and helpers to pull usable content out of raw model output.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var ErrMalformedOutput = errors.New("malformed generation output")

type Request struct {
	// optional
	System    string
	Prompt    string
	MaxTokens int
}

type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

const DefaultMaxTokens = 1024

type Config struct {
	// "anthropic" or "openai"
	Provider string
	Model    string
	APIKey   string
	// optional, for proxies and tests
	BaseURL string
}

func New(config Config, logger *slog.Logger) (Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("generation API key is required")
	}
	var gen Generator
	switch config.Provider {
	case "anthropic":
		gen = NewAnthropicGenerator(config)
	case "openai":
		gen = NewOpenAIGenerator(config)
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", config.Provider)
	}
	return &instrumented{
		inner:    gen,
		provider: config.Provider,
		logger:   logger.With("component", "generate", "provider", config.Provider, "model", config.Model),
	}, nil
}

// Wraps a Generator with metrics and logging.
type instrumented struct {
	inner    Generator
	provider string
	logger   *slog.Logger
}

func (g *instrumented) Generate(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	out, err := g.inner.Generate(ctx, req)
	generationDuration.WithLabelValues(g.provider).Observe(time.Since(start).Seconds())
	if err != nil {
		generationCount.WithLabelValues(g.provider, "error").Inc()
		g.logger.Warn("generation failed", "err", err, "duration", time.Since(start))
		return "", err
	}
	generationCount.WithLabelValues(g.provider, "ok").Inc()
	g.logger.Debug("generation complete", "duration", time.Since(start), "length", len(out))
	return out, nil
}
