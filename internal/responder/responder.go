// Package responder provides optional answer synthesis over an
// OpenAI-compatible chat completion API.
package responder

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// Responder synthesizes an answer from a prompt.
type Responder interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds responder configuration. An empty APIKey leaves the
// responder absent.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
}

// Enabled reports whether a responder is configured.
func (c Config) Enabled() bool { return c.APIKey != "" }

// LLM is a Responder backed by an OpenAI-compatible endpoint.
type LLM struct {
	model llms.Model
}

// New creates an LLM responder from config.
func New(cfg Config) (*LLM, error) {
	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating responder client: %w", err)
	}
	return &LLM{model: model}, nil
}

// Generate returns the model's completion for the prompt.
func (l *LLM) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := llms.GenerateFromSinglePrompt(ctx, l.model, prompt)
	if err != nil {
		return "", fmt.Errorf("generating response: %w", err)
	}
	return text, nil
}

// FromConfig selects the responder once at startup. It returns nil when no
// API key is configured; callers treat a nil Responder as absent and return
// the raw context instead of synthesized answers.
func FromConfig(cfg Config, logger *zap.Logger) (Responder, error) {
	if !cfg.Enabled() {
		logger.Warn("responder API key not provided, responses will return raw context")
		return nil, nil
	}
	r, err := New(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("responder configured", zap.String("model", cfg.Model))
	return r, nil
}
