// Package llm provides text-generation backends behind a single Complete call.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"shipyard/internal/config"

	"golang.org/x/time/rate"
)

var (
	// ErrEmptyCompletion is returned when the provider answers without text.
	ErrEmptyCompletion = errors.New("empty completion")
	// ErrUnavailable is returned by the backend used when no provider is configured.
	ErrUnavailable = errors.New("generation backend not configured")
)

// StatusError is returned when the provider answers with a non-2xx status.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request failed: status %d: %s", e.Provider, e.Code, e.Body)
}

// Params tunes a single completion.
type Params struct {
	Temperature float64
	MaxTokens   int
}

// Backend produces text for a system and user prompt.
type Backend interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, p Params) (string, error)
}

// New selects the backend named by cfg.Provider and wraps it with a rate limiter.
func New(cfg config.LLMConfig) (Backend, error) {
	client := &http.Client{Timeout: cfg.Timeout}

	var b Backend
	switch cfg.Provider {
	case config.ProviderGroq:
		if cfg.GroqAPIKey == "" {
			return nil, errors.New("groq_api_key is required (env: GROQ_API_KEY)")
		}
		b = &Groq{APIKey: cfg.GroqAPIKey, Model: cfg.GroqModel, BaseURL: cfg.GroqBaseURL, Client: client}
	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, errors.New("gemini_api_key is required (env: GEMINI_API_KEY)")
		}
		b = &Gemini{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel, BaseURL: cfg.GeminiBaseURL, Client: client}
	case config.ProviderNone, "":
		return Unavailable{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	if cfg.RateLimit > 0 {
		b = NewLimited(b, cfg.RateLimit, 1)
	}
	return b, nil
}

// Unavailable always fails, so every generation uses its fallback.
type Unavailable struct{}

func (Unavailable) Complete(context.Context, string, string, Params) (string, error) {
	return "", ErrUnavailable
}

// Limited throttles calls to an underlying backend.
type Limited struct {
	next    Backend
	limiter *rate.Limiter
}

// NewLimited allows rps calls per second with the given burst.
func NewLimited(next Backend, rps float64, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Complete waits for a token, then delegates.
func (l *Limited) Complete(ctx context.Context, systemPrompt, userPrompt string, p Params) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return l.next.Complete(ctx, systemPrompt, userPrompt, p)
}

func clientOrDefault(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 60 * time.Second}
}
