package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loceval/loceval/internal/apperrors"
	"github.com/loceval/loceval/internal/config"
)

// Gateway routes generation calls to a configured provider with retries,
// a bounded per-call timeout, and an optional fallback provider.
type Gateway struct {
	providers        map[string]Provider
	defaultProvider  string
	fallbackProvider string
	defaultModel     string
	defaultMaxTokens int
	maxRetries       int
	requestTimeout   time.Duration
}

func NewGateway(cfg config.LLMConfig) *Gateway {
	g := &Gateway{
		providers:        make(map[string]Provider),
		defaultProvider:  cfg.DefaultProvider,
		fallbackProvider: cfg.FallbackProvider,
		defaultModel:     cfg.DefaultModel,
		defaultMaxTokens: cfg.MaxTokens,
		maxRetries:       cfg.MaxRetries,
		requestTimeout:   cfg.RequestTimeout,
	}

	if cfg.AnthropicKey != "" {
		g.providers["anthropic"] = NewAnthropicProvider(cfg.AnthropicKey)
	}
	if cfg.OpenAIKey != "" {
		g.providers["openai"] = NewOpenAIProvider(cfg.OpenAIKey)
	}

	return g
}

func (g *Gateway) Provider(name string) (Provider, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

func (g *Gateway) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Model == "" {
		req.Model = g.defaultModel
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = g.defaultMaxTokens
	}
	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
	}

	if g.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.requestTimeout)
		defer cancel()
	}

	resp, err := g.generateWithRetry(ctx, providerName, req)
	if err != nil && g.fallbackProvider != "" && g.fallbackProvider != providerName {
		slog.Warn("primary provider failed, trying fallback",
			"primary", providerName,
			"fallback", g.fallbackProvider,
			"error", err,
		)
		resp, err = g.generateWithRetry(ctx, g.fallbackProvider, req)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrGeneration, err)
	}
	return resp, nil
}

func (g *Gateway) generateWithRetry(ctx context.Context, providerName string, req GenerateRequest) (*GenerateResponse, error) {
	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			slog.Debug("retrying LLM call", "provider", providerName, "attempt", attempt)
		}

		resp, err := p.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("all retries exhausted for %s: %w", providerName, lastErr)
}
