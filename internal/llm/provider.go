// Package llm wraps the completion providers behind a single Generator
// interface: one system prompt, one user turn, one text response. Transport
// failures, rate limits, and malformed responses all surface as a generation
// error; callers capture them per row and never special-case the cause.
package llm

import "context"

type GenerateRequest struct {
	SystemPrompt string
	UserPrompt   string
	// Model and MaxTokens fall back to the gateway's configured defaults.
	Model     string
	MaxTokens int
	// Provider selects a configured provider by name; empty uses the default.
	Provider string
}

type GenerateResponse struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
}

// Generator is the single dependency the evaluation and judge jobs hold.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider is one concrete completion backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}
