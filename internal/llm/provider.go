// Package llm provides language model providers behind a single interface.
//
// Providers return raw completion text. Every error they return is treated
// by callers as a transport-level failure; interpreting the text is the
// caller's job.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/campusqa/campusqa/internal/config"
)

// Role identifies the author of a message turn.
type Role string

// Roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Params are generation parameters for one completion.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Provider completes a conversation and returns the raw model text.
type Provider interface {
	Complete(ctx context.Context, messages []Message, params Params) (string, error)
	Name() string
}

// New creates the provider selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		return NewOpenAI(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
		})
	case "gemini":
		return NewGemini(ctx, GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
