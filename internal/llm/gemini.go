package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey string
}

// Gemini implements Provider with the Gemini API.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &Gemini{client: client}, nil
}

// Name implements Provider.
func (p *Gemini) Name() string {
	return "gemini"
}

// Complete implements Provider. System turns are merged into the system
// instruction; the remaining turns become the conversation contents.
func (p *Gemini) Complete(ctx context.Context, messages []Message, params Params) (string, error) {
	system, contents := toGeminiContents(messages)

	resp, err := p.client.Models.GenerateContent(ctx, params.Model, contents, generateConfig(system, params))
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New("gemini generate content: empty response")
	}
	return text, nil
}

// generateConfig asks for a JSON body. Temperature is always sent so that a
// configured zero is not replaced by the model default.
func generateConfig(system *genai.Content, params Params) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Temperature:       genai.Ptr(float32(params.Temperature)),
		ResponseMIMEType:  "application/json",
	}
	if params.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(params.MaxTokens)
	}
	return cfg
}

func toGeminiContents(messages []Message) (*genai.Content, []*genai.Content) {
	var systemParts []string
	contents := make([]*genai.Content, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			systemParts = append(systemParts, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	if len(systemParts) == 0 {
		return nil, contents
	}
	return genai.NewContentFromText(strings.Join(systemParts, "\n\n"), genai.RoleUser), contents
}
