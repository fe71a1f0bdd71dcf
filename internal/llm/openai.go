package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIConfig configures the OpenAI-compatible provider.
type OpenAIConfig struct {
	APIKey string

	// BaseURL points the client at an OpenAI-compatible vendor. Empty uses
	// the OpenAI endpoint.
	BaseURL string
}

// OpenAI implements Provider with the chat completions API.
type OpenAI struct {
	client openai.Client
}

// NewOpenAI creates an OpenAI provider. SDK-level retries are disabled; the
// caller owns the retry policy.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{client: openai.NewClient(opts...)}, nil
}

// Name implements Provider.
func (p *OpenAI) Name() string {
	return "openai"
}

// Complete implements Provider.
func (p *OpenAI) Complete(ctx context.Context, messages []Message, params Params) (string, error) {
	req := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(params.Model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(params.Temperature),
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = openai.Int(int64(params.MaxTokens))
	}

	completion, err := p.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("openai chat completion: no choices returned")
	}

	return completion.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
