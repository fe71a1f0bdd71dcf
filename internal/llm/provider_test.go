package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"google.golang.org/genai"

	"github.com/campusqa/campusqa/internal/config"
)

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), config.LLMConfig{Provider: "llama"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNew_MissingKeys(t *testing.T) {
	tests := []string{"openai", "gemini"}
	for _, provider := range tests {
		t.Run(provider, func(t *testing.T) {
			if _, err := New(context.Background(), config.LLMConfig{Provider: provider}); err == nil {
				t.Fatal("expected error without api key")
			}
		})
	}
}

func TestNew_OpenAI(t *testing.T) {
	p, err := New(context.Background(), config.LLMConfig{Provider: "openai", APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("Name() = %s, want openai", p.Name())
	}
}

func chatCompletionServer(t *testing.T, status int, content string, calls *atomic.Int32, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			_ = json.Unmarshal(body, captured)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"upstream failure","type":"server_error"}}`))
			return
		}
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAI_Complete(t *testing.T) {
	var calls atomic.Int32
	var captured map[string]any
	srv := chatCompletionServer(t, http.StatusOK, `{"answer":null}`, &calls, &captured)

	p, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}

	text, err := p.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "rules"},
		{Role: RoleUser, Content: "question"},
	}, Params{Model: "gpt-4o-mini", Temperature: 0.7, MaxTokens: 1000})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != `{"answer":null}` {
		t.Errorf("text = %q", text)
	}
	if captured["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", captured["model"])
	}
	msgs, _ := captured["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", captured["messages"])
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "system" {
		t.Errorf("first role = %v, want system", first["role"])
	}
}

func TestOpenAI_CompleteSendsZeroTemperature(t *testing.T) {
	var calls atomic.Int32
	var captured map[string]any
	srv := chatCompletionServer(t, http.StatusOK, `{"answer":1}`, &calls, &captured)

	p, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}

	if _, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, Params{Model: "m", Temperature: 0}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	temp, ok := captured["temperature"]
	if !ok {
		t.Fatalf("temperature missing from request: %v", captured)
	}
	if temp != float64(0) {
		t.Errorf("temperature = %v, want 0", temp)
	}
}

func TestGenerateConfig(t *testing.T) {
	tests := []struct {
		name      string
		params    Params
		wantTemp  float32
		wantLimit int32
	}{
		{"zero temperature kept", Params{Temperature: 0}, 0, 0},
		{"temperature and limit", Params{Temperature: 0.7, MaxTokens: 1000}, 0.7, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := generateConfig(nil, tt.params)
			if cfg.Temperature == nil {
				t.Fatal("Temperature not set")
			}
			if *cfg.Temperature != tt.wantTemp {
				t.Errorf("Temperature = %v, want %v", *cfg.Temperature, tt.wantTemp)
			}
			if cfg.MaxOutputTokens != tt.wantLimit {
				t.Errorf("MaxOutputTokens = %d, want %d", cfg.MaxOutputTokens, tt.wantLimit)
			}
			if cfg.ResponseMIMEType != "application/json" {
				t.Errorf("ResponseMIMEType = %q, want application/json", cfg.ResponseMIMEType)
			}
		})
	}
}

func TestOpenAI_CompleteErrorNotRetriedBySDK(t *testing.T) {
	var calls atomic.Int32
	srv := chatCompletionServer(t, http.StatusInternalServerError, "", &calls, nil)

	p, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}

	if _, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, Params{Model: "m"}); err == nil {
		t.Fatal("expected error on 500")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

func TestToGeminiContents(t *testing.T) {
	system, contents := toGeminiContents([]Message{
		{Role: RoleSystem, Content: "rules"},
		{Role: RoleUser, Content: "question"},
		{Role: RoleUser, Content: "context"},
	})

	if system == nil || len(system.Parts) != 1 || system.Parts[0].Text != "rules" {
		t.Fatalf("system = %+v", system)
	}
	if len(contents) != 2 {
		t.Fatalf("contents = %d, want 2", len(contents))
	}
	for i, c := range contents {
		if c.Role != string(genai.RoleUser) {
			t.Errorf("contents[%d].Role = %s, want user", i, c.Role)
		}
	}
	if contents[1].Parts[0].Text != "context" {
		t.Errorf("order not preserved: %+v", contents[1].Parts[0])
	}
}

func TestToGeminiContents_NoSystem(t *testing.T) {
	system, contents := toGeminiContents([]Message{{Role: RoleUser, Content: "q"}})
	if system != nil {
		t.Errorf("system = %+v, want nil", system)
	}
	if len(contents) != 1 {
		t.Errorf("contents = %d, want 1", len(contents))
	}
}
