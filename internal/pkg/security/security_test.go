package security

import (
	"strings"
	"testing"
)

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"simple", "hello world", "hello world"},
		{"newline", "line1\nline2", `line1\nline2`},
		{"carriage return", "line1\rline2", `line1\rline2`},
		{"tab", "col1\tcol2", `col1\tcol2`},
		{"control chars", "hello\x00\x01\x02world", "helloworld"},
		{"long string", strings.Repeat("a", 300), strings.Repeat("a", 200) + "..."},
		{"cyrillic", "Когда основан университет?", "Когда основан университет?"},
		{"log injection", "q\nERROR: fake error", `q\nERROR: fake error`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeForLog(tt.input); got != tt.expected {
				t.Errorf("SanitizeForLog(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMaskSensitiveMap(t *testing.T) {
	m := map[string]string{
		"llm.model":       "gpt-4o-mini",
		"llm.api_key":     "sk-123",
		"search.api_key":  "",
		"cache.redis_url": "redis://redis:6379/0",
		"secret_token":    "tok123",
	}

	masked := MaskSensitiveMap(m)

	if masked["llm.model"] != "gpt-4o-mini" {
		t.Error("llm.model should not be masked")
	}
	if masked["cache.redis_url"] != "redis://redis:6379/0" {
		t.Error("cache.redis_url should not be masked")
	}
	for _, key := range []string{"llm.api_key", "secret_token"} {
		if masked[key] != "[REDACTED]" {
			t.Errorf("%s should be masked, got %q", key, masked[key])
		}
	}
	if masked["search.api_key"] != "" {
		t.Errorf("empty credential should stay empty, got %q", masked["search.api_key"])
	}
	if m["llm.api_key"] != "sk-123" {
		t.Error("original map should not be modified")
	}
	if MaskSensitiveMap(nil) != nil {
		t.Error("MaskSensitiveMap(nil) should be nil")
	}
}
