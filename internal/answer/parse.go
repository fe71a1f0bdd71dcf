package answer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// DegradedReasoning is the reasoning returned when model output is unusable.
const DegradedReasoning = "Извините, произошла ошибка при обработке ответа."

// ErrInvalidOutput marks model output that failed parsing or validation.
var ErrInvalidOutput = errors.New("invalid model output")

var codeFence = regexp.MustCompile("(?s)^```[A-Za-z0-9_+-]*[ \t]*\n?(.*?)\n?[ \t]*```$")

var recordSchema = &jsonschema.Schema{
	Type:     "object",
	Required: []string{"answer", "reasoning", "sources"},
	Properties: map[string]*jsonschema.Schema{
		"answer":    {Types: []string{"integer", "null"}},
		"reasoning": {Type: "string"},
		"sources":   {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
	},
}

var resolvedSchema = mustResolve(recordSchema)

func mustResolve(s *jsonschema.Schema) *jsonschema.Resolved {
	r, err := s.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("resolving answer schema: %v", err))
	}
	return r
}

// StripCodeFence removes a surrounding Markdown code fence, with or without
// a language tag, and trims whitespace.
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if m := codeFence.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	return s
}

// Parse validates raw model output and converts it into a Record.
//
// hasOptions tells whether the originating query enumerates options; without
// them the answer is always nil. fallbackModel is used when the output does
// not name a model. Any problem is reported as an error wrapping
// ErrInvalidOutput.
func Parse(raw string, hasOptions bool, fallbackModel string) (*Record, error) {
	body := StripCodeFence(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: empty output", ErrInvalidOutput)
	}

	dec := json.NewDecoder(strings.NewReader(body))
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrInvalidOutput)
	}

	if err := resolvedSchema.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	// Schema validation guarantees these shapes.
	obj := instance.(map[string]any)

	reasoning := obj["reasoning"].(string)
	if strings.TrimSpace(reasoning) == "" {
		return nil, fmt.Errorf("%w: empty reasoning", ErrInvalidOutput)
	}

	rec := &Record{
		Reasoning: reasoning,
		Sources:   make([]string, 0, MaxSources),
		Model:     fallbackModel,
	}

	if hasOptions {
		rec.Answer = optionNumber(obj["answer"])
	}

	for _, s := range obj["sources"].([]any) {
		rec.Sources = append(rec.Sources, s.(string))
	}

	if m, ok := obj["model"].(string); ok && strings.TrimSpace(m) != "" {
		rec.Model = strings.TrimSpace(m)
	}

	rec.normalize()
	return rec, nil
}

// optionNumber converts a decoded JSON answer into an option number, or nil
// when it is null or outside 1..MaxOption.
func optionNumber(v any) *int {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || f < 1 || f > MaxOption {
		return nil
	}
	return IntPtr(int(f))
}

// Degraded returns the fallback record produced for unusable model output.
func Degraded(model string) *Record {
	return &Record{
		Answer:    nil,
		Reasoning: DegradedReasoning,
		Sources:   []string{},
		Model:     model,
	}
}
