package security

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxQueryLength is the longest accepted query, in characters.
const MaxQueryLength = 10000

// ValidationError represents a field validation error.
type ValidationError struct {
	Field      string
	Value      interface{}
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Constraint, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Constraint)
}

// ValidateQuery checks that a question is present, valid UTF-8 and no
// longer than MaxQueryLength characters.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return &ValidationError{Field: "query", Constraint: "required"}
	}

	if !utf8.ValidString(query) {
		return &ValidationError{Field: "query", Constraint: "must be valid UTF-8"}
	}

	if n := utf8.RuneCountInString(query); n > MaxQueryLength {
		return &ValidationError{
			Field:      "query",
			Value:      n,
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxQueryLength),
		}
	}

	return nil
}
