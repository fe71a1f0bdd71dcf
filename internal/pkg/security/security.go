// Package security provides input validation and log sanitization for
// untrusted request data.
package security

import (
	"strings"
	"unicode"
)

// logPreviewLength is how many characters of user text SanitizeForLog keeps.
const logPreviewLength = 200

// redacted replaces sensitive values.
const redacted = "[REDACTED]"

// SanitizeForLog makes untrusted text safe to log: line breaks and tabs are
// escaped, other control characters dropped, and the result truncated.
func SanitizeForLog(s string) string {
	return SanitizeForLogWithLength(s, logPreviewLength)
}

// SanitizeForLogWithLength is SanitizeForLog with a custom max length.
func SanitizeForLogWithLength(s string, maxLen int) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(min(len(s), maxLen+10))

	count := 0
	for _, r := range s {
		if count >= maxLen {
			b.WriteString("...")
			break
		}

		switch r {
		case '\n':
			b.WriteString(`\n`)
			count += 2
		case '\r':
			b.WriteString(`\r`)
			count += 2
		case '\t':
			b.WriteString(`\t`)
			count += 2
		default:
			if !unicode.IsControl(r) {
				b.WriteRune(r)
				count++
			}
		}
	}

	return b.String()
}

// sensitiveKeyPatterns mark keys whose values must never be logged.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"key",
	"credential",
	"auth",
}

// MaskSensitiveMap returns a copy of m with sensitive values redacted.
// Empty values stay empty so a missing credential is still visible.
func MaskSensitiveMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}

	masked := make(map[string]string, len(m))
	for k, v := range m {
		if v != "" && isSensitiveKey(k) {
			masked[k] = redacted
		} else {
			masked[k] = v
		}
	}
	return masked
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, p := range sensitiveKeyPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
