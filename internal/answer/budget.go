package answer

import (
	"regexp"
	"strings"
)

var segmentBreak = regexp.MustCompile(`\n[ \t]*\n`)

// BudgetContext keeps the first maxSegments blank-line separated segments of
// text and then caps the result at maxChars runes. Zero limits are ignored.
func BudgetContext(text string, maxSegments, maxChars int) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return ""
	}

	var kept []string
	for _, seg := range segmentBreak.Split(text, -1) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if maxSegments > 0 && len(kept) == maxSegments {
			break
		}
		kept = append(kept, seg)
	}

	out := strings.Join(kept, "\n\n")
	if maxChars > 0 {
		if runes := []rune(out); len(runes) > maxChars {
			out = strings.TrimSpace(string(runes[:maxChars]))
		}
	}
	return out
}
