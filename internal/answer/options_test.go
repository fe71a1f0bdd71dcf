package answer

import "testing"

func TestHasNumberedOptions(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  bool
	}{
		{"four options", "В каком году основан X?\n1. 1900\n2. 1930\n3. 1940\n4. 1950", true},
		{"two options", "Pick one\n1. yes\n2. no", true},
		{"leading spaces", "Question\n  1. a\n  2. b", true},
		{"ten", "Q\n9. a\n10. b", true},
		{"no options", "Tell me about X", false},
		{"single option", "Q\n1. only", false},
		{"repeated number", "Q\n1. a\n1. b", false},
		{"out of range", "Q\n0. a\n11. b", false},
		{"number without text", "Q\n1.\n2.", false},
		{"year in sentence", "Founded in 1900. Why?", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasNumberedOptions(tt.query); got != tt.want {
				t.Errorf("HasNumberedOptions(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}
