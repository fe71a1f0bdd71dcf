package answer

import (
	"regexp"
	"strconv"
	"strings"
)

// MaxOption is the highest option number a multiple-choice answer may carry.
const MaxOption = 10

var optionLine = regexp.MustCompile(`^\s*(\d{1,2})\.\s*\S`)

// HasNumberedOptions reports whether query enumerates answer options as
// "N. text" lines, N in 1..MaxOption, with at least two distinct numbers.
func HasNumberedOptions(query string) bool {
	seen := make(map[int]struct{})
	for _, line := range strings.Split(query, "\n") {
		m := optionLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > MaxOption {
			continue
		}
		seen[n] = struct{}{}
		if len(seen) >= 2 {
			return true
		}
	}
	return false
}
