package summarizer

import (
	"fmt"
	"unicode/utf8"
)

const promptTemplate = `Analyze the following logs from container **%s** and produce a summary:

1. Most relevant messages
2. Critical errors or warnings
3. Overall service health
4. Recommended actions

Respond in %s, briefly and in a structured way.

Logs:
%s`

// BuildPrompt renders the analysis instructions followed by the log sample
// capped to maxChars characters.
func BuildPrompt(target, language, logs string, maxChars int) string {
	return fmt.Sprintf(promptTemplate, target, language, Truncate(logs, maxChars))
}

// Truncate keeps the first maxChars characters of s. Input at or under the
// cap is returned unchanged. Counting is by code point, so multi-byte
// characters are never split.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i]
		}
		n++
	}
	return s
}
