package narration

import (
	"regexp"
	"strings"
)

const censorMask = "***"

// Censor replaces every blacklisted word in text with a mask. Matching is
// case-insensitive and bounded on word edges, so "cat" does not hit
// "catalog".
func Censor(text string, blacklist []string) string {
	for _, word := range blacklist {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
		if err != nil {
			continue
		}
		text = re.ReplaceAllString(text, censorMask)
	}
	return text
}
