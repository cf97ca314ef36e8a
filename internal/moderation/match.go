package moderation

import (
	"strings"

	"golang.org/x/text/cases"
)

// MatchForbidden returns the first configured word contained in content,
// compared with Unicode case folding. Returns "" when nothing matches.
func MatchForbidden(content string, words []string) string {
	if content == "" || len(words) == 0 {
		return ""
	}

	folder := cases.Fold()
	folded := folder.String(content)

	for _, word := range words {
		needle := strings.TrimSpace(word)
		if needle == "" {
			continue
		}

		if strings.Contains(folded, folder.String(needle)) {
			return word
		}
	}

	return ""
}
