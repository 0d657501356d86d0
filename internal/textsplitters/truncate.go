package textsplitters

import (
	"strings"
	"unicode/utf8"
)

// TruncateAtSentenceBoundary returns a prefix of text no longer than
// maxChars runes, preferring to stop at a sentence boundary so a truncated
// context section doesn't end mid-word. Falls back to a hard rune cut when
// no whole sentence fits.
func TruncateAtSentenceBoundary(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if maxChars <= 0 || text == "" {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}

	var out strings.Builder
	used := 0
	for _, s := range sentencesOf(text) {
		sLen := utf8.RuneCountInString(s)
		sep := 0
		if out.Len() > 0 {
			sep = 1
		}
		if used+sep+sLen > maxChars {
			break
		}
		if sep == 1 {
			out.WriteString(" ")
		}
		out.WriteString(s)
		used += sep + sLen
	}
	if out.Len() > 0 {
		return out.String()
	}

	runes := []rune(text)
	if maxChars > len(runes) {
		maxChars = len(runes)
	}
	return string(runes[:maxChars])
}
