package corpus

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Clean strips control and format characters, composes the text to NFC and
// truncates it to maxLen runes. maxLen <= 0 disables truncation.
func Clean(line string, maxLen int) string {
	line = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, line)
	line = strings.TrimSpace(norm.NFC.String(line))
	if maxLen > 0 {
		runes := []rune(line)
		if len(runes) > maxLen {
			line = string(runes[:maxLen])
		}
	}
	return line
}

// Foreign returns the distinct characters of text that are neither kana,
// the long-vowel mark, Japanese punctuation nor ASCII. Such characters are
// typed through unchanged.
func Foreign(text string) []rune {
	var out []rune
	seen := map[rune]struct{}{}
	for _, r := range text {
		if isExpected(r) {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func isExpected(r rune) bool {
	switch {
	case r < unicode.MaxASCII:
		return true
	case unicode.In(r, unicode.Hiragana, unicode.Katakana):
		return true
	case r == 'ー' || r == '　':
		return true
	case strings.ContainsRune("、。「」・！？〜", r):
		return true
	default:
		return false
	}
}
