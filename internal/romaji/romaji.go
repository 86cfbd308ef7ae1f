// Package romaji turns hiragana into the keystroke stream a romaji-input IME
// expects.
package romaji

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	nasal       = "ん"
	nasalJoiner = "nn"
	sokuon      = 'っ'
)

// Engine converts kana to romaji keystrokes. It is safe for concurrent use.
type Engine struct {
	table map[string]string
}

// New returns an Engine backed by the embedded table.
func New() *Engine {
	return &Engine{table: kana}
}

var defaultEngine = New()

// Convert converts text with the default Engine.
func Convert(text string) string {
	return defaultEngine.Convert(text)
}

// Convert returns the keystroke sequence for text. Characters with no table
// entry are passed through unchanged.
func (e *Engine) Convert(text string) string {
	text = foldKatakana(norm.NFC.String(text))
	text = strings.ReplaceAll(text, "ー", "-")
	text = voicedDigraphs(text)

	// Every ん becomes a split point, including leading, trailing and
	// repeated ones, so each contributes exactly one "nn".
	parts := strings.Split(text, nasal)
	for i, part := range parts {
		parts[i] = stripSeparators(e.transliterate(part))
	}
	return strings.Join(parts, nasalJoiner)
}

// voicedDigraphs rewrites a voiced ざ/だ-row kana followed by a small kana
// into base romaji plus an x-prefixed glide (でぃ -> dexi).
func voicedDigraphs(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(runes); i++ {
		if i+1 < len(runes) {
			base, okBase := voicedBase[runes[i]]
			glide, okGlide := smallGlide[runes[i+1]]
			if okBase && okGlide {
				b.WriteString(base)
				b.WriteString(glide)
				i++
				continue
			}
		}
		b.WriteRune(runes[i])
	}
	return b.String()
}

func (e *Engine) transliterate(fragment string) string {
	runes := []rune(fragment)
	var b strings.Builder
	b.Grow(len(fragment) * 2)
	for i := 0; i < len(runes); {
		if runes[i] == sokuon {
			if c, ok := e.doubled(runes, i+1); ok {
				b.WriteByte(c)
			} else {
				b.WriteString(e.table[string(sokuon)])
			}
			i++
			continue
		}
		token, n := e.lookup(runes, i)
		b.WriteString(token)
		i += n
	}
	return b.String()
}

// lookup returns the romaji for the longest table match at i and the number
// of runes consumed. A kana followed by an unknown small kana is spelled as
// base plus glide; anything else unknown passes through as is.
func (e *Engine) lookup(runes []rune, i int) (string, int) {
	if i+1 < len(runes) {
		if r, ok := e.table[string(runes[i:i+2])]; ok {
			return r, 2
		}
	}
	if r, ok := e.table[string(runes[i])]; ok {
		return r, 1
	}
	return string(runes[i]), 1
}

// doubled reports the consonant a sokuon at position i-1 should double.
func (e *Engine) doubled(runes []rune, i int) (byte, bool) {
	if i >= len(runes) {
		return 0, false
	}
	next := runes[i]
	var lead byte
	switch {
	case next < unicode.MaxASCII:
		lead = byte(unicode.ToLower(next))
	default:
		token, _ := e.lookup(runes, i)
		if token == "" || token[0] >= unicode.MaxASCII {
			return 0, false
		}
		lead = token[0]
	}
	if strings.IndexByte(doublingConsonants, lead) < 0 {
		return 0, false
	}
	return lead, true
}

// foldKatakana maps katakana onto hiragana so both scripts share one table.
func foldKatakana(text string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'ァ' && r <= 'ヶ' {
			return r - ('ァ' - 'ぁ')
		}
		return r
	}, text)
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\'' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
