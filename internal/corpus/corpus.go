// Package corpus loads phrase corpora, one phrase per line.
package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/verte-zerg/imebench/internal/model"
)

// DefaultMaxLen is the rune limit applied when Options.MaxLen is unset.
const DefaultMaxLen = 200

const maxLineBytes = 1 << 20

// ErrEmpty is returned when a corpus has no phrases after filtering.
var ErrEmpty = errors.New("corpus is empty")

// Options controls how lines are cleaned.
type Options struct {
	// MaxLen truncates phrases to this many runes. Zero means DefaultMaxLen,
	// a negative value disables truncation.
	MaxLen int
}

func (o Options) maxLen() int {
	switch {
	case o.MaxLen == 0:
		return DefaultMaxLen
	case o.MaxLen < 0:
		return 0
	default:
		return o.MaxLen
	}
}

// Load reads phrases from the provided file path.
func Load(path string, opts Options) ([]model.Phrase, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only corpus.
			_ = cerr
		}
	}()
	phrases, err := Read(file, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return phrases, nil
}

// Read parses phrases from r. Blank lines and lines starting with '#' are
// skipped; the rest are cleaned and truncated, never rejected.
func Read(r io.Reader, opts Options) ([]model.Phrase, error) {
	limit := opts.maxLen()
	var phrases []model.Phrase
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		if lineNo == 1 {
			raw = strings.TrimPrefix(raw, "\ufeff")
		}
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		text := Clean(trimmed, limit)
		if text == "" {
			continue
		}
		phrases = append(phrases, model.Phrase{
			Index: len(phrases),
			Line:  lineNo,
			Text:  text,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(phrases) == 0 {
		return nil, ErrEmpty
	}
	return phrases, nil
}
