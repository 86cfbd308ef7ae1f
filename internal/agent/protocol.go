// Package agent speaks the line protocol of the external automation agent.
//
// Requests are single UTF-8 lines. The agent answers with zero or more
// "INFO:" lines followed by one payload line. A payload starting with
// "ERROR:" reports a transient failure.
package agent

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/imebench/internal/model"
)

// Line prefixes of the agent protocol.
const (
	InfoPrefix  = "INFO:"
	ErrorPrefix = "ERROR:"
)

// DefaultSettle is sent in place of a settle override to keep the agent's
// own delay.
const DefaultSettle = "default"

// ErrEmptyPayload is returned by ParsePayload for an empty answer.
var ErrEmptyPayload = fmt.Errorf("%w: empty payload", model.ErrTransient)

// Error is an "ERROR:" payload reported by the agent.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return "agent reported error: " + e.Message
}

// Is makes agent errors match model.ErrTransient.
func (e *Error) Is(target error) bool {
	return target == model.ErrTransient
}

// IsInfo reports whether line is a diagnostic line to skip.
func IsInfo(line string) bool {
	return strings.HasPrefix(line, InfoPrefix)
}

// ParsePayload interprets a payload line. It returns an *Error for
// "ERROR:" payloads and ErrEmptyPayload for blank ones.
func ParsePayload(line string) (string, error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, ErrorPrefix) {
		return "", &Error{Message: strings.TrimSpace(strings.TrimPrefix(line, ErrorPrefix))}
	}
	if line == "" {
		return "", ErrEmptyPayload
	}
	return line, nil
}

// EncodeRequest validates a request and returns it newline terminated.
func EncodeRequest(text string) (string, error) {
	if strings.ContainsAny(text, "\r\n") {
		return "", errors.New("agent request contains a line break")
	}
	return text + "\n", nil
}

// Args returns the positional startup arguments: settle override in
// milliseconds (or "default"), log path and input mode.
func Args(settle time.Duration, logPath, mode string) []string {
	s := DefaultSettle
	if settle > 0 {
		s = strconv.FormatInt(settle.Milliseconds(), 10)
	}
	if mode == "" {
		mode = model.ModeHiragana
	}
	return []string{s, logPath, mode}
}

// ValidMode reports whether the agent understands mode.
func ValidMode(mode string) bool {
	for _, m := range model.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// SplitCommand splits an agent command line on whitespace.
func SplitCommand(command string) ([]string, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: agent command is empty", model.ErrConfiguration)
	}
	return parts, nil
}
