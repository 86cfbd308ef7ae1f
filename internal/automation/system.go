package automation

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"github.com/verte-zerg/imebench/internal/model"
)

// System drives the real desktop: keystrokes through xdotool, clipboard
// through the platform clipboard utilities.
type System struct {
	xdotool string
}

// NewSystem locates the backend tools. A missing tool is a configuration
// error.
func NewSystem() (*System, error) {
	path, err := exec.LookPath("xdotool")
	if err != nil {
		return nil, fmt.Errorf("%w: xdotool not found on PATH: %v", model.ErrConfiguration, err)
	}
	if clipboard.Unsupported {
		return nil, fmt.Errorf("%w: no clipboard utility available (install xclip, xsel or wl-clipboard)", model.ErrConfiguration)
	}
	return &System{xdotool: path}, nil
}

// TypeText implements Capability.
func (s *System) TypeText(ctx context.Context, text string, interval time.Duration) error {
	delay := strconv.FormatInt(interval.Milliseconds(), 10)
	return s.run(ctx, "type", "--clearmodifiers", "--delay", delay, "--", text)
}

// PressKey implements Capability.
func (s *System) PressKey(ctx context.Context, key Key) error {
	return s.run(ctx, "key", "--clearmodifiers", string(key))
}

// ReadClipboard implements Capability.
func (s *System) ReadClipboard() (string, error) {
	return clipboard.ReadAll()
}

// ClearClipboard implements Capability.
func (s *System) ClearClipboard() error {
	return clipboard.WriteAll("")
}

func (s *System) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, s.xdotool, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("xdotool %s: %w", args[0], err)
		}
		return fmt.Errorf("xdotool %s: %w: %s", args[0], err, msg)
	}
	return nil
}

var _ Capability = (*System)(nil)
