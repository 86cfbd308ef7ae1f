package automation

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/verte-zerg/imebench/internal/retry"
)

const releaseTimeout = 5 * time.Second

// Surface is the handle to the two global resources a conversion touches:
// the focused input and the system clipboard. Only one Lease exists at a
// time, and every lease ends by clearing both.
type Surface struct {
	mu     sync.Mutex
	cap    Capability
	logger *zap.Logger
}

// NewSurface wraps a capability.
func NewSurface(c Capability, logger *zap.Logger) *Surface {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Surface{cap: c, logger: logger}
}

// Lease grants exclusive use of the surface for one phrase.
type Lease struct {
	s        *Surface
	released bool
}

// Acquire blocks until the surface is free and empties the clipboard. The
// caller must call Release on every path, typically with defer.
func (s *Surface) Acquire(ctx context.Context) (*Lease, error) {
	s.mu.Lock()
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := s.cap.ClearClipboard(); err != nil {
		s.logger.Warn("failed to clear clipboard before phrase", zap.Error(err))
	}
	return &Lease{s: s}, nil
}

// Release clears the input surface and the clipboard and frees the surface.
// It runs on its own short deadline so an expired phrase context cannot
// skip the cleanup.
func (l *Lease) Release() {
	if l == nil || l.released {
		return
	}
	l.released = true
	defer l.s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	c := l.s.cap
	if err := c.PressKey(ctx, KeySelectAll); err != nil {
		l.s.logger.Warn("failed to select input for clearing", zap.Error(err))
	}
	if err := c.PressKey(ctx, KeyDelete); err != nil {
		l.s.logger.Warn("failed to clear input", zap.Error(err))
	}
	if err := c.ClearClipboard(); err != nil {
		l.s.logger.Warn("failed to clear clipboard after phrase", zap.Error(err))
	}
}

// Type types keys into the focused input.
func (l *Lease) Type(ctx context.Context, keys string, interval time.Duration) error {
	return l.s.cap.TypeText(ctx, keys, interval)
}

// Press presses a key or chord.
func (l *Lease) Press(ctx context.Context, key Key) error {
	return l.s.cap.PressKey(ctx, key)
}

// Copy selects the whole input, copies it and reads the clipboard back.
// Clipboard reads are retried up to tries times, delay apart. The returned
// text is trimmed; an empty string means nothing was copied.
func (l *Lease) Copy(ctx context.Context, settle time.Duration, tries int, delay time.Duration) (string, error) {
	c := l.s.cap
	if err := c.ClearClipboard(); err != nil {
		l.s.logger.Debug("failed to clear clipboard before copy", zap.Error(err))
	}
	if err := c.PressKey(ctx, KeySelectAll); err != nil {
		return "", err
	}
	if err := c.PressKey(ctx, KeyCopy); err != nil {
		return "", err
	}
	if err := retry.Sleep(ctx, settle); err != nil {
		return "", err
	}
	var text string
	_, err := retry.Do(ctx, tries, delay, func(attempt int) error {
		got, err := c.ReadClipboard()
		if err != nil {
			l.s.logger.Warn("clipboard read failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		text = got
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
