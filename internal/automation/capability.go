// Package automation abstracts keystroke injection and clipboard access
// behind a small capability interface.
package automation

import (
	"context"
	"time"
)

// Key names a key or chord in xdotool syntax.
type Key string

// Keys used by the conversion transaction.
const (
	KeyConvert   Key = "space"
	KeyCommit    Key = "Return"
	KeyDelete    Key = "Delete"
	KeySelectAll Key = "ctrl+a"
	KeyCopy      Key = "ctrl+c"
)

// Capability performs the OS-level operations a driver needs. Backends are
// platform specific; tests substitute scripted ones.
type Capability interface {
	// TypeText types text into the focused input, waiting interval between keys.
	TypeText(ctx context.Context, text string, interval time.Duration) error
	// PressKey presses and releases a key or chord.
	PressKey(ctx context.Context, key Key) error
	// ReadClipboard returns the current clipboard text.
	ReadClipboard() (string, error)
	// ClearClipboard empties the clipboard.
	ClearClipboard() error
}
