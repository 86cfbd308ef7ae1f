package automation

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeCapability struct {
	mu        sync.Mutex
	calls     []string
	clipboard []string
	readErrs  int
}

func (f *fakeCapability) TypeText(_ context.Context, text string, _ time.Duration) error {
	f.record("type:" + text)
	return nil
}

func (f *fakeCapability) PressKey(_ context.Context, key Key) error {
	f.record("key:" + string(key))
	return nil
}

func (f *fakeCapability) ReadClipboard() (string, error) {
	f.record("read")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErrs > 0 {
		f.readErrs--
		return "", errors.New("clipboard busy")
	}
	if len(f.clipboard) == 0 {
		return "", nil
	}
	text := f.clipboard[0]
	f.clipboard = f.clipboard[1:]
	return text, nil
}

func (f *fakeCapability) ClearClipboard() error {
	f.record("clear")
	return nil
}

func (f *fakeCapability) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeCapability) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
