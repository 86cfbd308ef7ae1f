package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/verte-zerg/imebench/internal/model"
)

const (
	closeTimeout  = 10 * time.Second
	waitDelay     = 2 * time.Second
	maxLineBytes  = 1024 * 1024
	stderrTailLen = 4096
)

// Process is a long-lived agent subprocess. Exchanges are half duplex:
// one request in flight at a time.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	quit   chan struct{}
	stderr *tailBuffer
	logger *zap.Logger

	scanErr  error
	stopOnce sync.Once
	waitOnce sync.Once
	waitErr  error
}

// Start launches command with args appended. Failure to start is a
// configuration error.
func Start(command []string, args []string, logger *zap.Logger) (*Process, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("%w: agent command is empty", model.ErrConfiguration)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	argv := append(append([]string(nil), command[1:]...), args...)
	cmd := exec.Command(command[0], argv...)
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("agent stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("agent stdout: %w", err)
	}
	tail := &tailBuffer{limit: stderrTailLen}
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start agent %q: %v", model.ErrConfiguration, command[0], err)
	}
	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan string, 16),
		quit:   make(chan struct{}),
		stderr: tail,
		logger: logger,
	}
	go p.readLoop(stdout)
	logger.Debug("agent started", zap.Strings("argv", cmd.Args), zap.Int("pid", cmd.Process.Pid))
	return p, nil
}

func (p *Process) readLoop(stdout io.Reader) {
	defer close(p.lines)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		select {
		case p.lines <- strings.TrimSpace(scanner.Text()):
		case <-p.quit:
			return
		}
	}
	p.scanErr = scanner.Err()
}

// Exchange sends one request line and returns the first payload line,
// skipping INFO lines. A broken pipe or end of stream is reported as
// model.ErrAgentProtocol; ctx expiry returns ctx.Err().
func (p *Process) Exchange(ctx context.Context, request string) (string, error) {
	encoded, err := EncodeRequest(request)
	if err != nil {
		return "", err
	}
	if _, err := io.WriteString(p.stdin, encoded); err != nil {
		return "", fmt.Errorf("%w: broken pipe: %v%s", model.ErrAgentProtocol, err, p.stderrSuffix())
	}
	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				return "", p.endOfStream()
			}
			if IsInfo(line) {
				p.logger.Debug("agent info", zap.String("line", line))
				continue
			}
			return line, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (p *Process) endOfStream() error {
	if p.scanErr != nil {
		return fmt.Errorf("%w: read agent output: %v%s", model.ErrAgentProtocol, p.scanErr, p.stderrSuffix())
	}
	return fmt.Errorf("%w: agent closed its output%s", model.ErrAgentProtocol, p.stderrSuffix())
}

func (p *Process) stderrSuffix() string {
	tail := strings.TrimSpace(p.stderr.String())
	if tail == "" {
		return ""
	}
	return " (stderr: " + tail + ")"
}

// Close ends stdin and waits for the agent to exit, killing it if it does
// not exit in time.
func (p *Process) Close() error {
	p.stop()
	if cerr := p.stdin.Close(); cerr != nil {
		// Best-effort: the agent may already be gone.
		_ = cerr
	}
	done := make(chan error, 1)
	go func() { done <- p.wait() }()
	select {
	case err := <-done:
		return ignoreExit(err)
	case <-time.After(closeTimeout):
		p.logger.Warn("agent did not exit, killing it", zap.Int("pid", p.cmd.Process.Pid))
		return p.Kill()
	}
}

// Kill terminates the agent immediately and reaps it.
func (p *Process) Kill() error {
	p.stop()
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Debug("kill agent", zap.Error(err))
	}
	if cerr := p.stdin.Close(); cerr != nil {
		// Best-effort: stdin is closed by Wait anyway.
		_ = cerr
	}
	_ = p.wait()
	return nil
}

func (p *Process) stop() {
	p.stopOnce.Do(func() { close(p.quit) })
}

func (p *Process) wait() error {
	p.waitOnce.Do(func() { p.waitErr = p.cmd.Wait() })
	return p.waitErr
}

// ignoreExit treats a non-zero exit after stdin closed as a normal shutdown.
func ignoreExit(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
