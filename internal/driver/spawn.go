package driver

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/verte-zerg/imebench/internal/agent"
	"github.com/verte-zerg/imebench/internal/model"
	"github.com/verte-zerg/imebench/internal/retry"
)

// SpawnDriver starts the agent once per phrase, passing the keystrokes as
// the last argument and reading its whole output.
type SpawnDriver struct {
	command  []string
	args     []string
	timing   model.Timing
	fallback bool
	logger   *zap.Logger
}

// NewSpawn checks that the agent binary exists.
func NewSpawn(opts Options, logger *zap.Logger) (*SpawnDriver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	command, err := agent.SplitCommand(opts.AgentCommand)
	if err != nil {
		return nil, err
	}
	if !agent.ValidMode(opts.Mode) {
		return nil, fmt.Errorf("%w: unsupported input mode %q", model.ErrConfiguration, opts.Mode)
	}
	path, err := exec.LookPath(command[0])
	if err != nil {
		return nil, fmt.Errorf("%w: agent %q: %v", model.ErrConfiguration, command[0], err)
	}
	command[0] = path
	return &SpawnDriver{
		command:  command,
		args:     agent.Args(opts.Timing.AgentSettle, opts.LogPath, opts.Mode),
		timing:   opts.Timing,
		fallback: opts.FallbackToInput,
		logger:   logger,
	}, nil
}

// Convert runs the agent for one phrase, retrying failed runs.
func (d *SpawnDriver) Convert(ctx context.Context, req model.Request) (Result, error) {
	if _, err := agent.EncodeRequest(req.Keys); err != nil {
		d.logger.Warn("request rejected", zap.Int("index", req.Index), zap.Error(err))
		return failed(req, 0, false, d.fallback), nil
	}
	var output string
	sawTimeout := false
	attempts, err := retry.Do(ctx, d.timing.SpawnTries, d.timing.SpawnRetryDelay, func(attempt int) error {
		text, err := d.runOnce(ctx, req.Keys)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				sawTimeout = true
			}
			d.logger.Warn("agent run failed",
				zap.Int("index", req.Index),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		output = text
		return nil
	})
	if err == nil {
		return succeeded(req, output, attempts), nil
	}
	if ierr := interrupted(ctx, req); ierr != nil {
		return Result{Attempts: attempts}, ierr
	}
	return failed(req, attempts, sawTimeout, d.fallback), nil
}

func (d *SpawnDriver) runOnce(ctx context.Context, keys string) (string, error) {
	phraseCtx, cancel := withPhraseTimeout(ctx, d.timing)
	defer cancel()

	argv := append(append(append([]string(nil), d.command[1:]...), d.args...), keys)
	cmd := exec.CommandContext(phraseCtx, d.command[0], argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	if phraseCtx.Err() != nil {
		return "", phraseCtx.Err()
	}
	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())
		return "", fmt.Errorf("%w: agent exited: %v %s", model.ErrTransient, runErr, msg)
	}
	return parseOutput(stdout.Bytes())
}

// parseOutput returns the first payload line of a one-shot agent run.
func parseOutput(out []byte) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || agent.IsInfo(line) {
			continue
		}
		return agent.ParsePayload(line)
	}
	return "", agent.ErrEmptyPayload
}

// Close implements Driver.
func (d *SpawnDriver) Close() error {
	return nil
}

var _ Driver = (*SpawnDriver)(nil)
