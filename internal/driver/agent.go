package driver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/verte-zerg/imebench/internal/agent"
	"github.com/verte-zerg/imebench/internal/model"
	"github.com/verte-zerg/imebench/internal/retry"
)

// AgentDriver keeps one agent process for the whole batch and exchanges
// a line with it per phrase.
type AgentDriver struct {
	command  []string
	args     []string
	timing   model.Timing
	fallback bool
	logger   *zap.Logger
	proc     *agent.Process
	restarts int
}

// NewAgent starts the agent process.
func NewAgent(opts Options, logger *zap.Logger) (*AgentDriver, error) {
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
	d := &AgentDriver{
		command:  command,
		args:     agent.Args(opts.Timing.AgentSettle, opts.LogPath, opts.Mode),
		timing:   opts.Timing,
		fallback: opts.FallbackToInput,
		logger:   logger,
	}
	proc, err := agent.Start(d.command, d.args, logger)
	if err != nil {
		return nil, err
	}
	d.proc = proc
	return d, nil
}

// Convert sends the request and resends it while the agent answers with an
// error or nothing, up to the read bound.
func (d *AgentDriver) Convert(ctx context.Context, req model.Request) (Result, error) {
	phraseCtx, cancel := withPhraseTimeout(ctx, d.timing)
	defer cancel()

	var output string
	attempts, err := retry.Do(phraseCtx, d.timing.ReadTries, d.timing.ReadDelay, func(attempt int) error {
		line, err := d.proc.Exchange(phraseCtx, req.Keys)
		if err != nil {
			if errors.Is(err, model.ErrAgentProtocol) {
				return retry.Permanent(err)
			}
			return err
		}
		text, err := agent.ParsePayload(line)
		if err != nil {
			d.logger.Warn("agent answer rejected",
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
	if errors.Is(err, model.ErrAgentProtocol) {
		return Result{Attempts: attempts}, fmt.Errorf("phrase %d: %w", req.Index, err)
	}
	if ierr := interrupted(ctx, req); ierr != nil {
		// The agent may still be typing; stop it now.
		if kerr := d.proc.Kill(); kerr != nil {
			d.logger.Debug("kill agent", zap.Error(kerr))
		}
		return Result{Attempts: attempts}, ierr
	}
	if timedOut(phraseCtx) {
		d.logger.Warn("phrase timed out, restarting agent",
			zap.Int("index", req.Index),
			zap.Duration("timeout", d.timing.PhraseTimeout))
		if rerr := d.restart(); rerr != nil {
			return Result{Attempts: attempts}, rerr
		}
		return failed(req, attempts, true, d.fallback), nil
	}
	d.logger.Warn("conversion failed", zap.Int("index", req.Index), zap.Int("attempts", attempts), zap.Error(err))
	return failed(req, attempts, false, d.fallback), nil
}

// restart replaces a stuck agent. Its late answers die with it.
func (d *AgentDriver) restart() error {
	if err := d.proc.Kill(); err != nil {
		d.logger.Debug("kill agent", zap.Error(err))
	}
	proc, err := agent.Start(d.command, d.args, d.logger)
	if err != nil {
		return fmt.Errorf("%w: restart agent: %v", model.ErrAgentProtocol, err)
	}
	d.proc = proc
	d.restarts++
	return nil
}

// Restarts returns how many times the agent was restarted.
func (d *AgentDriver) Restarts() int {
	return d.restarts
}

// Close shuts the agent down.
func (d *AgentDriver) Close() error {
	if d.proc == nil {
		return nil
	}
	err := d.proc.Close()
	d.proc = nil
	return err
}

// Kill stops the agent without waiting for it to exit. A later Close is a
// no-op.
func (d *AgentDriver) Kill() error {
	if d.proc == nil {
		return nil
	}
	err := d.proc.Kill()
	d.proc = nil
	return err
}

var (
	_ Driver = (*AgentDriver)(nil)
	_ Killer = (*AgentDriver)(nil)
)
