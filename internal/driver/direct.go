package driver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/verte-zerg/imebench/internal/automation"
	"github.com/verte-zerg/imebench/internal/model"
	"github.com/verte-zerg/imebench/internal/retry"
)

type step int

const (
	stepSend step = iota
	stepConvert
	stepCommit
	stepRead
	stepDone
)

var stepNames = [...]string{"send", "trigger_convert", "trigger_commit", "read_result", "done"}

func (s step) String() string {
	if int(s) < len(stepNames) {
		return stepNames[s]
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// DirectDriver types into the focused input itself and reads the result
// back through the clipboard.
type DirectDriver struct {
	surface  *automation.Surface
	timing   model.Timing
	fallback bool
	logger   *zap.Logger
}

// NewDirect creates a direct driver over the given capability.
func NewDirect(c automation.Capability, opts Options, logger *zap.Logger) *DirectDriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectDriver{
		surface:  automation.NewSurface(c, logger),
		timing:   opts.Timing,
		fallback: opts.FallbackToInput,
		logger:   logger,
	}
}

// Convert runs the send, convert, commit and read steps for one request.
// The input surface and clipboard are cleared on every exit path.
func (d *DirectDriver) Convert(ctx context.Context, req model.Request) (Result, error) {
	phraseCtx, cancel := withPhraseTimeout(ctx, d.timing)
	defer cancel()

	lease, err := d.surface.Acquire(phraseCtx)
	if err != nil {
		return d.abandon(ctx, phraseCtx, req, 0, stepSend, err)
	}
	defer lease.Release()

	t := d.timing
	var output string
	attempts := 0
	for st := stepSend; st != stepDone; st++ {
		var err error
		switch st {
		case stepSend:
			err = lease.Type(phraseCtx, req.Keys, t.KeyInterval)
			if err == nil {
				err = retry.Sleep(phraseCtx, t.SettleType)
			}
		case stepConvert:
			err = lease.Press(phraseCtx, automation.KeyConvert)
			if err == nil {
				err = retry.Sleep(phraseCtx, t.SettleConvert)
			}
		case stepCommit:
			err = lease.Press(phraseCtx, automation.KeyCommit)
			if err == nil {
				err = retry.Sleep(phraseCtx, t.SettleCommit)
			}
		case stepRead:
			attempts, err = retry.Do(phraseCtx, t.ReadTries, t.ReadDelay, func(attempt int) error {
				text, err := lease.Copy(phraseCtx, t.SettleCopy, t.ClipboardTries, t.ClipboardDelay)
				if err != nil {
					return fmt.Errorf("%w: clipboard: %v", model.ErrTransient, err)
				}
				if text == "" {
					d.logger.Debug("empty read, retrying", zap.Int("index", req.Index), zap.Int("attempt", attempt))
					return errEmptyRead
				}
				output = text
				return nil
			})
		}
		if err != nil {
			return d.abandon(ctx, phraseCtx, req, attempts, st, err)
		}
	}
	return succeeded(req, output, attempts), nil
}

func (d *DirectDriver) abandon(ctx, phraseCtx context.Context, req model.Request, attempts int, st step, err error) (Result, error) {
	if ierr := interrupted(ctx, req); ierr != nil {
		return Result{Attempts: attempts}, ierr
	}
	timeout := timedOut(phraseCtx)
	d.logger.Warn("conversion failed",
		zap.Int("index", req.Index),
		zap.Stringer("step", st),
		zap.Bool("timeout", timeout),
		zap.Error(err))
	return failed(req, attempts, timeout, d.fallback), nil
}

// Close implements Driver. The direct driver holds no process.
func (d *DirectDriver) Close() error {
	return nil
}

var _ Driver = (*DirectDriver)(nil)
