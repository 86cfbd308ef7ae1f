// Package driver pushes keystroke sequences through an IME and recovers the
// committed text.
package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/verte-zerg/imebench/internal/automation"
	"github.com/verte-zerg/imebench/internal/model"
)

// Driver converts one request at a time. A returned error aborts the
// batch; per-phrase failures are reported through Result.Warnings.
type Driver interface {
	Convert(ctx context.Context, req model.Request) (Result, error)
	Close() error
}

// Result is the outcome of one conversion.
type Result struct {
	Output   string
	Warnings []model.Warning
	Attempts int
}

// Options configures a driver.
type Options struct {
	Kind            string
	Mode            string
	AgentCommand    string
	LogPath         string
	FallbackToInput bool
	Timing          model.Timing
}

// New builds the driver selected by opts.Kind.
func New(opts Options, logger *zap.Logger) (Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch opts.Kind {
	case model.DriverDirect:
		system, err := automation.NewSystem()
		if err != nil {
			return nil, err
		}
		return NewDirect(system, opts, logger), nil
	case model.DriverAgent:
		return NewAgent(opts, logger)
	case model.DriverSpawn:
		return NewSpawn(opts, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", model.ErrConfiguration, opts.Kind)
	}
}

// Killer is implemented by drivers whose backend can be stopped without
// waiting for it to exit on its own.
type Killer interface {
	Kill() error
}

// Shutdown releases drv. An interrupted batch kills the backend when the
// driver supports it; otherwise the driver is closed normally.
func Shutdown(drv Driver, interrupted bool) error {
	if k, ok := drv.(Killer); ok && interrupted {
		return k.Kill()
	}
	return drv.Close()
}

// Classify flags suspicious outputs. An output equal to the input means
// the IME did nothing; whitespace inside a converted output usually means
// a stray key reached the surface.
func Classify(input, output string) []model.Warning {
	if output == input {
		return []model.Warning{model.WarnNoConversion}
	}
	if strings.ContainsFunc(output, unicode.IsSpace) {
		return []model.Warning{model.WarnUnexpectedSpaces}
	}
	return nil
}

// classify also treats the raw keystrokes coming back as no conversion.
func classify(req model.Request, output string) []model.Warning {
	if output == req.Keys && output != req.Phrase {
		return []model.Warning{model.WarnNoConversion}
	}
	return Classify(req.Phrase, output)
}

func succeeded(req model.Request, output string, attempts int) Result {
	return Result{Output: output, Warnings: classify(req, output), Attempts: attempts}
}

func failed(req model.Request, attempts int, timedOut, fallback bool) Result {
	r := Result{Attempts: attempts, Warnings: []model.Warning{model.WarnFailed}}
	if timedOut {
		r.Warnings = append(r.Warnings, model.WarnTimeout)
	}
	if fallback {
		r.Output = req.Phrase
	}
	return r
}

// interrupted reports whether the batch context ended, returning the error
// the driver must surface.
func interrupted(ctx context.Context, req model.Request) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: phrase %d: %v", model.ErrInterrupted, req.Index, err)
	}
	return nil
}

func timedOut(phraseCtx context.Context) bool {
	return errors.Is(phraseCtx.Err(), context.DeadlineExceeded)
}

func withPhraseTimeout(ctx context.Context, timing model.Timing) (context.Context, context.CancelFunc) {
	if timing.PhraseTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timing.PhraseTimeout)
}

var errEmptyRead = fmt.Errorf("%w: nothing to read", model.ErrTransient)
