// Package batch runs a corpus through a driver and records the results.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/verte-zerg/imebench/internal/agent"
	"github.com/verte-zerg/imebench/internal/corpus"
	"github.com/verte-zerg/imebench/internal/driver"
	"github.com/verte-zerg/imebench/internal/model"
	"github.com/verte-zerg/imebench/internal/retry"
	"github.com/verte-zerg/imebench/internal/romaji"
	"github.com/verte-zerg/imebench/internal/sink"
	"github.com/verte-zerg/imebench/internal/stats"
	"github.com/verte-zerg/imebench/internal/store"
)

// DriverFactory builds the driver for a run.
type DriverFactory func(opts driver.Options, logger *zap.Logger) (driver.Driver, error)

// Runner processes one batch. Store and Logger are optional.
type Runner struct {
	Config    model.Config
	NewDriver DriverFactory
	Store     *store.Store
	Logger    *zap.Logger

	engine *romaji.Engine
	now    func() time.Time
}

// NewRunner returns a runner using the real drivers.
func NewRunner(cfg model.Config, st *store.Store, logger *zap.Logger) *Runner {
	return &Runner{Config: cfg, NewDriver: driver.New, Store: st, Logger: logger}
}

// Summary describes a finished or aborted batch.
type Summary struct {
	RunID   int64
	Phrases int
	Stats   model.RunStats
	Elapsed time.Duration
}

type plan struct {
	phrases  []model.Phrase
	expected []model.Phrase
}

// Run validates the configuration, then converts every phrase in order.
// Each record reaches the output before the next phrase starts, so an
// aborted run keeps everything it produced. The returned error is nil only
// when every phrase was processed.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	r.init()
	started := r.now()

	p, err := r.validate()
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Phrases: len(p.phrases)}

	drv, err := r.NewDriver(r.driverOptions(), r.Logger)
	if err != nil {
		return summary, err
	}
	var runErr error
	defer func() {
		if cerr := driver.Shutdown(drv, statusFor(runErr) == model.RunInterrupted); cerr != nil {
			r.Logger.Warn("failed to close driver", zap.Error(cerr))
		}
	}()

	out, err := sink.Open(r.Config.OutputPath, r.Config.Format)
	if err != nil {
		return summary, err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			r.Logger.Error("failed to close output", zap.Error(cerr))
		}
	}()

	summary.RunID = r.startRun(ctx, started, len(p.phrases))

	st, err := r.process(ctx, drv, out, p, summary.RunID)
	runErr = err
	st.EndedAt = r.now()
	st.Status = statusFor(err)
	summary.Stats = st
	summary.Elapsed = st.EndedAt.Sub(started)
	r.finishRun(summary.RunID, st)

	if err != nil {
		r.Logger.Error("batch stopped",
			zap.String("status", st.Status),
			zap.Int("processed", st.Processed),
			zap.Int("phrases", len(p.phrases)),
			zap.Error(err))
		return summary, err
	}
	r.Logger.Info("batch completed",
		zap.Int("phrases", st.Processed),
		zap.Int("failed", st.Failed),
		zap.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

func (r *Runner) init() {
	if r.Logger == nil {
		r.Logger = zap.NewNop()
	}
	if r.NewDriver == nil {
		r.NewDriver = driver.New
	}
	if r.engine == nil {
		r.engine = romaji.New()
	}
	if r.now == nil {
		r.now = time.Now
	}
}

// validate loads both corpora and checks every setting before any driver
// exists, so a bad run fails without touching the input surface.
func (r *Runner) validate() (plan, error) {
	cfg := r.Config
	if cfg.InputPath == "" {
		return plan{}, fmt.Errorf("%w: input file is required", model.ErrConfiguration)
	}
	if cfg.OutputPath == "" {
		return plan{}, fmt.Errorf("%w: output file is required", model.ErrConfiguration)
	}
	if !contains(model.Drivers, cfg.Driver) {
		return plan{}, fmt.Errorf("%w: unsupported driver %q", model.ErrConfiguration, cfg.Driver)
	}
	if !agent.ValidMode(cfg.Mode) {
		return plan{}, fmt.Errorf("%w: unsupported input mode %q", model.ErrConfiguration, cfg.Mode)
	}
	if cfg.Format != "" && cfg.Format != model.FormatText && cfg.Format != model.FormatCSV {
		return plan{}, fmt.Errorf("%w: unsupported output format %q", model.ErrConfiguration, cfg.Format)
	}

	phrases, err := loadCorpus("input", cfg.InputPath, corpus.Options{MaxLen: cfg.MaxLen})
	if err != nil {
		return plan{}, err
	}
	p := plan{phrases: phrases}
	if cfg.ExpectedPath != "" {
		expected, err := loadCorpus("expected", cfg.ExpectedPath, corpus.Options{MaxLen: -1})
		if err != nil {
			return plan{}, err
		}
		if len(expected) != len(phrases) {
			return plan{}, fmt.Errorf("%w: %s has %d phrases but %s has %d",
				model.ErrConfiguration, cfg.InputPath, len(phrases), cfg.ExpectedPath, len(expected))
		}
		p.expected = expected
	}
	if err := sink.CheckWritable(cfg.OutputPath); err != nil {
		return plan{}, err
	}
	return p, nil
}

func loadCorpus(kind, path string, opts corpus.Options) ([]model.Phrase, error) {
	phrases, err := corpus.Load(path, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s corpus: %v", model.ErrConfiguration, kind, err)
	}
	return phrases, nil
}

func (r *Runner) driverOptions() driver.Options {
	return driver.Options{
		Kind:            r.Config.Driver,
		Mode:            r.Config.Mode,
		AgentCommand:    r.Config.AgentCommand,
		LogPath:         r.Config.AgentLogPath,
		FallbackToInput: r.Config.FallbackToInput,
		Timing:          r.Config.Timing,
	}
}

func (r *Runner) process(ctx context.Context, drv driver.Driver, out sink.Sink, p plan, runID int64) (model.RunStats, error) {
	var st model.RunStats
	if d := r.Config.StartDelay; d > 0 {
		r.Logger.Info("focus the input field; starting soon", zap.Duration("delay", d))
		if err := retry.Sleep(ctx, d); err != nil {
			return st, fmt.Errorf("%w: %v", model.ErrInterrupted, err)
		}
	}

	for i, phrase := range p.phrases {
		if err := ctx.Err(); err != nil {
			return st, fmt.Errorf("%w: %v", model.ErrInterrupted, err)
		}
		keys := r.engine.Convert(phrase.Text)
		if foreign := corpus.Foreign(phrase.Text); len(foreign) > 0 {
			r.Logger.Warn("phrase has characters without a romaji mapping",
				zap.Int("index", phrase.Index),
				zap.String("chars", string(foreign)))
		}
		req := model.Request{Index: phrase.Index, Phrase: phrase.Text, Keys: keys}

		begin := r.now()
		res, err := drv.Convert(ctx, req)
		if err != nil {
			return st, err
		}
		rec := model.Record{
			Index:    phrase.Index,
			Hiragana: phrase.Text,
			Romaji:   keys,
			Output:   res.Output,
			Warnings: res.Warnings,
			Attempts: res.Attempts,
			Elapsed:  r.now().Sub(begin),
		}
		if p.expected != nil {
			rec.Expected = p.expected[i].Text
		}
		if err := out.Write(rec); err != nil {
			return st, err
		}
		stats.Accumulate(&st, rec, p.expected != nil)
		r.logRecord(rec, i, len(p.phrases))
		r.storeRecord(runID, rec)
	}
	return st, nil
}

func (r *Runner) logRecord(rec model.Record, i, total int) {
	fields := []zap.Field{
		zap.Int("n", i+1),
		zap.Int("of", total),
		zap.String("input", rec.Hiragana),
		zap.String("keys", rec.Romaji),
		zap.String("output", rec.Output),
		zap.Int("attempts", rec.Attempts),
	}
	switch {
	case rec.Has(model.WarnFailed):
		r.Logger.Warn("conversion failed", append(fields, zap.Bool("timeout", rec.Has(model.WarnTimeout)))...)
	case rec.Has(model.WarnNoConversion):
		r.Logger.Warn("conversion not performed", fields...)
	case rec.Has(model.WarnUnexpectedSpaces):
		r.Logger.Warn("spaces in output", fields...)
	default:
		r.Logger.Info("converted", fields...)
	}
}

// Store failures never stop a batch; the output file is the primary record.

func (r *Runner) startRun(ctx context.Context, started time.Time, phrases int) int64 {
	if r.Store == nil {
		return 0
	}
	id, err := r.Store.StartRun(ctx, model.RunInfo{
		StartedAt:    started,
		InputPath:    r.Config.InputPath,
		ExpectedPath: r.Config.ExpectedPath,
		OutputPath:   r.Config.OutputPath,
		Driver:       r.Config.Driver,
		Mode:         r.Config.Mode,
		Phrases:      phrases,
	})
	if err != nil {
		r.Logger.Warn("failed to record run", zap.Error(err))
		return 0
	}
	return id
}

func (r *Runner) storeRecord(runID int64, rec model.Record) {
	if r.Store == nil || runID == 0 {
		return
	}
	if err := r.Store.InsertRecord(context.Background(), runID, rec); err != nil {
		r.Logger.Warn("failed to record phrase", zap.Int("index", rec.Index), zap.Error(err))
	}
}

func (r *Runner) finishRun(runID int64, st model.RunStats) {
	if r.Store == nil || runID == 0 {
		return
	}
	// The batch context may already be canceled; the final state must land.
	if err := r.Store.FinishRun(context.Background(), runID, st); err != nil {
		r.Logger.Warn("failed to finish run", zap.Error(err))
	}
}

func statusFor(err error) string {
	switch {
	case err == nil:
		return model.RunCompleted
	case errors.Is(err, model.ErrInterrupted), errors.Is(err, context.Canceled):
		return model.RunInterrupted
	default:
		return model.RunAborted
	}
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
