// Package main provides the CLI entrypoint for imebench.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/verte-zerg/imebench/internal/batch"
	"github.com/verte-zerg/imebench/internal/config"
	"github.com/verte-zerg/imebench/internal/corpus"
	"github.com/verte-zerg/imebench/internal/logging"
	"github.com/verte-zerg/imebench/internal/model"
	"github.com/verte-zerg/imebench/internal/romaji"
	"github.com/verte-zerg/imebench/internal/stats"
	"github.com/verte-zerg/imebench/internal/statsui"
	"github.com/verte-zerg/imebench/internal/store"
)

const (
	defaultDriver      = model.DriverDirect
	defaultMode        = model.ModeHiragana
	defaultDirectDelay = 10 * time.Second
)

var (
	runOutput          string
	runExpected        string
	runLog             string
	runMaxLen          int
	runMode            string
	runDriver          string
	runAgent           string
	runAgentLog        string
	runSettleType      int
	runSettleConvert   int
	runSettleCommit    int
	runPhraseTimeout   time.Duration
	runStartDelay      time.Duration
	runFormat          string
	runFallbackToInput bool
	runNoStore         bool
	runDebug           bool

	statsRun  int64
	statsLast int

	runsRun      int64
	runsLast     int
	runsProblems bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	os.Exit(model.ExitCode(err))
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "imebench <input>",
		Short:         "Measure IME kana-kanji conversion against a phrase corpus",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runBatchCmd(cmd, args)
		},
	}
	addRunFlags(rootCmd)

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newRomajiCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <input>",
		Short: "Convert every phrase of a corpus through the IME",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatchCmd,
	}
	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	timing := model.DefaultTiming()
	flags := cmd.Flags()
	flags.StringVarP(&runOutput, "output", "o", "", "output file (one result per line, or CSV)")
	flags.StringVar(&runExpected, "expected", "", "expected conversions, one per input phrase")
	flags.StringVar(&runLog, "log", config.DefaultLogPath(), "debug log file")
	flags.IntVar(&runMaxLen, "max-len", corpus.DefaultMaxLen, "truncate phrases to N characters (negative: no limit)")
	flags.StringVar(&runMode, "mode", defaultMode, "input mode: "+strings.Join(model.Modes, ", "))
	flags.StringVar(&runDriver, "driver", defaultDriver, "driver: "+strings.Join(model.Drivers, ", "))
	flags.StringVar(&runAgent, "agent", "", "automation agent command line (agent and spawn drivers)")
	flags.StringVar(&runAgentLog, "agent-log", config.DefaultAgentLogPath(), "log file handed to the agent")
	flags.IntVar(&runSettleType, "settle-type", int(timing.SettleType.Milliseconds()), "wait after typing, in ms")
	flags.IntVar(&runSettleConvert, "settle-convert", int(timing.SettleConvert.Milliseconds()), "wait after the convert key, in ms (agent: override the agent's own wait)")
	flags.IntVar(&runSettleCommit, "settle-commit", int(timing.SettleCommit.Milliseconds()), "wait after the commit key, in ms")
	flags.DurationVar(&runPhraseTimeout, "phrase-timeout", timing.PhraseTimeout, "hard limit per phrase")
	flags.DurationVar(&runStartDelay, "start-delay", 0, "wait before the first phrase (direct driver default 10s)")
	flags.StringVar(&runFormat, "format", "", "output format: text or csv (default from extension)")
	flags.BoolVar(&runFallbackToInput, "fallback-to-input", false, "write the input phrase when conversion fails")
	flags.BoolVar(&runNoStore, "no-store", false, "do not record the run in the history database")
	flags.BoolVar(&runDebug, "debug", false, "debug output on the console")
}

func runBatchCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildRunConfig(cmd, args[0])
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(logging.Options{
		Debug:    cfg.Debug,
		FilePath: cfg.LogPath,
		NoColor:  !term.IsTerminal(int(os.Stderr.Fd())),
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeLog(); cerr != nil {
			logErrf("failed to close log: %v\n", cerr)
		}
	}()

	var st *store.Store
	if cfg.Store {
		st, err = store.Open(config.DefaultDBPath())
		if err != nil {
			logger.Warn("run history disabled", zap.Error(err))
			st = nil
		} else {
			defer func() {
				if cerr := st.Close(); cerr != nil {
					logErrf("failed to close db: %v\n", cerr)
				}
			}()
		}
	}

	logger.Info("starting batch",
		zap.String("input", cfg.InputPath),
		zap.String("output", cfg.OutputPath),
		zap.String("driver", cfg.Driver),
		zap.String("mode", cfg.Mode),
		zap.String("table", romaji.TableVersion))

	summary, runErr := batch.NewRunner(cfg, st, logger).Run(cmd.Context())
	if summary.Stats.Status != "" {
		if err := stats.RenderSummary(cmd.OutOrStdout(), summary.Stats, summary.Phrases, summary.Elapsed); err != nil {
			logErrf("failed to write summary: %v\n", err)
		}
	}
	return runErr
}

// buildRunConfig merges defaults, the config file and changed flags, in
// that order of precedence from lowest to highest.
func buildRunConfig(cmd *cobra.Command, input string) (model.Config, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return model.Config{}, fmt.Errorf("%w: failed to load config: %v", model.ErrConfiguration, err)
	}
	r := fileCfg.Run
	applyStringConfig(cmd, "driver", &runDriver, r.Driver)
	applyStringConfig(cmd, "mode", &runMode, r.Mode)
	applyStringConfig(cmd, "format", &runFormat, r.Format)
	applyIntConfig(cmd, "max-len", &runMaxLen, r.MaxLen)
	applyBoolConfig(cmd, "fallback-to-input", &runFallbackToInput, r.FallbackToInput)
	applyStringConfig(cmd, "agent", &runAgent, fileCfg.Agent.Command)
	applyStringConfig(cmd, "agent-log", &runAgentLog, fileCfg.Agent.Log)
	if r.Store != nil && !*r.Store && !cmd.Flags().Changed("no-store") {
		runNoStore = true
	}

	timing := model.DefaultTiming()
	applyTimingConfig(&timing, fileCfg.Timing)
	applyIntConfig(cmd, "settle-type", &runSettleType, fileCfg.Timing.SettleTypeMs)
	applyIntConfig(cmd, "settle-convert", &runSettleConvert, fileCfg.Timing.SettleConvertMs)
	applyIntConfig(cmd, "settle-commit", &runSettleCommit, fileCfg.Timing.SettleCommitMs)
	applyDurationMsConfig(cmd, "phrase-timeout", &runPhraseTimeout, fileCfg.Timing.PhraseTimeoutMs)
	timing.SettleType = ms(runSettleType)
	timing.SettleConvert = ms(runSettleConvert)
	timing.SettleCommit = ms(runSettleCommit)
	timing.PhraseTimeout = runPhraseTimeout
	if fileCfg.Agent.SettleMs != nil {
		timing.AgentSettle = ms(*fileCfg.Agent.SettleMs)
	}
	if cmd.Flags().Changed("settle-convert") {
		timing.AgentSettle = ms(runSettleConvert)
	}

	startDelay := time.Duration(0)
	if runDriver == model.DriverDirect {
		startDelay = defaultDirectDelay
	}
	if r.StartDelayMs != nil {
		startDelay = ms(*r.StartDelayMs)
	}
	if cmd.Flags().Changed("start-delay") {
		startDelay = runStartDelay
	}

	if err := validateRunFlags(timing); err != nil {
		return model.Config{}, err
	}
	return model.Config{
		InputPath:       input,
		ExpectedPath:    runExpected,
		OutputPath:      runOutput,
		LogPath:         runLog,
		Format:          runFormat,
		MaxLen:          runMaxLen,
		Mode:            runMode,
		Driver:          runDriver,
		AgentCommand:    runAgent,
		AgentLogPath:    runAgentLog,
		FallbackToInput: runFallbackToInput,
		Store:           !runNoStore,
		Debug:           runDebug,
		StartDelay:      startDelay,
		Timing:          timing,
	}, nil
}

func validateRunFlags(timing model.Timing) error {
	if runOutput == "" {
		return fmt.Errorf("%w: --output is required", model.ErrConfiguration)
	}
	if runMaxLen == 0 {
		return fmt.Errorf("%w: --max-len must not be 0", model.ErrConfiguration)
	}
	if (runDriver == model.DriverAgent || runDriver == model.DriverSpawn) && strings.TrimSpace(runAgent) == "" {
		return fmt.Errorf("%w: --agent is required for the %s driver", model.ErrConfiguration, runDriver)
	}
	if timing.SettleType < 0 || timing.SettleConvert < 0 || timing.SettleCommit < 0 {
		return fmt.Errorf("%w: settle delays must be >= 0", model.ErrConfiguration)
	}
	if timing.PhraseTimeout <= 0 {
		return fmt.Errorf("%w: --phrase-timeout must be > 0", model.ErrConfiguration)
	}
	return nil
}

func applyTimingConfig(t *model.Timing, c config.TimingConfig) {
	setMs := func(target *time.Duration, value *int) {
		if value != nil {
			*target = ms(*value)
		}
	}
	setInt := func(target *int, value *int) {
		if value != nil {
			*target = *value
		}
	}
	setMs(&t.KeyInterval, c.KeyIntervalMs)
	setMs(&t.SettleCopy, c.SettleCopyMs)
	setInt(&t.ClipboardTries, c.ClipboardTries)
	setMs(&t.ClipboardDelay, c.ClipboardDelayMs)
	setInt(&t.ReadTries, c.ReadTries)
	setMs(&t.ReadDelay, c.ReadDelayMs)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func newRomajiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "romaji [file|-]",
		Short: "Print the keystrokes typed for each phrase",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRomajiCmd,
	}
}

func runRomajiCmd(cmd *cobra.Command, args []string) error {
	var phrases []model.Phrase
	var err error
	if len(args) == 0 || args[0] == "-" {
		phrases, err = corpus.Read(cmd.InOrStdin(), corpus.Options{MaxLen: -1})
	} else {
		phrases, err = corpus.Load(args[0], corpus.Options{MaxLen: -1})
	}
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrConfiguration, err)
	}
	return writeRomaji(cmd.OutOrStdout(), phrases)
}

func writeRomaji(w io.Writer, phrases []model.Phrase) error {
	engine := romaji.New()
	for _, p := range phrases {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", p.Text, engine.Convert(p.Text)); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE:  runRunsCmd,
	}
	cmd.Flags().Int64Var(&runsRun, "run", 0, "show the records of one run")
	cmd.Flags().IntVar(&runsLast, "last", 0, "limit to last N runs")
	cmd.Flags().BoolVar(&runsProblems, "problems", false, "with --run, only records with warnings or mismatches")
	return cmd
}

func runRunsCmd(cmd *cobra.Command, _ []string) error {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	out := cmd.OutOrStdout()
	if runsRun > 0 {
		run, err := st.GetRun(cmd.Context(), runsRun)
		if err != nil {
			return err
		}
		records, err := st.ListRecords(cmd.Context(), runsRun)
		if err != nil {
			return fmt.Errorf("failed to load records: %w", err)
		}
		if err := stats.RenderSummary(out, run.RunStats, run.Phrases, run.EndedAt.Sub(run.StartedAt)); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(out); err != nil {
			return err
		}
		return stats.RenderRecords(out, records, runsProblems)
	}
	runs, err := st.ListRuns(cmd.Context(), model.StatsConfig{Last: runsLast})
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	return stats.RenderRuns(out, runs)
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Browse recorded runs",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
	cmd.Flags().Int64Var(&statsRun, "run", 0, "run to open (default: latest)")
	cmd.Flags().IntVar(&statsLast, "last", 0, "limit to last N runs")
	return cmd
}

func runStatsCmd(_ *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("stats needs a terminal; use `imebench runs` instead")
	}
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	ui := statsui.NewModel(st, model.StatsConfig{RunID: statsRun, Last: statsLast})
	program := tea.NewProgram(ui, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run stats TUI: %w", err)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyDurationMsConfig(cmd *cobra.Command, name string, target *time.Duration, value *int) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = ms(*value)
}

func defaultConfigTemplate() string {
	t := model.DefaultTiming()
	return fmt.Sprintf(`# imebench configuration
# Uncomment a value to enable it. CLI flags override config values.

[run]
# driver = %q            # direct, agent or spawn
# mode = %q              # hiragana, fullalpha, katakana or direct
# format = "text"        # text or csv (default from output extension)
# max-len = %d           # Truncate phrases to N characters
# fallback-to-input = false
# store = true           # Record runs in the history database
# start-delay-ms = 10000 # Time to focus the input field

[timing]
# key-interval-ms = %d
# settle-type-ms = %d
# settle-convert-ms = %d
# settle-commit-ms = %d
# settle-copy-ms = %d
# clipboard-tries = %d
# clipboard-delay-ms = %d
# read-tries = %d
# read-delay-ms = %d
# phrase-timeout-ms = %d

[agent]
# command = "AutoHotkey.exe kanakanji.ahk"
# log = %q
# settle-ms = 1500       # Override the agent's conversion wait
`,
		defaultDriver,
		defaultMode,
		corpus.DefaultMaxLen,
		t.KeyInterval.Milliseconds(),
		t.SettleType.Milliseconds(),
		t.SettleConvert.Milliseconds(),
		t.SettleCommit.Milliseconds(),
		t.SettleCopy.Milliseconds(),
		t.ClipboardTries,
		t.ClipboardDelay.Milliseconds(),
		t.ReadTries,
		t.ReadDelay.Milliseconds(),
		t.PhraseTimeout.Milliseconds(),
		config.DefaultAgentLogPath(),
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
