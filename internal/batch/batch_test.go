package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/verte-zerg/imebench/internal/agent/agenttest"
	"github.com/verte-zerg/imebench/internal/driver"
	"github.com/verte-zerg/imebench/internal/model"
	"github.com/verte-zerg/imebench/internal/store"
)

func TestMain(m *testing.M) {
	agenttest.Main()
	os.Exit(m.Run())
}

const fivePhrases = "きょう\nあした\nほん\nあめ\nはれ\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func testTiming() model.Timing {
	return model.Timing{ReadTries: 5, ClipboardTries: 3, SpawnTries: 2, PhraseTimeout: 10 * time.Second}
}

func agentConfig(t *testing.T, dir string) model.Config {
	t.Helper()
	return model.Config{
		InputPath:    writeFile(t, dir, "input.txt", fivePhrases),
		OutputPath:   filepath.Join(dir, "output.txt"),
		Driver:       model.DriverAgent,
		Mode:         model.ModeHiragana,
		AgentCommand: strings.Join(agenttest.Command(t), " "),
		AgentLogPath: filepath.Join(dir, "agent.log"),
		Timing:       testTiming(),
	}
}

func openStore(t *testing.T, dir string) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(dir, "imebench.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestRunScriptedAgent(t *testing.T) {
	dir := t.TempDir()
	cfg := agentConfig(t, dir)
	agenttest.Script(t, map[string]string{"honn": "echo", "hare": "flaky"})
	st := openStore(t, dir)

	summary, err := NewRunner(cfg, st, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		agenttest.Prefix + "kyou",
		agenttest.Prefix + "asita",
		"honn",
		agenttest.Prefix + "ame",
		agenttest.Prefix + "hare",
	}
	if got := readLines(t, cfg.OutputPath); !reflect.DeepEqual(got, want) {
		t.Fatalf("output = %q, want %q", got, want)
	}

	if summary.Stats.Processed != 5 || summary.Stats.Unchanged != 1 || summary.Stats.Failed != 0 {
		t.Fatalf("stats = %+v", summary.Stats)
	}
	if summary.Stats.Status != model.RunCompleted {
		t.Fatalf("status = %q", summary.Stats.Status)
	}

	records, err := st.ListRecords(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("records = %d, want 5", len(records))
	}
	for i, rec := range records {
		if rec.Index != i {
			t.Fatalf("record %d has index %d", i, rec.Index)
		}
		var wantWarnings []model.Warning
		if i == 2 {
			wantWarnings = []model.Warning{model.WarnNoConversion}
		}
		if !reflect.DeepEqual(rec.Warnings, wantWarnings) {
			t.Fatalf("record %d warnings = %v, want %v", i, rec.Warnings, wantWarnings)
		}
	}
	if records[4].Attempts != 3 || records[4].Output != agenttest.Prefix+"hare" {
		t.Fatalf("line 5 = %+v, want success after 2 transient errors", records[4])
	}
	run, err := st.GetRun(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != model.RunCompleted || run.Processed != 5 {
		t.Fatalf("stored run = %+v", run)
	}
}

type countingFactory struct {
	calls int
	drv   driver.Driver
}

func (f *countingFactory) New(driver.Options, *zap.Logger) (driver.Driver, error) {
	f.calls++
	if f.drv == nil {
		return nil, errors.New("no driver")
	}
	return f.drv, nil
}

func TestRunLineCountMismatch(t *testing.T) {
	dir := t.TempDir()
	cfg := agentConfig(t, dir)
	cfg.ExpectedPath = writeFile(t, dir, "expected.txt", "今日\n明日\n本\n雨\n")
	factory := &countingFactory{}
	r := &Runner{Config: cfg, NewDriver: factory.New}

	_, err := r.Run(context.Background())
	if !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
	if factory.calls != 0 {
		t.Fatalf("driver created %d times before validation failed", factory.calls)
	}
	if _, err := os.Stat(cfg.OutputPath); !os.IsNotExist(err) {
		t.Fatalf("output file created: %v", err)
	}
}

func TestRunValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Config)
	}{
		{name: "missing input", mutate: func(c *model.Config) { c.InputPath = filepath.Join(filepath.Dir(c.InputPath), "nope.txt") }},
		{name: "missing expected", mutate: func(c *model.Config) { c.ExpectedPath = filepath.Join(filepath.Dir(c.InputPath), "nope.txt") }},
		{name: "bad mode", mutate: func(c *model.Config) { c.Mode = "romaji" }},
		{name: "bad driver", mutate: func(c *model.Config) { c.Driver = "telepathy" }},
		{name: "bad format", mutate: func(c *model.Config) { c.Format = "xml" }},
		{name: "no output dir", mutate: func(c *model.Config) { c.OutputPath = filepath.Join(c.OutputPath, "x", "out.txt") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := agentConfig(t, t.TempDir())
			tt.mutate(&cfg)
			factory := &countingFactory{}
			_, err := (&Runner{Config: cfg, NewDriver: factory.New}).Run(context.Background())
			if !errors.Is(err, model.ErrConfiguration) {
				t.Fatalf("err = %v, want ErrConfiguration", err)
			}
			if model.ExitCode(err) != model.ExitConfiguration {
				t.Fatalf("exit code = %d", model.ExitCode(err))
			}
			if factory.calls != 0 {
				t.Fatal("driver created despite invalid configuration")
			}
		})
	}
}

func TestRunAgentExitAborts(t *testing.T) {
	dir := t.TempDir()
	cfg := agentConfig(t, dir)
	cfg.Format = model.FormatCSV
	cfg.OutputPath = filepath.Join(dir, "output.csv")
	agenttest.Script(t, map[string]string{"honn": "exit"})
	st := openStore(t, dir)

	summary, err := NewRunner(cfg, st, nil).Run(context.Background())
	if !errors.Is(err, model.ErrAgentProtocol) {
		t.Fatalf("err = %v, want ErrAgentProtocol", err)
	}
	want := []string{
		"input,output",
		"きょう," + agenttest.Prefix + "kyou",
		"あした," + agenttest.Prefix + "asita",
	}
	if got := readLines(t, cfg.OutputPath); !reflect.DeepEqual(got, want) {
		t.Fatalf("output = %q, want %q", got, want)
	}
	run, err := st.GetRun(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != model.RunAborted || run.Processed != 2 {
		t.Fatalf("stored run = %+v", run)
	}
}

type cancelingDriver struct {
	cancel context.CancelFunc
	calls  int
	closed bool
	killed bool
}

func (d *cancelingDriver) Convert(ctx context.Context, req model.Request) (driver.Result, error) {
	d.calls++
	if d.calls == 2 {
		d.cancel()
	}
	return driver.Result{Output: "<" + req.Keys + ">", Attempts: 1}, nil
}

func (d *cancelingDriver) Close() error {
	d.closed = true
	return nil
}

func (d *cancelingDriver) Kill() error {
	d.killed = true
	return nil
}

func TestRunInterrupted(t *testing.T) {
	dir := t.TempDir()
	cfg := agentConfig(t, dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	drv := &cancelingDriver{cancel: cancel}
	factory := &countingFactory{drv: drv}

	summary, err := (&Runner{Config: cfg, NewDriver: factory.New}).Run(ctx)
	if !errors.Is(err, model.ErrInterrupted) {
		t.Fatalf("err = %v, want ErrInterrupted", err)
	}
	if model.ExitCode(err) != model.ExitInterrupted {
		t.Fatalf("exit code = %d", model.ExitCode(err))
	}
	if summary.Stats.Status != model.RunInterrupted || summary.Stats.Processed != 2 {
		t.Fatalf("stats = %+v", summary.Stats)
	}
	if got := readLines(t, cfg.OutputPath); !reflect.DeepEqual(got, []string{"<kyou>", "<asita>"}) {
		t.Fatalf("output = %q", got)
	}
	if !drv.killed || drv.closed {
		t.Fatalf("interrupted run should kill the driver: killed=%v closed=%v", drv.killed, drv.closed)
	}
}

func TestRunInterruptedDuringStartDelayKillsDriver(t *testing.T) {
	cfg := agentConfig(t, t.TempDir())
	cfg.StartDelay = time.Minute
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	drv := &cancelingDriver{cancel: func() {}}

	summary, err := (&Runner{Config: cfg, NewDriver: (&countingFactory{drv: drv}).New}).Run(ctx)
	if !errors.Is(err, model.ErrInterrupted) {
		t.Fatalf("err = %v, want ErrInterrupted", err)
	}
	if drv.calls != 0 || summary.Stats.Processed != 0 {
		t.Fatalf("calls = %d, processed = %d", drv.calls, summary.Stats.Processed)
	}
	if !drv.killed || drv.closed {
		t.Fatalf("killed=%v closed=%v, want kill only", drv.killed, drv.closed)
	}
}

func TestRunComparesExpected(t *testing.T) {
	dir := t.TempDir()
	cfg := agentConfig(t, dir)
	cfg.ExpectedPath = writeFile(t, dir, "expected.txt", "<kyou>\n<asita>\n本\n<ame>\n<hare>\n")
	drv := &cancelingDriver{cancel: func() {}}

	summary, err := (&Runner{Config: cfg, NewDriver: (&countingFactory{drv: drv}).New}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	st := summary.Stats
	if st.Compared != 5 || st.ExactMatches != 4 || st.EditDistance != 6 {
		t.Fatalf("stats = %+v", st)
	}
	if !drv.closed || drv.killed {
		t.Fatalf("completed run should close the driver: closed=%v killed=%v", drv.closed, drv.killed)
	}
}

func TestRunDriverFactoryError(t *testing.T) {
	cfg := agentConfig(t, t.TempDir())
	factory := func(driver.Options, *zap.Logger) (driver.Driver, error) {
		return nil, model.ErrConfiguration
	}
	_, err := (&Runner{Config: cfg, NewDriver: factory}).Run(context.Background())
	if !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("err = %v", err)
	}
}
