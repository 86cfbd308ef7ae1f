package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/imebench/internal/config"
	"github.com/verte-zerg/imebench/internal/model"
)

func writeConfig(t *testing.T, data string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	path := filepath.Join(dir, "imebench", "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestBuildRunConfigDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cmd := newRunCmd()
	if err := cmd.ParseFlags([]string{"-o", "out.txt"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := buildRunConfig(cmd, "in.txt")
	if err != nil {
		t.Fatalf("buildRunConfig failed: %v", err)
	}
	want := model.DefaultTiming()
	if cfg.Timing != want {
		t.Fatalf("timing = %+v, want %+v", cfg.Timing, want)
	}
	if cfg.Driver != model.DriverDirect || cfg.Mode != model.ModeHiragana {
		t.Fatalf("unexpected driver/mode %q/%q", cfg.Driver, cfg.Mode)
	}
	if cfg.StartDelay != defaultDirectDelay {
		t.Fatalf("start delay = %v, want %v", cfg.StartDelay, defaultDirectDelay)
	}
	if !cfg.Store || cfg.InputPath != "in.txt" || cfg.OutputPath != "out.txt" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestBuildRunConfigPrecedence(t *testing.T) {
	writeConfig(t, `
[run]
driver = "agent"
mode = "katakana"
max-len = 80
store = false

[timing]
settle-convert-ms = 300
read-tries = 7
phrase-timeout-ms = 5000

[agent]
command = "agent --flag"
settle-ms = 900
`)
	cmd := newRunCmd()
	if err := cmd.ParseFlags([]string{"-o", "out.csv", "--mode", "fullalpha", "--settle-commit", "250"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := buildRunConfig(cmd, "in.txt")
	if err != nil {
		t.Fatalf("buildRunConfig failed: %v", err)
	}
	if cfg.Driver != model.DriverAgent || cfg.AgentCommand != "agent --flag" {
		t.Fatalf("driver/agent = %q/%q", cfg.Driver, cfg.AgentCommand)
	}
	if cfg.Mode != model.ModeFullAlpha {
		t.Fatalf("flag should win over config, mode = %q", cfg.Mode)
	}
	if cfg.MaxLen != 80 || cfg.Store {
		t.Fatalf("max-len/store = %d/%v", cfg.MaxLen, cfg.Store)
	}
	if cfg.StartDelay != 0 {
		t.Fatalf("agent driver start delay = %v, want 0", cfg.StartDelay)
	}
	if cfg.Timing.SettleConvert != 300*time.Millisecond ||
		cfg.Timing.SettleCommit != 250*time.Millisecond ||
		cfg.Timing.ReadTries != 7 ||
		cfg.Timing.PhraseTimeout != 5*time.Second ||
		cfg.Timing.AgentSettle != 900*time.Millisecond {
		t.Fatalf("unexpected timing %+v", cfg.Timing)
	}
}

func TestBuildRunConfigSettleFlagOverridesAgent(t *testing.T) {
	writeConfig(t, `
[agent]
command = "agent"
settle-ms = 900
`)
	cmd := newRunCmd()
	if err := cmd.ParseFlags([]string{"-o", "out.txt", "--driver", "agent", "--settle-convert", "1200"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := buildRunConfig(cmd, "in.txt")
	if err != nil {
		t.Fatalf("buildRunConfig failed: %v", err)
	}
	if cfg.Timing.AgentSettle != 1200*time.Millisecond {
		t.Fatalf("agent settle = %v", cfg.Timing.AgentSettle)
	}
}

func TestBuildRunConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing output", args: nil},
		{name: "zero max-len", args: []string{"-o", "x", "--max-len", "0"}},
		{name: "agent without command", args: []string{"-o", "x", "--driver", "agent"}},
		{name: "spawn without command", args: []string{"-o", "x", "--driver", "spawn", "--agent", "  "}},
		{name: "negative settle", args: []string{"-o", "x", "--settle-type=-1"}},
		{name: "zero timeout", args: []string{"-o", "x", "--phrase-timeout", "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("XDG_CONFIG_HOME", t.TempDir())
			cmd := newRunCmd()
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("parse flags: %v", err)
			}
			_, err := buildRunConfig(cmd, "in.txt")
			if !errors.Is(err, model.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestBuildRunConfigBadFile(t *testing.T) {
	writeConfig(t, "[run]\nunknown = 1\n")
	cmd := newRunCmd()
	if err := cmd.ParseFlags([]string{"-o", "x"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if _, err := buildRunConfig(cmd, "in.txt"); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDefaultConfigTemplateDecodes(t *testing.T) {
	uncomment := regexp.MustCompile(`(?m)^# ([a-z-]+ = )`)
	data := uncomment.ReplaceAllString(defaultConfigTemplate(), "$1")
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("template does not decode: %v\n%s", err, data)
	}
	if cfg.Run.Driver == nil || *cfg.Run.Driver != defaultDriver {
		t.Fatalf("driver = %v", cfg.Run.Driver)
	}
	if cfg.Timing.ReadTries == nil || *cfg.Timing.ReadTries != model.DefaultTiming().ReadTries {
		t.Fatalf("read-tries = %v", cfg.Timing.ReadTries)
	}
	if cfg.Agent.Command == nil {
		t.Fatalf("agent command not decoded")
	}
}

func TestRomajiCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("きょう\n\nしんぶん\n"))
	cmd.SetArgs([]string{"romaji", "-"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("romaji failed: %v", err)
	}
	want := "きょう\tkyou\nしんぶん\tsinnbunn\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}

func TestRomajiCommandMissingFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"romaji", filepath.Join(t.TempDir(), "missing.txt")})
	err := cmd.Execute()
	if model.ExitCode(err) != 2 {
		t.Fatalf("exit code = %d (%v), want 2", model.ExitCode(err), err)
	}
}
