// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Run    RunConfig    `toml:"run"`
	Timing TimingConfig `toml:"timing"`
	Agent  AgentConfig  `toml:"agent"`
}

// RunConfig maps batch-related settings.
type RunConfig struct {
	Driver          *string `toml:"driver"`
	Mode            *string `toml:"mode"`
	Format          *string `toml:"format"`
	MaxLen          *int    `toml:"max-len"`
	FallbackToInput *bool   `toml:"fallback-to-input"`
	Store           *bool   `toml:"store"`
	StartDelayMs    *int    `toml:"start-delay-ms"`
}

// TimingConfig maps settle delays and retry bounds, in milliseconds.
type TimingConfig struct {
	KeyIntervalMs    *int `toml:"key-interval-ms"`
	SettleTypeMs     *int `toml:"settle-type-ms"`
	SettleConvertMs  *int `toml:"settle-convert-ms"`
	SettleCommitMs   *int `toml:"settle-commit-ms"`
	SettleCopyMs     *int `toml:"settle-copy-ms"`
	ClipboardTries   *int `toml:"clipboard-tries"`
	ClipboardDelayMs *int `toml:"clipboard-delay-ms"`
	ReadTries        *int `toml:"read-tries"`
	ReadDelayMs      *int `toml:"read-delay-ms"`
	PhraseTimeoutMs  *int `toml:"phrase-timeout-ms"`
}

// AgentConfig maps settings for the external automation agent.
type AgentConfig struct {
	Command  *string `toml:"command"`
	Log      *string `toml:"log"`
	SettleMs *int    `toml:"settle-ms"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
