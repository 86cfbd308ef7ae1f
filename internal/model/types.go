// Package model defines shared data structures.
package model

import "time"

// Input modes understood by the automation agent.
const (
	ModeHiragana  = "hiragana"
	ModeFullAlpha = "fullalpha"
	ModeKatakana  = "katakana"
	ModeDirect    = "direct"
)

// Driver kinds.
const (
	DriverDirect = "direct"
	DriverAgent  = "agent"
	DriverSpawn  = "spawn"
)

// Sink formats.
const (
	FormatText = "text"
	FormatCSV  = "csv"
)

// Modes lists the supported input modes in display order.
var Modes = []string{ModeHiragana, ModeFullAlpha, ModeKatakana, ModeDirect}

// Drivers lists the supported driver kinds.
var Drivers = []string{DriverDirect, DriverAgent, DriverSpawn}

// Config defines batch run settings.
type Config struct {
	InputPath       string
	ExpectedPath    string
	OutputPath      string
	LogPath         string
	Format          string
	MaxLen          int
	Mode            string
	Driver          string
	AgentCommand    string
	AgentLogPath    string
	FallbackToInput bool
	Store           bool
	Debug           bool
	StartDelay      time.Duration
	Timing          Timing
}

// Timing holds settle delays, retry bounds and timeouts for the driver.
type Timing struct {
	KeyInterval     time.Duration
	SettleType      time.Duration
	SettleConvert   time.Duration
	SettleCommit    time.Duration
	SettleCopy      time.Duration
	ClipboardTries  int
	ClipboardDelay  time.Duration
	ReadTries       int
	ReadDelay       time.Duration
	PhraseTimeout   time.Duration
	AgentSettle     time.Duration
	SpawnTries      int
	SpawnRetryDelay time.Duration
}

// DefaultTiming returns the delays the tool was tuned with.
func DefaultTiming() Timing {
	return Timing{
		KeyInterval:     50 * time.Millisecond,
		SettleType:      1000 * time.Millisecond,
		SettleConvert:   1500 * time.Millisecond,
		SettleCommit:    1000 * time.Millisecond,
		SettleCopy:      500 * time.Millisecond,
		ClipboardTries:  3,
		ClipboardDelay:  300 * time.Millisecond,
		ReadTries:       5,
		ReadDelay:       1000 * time.Millisecond,
		PhraseTimeout:   40 * time.Second,
		SpawnTries:      2,
		SpawnRetryDelay: 2 * time.Second,
	}
}

// StatsConfig defines filters for the run browser.
type StatsConfig struct {
	RunID int64
	Last  int
}

// Phrase is one cleaned corpus line.
type Phrase struct {
	Index int
	Line  int
	Text  string
}

// Request is a keystroke sequence tagged with its source line.
type Request struct {
	Index  int
	Phrase string
	Keys   string
}

// Warning flags a record that needs a second look.
type Warning string

const (
	WarnNoConversion     Warning = "no_conversion"
	WarnUnexpectedSpaces Warning = "unexpected_spaces"
	WarnFailed           Warning = "failed"
	WarnTimeout          Warning = "timeout"
)

// Record is the outcome of converting one phrase.
type Record struct {
	Index    int
	Hiragana string
	Romaji   string
	Output   string
	Expected string
	Warnings []Warning
	Attempts int
	Elapsed  time.Duration
}

// Has reports whether the record carries the warning.
func (r Record) Has(w Warning) bool {
	for _, got := range r.Warnings {
		if got == w {
			return true
		}
	}
	return false
}

// Run status values.
const (
	RunRunning     = "running"
	RunCompleted   = "completed"
	RunAborted     = "aborted"
	RunInterrupted = "interrupted"
)

// RunInfo describes a batch run when it starts.
type RunInfo struct {
	StartedAt    time.Time
	InputPath    string
	ExpectedPath string
	OutputPath   string
	Driver       string
	Mode         string
	Phrases      int
}

// RunStats captures the totals of a finished run.
type RunStats struct {
	EndedAt      time.Time
	Status       string
	Processed    int
	Converted    int
	Unchanged    int
	Spaced       int
	Failed       int
	TimedOut     int
	Compared     int
	ExactMatches int
	EditDistance int
	ExpectedLen  int
}

// RunAggregate summarizes a stored run for reporting.
type RunAggregate struct {
	RunID     int64
	StartedAt time.Time
	InputPath string
	Driver    string
	Mode      string
	Phrases   int
	RunStats
}
