package model

import (
	"context"
	"errors"
)

// Error classes shared by the driver and the batch runner.
var (
	// ErrConfiguration aborts a batch before any phrase is processed.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransient is retried and then degraded to a per-line failure.
	ErrTransient = errors.New("transient i/o error")
	// ErrAgentProtocol aborts the remaining phrases of a batch.
	ErrAgentProtocol = errors.New("agent protocol error")
	// ErrInterrupted marks a user-initiated stop.
	ErrInterrupted = errors.New("interrupted")
)

// Process exit codes.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitConfiguration = 2
	ExitProtocol      = 3
	ExitInterrupted   = 130
)

// ExitCode maps an error returned by a command to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInterrupted), errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, ErrConfiguration):
		return ExitConfiguration
	case errors.Is(err, ErrAgentProtocol):
		return ExitProtocol
	default:
		return ExitFailure
	}
}
