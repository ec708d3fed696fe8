package cli

import (
	"errors"

	"github.com/charmbracelet/huh"

	"github.com/guan4tou2/Lnadlse/internal/core/domain"
)

const (
	ExitOK        = 0
	ExitFailure   = 1 // engine or build failure
	ExitSelection = 2 // invalid selection, unknown group, aborted prompt, bad usage
	ExitNotReady  = 3 // readiness budget exhausted
)

// usageError marks argument and flag mistakes.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// ExitCode maps a command error onto the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var (
		exhausted *domain.ReadinessExhaustedError
		invalid   *domain.InvalidSelectionError
		unknown   *domain.UnknownGroupError
		usage     *usageError
	)
	switch {
	case errors.As(err, &exhausted):
		return ExitNotReady
	case errors.As(err, &invalid), errors.As(err, &unknown), errors.As(err, &usage):
		return ExitSelection
	case errors.Is(err, huh.ErrUserAborted):
		return ExitSelection
	default:
		return ExitFailure
	}
}
