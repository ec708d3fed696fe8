package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEngineUnreachable is returned when the container engine cannot be contacted.
	ErrEngineUnreachable = errors.New("container engine unreachable")

	// ErrNotFound is returned when a container, image or network does not exist.
	ErrNotFound = errors.New("not found")
)

// UnsupportedArchitectureError is fatal: images are never built for a guessed architecture.
type UnsupportedArchitectureError struct {
	Arch string
}

func (e *UnsupportedArchitectureError) Error() string {
	return fmt.Sprintf("unsupported architecture: %s", e.Arch)
}

// BuildError reports a failed image build. Builds are not retried.
type BuildError struct {
	Tag      string
	Stderr   string
	ExitCode int
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("build of %s failed with exit code %d", e.Tag, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

// ReadinessExhaustedError is returned when a dependency never became ready
// within its retry budget.
type ReadinessExhaustedError struct {
	Dependency string
	Code       ReadinessCode
	Detail     string
	Attempts   int
}

func (e *ReadinessExhaustedError) Error() string {
	return fmt.Sprintf("%s not ready after %d attempts: %s: %s", e.Dependency, e.Attempts, e.Code, e.Detail)
}

// HandoffError reports a failed config handoff. The dependency itself is healthy.
type HandoffError struct {
	File string
	Err  error
}

func (e *HandoffError) Error() string {
	return fmt.Sprintf("config handoff to %s failed: %v", e.File, e.Err)
}

func (e *HandoffError) Unwrap() error {
	return e.Err
}

// CleanupFailure is one container that could not be stopped or removed.
type CleanupFailure struct {
	Container string `json:"container"`
	Step      string `json:"step"`
	Error     string `json:"error"`
}

// PartialCleanupError lists every container a teardown sweep failed on.
type PartialCleanupError struct {
	Failures []CleanupFailure
}

func (e *PartialCleanupError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s (%s): %s", f.Container, f.Step, f.Error))
	}
	return fmt.Sprintf("cleanup failed for %d container(s): %s", len(e.Failures), strings.Join(parts, "; "))
}

// InvalidSelectionError reports an operator choice outside the allowed set.
type InvalidSelectionError struct {
	What    string
	Value   string
	Allowed []string
}

func (e *InvalidSelectionError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("invalid %s: %q", e.What, e.Value)
	}
	return fmt.Sprintf("invalid %s: %q (must be one of: %s)", e.What, e.Value, strings.Join(e.Allowed, ", "))
}

// UnknownGroupError is returned for a group name not present in the lab.
type UnknownGroupError struct {
	Name string
}

func (e *UnknownGroupError) Error() string {
	return fmt.Sprintf("unknown service group %q", e.Name)
}
