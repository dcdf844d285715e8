package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotReady is returned when the strategy is used before a successful Initialize
// or after it has failed.
var ErrNotReady = errors.New("model strategy is not ready")

// ErrContextOverflow marks inference failures caused by an exhausted context window.
var ErrContextOverflow = errors.New("model context overflow")

// InitFailure is the typed reason an initialization or reload failed.
type InitFailure string

const (
	FailureMissingArtifact        InitFailure = "missing_artifact"
	FailureUnsupportedEnvironment InitFailure = "unsupported_environment"
	FailureResourceExhausted      InitFailure = "resource_exhausted"
)

// InitError reports why the model could not be loaded. Callers are expected to
// fall back to the rule-based strategy rather than retry.
type InitError struct {
	Reason InitFailure
	Path   string
	Err    error
}

func (e *InitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model init failed (%s): %s", e.Reason, e.Path)
	}
	return fmt.Sprintf("model init failed (%s): %s: %v", e.Reason, e.Path, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// classifyLoadError maps a runtime load error onto an InitError.
func classifyLoadError(path string, err error) *InitError {
	var initErr *InitError
	if errors.As(err, &initErr) {
		return initErr
	}
	msg := strings.ToLower(err.Error())
	reason := FailureUnsupportedEnvironment
	for _, marker := range []string{"out of memory", "oom", "resource_exhausted", "resource exhausted", "quota"} {
		if strings.Contains(msg, marker) {
			reason = FailureResourceExhausted
			break
		}
	}
	return &InitError{Reason: reason, Path: path, Err: err}
}

var overflowMarkers = []string{
	"out_of_range",
	"too long",
	"exceeds the maximum number of tokens",
	"context length",
	"context window",
}

// isContextOverflow reports whether err came from an exhausted context window.
func isContextOverflow(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrContextOverflow) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range overflowMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
