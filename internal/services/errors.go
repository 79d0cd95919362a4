package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed input rejected before any work happens.
	ErrValidation = errors.New("validation error")
	// ErrInvalidState marks an operation attempted against a task that is not
	// in the state the operation requires.
	ErrInvalidState = errors.New("invalid state")
	// ErrTranscription marks failures reported by the speech-to-text
	// collaborator.
	ErrTranscription = errors.New("transcription error")
	// ErrMediaTool marks failures from the media-cutting tool (missing
	// source, bad time range, nonzero exit).
	ErrMediaTool = errors.New("media tool error")
	// ErrHighlightParse marks LLM output that did not contain a valid
	// highlight payload.
	ErrHighlightParse = errors.New("highlight parse error")
	// ErrExternalTool marks other collaborator failures.
	ErrExternalTool = errors.New("external tool error")
	// ErrTimeout marks bounded waits that expired.
	ErrTimeout = errors.New("timeout")
	// ErrTransient marks failures with no better classification.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes handler context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind names the sentinel classification of a wrapped error, for log
// fields and operator-facing summaries.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrTranscription):
		return "transcription"
	case errors.Is(err, ErrMediaTool):
		return "media_tool"
	case errors.Is(err, ErrHighlightParse):
		return "highlight_parse"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrTransient):
		return "transient"
	}
	return "unknown"
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
