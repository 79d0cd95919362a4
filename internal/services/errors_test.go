package services_test

import (
	"errors"
	"strings"
	"testing"

	"cliply/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	cause := errors.New("connection refused")
	err := services.Wrap(services.ErrTranscription, "transcription", "submit", "api unreachable", cause)

	if !errors.Is(err, services.ErrTranscription) {
		t.Fatalf("expected error to match ErrTranscription, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected error to wrap cause, got %v", err)
	}
	for _, fragment := range []string{"transcription", "submit", "api unreachable"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in error message %q", fragment, err.Error())
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "audio-extract", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected nil marker to default to ErrTransient, got %v", err)
	}
}

func TestWrapWithoutDetailUsesFallback(t *testing.T) {
	err := services.Wrap(services.ErrMediaTool, "", "", "", nil)
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}
