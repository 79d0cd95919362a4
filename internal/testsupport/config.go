// Package testsupport provides shared helpers for package tests: config
// fixtures rooted in per-test temp directories, queue store setup, and
// media file generation.
package testsupport

import (
	"path/filepath"
	"testing"

	"cliply/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per
// test. Credentials are filled with placeholder values so validation
// passes without real keys.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.MediaDir = filepath.Join(base, "media")
	cfg.Paths.OutputDir = filepath.Join(base, "processed")
	cfg.Paths.ClipsDir = filepath.Join(base, "clips")
	cfg.Paths.TempDir = filepath.Join(base, "temp")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Transcription.APIKey = "test-transcription-key"
	cfg.LLM.APIKey = "test-llm-key"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithLLMKey sets the highlight LLM API key on the test config.
func WithLLMKey(key string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.LLM.APIKey = key
	}
}

// WithBatchSize sets the workflow batch size on the test config.
func WithBatchSize(size int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.BatchSize = size
	}
}
