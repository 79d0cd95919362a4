package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cliply/internal/config"
)

func validConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.MediaDir = filepath.Join(base, "media")
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	cfg.Paths.ClipsDir = filepath.Join(base, "clips")
	cfg.Paths.TempDir = filepath.Join(base, "temp")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Transcription.APIKey = "test-key"
	return cfg
}

func TestValidateAcceptsDefaultsWithCredential(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidateRequiresTranscriptionKey(t *testing.T) {
	cfg := validConfig(t)
	cfg.Transcription.APIKey = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing transcription api key")
	}
	if !strings.Contains(err.Error(), "transcription.api_key") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsNonPositiveWorkflow(t *testing.T) {
	cfg := validConfig(t)
	cfg.Workflow.BatchSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero batch size")
	}
}

func TestValidateRejectsInvertedHighlightBounds(t *testing.T) {
	cfg := validConfig(t)
	cfg.LLM.MinHighlightSeconds = 30
	cfg.LLM.MaxHighlightSeconds = 15
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for inverted highlight duration bounds")
	}
}

func TestLoadParsesTOMLAndExpandsPaths(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "cliply.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(base, "data") + `"
output_dir = "` + filepath.Join(base, "out") + `"
log_dir = "` + filepath.Join(base, "logs") + `"

[transcription]
api_key = "secret"

[workflow]
batch_size = 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved == "" {
		t.Fatalf("expected config to resolve, got exists=%v path=%q", exists, resolved)
	}
	if cfg.Workflow.BatchSize != 3 {
		t.Fatalf("expected batch_size 3, got %d", cfg.Workflow.BatchSize)
	}
	if cfg.Workflow.QueuePollInterval == 0 {
		t.Fatal("expected defaults to fill unset workflow values")
	}
	if !filepath.IsAbs(cfg.Paths.TempDir) {
		t.Fatalf("expected temp dir expanded to absolute path, got %q", cfg.Paths.TempDir)
	}
}

func TestLoadRejectsMissingCredential(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "cliply.toml")
	if err := os.WriteFile(path, []byte("[workflow]\nbatch_size = 2\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected Load to fail without transcription credential")
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.OutputDir, cfg.Paths.ClipsDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist: %v", dir, err)
		}
	}
}

func TestSampleConfigMentionsEverySection(t *testing.T) {
	sample := config.SampleConfig()
	for _, section := range []string{"[paths]", "[workflow]", "[transcription]", "[captioner]", "[llm]", "[media_tool]", "[storage]", "[logging]"} {
		if !strings.Contains(sample, section) {
			t.Fatalf("sample config missing section %s", section)
		}
	}
}
