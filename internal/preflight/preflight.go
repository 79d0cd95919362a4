package preflight

import (
	"context"

	"cliply/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Media directory", cfg.Paths.MediaDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("Clips directory", cfg.Paths.ClipsDir),
		CheckDirectoryAccess("Temp directory", cfg.Paths.TempDir),
		CheckDiskSpace("Clip storage space", cfg.Paths.ClipsDir),
	}

	results = append(results, CheckBinary("FFmpeg", cfg.MediaTool.FFmpegBinary))
	results = append(results, CheckBinary("FFprobe", cfg.MediaTool.FFprobeBinary))

	results = append(results, CheckCredentialedEndpoint(ctx, "Transcription API", cfg.Transcription.BaseURL, cfg.Transcription.APIKey))
	results = append(results, CheckCredentialedEndpoint(ctx, "Highlight LLM", cfg.LLM.BaseURL, cfg.LLM.APIKey))
	if cfg.Captioner.BaseURL != "" {
		results = append(results, CheckEndpoint(ctx, "Captioner service", cfg.Captioner.BaseURL))
	}

	return results
}

// AllPassed reports whether every result in the slice passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
