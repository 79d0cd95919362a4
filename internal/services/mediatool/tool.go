package mediatool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"cliply/internal/config"
	"cliply/internal/services"
)

const defaultTimeout = 600 * time.Second

// Tool runs ffmpeg and ffprobe commands.
type Tool struct {
	ffmpeg  string
	ffprobe string
	timeout time.Duration
}

// New constructs a tool with explicit binary paths.
func New(ffmpegBinary, ffprobeBinary string) *Tool {
	tool := &Tool{
		ffmpeg:  strings.TrimSpace(ffmpegBinary),
		ffprobe: strings.TrimSpace(ffprobeBinary),
		timeout: defaultTimeout,
	}
	if tool.ffmpeg == "" {
		tool.ffmpeg = "ffmpeg"
	}
	if tool.ffprobe == "" {
		tool.ffprobe = "ffprobe"
	}
	return tool
}

// NewFromConfig builds a tool from daemon configuration.
func NewFromConfig(cfg config.MediaTool) *Tool {
	tool := New(cfg.FFmpegBinary, cfg.FFprobeBinary)
	if cfg.TimeoutSeconds > 0 {
		tool.timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return tool
}

// Available reports whether both binaries can be found.
func (t *Tool) Available() error {
	if _, err := exec.LookPath(t.ffmpeg); err != nil {
		return services.Wrap(services.ErrMediaTool, "mediatool", "lookup", "ffmpeg not found", err)
	}
	if _, err := exec.LookPath(t.ffprobe); err != nil {
		return services.Wrap(services.ErrMediaTool, "mediatool", "lookup", "ffprobe not found", err)
	}
	return nil
}

// ExtractAudio strips the video stream and writes an MP3 audio file.
func (t *Tool) ExtractAudio(ctx context.Context, source, dest string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-c:a", "libmp3lame",
		"-q:a", "2",
		dest,
	}
	return t.runFFmpeg(ctx, "extract audio", args, dest)
}

// CutRequest describes a clip render.
type CutRequest struct {
	Source    string
	Dest      string
	Start     float64
	End       float64
	Watermark string
}

// Cut renders a clip between Start and End. A timestamp watermark is
// drawn in the corner so viewers can place the moment in the original
// recording; the watermark text precedes the running pts clock.
func (t *Tool) Cut(ctx context.Context, req CutRequest) error {
	if req.End <= req.Start {
		return services.Wrap(services.ErrValidation, "mediatool", "cut",
			fmt.Sprintf("end %.2f must be after start %.2f", req.End, req.Start), nil)
	}
	duration := req.End - req.Start

	drawtext := fmt.Sprintf(
		"drawtext=text='%s %%{pts\\:hms\\:%s}':x=w-tw-10:y=h-th-10:fontsize=24:fontcolor=white:box=1:boxcolor=black@0.5:boxborderw=5",
		escapeDrawtext(req.Watermark),
		formatSeconds(req.Start),
	)

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(req.Start),
		"-t", formatSeconds(duration),
		"-i", req.Source,
		"-vf", drawtext,
		"-c:v", "libx264",
		"-preset", "fast",
		"-c:a", "aac",
		"-movflags", "+faststart",
		req.Dest,
	}
	return t.runFFmpeg(ctx, "cut clip", args, req.Dest)
}

// ProbeResult is the subset of media metadata the pipeline records.
type ProbeResult struct {
	Width    int
	Height   int
	Duration float64
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads resolution and duration from a media file.
func (t *Tool) Probe(ctx context.Context, path string) (ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	}
	cmd := exec.CommandContext(ctx, t.ffprobe, args...) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		return ProbeResult{}, services.Wrap(services.ErrMediaTool, "mediatool", "probe", commandFailure(err), err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return ProbeResult{}, services.Wrap(services.ErrMediaTool, "mediatool", "probe", "decode ffprobe output", err)
	}

	result := ProbeResult{}
	if len(parsed.Streams) > 0 {
		result.Width = parsed.Streams[0].Width
		result.Height = parsed.Streams[0].Height
	}
	if parsed.Format.Duration != "" {
		if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			result.Duration = d
		}
	}
	return result, nil
}

// FileSize returns the size of a rendered file in bytes.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, services.Wrap(services.ErrMediaTool, "mediatool", "stat", "inspect output file", err)
	}
	return info.Size(), nil
}

func (t *Tool) runFFmpeg(ctx context.Context, operation string, args []string, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.ffmpeg, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		// A partial output file would look like a finished render.
		_ = os.Remove(dest)
		detail := strings.TrimSpace(string(output))
		if detail == "" {
			detail = commandFailure(err)
		}
		return services.Wrap(services.ErrMediaTool, "mediatool", operation, detail, err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return services.Wrap(services.ErrMediaTool, "mediatool", operation, "output file missing", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(dest)
		return services.Wrap(services.ErrMediaTool, "mediatool", operation, "output file is empty", nil)
	}
	return nil
}

func commandFailure(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return strings.TrimSpace(string(exitErr.Stderr))
	}
	return err.Error()
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

func escapeDrawtext(text string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		"'", "\\'",
		":", "\\:",
		"%", "\\%",
	)
	return replacer.Replace(text)
}
