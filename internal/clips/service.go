package clips

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"cliply/internal/config"
	"cliply/internal/logging"
	"cliply/internal/queue"
	"cliply/internal/services"
	"cliply/internal/services/mediatool"
	"cliply/internal/stage"
	"cliply/internal/storage"
)

// MediaTool is the slice of the ffmpeg wrapper this service needs.
type MediaTool interface {
	Available() error
	Cut(ctx context.Context, req mediatool.CutRequest) error
	Probe(ctx context.Context, path string) (mediatool.ProbeResult, error)
}

// Service renders highlight clips.
type Service struct {
	store     *queue.Store
	artifacts *storage.Local
	tool      MediaTool
	tempDir   string
	logger    *slog.Logger
}

// NewService constructs the renderer with the configured media tool.
func NewService(cfg *config.Config, store *queue.Store, artifacts *storage.Local, logger *slog.Logger) *Service {
	return NewServiceWithDependencies(store, artifacts, mediatool.NewFromConfig(cfg.MediaTool), cfg.Paths.TempDir, logger)
}

// NewServiceWithDependencies allows injecting the media tool (used in tests).
func NewServiceWithDependencies(store *queue.Store, artifacts *storage.Local, tool MediaTool, tempDir string, logger *slog.Logger) *Service {
	serviceLogger := logger
	if serviceLogger != nil {
		serviceLogger = serviceLogger.With(logging.String(logging.FieldComponent, "clips"))
	}
	return &Service{store: store, artifacts: artifacts, tool: tool, tempDir: tempDir, logger: serviceLogger}
}

// Render cuts one highlight into a clip file and appends its metadata to
// the video. The source must be readable locally.
func (s *Service) Render(ctx context.Context, videoID string, h queue.Highlight) (queue.Clip, error) {
	video, err := s.store.VideoByID(ctx, videoID)
	if err != nil {
		return queue.Clip{}, err
	}
	source, err := s.sourcePath(video)
	if err != nil {
		return queue.Clip{}, err
	}
	if err := s.tool.Available(); err != nil {
		return queue.Clip{}, err
	}

	sourceProbe, err := s.tool.Probe(ctx, source)
	if err != nil {
		return queue.Clip{}, err
	}
	if sourceProbe.Duration > 0 && h.End > sourceProbe.Duration {
		return queue.Clip{}, services.Wrap(services.ErrMediaTool, "clips", "validate range",
			fmt.Sprintf("highlight ends at %.2fs but source %s is %.2fs long", h.End, video.ID, sourceProbe.Duration), nil)
	}

	clipID := uuid.NewString()
	name := clipID + ".mp4"

	if err := os.MkdirAll(s.tempDir, 0o755); err != nil {
		return queue.Clip{}, fmt.Errorf("create temp dir: %w", err)
	}
	tempOut := filepath.Join(s.tempDir, name)
	defer os.Remove(tempOut)

	watermark := strings.TrimSpace(h.Text)
	if watermark == "" {
		watermark = strings.TrimSpace(video.Title)
	}
	if err := s.tool.Cut(ctx, mediatool.CutRequest{
		Source:    source,
		Dest:      tempOut,
		Start:     h.Start,
		End:       h.End,
		Watermark: watermark,
	}); err != nil {
		return queue.Clip{}, err
	}

	probe, err := s.tool.Probe(ctx, tempOut)
	if err != nil {
		return queue.Clip{}, err
	}
	size, err := mediatool.FileSize(tempOut)
	if err != nil {
		return queue.Clip{}, err
	}

	stored, err := s.artifacts.PutFile("clips", name, tempOut)
	if err != nil {
		return queue.Clip{}, err
	}

	clip := queue.Clip{
		ID:               clipID,
		Path:             stored,
		URL:              s.artifacts.URLFor(stored),
		Start:            h.Start,
		End:              h.End,
		Text:             h.Text,
		Reason:           h.Reason,
		Duration:         h.Duration(),
		SourceVideoID:    video.ID,
		SourceVideoTitle: video.Title,
		Width:            probe.Width,
		Height:           probe.Height,
		FileSize:         size,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.store.AppendClip(ctx, videoID, clip); err != nil {
		// The file is rendered but unrecorded; remove it so reruns do not
		// accumulate orphans.
		_ = os.Remove(stored)
		return queue.Clip{}, err
	}

	logging.WithContext(ctx, s.logger).Info("clip rendered",
		logging.String(logging.FieldVideoID, videoID),
		logging.String("clip_id", clipID),
		logging.Float64("duration", h.Duration()),
	)
	return clip, nil
}

// RenderAll renders every stored highlight of a video. The first failure
// stops the run; already-rendered clips stay recorded.
func (s *Service) RenderAll(ctx context.Context, videoID string) ([]queue.Clip, error) {
	video, err := s.store.VideoByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if len(video.Highlights) == 0 {
		return nil, services.Wrap(services.ErrInvalidState, "clips", "render all",
			fmt.Sprintf("video %s has no highlights; run highlight extraction first", videoID), nil)
	}

	rendered := make([]queue.Clip, 0, len(video.Highlights))
	for _, h := range video.Highlights {
		clip, err := s.Render(ctx, videoID, h)
		if err != nil {
			return rendered, err
		}
		rendered = append(rendered, clip)
	}
	return rendered, nil
}

// HealthCheck reports whether rendering is possible on this host.
func (s *Service) HealthCheck(ctx context.Context) stage.Health {
	if err := s.tool.Available(); err != nil {
		return stage.Unhealthy("clips", err.Error())
	}
	return stage.Healthy("clips")
}

func (s *Service) sourcePath(video *queue.Video) (string, error) {
	candidates := make([]string, 0, 2)
	if video.MediaPath != "" {
		candidates = append(candidates, video.MediaPath)
	}
	if video.SourceURL != "" {
		if path, ok := s.artifacts.PathFor(video.SourceURL); ok {
			candidates = append(candidates, path)
		}
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", services.Wrap(services.ErrValidation, "clips", "resolve source",
		fmt.Sprintf("no readable media file for video %s", video.ID), nil)
}
