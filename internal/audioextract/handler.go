package audioextract

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"cliply/internal/config"
	"cliply/internal/fileutil"
	"cliply/internal/logging"
	"cliply/internal/queue"
	"cliply/internal/services"
	"cliply/internal/services/mediatool"
	"cliply/internal/stage"
	"cliply/internal/storage"
)

// MediaTool is the slice of the ffmpeg wrapper this handler needs.
type MediaTool interface {
	Available() error
	ExtractAudio(ctx context.Context, source, dest string) error
}

// Handler runs audio_extraction tasks.
type Handler struct {
	store      *queue.Store
	artifacts  *storage.Local
	tool       MediaTool
	tempDir    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New constructs the handler with the configured media tool.
func New(cfg *config.Config, store *queue.Store, artifacts *storage.Local, logger *slog.Logger) *Handler {
	return NewWithDependencies(store, artifacts, mediatool.NewFromConfig(cfg.MediaTool), cfg.Paths.TempDir, logger)
}

// NewWithDependencies allows injecting the media tool (used in tests).
func NewWithDependencies(store *queue.Store, artifacts *storage.Local, tool MediaTool, tempDir string, logger *slog.Logger) *Handler {
	handlerLogger := logger
	if handlerLogger != nil {
		handlerLogger = handlerLogger.With(logging.String(logging.FieldComponent, "audioextract"))
	}
	return &Handler{
		store:      store,
		artifacts:  artifacts,
		tool:       tool,
		tempDir:    tempDir,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     handlerLogger,
	}
}

func (h *Handler) Type() queue.TaskType {
	return queue.TypeAudioExtraction
}

func (h *Handler) Prepare(ctx context.Context, task *queue.Task) error {
	if _, ok := h.localSource(ctx, task); ok {
		return nil
	}
	if h.remoteSource(ctx, task) != "" {
		return nil
	}
	return services.Wrap(services.ErrValidation, "audioextract", "resolve source",
		fmt.Sprintf("no readable media file for video %s", strings.TrimSpace(task.VideoID)), nil)
}

func (h *Handler) Execute(ctx context.Context, task *queue.Task) (queue.Result, error) {
	logger := logging.WithContext(ctx, h.logger)

	source, cleanup, err := h.resolveSource(ctx, task)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	name := audioName(task.VideoID)
	var stored string
	if h.tool != nil && h.tool.Available() == nil {
		stored, err = h.extractWithTool(ctx, source, name)
	} else {
		// No ffmpeg on this host. The capture upload is already an audio
		// file, so relocating it into the store is enough.
		logger.Info("ffmpeg unavailable, relocating source audio",
			logging.String("source", source))
		stored, err = h.artifacts.PutFile("audio", name, source)
	}
	if err != nil {
		return nil, err
	}

	audioURL := h.artifacts.URLFor(stored)
	if err := h.store.SetVideoAudio(ctx, task.VideoID, audioURL); err != nil {
		return nil, err
	}

	logger.Info("audio extracted",
		logging.String(logging.FieldVideoID, task.VideoID),
		logging.String("audio_url", audioURL),
	)
	return queue.AudioResult{AudioURL: audioURL}, nil
}

func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h.artifacts == nil {
		return stage.Unhealthy("audioextract", "artifact store not configured")
	}
	// Extraction degrades to relocation without ffmpeg, so a missing
	// binary is not fatal.
	return stage.Healthy("audioextract")
}

func (h *Handler) extractWithTool(ctx context.Context, source, name string) (string, error) {
	if err := os.MkdirAll(h.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	tempOut := filepath.Join(h.tempDir, name)
	defer os.Remove(tempOut)

	if err := h.tool.ExtractAudio(ctx, source, tempOut); err != nil {
		return "", err
	}
	return h.artifacts.PutFile("audio", name, tempOut)
}

// resolveSource turns the task's media reference into a readable local
// file, fetching remote URLs into the temp directory. The cleanup removes
// the download and is a no-op for files already on disk.
func (h *Handler) resolveSource(ctx context.Context, task *queue.Task) (string, func(), error) {
	if path, ok := h.localSource(ctx, task); ok {
		return path, func() {}, nil
	}
	if remote := h.remoteSource(ctx, task); remote != "" {
		path, err := fileutil.DownloadToTemp(ctx, h.httpClient, remote, h.tempDir, "extract-*.media")
		if err != nil {
			return "", nil, services.Wrap(services.ErrExternalTool, "audioextract", "download source", err.Error(), nil)
		}
		return path, func() { _ = os.Remove(path) }, nil
	}
	return "", nil, services.Wrap(services.ErrValidation, "audioextract", "resolve source",
		fmt.Sprintf("no readable media file for video %s", strings.TrimSpace(task.VideoID)), nil)
}

// localSource reports the first media candidate already readable on disk.
func (h *Handler) localSource(ctx context.Context, task *queue.Task) (string, bool) {
	candidates := make([]string, 0, 3)
	if task.MediaURL != "" {
		if path, ok := h.artifacts.PathFor(task.MediaURL); ok {
			candidates = append(candidates, path)
		}
		candidates = append(candidates, task.MediaURL)
	}
	if video, err := h.store.VideoByID(ctx, task.VideoID); err == nil && video.MediaPath != "" {
		candidates = append(candidates, video.MediaPath)
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// remoteSource reports the task's media reference when it is a fetchable URL.
func (h *Handler) remoteSource(ctx context.Context, task *queue.Task) string {
	if isRemote(task.MediaURL) {
		return task.MediaURL
	}
	if video, err := h.store.VideoByID(ctx, task.VideoID); err == nil && isRemote(video.MediaPath) {
		return video.MediaPath
	}
	return ""
}

func isRemote(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

func audioName(videoID string) string {
	return videoID + ".mp3"
}
