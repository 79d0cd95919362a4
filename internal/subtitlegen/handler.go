package subtitlegen

import (
	"context"
	"strings"

	"log/slog"

	"cliply/internal/config"
	"cliply/internal/logging"
	"cliply/internal/queue"
	"cliply/internal/services"
	"cliply/internal/services/captioner"
	"cliply/internal/stage"
	"cliply/internal/storage"
	"cliply/internal/subtitles"
)

// CaptionService is the slice of the caption client this handler needs.
type CaptionService interface {
	Generate(ctx context.Context, request captioner.Request) (*captioner.Result, error)
}

// Handler runs subtitle_generation tasks.
type Handler struct {
	store     *queue.Store
	artifacts *storage.Local
	captions  CaptionService
	logger    *slog.Logger
}

// New constructs the handler with the configured caption client.
func New(cfg *config.Config, store *queue.Store, artifacts *storage.Local, logger *slog.Logger) *Handler {
	return NewWithDependencies(store, artifacts, captioner.NewFromConfig(cfg.Captioner), logger)
}

// NewWithDependencies allows injecting the caption service (used in tests).
func NewWithDependencies(store *queue.Store, artifacts *storage.Local, captions CaptionService, logger *slog.Logger) *Handler {
	handlerLogger := logger
	if handlerLogger != nil {
		handlerLogger = handlerLogger.With(logging.String(logging.FieldComponent, "subtitlegen"))
	}
	return &Handler{store: store, artifacts: artifacts, captions: captions, logger: handlerLogger}
}

func (h *Handler) Type() queue.TaskType {
	return queue.TypeSubtitleGeneration
}

func (h *Handler) Prepare(ctx context.Context, task *queue.Task) error {
	if strings.TrimSpace(task.MediaURL) == "" {
		return services.Wrap(services.ErrValidation, "subtitlegen", "validate inputs",
			"task has no media url; re-enqueue it with the source video location", nil)
	}
	if _, err := h.store.VideoByID(ctx, task.VideoID); err != nil {
		return services.Wrap(services.ErrValidation, "subtitlegen", "validate inputs",
			"task references an unknown video", err)
	}
	return nil
}

func (h *Handler) Execute(ctx context.Context, task *queue.Task) (queue.Result, error) {
	logger := logging.WithContext(ctx, h.logger)
	logger.Info("requesting subtitles",
		logging.String(logging.FieldVideoID, task.VideoID),
		logging.String("media_url", task.MediaURL),
	)

	result, err := h.captions.Generate(ctx, h.captionRequest(task.MediaURL))
	if err != nil {
		return nil, err
	}

	if len(result.Subtitles) > 0 {
		subtitles.Sort(result.Subtitles)
		if err := h.store.SetVideoSubtitles(ctx, task.VideoID, result.Subtitles); err != nil {
			return nil, err
		}
		if err := h.storeSRT(ctx, task.VideoID, result.Subtitles); err != nil {
			return nil, err
		}
	} else if result.SubtitleURL != "" {
		// The service produced a document we cannot parse into segments;
		// keep the reference so playback can still use it.
		if err := h.store.SetVideoSubtitleFile(ctx, task.VideoID, result.SubtitleURL); err != nil {
			return nil, err
		}
	}

	logger.Info("subtitles recorded",
		logging.String(logging.FieldVideoID, task.VideoID),
		logging.Int("segments", len(result.Subtitles)),
	)
	return queue.SubtitleResult{Subtitles: result.Subtitles, SubtitleURL: result.SubtitleURL}, nil
}

// captionRequest classifies the task's media reference: fetchable URLs go
// as media_url, anything else is a storage key the service reads itself.
func (h *Handler) captionRequest(mediaRef string) captioner.Request {
	if strings.HasPrefix(mediaRef, "http://") || strings.HasPrefix(mediaRef, "https://") {
		return captioner.Request{MediaURL: mediaRef}
	}
	if h.artifacts != nil {
		if path, ok := h.artifacts.PathFor(mediaRef); ok {
			return captioner.Request{MediaKey: path}
		}
	}
	return captioner.Request{MediaKey: mediaRef}
}

// storeSRT writes an SRT rendering next to the structured segments so
// players that only speak SRT can use the result directly.
func (h *Handler) storeSRT(ctx context.Context, videoID string, segments []subtitles.Segment) error {
	if h.artifacts == nil {
		return nil
	}
	path, err := h.artifacts.Put("subs", videoID+".srt", strings.NewReader(subtitles.FormatSRT(segments)))
	if err != nil {
		return services.Wrap(services.ErrTransient, "subtitlegen", "store srt",
			"unable to write the derived subtitle file", err)
	}
	return h.store.SetVideoSubtitleFile(ctx, videoID, h.artifacts.URLFor(path))
}

func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h.captions == nil {
		return stage.Unhealthy("subtitlegen", "caption service not configured")
	}
	return stage.Healthy("subtitlegen")
}
