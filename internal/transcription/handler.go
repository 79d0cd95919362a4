package transcription

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"log/slog"

	"cliply/internal/config"
	"cliply/internal/fileutil"
	"cliply/internal/logging"
	"cliply/internal/queue"
	"cliply/internal/services"
	"cliply/internal/services/whisper"
	"cliply/internal/stage"
	"cliply/internal/storage"
	"cliply/internal/subtitles"
)

// Transcriber is the slice of the speech-to-text client this handler needs.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*whisper.Transcription, error)
}

// Handler runs transcription tasks.
type Handler struct {
	store       *queue.Store
	artifacts   *storage.Local
	transcriber Transcriber
	tempDir     string
	httpClient  *http.Client
	logger      *slog.Logger
}

// New constructs the handler with the configured transcription client.
func New(cfg *config.Config, store *queue.Store, artifacts *storage.Local, logger *slog.Logger) *Handler {
	return NewWithDependencies(store, artifacts, whisper.NewFromConfig(cfg.Transcription), cfg.Paths.TempDir, logger)
}

// NewWithDependencies allows injecting the transcriber (used in tests).
func NewWithDependencies(store *queue.Store, artifacts *storage.Local, transcriber Transcriber, tempDir string, logger *slog.Logger) *Handler {
	handlerLogger := logger
	if handlerLogger != nil {
		handlerLogger = handlerLogger.With(logging.String(logging.FieldComponent, "transcription"))
	}
	return &Handler{
		store:       store,
		artifacts:   artifacts,
		transcriber: transcriber,
		tempDir:     tempDir,
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		logger:      handlerLogger,
	}
}

func (h *Handler) Type() queue.TaskType {
	return queue.TypeTranscription
}

func (h *Handler) Prepare(ctx context.Context, task *queue.Task) error {
	if task.AudioSource() == "" {
		return services.Wrap(services.ErrValidation, "transcription", "validate inputs",
			"task has no audio source; run audio extraction first or supply the capture upload", nil)
	}
	return nil
}

func (h *Handler) Execute(ctx context.Context, task *queue.Task) (queue.Result, error) {
	logger := logging.WithContext(ctx, h.logger)

	audioPath, cleanup, err := h.audioPath(ctx, task)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	logger.Info("transcribing audio",
		logging.String(logging.FieldVideoID, task.VideoID),
		logging.String("audio_path", audioPath),
	)

	result, err := h.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	subtitles.Sort(result.Segments)
	if err := h.store.SetVideoSubtitles(ctx, task.VideoID, result.Segments); err != nil {
		return nil, err
	}

	logger.Info("transcription recorded",
		logging.String(logging.FieldVideoID, task.VideoID),
		logging.Int("segments", len(result.Segments)),
	)
	return queue.TranscriptionResult{Text: result.Text, Segments: result.Segments}, nil
}

func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h.transcriber == nil {
		return stage.Unhealthy("transcription", "transcriber not configured")
	}
	return stage.Healthy("transcription")
}

// audioPath resolves the task's audio reference to a local file,
// preferring the capture upload over the locally extracted artifact.
// Remote URLs are fetched into the temp directory; the returned cleanup
// removes the download and is a no-op for files already on disk.
func (h *Handler) audioPath(ctx context.Context, task *queue.Task) (string, func(), error) {
	noop := func() {}
	for _, candidate := range []string{task.OBSAudioURL, task.LocalAudioURL} {
		if candidate == "" {
			continue
		}
		if path, ok := h.artifacts.PathFor(candidate); ok {
			return path, noop, nil
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, noop, nil
		}
		if isRemote(candidate) {
			path, err := fileutil.DownloadToTemp(ctx, h.httpClient, candidate, h.tempDir, "transcribe-*.audio")
			if err != nil {
				return "", nil, services.Wrap(services.ErrExternalTool, "transcription", "download audio", err.Error(), nil)
			}
			return path, func() { _ = os.Remove(path) }, nil
		}
	}
	return "", nil, services.Wrap(services.ErrValidation, "transcription", "resolve audio",
		fmt.Sprintf("no readable audio file for task %d", task.ID), nil)
}

func isRemote(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}
