package manual

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"log/slog"

	"cliply/internal/logging"
	"cliply/internal/queue"
	"cliply/internal/services"
	"cliply/internal/storage"
	"cliply/internal/subtitles"
)

// Service applies operator-supplied task results.
type Service struct {
	store     *queue.Store
	artifacts *storage.Local
	logger    *slog.Logger
}

// NewService constructs the manual completion service.
func NewService(store *queue.Store, artifacts *storage.Local, logger *slog.Logger) *Service {
	serviceLogger := logger
	if serviceLogger != nil {
		serviceLogger = serviceLogger.With(logging.String(logging.FieldComponent, "manual"))
	}
	return &Service{store: store, artifacts: artifacts, logger: serviceLogger}
}

// CompleteSubtitles finishes a pending subtitle_generation task with an
// operator-supplied document. A JSON array of {start, end, text} objects
// is stored as structured subtitles; anything else is kept as an opaque
// subtitle file under the given name. Tasks that are already processing
// or finished are rejected so the manual path cannot race a worker.
func (s *Service) CompleteSubtitles(ctx context.Context, taskID int64, payload []byte, filename string) error {
	task, err := s.requireTask(ctx, taskID, queue.TypeSubtitleGeneration)
	if err != nil {
		return err
	}

	logger := logging.WithContext(ctx, s.logger)

	if segments, ok := parseStructuredSubtitles(payload); ok {
		subtitles.Sort(segments)
		if err := s.store.SetVideoSubtitles(ctx, task.VideoID, segments); err != nil {
			return s.failPending(ctx, task, err)
		}
		srtPath, err := s.artifacts.Put("subs", task.VideoID+".srt", strings.NewReader(subtitles.FormatSRT(segments)))
		if err != nil {
			return s.failPending(ctx, task, err)
		}
		if err := s.store.SetVideoSubtitleFile(ctx, task.VideoID, s.artifacts.URLFor(srtPath)); err != nil {
			return s.failPending(ctx, task, err)
		}
		if err := s.completePending(ctx, task, queue.SubtitleResult{Subtitles: segments}); err != nil {
			return err
		}
		logger.Info("manual subtitles applied",
			logging.Int64(logging.FieldTaskID, taskID),
			logging.Int("segments", len(segments)),
		)
		return nil
	}

	if filename == "" {
		filename = fmt.Sprintf("manual-%d.srt", taskID)
	}
	stored, err := s.artifacts.Put("subs", filename, bytes.NewReader(payload))
	if err != nil {
		return s.failPending(ctx, task, err)
	}
	subtitleURL := s.artifacts.URLFor(stored)
	if err := s.store.SetVideoSubtitleFile(ctx, task.VideoID, subtitleURL); err != nil {
		return s.failPending(ctx, task, err)
	}
	if err := s.completePending(ctx, task, queue.SubtitleResult{SubtitleURL: subtitleURL}); err != nil {
		return err
	}
	logger.Info("manual subtitle document stored",
		logging.Int64(logging.FieldTaskID, taskID),
		logging.String("subtitle_url", subtitleURL),
	)
	return nil
}

// CompleteAudio finishes a pending audio_extraction task. An empty
// audioPath relocates the task's own media reference, matching the
// plain-copy extraction mode.
func (s *Service) CompleteAudio(ctx context.Context, taskID int64, audioPath string) error {
	task, err := s.requireTask(ctx, taskID, queue.TypeAudioExtraction)
	if err != nil {
		return err
	}

	if audioPath == "" {
		audioPath, err = s.taskMediaPath(task)
		if err != nil {
			return s.failPending(ctx, task, err)
		}
	}

	stored, err := s.artifacts.PutFile("audio", task.VideoID+".mp3", audioPath)
	if err != nil {
		return s.failPending(ctx, task, err)
	}
	audioURL := s.artifacts.URLFor(stored)
	if err := s.store.SetVideoAudio(ctx, task.VideoID, audioURL); err != nil {
		return s.failPending(ctx, task, err)
	}
	if err := s.completePending(ctx, task, queue.AudioResult{AudioURL: audioURL}); err != nil {
		return err
	}
	logging.WithContext(ctx, s.logger).Info("manual audio applied",
		logging.Int64(logging.FieldTaskID, taskID),
		logging.String("audio_url", audioURL),
	)
	return nil
}

// taskMediaPath resolves the task's recorded media reference to a local file.
func (s *Service) taskMediaPath(task *queue.Task) (string, error) {
	if task.MediaURL == "" {
		return "", services.Wrap(services.ErrValidation, "manual", "complete",
			fmt.Sprintf("task %d has no media reference and no audio file was supplied", task.ID), nil)
	}
	if path, ok := s.artifacts.PathFor(task.MediaURL); ok {
		return path, nil
	}
	return task.MediaURL, nil
}

// failPending records an internal failure on the still-pending task so the
// breakdown is operator-visible, then surfaces the original error. A stale
// transition means a worker claimed the task meanwhile; its outcome stands.
func (s *Service) failPending(ctx context.Context, task *queue.Task, opErr error) error {
	if err := s.store.FailFromPending(ctx, task.ID, opErr.Error()); err != nil && !queue.IsStale(err) {
		logging.WithContext(ctx, s.logger).Warn("could not record manual failure",
			logging.Int64(logging.FieldTaskID, task.ID),
			logging.Error(err),
		)
	}
	return opErr
}

func (s *Service) requireTask(ctx context.Context, taskID int64, wantType queue.TaskType) (*queue.Task, error) {
	task, err := s.store.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Type != wantType {
		return nil, services.Wrap(services.ErrValidation, "manual", "complete",
			fmt.Sprintf("task %d is a %s task, not %s", taskID, task.Type, wantType), nil)
	}
	if task.Status != queue.StatusPending {
		return nil, services.Wrap(services.ErrInvalidState, "manual", "complete",
			fmt.Sprintf("task %d is %s; only pending tasks accept manual results", taskID, task.Status), nil)
	}
	return task, nil
}

func (s *Service) completePending(ctx context.Context, task *queue.Task, result queue.Result) error {
	if err := s.store.CompleteFromPending(ctx, task.ID, result); err != nil {
		if queue.IsStale(err) {
			return services.Wrap(services.ErrInvalidState, "manual", "complete",
				fmt.Sprintf("task %d was claimed by a worker while applying the manual result", task.ID), err)
		}
		return err
	}
	return nil
}

// parseStructuredSubtitles accepts a JSON array of timed segments. Any
// other JSON shape, invalid JSON, or segments failing validation reports
// false so the payload falls back to opaque storage.
func parseStructuredSubtitles(payload []byte) ([]subtitles.Segment, bool) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	var segments []subtitles.Segment
	if err := json.Unmarshal(trimmed, &segments); err != nil {
		return nil, false
	}
	if len(segments) == 0 {
		return nil, false
	}
	for _, seg := range segments {
		if seg.Validate() != nil {
			return nil, false
		}
	}
	return segments, true
}
