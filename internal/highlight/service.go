package highlight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"log/slog"

	"cliply/internal/config"
	"cliply/internal/logging"
	"cliply/internal/queue"
	"cliply/internal/services"
	"cliply/internal/services/deepseek"
	"cliply/internal/storage"
	"cliply/internal/subtitles"
)

// Extractor is the slice of the language model client this service needs.
type Extractor interface {
	ExtractHighlights(ctx context.Context, segments []subtitles.Segment, bounds deepseek.Bounds) ([]deepseek.Highlight, error)
}

// Service picks highlights out of stored transcripts.
type Service struct {
	store     *queue.Store
	artifacts *storage.Local
	extractor Extractor
	bounds    deepseek.Bounds
	logger    *slog.Logger
}

// NewService constructs the service with the configured model client.
func NewService(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Service {
	bounds := deepseek.Bounds{
		MinSeconds: float64(cfg.LLM.MinHighlightSeconds),
		MaxSeconds: float64(cfg.LLM.MaxHighlightSeconds),
	}
	return NewServiceWithDependencies(store, storage.NewFromConfig(cfg), deepseek.NewFromConfig(cfg.LLM), bounds, logger)
}

// NewServiceWithDependencies allows injecting the extractor (used in tests).
func NewServiceWithDependencies(store *queue.Store, artifacts *storage.Local, extractor Extractor, bounds deepseek.Bounds, logger *slog.Logger) *Service {
	serviceLogger := logger
	if serviceLogger != nil {
		serviceLogger = serviceLogger.With(logging.String(logging.FieldComponent, "highlight"))
	}
	return &Service{store: store, artifacts: artifacts, extractor: extractor, bounds: bounds, logger: serviceLogger}
}

// Extract asks the model for highlights in the video's transcript and
// stores them. The transcript comes from the structured subtitles when
// present, otherwise from the recorded subtitle file (JSON array or SRT).
// An unparseable model response leaves the video untouched.
func (s *Service) Extract(ctx context.Context, videoID string) ([]queue.Highlight, error) {
	video, err := s.store.VideoByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	segments, err := s.loadSegments(video)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrInvalidState, "highlight", "extract",
			fmt.Sprintf("video %s has no transcript; run subtitle generation or transcription first", videoID), nil)
	}

	extracted, err := s.extractor.ExtractHighlights(ctx, segments, s.bounds)
	if err != nil {
		return nil, err
	}

	highlights := make([]queue.Highlight, 0, len(extracted))
	for _, h := range extracted {
		highlights = append(highlights, queue.Highlight{Start: h.Start, End: h.End, Text: h.Text, Reason: h.Reason})
	}
	if err := s.store.SetVideoHighlights(ctx, videoID, highlights); err != nil {
		return nil, err
	}

	logging.WithContext(ctx, s.logger).Info("highlights extracted",
		logging.String(logging.FieldVideoID, videoID),
		logging.Int("count", len(highlights)),
	)
	return highlights, nil
}

func (s *Service) loadSegments(video *queue.Video) ([]subtitles.Segment, error) {
	segments, err := video.Subtitles()
	if err != nil || len(segments) > 0 {
		return segments, err
	}
	if video.SubtitleFile == "" || s.artifacts == nil {
		return nil, nil
	}

	path, ok := s.artifacts.PathFor(video.SubtitleFile)
	if !ok {
		path = video.SubtitleFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subtitle file for video %s: %w", video.ID, err)
	}
	return decodeSubtitleFile(data)
}

// decodeSubtitleFile accepts either a JSON segment array or SRT text.
func decodeSubtitleFile(data []byte) ([]subtitles.Segment, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var segments []subtitles.Segment
		if err := json.Unmarshal(trimmed, &segments); err == nil {
			return segments, nil
		}
	}
	return subtitles.ParseSRT(string(trimmed))
}
