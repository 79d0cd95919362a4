package highlight_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"cliply/internal/highlight"
	"cliply/internal/logging"
	"cliply/internal/queue"
	"cliply/internal/services"
	"cliply/internal/services/deepseek"
	"cliply/internal/storage"
	"cliply/internal/subtitles"
	"cliply/internal/testsupport"
)

type fakeExtractor struct {
	highlights []deepseek.Highlight
	err        error
}

func (f *fakeExtractor) ExtractHighlights(ctx context.Context, segments []subtitles.Segment, bounds deepseek.Bounds) ([]deepseek.Highlight, error) {
	return f.highlights, f.err
}

func setup(t *testing.T, extractor highlight.Extractor) (*queue.Store, *storage.Local, *highlight.Service, *queue.Video) {
	t.Helper()
	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "cliply.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	artifacts := storage.NewLocal(t.TempDir(), "")
	service := highlight.NewServiceWithDependencies(store, artifacts, extractor, deepseek.Bounds{MinSeconds: 15, MaxSeconds: 30}, logging.NewNop())

	video, err := store.NewVideo(context.Background(), "VOD", "https://example.com/vod.mp4", "")
	if err != nil {
		t.Fatalf("new video: %v", err)
	}
	return store, artifacts, service, video
}

func seedTranscript(t *testing.T, store *queue.Store, videoID string) {
	t.Helper()
	segments := []subtitles.Segment{{Start: 0, End: 60, Text: "the whole stream"}}
	if err := store.SetVideoSubtitles(context.Background(), videoID, segments); err != nil {
		t.Fatalf("set subtitles: %v", err)
	}
}

func TestNewServiceFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if highlight.NewService(cfg, store, logging.NewNop()) == nil {
		t.Fatal("expected a service")
	}
}

func TestExtractStoresHighlights(t *testing.T) {
	extractor := &fakeExtractor{highlights: []deepseek.Highlight{{Start: 10, End: 30, Text: "Clutch", Reason: "big moment"}}}
	store, _, service, video := setup(t, extractor)
	seedTranscript(t, store, video.ID)

	highlights, err := service.Extract(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(highlights) != 1 || highlights[0].Text != "Clutch" {
		t.Fatalf("unexpected highlights %#v", highlights)
	}

	got, err := store.VideoByID(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if len(got.Highlights) != 1 || got.Highlights[0].Start != 10 {
		t.Fatalf("highlights not stored: %#v", got.Highlights)
	}
}

func TestExtractReadsSubtitleFile(t *testing.T) {
	extractor := &fakeExtractor{highlights: []deepseek.Highlight{{Start: 0, End: 20, Text: "Opener", Reason: "strong start"}}}
	store, artifacts, service, video := setup(t, extractor)

	srt := subtitles.FormatSRT([]subtitles.Segment{{Start: 0, End: 60, Text: "the whole stream"}})
	path, err := artifacts.Put("subs", video.ID+".srt", strings.NewReader(srt))
	if err != nil {
		t.Fatalf("store srt: %v", err)
	}
	if err := store.SetVideoSubtitleFile(context.Background(), video.ID, artifacts.URLFor(path)); err != nil {
		t.Fatalf("set subtitle file: %v", err)
	}

	highlights, err := service.Extract(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(highlights) != 1 || highlights[0].Text != "Opener" {
		t.Fatalf("unexpected highlights %#v", highlights)
	}
}

func TestExtractRequiresTranscript(t *testing.T) {
	_, _, service, video := setup(t, &fakeExtractor{})

	_, err := service.Extract(context.Background(), video.ID)
	if !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestExtractParseFailureLeavesVideoUntouched(t *testing.T) {
	extractor := &fakeExtractor{err: services.Wrap(services.ErrHighlightParse, "deepseek", "extract highlights", "no JSON array in response", nil)}
	store, _, service, video := setup(t, extractor)
	seedTranscript(t, store, video.ID)

	_, err := service.Extract(context.Background(), video.ID)
	if !errors.Is(err, services.ErrHighlightParse) {
		t.Fatalf("expected highlight parse error, got %v", err)
	}

	got, err := store.VideoByID(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if len(got.Highlights) != 0 {
		t.Fatalf("parse failure must not store highlights: %#v", got.Highlights)
	}
}

func TestExtractUnknownVideo(t *testing.T) {
	_, _, service, _ := setup(t, &fakeExtractor{})
	_, err := service.Extract(context.Background(), "missing")
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
