package testsupport

import (
	"context"
	"testing"

	"cliply/internal/config"
	"cliply/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewVideo creates a video row for tests using the provided store.
func NewVideo(t testing.TB, store *queue.Store, title, sourceURL string) *queue.Video {
	t.Helper()

	video, err := store.NewVideo(context.Background(), title, sourceURL, "")
	if err != nil {
		t.Fatalf("NewVideo: %v", err)
	}
	return video
}

// Enqueue creates a task for tests using the provided store.
func Enqueue(t testing.TB, store *queue.Store, req queue.EnqueueRequest) *queue.Task {
	t.Helper()

	task, err := store.Enqueue(context.Background(), req)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return task
}
