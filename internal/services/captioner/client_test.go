package captioner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cliply/internal/services"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestGenerate(t *testing.T) {
	var polls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/subtitles":
			var req map[string]string
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode submit: %v", err)
			}
			if req["media_url"] != "https://example.com/vod.mp4" {
				t.Errorf("unexpected media url %q", req["media_url"])
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "job-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/subtitles/job-1":
			n := polls.Add(1)
			if n < 3 {
				_ = json.NewEncoder(w).Encode(map[string]any{"status": "processing"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "completed",
				"subtitles": []map[string]any{
					{"start": 0.0, "end": 2.0, "text": "hello"},
				},
				"subtitle_url": "/media/subs/job-1.srt",
			})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, WithSleeper(noSleep))
	result, err := client.Generate(context.Background(), Request{MediaURL: "https://example.com/vod.mp4"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(result.Subtitles) != 1 || result.Subtitles[0].Text != "hello" {
		t.Fatalf("unexpected result %#v", result)
	}
	if result.SubtitleURL != "/media/subs/job-1.srt" {
		t.Fatalf("unexpected subtitle url %q", result.SubtitleURL)
	}
}

func TestGenerateSynchronousResponse(t *testing.T) {
	var polls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			polls.Add(1)
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"subtitles": []map[string]any{
				{"start": 0.0, "end": 2.0, "text": "inline"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithSleeper(noSleep))
	result, err := client.Generate(context.Background(), Request{MediaURL: "https://example.com/vod.mp4"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(result.Subtitles) != 1 || result.Subtitles[0].Text != "inline" {
		t.Fatalf("unexpected result %#v", result)
	}
	if polls.Load() != 0 {
		t.Fatal("synchronous answers must not be polled")
	}
}

func TestSubmitSendsMediaKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode submit: %v", err)
		}
		if req["media_key"] != "media/vod.mp4" {
			t.Errorf("unexpected media key %q", req["media_key"])
		}
		if _, ok := req["media_url"]; ok {
			t.Error("empty media_url must be omitted")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "job-2"})
	}))
	defer server.Close()

	_, job, err := NewClient(server.URL).Submit(context.Background(), Request{MediaKey: "media/vod.mp4"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if job.ID != "job-2" {
		t.Fatalf("unexpected job %#v", job)
	}
}

func TestAwaitTimesOutAfterAttemptBudget(t *testing.T) {
	var polls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "processing"})
	}))
	defer server.Close()

	var waited time.Duration
	client := NewClient(server.URL,
		WithPolling(2*time.Second, 30),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			waited += d
			return nil
		}),
	)

	_, err := client.Await(context.Background(), Job{ID: "slow"})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if got := polls.Load(); got != 30 {
		t.Fatalf("expected 30 polls, got %d", got)
	}
	// 29 waits between 30 polls at 2s each bounds the wait under a minute.
	if waited != 58*time.Second {
		t.Fatalf("expected 58s total wait, got %v", waited)
	}
}

func TestAwaitSurfacesJobFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "failed", "error": "no audio track"})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithSleeper(noSleep))
	_, err := client.Await(context.Background(), Job{ID: "bad"})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestAwaitStopsWhenContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "processing"})
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(server.URL, WithSleeper(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	_, err := client.Await(ctx, Job{ID: "job"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestSubmitRejectsEmptyRequest(t *testing.T) {
	client := NewClient("http://localhost:1")
	_, _, err := client.Submit(context.Background(), Request{MediaURL: " "})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitRejectsAnswerWithoutSubtitlesOrJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, _, err := client.Submit(context.Background(), Request{MediaURL: "https://example.com/vod.mp4"})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}
