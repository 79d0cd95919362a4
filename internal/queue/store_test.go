package queue_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cliply/internal/queue"
	"cliply/internal/services"
	"cliply/internal/subtitles"
)

func openStore(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "cliply.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func newVideo(t *testing.T, store *queue.Store) *queue.Video {
	t.Helper()
	video, err := store.NewVideo(context.Background(), "Stream VOD", "https://example.com/vod.mp4", "")
	if err != nil {
		t.Fatalf("new video: %v", err)
	}
	return video
}

func enqueue(t *testing.T, store *queue.Store, videoID string, taskType queue.TaskType) *queue.Task {
	t.Helper()
	req := queue.EnqueueRequest{VideoID: videoID, Type: taskType, MediaURL: "https://example.com/vod.mp4"}
	if taskType == queue.TypeTranscription {
		req.MediaURL = ""
		req.OBSAudioURL = "https://example.com/vod.mp3"
	}
	task, err := store.Enqueue(context.Background(), req)
	if err != nil {
		t.Fatalf("enqueue %s: %v", taskType, err)
	}
	return task
}

func TestEnqueueValidation(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.Enqueue(ctx, queue.EnqueueRequest{Type: queue.TypeAudioExtraction, MediaURL: "x"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing video id, got %v", err)
	}

	video := newVideo(t, store)
	_, err = store.Enqueue(ctx, queue.EnqueueRequest{VideoID: video.ID, Type: "mystery", MediaURL: "x"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}

	_, err = store.Enqueue(ctx, queue.EnqueueRequest{VideoID: video.ID, Type: queue.TypeTranscription})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for transcription without audio, got %v", err)
	}
}

func TestEnqueueStartsPending(t *testing.T) {
	store := openStore(t)
	video := newVideo(t, store)
	task := enqueue(t, store, video.ID, queue.TypeSubtitleGeneration)

	if task.Status != queue.StatusPending {
		t.Fatalf("expected pending, got %s", task.Status)
	}
	if task.ResultJSON != "" {
		t.Fatal("new task must not carry a result")
	}
	if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
		t.Fatal("timestamps not recorded")
	}
}

func TestClaimBatchFIFO(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	video := newVideo(t, store)

	var ids []int64
	for i := 0; i < 7; i++ {
		ids = append(ids, enqueue(t, store, video.ID, queue.TypeSubtitleGeneration).ID)
	}

	claimed, err := store.ClaimBatch(ctx, 5)
	if err != nil {
		t.Fatalf("claim batch: %v", err)
	}
	if len(claimed) != 5 {
		t.Fatalf("expected 5 claimed, got %d", len(claimed))
	}
	for i, task := range claimed {
		if task.ID != ids[i] {
			t.Fatalf("expected FIFO order, got task %d at position %d", task.ID, i)
		}
		if task.Status != queue.StatusProcessing {
			t.Fatalf("claimed task %d not processing", task.ID)
		}
	}

	remaining, err := store.TasksByStatus(ctx, queue.StatusPending)
	if err != nil {
		t.Fatalf("pending tasks: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 still pending, got %d", len(remaining))
	}
}

func TestClaimExactlyOneWins(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	video := newVideo(t, store)
	task := enqueue(t, store, video.ID, queue.TypeAudioExtraction)

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Claim(ctx, task.ID); err == nil {
				wins <- struct{}{}
			} else if !queue.IsStale(err) {
				t.Errorf("unexpected claim error: %v", err)
			}
		}()
	}
	wg.Wait()
	close(wins)

	var count int
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one successful claim, got %d", count)
	}
}

func TestCompleteRecordsResultOnlyWhenProcessing(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	video := newVideo(t, store)
	task := enqueue(t, store, video.ID, queue.TypeAudioExtraction)

	result := queue.AudioResult{AudioURL: "/media/audio/vod.mp3"}
	if err := store.Complete(ctx, task.ID, result); !queue.IsStale(err) {
		t.Fatalf("expected stale error completing a pending task, got %v", err)
	}

	if err := store.Claim(ctx, task.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Complete(ctx, task.ID, result); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.ProcessedAt == nil {
		t.Fatal("processed_at not set")
	}
	decoded, err := got.Result()
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	audio, ok := decoded.(queue.AudioResult)
	if !ok || audio.AudioURL != result.AudioURL {
		t.Fatalf("unexpected result payload: %#v", decoded)
	}
}

func TestCompleteRejectsMismatchedResult(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	video := newVideo(t, store)
	task := enqueue(t, store, video.ID, queue.TypeAudioExtraction)
	if err := store.Claim(ctx, task.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	err := store.Complete(ctx, task.ID, queue.SubtitleResult{Subtitles: []subtitles.Segment{{Start: 0, End: 1, Text: "hi"}}})
	if err == nil {
		t.Fatal("expected mismatch error")
	}

	got, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != queue.StatusProcessing || got.ResultJSON != "" {
		t.Fatalf("rejected result must not change task: status=%s result=%q", got.Status, got.ResultJSON)
	}
}

func TestFailLeavesResultEmpty(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	video := newVideo(t, store)
	task := enqueue(t, store, video.ID, queue.TypeSubtitleGeneration)
	if err := store.Claim(ctx, task.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Fail(ctx, task.ID, "upstream timed out"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	got, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != queue.StatusFailed || got.ErrorMessage != "upstream timed out" {
		t.Fatalf("unexpected failed task: %#v", got)
	}
	if got.ResultJSON != "" {
		t.Fatal("failed task must not carry a result")
	}

	// Terminal tasks reject further transitions.
	if err := store.Claim(ctx, task.ID); !queue.IsStale(err) {
		t.Fatalf("expected stale error claiming failed task, got %v", err)
	}
	if err := store.Fail(ctx, task.ID, "again"); !queue.IsStale(err) {
		t.Fatalf("expected stale error failing twice, got %v", err)
	}
}

func TestRetryFailedResetsState(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	video := newVideo(t, store)
	task := enqueue(t, store, video.ID, queue.TypeSubtitleGeneration)
	if err := store.Claim(ctx, task.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Fail(ctx, task.ID, "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	count, err := store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 retried, got %d", count)
	}

	got, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != queue.StatusPending || got.ErrorMessage != "" || got.ProcessedAt != nil {
		t.Fatalf("retry did not reset task: %#v", got)
	}
}

func TestReclaimStaleProcessing(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	video := newVideo(t, store)
	stale := enqueue(t, store, video.ID, queue.TypeAudioExtraction)
	fresh := enqueue(t, store, video.ID, queue.TypeAudioExtraction)

	for _, task := range []*queue.Task{stale, fresh} {
		if err := store.Claim(ctx, task.ID); err != nil {
			t.Fatalf("claim: %v", err)
		}
	}

	// Only the stale task's heartbeat falls behind the cutoff.
	time.Sleep(10 * time.Millisecond)
	cutoff := time.Now().UTC()
	time.Sleep(10 * time.Millisecond)
	if err := store.UpdateHeartbeat(ctx, fresh.ID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	count, err := store.ReclaimStaleProcessing(ctx, cutoff)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reclaimed, got %d", count)
	}

	gotStale, _ := store.GetByID(ctx, stale.ID)
	gotFresh, _ := store.GetByID(ctx, fresh.ID)
	if gotStale.Status != queue.StatusPending {
		t.Fatalf("stale task should return to pending, got %s", gotStale.Status)
	}
	if gotFresh.Status != queue.StatusProcessing {
		t.Fatalf("fresh task should stay processing, got %s", gotFresh.Status)
	}
}

func TestClearCompleted(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	video := newVideo(t, store)

	done := enqueue(t, store, video.ID, queue.TypeAudioExtraction)
	if err := store.Claim(ctx, done.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Complete(ctx, done.ID, queue.AudioResult{AudioURL: "/a.mp3"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	kept := enqueue(t, store, video.ID, queue.TypeSubtitleGeneration)

	count, err := store.ClearCompleted(ctx)
	if err != nil {
		t.Fatalf("clear completed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 cleared, got %d", count)
	}
	if _, err := store.GetByID(ctx, done.ID); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected cleared task gone, got %v", err)
	}
	if _, err := store.GetByID(ctx, kept.ID); err != nil {
		t.Fatalf("pending task should survive: %v", err)
	}
}

func TestStats(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	video := newVideo(t, store)

	enqueue(t, store, video.ID, queue.TypeSubtitleGeneration)
	claimed := enqueue(t, store, video.ID, queue.TypeAudioExtraction)
	if err := store.Claim(ctx, claimed.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 2 {
		t.Fatalf("expected total 2, got %d", stats.Total)
	}
	if stats.Counts[queue.StatusPending] != 1 || stats.Counts[queue.StatusProcessing] != 1 {
		t.Fatalf("unexpected counts: %#v", stats.Counts)
	}
}

func TestCompleteFromPending(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	video := newVideo(t, store)
	task := enqueue(t, store, video.ID, queue.TypeSubtitleGeneration)

	result := queue.SubtitleResult{Subtitles: []subtitles.Segment{{Start: 0, End: 2, Text: "manual"}}}
	if err := store.CompleteFromPending(ctx, task.ID, result); err != nil {
		t.Fatalf("complete from pending: %v", err)
	}

	// Once completed, a second manual completion is stale.
	if err := store.CompleteFromPending(ctx, task.ID, result); !queue.IsStale(err) {
		t.Fatalf("expected stale error, got %v", err)
	}
}

func TestFailFromPending(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	video := newVideo(t, store)
	task := enqueue(t, store, video.ID, queue.TypeSubtitleGeneration)

	if err := store.FailFromPending(ctx, task.ID, "artifact store unwritable"); err != nil {
		t.Fatalf("fail from pending: %v", err)
	}
	got, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != queue.StatusFailed || got.ErrorMessage != "artifact store unwritable" {
		t.Fatalf("unexpected task state %s %q", got.Status, got.ErrorMessage)
	}

	// A claimed task is no longer pending, so the transition is stale.
	claimed := enqueue(t, store, video.ID, queue.TypeAudioExtraction)
	if err := store.Claim(ctx, claimed.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.FailFromPending(ctx, claimed.ID, "too late"); !queue.IsStale(err) {
		t.Fatalf("expected stale error, got %v", err)
	}
}

func TestClaimBatchFiltersTypes(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	video := newVideo(t, store)

	enqueue(t, store, video.ID, queue.TypeSubtitleGeneration)
	audio := enqueue(t, store, video.ID, queue.TypeAudioExtraction)

	claimed, err := store.ClaimBatch(ctx, 10, queue.TypeAudioExtraction)
	if err != nil {
		t.Fatalf("claim batch: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != audio.ID {
		t.Fatalf("expected only the audio task, got %#v", claimed)
	}
}
