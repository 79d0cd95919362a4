package workflow_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"cliply/internal/config"
	"cliply/internal/logging"
	"cliply/internal/queue"
	"cliply/internal/services"
	"cliply/internal/stage"
	"cliply/internal/workflow"
)

type fakeHandler struct {
	taskType   queue.TaskType
	execCount  atomic.Int64
	execErr    error
	prepareErr error
	result     queue.Result
	block      chan struct{}
}

func (f *fakeHandler) Type() queue.TaskType { return f.taskType }

func (f *fakeHandler) Prepare(ctx context.Context, task *queue.Task) error {
	return f.prepareErr
}

func (f *fakeHandler) Execute(ctx context.Context, task *queue.Task) (queue.Result, error) {
	f.execCount.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.execErr != nil {
		return nil, f.execErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return queue.AudioResult{AudioURL: "/audio/out.mp3"}, nil
}

func (f *fakeHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(string(f.taskType))
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Workflow.BatchSize = 5
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.RateLimitDelay = 1
	cfg.Workflow.ErrorRetryInterval = 1
	cfg.Workflow.HeartbeatInterval = 1
	cfg.Workflow.HeartbeatTimeout = 2
	return &cfg
}

func fastSleep(ctx context.Context, _ time.Duration) error {
	timer := time.NewTimer(time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func openStore(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "cliply.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedTask(t *testing.T, store *queue.Store, taskType queue.TaskType) *queue.Task {
	t.Helper()
	video, err := store.NewVideo(context.Background(), "VOD", "https://example.com/vod.mp4", "")
	if err != nil {
		t.Fatalf("new video: %v", err)
	}
	req := queue.EnqueueRequest{VideoID: video.ID, Type: taskType, MediaURL: "https://example.com/vod.mp4"}
	if taskType == queue.TypeTranscription {
		req.MediaURL = ""
		req.OBSAudioURL = "https://example.com/vod.mp3"
	}
	task, err := store.Enqueue(context.Background(), req)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return task
}

func waitForStatus(t *testing.T, store *queue.Store, id int64, want queue.Status) *queue.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if task.Status == want {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	task, _ := store.GetByID(context.Background(), id)
	t.Fatalf("task %d never reached %s, stuck at %s (%s)", id, want, task.Status, task.ErrorMessage)
	return nil
}

func TestManagerCompletesTask(t *testing.T) {
	store := openStore(t)
	handler := &fakeHandler{taskType: queue.TypeAudioExtraction}
	manager := workflow.NewManager(testConfig(), store, logging.NewNop(), workflow.WithSleeper(fastSleep))
	manager.Register(handler)

	task := seedTask(t, store, queue.TypeAudioExtraction)

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Stop()

	done := waitForStatus(t, store, task.ID, queue.StatusCompleted)
	if done.ResultJSON == "" {
		t.Fatal("completed task must carry a result")
	}
	result, err := done.Result()
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if audio, ok := result.(queue.AudioResult); !ok || audio.AudioURL != "/audio/out.mp3" {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestManagerFailsTaskAndRecordsMessage(t *testing.T) {
	store := openStore(t)
	handler := &fakeHandler{
		taskType: queue.TypeSubtitleGeneration,
		execErr:  services.Wrap(services.ErrTimeout, "captioner", "await", "job not ready after 30 polls", nil),
	}
	manager := workflow.NewManager(testConfig(), store, logging.NewNop(), workflow.WithSleeper(fastSleep))
	manager.Register(handler)

	task := seedTask(t, store, queue.TypeSubtitleGeneration)

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Stop()

	failed := waitForStatus(t, store, task.ID, queue.StatusFailed)
	if failed.ErrorMessage == "" {
		t.Fatal("failed task must carry an error message")
	}
	if failed.ResultJSON != "" {
		t.Fatal("failed task must not carry a result")
	}
	if manager.LastError() == nil {
		t.Fatal("manager should record the last error")
	}

	video, err := store.VideoByID(context.Background(), task.VideoID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if video.Status != queue.VideoStatusError {
		t.Fatalf("video status = %s, want %s", video.Status, queue.VideoStatusError)
	}
	if video.ErrorMessage == "" {
		t.Fatal("errored video must carry the failure message")
	}
}

func TestManagerFailsTaskOnPrepareError(t *testing.T) {
	store := openStore(t)
	handler := &fakeHandler{
		taskType:   queue.TypeAudioExtraction,
		prepareErr: services.Wrap(services.ErrValidation, "audioextract", "resolve source", "no readable media file", nil),
	}
	manager := workflow.NewManager(testConfig(), store, logging.NewNop(), workflow.WithSleeper(fastSleep))
	manager.Register(handler)

	task := seedTask(t, store, queue.TypeAudioExtraction)

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Stop()

	waitForStatus(t, store, task.ID, queue.StatusFailed)
	if handler.execCount.Load() != 0 {
		t.Fatal("Execute must not run when Prepare fails")
	}
}

func TestManagerLeavesUnregisteredTypesAlone(t *testing.T) {
	store := openStore(t)
	handler := &fakeHandler{taskType: queue.TypeAudioExtraction}
	manager := workflow.NewManager(testConfig(), store, logging.NewNop(), workflow.WithSleeper(fastSleep))
	manager.Register(handler)

	audioTask := seedTask(t, store, queue.TypeAudioExtraction)
	subtitleTask := seedTask(t, store, queue.TypeSubtitleGeneration)

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Stop()

	waitForStatus(t, store, audioTask.ID, queue.StatusCompleted)

	got, err := store.GetByID(context.Background(), subtitleTask.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != queue.StatusPending {
		t.Fatalf("unhandled task type should stay pending, got %s", got.Status)
	}
}

func TestManagerProcessesBatchConcurrently(t *testing.T) {
	store := openStore(t)
	release := make(chan struct{})
	handler := &fakeHandler{taskType: queue.TypeAudioExtraction, block: release}
	manager := workflow.NewManager(testConfig(), store, logging.NewNop(), workflow.WithSleeper(fastSleep))
	manager.Register(handler)

	var ids []int64
	for i := 0; i < 3; i++ {
		ids = append(ids, seedTask(t, store, queue.TypeAudioExtraction).ID)
	}

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Stop()

	// All three tasks should enter Execute before any of them finishes.
	deadline := time.Now().Add(5 * time.Second)
	for handler.execCount.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 3 concurrent executions, got %d", handler.execCount.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(release)

	for _, id := range ids {
		waitForStatus(t, store, id, queue.StatusCompleted)
	}
}

func TestManagerReclaimsStaleTasks(t *testing.T) {
	store := openStore(t)
	task := seedTask(t, store, queue.TypeAudioExtraction)

	// Simulate a crashed worker: claimed, heartbeat long expired. A cutoff
	// in the future marks the lease stale immediately.
	if err := store.Claim(context.Background(), task.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	count, err := store.ReclaimStaleProcessing(context.Background(), time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reclaimed, got %d", count)
	}

	manager := workflow.NewManager(testConfig(), store, logging.NewNop(), workflow.WithSleeper(fastSleep))
	manager.Register(&fakeHandler{taskType: queue.TypeAudioExtraction})
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Stop()

	waitForStatus(t, store, task.ID, queue.StatusCompleted)
}

func TestManagerStartRequiresHandlers(t *testing.T) {
	store := openStore(t)
	manager := workflow.NewManager(testConfig(), store, logging.NewNop())
	if err := manager.Start(context.Background()); err == nil {
		manager.Stop()
		t.Fatal("expected error starting without handlers")
	}
}

func TestManagerStartTwice(t *testing.T) {
	store := openStore(t)
	manager := workflow.NewManager(testConfig(), store, logging.NewNop(), workflow.WithSleeper(fastSleep))
	manager.Register(&fakeHandler{taskType: queue.TypeAudioExtraction})

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Stop()

	if err := manager.Start(context.Background()); err == nil {
		t.Fatal("expected error starting twice")
	}
}

func TestManagerHealth(t *testing.T) {
	store := openStore(t)
	manager := workflow.NewManager(testConfig(), store, logging.NewNop())
	manager.Register(&fakeHandler{taskType: queue.TypeAudioExtraction})

	checks := manager.Health(context.Background())
	if len(checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(checks))
	}
	for _, check := range checks {
		if !check.Ready {
			t.Fatalf("expected ready check, got %#v", check)
		}
	}
}

func TestManagerFailsUnknownResultGracefully(t *testing.T) {
	store := openStore(t)
	// Handler returns a result variant that does not match its task type.
	handler := &fakeHandler{
		taskType: queue.TypeSubtitleGeneration,
		result:   queue.AudioResult{AudioURL: "/a.mp3"},
	}
	manager := workflow.NewManager(testConfig(), store, logging.NewNop(), workflow.WithSleeper(fastSleep))
	manager.Register(handler)

	task := seedTask(t, store, queue.TypeSubtitleGeneration)

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Stop()

	// The mismatched result cannot be recorded; the task stays processing
	// until reclaimed, and the manager records the error.
	deadline := time.Now().Add(5 * time.Second)
	for manager.LastError() == nil {
		if time.Now().After(deadline) {
			t.Fatal("manager never recorded the completion error")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !errors.Is(manager.LastError(), queue.ErrStaleTask) && manager.LastError() == nil {
		// Any recorded error is acceptable; the key property is that the
		// bad result was not stored.
		t.Fatalf("unexpected error %v", manager.LastError())
	}

	got, err := store.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.ResultJSON != "" {
		t.Fatal("mismatched result must not be stored")
	}
}
