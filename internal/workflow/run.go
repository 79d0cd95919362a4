package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"cliply/internal/logging"
	"cliply/internal/queue"
	"cliply/internal/services"
)

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.reclaimStale(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("reclaim stale processing failed; stuck tasks may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
			)
		}

		batch, err := m.store.ClaimBatch(ctx, m.batchSize, m.registeredTypes()...)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			m.logger.Error("failed to claim pending tasks",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			if m.sleeper(ctx, m.errorRetryInterval) != nil {
				return
			}
			continue
		}

		if len(batch) == 0 {
			if m.sleeper(ctx, m.pollInterval) != nil {
				return
			}
			continue
		}

		m.processBatch(ctx, batch)

		// Brief pause between batches so a deep backlog cannot saturate
		// the upstream services.
		if m.sleeper(ctx, m.rateLimitDelay) != nil {
			return
		}
	}
}

func (m *Manager) processBatch(ctx context.Context, batch []*queue.Task) {
	m.logger.Info("processing batch",
		logging.Int("tasks", len(batch)),
		logging.String(logging.FieldEventType, "batch_start"),
	)

	var wg sync.WaitGroup
	for _, task := range batch {
		wg.Add(1)
		go func(task *queue.Task) {
			defer wg.Done()
			m.processTask(ctx, task)
		}(task)
	}
	wg.Wait()
}

func (m *Manager) processTask(ctx context.Context, task *queue.Task) {
	requestID := uuid.NewString()
	taskCtx := services.WithTaskID(ctx, task.ID)
	taskCtx = services.WithStage(taskCtx, string(task.Type))
	taskCtx = services.WithRequestID(taskCtx, requestID)

	logger := logging.WithContext(taskCtx, m.logger).With(
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldTaskType, string(task.Type)),
		logging.String(logging.FieldVideoID, task.VideoID),
	)

	handler, ok := m.handlerFor(task.Type)
	if !ok {
		m.failTask(taskCtx, logger, task, services.Wrap(services.ErrValidation, string(task.Type), "dispatch",
			"no handler registered for task type", nil))
		return
	}

	start := time.Now()
	logger.Info("task started", logging.String(logging.FieldEventType, "task_start"))

	if err := m.store.SetVideoStatus(taskCtx, task.VideoID, queue.VideoStatusProcessing); err != nil &&
		!errors.Is(err, context.Canceled) {
		logger.Warn("could not mark video processing", logging.Error(err))
	}

	if err := handler.Prepare(taskCtx, task); err != nil {
		m.failTask(taskCtx, logger, task, err)
		return
	}

	result, execErr := m.executeWithHeartbeat(taskCtx, handler, task)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			logger.Debug("task interrupted by shutdown; lease will expire for reclaim")
			return
		}
		m.failTask(taskCtx, logger, task, execErr)
		return
	}

	if err := m.store.Complete(taskCtx, task.ID, result); err != nil {
		if queue.IsStale(err) {
			// Another actor moved the task while we worked; their outcome
			// stands.
			logger.Warn("task no longer processing at completion", logging.Error(err))
			return
		}
		m.setLastError(err)
		logger.Error("failed to record task result", logging.Error(err))
		return
	}

	logger.Info("task completed",
		logging.String(logging.FieldEventType, "task_complete"),
		logging.Duration("task_duration", time.Since(start)),
	)
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler interface {
	Execute(context.Context, *queue.Task) (queue.Result, error)
}, task *queue.Task) (queue.Result, error) {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeatLoop(hbCtx, &hbWG, task.ID)

	result, err := handler.Execute(ctx, task)
	hbCancel()
	hbWG.Wait()
	return result, err
}

func (m *Manager) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, taskID int64) {
	defer wg.Done()
	if m.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.store.UpdateHeartbeat(ctx, taskID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				m.logger.Warn("heartbeat update failed",
					logging.Int64(logging.FieldTaskID, taskID),
					logging.Error(err),
				)
			}
		}
	}
}

func (m *Manager) reclaimStale(ctx context.Context) error {
	if m.heartbeatTimeout <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-m.heartbeatTimeout)
	reclaimed, err := m.store.ReclaimStaleProcessing(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		m.logger.Info("reclaimed stale tasks", logging.Int64("count", reclaimed))
	}
	return nil
}

func (m *Manager) failTask(ctx context.Context, logger *slog.Logger, task *queue.Task, taskErr error) {
	m.setLastError(taskErr)
	message := failureMessage(taskErr)

	logger.Error("task failed",
		logging.Error(taskErr),
		logging.String("error_kind", services.Kind(taskErr)),
		logging.String("error_message", message),
		logging.Alert("task_failure"),
		logging.String(logging.FieldEventType, "task_failure"),
	)

	if err := m.store.Fail(ctx, task.ID, message); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not record task failure")
			return
		}
		if queue.IsStale(err) {
			logger.Warn("task no longer processing at failure", logging.Error(err))
			return
		}
		logger.Error("failed to persist task failure", logging.Error(err))
	}

	// A failed task blocks every downstream stage, so the video is flagged
	// too.
	if err := m.store.MarkVideoError(ctx, task.VideoID, message); err != nil &&
		!errors.Is(err, context.Canceled) {
		logger.Error("failed to flag video error", logging.Error(err))
	}
}

func failureMessage(err error) string {
	if err == nil {
		return "task failed without error detail"
	}
	message := strings.TrimSpace(err.Error())
	if message == "" {
		return "task failed without error detail"
	}
	return message
}
