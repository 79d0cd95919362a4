package queue

import (
	"context"
	"fmt"
	"time"
)

// Claim flips a pending task to processing. Exactly one caller wins when
// several race for the same task; losers get ErrStaleTask.
func (s *Store) Claim(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, last_heartbeat = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(StatusProcessing),
		now,
		now,
		id,
		string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("claim task %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim task %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("claim task %d: %w", id, ErrStaleTask)
	}
	return nil
}

// ClaimBatch claims up to limit pending tasks of the given types in FIFO
// order, skipping any tasks lost to concurrent claimers.
func (s *Store) ClaimBatch(ctx context.Context, limit int, types ...TaskType) ([]*Task, error) {
	candidates, err := s.NextPending(ctx, limit, types...)
	if err != nil {
		return nil, err
	}

	claimed := make([]*Task, 0, len(candidates))
	for _, task := range candidates {
		if err := s.Claim(ctx, task.ID); err != nil {
			if IsStale(err) {
				continue
			}
			return claimed, err
		}
		task.Status = StatusProcessing
		claimed = append(claimed, task)
	}
	return claimed, nil
}

// Complete transitions a processing task to completed and records its
// typed result. ErrStaleTask means the task was no longer processing.
func (s *Store) Complete(ctx context.Context, id int64, result Result) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	payload, err := EncodeResult(task.Type, result)
	if err != nil {
		return fmt.Errorf("complete task %d: %w", id, err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, result_json = ?, error_message = NULL,
             progress_message = NULL, last_heartbeat = NULL,
             processed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(StatusCompleted),
		payload,
		now,
		now,
		id,
		string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("complete task %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete task %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("complete task %d: %w", id, ErrStaleTask)
	}
	return nil
}

// Fail transitions a processing task to failed with an operator-visible
// message. The result column stays empty; failed tasks never carry results.
func (s *Store) Fail(ctx context.Context, id int64, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, error_message = ?, result_json = NULL,
             progress_message = NULL, last_heartbeat = NULL,
             processed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(StatusFailed),
		nullableString(message),
		now,
		now,
		id,
		string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("fail task %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("fail task %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("fail task %d: %w", id, ErrStaleTask)
	}
	return nil
}

// FailFromPending transitions a pending task to failed, used by the manual
// fallback path when applying an operator-supplied result breaks down.
// ErrStaleTask means a worker claimed the task in the meantime.
func (s *Store) FailFromPending(ctx context.Context, id int64, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, error_message = ?, result_json = NULL,
             progress_message = NULL, last_heartbeat = NULL,
             processed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(StatusFailed),
		nullableString(message),
		now,
		now,
		id,
		string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("fail task %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("fail task %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("fail task %d: %w", id, ErrStaleTask)
	}
	return nil
}

// CompleteFromPending records a result on a still-pending task, used by the
// manual fallback path when an operator supplies the output themselves.
func (s *Store) CompleteFromPending(ctx context.Context, id int64, result Result) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	payload, err := EncodeResult(task.Type, result)
	if err != nil {
		return fmt.Errorf("complete pending task %d: %w", id, err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, result_json = ?, error_message = NULL,
             processed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(StatusCompleted),
		payload,
		now,
		now,
		id,
		string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("complete pending task %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete pending task %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("complete pending task %d: %w", id, ErrStaleTask)
	}
	return nil
}

// SetProgress updates the free-form progress note on an in-flight task.
func (s *Store) SetProgress(ctx context.Context, id int64, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET progress_message = ?, updated_at = ? WHERE id = ?`,
		nullableString(message),
		now,
		id,
	); err != nil {
		return fmt.Errorf("set progress for task %d: %w", id, err)
	}
	return nil
}

// UpdateHeartbeat refreshes the lease on an in-flight task.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		id,
		string(StatusProcessing),
	); err != nil {
		return fmt.Errorf("update heartbeat for task %d: %w", id, err)
	}
	return nil
}

// ReclaimStaleProcessing returns processing tasks whose heartbeat expired
// before cutoff back to pending, so a worker crash cannot strand work.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, progress_message = 'Reclaimed after missed heartbeats',
             last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		string(StatusPending),
		now,
		string(StatusProcessing),
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed returns failed tasks to pending. With no ids it retries every
// failed task; otherwise only the named ones.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	query := `UPDATE tasks
         SET status = ?, error_message = NULL, result_json = NULL,
             progress_message = NULL, last_heartbeat = NULL,
             processed_at = NULL, updated_at = ?
         WHERE status = ?`
	args := []any{string(StatusPending), now, string(StatusFailed)}
	if len(ids) > 0 {
		query += " AND id IN (" + makePlaceholders(len(ids)) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}

	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed tasks: %w", err)
	}
	return res.RowsAffected()
}

// ClearCompleted deletes completed tasks and returns how many were removed.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM tasks WHERE status = ?", string(StatusCompleted))
	if err != nil {
		return 0, fmt.Errorf("clear completed tasks: %w", err)
	}
	return res.RowsAffected()
}
