package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cliply/internal/services"
)

const taskColumns = "id, video_id, type, status, media_url, local_audio_url, obs_audio_url, result_json, error_message, progress_message, last_heartbeat, created_at, updated_at, processed_at"

// EnqueueRequest describes a task to insert.
type EnqueueRequest struct {
	VideoID       string
	Type          TaskType
	MediaURL      string
	LocalAudioURL string
	OBSAudioURL   string
}

// Enqueue inserts a new pending task for a video.
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (*Task, error) {
	if strings.TrimSpace(req.VideoID) == "" {
		return nil, services.Wrap(services.ErrValidation, "queue", "enqueue", "video id is required", nil)
	}
	if _, err := ParseTaskType(string(req.Type)); err != nil {
		return nil, services.Wrap(services.ErrValidation, "queue", "enqueue", err.Error(), nil)
	}
	switch req.Type {
	case TypeTranscription:
		if req.LocalAudioURL == "" && req.OBSAudioURL == "" {
			return nil, services.Wrap(services.ErrValidation, "queue", "enqueue", "transcription task needs an audio source", nil)
		}
	default:
		if strings.TrimSpace(req.MediaURL) == "" {
			return nil, services.Wrap(services.ErrValidation, "queue", "enqueue", fmt.Sprintf("%s task needs a media url", req.Type), nil)
		}
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO tasks (
            video_id, type, status, media_url, local_audio_url, obs_audio_url,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.VideoID,
		string(req.Type),
		string(StatusPending),
		nullableString(req.MediaURL),
		nullableString(req.LocalAudioURL),
		nullableString(req.OBSAudioURL),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("task insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns a single task.
func (s *Store) GetByID(ctx context.Context, id int64) (*Task, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return task, nil
}

// NextPending returns up to limit pending tasks of the given types in FIFO
// order. The returned tasks are still pending; the caller claims them
// individually.
func (s *Store) NextPending(ctx context.Context, limit int, types ...TaskType) ([]*Task, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		return nil, nil
	}

	query := "SELECT " + taskColumns + " FROM tasks WHERE status = ?"
	args := []any{string(StatusPending)}
	if len(types) > 0 {
		query += " AND type IN (" + makePlaceholders(len(types)) + ")"
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	query += " ORDER BY created_at ASC, id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select pending tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// TasksByStatus returns all tasks in the given status, oldest first.
func (s *Store) TasksByStatus(ctx context.Context, status Status) ([]*Task, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE status = ? ORDER BY created_at ASC, id ASC",
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("select tasks by status: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// TasksByVideo returns every task recorded for a video, oldest first.
func (s *Store) TasksByVideo(ctx context.Context, videoID string) ([]*Task, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE video_id = ? ORDER BY created_at ASC, id ASC",
		videoID,
	)
	if err != nil {
		return nil, fmt.Errorf("select tasks by video: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// List returns every task, newest first.
func (s *Store) List(ctx context.Context) ([]*Task, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT "+taskColumns+" FROM tasks ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// Stats summarizes the queue by status.
type Stats struct {
	Total  int
	Counts map[Status]int
}

// Stats returns task counts grouped by status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM tasks GROUP BY status")
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{Counts: make(map[Status]int)}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, fmt.Errorf("scan stats row: %w", err)
		}
		stats.Counts[Status(status)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

func scanTasks(rows *sql.Rows) ([]*Task, error) {
	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id            int64
		videoID       string
		taskType      string
		statusStr     string
		mediaURL      sql.NullString
		localAudioURL sql.NullString
		obsAudioURL   sql.NullString
		resultJSON    sql.NullString
		errorMessage  sql.NullString
		progressMsg   sql.NullString
		heartbeatRaw  sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
		processedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&videoID,
		&taskType,
		&statusStr,
		&mediaURL,
		&localAudioURL,
		&obsAudioURL,
		&resultJSON,
		&errorMessage,
		&progressMsg,
		&heartbeatRaw,
		&createdRaw,
		&updatedRaw,
		&processedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:              id,
		VideoID:         videoID,
		Type:            TaskType(taskType),
		Status:          Status(statusStr),
		MediaURL:        mediaURL.String,
		LocalAudioURL:   localAudioURL.String,
		OBSAudioURL:     obsAudioURL.String,
		ResultJSON:      resultJSON.String,
		ErrorMessage:    errorMessage.String,
		ProgressMessage: progressMsg.String,
	}
	if heartbeatRaw.Valid {
		if t, err := parseTimeString(heartbeatRaw.String); err == nil {
			task.LastHeartbeat = &t
		}
	}
	if createdRaw.Valid {
		if t, err := parseTimeString(createdRaw.String); err == nil {
			task.CreatedAt = t
		}
	}
	if updatedRaw.Valid {
		if t, err := parseTimeString(updatedRaw.String); err == nil {
			task.UpdatedAt = t
		}
	}
	if processedRaw.Valid {
		if t, err := parseTimeString(processedRaw.String); err == nil {
			task.ProcessedAt = &t
		}
	}
	return task, nil
}
