package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cliply/internal/services"
	"cliply/internal/subtitles"
)

const videoColumns = "id, title, source_url, media_path, audio_url, status, subtitles_json, subtitle_file, highlights_json, clips_json, error_message, created_at, updated_at"

// NewVideo registers a source media item and returns it with a fresh id.
func (s *Store) NewVideo(ctx context.Context, title, sourceURL, mediaPath string) (*Video, error) {
	if strings.TrimSpace(sourceURL) == "" && strings.TrimSpace(mediaPath) == "" {
		return nil, services.Wrap(services.ErrValidation, "queue", "new video", "source url or media path is required", nil)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO videos (id, title, source_url, media_path, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		nullableString(title),
		nullableString(sourceURL),
		nullableString(mediaPath),
		string(VideoStatusUploaded),
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert video: %w", err)
	}
	return s.VideoByID(ctx, id)
}

// VideoByID returns a single video.
func (s *Store) VideoByID(ctx context.Context, id string) (*Video, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+videoColumns+" FROM videos WHERE id = ?", id)
	video, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("video %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get video %s: %w", id, err)
	}
	return video, nil
}

// ListVideos returns every registered video, newest first.
func (s *Store) ListVideos(ctx context.Context) ([]*Video, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT "+videoColumns+" FROM videos ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return videos, nil
}

// SetVideoStatus updates the coarse lifecycle status of a video.
func (s *Store) SetVideoStatus(ctx context.Context, id string, status VideoStatus) error {
	return s.updateVideo(ctx, id, "SET status = ?, updated_at = ?", string(status))
}

// SetVideoAudio records the extracted audio location.
func (s *Store) SetVideoAudio(ctx context.Context, id, audioURL string) error {
	return s.updateVideo(ctx, id, "SET audio_url = ?, updated_at = ?", nullableString(audioURL))
}

// SetVideoSubtitles stores structured subtitles for a video.
func (s *Store) SetVideoSubtitles(ctx context.Context, id string, segments []subtitles.Segment) error {
	payload, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("encode subtitles: %w", err)
	}
	return s.updateVideo(ctx, id, "SET subtitles_json = ?, subtitle_file = NULL, updated_at = ?", string(payload))
}

// SetVideoSubtitleFile records an opaque subtitle document path when the
// structured form is unavailable.
func (s *Store) SetVideoSubtitleFile(ctx context.Context, id, path string) error {
	return s.updateVideo(ctx, id, "SET subtitle_file = ?, updated_at = ?", nullableString(path))
}

// SetVideoHighlights stores the extracted highlight list.
func (s *Store) SetVideoHighlights(ctx context.Context, id string, highlights []Highlight) error {
	payload, err := json.Marshal(highlights)
	if err != nil {
		return fmt.Errorf("encode highlights: %w", err)
	}
	return s.updateVideo(ctx, id, "SET highlights_json = ?, updated_at = ?", string(payload))
}

// MarkVideoError flags a video whose pipeline failed.
func (s *Store) MarkVideoError(ctx context.Context, id, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		"UPDATE videos SET status = ?, error_message = ?, updated_at = ? WHERE id = ?",
		string(VideoStatusError),
		nullableString(message),
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark video error: %w", err)
	}
	return requireVideoRow(res, id)
}

// AppendClip adds a rendered clip to the video's clip list. The read and
// write happen inside one immediate transaction so concurrent renders do
// not drop each other's entries.
func (s *Store) AppendClip(ctx context.Context, id string, clip Clip) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin clip tx: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		if _, err := tx.ExecContext(ctx, "UPDATE videos SET updated_at = updated_at WHERE id = ?", id); err != nil {
			return fmt.Errorf("lock video row: %w", err)
		}

		var clipsRaw sql.NullString
		err = tx.QueryRowContext(ctx, "SELECT clips_json FROM videos WHERE id = ?", id).Scan(&clipsRaw)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("video %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("read clips: %w", err)
		}

		var clips []Clip
		if clipsRaw.Valid && clipsRaw.String != "" {
			if err := json.Unmarshal([]byte(clipsRaw.String), &clips); err != nil {
				return fmt.Errorf("decode clips: %w", err)
			}
		}
		clips = append(clips, clip)

		payload, err := json.Marshal(clips)
		if err != nil {
			return fmt.Errorf("encode clips: %w", err)
		}
		now := time.Now().UTC().Format(time.RFC3339Nano)
		if _, err := tx.ExecContext(
			ctx,
			"UPDATE videos SET clips_json = ?, updated_at = ? WHERE id = ?",
			string(payload),
			now,
			id,
		); err != nil {
			return fmt.Errorf("write clips: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit clip tx: %w", err)
		}
		return nil
	})
}

func (s *Store) updateVideo(ctx context.Context, id, setClause string, value any) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx, "UPDATE videos "+setClause+" WHERE id = ?", value, now, id)
	if err != nil {
		return fmt.Errorf("update video %s: %w", id, err)
	}
	return requireVideoRow(res, id)
}

func requireVideoRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update video %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return nil
}

// Subtitles decodes the stored structured subtitles, or nil when only an
// opaque subtitle file was recorded.
func (v *Video) Subtitles() ([]subtitles.Segment, error) {
	if v.SubtitlesJSON == "" {
		return nil, nil
	}
	var segments []subtitles.Segment
	if err := json.Unmarshal([]byte(v.SubtitlesJSON), &segments); err != nil {
		return nil, fmt.Errorf("decode subtitles for video %s: %w", v.ID, err)
	}
	return segments, nil
}

func scanVideo(scanner interface{ Scan(dest ...any) error }) (*Video, error) {
	var (
		id             string
		title          sql.NullString
		sourceURL      sql.NullString
		mediaPath      sql.NullString
		audioURL       sql.NullString
		statusStr      string
		subtitlesJSON  sql.NullString
		subtitleFile   sql.NullString
		highlightsJSON sql.NullString
		clipsJSON      sql.NullString
		errorMessage   sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&title,
		&sourceURL,
		&mediaPath,
		&audioURL,
		&statusStr,
		&subtitlesJSON,
		&subtitleFile,
		&highlightsJSON,
		&clipsJSON,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	video := &Video{
		ID:            id,
		Title:         title.String,
		SourceURL:     sourceURL.String,
		MediaPath:     mediaPath.String,
		AudioURL:      audioURL.String,
		Status:        VideoStatus(statusStr),
		SubtitlesJSON: subtitlesJSON.String,
		SubtitleFile:  subtitleFile.String,
		ErrorMessage:  errorMessage.String,
	}
	if highlightsJSON.Valid && highlightsJSON.String != "" {
		if err := json.Unmarshal([]byte(highlightsJSON.String), &video.Highlights); err != nil {
			return nil, fmt.Errorf("decode highlights: %w", err)
		}
	}
	if clipsJSON.Valid && clipsJSON.String != "" {
		if err := json.Unmarshal([]byte(clipsJSON.String), &video.Clips); err != nil {
			return nil, fmt.Errorf("decode clips: %w", err)
		}
	}
	if createdRaw.Valid {
		if t, err := parseTimeString(createdRaw.String); err == nil {
			video.CreatedAt = t
		}
	}
	if updatedRaw.Valid {
		if t, err := parseTimeString(updatedRaw.String); err == nil {
			video.UpdatedAt = t
		}
	}
	return video, nil
}
