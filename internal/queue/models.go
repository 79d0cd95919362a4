package queue

import (
	"fmt"
	"strings"
	"time"
)

// TaskType identifies the kind of work a task carries.
type TaskType string

const (
	TypeSubtitleGeneration TaskType = "subtitle_generation"
	TypeAudioExtraction    TaskType = "audio_extraction"
	TypeTranscription      TaskType = "transcription"
)

// KnownTaskTypes lists every type the daemon can dispatch, in the order
// tasks are typically fanned out for a new video.
func KnownTaskTypes() []TaskType {
	return []TaskType{TypeAudioExtraction, TypeSubtitleGeneration, TypeTranscription}
}

// ParseTaskType validates a user-supplied type string.
func ParseTaskType(value string) (TaskType, error) {
	t := TaskType(strings.TrimSpace(strings.ToLower(value)))
	switch t {
	case TypeSubtitleGeneration, TypeAudioExtraction, TypeTranscription:
		return t, nil
	}
	return "", fmt.Errorf("unknown task type %q", value)
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are allowed except an
// explicit operator retry.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus validates a user-supplied status string.
func ParseStatus(value string) (Status, error) {
	s := Status(strings.TrimSpace(strings.ToLower(value)))
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return s, nil
	}
	return "", fmt.Errorf("unknown status %q", value)
}

// Task is one unit of queued work against a video.
type Task struct {
	ID              int64
	VideoID         string
	Type            TaskType
	Status          Status
	MediaURL        string
	LocalAudioURL   string
	OBSAudioURL     string
	ResultJSON      string
	ErrorMessage    string
	ProgressMessage string
	LastHeartbeat   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProcessedAt     *time.Time
}

// AudioSource returns the best available audio input for the task,
// preferring the capture upload over a locally extracted file.
func (t *Task) AudioSource() string {
	if t.OBSAudioURL != "" {
		return t.OBSAudioURL
	}
	return t.LocalAudioURL
}

// Highlight is a moment the language model picked out of a transcript.
type Highlight struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Text   string  `json:"text"`
	Reason string  `json:"reason"`
}

// Duration returns the highlight length in seconds.
func (h Highlight) Duration() float64 {
	return h.End - h.Start
}

// Clip is a rendered excerpt of a video.
type Clip struct {
	ID               string    `json:"id"`
	Path             string    `json:"path"`
	URL              string    `json:"url"`
	Start            float64   `json:"start"`
	End              float64   `json:"end"`
	Text             string    `json:"text"`
	Reason           string    `json:"reason"`
	Duration         float64   `json:"duration"`
	SourceVideoID    string    `json:"source_video_id"`
	SourceVideoTitle string    `json:"source_video_title"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	FileSize         int64     `json:"file_size"`
	CreatedAt        time.Time `json:"created_at"`
}

// VideoStatus tracks the overall state of a registered video.
type VideoStatus string

const (
	VideoStatusUploaded   VideoStatus = "uploaded"
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusReady      VideoStatus = "ready"
	VideoStatusPending    VideoStatus = "pending"
	VideoStatusError      VideoStatus = "error"
)

// Video is a registered source media item that tasks operate on.
type Video struct {
	ID            string
	Title         string
	SourceURL     string
	MediaPath     string
	AudioURL      string
	Status        VideoStatus
	SubtitlesJSON string
	SubtitleFile  string
	Highlights    []Highlight
	Clips         []Clip
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
