package queue

import (
	"encoding/json"
	"fmt"

	"cliply/internal/subtitles"
)

// Result is the typed payload a completed task carries. Each task type has
// exactly one result shape; EncodeResult rejects mismatches so a handler
// cannot record a payload under the wrong type.
type Result interface {
	TaskType() TaskType
}

// SubtitleResult is produced by subtitle_generation tasks.
type SubtitleResult struct {
	Subtitles   []subtitles.Segment `json:"subtitles"`
	SubtitleURL string              `json:"subtitle_url,omitempty"`
}

func (SubtitleResult) TaskType() TaskType { return TypeSubtitleGeneration }

// AudioResult is produced by audio_extraction tasks.
type AudioResult struct {
	AudioURL string `json:"audio_url"`
}

func (AudioResult) TaskType() TaskType { return TypeAudioExtraction }

// TranscriptionResult is produced by transcription tasks.
type TranscriptionResult struct {
	Text     string              `json:"text"`
	Segments []subtitles.Segment `json:"segments"`
}

func (TranscriptionResult) TaskType() TaskType { return TypeTranscription }

// EncodeResult serializes a result for storage, verifying the payload
// variant matches the task type it will be recorded under.
func EncodeResult(taskType TaskType, result Result) (string, error) {
	if result == nil {
		return "", fmt.Errorf("nil result for task type %s", taskType)
	}
	if result.TaskType() != taskType {
		return "", fmt.Errorf("result variant %s does not match task type %s", result.TaskType(), taskType)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode %s result: %w", taskType, err)
	}
	return string(data), nil
}

// DecodeResult parses a stored result payload according to the task type.
func DecodeResult(taskType TaskType, payload string) (Result, error) {
	if payload == "" {
		return nil, fmt.Errorf("empty result payload for task type %s", taskType)
	}
	switch taskType {
	case TypeSubtitleGeneration:
		var result SubtitleResult
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			return nil, fmt.Errorf("decode subtitle result: %w", err)
		}
		return result, nil
	case TypeAudioExtraction:
		var result AudioResult
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			return nil, fmt.Errorf("decode audio result: %w", err)
		}
		return result, nil
	case TypeTranscription:
		var result TranscriptionResult
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			return nil, fmt.Errorf("decode transcription result: %w", err)
		}
		return result, nil
	}
	return nil, fmt.Errorf("unknown task type %q", taskType)
}

// Result decodes the task's stored payload, or returns nil when the task
// has not completed.
func (t *Task) Result() (Result, error) {
	if t.ResultJSON == "" {
		return nil, nil
	}
	return DecodeResult(t.Type, t.ResultJSON)
}
