package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cliply/internal/config"
	"cliply/internal/services"
	"cliply/internal/subtitles"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModel       = "whisper-1"
	defaultHTTPTimeout = 300 * time.Second
)

// Client calls an OpenAI-compatible /audio/transcriptions endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base (useful for tests and self-hosted
// whisper servers).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithModel overrides the transcription model.
func WithModel(model string) Option {
	return func(c *Client) {
		if strings.TrimSpace(model) != "" {
			c.model = strings.TrimSpace(model)
		}
	}
}

// WithLanguage hints the spoken language (ISO 639-1).
func WithLanguage(language string) Option {
	return func(c *Client) {
		c.language = strings.TrimSpace(language)
	}
}

// NewClient constructs a transcription client.
func NewClient(apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// NewFromConfig builds a client from daemon configuration.
func NewFromConfig(cfg config.Transcription) *Client {
	opts := []Option{WithBaseURL(cfg.BaseURL), WithModel(cfg.Model), WithLanguage(cfg.Language)}
	client := NewClient(cfg.APIKey, opts...)
	if cfg.TimeoutSeconds > 0 {
		client.httpClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return client
}

// Transcription is a verbose transcription response with segment timing.
type Transcription struct {
	Text     string              `json:"text"`
	Segments []subtitles.Segment `json:"segments"`
}

// Transcribe uploads an audio file and returns the timed transcription.
// The verbose response format is requested so segment timing is always
// available; a response without segments is treated as a failure.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (*Transcription, error) {
	if c.apiKey == "" {
		return nil, services.Wrap(services.ErrValidation, "whisper", "transcribe", "api key is required", nil)
	}
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "whisper", "transcribe", "open audio file", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		err := writeTranscribeForm(writer, file, filepath.Base(audioPath), c.model, c.language)
		if closeErr := writer.Close(); err == nil {
			err = closeErr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", pr)
	if err != nil {
		return nil, fmt.Errorf("build transcribe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTranscription, "whisper", "transcribe", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTranscription, "whisper", "transcribe", "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, services.Wrap(services.ErrTranscription, "whisper", "transcribe",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var result Transcription
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, services.Wrap(services.ErrTranscription, "whisper", "transcribe", "decode response", err)
	}
	if len(result.Segments) == 0 {
		return nil, services.Wrap(services.ErrTranscription, "whisper", "transcribe", "response has no segments", nil)
	}
	for i := range result.Segments {
		result.Segments[i].Text = strings.TrimSpace(result.Segments[i].Text)
	}
	return &result, nil
}

func writeTranscribeForm(writer *multipart.Writer, file io.Reader, filename, model, language string) error {
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy audio: %w", err)
	}
	if err := writer.WriteField("model", model); err != nil {
		return fmt.Errorf("write model field: %w", err)
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return fmt.Errorf("write format field: %w", err)
	}
	if language != "" {
		if err := writer.WriteField("language", language); err != nil {
			return fmt.Errorf("write language field: %w", err)
		}
	}
	return nil
}
