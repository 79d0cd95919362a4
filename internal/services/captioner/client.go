package captioner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cliply/internal/config"
	"cliply/internal/services"
	"cliply/internal/subtitles"
)

const (
	defaultBaseURL      = "http://localhost:8000/api"
	defaultPollInterval = 2 * time.Second
	defaultPollAttempts = 30
	defaultHTTPTimeout  = 30 * time.Second
)

// Client submits caption jobs and polls for their results.
type Client struct {
	baseURL      string
	pollInterval time.Duration
	pollAttempts int
	httpClient   *http.Client
	sleeper      func(context.Context, time.Duration) error
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

// WithPolling overrides the poll cadence and attempt budget.
func WithPolling(interval time.Duration, attempts int) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if attempts > 0 {
			c.pollAttempts = attempts
		}
	}
}

// WithSleeper overrides how poll waits are performed (useful for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// NewClient constructs a caption service client.
func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL:      defaultBaseURL,
		pollInterval: defaultPollInterval,
		pollAttempts: defaultPollAttempts,
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
		sleeper:      sleepContext,
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
		client.baseURL = trimmed
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// NewFromConfig builds a client from daemon configuration.
func NewFromConfig(cfg config.Captioner) *Client {
	opts := []Option{
		WithPolling(time.Duration(cfg.PollIntervalSeconds)*time.Second, cfg.PollMaxAttempts),
	}
	client := NewClient(cfg.BaseURL, opts...)
	if cfg.TimeoutSeconds > 0 {
		client.httpClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return client
}

// Job identifies a submitted caption request.
type Job struct {
	ID string `json:"job_id"`
}

// Request names the media to caption: a fetchable URL for remote sources
// or a storage key the caption service can read directly.
type Request struct {
	MediaURL string `json:"media_url,omitempty"`
	MediaKey string `json:"media_key,omitempty"`
}

// Result is a finished caption job.
type Result struct {
	Subtitles   []subtitles.Segment `json:"subtitles"`
	SubtitleURL string              `json:"subtitle_url"`
}

type submitResponse struct {
	JobID       string              `json:"job_id"`
	Subtitles   []subtitles.Segment `json:"subtitles"`
	SubtitleURL string              `json:"subtitle_url"`
}

type jobStatusResponse struct {
	Status      string              `json:"status"`
	Subtitles   []subtitles.Segment `json:"subtitles"`
	SubtitleURL string              `json:"subtitle_url"`
	Error       string              `json:"error"`
}

// Submit starts a caption job. Services that caption inline answer with
// the subtitles directly; the returned Result is non-nil in that case and
// the Job is empty. Otherwise the Job must be passed to Await.
func (c *Client) Submit(ctx context.Context, request Request) (*Result, Job, error) {
	if strings.TrimSpace(request.MediaURL) == "" && strings.TrimSpace(request.MediaKey) == "" {
		return nil, Job{}, services.Wrap(services.ErrValidation, "captioner", "submit", "a media url or media key is required", nil)
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, Job{}, fmt.Errorf("encode submit request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/subtitles", bytes.NewReader(payload))
	if err != nil {
		return nil, Job{}, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, Job{}, services.Wrap(services.ErrExternalTool, "captioner", "submit", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Job{}, services.Wrap(services.ErrExternalTool, "captioner", "submit", "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, Job{}, services.Wrap(services.ErrExternalTool, "captioner", "submit",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var decoded submitResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, Job{}, services.Wrap(services.ErrExternalTool, "captioner", "submit", "decode response", err)
	}
	if len(decoded.Subtitles) > 0 || decoded.SubtitleURL != "" {
		return &Result{Subtitles: decoded.Subtitles, SubtitleURL: decoded.SubtitleURL}, Job{}, nil
	}
	if decoded.JobID == "" {
		return nil, Job{}, services.Wrap(services.ErrExternalTool, "captioner", "submit",
			"response carries neither subtitles nor a job id", nil)
	}
	return nil, Job{ID: decoded.JobID}, nil
}

// Await polls a job until it finishes. The attempt budget bounds the total
// wait; exhausting it returns ErrTimeout so the caller can fail the task
// rather than hang.
func (c *Client) Await(ctx context.Context, job Job) (*Result, error) {
	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleeper(ctx, c.pollInterval); err != nil {
				return nil, err
			}
		}

		status, err := c.poll(ctx, job)
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case "completed":
			if len(status.Subtitles) == 0 && status.SubtitleURL == "" {
				return nil, services.Wrap(services.ErrExternalTool, "captioner", "await", "completed job has no subtitles", nil)
			}
			return &Result{Subtitles: status.Subtitles, SubtitleURL: status.SubtitleURL}, nil
		case "failed":
			return nil, services.Wrap(services.ErrExternalTool, "captioner", "await",
				"job failed: "+strings.TrimSpace(status.Error), nil)
		}
	}
	return nil, services.Wrap(services.ErrTimeout, "captioner", "await",
		fmt.Sprintf("job %s not ready after %d polls", job.ID, c.pollAttempts), nil)
}

// Generate submits a caption request and waits for its result, polling
// only when the service answered with a job handle.
func (c *Client) Generate(ctx context.Context, request Request) (*Result, error) {
	result, job, err := c.Submit(ctx, request)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}
	return c.Await(ctx, job)
}

func (c *Client) poll(ctx context.Context, job Job) (*jobStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/subtitles/"+job.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("build poll request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "captioner", "poll", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "captioner", "poll", "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, services.Wrap(services.ErrExternalTool, "captioner", "poll",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var status jobStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "captioner", "poll", "decode response", err)
	}
	return &status, nil
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
