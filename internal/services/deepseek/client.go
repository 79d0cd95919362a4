package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cliply/internal/config"
	"cliply/internal/services"
)

const (
	defaultBaseURL     = "https://api.deepseek.com/v1/chat/completions"
	defaultModel       = "deepseek-chat"
	defaultHTTPTimeout = 60 * time.Second
	maxAttempts        = 3
)

var backoffDelays = []time.Duration{2 * time.Second, 5 * time.Second}

// Client wraps the DeepSeek chat completion API for highlight extraction.
type Client struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
	sleeper    func(context.Context, time.Duration) error
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

// WithEndpoint overrides the completion endpoint (useful for tests).
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// NewClient constructs a DeepSeek client.
func NewClient(apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		endpoint:   defaultBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		sleeper:    sleepContext,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// NewFromConfig builds a client from daemon configuration.
func NewFromConfig(cfg config.LLM) *Client {
	client := NewClient(cfg.APIKey, WithEndpoint(cfg.BaseURL))
	if cfg.Model != "" {
		client.model = cfg.Model
	}
	if cfg.TimeoutSeconds > 0 {
		client.httpClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a chat completion request and returns the raw assistant
// content. Rate limits and 5xx responses are retried with backoff,
// honoring Retry-After when the server provides one.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" {
		return "", services.Wrap(services.ErrValidation, "deepseek", "complete", "api key is required", nil)
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.3,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelays[minInt(attempt-1, len(backoffDelays)-1)]
			if retryAfter := retryAfterFromError(lastErr); retryAfter > delay {
				delay = retryAfter
			}
			if err := c.sleeper(ctx, delay); err != nil {
				return "", err
			}
		}

		content, err := c.doComplete(ctx, encoded)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}
	return "", lastErr
}

func (c *Client) doComplete(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "deepseek", "complete", "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "deepseek", "complete", "read response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", &httpError{status: resp.StatusCode, body: strings.TrimSpace(string(respBody)), retryAfter: retryAfter}
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", services.Wrap(services.ErrExternalTool, "deepseek", "complete",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))), nil)
	}

	var completion chatResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "deepseek", "complete", "decode response", err)
	}
	if completion.Error != nil {
		return "", services.Wrap(services.ErrExternalTool, "deepseek", "complete",
			"api error: "+strings.TrimSpace(completion.Error.Message), nil)
	}
	if len(completion.Choices) == 0 {
		return "", services.Wrap(services.ErrExternalTool, "deepseek", "complete", "empty choices", nil)
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", services.Wrap(services.ErrExternalTool, "deepseek", "complete", "empty content", nil)
	}
	return content, nil
}

type httpError struct {
	status     int
	body       string
	retryAfter time.Duration
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, e.body)
}

func isRetryable(err error) bool {
	var he *httpError
	if errors.As(err, &he) {
		return true
	}
	return errors.Is(err, services.ErrTransient)
}

func retryAfterFromError(err error) time.Duration {
	var he *httpError
	if errors.As(err, &he) {
		return he.retryAfter
	}
	return 0
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d, true
		}
	}
	return 0, false
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

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
