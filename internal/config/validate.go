package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable. A daemon must refuse to
// start when this fails.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateCaptioner(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.batch_size":           c.Workflow.BatchSize,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.rate_limit_delay":     c.Workflow.RateLimitDelay,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.BaseURL == "" {
		return errors.New("transcription.base_url must be set")
	}
	if c.Transcription.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/cliply/config.toml"
		}
		return fmt.Errorf("transcription.api_key is required. Edit %s (create with 'cliply config init')", defaultPath)
	}
	if c.Transcription.TimeoutSeconds <= 0 {
		return errors.New("transcription.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateCaptioner() error {
	if c.Captioner.BaseURL == "" {
		return errors.New("captioner.base_url must be set")
	}
	if c.Captioner.PollIntervalSeconds <= 0 {
		return errors.New("captioner.poll_interval_seconds must be positive")
	}
	if c.Captioner.PollMaxAttempts <= 0 {
		return errors.New("captioner.poll_max_attempts must be positive")
	}
	return nil
}

func (c *Config) validateLLM() error {
	// The API key is checked at call time so a daemon that never extracts
	// highlights can run without one.
	if c.LLM.BaseURL == "" {
		return errors.New("llm.base_url must be set")
	}
	if c.LLM.MinHighlightSeconds <= 0 || c.LLM.MaxHighlightSeconds <= 0 {
		return errors.New("llm highlight durations must be positive")
	}
	if c.LLM.MaxHighlightSeconds <= c.LLM.MinHighlightSeconds {
		return errors.New("llm.max_highlight_seconds must be greater than llm.min_highlight_seconds")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
