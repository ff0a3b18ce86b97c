package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateRun(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateBackend() error {
	parsed, err := url.Parse(c.Backend.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("backend.url must be an absolute http(s) URL, got %q", c.Backend.URL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("backend.url scheme must be http or https, got %q", parsed.Scheme)
	}
	if c.Backend.RequestTimeout < 0 {
		return errors.New("backend.request_timeout must be >= 0 (seconds)")
	}
	if c.Backend.StageTimeout < 0 {
		return errors.New("backend.stage_timeout must be >= 0 (seconds)")
	}
	if !strings.Contains(c.Backend.PreprocessOutputTemplate, "{video_id}") {
		return errors.New("backend.preprocess_output_template must contain {video_id}")
	}
	return nil
}

func (c *Config) validateRun() error {
	if c.Run.ResultsDelayMS < 0 {
		return errors.New("run.results_delay_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
