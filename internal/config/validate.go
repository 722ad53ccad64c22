package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateService(); err != nil {
		return err
	}
	if err := c.validateTracker(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateService() error {
	if c.Service.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/storyloom/config.toml"
		}
		return fmt.Errorf("service.base_url is required. Set STORYLOOM_BASE_URL env var or edit %s (create with 'storyloom config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Service.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("service.base_url must be an absolute URL, got %q", c.Service.BaseURL)
	}
	if c.Service.APIKey == "" {
		return errors.New("service.api_key is required. Set STORYLOOM_API_KEY env var or edit the config file")
	}
	return nil
}

func (c *Config) validateTracker() error {
	if c.Tracker.StallThreshold <= c.Tracker.PollInterval {
		return errors.New("tracker.stall_threshold must exceed tracker.poll_interval")
	}
	if strings.ContainsAny(c.Tracker.SessionKey, "/\\") {
		return fmt.Errorf("tracker.session_key must not contain path separators, got %q", c.Tracker.SessionKey)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
