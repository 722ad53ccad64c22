package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeService()
	c.normalizeTracker()
	c.normalizeLogging()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeService() {
	if c.Service.APIKey == "" {
		if value, ok := os.LookupEnv("STORYLOOM_API_KEY"); ok {
			c.Service.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Service.BaseURL == "" {
		if value, ok := os.LookupEnv("STORYLOOM_BASE_URL"); ok {
			c.Service.BaseURL = strings.TrimSpace(value)
		}
	}
	c.Service.BaseURL = strings.TrimRight(strings.TrimSpace(c.Service.BaseURL), "/")
	if c.Service.RequestTimeout <= 0 {
		c.Service.RequestTimeout = defaultRequestTimeout
	}
	if c.Service.StatusTimeout <= 0 {
		c.Service.StatusTimeout = defaultStatusTimeout
	}
}

func (c *Config) normalizeTracker() {
	if c.Tracker.PollInterval <= 0 {
		c.Tracker.PollInterval = defaultPollInterval
	}
	if c.Tracker.StallThreshold <= 0 {
		c.Tracker.StallThreshold = defaultStallThreshold
	}
	if c.Tracker.MaxPollFailures <= 0 {
		c.Tracker.MaxPollFailures = defaultMaxPollFailures
	}
	c.Tracker.SessionKey = strings.TrimSpace(c.Tracker.SessionKey)
	if c.Tracker.SessionKey == "" {
		c.Tracker.SessionKey = defaultSessionKey
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}
