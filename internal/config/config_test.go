package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storyloom/internal/config"
)

func TestLoadDefaultsUseEnvCredentialsAndExpandPaths(t *testing.T) {
	t.Setenv("STORYLOOM_BASE_URL", "https://stories.example.test")
	t.Setenv("STORYLOOM_API_KEY", "test-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "storyloom")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Service.APIKey != "test-key" {
		t.Fatalf("expected API key from env, got %q", cfg.Service.APIKey)
	}
	if cfg.Service.BaseURL != "https://stories.example.test" {
		t.Fatalf("unexpected base url: %q", cfg.Service.BaseURL)
	}
	if cfg.Tracker.PollInterval != 2 {
		t.Fatalf("unexpected poll interval: %d", cfg.Tracker.PollInterval)
	}
	if cfg.Tracker.SessionKey != "default" {
		t.Fatalf("unexpected session key: %q", cfg.Tracker.SessionKey)
	}
	if !cfg.Notifications.Completion || !cfg.Notifications.Failure {
		t.Fatal("expected completion and failure notifications enabled by default")
	}
	if cfg.Notifications.Stall {
		t.Fatal("expected stall notifications disabled by default")
	}
}

func TestLoadParsesFileAndTrimsBaseURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := strings.Join([]string{
		"[service]",
		`base_url = "https://stories.example.test/"`,
		`api_key = "key"`,
		"",
		"[tracker]",
		"poll_interval = 5",
		"stall_threshold = 60",
		`session_key = "alice"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: exists=%v path=%q", exists, resolved)
	}
	if cfg.Service.BaseURL != "https://stories.example.test" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Service.BaseURL)
	}
	if cfg.Tracker.PollInterval != 5 || cfg.Tracker.StallThreshold != 60 {
		t.Fatalf("unexpected tracker values: %+v", cfg.Tracker)
	}
	if cfg.SessionLockPath("") != filepath.Join(cfg.Paths.DataDir, "alice.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.SessionLockPath(""))
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"missing base url", func(c *config.Config) { c.Service.BaseURL = "" }, "service.base_url"},
		{"relative base url", func(c *config.Config) { c.Service.BaseURL = "stories.example" }, "absolute URL"},
		{"missing api key", func(c *config.Config) { c.Service.APIKey = "" }, "service.api_key"},
		{"stall threshold too small", func(c *config.Config) { c.Tracker.StallThreshold = 1 }, "stall_threshold"},
		{"session key with separator", func(c *config.Config) { c.Tracker.SessionKey = "a/b" }, "session_key"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "yaml" }, "logging.format"},
		{"bad log level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Service.BaseURL = "https://stories.example.test"
			cfg.Service.APIKey = "key"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %v does not mention %q", err, tc.want)
			}
		})
	}
}

func TestCreateSampleWritesParsableConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[tracker]") {
		t.Fatal("sample config missing tracker section")
	}

	t.Setenv("STORYLOOM_BASE_URL", "https://stories.example.test")
	t.Setenv("STORYLOOM_API_KEY", "key")
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
}
