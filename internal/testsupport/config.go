package testsupport

import (
	"path/filepath"
	"testing"

	"storyloom/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Service.BaseURL = "https://stories.example.test"
	cfgVal.Service.APIKey = "test"
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBaseURL overrides the generation service endpoint on the test config.
func WithBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Service.BaseURL = url
	}
}

// WithSessionKey overrides the tracked session key on the test config.
func WithSessionKey(key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Tracker.SessionKey = key
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
