package testsupport

import (
	"path/filepath"
	"testing"

	"vocalis/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.UploadDir = filepath.Join(base, "uploads")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Analysis.BaseURL = "http://127.0.0.1:0"
	cfg.Analysis.RetryDelay = 0
	cfg.Queue.BackoffBase = 0
	cfg.Queue.PollInterval = 1

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithAnalysisURL points the config at a test analysis endpoint.
func WithAnalysisURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Analysis.BaseURL = url
	}
}

// WithMaxAttempts overrides the delivery attempt budget.
func WithMaxAttempts(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.MaxAttempts = n
	}
}
