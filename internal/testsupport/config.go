package testsupport

import (
	"path/filepath"
	"testing"

	"genflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Service.BaseURL = "http://127.0.0.1:0"
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithServiceURL points the test config at the provided generation service.
func WithServiceURL(baseURL string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Service.BaseURL = baseURL
	}
}

// WithSceneCount overrides the default scene count on the test config.
func WithSceneCount(count int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Script.SceneCount = count
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
