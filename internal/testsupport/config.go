package testsupport

import (
	"path/filepath"
	"testing"

	"easel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LibraryDir = filepath.Join(base, "library")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.ProvidersDir = filepath.Join(base, "providers.d")
	cfg.RefCache.Dir = filepath.Join(base, "cache", "refs")

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithEngineCommand sets the local engine command on the test config.
func WithEngineCommand(command string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Engine.Command = command
	}
}

// WithRefCacheMaxPixels overrides the reference cache pixel bound.
func WithRefCacheMaxPixels(maxPixels int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.RefCache.MaxPixels = maxPixels
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
