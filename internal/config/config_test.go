package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"easel/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Queue.LocalConcurrency != 1 {
		t.Fatalf("expected default local concurrency 1, got %d", cfg.Queue.LocalConcurrency)
	}
	if cfg.Remote.PollDeadlineSeconds != 300 {
		t.Fatalf("expected default poll deadline 300, got %d", cfg.Remote.PollDeadlineSeconds)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("expected console log format, got %q", cfg.Logging.Format)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
staging_dir = "` + filepath.Join(dir, "staging") + `"
library_dir = "` + filepath.Join(dir, "library") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[engine]
command = "fake-engine"
timeout_seconds = 120

[queue]
remote_concurrency = 3

[queue.type_overrides]
"generation.remote.video" = 2

[logging]
format = "json"
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Engine.Command != "fake-engine" {
		t.Fatalf("unexpected engine command %q", cfg.Engine.Command)
	}
	if cfg.Engine.TimeoutSeconds != 120 {
		t.Fatalf("unexpected engine timeout %d", cfg.Engine.TimeoutSeconds)
	}
	if cfg.Queue.RemoteConcurrency != 3 {
		t.Fatalf("unexpected remote concurrency %d", cfg.Queue.RemoteConcurrency)
	}
	if got := cfg.Queue.TypeOverrides["generation.remote.video"]; got != 2 {
		t.Fatalf("unexpected type override %d", got)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("unexpected log format %q", cfg.Logging.Format)
	}
}

func TestNormalizeFillsRefCacheDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
staging_dir = "` + filepath.Join(dir, "staging") + `"
library_dir = "` + filepath.Join(dir, "library") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"
cache_dir = "` + filepath.Join(dir, "cache") + `"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := filepath.Join(dir, "cache", "refs")
	if cfg.RefCache.Dir != want {
		t.Fatalf("expected ref cache dir %q, got %q", want, cfg.RefCache.Dir)
	}
}

func TestValidateRejectsBadOverride(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StagingDir = "/tmp/staging"
	cfg.Paths.LibraryDir = "/tmp/library"
	cfg.Paths.LogDir = "/tmp/logs"
	cfg.Queue.TypeOverrides = map[string]int{"generation.local.image": -1}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "type_overrides") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateSampleWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[queue]") {
		t.Fatal("sample config missing queue section")
	}
}
