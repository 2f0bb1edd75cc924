package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEngine()
	c.normalizeRemote()
	c.normalizeQueue()
	if err := c.normalizeRefCache(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeTools()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ProvidersDir) == "" {
		c.Paths.ProvidersDir = defaultProvidersDir
	}
	if c.Paths.ProvidersDir, err = expandPath(c.Paths.ProvidersDir); err != nil {
		return fmt.Errorf("paths.providers_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeEngine() {
	c.Engine.Command = strings.TrimSpace(c.Engine.Command)
	if c.Engine.TimeoutSeconds <= 0 {
		c.Engine.TimeoutSeconds = defaultEngineTimeout
	}
}

func (c *Config) normalizeRemote() {
	if c.Remote.RequestTimeout <= 0 {
		c.Remote.RequestTimeout = defaultRemoteTimeout
	}
	if c.Remote.PollIntervalSeconds <= 0 {
		c.Remote.PollIntervalSeconds = defaultPollInterval
	}
	if c.Remote.PollDeadlineSeconds <= 0 {
		c.Remote.PollDeadlineSeconds = defaultPollDeadline
	}
}

func (c *Config) normalizeQueue() {
	if c.Queue.LocalConcurrency <= 0 {
		c.Queue.LocalConcurrency = defaultLocalConcurrency
	}
	if c.Queue.RemoteConcurrency <= 0 {
		c.Queue.RemoteConcurrency = defaultRemoteConcurrency
	}
	if len(c.Queue.TypeOverrides) > 0 {
		cleaned := make(map[string]int, len(c.Queue.TypeOverrides))
		for taskType, limit := range c.Queue.TypeOverrides {
			taskType = strings.TrimSpace(taskType)
			if taskType == "" || limit <= 0 {
				continue
			}
			cleaned[taskType] = limit
		}
		c.Queue.TypeOverrides = cleaned
	}
}

func (c *Config) normalizeRefCache() error {
	var err error
	if strings.TrimSpace(c.RefCache.Dir) == "" {
		c.RefCache.Dir = filepath.Join(c.Paths.CacheDir, "refs")
	}
	if c.RefCache.Dir, err = expandPath(c.RefCache.Dir); err != nil {
		return fmt.Errorf("ref_cache.dir: %w", err)
	}
	if c.RefCache.MaxPixels <= 0 {
		c.RefCache.MaxPixels = defaultRefCacheMaxPixels
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeTools() {
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	if c.Tools.FFprobe == "" {
		c.Tools.FFprobe = defaultFFprobeBinary
	}
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	if c.Tools.FFmpeg == "" {
		c.Tools.FFmpeg = defaultFFmpegBinary
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
