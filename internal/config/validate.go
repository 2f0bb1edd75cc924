package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateRefCache(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		return errors.New("paths.library_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateRemote() error {
	return ensurePositiveMap(map[string]int{
		"remote.request_timeout":       c.Remote.RequestTimeout,
		"remote.poll_interval_seconds": c.Remote.PollIntervalSeconds,
		"remote.poll_deadline_seconds": c.Remote.PollDeadlineSeconds,
	})
}

func (c *Config) validateQueue() error {
	if err := ensurePositiveMap(map[string]int{
		"queue.local_concurrency":  c.Queue.LocalConcurrency,
		"queue.remote_concurrency": c.Queue.RemoteConcurrency,
	}); err != nil {
		return err
	}
	for taskType, limit := range c.Queue.TypeOverrides {
		if limit <= 0 {
			return fmt.Errorf("queue.type_overrides[%q] must be positive", taskType)
		}
	}
	return nil
}

func (c *Config) validateRefCache() error {
	if c.RefCache.MaxPixels <= 0 {
		return errors.New("ref_cache.max_pixels must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
