package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"easel/internal/config"
	"easel/internal/fileutil"
	"easel/internal/media"
)

// cacheVersion participates in the cache key so a change to the derivation
// algorithm invalidates old entries without touching them.
const cacheVersion = "v1"

// RefCache is the content-addressed store of downscaled reference images.
type RefCache struct {
	dir       string
	maxPixels int
}

// NewRefCache builds the cache over the configured directory and pixel bound.
func NewRefCache(cfg *config.Config) *RefCache {
	dir := cfg.RefCache.Dir
	if dir == "" {
		dir = cfg.Paths.CacheDir
	}
	return &RefCache{
		dir:       filepath.Join(dir, "refs"),
		maxPixels: cfg.RefCache.MaxPixels,
	}
}

// KeyFor derives the content-addressed cache key for a source file:
// sha256(version || max_pixels || sha256(source bytes) || source size).
func (c *RefCache) KeyFor(sourcePath string) (string, error) {
	digest, size, err := fileutil.SHA256File(sourcePath)
	if err != nil {
		return "", fmt.Errorf("hash reference source: %w", err)
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s|%d", cacheVersion, c.maxPixels, digest, size)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// PathFor maps a cache key to its deterministic on-disk location.
func (c *RefCache) PathFor(key string) string {
	return filepath.Join(c.dir, key[:2], key+".png")
}

// Ensure returns the cache path for a source image, deriving and writing the
// downscaled entry when absent. The returned bool reports a cache hit.
// Concurrent calls for the same key are safe: the derivative is written to a
// unique temp file and renamed into place, so the loser's write is redundant,
// not corrupting.
func (c *RefCache) Ensure(sourcePath string) (string, bool, error) {
	key, err := c.KeyFor(sourcePath)
	if err != nil {
		return "", false, err
	}
	destPath := c.PathFor(key)

	if _, err := os.Stat(destPath); err == nil {
		return destPath, true, nil
	}

	img, err := media.DecodeImage(sourcePath)
	if err != nil {
		return "", false, fmt.Errorf("decode reference source: %w", err)
	}
	scaled := media.DownscaleToPixels(img, c.maxPixels)

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", false, fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(destPath), key+".tmp-*")
	if err != nil {
		return "", false, fmt.Errorf("create cache temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := media.WritePNG(tmpPath, scaled); err != nil {
		os.Remove(tmpPath)
		return "", false, err
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("publish cache entry: %w", err)
	}
	return destPath, false, nil
}

// CacheStats summarizes cache disk usage for the status surfaces.
type CacheStats struct {
	Entries   int
	Bytes     int64
	FreeRatio float64
}

// Stats walks the cache tree and samples filesystem free space.
func (c *RefCache) Stats() (CacheStats, error) {
	stats := CacheStats{}
	err := filepath.WalkDir(c.dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		stats.Entries++
		stats.Bytes += info.Size()
		return nil
	})
	if err != nil {
		return CacheStats{}, fmt.Errorf("walk cache dir: %w", err)
	}

	var fsStat unix.Statfs_t
	statTarget := c.dir
	if _, err := os.Stat(statTarget); err != nil {
		statTarget = filepath.Dir(c.dir)
	}
	if err := unix.Statfs(statTarget, &fsStat); err == nil && fsStat.Blocks > 0 {
		stats.FreeRatio = float64(fsStat.Bavail) / float64(fsStat.Blocks)
	}
	return stats, nil
}
