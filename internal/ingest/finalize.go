package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"easel/internal/fileutil"
	"easel/internal/library"
	"easel/internal/logging"
	"easel/internal/media"
)

// Output is one artifact reference handed back by a provider.
type Output struct {
	URL  string
	MIME string
}

// Metrics carries provider-reported execution measurements.
type Metrics struct {
	Seed           int64
	ElapsedMS      int64
	PromptCacheHit bool
	RefCacheHit    bool
}

// Result is the provider outcome consumed by Finalize.
type Result struct {
	Success bool
	Error   string
	Outputs []Output
	Metrics Metrics
}

var downloadClient = &http.Client{Timeout: 2 * time.Minute}

// Finalize records a generation's outcome. Failures and success-with-no-
// outputs mark the generation failed; real outputs are resolved to local
// files, filed under the date-partitioned library tree, probed, thumbnailed,
// and inserted as media records before the generation is marked completed.
func (s *Service) Finalize(ctx context.Context, generationID string, result Result, outputType library.MediaType) error {
	if !result.Success {
		message := strings.TrimSpace(result.Error)
		if message == "" {
			message = "generation failed"
		}
		return s.store.MarkGenerationFailed(ctx, generationID, message)
	}
	if len(result.Outputs) == 0 {
		return s.store.MarkGenerationFailed(ctx, generationID, "completed without output artifacts")
	}

	now := time.Now().UTC()
	destDir := filepath.Join(s.cfg.GeneratedDir(), now.Format("2006"), now.Format("01"), now.Format("02"))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create library dir: %w", err)
	}

	outputPaths := make([]string, 0, len(result.Outputs))
	for index, output := range result.Outputs {
		localPath, cleanup, err := s.resolveOutput(ctx, output)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to resolve output artifact",
				logging.String(logging.FieldGenerationID, generationID),
				logging.Int("output", index),
				logging.Error(err))
			return s.store.MarkGenerationFailed(ctx, generationID,
				fmt.Sprintf("output %d: %v", index, err))
		}

		ext := media.ResolveExtension(output.MIME, output.URL, defaultExtension(outputType))
		destPath := filepath.Join(destDir, fmt.Sprintf("%s-%02d%s", generationID, index, ext))
		if err := fileutil.MoveFile(localPath, destPath); err != nil {
			cleanup()
			return s.store.MarkGenerationFailed(ctx, generationID,
				fmt.Sprintf("file output %d: %v", index, err))
		}
		cleanup()

		record := s.buildMediaRecord(ctx, generationID, destPath, outputType)
		if err := s.store.InsertMedia(ctx, record); err != nil {
			return fmt.Errorf("insert media record: %w", err)
		}
		outputPaths = append(outputPaths, destPath)
	}

	return s.store.MarkGenerationCompleted(ctx, generationID, library.CompletionMetrics{
		ElapsedMS:      result.Metrics.ElapsedMS,
		PromptCacheHit: result.Metrics.PromptCacheHit,
		RefCacheHit:    result.Metrics.RefCacheHit,
		OutputPaths:    outputPaths,
	})
}

// resolveOutput turns a provider artifact reference into a local file path.
// The cleanup func removes any temporary download; it is a no-op for paths
// that were already local.
func (s *Service) resolveOutput(ctx context.Context, output Output) (string, func(), error) {
	noop := func() {}
	reference := strings.TrimSpace(output.URL)
	if reference == "" {
		return "", noop, fmt.Errorf("empty artifact reference")
	}

	switch {
	case strings.HasPrefix(reference, "http://"), strings.HasPrefix(reference, "https://"):
		return s.download(ctx, reference)
	case strings.HasPrefix(reference, "file://"):
		parsed, err := url.Parse(reference)
		if err != nil {
			return "", noop, fmt.Errorf("parse file url: %w", err)
		}
		reference = parsed.Path
	}

	if !filepath.IsAbs(reference) {
		abs, err := filepath.Abs(reference)
		if err != nil {
			return "", noop, err
		}
		reference = abs
	}
	if _, err := os.Stat(reference); err != nil {
		return "", noop, fmt.Errorf("artifact missing: %w", err)
	}
	return reference, noop, nil
}

func (s *Service) download(ctx context.Context, remoteURL string) (string, func(), error) {
	noop := func() {}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return "", noop, fmt.Errorf("build download request: %w", err)
	}
	resp, err := downloadClient.Do(req)
	if err != nil {
		return "", noop, fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", noop, fmt.Errorf("download artifact: unexpected status %d", resp.StatusCode)
	}

	stagingDir := filepath.Join(s.cfg.Paths.StagingDir, "downloads")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return "", noop, fmt.Errorf("create download dir: %w", err)
	}
	tmp, err := os.CreateTemp(stagingDir, "artifact-*")
	if err != nil {
		return "", noop, fmt.Errorf("create download file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", noop, fmt.Errorf("write download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", noop, err
	}
	path := tmp.Name()
	return path, func() { os.Remove(path) }, nil
}

// buildMediaRecord probes dimensions and derives a thumbnail. Probe and
// thumbnail failures degrade the record rather than failing the ingest; the
// artifact itself is already safely filed.
func (s *Service) buildMediaRecord(ctx context.Context, generationID, path string, outputType library.MediaType) *library.Media {
	record := &library.Media{
		Path:         path,
		Type:         outputType,
		Origin:       library.OriginGeneration,
		GenerationID: &generationID,
	}
	if info, err := os.Stat(path); err == nil {
		record.SizeBytes = info.Size()
	}

	thumbSource := path
	switch outputType {
	case library.MediaVideo:
		probe, err := media.Probe(ctx, s.cfg.Tools.FFprobe, path)
		if err != nil {
			s.logger.WarnContext(ctx, "video probe failed", logging.Error(err))
		} else {
			record.Width, record.Height = probe.Dimensions()
			record.DurationMS = probe.DurationMS()
		}
		framePath := filepath.Join(s.cfg.Paths.StagingDir, "frames",
			strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".png")
		if err := media.ExtractFrame(ctx, s.cfg.Tools.FFmpeg, path, framePath); err != nil {
			s.logger.WarnContext(ctx, "frame extraction failed", logging.Error(err))
			return record
		}
		defer os.Remove(framePath)
		thumbSource = framePath
	default:
		if width, height, err := media.ImageDimensions(path); err == nil {
			record.Width, record.Height = width, height
		} else {
			s.logger.WarnContext(ctx, "image probe failed", logging.Error(err))
		}
	}

	thumbPath := filepath.Join(s.cfg.ThumbnailDir(),
		strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".png")
	if err := media.Thumbnail(thumbSource, thumbPath, stagingThumbPixels); err != nil {
		s.logger.WarnContext(ctx, "thumbnail derivation failed", logging.Error(err))
		return record
	}
	record.ThumbnailPath = thumbPath
	return record
}

func defaultExtension(outputType library.MediaType) string {
	if outputType == library.MediaVideo {
		return ".mp4"
	}
	return ".png"
}
