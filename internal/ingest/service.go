package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"easel/internal/config"
	"easel/internal/library"
	"easel/internal/logging"
	"easel/internal/media"
	"easel/internal/services"
)

// stagingThumbPixels bounds the staged input previews kept alongside a
// generation for display, independent of the reference cache bound.
const stagingThumbPixels = 1 << 18

// InputSpec names one reference asset attached to a submission: either a
// library media id or an external path.
type InputSpec struct {
	MediaID *int64
	Path    string
}

// Service stages generation inputs and files finished artifacts.
type Service struct {
	cfg    *config.Config
	store  *library.Store
	cache  *RefCache
	logger *slog.Logger
}

// NewService wires the ingestion service over the library store.
func NewService(cfg *config.Config, store *library.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		cache:  NewRefCache(cfg),
		logger: logging.NewComponentLogger(logger, "ingest"),
	}
}

// Cache exposes the reference cache for status reporting.
func (s *Service) Cache() *RefCache {
	return s.cache
}

// PrepareInputs stages thumbnails and reference-cache entries for every
// input, in position order, and persists the input rows. Unresolvable
// sources fail the whole preparation; a submission with a bad reference
// never reaches a provider.
func (s *Service) PrepareInputs(ctx context.Context, gen *library.Generation, specs []InputSpec) ([]library.GenerationInput, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	inputs := make([]library.GenerationInput, 0, len(specs))
	for position, spec := range specs {
		sourcePath, sourceType, err := s.resolveSource(ctx, spec)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "ingest", "prepare",
				fmt.Sprintf("input %d", position), err)
		}

		thumbPath := filepath.Join(s.cfg.Paths.StagingDir, "inputs", gen.ID,
			fmt.Sprintf("%03d.png", position))
		if err := media.Thumbnail(sourcePath, thumbPath, stagingThumbPixels); err != nil {
			return nil, services.Wrap(services.ErrValidation, "ingest", "prepare",
				fmt.Sprintf("stage input %d thumbnail", position), err)
		}

		refPath, hit, err := s.cache.Ensure(sourcePath)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "ingest", "prepare",
				fmt.Sprintf("cache input %d", position), err)
		}
		s.logger.DebugContext(ctx, "reference input prepared",
			logging.String(logging.FieldGenerationID, gen.ID),
			logging.Int("position", position),
			logging.Bool("cache_hit", hit))

		inputs = append(inputs, library.GenerationInput{
			GenerationID:  gen.ID,
			MediaID:       spec.MediaID,
			Position:      position,
			SourceType:    sourceType,
			SourcePath:    sourcePath,
			ThumbnailPath: thumbPath,
			RefCachePath:  refPath,
		})
	}

	if err := s.store.AddInputs(ctx, gen.ID, inputs); err != nil {
		return nil, fmt.Errorf("persist generation inputs: %w", err)
	}
	return inputs, nil
}

// RefImagesForGeneration re-derives or reuses cache entries for a
// generation's recorded inputs, in position order. An input whose source can
// no longer be resolved is logged and skipped rather than failing the set.
func (s *Service) RefImagesForGeneration(ctx context.Context, generationID string) ([]string, error) {
	inputs, err := s.store.InputsForGeneration(ctx, generationID)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(inputs))
	for _, input := range inputs {
		refPath, _, err := s.cache.Ensure(input.SourcePath)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping unresolvable reference input",
				logging.String(logging.FieldGenerationID, generationID),
				logging.Int("position", input.Position),
				logging.Error(err))
			continue
		}
		if refPath != input.RefCachePath {
			if err := s.store.SetInputArtifacts(ctx, input.ID, input.ThumbnailPath, refPath); err != nil {
				s.logger.WarnContext(ctx, "failed to record refreshed cache path", logging.Error(err))
			}
		}
		paths = append(paths, refPath)
	}
	return paths, nil
}

func (s *Service) resolveSource(ctx context.Context, spec InputSpec) (string, library.InputSource, error) {
	if spec.MediaID != nil {
		record, err := s.store.GetMedia(ctx, *spec.MediaID)
		if err != nil {
			return "", "", err
		}
		if record == nil {
			return "", "", fmt.Errorf("media %d not found", *spec.MediaID)
		}
		if _, err := os.Stat(record.Path); err != nil {
			return "", "", fmt.Errorf("library media file missing: %w", err)
		}
		return record.Path, library.InputSourceLibrary, nil
	}

	path := strings.TrimSpace(spec.Path)
	if path == "" {
		return "", "", fmt.Errorf("input has neither media id nor path")
	}
	path, err := config.ExpandPath(path)
	if err != nil {
		return "", "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", "", fmt.Errorf("reference source missing: %w", err)
	}
	return path, library.InputSourceExternal, nil
}
