package generation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"easel/internal/catalog"
	"easel/internal/ingest"
	"easel/internal/library"
	"easel/internal/logging"
	"easel/internal/providers/local"
	"easel/internal/providers/remote"
	"easel/internal/queue"
	"easel/internal/services"
)

// runLocal executes a queued-local generation through the engine adapter.
func (s *Service) runLocal(ctx context.Context, item *queue.Item) error {
	p, err := decodePayload(item.Payload)
	if err != nil {
		return err
	}
	ctx = services.WithGenerationID(ctx, p.GenerationID)

	endpoint, err := s.catalog.Get(ctx, p.EndpointKey)
	if err != nil {
		return s.fail(ctx, p, catalog.OutputImage, err)
	}

	engine := s.engine
	if engine == nil {
		engine, err = local.NewExecEngine(s.cfg, s.logger)
		if err != nil {
			return s.fail(ctx, p, endpoint.OutputType, err)
		}
	}

	refs, err := s.ingest.RefImagesForGeneration(ctx, p.GenerationID)
	if err != nil {
		return s.fail(ctx, p, endpoint.OutputType, err)
	}

	destDir := filepath.Join(s.cfg.Paths.StagingDir, "outputs", p.GenerationID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return s.fail(ctx, p, endpoint.OutputType,
			services.Wrap(services.ErrConfiguration, "generation", "local",
				"create output staging directory", err))
	}

	s.publishProgress(ctx, p.GenerationID, p.EndpointKey, "running", 0, 0)
	result, err := engine.Generate(ctx, local.Request{
		Prompt:          stringParam(p.Params, "prompt"),
		Width:           int(intParam(p.Params, "width")),
		Height:          int(intParam(p.Params, "height")),
		Seed:            intParam(p.Params, "seed"),
		Steps:           int(intParam(p.Params, "steps")),
		Guidance:        floatParam(p.Params, "guidance"),
		Sampler:         stringParam(p.Params, "sampler"),
		ReferenceImages: refs,
		DestinationPath: destDir,
		UsePromptCache:  true,
		UseRefCache:     true,
	}, func(tick local.Progress) {
		s.publishProgress(ctx, p.GenerationID, p.EndpointKey, tick.Phase, tick.Step, tick.TotalSteps)
	})
	if err != nil {
		return s.fail(ctx, p, endpoint.OutputType, err)
	}

	outputs := make([]ingest.Output, 0, len(result.Outputs))
	for _, path := range result.Outputs {
		outputs = append(outputs, ingest.Output{URL: path})
	}
	return s.finish(ctx, p, endpoint.OutputType, ingest.Result{
		Success: true,
		Outputs: outputs,
		Metrics: ingest.Metrics{
			Seed:           result.Seed,
			ElapsedMS:      result.ElapsedMS,
			PromptCacheHit: result.PromptCacheHit,
			RefCacheHit:    result.RefCacheHit,
		},
	})
}

// runRemote executes a remote-async generation through the provider client.
func (s *Service) runRemote(ctx context.Context, item *queue.Item) error {
	p, err := decodePayload(item.Payload)
	if err != nil {
		return err
	}
	ctx = services.WithGenerationID(ctx, p.GenerationID)

	endpoint, err := s.catalog.Get(ctx, p.EndpointKey)
	if err != nil {
		return s.fail(ctx, p, catalog.OutputImage, err)
	}
	provider, err := s.catalog.Provider(ctx, endpoint.ProviderID)
	if err != nil {
		return s.fail(ctx, p, endpoint.OutputType, err)
	}

	refs, err := s.ingest.RefImagesForGeneration(ctx, p.GenerationID)
	if err != nil {
		return s.fail(ctx, p, endpoint.OutputType, err)
	}

	client := s.remoteFor(provider)
	start := time.Now()
	remoteOutputs, err := client.Generate(ctx, remote.GenerateRequest{
		ModelID:         endpoint.ModelID,
		Params:          p.Params,
		ReferenceImages: refs,
	}, func(phase string) {
		s.publishProgress(ctx, p.GenerationID, p.EndpointKey, phase, 0, 0)
	})
	if err != nil {
		return s.fail(ctx, p, endpoint.OutputType, err)
	}

	outputs := make([]ingest.Output, 0, len(remoteOutputs))
	for _, output := range remoteOutputs {
		outputs = append(outputs, ingest.Output{URL: output.URL, MIME: output.MIME})
	}
	return s.finish(ctx, p, endpoint.OutputType, ingest.Result{
		Success: true,
		Outputs: outputs,
		Metrics: ingest.Metrics{
			Seed:      intParam(p.Params, "seed"),
			ElapsedMS: time.Since(start).Milliseconds(),
		},
	})
}

// fail persists the failure, publishes the terminal result, and hands the
// original error back so the work item records the same message.
func (s *Service) fail(ctx context.Context, p payload, output catalog.OutputType, cause error) error {
	s.logger.ErrorContext(ctx, "generation failed",
		logging.String(logging.FieldGenerationID, p.GenerationID),
		logging.Error(cause))
	if err := s.ingest.Finalize(ctx, p.GenerationID, ingest.Result{Error: cause.Error()}, mediaTypeFor(output)); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist generation failure", logging.Error(err))
	}
	s.publishResult(ctx, p.GenerationID)
	return cause
}

// finish files the provider result. Finalize can still decide the
// generation failed, e.g. a success with no artifacts; the work item then
// fails with the persisted reason.
func (s *Service) finish(ctx context.Context, p payload, output catalog.OutputType, result ingest.Result) error {
	if err := s.ingest.Finalize(ctx, p.GenerationID, result, mediaTypeFor(output)); err != nil {
		return s.fail(ctx, p, output, err)
	}
	s.publishResult(ctx, p.GenerationID)

	gen, err := s.store.GetGeneration(ctx, p.GenerationID)
	if err != nil || gen == nil {
		return err
	}
	if gen.Status == library.GenerationFailed {
		return fmt.Errorf("generation failed: %s", gen.Error)
	}
	return nil
}
