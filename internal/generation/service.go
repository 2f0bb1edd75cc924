package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"easel/internal/catalog"
	"easel/internal/config"
	"easel/internal/ingest"
	"easel/internal/library"
	"easel/internal/logging"
	"easel/internal/notifications"
	"easel/internal/providers/local"
	"easel/internal/providers/remote"
	"easel/internal/queue"
	"easel/internal/scheduler"
	"easel/internal/services"
)

// RemoteClient is the slice of the remote client the handlers need.
type RemoteClient interface {
	Generate(ctx context.Context, req remote.GenerateRequest, progress remote.ProgressFunc) ([]remote.Output, error)
}

// Service coordinates submissions, dispatch, and result filing.
type Service struct {
	cfg     *config.Config
	store   *library.Store
	catalog *catalog.Catalog
	queue   *scheduler.Manager
	ingest  *ingest.Service
	bus     *notifications.Bus
	logger  *slog.Logger

	engine     local.Engine
	remoteFor  func(catalog.Provider) RemoteClient
	seedSource func() int64
}

// Option adjusts service construction, mainly for tests.
type Option func(*Service)

// WithEngine substitutes the local execution engine.
func WithEngine(engine local.Engine) Option {
	return func(s *Service) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// WithRemoteClients substitutes the per-provider remote client factory.
func WithRemoteClients(factory func(catalog.Provider) RemoteClient) Option {
	return func(s *Service) {
		if factory != nil {
			s.remoteFor = factory
		}
	}
}

// WithSeedSource substitutes the random seed generator.
func WithSeedSource(source func() int64) Option {
	return func(s *Service) {
		if source != nil {
			s.seedSource = source
		}
	}
}

// NewService wires the generation service over its collaborators.
func NewService(cfg *config.Config, store *library.Store, cat *catalog.Catalog, manager *scheduler.Manager, ingestSvc *ingest.Service, bus *notifications.Bus, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	service := &Service{
		cfg:        cfg,
		store:      store,
		catalog:    cat,
		queue:      manager,
		ingest:     ingestSvc,
		bus:        bus,
		logger:     logging.NewComponentLogger(logger, "generation"),
		seedSource: func() int64 { return rand.Int64N(1<<31-1) + 1 },
	}
	service.remoteFor = func(provider catalog.Provider) RemoteClient {
		return remote.NewClient(provider, cfg, logger)
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// SubmitRequest is one generation submission.
type SubmitRequest struct {
	EndpointKey string
	Params      map[string]any
	Inputs      []ingest.InputSpec
	Priority    int
}

// Submit validates the request against the endpoint's canonical schema,
// persists the generation and its inputs, and enqueues the work item. An
// unknown endpoint key is rejected before anything is persisted.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*library.Generation, error) {
	endpoint, err := s.catalog.Get(ctx, req.EndpointKey)
	if err != nil {
		return nil, err
	}

	params := make(map[string]any, len(req.Params)+1)
	for key, value := range req.Params {
		params[key] = value
	}
	if err := validateParams(endpoint.Schema, params); err != nil {
		return nil, err
	}

	seed := intParam(params, seedParam)
	if seed <= 0 {
		seed = s.seedSource()
		params[seedParam] = seed
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}

	gen := &library.Generation{
		EndpointKey: endpoint.Key,
		ProviderID:  endpoint.ProviderID,
		ModelID:     endpoint.ModelID,
		Prompt:      stringParam(params, "prompt"),
		Width:       int(intParam(params, "width")),
		Height:      int(intParam(params, "height")),
		Seed:        seed,
		Steps:       int(intParam(params, "steps")),
		Guidance:    floatParam(params, "guidance"),
		Sampler:     stringParam(params, "sampler"),
		ParamsJSON:  string(paramsJSON),
		Status:      library.GenerationPending,
	}
	if err := s.store.CreateGeneration(ctx, gen); err != nil {
		return nil, err
	}
	ctx = services.WithGenerationID(ctx, gen.ID)

	if _, err := s.ingest.PrepareInputs(ctx, gen, req.Inputs); err != nil {
		if markErr := s.store.MarkGenerationFailed(ctx, gen.ID, err.Error()); markErr != nil {
			s.logger.ErrorContext(ctx, "failed to record input preparation failure",
				logging.Error(markErr))
		}
		return nil, err
	}

	body, err := encodePayload(payload{
		GenerationID: gen.ID,
		EndpointKey:  endpoint.Key,
		Params:       params,
	})
	if err != nil {
		return nil, err
	}
	item, err := s.queue.Enqueue(ctx, queue.NewItem{
		Type:          taskTypeFor(endpoint),
		Priority:      req.Priority,
		Payload:       body,
		CorrelationID: gen.ID,
	})
	if err != nil {
		if markErr := s.store.MarkGenerationFailed(ctx, gen.ID, "enqueue failed: "+err.Error()); markErr != nil {
			s.logger.ErrorContext(ctx, "failed to record enqueue failure", logging.Error(markErr))
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "generation submitted",
		logging.String(logging.FieldGenerationID, gen.ID),
		logging.String(logging.FieldEndpointKey, endpoint.Key),
		logging.Int64(logging.FieldWorkID, item.ID))
	s.publishProgress(ctx, gen.ID, endpoint.Key, "queued", 0, 0)
	return gen, nil
}

// Cancel withdraws a generation's pending work. Items already dispatched
// keep running; in that case nothing changes and false is returned.
func (s *Service) Cancel(ctx context.Context, generationID string) (bool, error) {
	gen, err := s.store.GetGeneration(ctx, generationID)
	if err != nil {
		return false, err
	}
	if gen == nil {
		return false, services.Wrap(services.ErrValidation, "generation", "cancel",
			"unknown generation "+generationID, nil)
	}

	cancelled, err := s.queue.CancelByCorrelation(ctx, generationID)
	if err != nil {
		return false, err
	}
	if cancelled == 0 {
		return false, nil
	}
	if err := s.store.MarkGenerationFailed(ctx, generationID, "cancelled before dispatch"); err != nil {
		return false, err
	}
	s.logger.InfoContext(ctx, "generation cancelled",
		logging.String(logging.FieldGenerationID, generationID))
	s.publishResult(ctx, generationID)
	return true, nil
}

// RegisterHandlers binds the provider handlers for every task type the
// service enqueues.
func (s *Service) RegisterHandlers(manager *scheduler.Manager) {
	for _, output := range []catalog.OutputType{catalog.OutputImage, catalog.OutputVideo} {
		manager.Register(scheduler.LocalTaskPrefix+string(output), scheduler.HandlerFunc(s.runLocal))
		manager.Register(scheduler.RemoteTaskPrefix+string(output), scheduler.HandlerFunc(s.runRemote))
	}
}

func taskTypeFor(endpoint *catalog.Endpoint) string {
	if endpoint.Execution == catalog.ExecutionQueuedLocal {
		return scheduler.LocalTaskPrefix + string(endpoint.OutputType)
	}
	return scheduler.RemoteTaskPrefix + string(endpoint.OutputType)
}

func mediaTypeFor(output catalog.OutputType) library.MediaType {
	if output == catalog.OutputVideo {
		return library.MediaVideo
	}
	return library.MediaImage
}

func (s *Service) publishProgress(ctx context.Context, generationID, endpointKey, phase string, step, totalSteps int) {
	s.bus.Publish(ctx, notifications.EventProgress, notifications.Payload{
		notifications.KeyGenerationID: generationID,
		notifications.KeyEndpointKey:  endpointKey,
		notifications.KeyPhase:        phase,
		notifications.KeyStep:         step,
		notifications.KeyTotalSteps:   totalSteps,
	})
}

// publishResult reports a generation's persisted terminal state.
func (s *Service) publishResult(ctx context.Context, generationID string) {
	gen, err := s.store.GetGeneration(ctx, generationID)
	if err != nil || gen == nil {
		s.logger.WarnContext(ctx, "cannot publish result for missing generation",
			logging.String(logging.FieldGenerationID, generationID),
			logging.Error(err))
		return
	}
	s.bus.Publish(ctx, notifications.EventResult, notifications.Payload{
		notifications.KeyGenerationID: gen.ID,
		notifications.KeyEndpointKey:  gen.EndpointKey,
		notifications.KeyStatus:       string(gen.Status),
		notifications.KeyPrompt:       gen.Prompt,
		notifications.KeyError:        gen.Error,
		notifications.KeyOutputs:      len(gen.OutputPaths),
		notifications.KeyElapsedMS:    gen.ElapsedMS,
	})
}
