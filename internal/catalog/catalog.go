package catalog

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"easel/internal/config"
	"easel/internal/logging"
	"easel/internal/notifications"
	"easel/internal/services"
)

// Catalog memoizes the endpoint map built from provider documents.
type Catalog struct {
	cfg    *config.Config
	bus    *notifications.Bus
	logger *slog.Logger

	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	providers map[string]Provider
	built     bool
}

// New constructs a catalog over the configured provider documents.
func New(cfg *config.Config, bus *notifications.Bus, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Catalog{
		cfg:    cfg,
		bus:    bus,
		logger: logging.NewComponentLogger(logger, "catalog"),
	}
}

// Endpoints returns the full endpoint map, building it on first use.
// The returned map is the live snapshot; callers must not mutate it.
func (c *Catalog) Endpoints(ctx context.Context) (map[string]*Endpoint, error) {
	c.mu.RLock()
	if c.built {
		endpoints := c.endpoints
		c.mu.RUnlock()
		return endpoints, nil
	}
	c.mu.RUnlock()
	return c.rebuild(ctx)
}

// Get resolves one endpoint by key.
func (c *Catalog) Get(ctx context.Context, key string) (*Endpoint, error) {
	endpoints, err := c.Endpoints(ctx)
	if err != nil {
		return nil, err
	}
	endpoint, ok := endpoints[key]
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "catalog", "get",
			"unknown endpointKey "+key, nil)
	}
	return endpoint, nil
}

// Provider returns the merged provider document for an id.
func (c *Catalog) Provider(ctx context.Context, id string) (Provider, error) {
	if _, err := c.Endpoints(ctx); err != nil {
		return Provider{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	provider, ok := c.providers[id]
	if !ok {
		return Provider{}, services.Wrap(services.ErrConfiguration, "catalog", "provider",
			"unknown provider "+id, nil)
	}
	return provider, nil
}

// Invalidate discards the memoized build so the next read reloads documents.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.built = false
	c.endpoints = nil
	c.mu.Unlock()
}

// Refresh rebuilds immediately and publishes a catalog-updated event.
func (c *Catalog) Refresh(ctx context.Context) (map[string]*Endpoint, error) {
	c.Invalidate()
	endpoints, err := c.rebuild(ctx)
	if err != nil {
		return nil, err
	}
	if c.bus != nil {
		c.bus.Publish(ctx, notifications.EventCatalogUpdated, notifications.Payload{
			"endpoints": len(endpoints),
		})
	}
	return endpoints, nil
}

func (c *Catalog) rebuild(ctx context.Context) (map[string]*Endpoint, error) {
	providers, err := LoadProviders(c.cfg)
	if err != nil {
		return nil, err
	}
	userModels, err := LoadUserModels(c.cfg)
	if err != nil {
		return nil, err
	}

	endpoints := make(map[string]*Endpoint)
	providerIndex := make(map[string]Provider, len(providers))

	add := func(endpoint *Endpoint) {
		if previous, exists := endpoints[endpoint.Key]; exists {
			c.logger.WarnContext(ctx, "duplicate endpoint key, keeping later definition",
				logging.String(logging.FieldEndpointKey, endpoint.Key),
				logging.String("previous_model", previous.ModelID))
		}
		endpoints[endpoint.Key] = endpoint
	}

	for _, provider := range providers {
		providerIndex[provider.ID] = provider

		for _, model := range provider.Models {
			add(c.endpointFromModel(provider, model))
		}

		if len(provider.RawFeed) > 0 {
			adapter, known := AdapterFor(provider.Adapter)
			if !known {
				c.logger.WarnContext(ctx, "unknown adapter tag, using generic normalization",
					logging.String(logging.FieldProviderID, provider.ID),
					logging.String("adapter", provider.Adapter))
			}
			for _, raw := range provider.RawFeed {
				model, ok := adapter.NormalizeModelDetail(raw)
				if !ok {
					c.logger.WarnContext(ctx, "skipping unrecognizable model document",
						logging.String(logging.FieldProviderID, provider.ID))
					continue
				}
				add(c.endpointFromModel(provider, model))
			}
		}
	}

	for _, userModel := range userModels {
		provider, ok := providerIndex[userModel.Provider]
		if !ok {
			c.logger.WarnContext(ctx, "user model references unknown provider",
				logging.String(logging.FieldProviderID, userModel.Provider),
				logging.String("model", userModel.ID))
			continue
		}
		if strings.TrimSpace(userModel.ID) == "" {
			continue
		}
		add(c.endpointFromModel(provider, ModelDef{
			ID:          userModel.ID,
			DisplayName: userModel.DisplayName,
			Mode:        userModel.Mode,
			TypeHint:    userModel.TypeHint,
		}))
	}

	c.mu.Lock()
	c.endpoints = endpoints
	c.providers = providerIndex
	c.built = true
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "catalog built",
		logging.Int("providers", len(providers)),
		logging.Int("endpoints", len(endpoints)))
	return endpoints, nil
}

func (c *Catalog) endpointFromModel(provider Provider, model ModelDef) *Endpoint {
	mode := InferMode(model.Mode, model.TypeHint, model.ID)
	output := model.Output
	if output == "" {
		output = OutputForMode(mode)
	}

	display := strings.TrimSpace(model.DisplayName)
	if display == "" {
		display = DefaultTitle(model.ID)
	}

	execution := provider.Execution
	if execution == "" {
		execution = ExecutionRemoteAsync
	}

	return &Endpoint{
		Key:         KeyFor(provider.ID, model.ID, output),
		ProviderID:  provider.ID,
		ModelID:     model.ID,
		DisplayName: display,
		Modes:       []Mode{mode},
		OutputType:  output,
		Execution:   execution,
		Schema:      NormalizeSchema(model.Schema),
		UIHints:     model.UIHints,
	}
}
