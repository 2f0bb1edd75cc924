package generation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"easel/internal/catalog"
	"easel/internal/config"
	"easel/internal/ingest"
	"easel/internal/library"
	"easel/internal/logging"
	"easel/internal/notifications"
	"easel/internal/queue"
	"easel/internal/scheduler"
	"easel/internal/testsupport"
)

type harness struct {
	cfg     *config.Config
	store   *library.Store
	items   *queue.Store
	catalog *catalog.Catalog
	manager *scheduler.Manager
	bus     *notifications.Bus
	service *Service
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	items := testsupport.MustOpenStore(t, cfg)
	store := testsupport.MustOpenLibrary(t, cfg)
	bus := notifications.NewBus(logging.NewNop())
	cat := catalog.New(cfg, bus, logging.NewNop())
	manager := scheduler.NewManager(cfg, items, bus, logging.NewNop())
	ingestSvc := ingest.NewService(cfg, store, logging.NewNop())
	service := NewService(cfg, store, cat, manager, ingestSvc, bus, logging.NewNop(), opts...)
	service.RegisterHandlers(manager)
	return &harness{
		cfg:     cfg,
		store:   store,
		items:   items,
		catalog: cat,
		manager: manager,
		bus:     bus,
		service: service,
	}
}

func writeRemoteProviderDoc(t *testing.T, cfg *config.Config) {
	t.Helper()
	doc := `id = "skyart"
display_name = "SkyArt"
base_url = "https://api.skyart.example"

[[models]]
id = "sky-video"
display_name = "Sky Video"
type = "text-to-video"

[models.schema]
required = ["prompt"]

[models.schema.properties.prompt]
type = "string"
title = "Prompt"
`
	require.NoError(t, os.MkdirAll(cfg.Paths.ProvidersDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.ProvidersDir, "skyart.toml"), []byte(doc), 0o644))
}

func TestSubmitUnknownEndpointRejectedBeforePersistence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.service.Submit(ctx, SubmitRequest{
		EndpointKey: "nowhere:ghost:image",
		Params:      map[string]any{"prompt": "x"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown endpointKey")

	pending, err := h.items.ListPending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
	gens, err := h.store.ListGenerations(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, gens)
}

func TestSubmitValidatesAgainstCanonicalSchema(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.service.Submit(ctx, SubmitRequest{
		EndpointKey: "local:default:image",
		Params:      map[string]any{"width": 512},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "prompt is required")

	_, err = h.service.Submit(ctx, SubmitRequest{
		EndpointKey: "local:default:image",
		Params:      map[string]any{"prompt": "a door", "wdith": 512},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown parameter wdith")

	gens, err := h.store.ListGenerations(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, gens)
}

func TestSubmitResolvesSeedAndEnqueues(t *testing.T) {
	h := newHarness(t, WithSeedSource(func() int64 { return 777 }))
	ctx := context.Background()

	sub := h.bus.Subscribe(8)
	defer sub.Close()

	gen, err := h.service.Submit(ctx, SubmitRequest{
		EndpointKey: "local:default:image",
		Params:      map[string]any{"prompt": "a red door", "width": 512, "height": 512},
	})
	require.NoError(t, err)
	require.Equal(t, int64(777), gen.Seed)
	require.Equal(t, library.GenerationPending, gen.Status)

	pending, err := h.items.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "generation.local.image", pending[0].Type)
	require.Equal(t, gen.ID, pending[0].CorrelationID)

	p, err := decodePayload(pending[0].Payload)
	require.NoError(t, err)
	require.Equal(t, gen.ID, p.GenerationID)
	require.Equal(t, "local:default:image", p.EndpointKey)
	require.EqualValues(t, 777, p.Params["seed"])

	msg := <-sub.Events()
	require.Equal(t, notifications.EventQueueUpdated, msg.Event)
	msg = <-sub.Events()
	require.Equal(t, notifications.EventProgress, msg.Event)
	require.Equal(t, "queued", msg.Payload[notifications.KeyPhase])
}

func TestSubmitRemoteEndpointUsesRemoteTaskType(t *testing.T) {
	h := newHarness(t)
	writeRemoteProviderDoc(t, h.cfg)
	ctx := context.Background()

	gen, err := h.service.Submit(ctx, SubmitRequest{
		EndpointKey: "skyart:sky-video:video",
		Params:      map[string]any{"prompt": "waves at night"},
	})
	require.NoError(t, err)
	require.Equal(t, "skyart", gen.ProviderID)

	pending, err := h.items.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "generation.remote.video", pending[0].Type)
}

func TestSubmitAcceptsSeedUndeclaredBySchema(t *testing.T) {
	h := newHarness(t)
	writeRemoteProviderDoc(t, h.cfg)
	ctx := context.Background()

	// The skyart schema declares only prompt; seed is service-owned and
	// must pass validation both caller-supplied and injected.
	gen, err := h.service.Submit(ctx, SubmitRequest{
		EndpointKey: "skyart:sky-video:video",
		Params:      map[string]any{"prompt": "waves at night", "seed": int64(4242)},
	})
	require.NoError(t, err)
	require.Equal(t, int64(4242), gen.Seed)

	pending, err := h.items.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	p, err := decodePayload(pending[0].Payload)
	require.NoError(t, err)
	require.EqualValues(t, 4242, p.Params["seed"])
}

func TestCancelWithdrawsPendingWork(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	gen, err := h.service.Submit(ctx, SubmitRequest{
		EndpointKey: "local:default:image",
		Params:      map[string]any{"prompt": "a red door"},
	})
	require.NoError(t, err)

	cancelled, err := h.service.Cancel(ctx, gen.ID)
	require.NoError(t, err)
	require.True(t, cancelled)

	stored, err := h.store.GetGeneration(ctx, gen.ID)
	require.NoError(t, err)
	require.Equal(t, library.GenerationFailed, stored.Status)
	require.Equal(t, "cancelled before dispatch", stored.Error)

	// Nothing left to cancel the second time around.
	cancelled, err = h.service.Cancel(ctx, gen.ID)
	require.NoError(t, err)
	require.False(t, cancelled)
}

func TestCancelUnknownGenerationFails(t *testing.T) {
	h := newHarness(t)

	_, err := h.service.Cancel(context.Background(), "no-such-generation")
	require.Error(t, err)
}
