package library_test

import (
	"context"
	"testing"

	"easel/internal/library"
	"easel/internal/testsupport"
)

func TestCreateGenerationAssignsIDAndSeq(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLibrary(t, cfg)

	ctx := context.Background()
	gen := &library.Generation{
		EndpointKey: "local:flux-dev:image",
		ProviderID:  "local",
		ModelID:     "flux-dev",
		Prompt:      "a watercolor lighthouse",
		Width:       1024,
		Height:      768,
		Seed:        42,
	}
	if err := store.CreateGeneration(ctx, gen); err != nil {
		t.Fatalf("CreateGeneration failed: %v", err)
	}
	if gen.ID == "" {
		t.Fatal("expected generated ID")
	}
	if gen.Seq == 0 {
		t.Fatal("expected sequence number")
	}
	if gen.Status != library.GenerationPending {
		t.Fatalf("expected pending status, got %s", gen.Status)
	}

	fetched, err := store.GetGeneration(ctx, gen.ID)
	if err != nil {
		t.Fatalf("GetGeneration failed: %v", err)
	}
	if fetched == nil || fetched.Prompt != gen.Prompt || fetched.Seed != 42 {
		t.Fatalf("unexpected fetched generation: %#v", fetched)
	}
}

func TestCreateGenerationRequiresEndpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLibrary(t, cfg)

	err := store.CreateGeneration(context.Background(), &library.Generation{})
	if err == nil {
		t.Fatal("expected error when endpoint key missing")
	}
}

func TestGetGenerationMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLibrary(t, cfg)

	gen, err := store.GetGeneration(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetGeneration failed: %v", err)
	}
	if gen != nil {
		t.Fatalf("expected nil for missing generation, got %#v", gen)
	}
}

func TestMarkGenerationCompleted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLibrary(t, cfg)

	ctx := context.Background()
	gen := &library.Generation{EndpointKey: "local:flux-dev:image", ProviderID: "local", ModelID: "flux-dev"}
	if err := store.CreateGeneration(ctx, gen); err != nil {
		t.Fatalf("CreateGeneration failed: %v", err)
	}

	metrics := library.CompletionMetrics{
		ElapsedMS:      1234,
		PromptCacheHit: true,
		OutputPaths:    []string{"/library/generated/2026/09/01/a.png"},
	}
	if err := store.MarkGenerationCompleted(ctx, gen.ID, metrics); err != nil {
		t.Fatalf("MarkGenerationCompleted failed: %v", err)
	}

	updated, err := store.GetGeneration(ctx, gen.ID)
	if err != nil {
		t.Fatalf("GetGeneration failed: %v", err)
	}
	if updated.Status != library.GenerationCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
	if updated.ElapsedMS != 1234 || !updated.PromptCacheHit {
		t.Fatalf("unexpected metrics: %#v", updated)
	}
	if len(updated.OutputPaths) != 1 || updated.OutputPaths[0] != metrics.OutputPaths[0] {
		t.Fatalf("unexpected output paths: %v", updated.OutputPaths)
	}
	if updated.CompletedAt == nil {
		t.Fatal("expected completion timestamp")
	}
}

func TestMarkGenerationFailedDefaultsMessage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLibrary(t, cfg)

	ctx := context.Background()
	gen := &library.Generation{EndpointKey: "remote:veo:video", ProviderID: "remote", ModelID: "veo"}
	if err := store.CreateGeneration(ctx, gen); err != nil {
		t.Fatalf("CreateGeneration failed: %v", err)
	}

	if err := store.MarkGenerationFailed(ctx, gen.ID, "  "); err != nil {
		t.Fatalf("MarkGenerationFailed failed: %v", err)
	}
	updated, _ := store.GetGeneration(ctx, gen.ID)
	if updated.Status != library.GenerationFailed {
		t.Fatalf("expected failed, got %s", updated.Status)
	}
	if updated.Error != "generation failed" {
		t.Fatalf("expected default error message, got %q", updated.Error)
	}

	if err := store.MarkGenerationFailed(ctx, "missing", "boom"); err == nil {
		t.Fatal("expected error for unknown generation")
	}
}

func TestInputsRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLibrary(t, cfg)

	ctx := context.Background()
	gen := &library.Generation{EndpointKey: "local:flux-dev:image", ProviderID: "local", ModelID: "flux-dev"}
	if err := store.CreateGeneration(ctx, gen); err != nil {
		t.Fatalf("CreateGeneration failed: %v", err)
	}

	inputs := []library.GenerationInput{
		{SourceType: library.InputSourceExternal, SourcePath: "/tmp/ref-a.png"},
		{SourceType: library.InputSourceExternal, SourcePath: "/tmp/ref-b.png"},
	}
	if err := store.AddInputs(ctx, gen.ID, inputs); err != nil {
		t.Fatalf("AddInputs failed: %v", err)
	}

	stored, err := store.InputsForGeneration(ctx, gen.ID)
	if err != nil {
		t.Fatalf("InputsForGeneration failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(stored))
	}
	for i, input := range stored {
		if input.Position != i {
			t.Fatalf("input %d: expected position %d, got %d", i, i, input.Position)
		}
	}
	if stored[0].SourcePath != "/tmp/ref-a.png" {
		t.Fatalf("unexpected first input: %#v", stored[0])
	}

	if err := store.SetInputArtifacts(ctx, stored[0].ID, "/staging/thumb.png", "/cache/refs/ab/abc.png"); err != nil {
		t.Fatalf("SetInputArtifacts failed: %v", err)
	}
	refreshed, _ := store.InputsForGeneration(ctx, gen.ID)
	if refreshed[0].RefCachePath != "/cache/refs/ab/abc.png" {
		t.Fatalf("unexpected ref cache path: %q", refreshed[0].RefCachePath)
	}
}

func TestMediaRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLibrary(t, cfg)

	ctx := context.Background()
	gen := &library.Generation{EndpointKey: "local:flux-dev:image", ProviderID: "local", ModelID: "flux-dev"}
	if err := store.CreateGeneration(ctx, gen); err != nil {
		t.Fatalf("CreateGeneration failed: %v", err)
	}

	media := &library.Media{
		Path:         "/library/generated/2026/09/01/a.png",
		Type:         library.MediaImage,
		Origin:       library.OriginGeneration,
		Width:        1024,
		Height:       768,
		SizeBytes:    2048,
		GenerationID: &gen.ID,
	}
	if err := store.InsertMedia(ctx, media); err != nil {
		t.Fatalf("InsertMedia failed: %v", err)
	}
	if media.ID == 0 {
		t.Fatal("expected media ID")
	}

	byGen, err := store.MediaForGeneration(ctx, gen.ID)
	if err != nil {
		t.Fatalf("MediaForGeneration failed: %v", err)
	}
	if len(byGen) != 1 || byGen[0].Path != media.Path {
		t.Fatalf("unexpected media for generation: %#v", byGen)
	}

	if err := store.SetRating(ctx, media.ID, 4); err != nil {
		t.Fatalf("SetRating failed: %v", err)
	}
	fetched, _ := store.GetMedia(ctx, media.ID)
	if fetched.Rating != 4 {
		t.Fatalf("expected rating 4, got %d", fetched.Rating)
	}

	if err := store.SetRating(ctx, media.ID, 9); err == nil {
		t.Fatal("expected out-of-range rating to be rejected")
	}
}
