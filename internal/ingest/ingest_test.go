package ingest_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"easel/internal/ingest"
	"easel/internal/library"
	"easel/internal/testsupport"
)

func TestRefCacheIdempotence(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cache := ingest.NewRefCache(cfg)

	source := filepath.Join(t.TempDir(), "ref.png")
	testsupport.WritePNG(t, source, 64, 64)

	first, hit, err := cache.Ensure(source)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if hit {
		t.Fatal("first derivation must be a miss")
	}

	info, err := os.Stat(first)
	if err != nil {
		t.Fatalf("stat cache entry: %v", err)
	}
	written := info.ModTime()

	second, hit, err := cache.Ensure(source)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !hit {
		t.Fatal("second call must hit the cache")
	}
	if second != first {
		t.Fatalf("cache path changed: %s vs %s", first, second)
	}
	info, _ = os.Stat(second)
	if !info.ModTime().Equal(written) {
		t.Fatal("cache entry was rewritten")
	}

	stats, err := cache.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Entries != 1 {
		t.Fatalf("expected exactly one cache entry, got %d", stats.Entries)
	}
}

func TestRefCacheKeyDependsOnPixelBound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := filepath.Join(t.TempDir(), "ref.png")
	testsupport.WritePNG(t, source, 64, 64)

	wide := ingest.NewRefCache(cfg)
	narrow := ingest.NewRefCache(testsupport.NewConfig(t, testsupport.WithRefCacheMaxPixels(1024)))

	wideKey, err := wide.KeyFor(source)
	if err != nil {
		t.Fatalf("KeyFor failed: %v", err)
	}
	narrowKey, err := narrow.KeyFor(source)
	if err != nil {
		t.Fatalf("KeyFor failed: %v", err)
	}
	if wideKey == narrowKey {
		t.Fatal("different pixel bounds must produce different keys")
	}
}

func TestRefCacheDownscalesLargeSources(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRefCacheMaxPixels(1024))
	cache := ingest.NewRefCache(cfg)

	source := filepath.Join(t.TempDir(), "big.png")
	testsupport.WritePNG(t, source, 128, 128)

	path, _, err := cache.Ensure(source)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	entry, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat cache entry: %v", err)
	}
	if entry.Size() == 0 {
		t.Fatal("cache entry is empty")
	}
}

func newServiceWithGeneration(t *testing.T) (*ingest.Service, *library.Store, *library.Generation) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLibrary(t, cfg)
	svc := ingest.NewService(cfg, store, nil)

	gen := &library.Generation{EndpointKey: "local:default:image", ProviderID: "local", ModelID: "default"}
	if err := store.CreateGeneration(context.Background(), gen); err != nil {
		t.Fatalf("CreateGeneration failed: %v", err)
	}
	return svc, store, gen
}

func TestPrepareInputsStagesInOrder(t *testing.T) {
	svc, store, gen := newServiceWithGeneration(t)

	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	testsupport.WritePNG(t, a, 32, 32)
	testsupport.WritePNG(t, b, 48, 48)

	ctx := context.Background()
	inputs, err := svc.PrepareInputs(ctx, gen, []ingest.InputSpec{{Path: a}, {Path: b}})
	if err != nil {
		t.Fatalf("PrepareInputs failed: %v", err)
	}
	if len(inputs) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(inputs))
	}
	for i, input := range inputs {
		if input.Position != i {
			t.Fatalf("input %d has position %d", i, input.Position)
		}
		if _, err := os.Stat(input.ThumbnailPath); err != nil {
			t.Fatalf("staged thumbnail missing: %v", err)
		}
		if _, err := os.Stat(input.RefCachePath); err != nil {
			t.Fatalf("reference cache entry missing: %v", err)
		}
	}

	persisted, err := store.InputsForGeneration(ctx, gen.ID)
	if err != nil {
		t.Fatalf("InputsForGeneration failed: %v", err)
	}
	if len(persisted) != 2 || persisted[0].SourcePath != a {
		t.Fatalf("unexpected persisted inputs: %#v", persisted)
	}
}

func TestPrepareInputsRejectsMissingSource(t *testing.T) {
	svc, _, gen := newServiceWithGeneration(t)

	_, err := svc.PrepareInputs(context.Background(), gen, []ingest.InputSpec{
		{Path: "/nonexistent/ref.png"},
	})
	if err == nil {
		t.Fatal("expected error for missing reference source")
	}
}

func TestSharedReferenceWrittenOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLibrary(t, cfg)
	svc := ingest.NewService(cfg, store, nil)

	source := filepath.Join(t.TempDir(), "shared.png")
	testsupport.WritePNG(t, source, 64, 64)

	ctx := context.Background()
	var refPaths []string
	for i := 0; i < 2; i++ {
		gen := &library.Generation{EndpointKey: "local:default:image", ProviderID: "local", ModelID: "default"}
		if err := store.CreateGeneration(ctx, gen); err != nil {
			t.Fatalf("CreateGeneration failed: %v", err)
		}
		inputs, err := svc.PrepareInputs(ctx, gen, []ingest.InputSpec{{Path: source}})
		if err != nil {
			t.Fatalf("PrepareInputs failed: %v", err)
		}
		refPaths = append(refPaths, inputs[0].RefCachePath)
	}

	if refPaths[0] != refPaths[1] {
		t.Fatalf("expected identical cache paths, got %s and %s", refPaths[0], refPaths[1])
	}
	stats, err := svc.Cache().Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Entries != 1 {
		t.Fatalf("expected one cache file, got %d", stats.Entries)
	}
}

func TestRefImagesForGenerationReplays(t *testing.T) {
	svc, _, gen := newServiceWithGeneration(t)

	good := filepath.Join(t.TempDir(), "good.png")
	testsupport.WritePNG(t, good, 32, 32)
	vanishing := filepath.Join(t.TempDir(), "vanishing.png")
	testsupport.WritePNG(t, vanishing, 32, 32)

	ctx := context.Background()
	if _, err := svc.PrepareInputs(ctx, gen, []ingest.InputSpec{{Path: good}, {Path: vanishing}}); err != nil {
		t.Fatalf("PrepareInputs failed: %v", err)
	}

	if err := os.Remove(vanishing); err != nil {
		t.Fatalf("remove source: %v", err)
	}

	paths, err := svc.RefImagesForGeneration(ctx, gen.ID)
	if err != nil {
		t.Fatalf("RefImagesForGeneration failed: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("expected the unresolvable input to be skipped, got %v", paths)
	}
}

func TestFinalizeFailureMarksGeneration(t *testing.T) {
	svc, store, gen := newServiceWithGeneration(t)

	ctx := context.Background()
	err := svc.Finalize(ctx, gen.ID, ingest.Result{Success: false, Error: "OOM"}, library.MediaImage)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	updated, _ := store.GetGeneration(ctx, gen.ID)
	if updated.Status != library.GenerationFailed {
		t.Fatalf("expected failed, got %s", updated.Status)
	}
	if !strings.Contains(updated.Error, "OOM") {
		t.Fatalf("expected provider error preserved, got %q", updated.Error)
	}
}

func TestFinalizeNoPhantomSuccess(t *testing.T) {
	svc, store, gen := newServiceWithGeneration(t)

	ctx := context.Background()
	err := svc.Finalize(ctx, gen.ID, ingest.Result{Success: true}, library.MediaImage)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	updated, _ := store.GetGeneration(ctx, gen.ID)
	if updated.Status != library.GenerationFailed {
		t.Fatalf("expected failed, got %s", updated.Status)
	}
	if !strings.Contains(updated.Error, "without output artifacts") {
		t.Fatalf("unexpected error %q", updated.Error)
	}
	records, _ := store.MediaForGeneration(ctx, gen.ID)
	if len(records) != 0 {
		t.Fatalf("expected no media records, got %d", len(records))
	}
}

func TestFinalizeFilesLocalOutputs(t *testing.T) {
	svc, store, gen := newServiceWithGeneration(t)

	artifact := filepath.Join(t.TempDir(), "out.png")
	testsupport.WritePNG(t, artifact, 80, 60)

	ctx := context.Background()
	result := ingest.Result{
		Success: true,
		Outputs: []ingest.Output{{URL: "file://" + artifact, MIME: "image/png"}},
		Metrics: ingest.Metrics{ElapsedMS: 4200, RefCacheHit: true},
	}
	if err := svc.Finalize(ctx, gen.ID, result, library.MediaImage); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	updated, _ := store.GetGeneration(ctx, gen.ID)
	if updated.Status != library.GenerationCompleted {
		t.Fatalf("expected completed, got %s (%s)", updated.Status, updated.Error)
	}
	if updated.ElapsedMS != 4200 || !updated.RefCacheHit {
		t.Fatalf("unexpected metrics: %#v", updated)
	}
	if len(updated.OutputPaths) != 1 {
		t.Fatalf("unexpected output paths %v", updated.OutputPaths)
	}

	// Artifact was moved into the date-partitioned tree.
	now := time.Now().UTC()
	wantDir := filepath.Join(now.Format("2006"), now.Format("01"), now.Format("02"))
	if !strings.Contains(updated.OutputPaths[0], wantDir) {
		t.Fatalf("expected date partition %s in %s", wantDir, updated.OutputPaths[0])
	}
	if _, err := os.Stat(artifact); !os.IsNotExist(err) {
		t.Fatal("expected source artifact to be moved away")
	}

	records, _ := store.MediaForGeneration(ctx, gen.ID)
	if len(records) != 1 {
		t.Fatalf("expected one media record, got %d", len(records))
	}
	record := records[0]
	if record.Width != 80 || record.Height != 60 {
		t.Fatalf("unexpected dimensions %dx%d", record.Width, record.Height)
	}
	if record.ThumbnailPath == "" {
		t.Fatal("expected a derived thumbnail")
	}
	if _, err := os.Stat(record.ThumbnailPath); err != nil {
		t.Fatalf("thumbnail missing: %v", err)
	}
}

func TestFinalizeDownloadsRemoteOutputs(t *testing.T) {
	svc, store, gen := newServiceWithGeneration(t)

	png := filepath.Join(t.TempDir(), "remote.png")
	testsupport.WritePNG(t, png, 20, 20)
	data, err := os.ReadFile(png)
	if err != nil {
		t.Fatalf("read png: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer server.Close()

	ctx := context.Background()
	result := ingest.Result{
		Success: true,
		Outputs: []ingest.Output{{URL: server.URL + "/artifact", MIME: "image/png"}},
	}
	if err := svc.Finalize(ctx, gen.ID, result, library.MediaImage); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	updated, _ := store.GetGeneration(ctx, gen.ID)
	if updated.Status != library.GenerationCompleted {
		t.Fatalf("expected completed, got %s (%s)", updated.Status, updated.Error)
	}
	if _, err := os.Stat(updated.OutputPaths[0]); err != nil {
		t.Fatalf("downloaded artifact missing: %v", err)
	}
	if !strings.HasSuffix(updated.OutputPaths[0], ".png") {
		t.Fatalf("expected png extension, got %s", updated.OutputPaths[0])
	}
}

func TestFinalizeMissingArtifactFailsGeneration(t *testing.T) {
	svc, store, gen := newServiceWithGeneration(t)

	ctx := context.Background()
	result := ingest.Result{
		Success: true,
		Outputs: []ingest.Output{{URL: "/nonexistent/artifact.png"}},
	}
	if err := svc.Finalize(ctx, gen.ID, result, library.MediaImage); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	updated, _ := store.GetGeneration(ctx, gen.ID)
	if updated.Status != library.GenerationFailed {
		t.Fatalf("expected failed, got %s", updated.Status)
	}
}
