package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"easel/internal/providers/local"
	"easel/internal/testsupport"
)

func writeEngineScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.sh")
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write engine script: %v", err)
	}
	return path
}

func TestGenerateParsesProgressAndResult(t *testing.T) {
	script := writeEngineScript(t, `
cat > /dev/null
echo '{"type":"progress","phase":"load","step":0,"total_steps":2}'
echo '{"type":"progress","phase":"denoise","step":1,"total_steps":2}'
echo 'not json noise'
echo '{"type":"result","seed":123,"elapsed_ms":900,"prompt_cache_hit":true,"outputs":["/tmp/out.png"]}'
`)
	cfg := testsupport.NewConfig(t, testsupport.WithEngineCommand(script))
	engine, err := local.NewExecEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewExecEngine failed: %v", err)
	}

	var ticks []local.Progress
	result, err := engine.Generate(context.Background(), local.Request{Prompt: "hi", Steps: 2}, func(p local.Progress) {
		ticks = append(ticks, p)
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(ticks) != 2 {
		t.Fatalf("expected 2 progress ticks, got %d", len(ticks))
	}
	if ticks[1].Phase != "denoise" || ticks[1].Step != 1 || ticks[1].TotalSteps != 2 {
		t.Fatalf("unexpected tick %#v", ticks[1])
	}
	if result.Seed != 123 || result.ElapsedMS != 900 || !result.PromptCacheHit {
		t.Fatalf("unexpected result %#v", result)
	}
	if len(result.Outputs) != 1 || result.Outputs[0] != "/tmp/out.png" {
		t.Fatalf("unexpected outputs %v", result.Outputs)
	}
}

func TestGenerateSendsRequestOnStdin(t *testing.T) {
	captured := filepath.Join(t.TempDir(), "request.json")
	script := writeEngineScript(t, `
cat > `+captured+`
echo '{"type":"result","seed":1,"outputs":["x"]}'
`)
	cfg := testsupport.NewConfig(t, testsupport.WithEngineCommand(script))
	engine, err := local.NewExecEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewExecEngine failed: %v", err)
	}

	req := local.Request{
		Prompt:          "a red door",
		Width:           512,
		Height:          512,
		Seed:            42,
		ReferenceImages: []string{"/cache/refs/ab/abc.png"},
	}
	if _, err := engine.Generate(context.Background(), req, nil); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	data, err := os.ReadFile(captured)
	if err != nil {
		t.Fatalf("read captured request: %v", err)
	}
	for _, fragment := range []string{`"a red door"`, `"seed":42`, `/cache/refs/ab/abc.png`} {
		if !strings.Contains(string(data), fragment) {
			t.Fatalf("request missing %s: %s", fragment, data)
		}
	}
}

func TestGenerateSurfacesEngineFailure(t *testing.T) {
	script := writeEngineScript(t, `
cat > /dev/null
echo 'CUDA out of memory' >&2
exit 3
`)
	cfg := testsupport.NewConfig(t, testsupport.WithEngineCommand(script))
	engine, err := local.NewExecEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewExecEngine failed: %v", err)
	}

	_, err = engine.Generate(context.Background(), local.Request{Prompt: "x"}, nil)
	if err == nil {
		t.Fatal("expected engine failure")
	}
	if !strings.Contains(err.Error(), "CUDA out of memory") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestGenerateRequiresResultLine(t *testing.T) {
	script := writeEngineScript(t, `
cat > /dev/null
echo '{"type":"progress","phase":"load","step":0,"total_steps":1}'
`)
	cfg := testsupport.NewConfig(t, testsupport.WithEngineCommand(script))
	engine, err := local.NewExecEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewExecEngine failed: %v", err)
	}

	_, err = engine.Generate(context.Background(), local.Request{Prompt: "x"}, nil)
	if err == nil || !strings.Contains(err.Error(), "without a result line") {
		t.Fatalf("expected missing-result error, got %v", err)
	}
}

func TestNewExecEngineRequiresCommand(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithEngineCommand(" "))
	if _, err := local.NewExecEngine(cfg, nil); err == nil {
		t.Fatal("expected configuration error for empty command")
	}
}
