// Package local adapts the configured in-process generation engine. The
// engine is an external command that reads one JSON request on stdin and
// streams JSON-lines events on stdout: progress ticks while it works and a
// single result line when it finishes.
package local

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"easel/internal/config"
	"easel/internal/logging"
	"easel/internal/services"
)

// Request is a typed local generation request.
type Request struct {
	Prompt          string   `json:"prompt"`
	Width           int      `json:"width"`
	Height          int      `json:"height"`
	Seed            int64    `json:"seed"`
	Steps           int      `json:"steps"`
	Guidance        float64  `json:"guidance"`
	Sampler         string   `json:"sampler"`
	ReferenceImages []string `json:"reference_images,omitempty"`
	DestinationPath string   `json:"destination_path"`
	UsePromptCache  bool     `json:"use_prompt_cache"`
	UseRefCache     bool     `json:"use_ref_cache"`
}

// Progress is one engine progress tick.
type Progress struct {
	Phase      string `json:"phase"`
	Step       int    `json:"step"`
	TotalSteps int    `json:"total_steps"`
}

// Result carries the engine's final metrics and artifact paths.
type Result struct {
	Seed           int64    `json:"seed"`
	ElapsedMS      int64    `json:"elapsed_ms"`
	PromptCacheHit bool     `json:"prompt_cache_hit"`
	RefCacheHit    bool     `json:"ref_cache_hit"`
	Outputs        []string `json:"outputs"`
}

// ProgressFunc receives progress ticks as the engine emits them.
type ProgressFunc func(Progress)

// Engine runs one synchronous local generation.
type Engine interface {
	Generate(ctx context.Context, req Request, progress ProgressFunc) (Result, error)
}

// event is the wire shape of one engine stdout line.
type event struct {
	Type string `json:"type"`
	Progress
	Result
}

// ExecEngine shells out to the configured engine command.
type ExecEngine struct {
	argv    []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecEngine builds the adapter from the engine section of the config.
func NewExecEngine(cfg *config.Config, logger *slog.Logger) (*ExecEngine, error) {
	argv := strings.Fields(strings.TrimSpace(cfg.Engine.Command))
	if len(argv) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "local-engine", "new",
			"engine command not configured", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.Engine.TimeoutSeconds) * time.Second
	return &ExecEngine{
		argv:    argv,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "local-engine"),
	}, nil
}

// Generate runs the engine to completion, relaying progress lines as they
// arrive. The engine must emit exactly one result line; an exit without one
// is an engine defect surfaced as an error.
func (e *ExecEngine) Generate(ctx context.Context, req Request, progress ProgressFunc) (Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode engine request: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.argv[0], e.argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("engine stdout pipe: %w", err)
	}

	start := time.Now()
	e.logger.InfoContext(ctx, "launching engine",
		logging.String("command", e.argv[0]),
		logging.Int("steps", req.Steps),
		logging.Int("reference_images", len(req.ReferenceImages)))

	if err := cmd.Start(); err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "local-engine", "generate",
			"start engine command", err)
	}

	result, gotResult, scanErr := e.consume(stdout, progress)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, services.Wrap(services.ErrTransient, "local-engine", "generate",
				fmt.Sprintf("engine timed out after %s", time.Since(start).Round(time.Second)), ctx.Err())
		}
		return Result{}, ctx.Err()
	}
	if waitErr != nil {
		return Result{}, services.Wrap(services.ErrTransient, "local-engine", "generate",
			fmt.Sprintf("engine exited: %s", tail(stderr.String())), waitErr)
	}
	if scanErr != nil {
		return Result{}, fmt.Errorf("read engine output: %w", scanErr)
	}
	if !gotResult {
		return Result{}, services.Wrap(services.ErrNoOutput, "local-engine", "generate",
			"engine exited without a result line", nil)
	}

	e.logger.InfoContext(ctx, "engine finished",
		logging.Duration("engine_duration", time.Since(start)),
		logging.Int("outputs", len(result.Outputs)))
	return result, nil
}

func (e *ExecEngine) consume(stdout io.Reader, progress ProgressFunc) (Result, bool, error) {
	var (
		result    Result
		gotResult bool
	)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var evt event
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			e.logger.Debug("ignoring unparsable engine line", logging.String("line", line))
			continue
		}
		switch evt.Type {
		case "progress":
			if progress != nil {
				progress(evt.Progress)
			}
		case "result":
			result = evt.Result
			gotResult = true
		}
	}
	return result, gotResult, scanner.Err()
}

func tail(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= 300 {
		return text
	}
	return "…" + text[len(text)-300:]
}
