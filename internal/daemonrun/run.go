// Package daemonrun boots the easel daemon: single-instance locking,
// logging, store recovery, and the wiring between catalog, scheduler,
// ingestion, and the generation service.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"easel/internal/catalog"
	"easel/internal/config"
	"easel/internal/deps"
	"easel/internal/generation"
	"easel/internal/ingest"
	"easel/internal/library"
	"easel/internal/logging"
	"easel/internal/notifications"
	"easel/internal/queue"
	"easel/internal/scheduler"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the easel daemon runtime loop and blocks until the context is
// cancelled or a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	lock := flock.New(filepath.Join(cfg.Paths.StateDir, "easel.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another easel daemon is already running")
	}
	defer lock.Unlock()

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("easel-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:            opts.LogLevel,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update easel.log link: %v\n", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "easel.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logDependencySnapshot(logger, cfg)

	workStore, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer workStore.Close()

	libStore, err := library.Open(cfg)
	if err != nil {
		logger.Error("open library store", logging.Error(err))
		return err
	}
	defer libStore.Close()

	// Work left over from an unclean shutdown is failed explicitly before
	// the scheduler starts claiming items.
	swept, err := workStore.MarkInterrupted(signalCtx)
	if err != nil {
		return fmt.Errorf("recover interrupted work: %w", err)
	}
	if swept > 0 {
		logger.Warn("recovered interrupted work items", logging.Int64("count", swept))
	}

	bus := notifications.NewBus(logger)
	defer bus.Close()

	cat := catalog.New(cfg, bus, logger)
	if _, err := cat.Refresh(signalCtx); err != nil {
		logger.Error("build endpoint catalog", logging.Error(err))
		return err
	}

	manager := scheduler.NewManager(cfg, workStore, bus, logger)
	ingestSvc := ingest.NewService(cfg, libStore, logger)
	service := generation.NewService(cfg, libStore, cat, manager, ingestSvc, bus, logger)
	service.RegisterHandlers(manager)

	bridge := notifications.StartBridge(bus, notifications.NewPusher(cfg), cfg.Notifications, logger)
	if bridge != nil {
		defer bridge.Close()
	}

	if err := manager.Start(signalCtx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	logger.Info("easel daemon started",
		logging.String("run_id", runID),
		logging.String("state_dir", cfg.Paths.StateDir))

	<-signalCtx.Done()
	logger.Info("easel daemon shutting down")
	manager.Stop()
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "easel.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	args := logging.Args(
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("ntfy_topic_present", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
	for _, status := range deps.CheckAll(cfg) {
		key := strings.ReplaceAll(strings.ToLower(status.Name), " ", "_")
		args = append(args,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command))
		if !status.Available && !status.Optional {
			logger.Warn("required dependency missing",
				logging.String("dependency", status.Name),
				logging.String("detail", status.Detail))
		}
	}
	logger.Info("dependency snapshot", args...)
}
