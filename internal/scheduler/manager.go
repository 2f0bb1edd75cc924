package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"easel/internal/config"
	"easel/internal/logging"
	"easel/internal/notifications"
	"easel/internal/queue"
)

// Task type prefixes shared with the generation service.
const (
	LocalTaskPrefix  = "generation.local."
	RemoteTaskPrefix = "generation.remote."
)

// Handler executes one claimed work item.
type Handler interface {
	Execute(ctx context.Context, item *queue.Item) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, item *queue.Item) error

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, item *queue.Item) error {
	return f(ctx, item)
}

// Manager coordinates dispatch of pending work items to task handlers.
type Manager struct {
	cfg    *config.Config
	store  *queue.Store
	bus    *notifications.Bus
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string]Handler
	limits   map[string]int
	active   map[int64]string
	perType  map[string]int
	running  bool
	cancel   context.CancelFunc

	wg        sync.WaitGroup
	handlerWG sync.WaitGroup
	kick      chan struct{}
}

// NewManager constructs a scheduler over the given work store.
func NewManager(cfg *config.Config, store *queue.Store, bus *notifications.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	limits := make(map[string]int, len(cfg.Queue.TypeOverrides))
	for taskType, limit := range cfg.Queue.TypeOverrides {
		if limit > 0 {
			limits[taskType] = limit
		}
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		bus:      bus,
		logger:   logging.NewComponentLogger(logger, "scheduler"),
		handlers: make(map[string]Handler),
		limits:   limits,
		active:   make(map[int64]string),
		perType:  make(map[string]int),
		kick:     make(chan struct{}, 1),
	}
}

// Register installs the handler for a task type, replacing any previous one.
func (m *Manager) Register(taskType string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[taskType] = handler
}

// SetConcurrencyLimit overrides the dispatch limit for a task type and
// re-kicks dispatch so waiting items can take advantage of a raised limit.
func (m *Manager) SetConcurrencyLimit(taskType string, limit int) {
	if limit < 1 {
		limit = 1
	}
	m.mu.Lock()
	m.limits[taskType] = limit
	m.mu.Unlock()
	m.wake()
}

// Enqueue persists a pending item and signals the dispatcher.
func (m *Manager) Enqueue(ctx context.Context, req queue.NewItem) (*queue.Item, error) {
	item, err := m.store.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}
	m.publishQueueUpdated(ctx)
	m.wake()
	return item, nil
}

// Cancel requests cancellation of a work item. Only pending items are
// cancellable; the returned bool reports whether the transition applied.
func (m *Manager) Cancel(ctx context.Context, id int64) (bool, error) {
	applied, err := m.store.Cancel(ctx, id)
	if err != nil {
		return false, err
	}
	if applied {
		m.publishQueueUpdated(ctx)
	}
	return applied, nil
}

// CancelByCorrelation cancels every pending item sharing the correlation id
// and reports how many transitions applied.
func (m *Manager) CancelByCorrelation(ctx context.Context, correlationID string) (int, error) {
	items, err := m.store.PendingByCorrelation(ctx, correlationID)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, item := range items {
		applied, err := m.store.Cancel(ctx, item.ID)
		if err != nil {
			return cancelled, err
		}
		if applied {
			cancelled++
		}
	}
	if cancelled > 0 {
		m.publishQueueUpdated(ctx)
	}
	return cancelled, nil
}

// PendingByCorrelation exposes the store's correlation lookup.
func (m *Manager) PendingByCorrelation(ctx context.Context, correlationID string) ([]*queue.Item, error) {
	return m.store.PendingByCorrelation(ctx, correlationID)
}

// ActiveCount reports how many handlers are currently running.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Start launches the dispatch loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.sweepLoop(runCtx)
	m.wake()
	return nil
}

// Stop halts dispatch and waits for the sweep loop and all running handlers.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.handlerWG.Wait()
}

func (m *Manager) wake() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

func (m *Manager) limitFor(taskType string) int {
	if limit, ok := m.limits[taskType]; ok {
		return limit
	}
	switch {
	case strings.HasPrefix(taskType, LocalTaskPrefix):
		if m.cfg.Queue.LocalConcurrency > 0 {
			return m.cfg.Queue.LocalConcurrency
		}
	case strings.HasPrefix(taskType, RemoteTaskPrefix):
		if m.cfg.Queue.RemoteConcurrency > 0 {
			return m.cfg.Queue.RemoteConcurrency
		}
	}
	return 1
}

func (m *Manager) publishQueueUpdated(ctx context.Context) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(ctx, notifications.EventQueueUpdated, nil)
}
