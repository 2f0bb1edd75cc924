package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"easel/internal/logging"
	"easel/internal/queue"
	"easel/internal/services"
)

// resweepInterval bounds how long externally enqueued work can sit unnoticed
// when no in-process signal arrives.
const resweepInterval = 5 * time.Second

func (m *Manager) sweepLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(resweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.kick:
		case <-ticker.C:
		}
		m.sweep(ctx)
	}
}

func (m *Manager) sweep(ctx context.Context) {
	pending, err := m.store.ListPending(ctx)
	if err != nil {
		m.logger.Error("failed to list pending work",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_fetch_failed"))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range pending {
		if _, claimed := m.active[item.ID]; claimed {
			continue
		}
		if m.perType[item.Type] >= m.limitFor(item.Type) {
			continue
		}

		handler, ok := m.handlers[item.Type]
		if !ok {
			m.failUnhandled(ctx, item)
			continue
		}

		applied, err := m.store.MarkProcessing(ctx, item.ID)
		if err != nil {
			m.logger.Error("failed to claim work item",
				logging.Error(err),
				logging.Int64(logging.FieldWorkID, item.ID))
			continue
		}
		if !applied {
			continue
		}

		m.active[item.ID] = item.Type
		m.perType[item.Type]++
		m.handlerWG.Add(1)
		go m.runHandler(ctx, handler, item)
	}
}

func (m *Manager) failUnhandled(ctx context.Context, item *queue.Item) {
	err := services.Wrap(services.ErrConfiguration, "scheduler", "dispatch",
		fmt.Sprintf("no handler registered for task type %q", item.Type), nil)
	m.logger.Error("failing work item without handler",
		logging.Error(err),
		logging.Int64(logging.FieldWorkID, item.ID),
		logging.String(logging.FieldTaskType, item.Type))
	if markErr := m.store.MarkTerminal(ctx, item.ID, queue.StatusFailed, err.Error()); markErr != nil {
		m.logger.Error("failed to persist missing handler failure", logging.Error(markErr))
	}
	m.publishQueueUpdated(ctx)
}

func (m *Manager) runHandler(ctx context.Context, handler Handler, item *queue.Item) {
	defer m.handlerWG.Done()

	handlerCtx := services.WithWorkID(ctx, item.ID)
	handlerCtx = services.WithTaskType(handlerCtx, item.Type)
	logger := m.logger.With(
		logging.Int64(logging.FieldWorkID, item.ID),
		logging.String(logging.FieldTaskType, item.Type))

	start := time.Now()
	logger.Info("work item started", logging.String(logging.FieldEventType, "work_start"))

	err := invoke(handlerCtx, handler, item)

	// A shutdown mid-handler leaves the item in processing; the restart
	// recovery sweep converts it to failed/interrupted.
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logger.Debug("work item interrupted by shutdown")
		m.release(item)
		return
	}

	status := queue.StatusCompleted
	message := ""
	if err != nil {
		status = queue.StatusFailed
		message = err.Error()
		logger.Error("work item failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "work_failed"),
			logging.Duration("work_duration", time.Since(start)))
	} else {
		logger.Info("work item completed",
			logging.String(logging.FieldEventType, "work_complete"),
			logging.Duration("work_duration", time.Since(start)))
	}

	// Persist with a fresh context so a shutdown racing the handler's own
	// completion still records the outcome.
	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if markErr := m.store.MarkTerminal(persistCtx, item.ID, status, message); markErr != nil {
		logger.Error("failed to persist work outcome", logging.Error(markErr))
	}

	m.release(item)
	m.publishQueueUpdated(persistCtx)
	m.wake()
}

func (m *Manager) release(item *queue.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, item.ID)
	if m.perType[item.Type] > 0 {
		m.perType[item.Type]--
	}
}

func invoke(ctx context.Context, handler Handler, item *queue.Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.Execute(ctx, item)
}
