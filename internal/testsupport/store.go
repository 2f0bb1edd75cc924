package testsupport

import (
	"context"
	"testing"

	"easel/internal/config"
	"easel/internal/library"
	"easel/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenLibrary opens a library.Store for tests and registers cleanup.
func MustOpenLibrary(t testing.TB, cfg *config.Config) *library.Store {
	t.Helper()

	store, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Enqueue inserts a pending work item for tests using the provided store.
func Enqueue(t testing.TB, store *queue.Store, taskType, correlationID string) *queue.Item {
	t.Helper()

	item, err := store.Enqueue(context.Background(), queue.NewItem{
		Type:          taskType,
		CorrelationID: correlationID,
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return item
}
