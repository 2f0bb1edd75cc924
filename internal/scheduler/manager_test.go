package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"easel/internal/queue"
	"easel/internal/scheduler"
	"easel/internal/testsupport"
)

func newManager(t *testing.T) (*scheduler.Manager, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manager := scheduler.NewManager(cfg, store, nil, nil)
	return manager, store
}

func waitForStatus(t *testing.T, store *queue.Store, id int64, want queue.Status) *queue.Item {
	t.Helper()
	var item *queue.Item
	require.Eventually(t, func() bool {
		var err error
		item, err = store.GetByID(context.Background(), id)
		require.NoError(t, err)
		return item != nil && item.Status == want
	}, 5*time.Second, 10*time.Millisecond, "item %d never reached %s", id, want)
	return item
}

func TestDispatchRunsRegisteredHandler(t *testing.T) {
	manager, store := newManager(t)

	var executed atomic.Int64
	manager.Register("generation.local.image", scheduler.HandlerFunc(func(ctx context.Context, item *queue.Item) error {
		executed.Add(1)
		return nil
	}))

	require.NoError(t, manager.Start(context.Background()))
	defer manager.Stop()

	item, err := manager.Enqueue(context.Background(), queue.NewItem{Type: "generation.local.image"})
	require.NoError(t, err)

	final := waitForStatus(t, store, item.ID, queue.StatusCompleted)
	assert.Equal(t, int64(1), executed.Load())
	assert.Equal(t, 1, final.Attempts)
	assert.NotNil(t, final.CompletedAt)
}

func TestHandlerErrorMarksItemFailed(t *testing.T) {
	manager, store := newManager(t)

	manager.Register("generation.remote.image", scheduler.HandlerFunc(func(ctx context.Context, item *queue.Item) error {
		return errors.New("provider unreachable")
	}))

	require.NoError(t, manager.Start(context.Background()))
	defer manager.Stop()

	item, err := manager.Enqueue(context.Background(), queue.NewItem{Type: "generation.remote.image"})
	require.NoError(t, err)

	final := waitForStatus(t, store, item.ID, queue.StatusFailed)
	assert.Contains(t, final.ErrorMessage, "provider unreachable")
}

func TestHandlerPanicIsCaptured(t *testing.T) {
	manager, store := newManager(t)

	manager.Register("generation.local.image", scheduler.HandlerFunc(func(ctx context.Context, item *queue.Item) error {
		panic("engine went sideways")
	}))

	require.NoError(t, manager.Start(context.Background()))
	defer manager.Stop()

	item, err := manager.Enqueue(context.Background(), queue.NewItem{Type: "generation.local.image"})
	require.NoError(t, err)

	final := waitForStatus(t, store, item.ID, queue.StatusFailed)
	assert.Contains(t, final.ErrorMessage, "handler panic")
	assert.Contains(t, final.ErrorMessage, "engine went sideways")
}

func TestMissingHandlerFailsImmediately(t *testing.T) {
	manager, store := newManager(t)

	require.NoError(t, manager.Start(context.Background()))
	defer manager.Stop()

	item, err := manager.Enqueue(context.Background(), queue.NewItem{Type: "generation.local.unknown"})
	require.NoError(t, err)

	final := waitForStatus(t, store, item.ID, queue.StatusFailed)
	assert.Contains(t, final.ErrorMessage, "no handler registered")
}

func TestConcurrencyLimitHoldsBackDispatch(t *testing.T) {
	manager, store := newManager(t)

	started := make(chan int64, 4)
	release := make(chan struct{})
	manager.Register("generation.local.image", scheduler.HandlerFunc(func(ctx context.Context, item *queue.Item) error {
		started <- item.ID
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))
	manager.SetConcurrencyLimit("generation.local.image", 1)

	require.NoError(t, manager.Start(context.Background()))
	defer manager.Stop()

	ctx := context.Background()
	first, err := manager.Enqueue(ctx, queue.NewItem{Type: "generation.local.image"})
	require.NoError(t, err)
	second, err := manager.Enqueue(ctx, queue.NewItem{Type: "generation.local.image"})
	require.NoError(t, err)

	select {
	case id := <-started:
		assert.Equal(t, first.ID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("first item never started")
	}

	// The second item must stay pending while the first holds the slot.
	time.Sleep(50 * time.Millisecond)
	held, err := store.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, held.Status)
	assert.Equal(t, 1, manager.ActiveCount())

	close(release)

	select {
	case id := <-started:
		assert.Equal(t, second.ID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("second item never started")
	}
	waitForStatus(t, store, second.ID, queue.StatusCompleted)
}

func TestRaisedLimitDispatchesInParallel(t *testing.T) {
	manager, _ := newManager(t)

	started := make(chan int64, 4)
	release := make(chan struct{})
	manager.Register("generation.remote.video", scheduler.HandlerFunc(func(ctx context.Context, item *queue.Item) error {
		started <- item.ID
		<-release
		return nil
	}))
	manager.SetConcurrencyLimit("generation.remote.video", 2)

	require.NoError(t, manager.Start(context.Background()))
	defer manager.Stop()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := manager.Enqueue(ctx, queue.NewItem{Type: "generation.remote.video"})
		require.NoError(t, err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of 2 items started", i)
		}
	}
	close(release)
}

func TestCancelPendingItem(t *testing.T) {
	manager, store := newManager(t)

	// Not started: enqueued items stay pending until the scheduler runs.
	ctx := context.Background()
	item, err := manager.Enqueue(ctx, queue.NewItem{Type: "generation.local.image"})
	require.NoError(t, err)

	applied, err := manager.Cancel(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, applied)

	cancelled, err := store.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCancelled, cancelled.Status)

	applied, err = manager.Cancel(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestCancelByCorrelation(t *testing.T) {
	manager, store := newManager(t)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := manager.Enqueue(ctx, queue.NewItem{
			Type:          "generation.local.image",
			CorrelationID: "gen-xyz",
		})
		require.NoError(t, err)
	}
	other, err := manager.Enqueue(ctx, queue.NewItem{
		Type:          "generation.local.image",
		CorrelationID: "gen-other",
	})
	require.NoError(t, err)

	cancelled, err := manager.CancelByCorrelation(ctx, "gen-xyz")
	require.NoError(t, err)
	assert.Equal(t, 3, cancelled)

	remaining, err := store.GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, remaining.Status)
}

func TestStopWaitsForRunningHandlers(t *testing.T) {
	manager, store := newManager(t)

	entered := make(chan struct{})
	finished := make(chan struct{})
	manager.Register("generation.local.image", scheduler.HandlerFunc(func(ctx context.Context, item *queue.Item) error {
		close(entered)
		time.Sleep(50 * time.Millisecond)
		close(finished)
		return nil
	}))

	require.NoError(t, manager.Start(context.Background()))

	item, err := manager.Enqueue(context.Background(), queue.NewItem{Type: "generation.local.image"})
	require.NoError(t, err)

	<-entered
	manager.Stop()

	select {
	case <-finished:
	default:
		t.Fatal("Stop returned before the handler finished")
	}
	waitForStatus(t, store, item.ID, queue.StatusCompleted)
}
