package notifications

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"easel/internal/logging"
)

// Event enumerates the message kinds carried by the bus.
type Event string

const (
	EventProgress       Event = "progress"
	EventResult         Event = "result"
	EventQueueUpdated   Event = "queue_updated"
	EventCatalogUpdated Event = "catalog_updated"
)

// Payload carries event attributes as loosely typed key/value pairs.
type Payload map[string]any

// Well-known payload keys shared between publishers and subscribers.
const (
	KeyGenerationID = "generationId"
	KeyEndpointKey  = "endpointKey"
	KeyStatus       = "status"
	KeyPrompt       = "prompt"
	KeyError        = "error"
	KeyPhase        = "phase"
	KeyStep         = "step"
	KeyTotalSteps   = "totalSteps"
	KeyOutputs      = "outputs"
	KeyElapsedMS    = "elapsedMs"
)

// Message is one delivered event.
type Message struct {
	Event   Event
	Payload Payload
	At      time.Time
}

// Bus distributes events to subscribers without blocking publishers.
type Bus struct {
	mu          sync.Mutex
	subscribers map[uint64]*Subscription
	nextID      uint64
	logger      *slog.Logger
}

// NewBus builds an event bus. A nil logger disables drop logging.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bus{
		subscribers: make(map[uint64]*Subscription),
		logger:      logger.With(logging.String(logging.FieldComponent, "notifications")),
	}
}

// Subscribe registers a subscriber with the given channel capacity. A
// non-positive buffer gets a small default so publishers stay non-blocking.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &Subscription{
		bus: b,
		ch:  make(chan Message, buffer),
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subscribers[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Publish delivers the event to every current subscriber. Subscribers with a
// full channel drop the event; the publisher never waits.
func (b *Bus) Publish(ctx context.Context, event Event, payload Payload) {
	if b == nil {
		return
	}
	message := Message{Event: event, Payload: payload, At: time.Now().UTC()}

	// Sends are non-blocking, so holding the lock keeps Close from racing a
	// send into a closed channel.
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- message:
		default:
			dropped := sub.dropped.Add(1)
			if dropped == 1 || dropped%100 == 0 {
				b.logger.WarnContext(ctx, "subscriber falling behind, dropping events",
					logging.String(logging.FieldEventType, string(event)),
					logging.Int64("dropped_total", dropped))
			}
		}
	}
}

// Close unregisters every subscription and closes its channel. Later
// Publish calls find no subscribers; a subscriber's own Close stays a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.subscribers = make(map[uint64]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.once.Do(func() { close(sub.ch) })
	}
}

// SubscriberCount reports the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Subscription is one subscriber's ordered event stream.
type Subscription struct {
	id      uint64
	bus     *Bus
	ch      chan Message
	dropped atomic.Int64
	once    sync.Once
}

// Events returns the channel delivering this subscription's messages.
func (s *Subscription) Events() <-chan Message {
	return s.ch
}

// Dropped reports how many events were discarded because the channel was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s.id)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}
