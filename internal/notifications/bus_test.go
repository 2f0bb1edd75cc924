package notifications_test

import (
	"context"
	"testing"
	"time"

	"easel/internal/notifications"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	bus := notifications.NewBus(nil)
	first := bus.Subscribe(4)
	defer first.Close()
	second := bus.Subscribe(4)
	defer second.Close()

	bus.Publish(context.Background(), notifications.EventProgress, notifications.Payload{
		notifications.KeyGenerationID: "gen-1",
		notifications.KeyPhase:        "denoise",
	})

	for name, sub := range map[string]*notifications.Subscription{"first": first, "second": second} {
		select {
		case message := <-sub.Events():
			if message.Event != notifications.EventProgress {
				t.Fatalf("%s: unexpected event %s", name, message.Event)
			}
			if message.Payload[notifications.KeyGenerationID] != "gen-1" {
				t.Fatalf("%s: unexpected payload %v", name, message.Payload)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: timed out waiting for event", name)
		}
	}
}

func TestPublishOrderPerSubscriber(t *testing.T) {
	bus := notifications.NewBus(nil)
	sub := bus.Subscribe(8)
	defer sub.Close()

	ctx := context.Background()
	for step := 1; step <= 3; step++ {
		bus.Publish(ctx, notifications.EventProgress, notifications.Payload{
			notifications.KeyStep: step,
		})
	}

	for want := 1; want <= 3; want++ {
		select {
		case message := <-sub.Events():
			if got := message.Payload[notifications.KeyStep]; got != want {
				t.Fatalf("expected step %d, got %v", want, got)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := notifications.NewBus(nil)
	sub := bus.Subscribe(1)
	defer sub.Close()

	ctx := context.Background()
	bus.Publish(ctx, notifications.EventQueueUpdated, nil)
	bus.Publish(ctx, notifications.EventQueueUpdated, nil)
	bus.Publish(ctx, notifications.EventQueueUpdated, nil)

	if sub.Dropped() != 2 {
		t.Fatalf("expected 2 dropped events, got %d", sub.Dropped())
	}
	select {
	case <-sub.Events():
	case <-time.After(time.Second):
		t.Fatal("expected the first event to still be delivered")
	}
}

func TestCloseUnregistersSubscriber(t *testing.T) {
	bus := notifications.NewBus(nil)
	sub := bus.Subscribe(1)
	if bus.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}

	sub.Close()
	sub.Close()

	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
	if _, open := <-sub.Events(); open {
		t.Fatal("expected channel to be closed")
	}

	bus.Publish(context.Background(), notifications.EventQueueUpdated, nil)
}

func TestBusCloseClosesAllSubscriptions(t *testing.T) {
	bus := notifications.NewBus(nil)
	first := bus.Subscribe(1)
	second := bus.Subscribe(1)

	bus.Close()

	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
	for name, sub := range map[string]*notifications.Subscription{"first": first, "second": second} {
		if _, open := <-sub.Events(); open {
			t.Fatalf("%s: expected channel to be closed", name)
		}
	}

	// Subscriber Close after bus shutdown must not double-close the channel.
	first.Close()

	bus.Publish(context.Background(), notifications.EventQueueUpdated, nil)
}
