package event

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var got []string
	bus.Subscribe("a", func(_ context.Context, e Event) {
		got = append(got, e.Topic)
	})
	bus.Subscribe("a", func(_ context.Context, e Event) {
		got = append(got, e.Topic+"-2")
	})
	bus.Subscribe("b", func(_ context.Context, _ Event) {
		t.Error("handler for topic b invoked for topic a")
	})

	bus.Publish(context.Background(), Event{Topic: "a", Payload: 42})

	if len(got) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(got))
	}
}

func TestPublishSetsTimestamp(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var received Event
	bus.Subscribe("t", func(_ context.Context, e Event) { received = e })
	bus.Publish(context.Background(), Event{Topic: "t"})

	if received.Timestamp.IsZero() {
		t.Error("published event has zero timestamp")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zap.NewNop())

	calls := 0
	unsubscribe := bus.Subscribe("t", func(_ context.Context, _ Event) { calls++ })

	bus.Publish(context.Background(), Event{Topic: "t"})
	unsubscribe()
	bus.Publish(context.Background(), Event{Topic: "t"})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := NewBus(zap.NewNop())

	bus.Subscribe("t", func(_ context.Context, _ Event) { panic("boom") })
	delivered := false
	bus.Subscribe("t", func(_ context.Context, _ Event) { delivered = true })

	bus.Publish(context.Background(), Event{Topic: "t"})

	if !delivered {
		t.Error("panic in one handler suppressed delivery to the next")
	}
}
