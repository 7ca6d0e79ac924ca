package event

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"vigil-go/internal/domain"
)

func testBus() *Bus {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewBus(logger)
}

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	bus := testBus()
	defer bus.Close()

	ch := bus.Subscribe(AlertCreated)
	alert := &domain.Alert{ID: "alert-1"}
	bus.Publish(Event{Type: AlertCreated, Alert: alert})

	select {
	case evt := <-ch:
		if evt.Type != AlertCreated {
			t.Errorf("Type = %v, want %v", evt.Type, AlertCreated)
		}
		if evt.Alert == nil || evt.Alert.ID != "alert-1" {
			t.Error("event should carry the published alert")
		}
		if evt.At.IsZero() {
			t.Error("At should be stamped on publish")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_SubscriberOnlyReceivesSubscribedTypes(t *testing.T) {
	bus := testBus()
	defer bus.Close()

	ch := bus.Subscribe(AlertResolved)
	bus.Publish(Event{Type: AlertCreated, Alert: &domain.Alert{ID: "a"}})
	bus.Publish(Event{Type: AlertResolved, Alert: &domain.Alert{ID: "b"}})

	evt := <-ch
	if evt.Type != AlertResolved {
		t.Errorf("Type = %v, want %v", evt.Type, AlertResolved)
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected extra event %v", extra.Type)
	default:
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := testBus()
	defer bus.Close()

	ch1 := bus.Subscribe(AlertCreated)
	ch2 := bus.Subscribe(AlertCreated)
	bus.Publish(Event{Type: AlertCreated, Alert: &domain.Alert{ID: "a"}})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBus_FullSubscriberDropsEvents(t *testing.T) {
	bus := testBus()
	defer bus.Close()

	ch := bus.Subscribe(AlertCreated)
	// Overfill the buffer; publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufSize+10; i++ {
			bus.Publish(Event{Type: AlertCreated, Alert: &domain.Alert{ID: "a"}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if len(ch) != subscriberBufSize {
		t.Errorf("buffered events = %d, want %d", len(ch), subscriberBufSize)
	}
}

func TestBus_CloseClosesChannels(t *testing.T) {
	bus := testBus()
	ch := bus.Subscribe(AlertCreated, AlertResolved)
	bus.Close()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after bus Close")
	}

	// Publishing after close is a no-op, not a panic.
	bus.Publish(Event{Type: AlertCreated})
}

func TestBus_SubscribeAfterClose(t *testing.T) {
	bus := testBus()
	bus.Close()

	ch := bus.Subscribe(AlertCreated)
	if _, ok := <-ch; ok {
		t.Error("subscribe after close should return a closed channel")
	}
}
