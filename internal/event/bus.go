// Package event provides the in-process publish/subscribe channel for alert
// lifecycle and delivery events. The alert service publishes; zero or more
// consumers subscribe asynchronously. Publishing never blocks: a subscriber
// that falls behind drops events rather than stalling the publisher.
package event

import (
	"log/slog"
	"sync"
	"time"

	"vigil-go/internal/domain"
	"vigil-go/internal/metrics"
)

// Type identifies a lifecycle or delivery event.
type Type string

const (
	AlertCreated      Type = "alertCreated"
	AlertAcknowledged Type = "alertAcknowledged"
	AlertResolved     Type = "alertResolved"
	AlertSuppressed   Type = "alertSuppressed"
	AlertEscalated    Type = "alertEscalated"
	FeedbackReceived  Type = "feedbackReceived"

	DeliverySuccess      Type = "deliverySuccess"
	DeliveryFailed       Type = "deliveryFailed"
	DeliveryRetrySuccess Type = "deliveryRetrySuccess"
	DeliveryRetryFailed  Type = "deliveryRetryFailed"
	DeliveryExhausted    Type = "deliveryExhausted"
)

// Event is the envelope published on the bus. Exactly one of the payload
// fields is set, depending on the event type.
type Event struct {
	Type     Type                         `json:"type"`
	Alert    *domain.Alert                `json:"alert,omitempty"`
	Delivery *domain.NotificationDelivery `json:"delivery,omitempty"`
	Feedback *domain.AlertFeedback        `json:"feedback,omitempty"`
	At       time.Time                    `json:"at"`
}

// subscriberBufSize is the per-subscriber channel depth before events drop.
const subscriberBufSize = 64

// Bus is a typed in-process event bus. Safe for concurrent use.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[Type][]chan Event
	closed bool
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logger,
		subs:   make(map[Type][]chan Event),
	}
}

// Subscribe registers interest in the given event types and returns the
// channel events are delivered on. The channel is closed when the bus closes.
func (b *Bus) Subscribe(types ...Type) <-chan Event {
	ch := make(chan Event, subscriberBufSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	for _, t := range types {
		b.subs[t] = append(b.subs[t], ch)
	}
	return ch
}

// Publish delivers the event to every subscriber of its type. Subscribers
// whose buffer is full miss the event; the drop is counted and logged.
func (b *Bus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	metrics.EventsPublishedTotal.WithLabelValues(string(evt.Type)).Inc()

	for _, ch := range b.subs[evt.Type] {
		select {
		case ch <- evt:
		default:
			metrics.EventsDroppedTotal.WithLabelValues(string(evt.Type)).Inc()
			b.logger.Warn("event dropped, subscriber too slow", "event_type", evt.Type)
		}
	}
}

// Close shuts the bus down and closes all subscriber channels. Publishing
// after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true

	seen := make(map[chan Event]struct{})
	for _, chans := range b.subs {
		for _, ch := range chans {
			if _, ok := seen[ch]; ok {
				continue
			}
			seen[ch] = struct{}{}
			close(ch)
		}
	}
	b.subs = nil
}
