// Package dispatch routes alert lifecycle events to notifications. It
// subscribes to the event bus and forwards newly created and escalated
// alerts to the notification service using the severity-based routing table.
package dispatch

import (
	"context"
	"log/slog"

	"vigil-go/internal/config"
	"vigil-go/internal/domain"
	"vigil-go/internal/event"
	"vigil-go/internal/notify"
)

// Dispatcher forwards alert events to the notification service.
type Dispatcher struct {
	notifier *notify.Service
	routing  config.RoutingConfig
	bus      *event.Bus
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(notifier *notify.Service, routing config.RoutingConfig, bus *event.Bus, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		routing:  routing,
		bus:      bus,
		logger:   logger,
	}
}

// Start consumes alert events until the context is cancelled or the bus
// closes.
func (d *Dispatcher) Start(ctx context.Context) {
	events := d.bus.Subscribe(event.AlertCreated, event.AlertEscalated)

	d.logger.Info("starting alert dispatcher")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("stopping alert dispatcher")
			return
		case evt, ok := <-events:
			if !ok {
				d.logger.Info("event bus closed, stopping alert dispatcher")
				return
			}
			if evt.Alert == nil {
				continue
			}
			d.dispatch(ctx, evt.Alert)
		}
	}
}

// dispatch resolves the route for the alert's severity and sends.
func (d *Dispatcher) dispatch(ctx context.Context, alert *domain.Alert) {
	route := d.routing.ForSeverity(string(alert.Severity))

	channels := channelList(route.Channels)
	if len(channels) == 0 {
		d.logger.Warn("no channels routed for severity, dropping notification",
			"alert_id", alert.ID,
			"severity", alert.Severity,
		)
		return
	}

	recipients := d.recipients(route, alert)
	if len(recipients) == 0 {
		d.logger.Warn("no recipients for alert, dropping notification",
			"alert_id", alert.ID,
			"severity", alert.Severity,
		)
		return
	}

	deliveries, err := d.notifier.SendNotification(ctx, alert, channels, recipients)
	if err != nil {
		d.logger.Error("failed to dispatch alert notifications",
			"alert_id", alert.ID,
			"error", err,
		)
		return
	}
	d.logger.Debug("alert dispatched",
		"alert_id", alert.ID,
		"deliveries", len(deliveries),
	)
}

// recipients merges the route's configured recipients with the alert's own
// subject, so in-app notifications always reach the affected user.
func (d *Dispatcher) recipients(route config.Route, alert *domain.Alert) []string {
	recipients := make([]string, 0, len(route.Recipients)+1)
	seen := make(map[string]struct{}, len(route.Recipients)+1)

	add := func(r string) {
		if r == "" {
			return
		}
		if _, ok := seen[r]; ok {
			return
		}
		seen[r] = struct{}{}
		recipients = append(recipients, r)
	}

	for _, r := range route.Recipients {
		add(r)
	}
	add(alert.Context.UserID)
	return recipients
}

// channelList converts configured channel names, dropping unknown ones.
func channelList(names []string) []domain.NotificationChannel {
	channels := make([]domain.NotificationChannel, 0, len(names))
	for _, name := range names {
		ch := domain.NotificationChannel(name)
		if !ch.IsValid() {
			continue
		}
		channels = append(channels, ch)
	}
	return channels
}
