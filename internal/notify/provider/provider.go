// Package provider contains the channel-specific notification providers:
// email, Slack, Microsoft Teams, in-app, and generic webhooks. Providers are
// stateless senders; retry and delivery bookkeeping live in the notify
// service above them.
package provider

import (
	"context"
	"time"

	"vigil-go/internal/domain"
)

// Provider sends alert notifications over a single channel.
type Provider interface {
	// ChannelType identifies the channel this provider serves.
	ChannelType() domain.NotificationChannel

	// Send delivers one notification to one recipient. The result carries
	// success or the provider's error string; Send itself only returns an
	// error for programming mistakes, never for delivery failures.
	Send(ctx context.Context, alert *domain.Alert, recipient string, tmpl *domain.NotificationTemplate) domain.NotificationResult

	// ValidateConfig checks that the provider is configured well enough to
	// attempt sends.
	ValidateConfig() error
}

func successResult(messageID string) domain.NotificationResult {
	now := time.Now().UTC()
	return domain.NotificationResult{
		Success:     true,
		MessageID:   messageID,
		DeliveredAt: &now,
	}
}

func failureResult(err error) domain.NotificationResult {
	return domain.NotificationResult{
		Success: false,
		Error:   err.Error(),
	}
}
