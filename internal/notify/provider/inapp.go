package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vigil-go/internal/config"
	"vigil-go/internal/domain"
	"vigil-go/internal/store"
)

// InAppProvider delivers notifications into the product's notification
// center: it persists a record per recipient and, when real-time updates are
// enabled, pushes it to the recipient's open websocket connections.
type InAppProvider struct {
	cfg    config.InAppConfig
	repo   store.InAppNotificationRepository
	hub    *Hub
	logger *slog.Logger

	now func() time.Time
}

// NewInAppProvider creates an in-app provider. The hub may be nil when
// real-time updates are disabled.
func NewInAppProvider(cfg config.InAppConfig, repo store.InAppNotificationRepository, hub *Hub, logger *slog.Logger) *InAppProvider {
	return &InAppProvider{
		cfg:    cfg,
		repo:   repo,
		hub:    hub,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ChannelType returns the in-app channel.
func (p *InAppProvider) ChannelType() domain.NotificationChannel {
	return domain.ChannelInApp
}

// ValidateConfig checks the in-app settings.
func (p *InAppProvider) ValidateConfig() error {
	if p.repo == nil {
		return errors.New("in-app notification repository is required")
	}
	if p.cfg.DefaultExpirationDays <= 0 {
		return errors.New("in-app default expiration must be positive")
	}
	return nil
}

// Send stores the notification for the recipient user and pushes it over
// websocket. Older notifications are evicted to honor the per-user cap.
func (p *InAppProvider) Send(ctx context.Context, alert *domain.Alert, recipient string, tmpl *domain.NotificationTemplate) domain.NotificationResult {
	now := p.now()
	n := &domain.InAppNotification{
		ID:        uuid.New().String(),
		UserID:    recipient,
		AlertID:   alert.ID,
		Title:     Render(tmpl.Subject, alert),
		Body:      Render(tmpl.Body, alert),
		Severity:  alert.Severity,
		CreatedAt: now,
		ExpiresAt: now.AddDate(0, 0, p.cfg.DefaultExpirationDays),
	}

	if err := p.enforceUserCap(ctx, recipient); err != nil {
		return failureResult(err)
	}
	if err := p.repo.Save(ctx, n); err != nil {
		return failureResult(fmt.Errorf("failed to store in-app notification: %w", err))
	}

	if p.cfg.EnableRealTimeUpdates && p.hub != nil {
		p.hub.SendToUser(recipient, "notification", n)
	}
	return successResult(n.ID)
}

// enforceUserCap evicts the recipient's oldest notifications so the new one
// fits under the configured per-user maximum.
func (p *InAppProvider) enforceUserCap(ctx context.Context, userID string) error {
	if p.cfg.MaxNotificationsPerUser <= 0 {
		return nil
	}
	count, err := p.repo.CountByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to count user notifications: %w", err)
	}
	if count < p.cfg.MaxNotificationsPerUser {
		return nil
	}

	evicted, err := p.repo.DeleteOldestForUser(ctx, userID, count-p.cfg.MaxNotificationsPerUser+1)
	if err != nil {
		return fmt.Errorf("failed to evict old notifications: %w", err)
	}
	p.logger.Debug("evicted in-app notifications over user cap",
		"user_id", userID,
		"evicted", len(evicted),
	)
	return nil
}

// StartExpirySweep removes expired notifications once an hour until the
// context is cancelled.
func (p *InAppProvider) StartExpirySweep(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	p.logger.Info("starting in-app notification expiry sweep")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("stopping in-app notification expiry sweep")
			return
		case <-ticker.C:
			p.SweepExpired(ctx)
		}
	}
}

// SweepExpired performs one expiry pass.
func (p *InAppProvider) SweepExpired(ctx context.Context) {
	removed, err := p.repo.DeleteExpired(ctx)
	if err != nil {
		p.logger.Error("in-app expiry sweep failed", "error", err)
		return
	}
	if len(removed) > 0 {
		p.logger.Info("expired in-app notifications removed", "count", len(removed))
	}
}

// ListForUser returns the recipient's stored notifications, newest first.
func (p *InAppProvider) ListForUser(ctx context.Context, userID string) ([]*domain.InAppNotification, error) {
	return p.repo.ListByUser(ctx, userID)
}

// MarkRead flags a stored notification as read.
func (p *InAppProvider) MarkRead(ctx context.Context, id string) error {
	return p.repo.MarkRead(ctx, id)
}
