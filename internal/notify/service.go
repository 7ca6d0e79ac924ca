// Package notify implements the notification service: it fans alert
// notifications out to the registered channel providers, tracks every
// delivery attempt, retries failures on a timer, and manages the
// channel-specific message templates.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"vigil-go/internal/config"
	"vigil-go/internal/domain"
	"vigil-go/internal/event"
	"vigil-go/internal/metrics"
	"vigil-go/internal/notify/provider"
	"vigil-go/internal/store"
)

// Service coordinates providers, delivery persistence, and retries.
type Service struct {
	cfg       config.NotificationConfig
	notifRepo store.NotificationRepository
	tmplRepo  store.TemplateRepository
	alertRepo store.AlertRepository
	bus       *event.Bus
	logger    *slog.Logger

	cache *templateCache

	mu        sync.RWMutex
	providers map[domain.NotificationChannel]provider.Provider

	// Background loop lifecycle.
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewService creates a notification service with no providers registered.
func NewService(
	cfg config.NotificationConfig,
	notifRepo store.NotificationRepository,
	tmplRepo store.TemplateRepository,
	alertRepo store.AlertRepository,
	bus *event.Bus,
	logger *slog.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		notifRepo: notifRepo,
		tmplRepo:  tmplRepo,
		alertRepo: alertRepo,
		bus:       bus,
		logger:    logger,
		cache:     newTemplateCache(cfg.TemplateCacheSize),
		providers: make(map[domain.NotificationChannel]provider.Provider),
	}
}

// RegisterProvider adds or replaces the provider for its channel.
func (s *Service) RegisterProvider(p provider.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ChannelType()] = p
	s.logger.Info("notification provider registered", "channel", p.ChannelType())
}

// providerFor returns the registered provider for a channel.
func (s *Service) providerFor(channel domain.NotificationChannel) (provider.Provider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[channel]
	return p, ok
}

// ValidateProviders checks every registered provider's configuration and
// returns the failures by channel.
func (s *Service) ValidateProviders() map[domain.NotificationChannel]error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	failures := make(map[domain.NotificationChannel]error)
	for channel, p := range s.providers {
		if err := p.ValidateConfig(); err != nil {
			failures[channel] = err
		}
	}
	return failures
}

// SendNotification delivers one alert to every channel-recipient pair and
// records each attempt. Channels with no registered provider are skipped with
// a warning; a missing template fails the delivery record instead.
func (s *Service) SendNotification(ctx context.Context, alert *domain.Alert, channels []domain.NotificationChannel, recipients []string) ([]*domain.NotificationDelivery, error) {
	var deliveries []*domain.NotificationDelivery

	for _, channel := range channels {
		p, ok := s.providerFor(channel)
		if !ok {
			s.logger.Warn("no provider registered for channel, skipping",
				"channel", channel,
				"alert_id", alert.ID,
			)
			continue
		}

		for _, recipient := range recipients {
			delivery, err := s.deliver(ctx, p, alert, channel, recipient)
			if err != nil {
				return deliveries, err
			}
			deliveries = append(deliveries, delivery)
		}
	}
	return deliveries, nil
}

// deliver performs one provider send with full delivery bookkeeping.
func (s *Service) deliver(ctx context.Context, p provider.Provider, alert *domain.Alert, channel domain.NotificationChannel, recipient string) (*domain.NotificationDelivery, error) {
	delivery := &domain.NotificationDelivery{
		ID:        uuid.New().String(),
		AlertID:   alert.ID,
		Channel:   channel,
		Recipient: recipient,
		Status:    domain.DeliveryPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.notifRepo.SaveDelivery(ctx, delivery); err != nil {
		return nil, fmt.Errorf("failed to save delivery record: %w", err)
	}

	tmpl, err := s.TemplateFor(ctx, channel, alert.Type)
	if err != nil {
		delivery.MarkFailed(fmt.Sprintf("no template found for channel %s and type %s", channel, alert.Type))
		s.finishDelivery(ctx, delivery, event.DeliveryFailed)
		return delivery, nil
	}

	result := s.send(ctx, p, alert, recipient, tmpl)
	if result.Success {
		delivery.MarkDelivered(deliveredAt(result))
		s.finishDelivery(ctx, delivery, event.DeliverySuccess)
	} else {
		delivery.MarkFailed(result.Error)
		s.finishDelivery(ctx, delivery, event.DeliveryFailed)
	}
	return delivery, nil
}

// send runs one provider call under the configured timeout.
func (s *Service) send(ctx context.Context, p provider.Provider, alert *domain.Alert, recipient string, tmpl *domain.NotificationTemplate) domain.NotificationResult {
	timer := prometheus.NewTimer(metrics.DeliveryLatency.WithLabelValues(string(p.ChannelType())))
	defer timer.ObserveDuration()

	timeout := s.cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return p.Send(sendCtx, alert, recipient, tmpl)
}

// finishDelivery persists the delivery outcome and publishes its event.
func (s *Service) finishDelivery(ctx context.Context, delivery *domain.NotificationDelivery, evtType event.Type) {
	if err := s.notifRepo.UpdateDelivery(ctx, delivery); err != nil {
		s.logger.Error("failed to update delivery record",
			"delivery_id", delivery.ID,
			"error", err,
		)
	}

	result := "success"
	if delivery.Status == domain.DeliveryFailed {
		result = "failure"
		s.logger.Warn("notification delivery failed",
			"delivery_id", delivery.ID,
			"channel", delivery.Channel,
			"error", delivery.Error,
		)
	}
	metrics.NotificationsSentTotal.WithLabelValues(string(delivery.Channel), result).Inc()
	s.bus.Publish(event.Event{Type: evtType, Delivery: delivery})
}

func deliveredAt(result domain.NotificationResult) time.Time {
	if result.DeliveredAt != nil {
		return *result.DeliveredAt
	}
	return time.Now().UTC()
}

// SendBulkNotifications processes requests in batches. Requests within a
// batch run concurrently; batches run one after another to bound load on the
// providers.
func (s *Service) SendBulkNotifications(ctx context.Context, requests []domain.NotificationRequest) error {
	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	for start := 0; start < len(requests); start += batchSize {
		end := start + batchSize
		if end > len(requests) {
			end = len(requests)
		}

		var wg sync.WaitGroup
		for _, req := range requests[start:end] {
			if req.Alert == nil {
				continue
			}
			wg.Add(1)
			go func(req domain.NotificationRequest) {
				defer wg.Done()
				if _, err := s.SendNotification(ctx, req.Alert, req.Channels, req.Recipients); err != nil {
					s.logger.Error("bulk notification failed",
						"alert_id", req.Alert.ID,
						"error", err,
					)
				}
			}(req)
		}
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Start launches the retry loop. Destroy stops it.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.retryLoop(loopCtx)
	}()
}

// retryLoop periodically retries failed deliveries that have attempts left.
func (s *Service) retryLoop(ctx context.Context) {
	delay := s.cfg.RetryDelay
	if delay <= 0 {
		delay = time.Minute
	}
	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	s.logger.Info("starting notification retry loop", "interval", delay)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping notification retry loop")
			return
		case <-ticker.C:
			s.RetryFailedDeliveries(ctx)
		}
	}
}

// RetryFailedDeliveries performs one retry pass over failed deliveries with
// retries remaining. Every attempt, successful or not, consumes one retry.
func (s *Service) RetryFailedDeliveries(ctx context.Context) {
	failed, err := s.notifRepo.GetFailedDeliveries(ctx, s.cfg.MaxRetries)
	if err != nil {
		s.logger.Error("failed to load deliveries for retry", "error", err)
		return
	}

	for _, delivery := range failed {
		s.retryDelivery(ctx, delivery)
	}
}

// retryDelivery re-attempts one failed delivery.
func (s *Service) retryDelivery(ctx context.Context, delivery *domain.NotificationDelivery) {
	delivery.RetryCount++

	alert, err := s.alertRepo.GetByID(ctx, delivery.AlertID)
	if err != nil {
		delivery.MarkFailed(fmt.Sprintf("alert lookup failed: %v", err))
		s.recordRetryOutcome(ctx, delivery, false)
		return
	}

	p, ok := s.providerFor(delivery.Channel)
	if !ok {
		delivery.MarkFailed(fmt.Sprintf("no provider registered for channel %s", delivery.Channel))
		s.recordRetryOutcome(ctx, delivery, false)
		return
	}

	tmpl, err := s.TemplateFor(ctx, delivery.Channel, alert.Type)
	if err != nil {
		delivery.MarkFailed(fmt.Sprintf("no template found for channel %s and type %s", delivery.Channel, alert.Type))
		s.recordRetryOutcome(ctx, delivery, false)
		return
	}

	result := s.send(ctx, p, alert, delivery.Recipient, tmpl)
	if result.Success {
		delivery.MarkDelivered(deliveredAt(result))
		s.recordRetryOutcome(ctx, delivery, true)
		return
	}
	delivery.MarkFailed(result.Error)
	s.recordRetryOutcome(ctx, delivery, false)
}

// recordRetryOutcome persists a retry attempt and publishes the matching
// events, including exhaustion when the last retry fails.
func (s *Service) recordRetryOutcome(ctx context.Context, delivery *domain.NotificationDelivery, success bool) {
	if err := s.notifRepo.UpdateDelivery(ctx, delivery); err != nil {
		s.logger.Error("failed to update delivery after retry",
			"delivery_id", delivery.ID,
			"error", err,
		)
	}

	if success {
		metrics.DeliveryRetriesTotal.WithLabelValues("success").Inc()
		s.logger.Info("delivery retry succeeded",
			"delivery_id", delivery.ID,
			"retry_count", delivery.RetryCount,
		)
		s.bus.Publish(event.Event{Type: event.DeliveryRetrySuccess, Delivery: delivery})
		return
	}

	metrics.DeliveryRetriesTotal.WithLabelValues("failure").Inc()
	s.bus.Publish(event.Event{Type: event.DeliveryRetryFailed, Delivery: delivery})

	if delivery.RetryCount >= s.cfg.MaxRetries {
		metrics.DeliveriesExhaustedTotal.Inc()
		s.logger.Error("delivery retries exhausted",
			"delivery_id", delivery.ID,
			"channel", delivery.Channel,
			"retry_count", delivery.RetryCount,
		)
		s.bus.Publish(event.Event{Type: event.DeliveryExhausted, Delivery: delivery})
	}
}

// TemplateFor returns the template for a channel and alert type, through the
// LRU cache.
func (s *Service) TemplateFor(ctx context.Context, channel domain.NotificationChannel, alertType domain.AlertRuleType) (*domain.NotificationTemplate, error) {
	key := cacheKey(channel, alertType)
	if tmpl, ok := s.cache.get(key); ok {
		return tmpl, nil
	}

	tmpl, err := s.tmplRepo.GetByChannelAndType(ctx, channel, alertType)
	if err != nil {
		return nil, err
	}
	s.cache.put(key, tmpl)
	return tmpl, nil
}

// CreateTemplate stores a new template.
func (s *Service) CreateTemplate(ctx context.Context, tmpl *domain.NotificationTemplate) error {
	if tmpl.ID == "" {
		tmpl.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now

	if err := s.tmplRepo.Save(ctx, tmpl); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	s.cache.remove(cacheKey(tmpl.Channel, tmpl.AlertType))
	s.logger.Info("notification template created",
		"template_id", tmpl.ID,
		"channel", tmpl.Channel,
		"alert_type", tmpl.AlertType,
	)
	return nil
}

// UpdateTemplate stores changes to an existing template and invalidates its
// cache entry.
func (s *Service) UpdateTemplate(ctx context.Context, tmpl *domain.NotificationTemplate) error {
	existing, err := s.tmplRepo.GetByID(ctx, tmpl.ID)
	if err != nil {
		return err
	}
	tmpl.CreatedAt = existing.CreatedAt
	tmpl.UpdatedAt = time.Now().UTC()

	if err := s.tmplRepo.Update(ctx, tmpl); err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	// Invalidate both the old and new slots in case the channel or type moved.
	s.cache.remove(cacheKey(existing.Channel, existing.AlertType))
	s.cache.remove(cacheKey(tmpl.Channel, tmpl.AlertType))
	return nil
}

// GetTemplate retrieves a template by ID.
func (s *Service) GetTemplate(ctx context.Context, id string) (*domain.NotificationTemplate, error) {
	return s.tmplRepo.GetByID(ctx, id)
}

// DeleteTemplate removes a template and invalidates its cache entry.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	existing, err := s.tmplRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.tmplRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.remove(cacheKey(existing.Channel, existing.AlertType))
	return nil
}

// GetDeliveries returns the delivery records for an alert.
func (s *Service) GetDeliveries(ctx context.Context, alertID string) ([]*domain.NotificationDelivery, error) {
	return s.notifRepo.GetDeliveries(ctx, alertID)
}

// Destroy stops the retry loop, waits for in-flight work, and drops the
// template cache. The service must not be used afterwards.
func (s *Service) Destroy() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.started = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.cache.purge()
	s.logger.Info("notification service destroyed")
}
