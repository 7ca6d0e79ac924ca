package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"vigil-go/internal/domain"
)

// WebhookProvider POSTs alert notifications as JSON to arbitrary HTTP
// endpoints. The recipient is the target URL.
type WebhookProvider struct {
	client *http.Client
}

// NewWebhookProvider creates a webhook provider.
func NewWebhookProvider() *WebhookProvider {
	return &WebhookProvider{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ChannelType returns the webhook channel.
func (p *WebhookProvider) ChannelType() domain.NotificationChannel {
	return domain.ChannelWebhook
}

// ValidateConfig always succeeds; webhook targets are per-recipient.
func (p *WebhookProvider) ValidateConfig() error {
	return nil
}

// webhookPayload is the JSON body posted to the target endpoint. The full
// alert rides along so receivers can build their own views.
type webhookPayload struct {
	Subject string        `json:"subject"`
	Body    string        `json:"body"`
	Alert   *domain.Alert `json:"alert"`
	SentAt  time.Time     `json:"sent_at"`
}

// Send posts the rendered notification to the recipient URL.
func (p *WebhookProvider) Send(ctx context.Context, alert *domain.Alert, recipient string, tmpl *domain.NotificationTemplate) domain.NotificationResult {
	if !strings.HasPrefix(recipient, "http://") && !strings.HasPrefix(recipient, "https://") {
		return failureResult(fmt.Errorf("invalid webhook url %q", recipient))
	}

	payload, err := json.Marshal(webhookPayload{
		Subject: Render(tmpl.Subject, alert),
		Body:    Render(tmpl.Body, alert),
		Alert:   alert,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return failureResult(fmt.Errorf("failed to marshal webhook payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, recipient, bytes.NewReader(payload))
	if err != nil {
		return failureResult(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "vigil-webhook/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return failureResult(fmt.Errorf("webhook request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return failureResult(fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(body)))
	}
	return successResult(uuid.New().String())
}
