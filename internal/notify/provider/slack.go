package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"vigil-go/internal/config"
	"vigil-go/internal/domain"
)

const slackPostMessageURL = "https://slack.com/api/chat.postMessage"

// SlackProvider sends alert notifications via the Slack Web API using a bot
// token. The recipient is a channel ID or user ID.
type SlackProvider struct {
	cfg    config.SlackConfig
	client *http.Client
}

// NewSlackProvider creates a Slack provider.
func NewSlackProvider(cfg config.SlackConfig) *SlackProvider {
	return &SlackProvider{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ChannelType returns the Slack channel.
func (p *SlackProvider) ChannelType() domain.NotificationChannel {
	return domain.ChannelSlack
}

// ValidateConfig checks the Slack settings.
func (p *SlackProvider) ValidateConfig() error {
	if p.cfg.BotToken == "" {
		return errors.New("slack bot token is required")
	}
	return nil
}

type slackAttachment struct {
	Color  string `json:"color"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Footer string `json:"footer,omitempty"`
	Ts     int64  `json:"ts,omitempty"`
}

type slackMessage struct {
	Channel     string            `json:"channel"`
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Ts    string `json:"ts"`
	Error string `json:"error"`
}

// Send posts the rendered notification as a colored attachment.
func (p *SlackProvider) Send(ctx context.Context, alert *domain.Alert, recipient string, tmpl *domain.NotificationTemplate) domain.NotificationResult {
	msg := slackMessage{
		Channel: recipient,
		Text:    Render(tmpl.Subject, alert),
		Attachments: []slackAttachment{
			{
				Color:  severityColor(alert.Severity),
				Title:  Render(tmpl.Subject, alert),
				Text:   Render(tmpl.Body, alert),
				Footer: "Vigil",
				Ts:     alert.TriggeredAt.Unix(),
			},
		},
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return failureResult(fmt.Errorf("failed to marshal slack message: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, slackPostMessageURL, bytes.NewReader(payload))
	if err != nil {
		return failureResult(err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.cfg.BotToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return failureResult(fmt.Errorf("slack request failed: %w", err))
	}
	defer resp.Body.Close()

	var sr slackResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return failureResult(fmt.Errorf("failed to decode slack response: %w", err))
	}
	if !sr.OK {
		return failureResult(fmt.Errorf("slack api error: %s", sr.Error))
	}
	return successResult(sr.Ts)
}
