package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"vigil-go/internal/config"
	"vigil-go/internal/domain"
)

// TeamsProvider sends alert notifications to Microsoft Teams as MessageCards
// posted to an incoming webhook. The recipient may be a webhook URL of its
// own; otherwise the configured default webhook is used.
type TeamsProvider struct {
	cfg    config.TeamsConfig
	client *http.Client
}

// NewTeamsProvider creates a Teams provider.
func NewTeamsProvider(cfg config.TeamsConfig) *TeamsProvider {
	return &TeamsProvider{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ChannelType returns the Teams channel.
func (p *TeamsProvider) ChannelType() domain.NotificationChannel {
	return domain.ChannelTeams
}

// ValidateConfig checks the Teams settings.
func (p *TeamsProvider) ValidateConfig() error {
	if p.cfg.WebhookURL == "" {
		return errors.New("teams webhook url is required")
	}
	return nil
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsSection struct {
	ActivityTitle string      `json:"activityTitle"`
	Text          string      `json:"text"`
	Facts         []teamsFact `json:"facts,omitempty"`
}

type teamsCard struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Sections   []teamsSection `json:"sections"`
}

// Send posts the rendered notification as a MessageCard.
func (p *TeamsProvider) Send(ctx context.Context, alert *domain.Alert, recipient string, tmpl *domain.NotificationTemplate) domain.NotificationResult {
	url := p.cfg.WebhookURL
	if strings.HasPrefix(recipient, "https://") {
		url = recipient
	}

	subject := Render(tmpl.Subject, alert)
	card := teamsCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: strings.TrimPrefix(severityColor(alert.Severity), "#"),
		Summary:    subject,
		Sections: []teamsSection{
			{
				ActivityTitle: subject,
				Text:          Render(tmpl.Body, alert),
				Facts: []teamsFact{
					{Name: "Severity", Value: string(alert.Severity)},
					{Name: "Status", Value: string(alert.Status)},
					{Name: "Triggered", Value: alert.TriggeredAt.Format(time.RFC3339)},
				},
			},
		},
	}

	payload, err := json.Marshal(card)
	if err != nil {
		return failureResult(fmt.Errorf("failed to marshal teams card: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return failureResult(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return failureResult(fmt.Errorf("teams request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return failureResult(fmt.Errorf("teams webhook returned %d: %s", resp.StatusCode, string(body)))
	}
	return successResult(uuid.New().String())
}
