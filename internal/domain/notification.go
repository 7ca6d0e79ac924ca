package domain

import (
	"errors"
	"time"
)

// Notification lookup errors.
var (
	ErrTemplateNotFound = errors.New("notification template not found")
	ErrDeliveryNotFound = errors.New("notification delivery not found")
)

// NotificationChannel is a delivery medium for alert notifications.
type NotificationChannel string

const (
	ChannelEmail   NotificationChannel = "email"
	ChannelSlack   NotificationChannel = "slack"
	ChannelTeams   NotificationChannel = "teams"
	ChannelInApp   NotificationChannel = "in_app"
	ChannelWebhook NotificationChannel = "webhook"
)

// IsValid returns true if the channel is a known valid value.
func (c NotificationChannel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSlack, ChannelTeams, ChannelInApp, ChannelWebhook:
		return true
	default:
		return false
	}
}

// NotificationTemplate is a channel-specific message template for one alert
// type. Bodies use {{variable}} placeholders substituted from a fixed
// variable set derived from the alert.
type NotificationTemplate struct {
	ID        string              `json:"id"`
	Channel   NotificationChannel `json:"channel"`
	AlertType AlertRuleType       `json:"alert_type"`
	Subject   string              `json:"subject"`
	Body      string              `json:"body"`

	// Variables lists the placeholder names the template uses. Informational
	// only; rendering always substitutes the full fixed set.
	Variables []string `json:"variables,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeliveryStatus is the state of one notification delivery.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// NotificationDelivery tracks one attempt (including retries) to notify a
// single recipient on a single channel about a single alert. Retries mutate
// the same record in place.
type NotificationDelivery struct {
	ID          string              `json:"id"`
	AlertID     string              `json:"alert_id"`
	Channel     NotificationChannel `json:"channel"`
	Recipient   string              `json:"recipient"`
	Status      DeliveryStatus      `json:"status"`
	SentAt      *time.Time          `json:"sent_at,omitempty"`
	DeliveredAt *time.Time          `json:"delivered_at,omitempty"`
	Error       string              `json:"error,omitempty"`
	RetryCount  int                 `json:"retry_count"`
	CreatedAt   time.Time           `json:"created_at"`
}

// MarkDelivered records a successful send.
func (d *NotificationDelivery) MarkDelivered(at time.Time) {
	d.Status = DeliveryDelivered
	d.SentAt = &at
	d.DeliveredAt = &at
	d.Error = ""
}

// MarkFailed records a failed send with the provider's error string.
func (d *NotificationDelivery) MarkFailed(errMsg string) {
	d.Status = DeliveryFailed
	d.Error = errMsg
}

// NotificationResult is the outcome of a single provider send call.
type NotificationResult struct {
	Success     bool       `json:"success"`
	MessageID   string     `json:"message_id,omitempty"`
	Error       string     `json:"error,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// NotificationRequest pairs an alert with its target channels and recipients,
// used for bulk sends.
type NotificationRequest struct {
	Alert      *Alert                `json:"alert"`
	Channels   []NotificationChannel `json:"channels"`
	Recipients []string              `json:"recipients"`
}

// InAppNotification is the persisted record shown in the product's
// notification center, created by the in-app provider.
type InAppNotification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	AlertID   string    `json:"alert_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Severity  Severity  `json:"severity"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
