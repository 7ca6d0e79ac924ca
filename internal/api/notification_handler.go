package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"vigil-go/internal/domain"
	"vigil-go/internal/notify"
	"vigil-go/internal/notify/provider"
)

// NotificationHandler handles HTTP requests for templates, deliveries,
// provider validation, and the in-app websocket feed.
type NotificationHandler struct {
	notifier *notify.Service
	inApp    *provider.InAppProvider
	hub      *provider.Hub
	logger   *slog.Logger
}

// NewNotificationHandler creates a new notification handler. The hub may be
// nil when real-time updates are disabled; the websocket route then rejects
// connections.
func NewNotificationHandler(notifier *notify.Service, inApp *provider.InAppProvider, hub *provider.Hub, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifier: notifier,
		inApp:    inApp,
		hub:      hub,
		logger:   logger,
	}
}

// CreateTemplate handles POST /v1/templates
func (h *NotificationHandler) CreateTemplate(c *fiber.Ctx) error {
	var tmpl domain.NotificationTemplate
	if err := c.BodyParser(&tmpl); err != nil {
		return BadRequest(c, "invalid request body")
	}
	if !tmpl.Channel.IsValid() {
		return ValidationError(c, "channel must be email, slack, teams, in_app, or webhook")
	}
	if tmpl.Body == "" {
		return ValidationError(c, "body is required")
	}

	if err := h.notifier.CreateTemplate(c.Context(), &tmpl); err != nil {
		h.logger.Error("failed to create template", "error", err)
		return InternalError(c, "failed to create template")
	}
	return Created(c, tmpl)
}

// GetTemplate handles GET /v1/templates/:id
func (h *NotificationHandler) GetTemplate(c *fiber.Ctx) error {
	tmpl, err := h.notifier.GetTemplate(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, domain.ErrTemplateNotFound) {
			return NotFound(c, "template not found")
		}
		h.logger.Error("failed to get template", "error", err)
		return InternalError(c, "failed to get template")
	}
	return Success(c, tmpl)
}

// UpdateTemplate handles PUT /v1/templates/:id
func (h *NotificationHandler) UpdateTemplate(c *fiber.Ctx) error {
	var tmpl domain.NotificationTemplate
	if err := c.BodyParser(&tmpl); err != nil {
		return BadRequest(c, "invalid request body")
	}
	tmpl.ID = c.Params("id")
	if !tmpl.Channel.IsValid() {
		return ValidationError(c, "channel must be email, slack, teams, in_app, or webhook")
	}

	if err := h.notifier.UpdateTemplate(c.Context(), &tmpl); err != nil {
		if errors.Is(err, domain.ErrTemplateNotFound) {
			return NotFound(c, "template not found")
		}
		h.logger.Error("failed to update template", "error", err)
		return InternalError(c, "failed to update template")
	}
	return Success(c, tmpl)
}

// DeleteTemplate handles DELETE /v1/templates/:id
func (h *NotificationHandler) DeleteTemplate(c *fiber.Ctx) error {
	if err := h.notifier.DeleteTemplate(c.Context(), c.Params("id")); err != nil {
		if errors.Is(err, domain.ErrTemplateNotFound) {
			return NotFound(c, "template not found")
		}
		h.logger.Error("failed to delete template", "error", err)
		return InternalError(c, "failed to delete template")
	}
	return NoContent(c)
}

// ListDeliveries handles GET /v1/deliveries?alert_id=
func (h *NotificationHandler) ListDeliveries(c *fiber.Ctx) error {
	alertID := c.Query("alert_id")
	if alertID == "" {
		return ValidationError(c, "alert_id query parameter is required")
	}

	deliveries, err := h.notifier.GetDeliveries(c.Context(), alertID)
	if err != nil {
		h.logger.Error("failed to list deliveries", "error", err)
		return InternalError(c, "failed to list deliveries")
	}
	return Success(c, deliveries)
}

// RetryDeliveries handles POST /v1/deliveries/retry
// Runs one retry pass immediately instead of waiting for the timer.
func (h *NotificationHandler) RetryDeliveries(c *fiber.Ctx) error {
	h.notifier.RetryFailedDeliveries(c.Context())
	return Accepted(c, map[string]string{"status": "retry pass completed"})
}

// ValidateProviders handles GET /v1/providers/validate
func (h *NotificationHandler) ValidateProviders(c *fiber.Ctx) error {
	failures := h.notifier.ValidateProviders()

	result := make(map[string]string, len(failures))
	for channel, err := range failures {
		result[string(channel)] = err.Error()
	}
	return Success(c, map[string]any{
		"valid":    len(failures) == 0,
		"failures": result,
	})
}

// ListInAppNotifications handles GET /v1/notifications?user_id=
func (h *NotificationHandler) ListInAppNotifications(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return ValidationError(c, "user_id query parameter is required")
	}

	notifications, err := h.inApp.ListForUser(c.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list in-app notifications", "error", err)
		return InternalError(c, "failed to list notifications")
	}
	return Success(c, notifications)
}

// MarkNotificationRead handles POST /v1/notifications/:id/read
func (h *NotificationHandler) MarkNotificationRead(c *fiber.Ctx) error {
	if err := h.inApp.MarkRead(c.Context(), c.Params("id")); err != nil {
		return NotFound(c, "notification not found")
	}
	return NoContent(c)
}

// WebsocketUpgrade gates the websocket route: only upgrade requests with a
// user_id pass through.
func (h *NotificationHandler) WebsocketUpgrade(c *fiber.Ctx) error {
	if h.hub == nil {
		return Error(c, fiber.StatusServiceUnavailable, ErrCodeInternalError, "real-time updates are disabled")
	}
	if !websocket.IsWebSocketUpgrade(c) {
		return BadRequest(c, "websocket upgrade required")
	}
	if c.Query("user_id") == "" {
		return ValidationError(c, "user_id query parameter is required")
	}
	return c.Next()
}

// WebsocketFeed is the websocket connection handler for
// GET /v1/notifications/ws?user_id=. It registers the connection with the
// hub and holds the read side open until the client goes away.
func (h *NotificationHandler) WebsocketFeed() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID := conn.Query("user_id")
		client := h.hub.Register(userID, conn)
		defer h.hub.Unregister(client)

		// Drain client frames; any read error means the connection is gone.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}
