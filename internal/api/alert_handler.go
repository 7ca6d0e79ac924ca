package api

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"vigil-go/internal/alerting"
	"vigil-go/internal/domain"
)

// AlertHandler handles HTTP requests for alert operations.
type AlertHandler struct {
	alerts *alerting.Service
	logger *slog.Logger
}

// NewAlertHandler creates a new alert handler.
func NewAlertHandler(alerts *alerting.Service, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{
		alerts: alerts,
		logger: logger,
	}
}

// List handles GET /v1/alerts
// Returns alerts matching query parameters.
func (h *AlertHandler) List(c *fiber.Ctx) error {
	filter := domain.AlertFilter{
		RuleID: c.Query("rule_id"),
		UserID: c.Query("user_id"),
	}
	if status := c.Query("status"); status != "" {
		filter.Status = domain.AlertStatus(status)
	}
	if severity := c.Query("severity"); severity != "" {
		filter.Severity = domain.Severity(severity)
	}
	if limit := c.Query("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			filter.Limit = l
		}
	}
	if offset := c.Query("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil && o >= 0 {
			filter.Offset = o
		}
	}
	if filter.Limit == 0 {
		filter.Limit = 100
	}

	alerts, err := h.alerts.ListAlerts(c.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list alerts", "error", err)
		return InternalError(c, "failed to list alerts")
	}
	return Success(c, alerts)
}

// Summary handles GET /v1/alerts/summary
// Returns aggregate alert metrics over the full history.
func (h *AlertHandler) Summary(c *fiber.Ctx) error {
	summary, err := h.alerts.GetAlertMetrics(c.Context())
	if err != nil {
		h.logger.Error("failed to compute alert summary", "error", err)
		return InternalError(c, "failed to compute alert summary")
	}
	return Success(c, summary)
}

// GetByID handles GET /v1/alerts/:id
func (h *AlertHandler) GetByID(c *fiber.Ctx) error {
	alert, err := h.alerts.GetAlert(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, domain.ErrAlertNotFound) {
			return NotFound(c, "alert not found")
		}
		h.logger.Error("failed to get alert", "error", err)
		return InternalError(c, "failed to get alert")
	}
	return Success(c, alert)
}

// actorRequest carries the acting user for lifecycle operations.
type actorRequest struct {
	UserID string `json:"user_id"`
}

// Acknowledge handles POST /v1/alerts/:id/acknowledge
func (h *AlertHandler) Acknowledge(c *fiber.Ctx) error {
	var req actorRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}
	if req.UserID == "" {
		return ValidationError(c, "user_id is required")
	}

	alert, err := h.alerts.AcknowledgeAlert(c.Context(), c.Params("id"), req.UserID)
	if err != nil {
		return h.lifecycleError(c, err, "acknowledge")
	}
	return Success(c, alert)
}

// Resolve handles POST /v1/alerts/:id/resolve
func (h *AlertHandler) Resolve(c *fiber.Ctx) error {
	var req actorRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}
	if req.UserID == "" {
		return ValidationError(c, "user_id is required")
	}

	alert, err := h.alerts.ResolveAlert(c.Context(), c.Params("id"), req.UserID)
	if err != nil {
		return h.lifecycleError(c, err, "resolve")
	}
	return Success(c, alert)
}

// suppressRequest is the POST /v1/alerts/:id/suppress body.
type suppressRequest struct {
	Until           *time.Time `json:"until,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
}

// Suppress handles POST /v1/alerts/:id/suppress
// The deadline comes either as an absolute time or a duration.
func (h *AlertHandler) Suppress(c *fiber.Ctx) error {
	var req suppressRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}

	var until time.Time
	switch {
	case req.Until != nil:
		until = req.Until.UTC()
	case req.DurationMinutes > 0:
		until = time.Now().UTC().Add(time.Duration(req.DurationMinutes) * time.Minute)
	default:
		return ValidationError(c, "either until or duration_minutes is required")
	}
	if !until.After(time.Now().UTC()) {
		return ValidationError(c, "suppression deadline must be in the future")
	}

	alert, err := h.alerts.SuppressAlert(c.Context(), c.Params("id"), until)
	if err != nil {
		return h.lifecycleError(c, err, "suppress")
	}
	return Success(c, alert)
}

// feedbackRequest is the POST /v1/alerts/:id/feedback body.
type feedbackRequest struct {
	UserID  string `json:"user_id"`
	Useful  bool   `json:"useful"`
	Comment string `json:"comment,omitempty"`
}

// Feedback handles POST /v1/alerts/:id/feedback
func (h *AlertHandler) Feedback(c *fiber.Ctx) error {
	var req feedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}
	if req.UserID == "" {
		return ValidationError(c, "user_id is required")
	}

	feedback := &domain.AlertFeedback{
		AlertID: c.Params("id"),
		UserID:  req.UserID,
		Useful:  req.Useful,
		Comment: req.Comment,
	}
	if err := h.alerts.RecordFeedback(c.Context(), feedback); err != nil {
		if errors.Is(err, domain.ErrAlertNotFound) {
			return NotFound(c, "alert not found")
		}
		h.logger.Error("failed to record feedback", "error", err)
		return InternalError(c, "failed to record feedback")
	}
	return Accepted(c, feedback)
}

// lifecycleError maps lifecycle operation failures to HTTP responses.
func (h *AlertHandler) lifecycleError(c *fiber.Ctx, err error, op string) error {
	switch {
	case errors.Is(err, domain.ErrAlertNotFound):
		return NotFound(c, "alert not found")
	case errors.Is(err, alerting.ErrInvalidTransition):
		return Conflict(c, err.Error())
	default:
		h.logger.Error("alert lifecycle operation failed", "op", op, "error", err)
		return InternalError(c, "failed to "+op+" alert")
	}
}
