package api

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"vigil-go/internal/alerting"
	"vigil-go/internal/domain"
)

// RuleHandler handles HTTP requests for alert rule CRUD operations.
type RuleHandler struct {
	alerts *alerting.Service
	logger *slog.Logger
}

// NewRuleHandler creates a new rule handler.
func NewRuleHandler(alerts *alerting.Service, logger *slog.Logger) *RuleHandler {
	return &RuleHandler{
		alerts: alerts,
		logger: logger,
	}
}

// Create handles POST /v1/rules
func (h *RuleHandler) Create(c *fiber.Ctx) error {
	var rule domain.AlertRule
	if err := c.BodyParser(&rule); err != nil {
		return BadRequest(c, "invalid request body")
	}

	if err := h.alerts.CreateRule(c.Context(), &rule); err != nil {
		if isRuleValidationError(err) {
			return ValidationError(c, err.Error())
		}
		h.logger.Error("failed to create rule", "error", err)
		return InternalError(c, "failed to create rule")
	}
	return Created(c, rule)
}

// List handles GET /v1/rules
func (h *RuleHandler) List(c *fiber.Ctx) error {
	var filter domain.RuleFilter
	if enabled := c.Query("enabled"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			filter.Enabled = &v
		}
	}
	if ruleType := c.Query("type"); ruleType != "" {
		filter.Type = domain.AlertRuleType(ruleType)
	}

	rules, err := h.alerts.ListRules(c.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list rules", "error", err)
		return InternalError(c, "failed to list rules")
	}
	return Success(c, rules)
}

// GetByID handles GET /v1/rules/:id
func (h *RuleHandler) GetByID(c *fiber.Ctx) error {
	rule, err := h.alerts.GetRule(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, domain.ErrRuleNotFound) {
			return NotFound(c, "rule not found")
		}
		h.logger.Error("failed to get rule", "error", err)
		return InternalError(c, "failed to get rule")
	}
	return Success(c, rule)
}

// Update handles PUT /v1/rules/:id
func (h *RuleHandler) Update(c *fiber.Ctx) error {
	var rule domain.AlertRule
	if err := c.BodyParser(&rule); err != nil {
		return BadRequest(c, "invalid request body")
	}
	rule.ID = c.Params("id")

	if err := h.alerts.UpdateRule(c.Context(), &rule); err != nil {
		switch {
		case errors.Is(err, domain.ErrRuleNotFound):
			return NotFound(c, "rule not found")
		case isRuleValidationError(err):
			return ValidationError(c, err.Error())
		default:
			h.logger.Error("failed to update rule", "error", err)
			return InternalError(c, "failed to update rule")
		}
	}
	return Success(c, rule)
}

// Delete handles DELETE /v1/rules/:id
func (h *RuleHandler) Delete(c *fiber.Ctx) error {
	if err := h.alerts.DeleteRule(c.Context(), c.Params("id")); err != nil {
		if errors.Is(err, domain.ErrRuleNotFound) {
			return NotFound(c, "rule not found")
		}
		h.logger.Error("failed to delete rule", "error", err)
		return InternalError(c, "failed to delete rule")
	}
	return NoContent(c)
}

func isRuleValidationError(err error) bool {
	return errors.Is(err, domain.ErrEmptyRuleName) ||
		errors.Is(err, domain.ErrInvalidRuleSeverity) ||
		errors.Is(err, domain.ErrInvalidCondition) ||
		errors.Is(err, domain.ErrEmptyConditionMetric)
}
