package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"vigil-go/internal/alerting"
	"vigil-go/internal/domain"
	"vigil-go/internal/ingest"
)

// IngestHandler handles HTTP requests for metric and anomaly intake.
type IngestHandler struct {
	ingest *ingest.Service
	alerts *alerting.Service
	logger *slog.Logger
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(ingestSvc *ingest.Service, alerts *alerting.Service, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{
		ingest: ingestSvc,
		alerts: alerts,
		logger: logger,
	}
}

// metricsRequest is the POST /v1/metrics body.
type metricsRequest struct {
	Metrics []domain.MetricData `json:"metrics"`
}

// IngestMetrics handles POST /v1/metrics
// Accepts a batch of metric samples and publishes them for evaluation.
// Returns 202 Accepted immediately - evaluation happens asynchronously.
func (h *IngestHandler) IngestMetrics(c *fiber.Ctx) error {
	var req metricsRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Debug("failed to parse metrics body", "error", err)
		return BadRequest(c, "invalid request body")
	}
	if len(req.Metrics) == 0 {
		return ValidationError(c, "metrics must not be empty")
	}

	if err := h.ingest.IngestMetrics(c.Context(), req.Metrics); err != nil {
		switch {
		case err == ingest.ErrPublishFailed:
			h.logger.Error("failed to ingest metrics", "error", err)
			return InternalError(c, "failed to ingest metrics")
		default:
			return ValidationError(c, err.Error())
		}
	}

	return Accepted(c, map[string]any{
		"status":   "accepted",
		"received": len(req.Metrics),
	})
}

// anomalyRequest is the POST /v1/anomalies body.
type anomalyRequest struct {
	Result  domain.MLAnomalyResult `json:"result"`
	Context domain.AlertContext    `json:"context"`
}

// IngestAnomaly handles POST /v1/anomalies
// Accepts an external anomaly detection result and may create an alert.
func (h *IngestHandler) IngestAnomaly(c *fiber.Ctx) error {
	var req anomalyRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Debug("failed to parse anomaly body", "error", err)
		return BadRequest(c, "invalid request body")
	}
	if req.Result.Confidence < 0 || req.Result.Confidence > 1 {
		return ValidationError(c, "confidence must be between 0 and 1")
	}

	alert, err := h.alerts.EvaluateMLAnomaly(c.Context(), &req.Result, req.Context)
	if err != nil {
		h.logger.Error("failed to evaluate anomaly", "error", err)
		return InternalError(c, "failed to evaluate anomaly")
	}
	if alert == nil {
		// Not an anomaly, or deduplicated.
		return Success(c, map[string]any{"created": false})
	}
	return Created(c, alert)
}
