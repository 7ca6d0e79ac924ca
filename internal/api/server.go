package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vigil-go/internal/config"
)

// Server represents the HTTP server with all configured routes and middleware.
type Server struct {
	app    *fiber.App
	config *config.ServerConfig
	logger *slog.Logger

	// Handlers
	ingestHandler       *IngestHandler
	ruleHandler         *RuleHandler
	alertHandler        *AlertHandler
	notificationHandler *NotificationHandler
}

// ServerDeps contains all dependencies required to create a new Server.
type ServerDeps struct {
	Config              *config.ServerConfig
	Logger              *slog.Logger
	IngestHandler       *IngestHandler
	RuleHandler         *RuleHandler
	AlertHandler        *AlertHandler
	NotificationHandler *NotificationHandler
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(deps ServerDeps) *Server {
	// Create Fiber app with optimized settings for high throughput
	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable strict routing for consistency
		StrictRouting: true,
		// Case sensitive routing
		CaseSensitive: true,
		// Read timeout from config
		ReadTimeout: deps.Config.ReadTimeout,
		// Write timeout from config
		WriteTimeout: deps.Config.WriteTimeout,
		// Idle timeout from config
		IdleTimeout: deps.Config.IdleTimeout,
		// Custom error handler
		ErrorHandler: customErrorHandler,
	})

	s := &Server{
		app:                 app,
		config:              deps.Config,
		logger:              deps.Logger,
		ingestHandler:       deps.IngestHandler,
		ruleHandler:         deps.RuleHandler,
		alertHandler:        deps.AlertHandler,
		notificationHandler: deps.NotificationHandler,
	}

	// Register middleware
	s.registerMiddleware()

	// Register routes
	s.registerRoutes()

	return s
}

// registerMiddleware sets up all middleware for the server.
func (s *Server) registerMiddleware() {
	// Recovery middleware to handle panics
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID middleware for tracing
	s.app.Use(requestid.New())

	// Logger middleware for request logging
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} | ${path} | ${error}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
}

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes() {
	// Health check endpoint (outside versioned API)
	s.app.Get("/healthz", s.healthCheck)

	// Prometheus metrics endpoint
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1 routes
	v1 := s.app.Group("/v1")

	// Metric and anomaly intake
	v1.Post("/metrics", s.ingestHandler.IngestMetrics)
	v1.Post("/anomalies", s.ingestHandler.IngestAnomaly)

	// Alert rules CRUD
	v1.Post("/rules", s.ruleHandler.Create)
	v1.Get("/rules", s.ruleHandler.List)
	v1.Get("/rules/:id", s.ruleHandler.GetByID)
	v1.Put("/rules/:id", s.ruleHandler.Update)
	v1.Delete("/rules/:id", s.ruleHandler.Delete)

	// Alerts and lifecycle
	v1.Get("/alerts", s.alertHandler.List)
	v1.Get("/alerts/summary", s.alertHandler.Summary)
	v1.Get("/alerts/:id", s.alertHandler.GetByID)
	v1.Post("/alerts/:id/acknowledge", s.alertHandler.Acknowledge)
	v1.Post("/alerts/:id/resolve", s.alertHandler.Resolve)
	v1.Post("/alerts/:id/suppress", s.alertHandler.Suppress)
	v1.Post("/alerts/:id/feedback", s.alertHandler.Feedback)

	// Notification templates CRUD
	v1.Post("/templates", s.notificationHandler.CreateTemplate)
	v1.Get("/templates/:id", s.notificationHandler.GetTemplate)
	v1.Put("/templates/:id", s.notificationHandler.UpdateTemplate)
	v1.Delete("/templates/:id", s.notificationHandler.DeleteTemplate)

	// Deliveries and providers
	v1.Get("/deliveries", s.notificationHandler.ListDeliveries)
	v1.Post("/deliveries/retry", s.notificationHandler.RetryDeliveries)
	v1.Get("/providers/validate", s.notificationHandler.ValidateProviders)

	// In-app notification center
	v1.Get("/notifications", s.notificationHandler.ListInAppNotifications)
	v1.Post("/notifications/:id/read", s.notificationHandler.MarkNotificationRead)
	v1.Get("/notifications/ws", s.notificationHandler.WebsocketUpgrade, s.notificationHandler.WebsocketFeed())
}

// healthCheck returns the health status of the service.
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return Success(c, map[string]string{
		"status": "healthy",
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := s.config.Address()
	s.logger.Info("starting HTTP server", "address", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the underlying fiber app for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// customErrorHandler handles errors returned from handlers.
func customErrorHandler(c *fiber.Ctx, err error) error {
	// Check if it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		return Error(c, e.Code, ErrCodeInternalError, e.Message)
	}

	// Default to internal server error
	return InternalError(c, fmt.Sprintf("unexpected error: %v", err))
}
