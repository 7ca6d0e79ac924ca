// Package main is the entry point for the Vigil alerting service. It wires
// the ingestion pipeline, rule evaluation, alert lifecycle, and notification
// delivery, then runs the HTTP server until shutdown.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"vigil-go/internal/alerting"
	"vigil-go/internal/api"
	"vigil-go/internal/config"
	"vigil-go/internal/dispatch"
	"vigil-go/internal/event"
	"vigil-go/internal/ingest"
	"vigil-go/internal/notify"
	"vigil-go/internal/notify/provider"
	"vigil-go/internal/processor"
	"vigil-go/internal/queue"
	kafkaqueue "vigil-go/internal/queue/kafka"
	memoryqueue "vigil-go/internal/queue/memory"
	"vigil-go/internal/rule"
	"vigil-go/internal/store"
	memorystor "vigil-go/internal/store/memory"
	postgresstor "vigil-go/internal/store/postgres"
	redisstor "vigil-go/internal/store/redis"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(&cfg.Logger)

	logger.Info("configuration loaded",
		"path", *configPath,
		"storage_mode", cfg.Storage.Mode,
	)

	// Initialize dependencies based on storage mode
	deps, cleanup, err := initDependencies(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Create context that listens for shutdown signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Start the event-driven background workers
	go deps.dispatcher.Start(ctx)
	go deps.alerts.StartMaintenance(ctx)
	go deps.inApp.StartExpirySweep(ctx)
	deps.notifier.Start(ctx)

	// Start processor in background
	go func() {
		if err := deps.processor.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("processor error", "error", err)
			cancel()
		}
	}()

	// Start HTTP server
	go func() {
		if err := deps.server.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	logger.Info("Vigil started",
		"address", cfg.Server.Address(),
		"storage_mode", cfg.Storage.Mode,
	)

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := deps.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := deps.processor.Stop(); err != nil {
		logger.Error("processor shutdown error", "error", err)
	}

	deps.notifier.Destroy()
	deps.hub.Close()
	deps.bus.Close()

	logger.Info("Vigil stopped")
}

// dependencies holds all initialized service dependencies.
type dependencies struct {
	server     *api.Server
	processor  *processor.Service
	alerts     *alerting.Service
	notifier   *notify.Service
	dispatcher *dispatch.Dispatcher
	inApp      *provider.InAppProvider
	hub        *provider.Hub
	bus        *event.Bus
}

// initDependencies creates and wires all service dependencies based on config.
// Returns the dependencies and a cleanup function.
func initDependencies(cfg *config.Config, logger *slog.Logger) (*dependencies, func(), error) {
	var (
		alertRepo    store.AlertRepository
		ruleRepo     store.AlertRuleRepository
		notifRepo    store.NotificationRepository
		tmplRepo     store.TemplateRepository
		inAppRepo    store.InAppNotificationRepository
		cooldown     store.CooldownStore
		producer     queue.Producer
		consumer     queue.Consumer
		cleanupFuncs []func()
	)

	if cfg.Storage.UseMemory() {
		// Initialize in-memory implementations
		logger.Info("initializing in-memory storage")

		alertRepo = memorystor.NewAlertRepository()
		ruleRepo = memorystor.NewRuleRepository()
		notifRepo = memorystor.NewNotificationRepository()
		tmplRepo = memorystor.NewTemplateRepository()
		inAppRepo = memorystor.NewInAppNotificationRepository()

		memCooldown := memorystor.NewCooldownStore()
		cooldown = memCooldown
		cleanupFuncs = append(cleanupFuncs, func() { _ = memCooldown.Close() })

		memQueue := memoryqueue.NewQueue(10000)
		producer = memQueue
		consumer = memQueue
		cleanupFuncs = append(cleanupFuncs, func() { _ = memQueue.Close() })
	} else {
		// Initialize real storage implementations
		logger.Info("initializing production storage (Kafka, Redis, PostgreSQL)")

		// Initialize PostgreSQL
		ctx := context.Background()
		db, err := postgresstor.NewDB(ctx, &cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		cleanupFuncs = append(cleanupFuncs, db.Close)

		// Run migrations
		if err := db.RunMigrations(ctx); err != nil {
			return nil, nil, err
		}
		logger.Info("database migrations completed")

		alertRepo = postgresstor.NewAlertRepository(db)
		ruleRepo = postgresstor.NewRuleRepository(db)
		notifRepo = postgresstor.NewNotificationRepository(db)
		tmplRepo = postgresstor.NewTemplateRepository(db)

		// In-app notification records are small and ephemeral; the memory
		// implementation backs them in both modes.
		inAppRepo = memorystor.NewInAppNotificationRepository()

		// Initialize Redis
		redisCooldown, err := redisstor.NewCooldownStore(&cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		cooldown = redisCooldown
		cleanupFuncs = append(cleanupFuncs, func() { _ = redisCooldown.Close() })

		// Initialize Kafka
		kafkaProducer := kafkaqueue.NewProducer(&cfg.Kafka)
		producer = kafkaProducer
		cleanupFuncs = append(cleanupFuncs, func() { _ = kafkaProducer.Close() })

		kafkaConsumer := kafkaqueue.NewConsumer(&cfg.Kafka, logger)
		consumer = kafkaConsumer
		cleanupFuncs = append(cleanupFuncs, func() { _ = kafkaConsumer.Close() })
	}

	// Event bus connects the alert service to dispatch and other consumers.
	bus := event.NewBus(logger)

	// Alert service with the rule engine.
	engine := rule.NewEngine(logger)
	alerts := alerting.NewService(engine, alertRepo, ruleRepo, cooldown, bus, cfg.Alerting, logger)

	// Notification service and providers.
	notifier := notify.NewService(cfg.Notification, notifRepo, tmplRepo, alertRepo, bus, logger)

	hub := provider.NewHub(logger)
	inApp := provider.NewInAppProvider(cfg.Providers.InApp, inAppRepo, hub, logger)
	notifier.RegisterProvider(inApp)
	notifier.RegisterProvider(provider.NewEmailProvider(cfg.Providers.SMTP))
	notifier.RegisterProvider(provider.NewSlackProvider(cfg.Providers.Slack))
	notifier.RegisterProvider(provider.NewTeamsProvider(cfg.Providers.Teams))
	notifier.RegisterProvider(provider.NewWebhookProvider())

	if failures := notifier.ValidateProviders(); len(failures) > 0 {
		for channel, err := range failures {
			logger.Warn("notification provider misconfigured",
				"channel", channel,
				"error", err,
			)
		}
	}

	// Dispatcher routes created alerts to notifications.
	dispatcher := dispatch.NewDispatcher(notifier, cfg.Routing, bus, logger)

	// Ingestion pipeline.
	ingestService := ingest.NewService(producer, logger)
	processorService := processor.NewService(consumer, alerts, logger)

	// Initialize API handlers
	ingestHandler := api.NewIngestHandler(ingestService, alerts, logger)
	ruleHandler := api.NewRuleHandler(alerts, logger)
	alertHandler := api.NewAlertHandler(alerts, logger)
	notificationHandler := api.NewNotificationHandler(notifier, inApp, hub, logger)

	// Initialize HTTP server
	server := api.NewServer(api.ServerDeps{
		Config:              &cfg.Server,
		Logger:              logger,
		IngestHandler:       ingestHandler,
		RuleHandler:         ruleHandler,
		AlertHandler:        alertHandler,
		NotificationHandler: notificationHandler,
	})

	// Build cleanup function
	cleanup := func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			cleanupFuncs[i]()
		}
	}

	return &dependencies{
		server:     server,
		processor:  processorService,
		alerts:     alerts,
		notifier:   notifier,
		dispatcher: dispatcher,
		inApp:      inApp,
		hub:        hub,
		bus:        bus,
	}, cleanup, nil
}

// initLogger creates and configures the application logger.
func initLogger(cfg *config.LoggerConfig) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: logLevel(cfg.Level),
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
