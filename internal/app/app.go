package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/common"
	"github.com/ternarybob/probo/internal/handlers"
	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/metrics"
	"github.com/ternarybob/probo/internal/queue"
	"github.com/ternarybob/probo/internal/services/events"
	"github.com/ternarybob/probo/internal/services/importer"
	"github.com/ternarybob/probo/internal/services/maintenance"
	"github.com/ternarybob/probo/internal/services/verifier"
	"github.com/ternarybob/probo/internal/storage"
)

// App holds all application dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Context for background goroutine lifecycle
	ctx       context.Context
	cancelCtx context.CancelFunc

	// Storage layer
	StorageManager interfaces.StorageManager

	// Event service (pub/sub for verification lifecycle)
	EventService interfaces.EventService

	// Metrics registry (Prometheus counters, gauges, histograms)
	Metrics *metrics.Registry

	// Verification engine
	VerifierService interfaces.Verifier

	// Queue manager (workers, rate limiting, retries)
	Queue *queue.Manager

	// Maintenance service (cron-driven cleanup)
	MaintenanceService *maintenance.Service

	// Importer service (seed files)
	ImporterService *importer.Service

	// Log writer feeding the WebSocket broadcast channel
	wsWriter *handlers.WebSocketWriter

	// HTTP handlers
	APIHandler          *handlers.APIHandler
	WSHandler           *handlers.WebSocketHandler
	VerificationHandler *handlers.VerificationHandler
	AssetHandler        *handlers.AssetHandler
	QueueHandler        *handlers.QueueHandler
	StatusHandler       *handlers.StatusHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	app.ctx, app.cancelCtx = context.WithCancel(context.Background())

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	if err := app.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	// Route logs through the WebSocket writer so connected clients see
	// server activity live. The writer consumes batches from an arbor
	// channel; SetChannel registers it with the logger.
	wsWriter := handlers.NewWebSocketWriter(app.WSHandler, &cfg.WebSocket)
	if err := wsWriter.Start(); err != nil {
		return nil, fmt.Errorf("failed to start websocket log writer: %w", err)
	}
	app.wsWriter = wsWriter
	app.Logger.SetChannel("websocket", wsWriter.GetChannel())
	app.Logger.Debug().
		Int("channel_capacity", cap(wsWriter.GetChannel())).
		Msg("WebSocket log writer initialized")

	// Start queue workers AFTER all handlers are initialized so the first
	// jobs already have event subscribers listening
	if err := app.Queue.Start(); err != nil {
		return nil, fmt.Errorf("failed to start queue: %w", err)
	}
	app.Logger.Debug().Msg("Queue workers started")

	// Start WebSocket background tasks for real-time UI updates
	app.WSHandler.StartStatusBroadcaster(app.ctx)
	app.Logger.Debug().Msg("WebSocket handlers started (status broadcaster)")

	// Import seed files on boot. A failed import is logged, not fatal;
	// the API surface still works without seeds.
	if cfg.Imports.Dir != "" {
		if count, err := app.ImporterService.ImportDir(app.ctx, cfg.Imports.Dir); err != nil {
			app.Logger.Warn().Err(err).Str("dir", cfg.Imports.Dir).Msg("Failed to import seed files")
		} else if count > 0 {
			app.Logger.Info().Int("count", count).Str("dir", cfg.Imports.Dir).Msg("Imported seed verifications")
		}
	}

	// Log initialization summary
	logger.Info().
		Int("concurrency", cfg.Queue.Concurrency).
		Str("storage", cfg.Storage.Type).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager

	a.Logger.Debug().
		Str("type", a.Config.Storage.Type).
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	// 1. Event service (everything downstream publishes through it)
	a.EventService = events.NewService(a.Logger)
	a.Logger.Debug().Msg("Event service initialized")

	// Mirror lifecycle events into the structured log
	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		return fmt.Errorf("failed to subscribe logger to events: %w", err)
	}

	// 2. Metrics registry
	a.Metrics = metrics.NewRegistry()
	a.Logger.Debug().Msg("Metrics registry initialized")

	// 3. Verification engine
	verifierConfig := verifier.Config{
		RequestTimeout: parseDuration(a.Config.Verifier.RequestTimeout, 5*time.Second),
		MaxRedirects:   a.Config.Verifier.MaxRedirects,
		MaxBodySize:    a.Config.Verifier.MaxBodySize,
		UserAgent:      a.Config.Verifier.UserAgent,
	}
	a.VerifierService = verifier.NewService(verifierConfig, nil, a.Logger)
	a.Logger.Debug().
		Dur("request_timeout", verifierConfig.RequestTimeout).
		Int("max_redirects", verifierConfig.MaxRedirects).
		Msg("Verifier service initialized")

	// 4. Queue manager
	queueConfig := queue.Config{
		Concurrency:     a.Config.Queue.Concurrency,
		StartsPerSecond: a.Config.Queue.StartsPerSecond,
		BufferSize:      a.Config.Queue.BufferSize,
	}
	retryPolicy := queue.NewRetryPolicy()
	retryPolicy.MaxAttempts = a.Config.Queue.MaxAttempts
	retryPolicy.InitialDelay = parseDuration(a.Config.Queue.InitialBackoff, retryPolicy.InitialDelay)
	retryPolicy.MaxDelay = parseDuration(a.Config.Queue.MaxBackoff, retryPolicy.MaxDelay)
	a.Queue = queue.NewManager(queueConfig, retryPolicy, a.VerifierService, a.StorageManager, a.Metrics, a.EventService, a.Logger)
	a.Logger.Debug().
		Int("concurrency", queueConfig.Concurrency).
		Float64("starts_per_second", queueConfig.StartsPerSecond).
		Int("max_attempts", retryPolicy.MaxAttempts).
		Msg("Queue manager initialized")

	// 5. Maintenance service (cleanup cron)
	a.MaintenanceService = maintenance.NewService(a.Queue, a.EventService, a.Logger)
	policy := maintenance.DefaultCleanupPolicy()
	policy.Schedule = a.Config.Cleanup.Schedule
	policy.CompletedOlderThan = parseDuration(a.Config.Cleanup.CompletedOlderThan, policy.CompletedOlderThan)
	policy.CompletedKeep = a.Config.Cleanup.CompletedKeep
	policy.FailedOlderThan = parseDuration(a.Config.Cleanup.FailedOlderThan, policy.FailedOlderThan)
	policy.FailedKeep = a.Config.Cleanup.FailedKeep
	if err := a.MaintenanceService.RegisterCleanupJob(policy); err != nil {
		return fmt.Errorf("failed to register cleanup job: %w", err)
	}
	if err := a.MaintenanceService.Start(); err != nil {
		return fmt.Errorf("failed to start maintenance service: %w", err)
	}
	a.Logger.Debug().
		Str("schedule", policy.Schedule).
		Msg("Maintenance service started")

	// 6. Importer service
	a.ImporterService = importer.NewService(a.Queue, a.Logger)
	a.Logger.Debug().Msg("Importer service initialized")

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler()
	a.WSHandler = handlers.NewWebSocketHandler(a.Queue, a.Metrics, a.Logger, &a.Config.WebSocket)
	a.VerificationHandler = handlers.NewVerificationHandler(a.Queue, a.Logger)
	a.AssetHandler = handlers.NewAssetHandler(a.StorageManager.AssetStorage(), a.Logger)
	a.QueueHandler = handlers.NewQueueHandler(a.Queue, a.StorageManager.JobStorage(), a.Metrics, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.Queue, a.Metrics, a.MaintenanceService, a.Logger)

	// Event subscriber bridges lifecycle events to WebSocket broadcasts.
	// The constructor registers every subscription, so the value itself
	// does not need to be retained.
	_ = handlers.NewEventSubscriber(a.WSHandler, a.EventService, a.Logger, &a.Config.WebSocket)
	a.Logger.Debug().
		Int("allowed_events", len(a.Config.WebSocket.AllowedEvents)).
		Int("throttle_intervals", len(a.Config.WebSocket.ThrottleIntervals)).
		Msg("EventSubscriber initialized")

	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	// Cancel background goroutines (status broadcaster)
	if a.cancelCtx != nil {
		a.Logger.Info().Msg("Cancelling background goroutines")
		a.cancelCtx()
		// Allow goroutines to finish gracefully
		time.Sleep(100 * time.Millisecond)
	}

	// Stop maintenance service
	if a.MaintenanceService != nil {
		if err := a.MaintenanceService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop maintenance service")
		}
	}

	// Drain queue workers before closing downstream services
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close queue")
		} else {
			a.Logger.Info().Msg("Queue closed")
		}
	}

	// Stop WebSocket log writer
	if a.wsWriter != nil {
		if err := a.wsWriter.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop websocket log writer")
		}
	}

	// Close event service
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	// Close storage
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
