// Package worker provides the HTTP worker service for the pilot console.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pilotlabs/console/internal/config"
	"github.com/pilotlabs/console/internal/db/gorm"
	"github.com/pilotlabs/console/internal/plans"
	"github.com/pilotlabs/console/internal/watcher"
	"github.com/pilotlabs/console/internal/worker/pilot"
	"github.com/pilotlabs/console/internal/worker/session"
	"github.com/pilotlabs/console/internal/worker/sse"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
const DefaultHTTPTimeout = 30 * time.Second

// Service is the console worker orchestrator. It owns the HTTP server, the
// durable queue dispatcher, the session manager and the plan scanner.
type Service struct {
	// Version of the worker binary
	version string

	// Configuration
	config *config.Config

	// Database
	store             *gorm.Store
	sessionStore      *gorm.SessionStore
	pendingStore      *gorm.PendingMessageStore
	promptStore       *gorm.PromptStore
	notificationStore *gorm.NotificationStore

	// Domain services
	sessionManager *session.Manager
	sseBroadcaster *sse.Broadcaster
	processor      *pilot.Processor
	dispatcher     *Dispatcher
	planScanner    *plans.Scanner

	// HTTP server
	router    *chi.Mux
	server    *http.Server
	startTime time.Time

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Initialization state (for deferred init)
	ready     atomic.Bool
	initError error
	initMu    sync.RWMutex

	// File watchers
	dbWatcher   *watcher.DeletionWatcher
	planWatcher *watcher.ChangeWatcher
}

// NewService creates a new worker service with deferred initialization.
// The HTTP router is usable immediately with the health endpoint available;
// database and processor initialization happens in the background.
func NewService(version string) (*Service, error) {
	cfg := config.Get()

	ctx, cancel := context.WithCancel(context.Background())

	svc := &Service{
		version:        version,
		config:         cfg,
		sseBroadcaster: sse.NewBroadcaster(),
		router:         chi.NewRouter(),
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
	}

	svc.setupMiddleware()
	svc.setupRoutes()

	go svc.initializeAsync()

	return svc, nil
}

// initializeAsync performs heavy initialization in the background.
func (s *Service) initializeAsync() {
	log.Info().Msg("Starting async initialization...")

	if err := config.EnsureAll(); err != nil {
		s.setInitError(fmt.Errorf("ensure data dir: %w", err))
		return
	}

	store, err := gorm.NewStore(gorm.Config{
		Path:     s.config.DBPath,
		MaxConns: s.config.MaxConns,
		LogLevel: logger.Silent,
	})
	if err != nil {
		s.setInitError(fmt.Errorf("init database: %w", err))
		return
	}

	sessionStore := gorm.NewSessionStore(store)
	pendingStore := gorm.NewPendingMessageStore(store, s.config.MaxRetries)
	promptStore := gorm.NewPromptStore(store)
	notificationStore := gorm.NewNotificationStore(store)

	sessionManager := session.NewManager(sessionStore, pendingStore)

	// Processor is optional: without the pilot CLI, messages stay queued
	// and are picked up once a worker with a CLI takes over the database.
	var processor *pilot.Processor
	proc, err := pilot.NewProcessor(s.config.PilotCLIPath)
	if err != nil {
		log.Warn().Err(err).Msg("Pilot CLI not available - messages will be queued but not processed")
	} else {
		processor = proc
		log.Info().Msg("Pilot processor initialized")
	}

	// A typed nil must not reach the dispatcher's interface field
	var msgProcessor MessageProcessor
	if processor != nil {
		msgProcessor = processor
	}
	dispatcher := NewDispatcher(pendingStore, msgProcessor, sessionManager.ProcessNotify)

	s.initMu.Lock()
	s.store = store
	s.sessionStore = sessionStore
	s.pendingStore = pendingStore
	s.promptStore = promptStore
	s.notificationStore = notificationStore
	s.sessionManager = sessionManager
	s.processor = processor
	s.dispatcher = dispatcher
	s.planScanner = plans.NewScanner(s.config.ProjectRoot, s.config.PlansDir)
	s.initMu.Unlock()

	sessionManager.SetOnSessionDeleted(func(id int64) {
		s.broadcastProcessingStatus()
	})

	s.ready.Store(true)
	log.Info().Msg("Async initialization complete - service ready")

	dispatcher.Start()

	s.startWatchers()
}

// startWatchers initializes file watchers for the database and plan dirs.
func (s *Service) startWatchers() {
	dbWatcher, err := watcher.NewDeletionWatcher(s.config.DBPath, func() {
		log.Warn().Str("path", s.config.DBPath).Msg("Database file deleted, reinitializing...")
		s.reinitializeDatabase()
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create database watcher")
	} else {
		s.dbWatcher = dbWatcher
		if err := dbWatcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start database watcher")
		} else {
			log.Info().Str("path", s.config.DBPath).Msg("Database file watcher started")
		}
	}

	s.initMu.RLock()
	scanner := s.planScanner
	s.initMu.RUnlock()
	if scanner == nil {
		return
	}

	planWatcher, err := watcher.NewChangeWatcher(scanner.Dirs(), func() {
		s.sseBroadcaster.Broadcast("plan_updated", map[string]interface{}{
			"plans": scanner.Scan(),
		})
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create plan watcher")
	} else {
		s.planWatcher = planWatcher
		if err := planWatcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start plan watcher")
		}
	}
}

// reinitializeDatabase recreates the database after the file is deleted out
// from under a running worker.
func (s *Service) reinitializeDatabase() {
	// Block new requests while swapping stores
	s.ready.Store(false)
	log.Info().Msg("Database reinitialization starting...")

	s.initMu.Lock()
	oldStore := s.store
	oldManager := s.sessionManager
	oldDispatcher := s.dispatcher
	s.initMu.Unlock()

	if oldDispatcher != nil {
		oldDispatcher.Stop()
	}
	if oldManager != nil {
		oldManager.ShutdownAll(s.ctx)
	}
	if oldStore != nil {
		if err := oldStore.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing old database")
		}
	}

	if err := config.EnsureAll(); err != nil {
		s.setInitError(fmt.Errorf("ensure data dir on reinit: %w", err))
		return
	}

	store, err := gorm.NewStore(gorm.Config{
		Path:     s.config.DBPath,
		MaxConns: s.config.MaxConns,
		LogLevel: logger.Silent,
	})
	if err != nil {
		s.setInitError(fmt.Errorf("reinit database: %w", err))
		return
	}

	sessionStore := gorm.NewSessionStore(store)
	pendingStore := gorm.NewPendingMessageStore(store, s.config.MaxRetries)
	promptStore := gorm.NewPromptStore(store)
	notificationStore := gorm.NewNotificationStore(store)
	sessionManager := session.NewManager(sessionStore, pendingStore)

	var processor *pilot.Processor
	var msgProcessor MessageProcessor
	if proc, err := pilot.NewProcessor(s.config.PilotCLIPath); err == nil {
		processor = proc
		msgProcessor = proc
	}
	dispatcher := NewDispatcher(pendingStore, msgProcessor, sessionManager.ProcessNotify)

	s.initMu.Lock()
	s.store = store
	s.sessionStore = sessionStore
	s.pendingStore = pendingStore
	s.promptStore = promptStore
	s.notificationStore = notificationStore
	s.sessionManager = sessionManager
	s.processor = processor
	s.dispatcher = dispatcher
	s.initError = nil
	s.initMu.Unlock()

	sessionManager.SetOnSessionDeleted(func(id int64) {
		s.broadcastProcessingStatus()
	})

	s.ready.Store(true)
	dispatcher.Start()
	log.Info().Msg("Database reinitialization complete")

	s.sseBroadcaster.Broadcast("database_reinitialized", map[string]interface{}{
		"message": "Database was recreated after deletion",
	})
}

// setInitError records an initialization error.
func (s *Service) setInitError(err error) {
	s.initMu.Lock()
	s.initError = err
	s.initMu.Unlock()
	log.Error().Err(err).Msg("Async initialization failed")
}

// GetInitError returns any initialization error.
func (s *Service) GetInitError() error {
	s.initMu.RLock()
	defer s.initMu.RUnlock()
	return s.initError
}

// setupMiddleware configures HTTP middleware.
func (s *Service) setupMiddleware() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(DefaultHTTPTimeout))
	s.router.Use(middleware.RealIP)
	s.router.Use(SecurityHeaders)
	s.router.Use(MaxBodySize(MaxRequestBodyBytes))
	s.router.Use(RequireJSONContentType)
}

// setupRoutes configures HTTP routes.
func (s *Service) setupRoutes() {
	// Health check returns 200 immediately so hooks can connect during init.
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/health", s.handleHealth)

	// Version endpoint for hooks to detect stale workers
	s.router.Get("/api/version", s.handleVersion)

	// Readiness check - 200 only when fully initialized
	s.router.Get("/api/ready", s.handleReady)

	// SSE endpoint (works before DB is ready)
	s.router.Get("/api/events", s.sseBroadcaster.HandleSSE)

	// Routes that require the database
	s.router.Group(func(r chi.Router) {
		r.Use(s.requireReady)

		// Session routes
		r.Post("/api/sessions/init", s.handleSessionInit)
		r.Get("/api/sessions", s.handleGetSessionByContentID)
		r.Get("/api/sessions/active", s.handleGetActiveSessions)
		r.Post("/sessions/{id}/init", s.handleSessionStart)
		r.Post("/sessions/{id}/summarize", s.handleSummarize)
		r.Delete("/api/sessions/{id}", s.handleDeleteSession)
		r.Post("/api/sessions/observations", s.handleObservation)

		// Queue and stats
		r.Get("/api/queue", s.handleGetQueue)
		r.Get("/api/stats", s.handleGetStats)
		r.Get("/api/projects", s.handleGetProjects)
		r.Get("/api/prompts", s.handleGetPrompts)

		// Notifications
		r.Post("/api/notifications", s.handleCreateNotification)
		r.Get("/api/notifications", s.handleListNotifications)
		r.Patch("/api/notifications/{id}/read", s.handleMarkNotificationRead)
		r.Post("/api/notifications/read-all", s.handleMarkAllNotificationsRead)
		r.Get("/api/notifications/unread-count", s.handleUnreadCount)

		// Plans
		r.Get("/api/plans", s.handleGetPlans)
	})
}

// Start starts the worker service. The HTTP server begins serving
// immediately; database initialization continues in the background.
func (s *Service) Start() error {
	port := config.GetWorkerPort()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().
		Int("port", port).
		Str("version", s.version).
		Msg("Worker HTTP server started (initialization in progress)")

	return nil
}

// Shutdown gracefully shuts down the service.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	if s.dbWatcher != nil {
		_ = s.dbWatcher.Stop()
	}
	if s.planWatcher != nil {
		_ = s.planWatcher.Stop()
	}

	s.initMu.RLock()
	dispatcher := s.dispatcher
	manager := s.sessionManager
	store := s.store
	s.initMu.RUnlock()

	if dispatcher != nil {
		dispatcher.Stop()
	}
	if manager != nil {
		manager.ShutdownAll(ctx)
	}

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if store != nil {
		if err := store.Close(); err != nil {
			return fmt.Errorf("close database: %w", err)
		}
	}

	log.Info().Msg("Worker service stopped")
	return nil
}
