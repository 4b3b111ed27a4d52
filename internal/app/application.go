package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"sessionhub/internal/api"
	"sessionhub/internal/catchup"
	"sessionhub/internal/config"
	"sessionhub/internal/eventlog"
	"sessionhub/internal/gateway"
	"sessionhub/internal/lifecycle"
	"sessionhub/internal/session"
	"sessionhub/internal/ws"
	"sessionhub/pkg/database"
	"sessionhub/pkg/interfaces"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config      *config.Config
	eventLog    interfaces.EventLog
	connManager *ws.Manager
	registry    *session.Registry
	lifecycle   *lifecycle.Manager
	catchup     *catchup.Coordinator
	gateway     *gateway.Gateway
	apiServer   *api.Server
	httpServer  *http.Server

	cleanupStop chan struct{}
}

// NewApplication creates an application with all components initialized.
// Initialization follows strict dependency order:
// Connections → EventLog → Registry → Lifecycle → CatchUp → Gateway → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Connection manager (no dependencies, everything above needs it)
	connManager := ws.NewManager()

	// STEP 2: Event log backend
	eventLog, err := buildEventLog(cfg)
	if err != nil {
		return nil, err
	}

	// STEP 3: Session registry over the connection manager
	registry := session.NewRegistry(connManager)

	// STEP 4: Lifecycle manager for ownership transfer and cleanup
	lifecycleManager := lifecycle.NewManager(registry, connManager)

	// STEP 5: Catch-up coordinator for the late-joiner protocol
	catchupCoordinator := catchup.NewCoordinator(registry, lifecycleManager, eventLog, cfg.History.PageSize, cfg.EventLog.Timeout)

	// STEP 6: Protocol gateway dispatching client messages
	gw := gateway.NewGateway(registry, connManager, eventLog, lifecycleManager, catchupCoordinator)

	// STEP 7: Read-only API server
	apiServer := api.NewServer(registry, eventLog, connManager)

	// STEP 8: WebSocket handler and HTTP server with both endpoints
	wsHandler := ws.NewHandler(connManager, gw, cfg.WebSocket.ReadTimeout, cfg.WebSocket.PingInterval, cfg.WebSocket.BufferSize)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		eventLog:    eventLog,
		connManager: connManager,
		registry:    registry,
		lifecycle:   lifecycleManager,
		catchup:     catchupCoordinator,
		gateway:     gw,
		apiServer:   apiServer,
		httpServer:  httpServer,
		cleanupStop: make(chan struct{}),
	}, nil
}

// buildEventLog constructs the configured backend. The sqlite path applies
// migrations and validates the resulting schema before anything reads it.
func buildEventLog(cfg *config.Config) (interfaces.EventLog, error) {
	switch cfg.EventLog.Backend {
	case config.BackendMemory:
		return eventlog.NewMemoryLog(), nil

	case config.BackendSQLite:
		dbConfig := database.DefaultConfig(cfg.EventLog.Path)
		dbConfig.ConnMaxLifetime = cfg.EventLog.Timeout
		dbConfig.ConnMaxIdleTime = cfg.EventLog.Timeout / 3

		sqliteLog, err := eventlog.NewSQLiteLog(dbConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize event log: %w", err)
		}

		migrationManager := database.NewMigrationManager(sqliteLog.DB())
		if err := migrationManager.ApplyMigrations(); err != nil {
			_ = sqliteLog.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}

		validator := database.NewSchemaValidator(sqliteLog.DB())
		if err := validator.ValidateTablesExist(); err != nil {
			_ = sqliteLog.Close()
			return nil, fmt.Errorf("schema validation failed: %w", err)
		}
		log.Println("Event log migrations applied successfully")
		return sqliteLog, nil

	default:
		return nil, fmt.Errorf("unknown event log backend %q", cfg.EventLog.Backend)
	}
}

// Start begins application execution. The HTTP server is probed briefly so
// an unbindable port fails Start instead of surfacing later.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting sessionhub on %s", app.httpServer.Addr)

	// Periodic rate limiter cleanup keeps per-client state bounded
	go app.cleanupLoop()

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		close(app.cleanupStop)
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("sessionhub started successfully")
		return nil
	case <-ctx.Done():
		close(app.cleanupStop)
		return ctx.Err()
	}
}

func (app *Application) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			app.gateway.Limiter().Cleanup()
		case <-app.cleanupStop:
			return
		}
	}
}

// Stop gracefully shuts down the application in reverse dependency order:
// HTTP → cleanup loop → event log
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down sessionhub")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	select {
	case <-app.cleanupStop:
		// Already closed by a failed Start.
	default:
		close(app.cleanupStop)
	}

	if err := app.eventLog.Close(); err != nil {
		log.Printf("Event log shutdown error: %v", err)
	}

	log.Printf("sessionhub shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
