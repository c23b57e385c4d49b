package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"chatrelay/internal/admission"
	"chatrelay/internal/api"
	"chatrelay/internal/config"
	"chatrelay/internal/database"
	"chatrelay/internal/hub"
	"chatrelay/internal/lifecycle"
	"chatrelay/internal/message"
	"chatrelay/internal/moderation"
	"chatrelay/internal/router"
	"chatrelay/internal/session"
	"chatrelay/internal/websocket"
	pkgdatabase "chatrelay/pkg/database"
)

const rateLimitWindow = time.Minute

// Application owns every component of a running relay.
type Application struct {
	config     *config.Config
	logger     *slog.Logger
	dbManager  *database.Manager
	presence   *hub.Hub
	sessions   *session.Registry
	registry   *websocket.Registry
	wsHandler  *websocket.Handler
	apiServer  *api.Server
	httpServer *http.Server
	listener   net.Listener
	serveErr   chan error
}

// NewApplication builds the component graph in dependency order:
// Database, Migrations, Hub, Session registry, Transport, Lifecycle, API, HTTP.
func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dbConfig := DatabaseConfig(cfg)
	if dir := filepath.Dir(dbConfig.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dbManager, err := database.NewManager(dbConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	migrations := pkgdatabase.NewMigrationManager(dbManager.GetDB())
	if err := migrations.ApplyMigrations(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := migrations.ValidateSchema(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	logger.Info("database ready", "path", dbConfig.DatabasePath)

	moderator, err := moderation.NewModerator(cfg.Chat.CensoredWords)
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to build moderator: %w", err)
	}

	presence := hub.NewHub(dbManager, cfg.Chat.PresenceBuffer, logger)
	sessions := session.NewRegistry()
	registry := websocket.NewRegistry(logger)
	rt := router.NewRouter(sessions, registry, logger)
	factory := message.NewFactory(message.WithMapBaseURL(cfg.Chat.MapBaseURL))

	ctrl := admission.NewController(sessions, registry, rt, factory, presence, admission.Config{
		SystemName:  cfg.Chat.SystemName,
		WelcomeText: cfg.Chat.WelcomeText,
	}, logger)

	lc := lifecycle.NewHandler(ctrl, sessions, registry, rt, factory,
		lifecycle.WithModerator(moderator),
		lifecycle.WithRateLimiter(lifecycle.NewRateLimiter(cfg.Chat.RateLimitPerMinute, rateLimitWindow)),
		lifecycle.WithPresenceRecorder(presence),
		lifecycle.WithLogger(logger),
	)

	wsHandler := websocket.NewHandler(registry, lc, HandlerConfig(cfg), logger)

	apiServer := api.NewServer(api.Dependencies{
		Rooms:       sessions,
		Database:    dbManager,
		Connections: registry,
		Presence:    presence,
		WebSocket:   http.HandlerFunc(wsHandler.HandleWebSocket),
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port)),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     logger.With("component", "app"),
		dbManager:  dbManager,
		presence:   presence,
		sessions:   sessions,
		registry:   registry,
		wsHandler:  wsHandler,
		apiServer:  apiServer,
		httpServer: httpServer,
		serveErr:   make(chan error, 1),
	}, nil
}

// DatabaseConfig maps the database section onto the store settings.
func DatabaseConfig(cfg *config.Config) *pkgdatabase.Config {
	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Database.Path
	dbConfig.MaxConnections = cfg.Database.MaxConnections
	dbConfig.RetryDelay = cfg.Database.RetryDelay
	return dbConfig
}

// HandlerConfig maps the websocket section onto the socket handler settings.
func HandlerConfig(cfg *config.Config) websocket.HandlerConfig {
	return websocket.HandlerConfig{
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		PingInterval:   cfg.WebSocket.PingInterval,
		PongTimeout:    cfg.WebSocket.PongTimeout,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		RequestTimeout: cfg.WebSocket.RequestTimeout,
	}
}

// Handler exposes the HTTP surface, e.g. for httptest.
func (app *Application) Handler() http.Handler {
	return app.apiServer
}

// Start launches the presence hub and begins serving HTTP. It returns once the
// listener is bound.
func (app *Application) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// The hub outlives ctx so departures recorded during shutdown still land.
	if err := app.presence.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start presence hub: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.presence.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.serveErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(app.serveErr)
	}()

	app.logger.Info("chatrelay started", "addr", listener.Addr().String())
	return nil
}

// Errors reports a fatal serve error. The channel closes when serving stops.
func (app *Application) Errors() <-chan error {
	return app.serveErr
}

// Addr returns the bound address once started, else the configured one.
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Stop shuts down in reverse dependency order. Open sockets are closed so
// their departure notices and presence events are produced before the hub
// and the database go away.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down chatrelay")

	var errs []error
	if app.listener != nil {
		if err := app.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	app.registry.CloseAll()
	if err := app.wsHandler.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for connections: %w", err))
	}

	if err := app.presence.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("presence hub: %w", err))
	}

	if err := app.dbManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}

	app.logger.Info("chatrelay shutdown complete", "errors", len(errs))
	return errors.Join(errs...)
}
